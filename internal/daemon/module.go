package daemon

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/wppgw/internal/api"
	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/chat"
	"github.com/matheus3301/wppgw/internal/config"
	"github.com/matheus3301/wppgw/internal/gateway"
	"github.com/matheus3301/wppgw/internal/kv"
	"github.com/matheus3301/wppgw/internal/lock"
	"github.com/matheus3301/wppgw/internal/logging"
	"github.com/matheus3301/wppgw/internal/paths"
	"github.com/matheus3301/wppgw/internal/provision"
	"github.com/matheus3301/wppgw/internal/store"
	intsync "github.com/matheus3301/wppgw/internal/sync"
	"github.com/matheus3301/wppgw/internal/tenant"
	"github.com/matheus3301/wppgw/internal/webhook"
)

// Params holds the resolved daemon configuration passed to the fx module.
type Params struct {
	Config     *config.Config
	DataDir    string        // empty = paths.BaseDir()
	SocketPath string        // optional override for testing; empty = config, then default
	LogLevel   zapcore.Level // ignored when Logger is set
	Logger     *zap.Logger   // optional; empty = file + stderr logger
}

func (p Params) dataDir() string {
	if p.DataDir != "" {
		return p.DataDir
	}
	return paths.BaseDir()
}

func (p Params) socket() string {
	switch {
	case p.SocketPath != "":
		return p.SocketPath
	case p.Config.Daemon.Socket != "":
		return p.Config.Daemon.Socket
	}
	return filepath.Join(p.dataDir(), paths.SocketFile)
}

func (p Params) logPath() string {
	if p.Config.Daemon.LogPath != "" {
		return p.Config.Daemon.LogPath
	}
	return filepath.Join(p.dataDir(), "logs", paths.LogFile)
}

// Store is the durable backend with its lifecycle.
type Store interface {
	intsync.Store
	io.Closer
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	if p.Config == nil {
		p.Config = config.Default()
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideGateway,
			provideSynchronizer,
			provideProvisioner,
			providePipeline,
			provideManager,
			provideService,
			provideWebhook,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(p.logPath(), "wppgwd", p.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", p.dataDir()))
	l, err := lock.Acquire(p.dataDir(), p.socket())
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

// provideStore takes the lock so the store is never opened unguarded.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (Store, error) {
	cfg := p.Config.Store
	switch cfg.Driver {
	case config.DriverBolt:
		path := cfg.Path
		if path == "" {
			path = filepath.Join(p.dataDir(), paths.BoltFile)
		}
		st, err := kv.Open(path)
		if err != nil {
			return nil, err
		}
		logger.Info("store initialized", zap.String("driver", cfg.Driver), zap.String("path", path))
		return st, nil

	case config.DriverSQLite, "":
		path := cfg.Path
		if path == "" {
			path = filepath.Join(p.dataDir(), paths.SQLiteFile)
		}
		db, result, err := store.OpenMigrated(context.Background(), path)
		if err != nil {
			return nil, err
		}
		if result.Changed {
			logger.Info("migrations applied", zap.Uint("version", result.Version))
		} else {
			logger.Info("migrations up to date", zap.Uint("version", result.Version))
		}
		logger.Info("store initialized", zap.String("driver", config.DriverSQLite), zap.String("path", path))
		return db, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func provideGateway(p Params, logger *zap.Logger) *gateway.Client {
	return gateway.New(p.Config.Gateway, logger)
}

func provideSynchronizer(st Store, b *bus.Bus, logger *zap.Logger) *intsync.Synchronizer {
	return intsync.New(st, b, logger)
}

func provideProvisioner(p Params, gw *gateway.Client, logger *zap.Logger) *provision.Provisioner {
	return provision.New(gw, p.Config.Polling.ConflictBackoff.Duration, logger)
}

func providePipeline(gw *gateway.Client, logger *zap.Logger) *chat.Pipeline {
	return chat.New(gw, logger)
}

func provideManager(p Params, gw *gateway.Client, prov *provision.Provisioner, pipe *chat.Pipeline, syn *intsync.Synchronizer, b *bus.Bus, logger *zap.Logger) *tenant.Manager {
	return tenant.NewManager(context.Background(), tenant.Deps{
		Gateway:     gw,
		Provisioner: prov,
		Pipeline:    pipe,
		Sync:        syn,
		Bus:         b,
		Polling:     p.Config.Polling,
		Logger:      logger,
	})
}

func provideService(m *tenant.Manager, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(m, b, logger)
}

func provideWebhook(p Params, m *tenant.Manager, logger *zap.Logger) *webhook.Server {
	return webhook.New(m, p.Config.Daemon.WebhookSecret, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, st Store, m *tenant.Manager, wh *webhook.Server, logger *zap.Logger) {
	webhookAddr := p.Config.Daemon.WebhookAddr
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if webhookAddr != "" {
				if err := wh.Listen(webhookAddr); err != nil {
					return err
				}
				go func() {
					if err := wh.Serve(); err != nil {
						logger.Error("webhook server error", zap.Error(err))
					}
				}()
			}

			// Re-validate every persisted tenant against the gateway.
			return m.Bootstrap(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if webhookAddr != "" {
				if err := wh.Stop(ctx); err != nil {
					logger.Warn("error stopping webhook receiver", zap.Error(err))
				}
			}
			m.StopAll()
			srv.Stop(ctx)
			if err := st.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
