package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/wppgw/internal/config"
	"github.com/matheus3301/wppgw/internal/daemon"
	"github.com/matheus3301/wppgw/internal/paths"
)

func main() {
	configFlag := flag.String("config", "", "config file (default $WPPGW_CONFIG or ~/.wppgw/config.toml)")
	socketFlag := flag.String("socket", "", "unix socket path (overrides config)")
	levelFlag := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	cfg, err := config.LoadOrDefault(paths.ResolveConfig(*configFlag))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}
	level, err := zapcore.ParseLevel(*levelFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := paths.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "error: create data dir: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			Config:     cfg,
			SocketPath: *socketFlag,
			LogLevel:   level,
		}),
	)

	app.Run()
}
