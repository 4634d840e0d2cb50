package tenant

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	stdsync "sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matheus3301/wppgw/internal/model"
)

// ErrUnknownTenant is returned for tenants that were never opened.
var ErrUnknownTenant = errors.New("unknown tenant")

// bootstrapConcurrency bounds the number of tenants restored in parallel.
const bootstrapConcurrency = 8

// Manager owns the tenant actors of the process. Tenants are isolated: one
// tenant's failure never changes another's session.
type Manager struct {
	deps   Deps
	logger *zap.Logger

	mu      stdsync.Mutex
	ctx     context.Context
	tenants map[string]*Tenant
}

// NewManager creates a manager. Tenants started later inherit ctx.
func NewManager(ctx context.Context, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Manager{
		deps:    deps,
		logger:  deps.Logger,
		ctx:     ctx,
		tenants: make(map[string]*Tenant),
	}
}

// Open returns the running actor for id, creating it from the persisted
// session on first use.
func (m *Manager) Open(ctx context.Context, id string) (*Tenant, error) {
	if err := model.ValidateTenantID(id); err != nil {
		return nil, err
	}

	if t, ok := m.lookup(id); ok {
		t.Start(m.ctx)
		return t, nil
	}

	t, err := New(id, m.deps)
	if err != nil {
		return nil, err
	}
	if sess, ok := m.deps.Sync.LoadSession(ctx, id); ok {
		t.Restore(sess)
	}

	m.mu.Lock()
	if existing, ok := m.tenants[id]; ok {
		m.mu.Unlock()
		existing.Start(m.ctx)
		return existing, nil
	}
	m.tenants[id] = t
	m.mu.Unlock()

	t.Start(m.ctx)
	m.logger.Info("tenant opened", zap.String("tenant", id), zap.String("status", string(t.Snapshot().Status)))
	return t, nil
}

func (m *Manager) lookup(id string) (*Tenant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	return t, ok
}

// Get returns an already opened tenant.
func (m *Manager) Get(id string) (*Tenant, error) {
	t, ok := m.lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTenant, id)
	}
	return t, nil
}

// ByInstance resolves a remote instance name to its opened tenant.
func (m *Manager) ByInstance(instance string) (*Tenant, error) {
	id, ok := model.TenantFromInstance(instance)
	if !ok {
		return nil, fmt.Errorf("%w: instance %q", ErrUnknownTenant, instance)
	}
	return m.Get(id)
}

// List returns the snapshots of all opened tenants sorted by tenant ID.
func (m *Manager) List() []model.Session {
	m.mu.Lock()
	ts := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		ts = append(ts, t)
	}
	m.mu.Unlock()

	out := make([]model.Session, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.Snapshot())
	}
	slices.SortFunc(out, func(a, b model.Session) int {
		return strings.Compare(a.TenantID, b.TenantID)
	})
	return out
}

// Bootstrap opens every tenant with a persisted session so their sessions
// are re-validated against the gateway.
func (m *Manager) Bootstrap(ctx context.Context) error {
	ids := m.deps.Sync.KnownTenants(ctx)
	if len(ids) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bootstrapConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := m.Open(gctx, id); err != nil {
				m.logger.Warn("skipping persisted tenant", zap.String("tenant", id), zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	m.logger.Info("tenants restored", zap.Int("count", len(ids)))
	return nil
}

// Stop stops the polling loop of one tenant. Its session stays in memory
// and a later Open restarts the loop.
func (m *Manager) Stop(id string) error {
	t, err := m.Get(id)
	if err != nil {
		return err
	}
	t.Stop()
	m.logger.Info("tenant stopped", zap.String("tenant", id))
	return nil
}

// StopAll stops every polling loop.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ts := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		ts = append(ts, t)
	}
	m.mu.Unlock()

	var wg stdsync.WaitGroup
	for _, t := range ts {
		wg.Go(t.Stop)
	}
	wg.Wait()
}
