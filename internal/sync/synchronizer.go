// Package sync mirrors live tenant state into the durable store.
package sync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wppgw/internal/bus"
	"github.com/matheus3301/wppgw/internal/model"
)

// Store is the durable backing of sessions, contacts and checkpoints.
// Implemented by store.DB (sqlite) and kv.Store (bbolt).
type Store interface {
	UpsertSession(ctx context.Context, s model.Session) error
	GetSession(ctx context.Context, tenantID string) (*model.Session, error)
	ListSessions(ctx context.Context) ([]model.Session, error)
	UpsertContacts(ctx context.Context, tenantID string, contacts []model.Contact) error
	ListContacts(ctx context.Context, tenantID string) ([]model.Contact, error)
	SetCheckpoint(ctx context.Context, tenantID, key, value string) error
	GetCheckpoint(ctx context.Context, tenantID, key string) (string, bool, error)
}

// writeTimeout bounds a single store write. Writes detach from the caller's
// cancellation so the final transition of a stopping tenant still lands.
const writeTimeout = 5 * time.Second

// Synchronizer persists session and contact snapshots. Failures are logged
// and never returned: the live state stays authoritative for the process
// lifetime and the next successful write repairs the durable copy.
type Synchronizer struct {
	store  Store
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a synchronizer writing to st.
func New(st Store, b *bus.Bus, logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		store:  st,
		bus:    b,
		logger: logger,
	}
}

// SaveSession upserts the session of s.TenantID. Last writer wins.
func (s *Synchronizer) SaveSession(ctx context.Context, sess model.Session) {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	if err := s.store.UpsertSession(ctx, sess); err != nil {
		s.logger.Error("failed to persist session",
			zap.Error(err),
			zap.String("tenant", sess.TenantID),
			zap.String("status", string(sess.Status)))
	}
}

// SaveContacts upserts contacts of tenantID, records the sync checkpoint and
// announces the sync on the bus.
func (s *Synchronizer) SaveContacts(ctx context.Context, tenantID string, contacts []model.Contact) {
	ctx, cancel := writeContext(ctx)
	defer cancel()

	if err := s.store.UpsertContacts(ctx, tenantID, contacts); err != nil {
		s.logger.Error("failed to persist contacts",
			zap.Error(err),
			zap.String("tenant", tenantID),
			zap.Int("count", len(contacts)))
		return
	}

	now := time.Now()
	s.UpdateCheckpoint(ctx, tenantID, CheckpointContactsSynced, now.UTC().Format(time.RFC3339Nano))

	if s.bus != nil {
		s.bus.Publish(bus.Event{
			Kind:      bus.KindContactsSynced,
			Tenant:    tenantID,
			Timestamp: now,
			Payload:   map[string]int{"count": len(contacts)},
		})
	}
}

// LoadSession returns the persisted session of tenantID. It only seeds a
// cold start; the caller must re-validate it against the remote gateway.
func (s *Synchronizer) LoadSession(ctx context.Context, tenantID string) (model.Session, bool) {
	sess, err := s.store.GetSession(ctx, tenantID)
	if err != nil {
		s.logger.Warn("failed to load session", zap.Error(err), zap.String("tenant", tenantID))
		return model.Session{}, false
	}
	if sess == nil {
		return model.Session{}, false
	}
	return *sess, true
}

// CachedContacts returns the last persisted contact list of tenantID.
func (s *Synchronizer) CachedContacts(ctx context.Context, tenantID string) []model.Contact {
	contacts, err := s.store.ListContacts(ctx, tenantID)
	if err != nil {
		s.logger.Warn("failed to load cached contacts", zap.Error(err), zap.String("tenant", tenantID))
		return nil
	}
	return contacts
}

// KnownTenants returns the IDs of every tenant with a persisted session.
func (s *Synchronizer) KnownTenants(ctx context.Context) []string {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		s.logger.Warn("failed to list persisted sessions", zap.Error(err))
		return nil
	}
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.TenantID)
	}
	return ids
}

func writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
}
