package sync

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CheckpointContactsSynced records when the contact list of a tenant was
// last persisted.
const CheckpointContactsSynced = "contacts_synced_at"

// UpdateCheckpoint updates a per-tenant sync checkpoint value.
func (s *Synchronizer) UpdateCheckpoint(ctx context.Context, tenantID, key, value string) {
	if err := s.store.SetCheckpoint(ctx, tenantID, key, value); err != nil {
		s.logger.Error("failed to update checkpoint",
			zap.Error(err),
			zap.String("tenant", tenantID),
			zap.String("key", key))
	}
}

// ContactsSyncedAt returns when contacts of tenantID were last persisted.
func (s *Synchronizer) ContactsSyncedAt(ctx context.Context, tenantID string) (time.Time, bool) {
	v, ok, err := s.store.GetCheckpoint(ctx, tenantID, CheckpointContactsSynced)
	if err != nil || !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
