package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// SetCheckpoint stores a per-tenant sync marker.
func (db *DB) SetCheckpoint(ctx context.Context, tenantID, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sync_state (tenant_id, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tenant_id, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		tenantID, key, value, time.Now().UnixMilli())
	return err
}

// GetCheckpoint returns the marker stored under key, and whether it exists.
func (db *DB) GetCheckpoint(ctx context.Context, tenantID, key string) (string, bool, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM sync_state WHERE tenant_id = ? AND key = ?`, tenantID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
