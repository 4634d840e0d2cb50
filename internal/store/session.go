package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/matheus3301/wppgw/internal/model"
)

// UpsertSession inserts or replaces the session row of s.TenantID.
// Last writer wins.
func (db *DB) UpsertSession(ctx context.Context, s model.Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (tenant_id, instance_name, status, qr_code, phone_number, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id) DO UPDATE SET
			instance_name = excluded.instance_name,
			status = excluded.status,
			qr_code = excluded.qr_code,
			phone_number = excluded.phone_number,
			updated_at = excluded.updated_at`,
		s.TenantID, s.InstanceName, string(s.Status), s.QRCode, s.PhoneNumber, toMillis(s.UpdatedAt))
	return err
}

// GetSession returns the persisted session of tenantID, or nil if none.
func (db *DB) GetSession(ctx context.Context, tenantID string) (*model.Session, error) {
	row := db.QueryRowContext(ctx, `
		SELECT tenant_id, instance_name, status, qr_code, phone_number, updated_at
		FROM sessions WHERE tenant_id = ?`, tenantID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns every persisted session ordered by tenant ID.
func (db *DB) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tenant_id, instance_name, status, qr_code, phone_number, updated_at
		FROM sessions ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (model.Session, error) {
	var (
		s         model.Session
		status    string
		updatedAt int64
	)
	if err := row.Scan(&s.TenantID, &s.InstanceName, &status, &s.QRCode, &s.PhoneNumber, &updatedAt); err != nil {
		return model.Session{}, err
	}
	s.Status = model.Status(status)
	s.UpdatedAt = fromMillis(updatedAt)
	return s, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
