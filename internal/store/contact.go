package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/matheus3301/wppgw/internal/model"
)

// ContactKey returns the storage key of c: its phone, or its ID when the
// phone is missing. Empty when the contact has neither.
func ContactKey(c model.Contact) string {
	if c.Phone != "" {
		return c.Phone
	}
	return c.ID
}

// UpsertContacts inserts or updates contacts of tenantID in a single
// transaction, keyed by (tenant, phone). Mutable fields are overwritten.
// Contacts absent from the list are left untouched.
func (db *DB) UpsertContacts(ctx context.Context, tenantID string, contacts []model.Contact) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		key := ContactKey(c)
		if key == "" {
			continue
		}
		var lastAt sql.NullInt64
		if c.LastMessageTime != nil {
			lastAt = sql.NullInt64{Int64: c.LastMessageTime.UnixMilli(), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contacts (tenant_id, phone, contact_id, name, profile_picture, last_message, last_message_at, unread_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(tenant_id, phone) DO UPDATE SET
				contact_id = excluded.contact_id,
				name = excluded.name,
				profile_picture = excluded.profile_picture,
				last_message = excluded.last_message,
				last_message_at = excluded.last_message_at,
				unread_count = excluded.unread_count,
				updated_at = excluded.updated_at`,
			tenantID, key, c.ID, c.Name, c.ProfilePicture, c.LastMessage, lastAt, c.UnreadCount, now); err != nil {
			return fmt.Errorf("upsert contact %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// ListContacts returns the persisted contacts of tenantID, most recent
// conversation first; contacts without a last message sort last.
func (db *DB) ListContacts(ctx context.Context, tenantID string) ([]model.Contact, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT phone, contact_id, name, profile_picture, last_message, last_message_at, unread_count
		FROM contacts
		WHERE tenant_id = ?
		ORDER BY last_message_at IS NULL, last_message_at DESC, phone`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []model.Contact
	for rows.Next() {
		var (
			c      model.Contact
			lastAt sql.NullInt64
		)
		if err := rows.Scan(&c.Phone, &c.ID, &c.Name, &c.ProfilePicture, &c.LastMessage, &lastAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		if lastAt.Valid {
			t := time.UnixMilli(lastAt.Int64).UTC()
			c.LastMessageTime = &t
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ContactCount returns the number of contacts stored for tenantID.
func (db *DB) ContactCount(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE tenant_id = ?`, tenantID).Scan(&count)
	return count, err
}
