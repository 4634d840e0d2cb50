// Package kv is an embedded bbolt backend for tenant sessions, contacts and
// sync checkpoints. It satisfies the same contract as the sqlite store for
// deployments that prefer a single-file key/value database.
package kv

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/matheus3301/wppgw/internal/model"
)

var (
	sessionsBucket    = []byte("sessions")
	contactsBucket    = []byte("contacts")
	checkpointsBucket = []byte("sync_state")
)

// sep separates the tenant prefix from the entity key. Tenant IDs never
// contain it.
const sep = 0x00

// Store is a bbolt-backed tenant store.
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the bolt file at path and ensures its buckets.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create kv dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open kv: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{sessionsBucket, contactsBucket, checkpointsBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertSession replaces the stored session of sess.TenantID.
func (s *Store) UpsertSession(_ context.Context, sess model.Session) error {
	data, err := encode(sess)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).Put([]byte(sess.TenantID), data)
	})
}

// GetSession returns the stored session of tenantID, or nil if none.
func (s *Store) GetSession(_ context.Context, tenantID string) (*model.Session, error) {
	var out *model.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(sessionsBucket).Get([]byte(tenantID))
		if data == nil {
			return nil
		}
		var sess model.Session
		if err := decode(data, &sess); err != nil {
			return fmt.Errorf("decode session %q: %w", tenantID, err)
		}
		out = &sess
		return nil
	})
	return out, err
}

// ListSessions returns every stored session ordered by tenant ID.
func (s *Store) ListSessions(_ context.Context) ([]model.Session, error) {
	var sessions []model.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			var sess model.Session
			if err := decode(v, &sess); err != nil {
				return fmt.Errorf("decode session %q: %w", k, err)
			}
			sessions = append(sessions, sess)
			return nil
		})
	})
	return sessions, err
}

// UpsertContacts writes contacts of tenantID keyed by phone (ID when the
// phone is missing). Contacts absent from the list are left untouched.
func (s *Store) UpsertContacts(_ context.Context, tenantID string, contacts []model.Contact) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(contactsBucket)
		for _, c := range contacts {
			key := c.Phone
			if key == "" {
				key = c.ID
			}
			if key == "" {
				continue
			}
			if c.Phone == "" {
				c.Phone = key
			}
			data, err := encode(c)
			if err != nil {
				return err
			}
			if err := b.Put(tenantKey(tenantID, key), data); err != nil {
				return fmt.Errorf("put contact %q: %w", key, err)
			}
		}
		return nil
	})
}

// ListContacts returns the stored contacts of tenantID, most recent
// conversation first.
func (s *Store) ListContacts(_ context.Context, tenantID string) ([]model.Contact, error) {
	var contacts []model.Contact
	prefix := tenantPrefix(tenantID)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(contactsBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var contact model.Contact
			if err := decode(v, &contact); err != nil {
				return fmt.Errorf("decode contact %q: %w", k, err)
			}
			contacts = append(contacts, contact)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i].LastMessageTime, contacts[j].LastMessageTime
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return contacts[i].Phone < contacts[j].Phone
	})
	return contacts, nil
}

// SetCheckpoint stores a per-tenant sync marker.
func (s *Store) SetCheckpoint(_ context.Context, tenantID, key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(checkpointsBucket).Put(tenantKey(tenantID, key), []byte(value))
	})
}

// GetCheckpoint returns the marker stored under key, and whether it exists.
func (s *Store) GetCheckpoint(_ context.Context, tenantID, key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(checkpointsBucket).Get(tenantKey(tenantID, key))
		if v != nil {
			value, found = string(v), true
		}
		return nil
	})
	return value, found, err
}

func tenantPrefix(tenantID string) []byte {
	return append([]byte(tenantID), sep)
}

func tenantKey(tenantID, key string) []byte {
	return append(tenantPrefix(tenantID), key...)
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte, target any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(target)
}
