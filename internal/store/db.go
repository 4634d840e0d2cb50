package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection holding tenant sessions, contacts
// and sync checkpoints. Every row is keyed by tenant ID.
type DB struct {
	*sql.DB
}

// Open creates the parent directory if needed and opens a SQLite connection
// with WAL mode and a busy timeout, so concurrent tenant writers queue instead
// of failing with SQLITE_BUSY.
func Open(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// OpenMigrated opens the database at path and applies pending migrations.
func OpenMigrated(ctx context.Context, path string) (*DB, *MigrateResult, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	res, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, res, nil
}
