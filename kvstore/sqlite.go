package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Schema for the kv table. revision is store-wide: each write stores
// MAX(revision)+1 on the row it touches, and deletes leave a tombstone so the
// maximum never moves backwards.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB,
	deleted    INTEGER NOT NULL DEFAULT 0,
	revision   INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// Backoff lists the waits before each retry of a write that hit
// SQLITE_BUSY. Its length is the number of retries.
type Backoff []time.Duration

// DefaultBackoff retries a busy write three times.
var DefaultBackoff = Backoff{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}

// Do runs op, retrying busy failures after each wait in b. Other errors
// and the last busy error are returned as is.
func (b Backoff) Do(ctx context.Context, op func() error) error {
	for i := 0; ; i++ {
		err := op()
		if err == nil || !isBusy(err) || i >= len(b) {
			return err
		}
		t := time.NewTimer(b[i])
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("kvstore: write abandoned while busy: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// SQLite is a Store backed by a single SQLite table (modernc.org/sqlite).
type SQLite struct {
	db      *sql.DB
	backoff Backoff
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens (creating if needed) the database at path, applies the
// WAL / busy_timeout / synchronous pragmas and the kv schema.
// ":memory:" is pinned to a single connection.
func OpenSQLite(path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("kvstore: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("kvstore: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: ping: %w", err)
	}
	return &SQLite{db: db, backoff: DefaultBackoff}, nil
}

// SetBackoff replaces the busy-write retry schedule. nil disables retries.
func (s *SQLite) SetBackoff(b Backoff) { s.backoff = b }

// DB exposes the underlying handle, mainly for tests.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ? AND deleted = 0`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kvstore: get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	return s.write(ctx, key, value, false)
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	return s.write(ctx, key, nil, true)
}

func (s *SQLite) write(ctx context.Context, key string, value []byte, deleted bool) error {
	return s.backoff.Do(ctx, func() error {
		return s.writeOnce(ctx, key, value, deleted)
	})
}

// writeOnce stores the row at MAX(revision)+1 in one transaction.
func (s *SQLite) writeOnce(ctx context.Context, key string, value []byte, deleted bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kvstore: begin write %s: %w", key, err)
	}
	defer tx.Rollback()

	var rev int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision), 0) FROM kv`).Scan(&rev); err != nil {
		return fmt.Errorf("kvstore: read revision: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv (key, value, deleted, revision, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			deleted = excluded.deleted,
			revision = excluded.revision,
			updated_at = excluded.updated_at`,
		key, value, deleted, rev+1, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("kvstore: write %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kvstore: commit %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Revision(ctx context.Context) (int64, error) {
	var rev int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision), 0) FROM kv`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("kvstore: revision: %w", err)
	}
	return rev, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// isBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, by primary
// result code when the driver error is reachable, by message otherwise.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}
