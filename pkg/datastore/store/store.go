// Package store owns the encrypted SQLite file. The datastore process holds
// the sole handle; all writes go through one connection so credit updates
// and usage inserts serialize at the driver level.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the single-writer database handle.
type Store struct {
	path string
	db   *sql.DB
}

// Open opens (creating if necessary) the database at path with the given
// encryption key applied at connect time, WAL journaling, and foreign keys
// on. The returned handle is limited to one open connection.
func Open(path, encryptionKey string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := "file:" + path +
		"?_pragma=key(" + url.QueryEscape(quotePragma(encryptionKey)) + ")" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(10000)" +
		"&_pragma=foreign_keys(ON)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

// DB exposes the underlying handle for the migrator and repositories.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Checkpoint truncates the WAL.
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close releases the handle.
func (s *Store) Close() error { return s.db.Close() }

// quotePragma single-quotes the key value, doubling embedded quotes.
func quotePragma(v string) string {
	out := make([]byte, 0, len(v)+2)
	out = append(out, '\'')
	for i := 0; i < len(v); i++ {
		if v[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, v[i])
	}
	return string(append(out, '\''))
}
