// Package store is the durable, crash-safe persistence layer: thread records,
// the append-only audit trail, and per-thread message backlogs in SQLite;
// credentials in a YAML file; session transcripts as per-thread JSONL.
//
// Every operation is independently recoverable: a corrupt or missing record
// for one thread is skipped with a warning and never blocks another thread.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store wraps the ccd state database.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (or creates) the SQLite database at path with production-safe
// defaults — WAL journal mode and a 5-second busy timeout — verifies the
// connection, and applies the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return New(db, log), nil
}

// New wraps an already-open database. Used by tests and by callers that
// manage the connection themselves.
func New(db *sql.DB, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: db, log: log}
}

// Close releases the database connection. Safe to call multiple times.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
