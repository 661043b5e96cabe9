// Package sqlite owns every SQLite table the pipeline persists to:
// skills, embeddings, skill configs, long-term memory, system
// configuration, notable information, perception modules, and the
// skill-request log. One *sql.DB is opened per data directory and shared
// across components; it holds a single connection, so reads and writes
// are serialized, and writes are short and transactional, following the connection and migration conventions of
// this module's SQLite tooling.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a single SQLite connection with the migrations applied;
// every read and write is serialized through it.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and applies
// any pending migrations.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// A single connection avoids SQLITE_BUSY under the
	// serialize-through-SQLite-transactions policy this module relies on
	// for config/registry writes (spec §5).
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enable foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// Conn exposes the underlying *sql.DB for components that need queries
// this package does not wrap directly.
func (db *DB) Conn() *sql.DB { return db.conn }
