package sqlite

import (
	"context"
	"fmt"
)

// migration is one forward-only schema step, numbered and applied inside
// a transaction exactly once, tracked in schema_migrations.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{1, "skill_registry", `
CREATE TABLE IF NOT EXISTS skills (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	category TEXT NOT NULL,
	sub_category TEXT NOT NULL DEFAULT '',
	json_data TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS embeddings (
	skill_name TEXT PRIMARY KEY,
	vector BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS skill_configs (
	skill_name TEXT PRIMARY KEY,
	config_json TEXT NOT NULL
);
`},
	{2, "memory", `
CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	embedding_json TEXT NOT NULL,
	metadata_json TEXT NOT NULL DEFAULT '{}',
	timestamp INTEGER NOT NULL
);
`},
	{3, "config_kv", `
CREATE TABLE IF NOT EXISTS system_config (
	key TEXT PRIMARY KEY,
	value_json TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS notable_information (
	key TEXT PRIMARY KEY,
	value_json TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS perceptions (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	category TEXT NOT NULL,
	sub_category TEXT NOT NULL DEFAULT '',
	type TEXT NOT NULL,
	version TEXT NOT NULL DEFAULT '',
	enabled INTEGER NOT NULL DEFAULT 1,
	last_updated INTEGER NOT NULL,
	embedding_json TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS skill_requests (
	query TEXT PRIMARY KEY,
	count INTEGER NOT NULL DEFAULT 1,
	status TEXT NOT NULL DEFAULT 'pending',
	updated_at INTEGER NOT NULL
);
`},
	{4, "perception_embeddings_blob", `
CREATE TABLE IF NOT EXISTS perception_embeddings (
	name TEXT PRIMARY KEY,
	vector BLOB NOT NULL
);
`},
}

func (db *DB) migrate(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("sqlite: create schema_migrations: %w", err)
	}

	applied := map[int]bool{}
	rows, err := db.conn.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("sqlite: read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("sqlite: begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: apply migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations(version, name) VALUES (?, ?)", m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite: record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("sqlite: commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
