package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// SetSystemConfig persists a runtime configuration value, which takes
// precedence over environment variables per spec §6.
func (db *DB) SetSystemConfig(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO system_config(key, value_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json=excluded.value_json, updated_at=excluded.updated_at
	`, key, string(data), time.Now().Unix())
	return err
}

// SystemConfig returns the persisted value for key and true, or false if unset.
func (db *DB) SystemConfig(ctx context.Context, key string) (any, bool, error) {
	var data string
	err := db.conn.QueryRowContext(ctx, `SELECT value_json FROM system_config WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// SetNotableInfo persists a durable fact under key.
func (db *DB) SetNotableInfo(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO notable_information(key, value_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value_json=excluded.value_json, updated_at=excluded.updated_at
	`, key, string(data), time.Now().Unix())
	return err
}

// AllNotableInfo returns every stored notable-info key/value pair.
func (db *DB) AllNotableInfo(ctx context.Context) (map[string]any, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT key, value_json FROM notable_information`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]any)
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, rows.Err()
}

// IncrementSkillRequest bumps the occurrence count for query, creating the
// row (status=pending) if it does not yet exist.
func (db *DB) IncrementSkillRequest(ctx context.Context, query string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO skill_requests(query, count, status, updated_at) VALUES (?, 1, 'pending', ?)
		ON CONFLICT(query) DO UPDATE SET count = count + 1, updated_at = excluded.updated_at
	`, query, time.Now().Unix())
	return err
}

// SetSkillRequestStatus updates the status of a previously logged query.
func (db *DB) SetSkillRequestStatus(ctx context.Context, query, status string) error {
	_, err := db.conn.ExecContext(ctx, `
		UPDATE skill_requests SET status = ?, updated_at = ? WHERE query = ?
	`, status, time.Now().Unix(), query)
	return err
}

// SkillRequestsByStatus returns every logged query with the given status.
func (db *DB) SkillRequestsByStatus(ctx context.Context, status string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT query FROM skill_requests WHERE status = ?`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
