package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/kanephamphu/connex-agi/apitypes"
)

// UpsertPerception installs or replaces a perception module's registry row.
func (db *DB) UpsertPerception(ctx context.Context, meta apitypes.PerceptionMetadata) error {
	enabled := 0
	if meta.Enabled {
		enabled = 1
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO perceptions(name, description, category, sub_category, type, version, enabled, last_updated, embedding_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '')
		ON CONFLICT(name) DO UPDATE SET
			description=excluded.description, category=excluded.category,
			sub_category=excluded.sub_category, type=excluded.type,
			version=excluded.version, enabled=excluded.enabled,
			last_updated=excluded.last_updated
	`, meta.Name, meta.Description, meta.Category, meta.SubCategory, meta.Type, meta.Version, enabled, time.Now().Unix())
	return err
}

// ListPerceptions returns every registered perception module's metadata.
func (db *DB) ListPerceptions(ctx context.Context) ([]apitypes.PerceptionMetadata, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name, description, category, sub_category, type, version, enabled, last_updated FROM perceptions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []apitypes.PerceptionMetadata
	for rows.Next() {
		var m apitypes.PerceptionMetadata
		var enabled int
		if err := rows.Scan(&m.Name, &m.Description, &m.Category, &m.SubCategory, &m.Type, &m.Version, &enabled, &m.LastUpdated); err != nil {
			return nil, err
		}
		m.Enabled = enabled != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// PutPerceptionEmbedding persists a perception module's embedding vector.
func (db *DB) PutPerceptionEmbedding(ctx context.Context, name string, vector []float32) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO perception_embeddings(name, vector) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET vector=excluded.vector
	`, name, PackFloat32(vector))
	return err
}

// AllPerceptionEmbeddings returns every stored perception-module embedding.
func (db *DB) AllPerceptionEmbeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT name, vector FROM perception_embeddings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]float32)
	for rows.Next() {
		var name string
		var blob []byte
		if err := rows.Scan(&name, &blob); err != nil {
			return nil, err
		}
		out[name] = UnpackFloat32(blob)
	}
	return out, rows.Err()
}

// PerceptionEmbedding returns the vector for name, or sql.ErrNoRows if absent.
func (db *DB) PerceptionEmbedding(ctx context.Context, name string) ([]float32, error) {
	var blob []byte
	err := db.conn.QueryRowContext(ctx, `SELECT vector FROM perception_embeddings WHERE name = ?`, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return UnpackFloat32(blob), nil
}
