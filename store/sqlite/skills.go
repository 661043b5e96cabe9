package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kanephamphu/connex-agi/apitypes"
)

// SkillRow is the persisted projection of apitypes.SkillMetadata plus its
// bookkeeping columns.
type SkillRow struct {
	Metadata  apitypes.SkillMetadata
	UpdatedAt int64
}

// UpsertSkill installs or replaces a skill's metadata row. Replacing an
// existing name is allowed; callers are responsible for logging the
// replacement (the Registry does this).
func (db *DB) UpsertSkill(ctx context.Context, meta apitypes.SkillMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("sqlite: marshal skill %s: %w", meta.Name, err)
	}
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO skills(name, description, category, sub_category, json_data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description=excluded.description,
			category=excluded.category,
			sub_category=excluded.sub_category,
			json_data=excluded.json_data,
			updated_at=excluded.updated_at
	`, meta.Name, meta.Description, meta.Category, meta.SubCategory, string(data), time.Now().Unix())
	return err
}

// Skill returns the persisted metadata for name, or sql.ErrNoRows if absent.
func (db *DB) Skill(ctx context.Context, name string) (apitypes.SkillMetadata, error) {
	var data string
	err := db.conn.QueryRowContext(ctx, `SELECT json_data FROM skills WHERE name = ?`, name).Scan(&data)
	if err != nil {
		return apitypes.SkillMetadata{}, err
	}
	var meta apitypes.SkillMetadata
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return apitypes.SkillMetadata{}, fmt.Errorf("sqlite: unmarshal skill %s: %w", name, err)
	}
	return meta, nil
}

// ListSkills returns every persisted skill's metadata.
func (db *DB) ListSkills(ctx context.Context) ([]apitypes.SkillMetadata, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT json_data FROM skills`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []apitypes.SkillMetadata
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var meta apitypes.SkillMetadata
		if err := json.Unmarshal([]byte(data), &meta); err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

// PutEmbedding persists a skill's embedding vector as a packed float32 blob.
func (db *DB) PutEmbedding(ctx context.Context, skillName string, vector []float32) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO embeddings(skill_name, vector) VALUES (?, ?)
		ON CONFLICT(skill_name) DO UPDATE SET vector=excluded.vector
	`, skillName, PackFloat32(vector))
	return err
}

// Embedding returns the unpacked vector for skillName, or sql.ErrNoRows if absent.
func (db *DB) Embedding(ctx context.Context, skillName string) ([]float32, error) {
	var blob []byte
	err := db.conn.QueryRowContext(ctx, `SELECT vector FROM embeddings WHERE skill_name = ?`, skillName).Scan(&blob)
	if err != nil {
		return nil, err
	}
	return UnpackFloat32(blob), nil
}

// AllEmbeddings returns every stored skill embedding keyed by skill name.
func (db *DB) AllEmbeddings(ctx context.Context) (map[string][]float32, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT skill_name, vector FROM embeddings`)
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

// PutSkillConfig merges patch into the skill's persisted config and
// returns the merged result, all inside one transaction so concurrent
// updateConfig calls serialize cleanly.
func (db *DB) PutSkillConfig(ctx context.Context, skillName string, patch map[string]any) (map[string]any, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var existing map[string]any
	var data string
	err = tx.QueryRowContext(ctx, `SELECT config_json FROM skill_configs WHERE skill_name = ?`, skillName).Scan(&data)
	switch {
	case err == sql.ErrNoRows:
		existing = map[string]any{}
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal([]byte(data), &existing); err != nil {
			return nil, err
		}
	}

	for k, v := range patch {
		existing[k] = v
	}

	merged, err := json.Marshal(existing)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO skill_configs(skill_name, config_json) VALUES (?, ?)
		ON CONFLICT(skill_name) DO UPDATE SET config_json=excluded.config_json
	`, skillName, string(merged)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return existing, nil
}

// SkillConfig returns the persisted config for skillName, or an empty map
// if none has been stored.
func (db *DB) SkillConfig(ctx context.Context, skillName string) (map[string]any, error) {
	var data string
	err := db.conn.QueryRowContext(ctx, `SELECT config_json FROM skill_configs WHERE skill_name = ?`, skillName).Scan(&data)
	if err == sql.ErrNoRows {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
