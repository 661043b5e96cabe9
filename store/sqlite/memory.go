package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kanephamphu/connex-agi/apitypes"
)

// InsertMemory stores a long-term memory entry and returns its auto id.
func (db *DB) InsertMemory(ctx context.Context, content string, embedding []float32, metadata map[string]any) (int64, error) {
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return 0, err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, err
	}
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO memories(content, embedding_json, metadata_json, timestamp) VALUES (?, ?, ?, ?)
	`, content, string(embJSON), string(metaJSON), time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// AllMemories returns every long-term memory entry, for the caller to
// rank by in-process cosine similarity (spec §4.3's scaling note).
func (db *DB) AllMemories(ctx context.Context) ([]apitypes.MemoryEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, content, embedding_json, metadata_json, timestamp FROM memories`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []apitypes.MemoryEntry
	for rows.Next() {
		var e apitypes.MemoryEntry
		var embJSON, metaJSON string
		if err := rows.Scan(&e.ID, &e.Content, &embJSON, &metaJSON, &e.Timestamp); err != nil {
			return nil, err
		}
		var emb []float32
		if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
			return nil, err
		}
		e.Embedding = emb
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteMemory removes one memory row by id.
func (db *DB) DeleteMemory(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	return err
}
