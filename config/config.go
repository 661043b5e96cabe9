// Package config implements the Persistent Key-Value / Config Store:
// system configuration that overrides the process environment, notable
// information surfaced into planning prompts with fuzzy key search,
// and the missing-skill request log.
package config

import (
	"context"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/store/sqlite"
)

// Store wraps the config_kv tables with environment-aware reads and
// fuzzy notable-information search.
type Store struct {
	db *sqlite.DB
}

// New builds a Store backed by db.
func New(db *sqlite.DB) *Store {
	return &Store{db: db}
}

// Get returns a system_config value, falling back to the process
// environment variable of the same key, and finally to def.
func (s *Store) Get(ctx context.Context, key, def string) (string, error) {
	v, found, err := s.db.SystemConfig(ctx, key)
	if err != nil {
		return def, agierr.Wrap(agierr.KindFatalSystem, "config: get", agierr.FromError(err))
	}
	if found {
		if str, ok := v.(string); ok {
			return str, nil
		}
	}
	if env, ok := os.LookupEnv(key); ok {
		return env, nil
	}
	return def, nil
}

// GetInt is Get with integer parsing.
func (s *Store) GetInt(ctx context.Context, key string, def int) (int, error) {
	raw, err := s.Get(ctx, key, "")
	if err != nil {
		return def, err
	}
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def, nil
	}
	return n, nil
}

// Set persists a system_config override, taking precedence over any
// same-named environment variable on subsequent Get calls.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	if err := s.db.SetSystemConfig(ctx, key, value); err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "config: set", agierr.FromError(err))
	}
	return nil
}

// SetNotable records a named fact for surfacing into planning prompts.
func (s *Store) SetNotable(ctx context.Context, key string, value any) error {
	if err := s.db.SetNotableInfo(ctx, key, value); err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "config: set notable", agierr.FromError(err))
	}
	return nil
}

// SearchNotable implements the fuzzy key-search algorithm: substring
// matches score 1.0+len(query)/len(key); everything else scores by
// Ratcliff/Obershelp similarity ratio. Keys below 0.4 are dropped.
func (s *Store) SearchNotable(ctx context.Context, query string, limit int) ([]apitypes.NotableInfoEntry, error) {
	all, err := s.db.AllNotableInfo(ctx)
	if err != nil {
		return nil, agierr.Wrap(agierr.KindFatalSystem, "config: search notable", agierr.FromError(err))
	}

	type scored struct {
		entry apitypes.NotableInfoEntry
		score float64
	}
	var ranked []scored
	for key, value := range all {
		score := matchScore(query, key)
		if score >= 0.4 {
			ranked = append(ranked, scored{entry: apitypes.NotableInfoEntry{Key: key, Value: value}, score: score})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if limit <= 0 {
		limit = len(ranked)
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]apitypes.NotableInfoEntry, len(ranked))
	for i, r := range ranked {
		out[i] = r.entry
	}
	return out, nil
}

func matchScore(query, key string) float64 {
	if key == "" {
		return 0
	}
	if strings.Contains(key, query) {
		return 1.0 + float64(len(query))/float64(len(key))
	}
	return ratcliffObershelp(query, key)
}

// IncrementSkillRequest records one more occurrence of a query that no
// installed skill could satisfy.
func (s *Store) IncrementSkillRequest(ctx context.Context, query string) error {
	if err := s.db.IncrementSkillRequest(ctx, query); err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "config: increment skill request", agierr.FromError(err))
	}
	return nil
}

// SetSkillRequestStatus transitions the named skill-request log entry.
func (s *Store) SetSkillRequestStatus(ctx context.Context, query string, status apitypes.SkillRequestStatus) error {
	if err := s.db.SetSkillRequestStatus(ctx, query, string(status)); err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "config: set skill request status", agierr.FromError(err))
	}
	return nil
}

// SkillRequestsByStatus returns every logged query currently in status,
// consumed by the background skill-review cycle.
func (s *Store) SkillRequestsByStatus(ctx context.Context, status apitypes.SkillRequestStatus) ([]string, error) {
	out, err := s.db.SkillRequestsByStatus(ctx, string(status))
	if err != nil {
		return nil, agierr.Wrap(agierr.KindFatalSystem, "config: skill requests by status", agierr.FromError(err))
	}
	return out, nil
}
