// Package skills implements the Skill Registry: a SQLite-backed catalog
// of installed skills with diversity-filtered semantic+lexical
// retrieval, per-skill configuration, and directory-based dynamic
// loading.
package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/model"
	"github.com/kanephamphu/connex-agi/store/sqlite"
	"github.com/kanephamphu/connex-agi/telemetry"
)

// Embedder is the subset of model.Router the registry needs to compute
// skill embeddings; satisfied by *model.Router.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SkillRequestLogger records queries no installed skill could satisfy,
// feeding the background Reviewer's backlog; satisfied by
// *config.Store.
type SkillRequestLogger interface {
	IncrementSkillRequest(ctx context.Context, query string) error
}

// Registry is the runtime skill catalog. It holds live Skill instances
// in memory and mirrors their metadata/config/embeddings into SQLite.
type Registry struct {
	mu       sync.RWMutex
	skills   map[string]apitypes.Skill
	dataRoot string

	db       *sqlite.DB
	embed    Embedder
	obs      *telemetry.Observability
	requests SkillRequestLogger
}

// New builds a Registry backed by db, rooted at dataRoot for per-skill
// data directories.
func New(db *sqlite.DB, embed Embedder, dataRoot string, obs *telemetry.Observability) *Registry {
	if obs == nil {
		obs = telemetry.New(nil, nil, nil)
	}
	return &Registry{
		skills:   make(map[string]apitypes.Skill),
		dataRoot: dataRoot,
		db:       db,
		embed:    embed,
		obs:      obs,
	}
}

// Register installs skill, assigning it a per-skill data directory and
// merging any previously persisted config before upserting metadata.
// Replacing an existing name is allowed and logged.
func (r *Registry) Register(ctx context.Context, skill apitypes.Skill) error {
	meta := skill.Metadata()
	if meta.Name == "" {
		return agierr.New(agierr.KindConfiguration, "skills: register requires a non-empty name")
	}

	dir := filepath.Join(r.dataRoot, meta.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "skills: create data directory", agierr.FromError(err))
	}

	patch, err := r.db.SkillConfig(ctx, meta.Name)
	if err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "skills: load persisted config", agierr.FromError(err))
	}
	if len(patch) > 0 {
		if _, err := r.db.PutSkillConfig(ctx, meta.Name, patch); err != nil {
			return agierr.Wrap(agierr.KindFatalSystem, "skills: persist merged config", agierr.FromError(err))
		}
	}

	if err := r.db.UpsertSkill(ctx, meta); err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "skills: upsert metadata", agierr.FromError(err))
	}

	r.mu.Lock()
	_, replacing := r.skills[meta.Name]
	r.skills[meta.Name] = skill
	r.mu.Unlock()

	r.obs.LogOperation(ctx, telemetry.OperationEvent{
		Component: "skills", Operation: "register", Outcome: telemetry.OutcomeSuccess,
		Query: fmt.Sprintf("name=%s replacing=%t", meta.Name, replacing),
	})
	return nil
}

// SetRequestLogger attaches the skill-request log a not-found Get
// feeds. Optional: when unset, Get returns its error without recording
// anything.
func (r *Registry) SetRequestLogger(requests SkillRequestLogger) {
	r.requests = requests
}

// Get returns the live skill instance for name. A miss is logged to
// the skill-request backlog the Reviewer's background loop consumes,
// so repeated requests for a capability the catalog lacks eventually
// trigger a remote-install or generative-creation attempt.
func (r *Registry) Get(name string) (apitypes.Skill, error) {
	r.mu.RLock()
	s, ok := r.skills[name]
	r.mu.RUnlock()
	if !ok {
		if r.requests != nil {
			_ = r.requests.IncrementSkillRequest(context.Background(), name)
		}
		return nil, agierr.Newf(agierr.KindValidation, "skills: %q is not registered", name)
	}
	return s, nil
}

// List returns metadata for every registered skill, optionally
// including those disabled via their persisted config.
func (r *Registry) List(ctx context.Context, includeDisabled bool) ([]apitypes.SkillMetadata, error) {
	r.mu.RLock()
	names := make([]string, 0, len(r.skills))
	for name := range r.skills {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	out := make([]apitypes.SkillMetadata, 0, len(names))
	for _, name := range names {
		if !includeDisabled && !r.enabled(ctx, name) {
			continue
		}
		r.mu.RLock()
		s := r.skills[name]
		r.mu.RUnlock()
		out = append(out, s.Metadata())
	}
	return out, nil
}

func (r *Registry) enabled(ctx context.Context, name string) bool {
	cfg, err := r.db.SkillConfig(ctx, name)
	if err != nil {
		return true
	}
	v, ok := cfg["enabled"]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	return !ok || b
}

// UpdateConfig merges patch into name's persisted config and returns
// the resulting merged map.
func (r *Registry) UpdateConfig(ctx context.Context, name string, patch map[string]any) (map[string]any, error) {
	if _, err := r.Get(name); err != nil {
		return nil, err
	}
	merged, err := r.db.PutSkillConfig(ctx, name, patch)
	if err != nil {
		return nil, agierr.Wrap(agierr.KindFatalSystem, "skills: update config", agierr.FromError(err))
	}
	return merged, nil
}

// EnsureEmbeddings computes and persists an embedding for every
// registered skill currently missing one, using the Model Router.
func (r *Registry) EnsureEmbeddings(ctx context.Context) error {
	if r.embed == nil {
		return nil
	}
	r.mu.RLock()
	metas := make([]apitypes.SkillMetadata, 0, len(r.skills))
	for _, s := range r.skills {
		metas = append(metas, s.Metadata())
	}
	r.mu.RUnlock()

	for _, meta := range metas {
		if _, err := r.db.Embedding(ctx, meta.Name); err == nil {
			continue
		}
		vec, err := r.embed.Embed(ctx, meta.Description)
		if err != nil {
			if agierr.IsKind(err, agierr.KindConfiguration) {
				return nil
			}
			return agierr.Wrap(agierr.KindTransientModel, "skills: embed "+meta.Name, agierr.FromError(err))
		}
		if err := r.db.PutEmbedding(ctx, meta.Name, vec); err != nil {
			return agierr.Wrap(agierr.KindFatalSystem, "skills: persist embedding", agierr.FromError(err))
		}
	}
	return nil
}

// LoadDirectory scans root for skill directories, each containing a
// SKILL.md with YAML frontmatter plus a top-level or scripts/-nested
// entry point, and registers each one found.
func (r *Registry) LoadDirectory(ctx context.Context, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "skills: read directory", agierr.FromError(err))
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		manifestPath := filepath.Join(dir, "SKILL.md")
		manifest, err := os.ReadFile(manifestPath)
		if err != nil {
			continue // no manifest, not a skill directory
		}
		entryPoint, hasEntry := findEntryPoint(dir)
		if !hasEntry {
			continue
		}
		skill, err := newManifestSkill(entry.Name(), dir, entryPoint, manifest)
		if err != nil {
			return err
		}
		if err := r.Register(ctx, skill); err != nil {
			return err
		}
	}
	return nil
}

func findEntryPoint(dir string) (string, bool) {
	candidates := []string{
		filepath.Join(dir, "main.sh"),
		filepath.Join(dir, "run.sh"),
		filepath.Join(dir, "scripts", "main.sh"),
		filepath.Join(dir, "scripts", "run.sh"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}

// RetrieveRelevant implements the retrieval algorithm: vector cosine
// similarity scaled into [0.5, 1.0] combined additively with lexical
// boosts, then either highest-overall (when category is supplied) or a
// one-skill-per-category diversity filter, returning the top limit.
func (r *Registry) RetrieveRelevant(ctx context.Context, query string, limit int, category, subCategory string) ([]apitypes.SkillMetadata, error) {
	start := time.Now()
	ctx, span := r.obs.StartSpan(ctx, "skills", "retrieve_relevant", attribute.String("query", query))
	var outcome telemetry.OperationOutcome
	var opErr error
	var count int
	defer func() {
		r.obs.LogOperation(ctx, telemetry.OperationEvent{
			Component: "skills", Operation: "retrieve_relevant", Query: query,
			Duration: time.Since(start), Outcome: outcome, ResultCount: count,
		})
		r.obs.EndSpan(span, outcome, opErr)
	}()

	if limit <= 0 {
		limit = 5
	}

	metas, err := r.List(ctx, false)
	if err != nil {
		outcome, opErr = telemetry.OutcomeError, err
		return nil, err
	}

	scores := make(map[string]float64, len(metas))

	if r.embed != nil {
		if qvec, err := r.embed.Embed(ctx, query); err == nil {
			allVecs := make(map[string][]float32, len(metas))
			for _, m := range metas {
				if v, err := r.db.Embedding(ctx, m.Name); err == nil {
					allVecs[m.Name] = v
				}
			}
			ranked := rankByCosine(qvec, allVecs)
			top := 2 * limit
			if top > len(ranked) {
				top = len(ranked)
			}
			for _, rv := range ranked[:top] {
				scores[rv.name] = 0.5 + 0.5*rv.score
			}
		}
	}

	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)
	for _, m := range metas {
		scores[m.Name] += lexicalBoost(m, category, subCategory, queryLower, queryWords)
	}

	type scored struct {
		meta  apitypes.SkillMetadata
		score float64
	}
	byName := make(map[string]apitypes.SkillMetadata, len(metas))
	for _, m := range metas {
		byName[m.Name] = m
	}

	var ranked []scored
	for name, s := range scores {
		if m, ok := byName[name]; ok {
			ranked = append(ranked, scored{meta: m, score: s})
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	var result []apitypes.SkillMetadata
	if category != "" {
		for _, s := range ranked {
			result = append(result, s.meta)
			if len(result) == limit {
				break
			}
		}
	} else {
		seen := make(map[string]bool)
		var diverse []scored
		for _, s := range ranked {
			if seen[s.meta.Category] {
				continue
			}
			seen[s.meta.Category] = true
			diverse = append(diverse, s)
		}
		sort.Slice(diverse, func(i, j int) bool { return diverse[i].score > diverse[j].score })
		for _, s := range diverse {
			result = append(result, s.meta)
			if len(result) == limit {
				break
			}
		}
	}

	outcome, count = telemetry.OutcomeSuccess, len(result)
	return result, nil
}

// lexicalBoost implements the Skill Registry's lexical scoring rules:
// +0.8 category match, +0.4 sub-category match, +0.3 category substring
// in query, +0.1 sub-category substring in query, and a single +0.3 when
// any query word longer than three characters appears in the description.
func lexicalBoost(m apitypes.SkillMetadata, category, subCategory, queryLower string, queryWords []string) float64 {
	var boost float64
	if category != "" && strings.EqualFold(m.Category, category) {
		boost += 0.8
	}
	if subCategory != "" && strings.EqualFold(m.SubCategory, subCategory) {
		boost += 0.4
	}
	if m.Category != "" && strings.Contains(queryLower, strings.ToLower(m.Category)) {
		boost += 0.3
	}
	if m.SubCategory != "" && strings.Contains(queryLower, strings.ToLower(m.SubCategory)) {
		boost += 0.1
	}
	descLower := strings.ToLower(m.Description)
	for _, w := range queryWords {
		if len(w) > 3 && strings.Contains(descLower, w) {
			boost += 0.3
			break
		}
	}
	return boost
}
