// Package perception implements the Perception Layer: a registry of
// pluggable sensing modules queried on demand by the Planner (and any
// other caller) via semantic + lexical search, mirroring the Skill
// Registry's retrieval algorithm over a smaller, connect/perceive
// surface instead of execute.
package perception

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/store/sqlite"
	"github.com/kanephamphu/connex-agi/telemetry"
)

// Module is a pluggable sensing source: connect once, then answer
// perceive queries until disconnected.
type Module interface {
	Metadata() apitypes.PerceptionMetadata
	Connect(ctx context.Context) error
	Perceive(ctx context.Context, query string) (any, error)
	Disconnect(ctx context.Context) error
}

// GroundingFunc receives every successful perceive's result so a
// world-state consumer can anchor it. It must never block or fail the
// perceive call it observes — Layer invokes it in its own goroutine and
// discards any error.
type GroundingFunc func(moduleName string, result any)

// Embedder is the subset of model.Router the layer needs for semantic
// search; satisfied by *model.Router.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Layer manages registered Modules: connection lifecycle, metadata
// persistence, and combined semantic/lexical search.
type Layer struct {
	mu       sync.RWMutex
	modules  map[string]Module
	grounder GroundingFunc

	db    *sqlite.DB
	embed Embedder
	obs   *telemetry.Observability
}

// New builds a Layer backed by db for metadata/embedding persistence.
func New(db *sqlite.DB, embed Embedder, obs *telemetry.Observability) *Layer {
	if obs == nil {
		obs = telemetry.New(nil, nil, nil)
	}
	return &Layer{
		modules: make(map[string]Module),
		db:      db,
		embed:   embed,
		obs:     obs,
	}
}

// SetGroundingCallback installs the world-state forwarding hook used by
// Perceive. Passing nil disables forwarding.
func (l *Layer) SetGroundingCallback(fn GroundingFunc) {
	l.mu.Lock()
	l.grounder = fn
	l.mu.Unlock()
}

// Register installs module, upserting its metadata into SQLite. An
// existing registration under the same name is replaced.
func (l *Layer) Register(ctx context.Context, module Module) error {
	meta := module.Metadata()
	if meta.Name == "" {
		return agierr.New(agierr.KindConfiguration, "perception: register requires a non-empty name")
	}
	meta.Type = "perception"

	l.mu.Lock()
	l.modules[meta.Name] = module
	l.mu.Unlock()

	if err := l.db.UpsertPerception(ctx, meta); err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "perception: upsert metadata", agierr.FromError(err))
	}
	l.obs.LogOperation(ctx, telemetry.OperationEvent{
		Component: "perception", Operation: "register", Outcome: telemetry.OutcomeSuccess,
		Query: fmt.Sprintf("name=%s", meta.Name),
	})
	return nil
}

// GetModule returns the live module instance registered under name.
func (l *Layer) GetModule(name string) (Module, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.modules[name]
	return m, ok
}

// AvailableSensors returns every registered module name mapped to its
// description.
func (l *Layer) AvailableSensors() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.modules))
	for name, m := range l.modules {
		out[name] = m.Metadata().Description
	}
	return out
}

// Perceive connects name on first use, gathers its observation for
// query, and — if a grounding callback is installed — forwards the
// result to it asynchronously. The forward never blocks or fails the
// perceive call.
func (l *Layer) Perceive(ctx context.Context, name, query string) (any, error) {
	l.mu.RLock()
	module, ok := l.modules[name]
	grounder := l.grounder
	l.mu.RUnlock()
	if !ok {
		return nil, agierr.Newf(agierr.KindConfiguration, "perception: module %q not found", name)
	}

	if err := module.Connect(ctx); err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "perception: connect", agierr.FromError(err))
	}

	result, err := module.Perceive(ctx, query)
	if err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "perception: perceive", agierr.FromError(err))
	}

	if grounder != nil {
		go func() {
			defer func() { _ = recover() }()
			grounder(name, result)
		}()
	}
	return result, nil
}

// EnsureEmbeddings computes and persists an embedding for every
// registered module that lacks one.
func (l *Layer) EnsureEmbeddings(ctx context.Context) error {
	if l.embed == nil {
		return nil
	}
	l.mu.RLock()
	modules := make([]Module, 0, len(l.modules))
	for _, m := range l.modules {
		modules = append(modules, m)
	}
	l.mu.RUnlock()

	for _, m := range modules {
		meta := m.Metadata()
		if _, err := l.db.PerceptionEmbedding(ctx, meta.Name); err == nil {
			continue
		}
		text := fmt.Sprintf("Perception Module %s: %s. Category: %s/%s (v%s)",
			meta.Name, meta.Description, meta.Category, meta.SubCategory, meta.Version)
		vec, err := l.embed.Embed(ctx, text)
		if err != nil {
			continue
		}
		_ = l.db.PutPerceptionEmbedding(ctx, meta.Name, vec)
	}
	return nil
}

// SearchSensors implements the retrieval algorithm: vector cosine
// similarity scaled into [0.5, 1.0] combined additively with the same
// lexical boost scheme as the Skill Registry, then a one-per-category
// diversity filter over the top limit results.
func (l *Layer) SearchSensors(ctx context.Context, query string, limit int) ([]string, error) {
	start := time.Now()
	ctx, span := l.obs.StartSpan(ctx, "perception", "search_sensors", attribute.String("query", query))
	var outcome telemetry.OperationOutcome
	var opErr error
	var count int
	defer func() {
		l.obs.LogOperation(ctx, telemetry.OperationEvent{
			Component: "perception", Operation: "search_sensors", Query: query,
			Duration: time.Since(start), Outcome: outcome, ResultCount: count,
		})
		l.obs.EndSpan(span, outcome, opErr)
	}()

	if limit <= 0 {
		limit = 5
	}

	l.mu.RLock()
	metas := make([]apitypes.PerceptionMetadata, 0, len(l.modules))
	for _, m := range l.modules {
		metas = append(metas, m.Metadata())
	}
	l.mu.RUnlock()

	if query == "" {
		sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
		var names []string
		for i, m := range metas {
			if i == limit {
				break
			}
			names = append(names, m.Name)
		}
		outcome, count = telemetry.OutcomeSuccess, len(names)
		return names, nil
	}

	scores := make(map[string]float64, len(metas))

	if l.embed != nil {
		if qvec, err := l.embed.Embed(ctx, query); err == nil {
			allVecs := make(map[string][]float32, len(metas))
			for _, m := range metas {
				if v, err := l.db.PerceptionEmbedding(ctx, m.Name); err == nil {
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
		scores[m.Name] += lexicalBoost(m, queryLower, queryWords)
	}

	type scored struct {
		meta  apitypes.PerceptionMetadata
		score float64
	}
	byName := make(map[string]apitypes.PerceptionMetadata, len(metas))
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

	var names []string
	for _, s := range diverse {
		names = append(names, s.meta.Name)
		if len(names) == limit {
			break
		}
	}
	outcome, count = telemetry.OutcomeSuccess, len(names)
	return names, nil
}

// lexicalBoost scores m against query: +0.5 category match, +0.3
// sub-category match, and a single +0.3 when any query word longer than
// three characters appears in the description.
func lexicalBoost(m apitypes.PerceptionMetadata, queryLower string, queryWords []string) float64 {
	var boost float64
	category := strings.ToLower(m.Category)
	subCategory := strings.ToLower(m.SubCategory)
	if category != "" && (strings.Contains(category, queryLower) || strings.Contains(queryLower, category)) {
		boost += 0.5
	}
	if subCategory != "" && (strings.Contains(subCategory, queryLower) || strings.Contains(queryLower, subCategory)) {
		boost += 0.3
	}
	desc := strings.ToLower(m.Description)
	for _, w := range queryWords {
		if len(w) > 3 && strings.Contains(desc, w) {
			boost += 0.3
			break
		}
	}
	return boost
}

type rankedVec struct {
	name  string
	score float64
}

func rankByCosine(query []float32, vectors map[string][]float32) []rankedVec {
	out := make([]rankedVec, 0, len(vectors))
	for name, v := range vectors {
		out = append(out, rankedVec{name: name, score: cosine(query, v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// LoadDirectory loads dynamic perception modules the same way the
// Skill Registry does: one subdirectory per module, gated by a
// manifest file and a shell entry point, executed out-of-process by
// the runner each perceive call builds. A dynamic module directory
// that lacks either is silently skipped, matching the Skill Registry's
// tolerant scan.
func (l *Layer) LoadDirectory(ctx context.Context, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "perception: read directory", agierr.FromError(err))
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		manifestPath := filepath.Join(dir, "PERCEPTION.md")
		manifest, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}
		entryPoint, ok := findEntryPoint(dir)
		if !ok {
			continue
		}
		module, err := newManifestModule(entry.Name(), dir, entryPoint, manifest)
		if err != nil {
			return err
		}
		if err := l.Register(ctx, module); err != nil {
			return err
		}
	}
	return nil
}

func findEntryPoint(dir string) (string, bool) {
	candidates := []string{
		filepath.Join(dir, "system.sh"),
		filepath.Join(dir, "scripts", "system.sh"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, true
		}
	}
	return "", false
}
