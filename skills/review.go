package skills

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/model"
	"github.com/kanephamphu/connex-agi/telemetry"
)

// RequestSource is the subset of the Config/KV Store the review loop
// needs to drain and transition the skill_requests log; satisfied by
// *config.Store.
type RequestSource interface {
	SkillRequestsByStatus(ctx context.Context, status apitypes.SkillRequestStatus) ([]string, error)
	SetSkillRequestStatus(ctx context.Context, query string, status apitypes.SkillRequestStatus) error
}

// ReviewerConfig tunes the background loop's cadence and the
// acceptance bar a remote candidate must clear before auto-install.
type ReviewerConfig struct {
	Interval     time.Duration
	MinRating    float64
	MinDownloads int
	BatchSize    int
}

// DefaultReviewerConfig reviews every five minutes, requires a rating
// of at least 4.0 and 50 downloads before trusting a remote skill, and
// drains at most five pending requests per cycle.
func DefaultReviewerConfig() ReviewerConfig {
	return ReviewerConfig{Interval: 5 * time.Minute, MinRating: 4.0, MinDownloads: 50, BatchSize: 5}
}

// Reviewer runs the background skill-review loop: periodically
// inspects queries no installed skill could satisfy, tries to install
// a well-rated remote skill for each, and falls back to a
// generatively-authored stand-in skill when no remote candidate
// qualifies.
type Reviewer struct {
	registry *Registry
	requests RequestSource
	remote   *RegistryClient
	router   Chatter
	cfg      ReviewerConfig
	obs      *telemetry.Observability
}

// NewReviewer builds a Reviewer. remote may be built with an empty
// base URL, in which case every query falls straight through to
// generative creation.
func NewReviewer(registry *Registry, requests RequestSource, remote *RegistryClient, router Chatter, cfg ReviewerConfig, obs *telemetry.Observability) *Reviewer {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if obs == nil {
		obs = telemetry.New(nil, nil, nil)
	}
	return &Reviewer{registry: registry, requests: requests, remote: remote, router: router, cfg: cfg, obs: obs}
}

// Start runs the review cycle on a ticker until ctx is cancelled. A
// cycle error backs off a flat minute rather than tearing the loop
// down, so a transient registry outage never blocks the main
// execution loop this runs alongside.
func (r *Reviewer) Start(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.runCycle(ctx); err != nil {
				r.obs.LogOperation(ctx, telemetry.OperationEvent{
					Component: "skills", Operation: "review_cycle", Outcome: telemetry.OutcomeError,
				})
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Minute):
				}
			}
		}
	}
}

func (r *Reviewer) runCycle(ctx context.Context) error {
	pending, err := r.requests.SkillRequestsByStatus(ctx, apitypes.SkillRequestPending)
	if err != nil {
		return fmt.Errorf("skills: list pending skill requests: %w", err)
	}
	if len(pending) > r.cfg.BatchSize {
		pending = pending[:r.cfg.BatchSize]
	}

	for _, query := range pending {
		if err := r.reviewOne(ctx, query); err != nil {
			r.obs.LogOperation(ctx, telemetry.OperationEvent{
				Component: "skills", Operation: "review_one", Query: query, Outcome: telemetry.OutcomeError,
			})
		}
	}
	return nil
}

// reviewOne implements the per-query decision: search the remote
// registry with the configured rating/download floor, install the
// first candidate that clears it, and otherwise invoke the generative
// fallback. Either branch transitions the request out of pending so
// it is not retried every cycle.
func (r *Reviewer) reviewOne(ctx context.Context, query string) error {
	if candidate, ok := r.bestRemoteCandidate(ctx, query); ok {
		if err := r.installRemote(ctx, query, candidate); err != nil {
			return err
		}
		return r.requests.SetSkillRequestStatus(ctx, query, apitypes.SkillRequestFoundRemote)
	}

	if err := r.generateSkill(ctx, query); err != nil {
		return err
	}
	return r.requests.SetSkillRequestStatus(ctx, query, apitypes.SkillRequestCreated)
}

func (r *Reviewer) bestRemoteCandidate(ctx context.Context, query string) (RemoteSkill, bool) {
	if r.remote == nil {
		return RemoteSkill{}, false
	}
	candidates, err := r.remote.Search(ctx, query, 10)
	if err != nil {
		return RemoteSkill{}, false
	}
	for _, c := range candidates {
		if c.Rating >= r.cfg.MinRating && c.Downloads >= r.cfg.MinDownloads {
			return c, true
		}
	}
	return RemoteSkill{}, false
}

func (r *Reviewer) installRemote(ctx context.Context, query string, candidate RemoteSkill) error {
	name := candidate.ScopedName
	if name == "" {
		name = candidate.Name
	}
	description := candidate.Description
	if description == "" {
		description = fmt.Sprintf("Installed from remote registry for requested capability: %s", query)
	}
	return r.registry.Register(ctx, newGeneratedSkill(r.router, sanitizeSkillName(name), description, query))
}

// generateSkill asks the router's fast tier to author a short
// capability description for query and registers it as a stand-in
// skill. A systems-language port has no sandboxed code-generation
// story, so the generative path produces a conversational fallback
// scoped to the missing capability rather than executing
// model-authored code.
func (r *Reviewer) generateSkill(ctx context.Context, query string) error {
	name := sanitizeSkillName(query)
	description := fmt.Sprintf("Auto-generated stand-in for requested capability: %s", query)
	if r.router != nil {
		messages := []model.Message{
			{Role: model.RoleSystem, Content: "Describe, in one sentence, a software capability that would satisfy the following user request. Answer with the description only."},
			{Role: model.RoleUser, Content: query},
		}
		if reply, err := r.router.Chat(ctx, model.TaskFast, messages, 0.2, 200); err == nil && reply != "" {
			description = reply
		}
	}
	return r.registry.Register(ctx, newGeneratedSkill(r.router, name, description, query))
}

// generatedSkill is the runtime stand-in the Reviewer installs, either
// mirroring an accepted remote candidate's description or a
// model-authored description of a missing capability. It answers
// through the shared conversational router rather than real tool
// code, keeping retrieval and config plumbing exercised for
// capabilities the system has not been taught to perform yet.
type generatedSkill struct {
	router Chatter
	meta   apitypes.SkillMetadata
}

func newGeneratedSkill(router Chatter, name, description, origin string) *generatedSkill {
	return &generatedSkill{
		router: router,
		meta: apitypes.SkillMetadata{
			Name:        name,
			Description: description,
			Category:    "generated",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
			},
			OutputSchema: map[string]any{"reply": "str"},
			Dependencies: []string{"skill_review:" + origin},
		},
	}
}

func (g *generatedSkill) Metadata() apitypes.SkillMetadata  { return g.meta }
func (g *generatedSkill) ValidateInputs(map[string]any) error { return nil }
func (g *generatedSkill) CheckConfig() error                  { return nil }

func (g *generatedSkill) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	query, _ := inputs["query"].(string)
	if query == "" {
		query = g.meta.Description
	}
	if g.router == nil {
		return map[string]any{"reply": g.meta.Description, "success": false}, nil
	}
	messages := []model.Message{
		{Role: model.RoleSystem, Content: "You stand in for a capability named " + g.meta.Name + ": " + g.meta.Description},
		{Role: model.RoleUser, Content: query},
	}
	reply, err := g.router.Chat(ctx, model.TaskFast, messages, 0.3, 500)
	if err != nil {
		return map[string]any{"reply": "", "success": false, "error": err.Error()}, nil
	}
	return map[string]any{"reply": reply, "success": true}, nil
}

// sanitizeSkillName turns an arbitrary query or remote scoped name
// into a valid registry key: lowercase ASCII letters, digits, and
// underscores only.
func sanitizeSkillName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := strings.Trim(b.String(), "_")
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	if name == "" {
		name = "generated_skill"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}
