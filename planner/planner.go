// Package planner turns a natural-language goal into an apitypes.Plan:
// an executable DAG of skill invocations. It gathers best-effort sensor
// context, renders a system prompt enumerating the candidate skills,
// calls the configured planning model, and validates the model's JSON
// response against both a JSON Schema and the plan's structural
// invariants (acyclic, every dependency and skill name resolved).
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/model"
	"github.com/kanephamphu/connex-agi/telemetry"
)

const contextGatherSystemPrompt = "You are a context-aware system. Output JSON only."

// SensorContext is the best-effort, semantically-searched environmental
// context the Planner folds into its user prompt before calling the
// planning model.
type SensorContext interface {
	// SearchSensors returns up to limit registered sensor names ranked
	// by relevance to query.
	SearchSensors(ctx context.Context, query string, limit int) ([]string, error)
	// Perceive fetches the current reading of the named sensor.
	Perceive(ctx context.Context, name, query string) (any, error)
}

// Planner decomposes goals into apitypes.Plan values using the
// Router's planning-tier model.
type Planner struct {
	router  *model.Router
	sensors SensorContext
	obs     *telemetry.Observability
	schema  *jsonschema.Schema
}

// New builds a Planner. sensors may be nil, in which case the search
// phrase is still requested but no sensor is searched or perceived.
func New(router *model.Router, sensors SensorContext, obs *telemetry.Observability) (*Planner, error) {
	schema, err := compilePlanSchema()
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}
	if obs == nil {
		obs = telemetry.New(nil, nil, nil)
	}
	return &Planner{router: router, sensors: sensors, obs: obs, schema: schema}, nil
}

// CreatePlan builds a Plan for goal given baseContext and the skills
// the model is allowed to reference.
func (p *Planner) CreatePlan(ctx context.Context, goal string, baseContext map[string]any, skills []apitypes.SkillMetadata) (apitypes.Plan, error) {
	ctx, span := p.obs.StartSpan(ctx, "planner", "create_plan")

	fullContext := p.gatherContext(ctx, goal, baseContext)

	systemPrompt, err := renderSystemPrompt(skills)
	if err != nil {
		p.obs.EndSpan(span, telemetry.OutcomeError, err)
		return apitypes.Plan{}, err
	}
	userPrompt := buildUserPrompt(goal, fullContext)

	reply, err := p.router.Chat(ctx, model.TaskPlanning, []model.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: userPrompt},
	}, 0.2, 4000)
	if err != nil {
		err = fmt.Errorf("planning model call failed: %w", err)
		p.obs.EndSpan(span, telemetry.OutcomeError, err)
		return apitypes.Plan{}, err
	}

	knownSkills := skillNameSet(skills)
	doc, err := validatePlan(p.schema, extractPlanJSON(reply), knownSkills)
	if err != nil {
		err = fmt.Errorf("planning failed: %w", err)
		p.obs.EndSpan(span, telemetry.OutcomeError, err)
		return apitypes.Plan{}, err
	}

	p.obs.EndSpan(span, telemetry.OutcomeSuccess, nil)
	return toPlan(goal, doc, map[string]any{
		"planner": "brain_planner",
		"context": fullContext,
	}), nil
}

// StreamEventType names the phase a StreamEvent reports.
type StreamEventType string

const (
	StreamEventPlanningStarted StreamEventType = "planning_started"
	StreamEventContextGathered StreamEventType = "context_gathered"
	StreamEventReasoningToken  StreamEventType = "reasoning_token"
	StreamEventPlanComplete    StreamEventType = "plan_complete"
	StreamEventPlanningError   StreamEventType = "planning_error"
)

// StreamEvent is one progress notification from CreatePlanStreaming.
type StreamEvent struct {
	Type StreamEventType

	Goal           string
	SensorContext  map[string]any
	Token          string
	PartialContent string
	Plan           apitypes.Plan
	Error          string
}

// CreatePlanStreaming mirrors CreatePlan but streams reasoning tokens as
// the model produces them, closing events once a plan_complete or
// planning_error event has been sent.
func (p *Planner) CreatePlanStreaming(ctx context.Context, goal string, baseContext map[string]any, skills []apitypes.SkillMetadata) <-chan StreamEvent {
	events := make(chan StreamEvent, 8)

	go func() {
		defer close(events)

		events <- StreamEvent{Type: StreamEventPlanningStarted, Goal: goal}

		fullContext := p.gatherContext(ctx, goal, baseContext)
		if len(fullContext) > 0 {
			events <- StreamEvent{Type: StreamEventContextGathered, SensorContext: fullContext}
		}

		systemPrompt, err := renderSystemPrompt(skills)
		if err != nil {
			events <- StreamEvent{Type: StreamEventPlanningError, Error: err.Error()}
			return
		}
		userPrompt := buildUserPrompt(goal, fullContext)

		var content strings.Builder
		err = p.router.StreamChat(ctx, model.TaskPlanning, []model.Message{
			{Role: model.RoleSystem, Content: systemPrompt},
			{Role: model.RoleUser, Content: userPrompt},
		}, 0.2, 4000, func(chunk model.Chunk) error {
			if chunk.Text == "" {
				return nil
			}
			content.WriteString(chunk.Text)
			events <- StreamEvent{Type: StreamEventReasoningToken, Token: chunk.Text, PartialContent: content.String()}
			return nil
		})
		if err != nil {
			events <- StreamEvent{Type: StreamEventPlanningError, Error: err.Error()}
			return
		}

		knownSkills := skillNameSet(skills)
		doc, err := validatePlan(p.schema, extractPlanJSON(content.String()), knownSkills)
		if err != nil {
			events <- StreamEvent{Type: StreamEventPlanningError, Error: fmt.Sprintf("failed to parse plan JSON: %v", err)}
			return
		}

		plan := toPlan(goal, doc, map[string]any{"planner": "brain_planner"})
		events <- StreamEvent{Type: StreamEventPlanComplete, Plan: plan}
	}()

	return events
}

// Replan builds a continuation plan for the remaining work after a
// MAJOR-priority action failure, satisfying orchestrator.Replanner.
func (p *Planner) Replan(ctx context.Context, original apitypes.Plan, failedAction, errorMessage string, completedSteps []string) (apitypes.Plan, error) {
	completed := make(map[string]bool, len(completedSteps))
	for _, id := range completedSteps {
		completed[id] = true
	}

	remaining := make([]string, 0, len(original.Actions))
	for _, a := range original.Actions {
		if a.ID == failedAction || completed[a.ID] {
			continue
		}
		remaining = append(remaining, a.ID)
	}

	var goal strings.Builder
	fmt.Fprintf(&goal, "Continue working on: %s\n", original.Goal)
	fmt.Fprintf(&goal, "Previous attempt failed at step '%s' with error: %s\n", failedAction, errorMessage)
	fmt.Fprintf(&goal, "Completed steps: %s", strings.Join(completedSteps, ", "))

	replanContext := map[string]any{
		"original_goal":      original.Goal,
		"completed_actions":  completedSteps,
		"failed_action":      failedAction,
		"error":              errorMessage,
		"remaining_actions":  remaining,
	}

	skills := skillsFromPlanMetadata(original)
	return p.CreatePlan(ctx, goal.String(), replanContext, skills)
}

// gatherContext asks the fast model for a short search phrase
// describing the environmental information the goal needs, searches
// registered sensors for matches, and perceives each match. Any
// failure along this path degrades silently to an empty map; planning
// must proceed regardless.
func (p *Planner) gatherContext(ctx context.Context, goal string, base map[string]any) map[string]any {
	result := make(map[string]any, len(base)+1)
	for k, v := range base {
		result[k] = v
	}

	phrase, err := p.searchPhrase(ctx, goal)
	if err != nil || phrase == "" {
		return result
	}

	if p.sensors == nil {
		return result
	}

	names, err := p.sensors.SearchSensors(ctx, phrase, 5)
	if err != nil || len(names) == 0 {
		return result
	}

	sensorData := make(map[string]any, len(names))
	for _, name := range names {
		data, err := p.sensors.Perceive(ctx, name, phrase)
		if err != nil {
			continue
		}
		sensorData[name] = data
	}
	if len(sensorData) > 0 {
		result["sensor_data"] = sensorData
	}
	return result
}

type searchPhraseResponse struct {
	SearchPhrase string `json:"search_phrase"`
}

func (p *Planner) searchPhrase(ctx context.Context, goal string) (string, error) {
	prompt := fmt.Sprintf(
		"Goal: %s\n"+
			"Identify what kind of environmental information is needed to achieve this goal.\n"+
			"Return a JSON object with a key 'search_phrase' containing a short natural language phrase describing the needed context (e.g. 'local weather conditions'). Return empty string if none.",
		goal,
	)

	reply, err := p.router.Chat(ctx, model.TaskFast, []model.Message{
		{Role: model.RoleSystem, Content: contextGatherSystemPrompt},
		{Role: model.RoleUser, Content: prompt},
	}, 0.0, 200)
	if err != nil {
		return "", err
	}

	var parsed searchPhraseResponse
	if err := json.Unmarshal(extractPlanJSON(reply), &parsed); err != nil {
		return "", err
	}
	return parsed.SearchPhrase, nil
}

func skillNameSet(skills []apitypes.SkillMetadata) map[string]bool {
	set := make(map[string]bool, len(skills))
	for _, s := range skills {
		set[s.Name] = true
	}
	return set
}

func skillsFromPlanMetadata(plan apitypes.Plan) []apitypes.SkillMetadata {
	seen := make(map[string]bool)
	var skills []apitypes.SkillMetadata
	for _, a := range plan.Actions {
		if seen[a.Skill] {
			continue
		}
		seen[a.Skill] = true
		skills = append(skills, apitypes.SkillMetadata{Name: a.Skill})
	}
	return skills
}

// extractPlanJSON mirrors the corrector's tolerant three-stage parse:
// raw JSON first, then a ```json fenced block, then the first '{' to
// last '}' span. Returns the original text unchanged if none of these
// extraction strategies apply, so the caller's own JSON error reports
// the real parse failure.
func extractPlanJSON(text string) []byte {
	trimmed := strings.TrimSpace(text)
	if json.Valid([]byte(trimmed)) {
		return []byte(trimmed)
	}

	if idx := strings.Index(text, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end != -1 {
			snippet := strings.TrimSpace(text[start : start+end])
			if json.Valid([]byte(snippet)) {
				return []byte(snippet)
			}
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return []byte(text[start : end+1])
	}
	return []byte(text)
}
