package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/model"
)

// scriptedClient returns canned replies in order, one per Chat call, and
// replays the same text as a single StreamChat chunk.
type scriptedClient struct {
	replies []string
	calls   int
}

func (c *scriptedClient) Chat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int) (string, error) {
	reply := c.replies[c.calls%len(c.replies)]
	c.calls++
	return reply, nil
}

func (c *scriptedClient) StreamChat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int, onChunk func(model.Chunk) error) error {
	reply := c.replies[c.calls%len(c.replies)]
	c.calls++
	return onChunk(model.Chunk{Text: reply, Done: true})
}

func (c *scriptedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, model.ErrEmbedUnsupported
}

func (c *scriptedClient) ClassifyIntent(ctx context.Context, goal string, recentHistory []model.Message) (model.Intent, error) {
	return model.IntentChat, nil
}

func (c *scriptedClient) Name() string { return "scripted" }

func newTestRouter(replies ...string) *model.Router {
	client := &scriptedClient{replies: replies}
	table := map[model.TaskClass][]model.ProviderEntry{
		model.TaskPlanning: {{Client: client}},
		model.TaskFast:     {{Client: client}},
	}
	return model.NewRouter(table)
}

const validPlanJSON = `{
  "reasoning": "two steps",
  "actions": [
    {"id": "action_1", "skill": "web_search", "description": "search", "inputs": {"query": "weather"}, "depends_on": []},
    {"id": "action_2", "skill": "chat_response", "description": "reply", "inputs": {}, "depends_on": ["action_1"]}
  ],
  "expected_outcome": "the user gets an answer"
}`

var testSkills = []apitypes.SkillMetadata{
	{Name: "web_search", Description: "search the web"},
	{Name: "chat_response", Description: "reply to the user"},
}

func TestCreatePlanParsesValidPlanJSON(t *testing.T) {
	router := newTestRouter(`{"search_phrase": ""}`, validPlanJSON)
	p, err := New(router, nil, nil)
	require.NoError(t, err)

	plan, err := p.CreatePlan(context.Background(), "what's the weather", nil, testSkills)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)
	require.Equal(t, "action_1", plan.Actions[0].ID)
	require.Equal(t, []string{"action_1"}, plan.Actions[1].DependsOn)
}

func TestCreatePlanRejectsUnknownSkill(t *testing.T) {
	bad := `{"reasoning": "x", "actions": [{"id": "a", "skill": "not_a_real_skill", "description": "d"}], "expected_outcome": "y"}`
	router := newTestRouter(`{"search_phrase": ""}`, bad)
	p, err := New(router, nil, nil)
	require.NoError(t, err)

	_, err = p.CreatePlan(context.Background(), "goal", nil, testSkills)
	require.Error(t, err)
}

func TestCreatePlanRejectsCycle(t *testing.T) {
	cyclic := `{
		"reasoning": "x",
		"actions": [
			{"id": "a", "skill": "web_search", "description": "d", "depends_on": ["b"]},
			{"id": "b", "skill": "web_search", "description": "d", "depends_on": ["a"]}
		],
		"expected_outcome": "y"
	}`
	router := newTestRouter(`{"search_phrase": ""}`, cyclic)
	p, err := New(router, nil, nil)
	require.NoError(t, err)

	_, err = p.CreatePlan(context.Background(), "goal", nil, testSkills)
	require.Error(t, err)
}

func TestCreatePlanExtractsJSONFromFencedBlock(t *testing.T) {
	fenced := "Here is the plan:\n```json\n" + validPlanJSON + "\n```\nDone."
	router := newTestRouter(`{"search_phrase": ""}`, fenced)
	p, err := New(router, nil, nil)
	require.NoError(t, err)

	plan, err := p.CreatePlan(context.Background(), "goal", nil, testSkills)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)
}

type stubSensors struct {
	names []string
	data  map[string]any
}

func (s stubSensors) SearchSensors(ctx context.Context, query string, limit int) ([]string, error) {
	return s.names, nil
}

func (s stubSensors) Perceive(ctx context.Context, name, query string) (any, error) {
	return s.data[name], nil
}

func TestCreatePlanFoldsSensorContextWhenSearchPhraseNonEmpty(t *testing.T) {
	router := newTestRouter(`{"search_phrase": "local weather"}`, validPlanJSON)
	sensors := stubSensors{names: []string{"weather"}, data: map[string]any{"weather": map[string]any{"temp_c": 21}}}
	p, err := New(router, sensors, nil)
	require.NoError(t, err)

	plan, err := p.CreatePlan(context.Background(), "what's the weather", nil, testSkills)
	require.NoError(t, err)
	ctx, ok := plan.Metadata["context"].(map[string]any)
	require.True(t, ok)
	require.Contains(t, ctx, "sensor_data")
}

func TestCreatePlanStreamingEmitsPlanCompleteEvent(t *testing.T) {
	router := newTestRouter(`{"search_phrase": ""}`, validPlanJSON)
	p, err := New(router, nil, nil)
	require.NoError(t, err)

	var types []StreamEventType
	var finalPlan apitypes.Plan
	for ev := range p.CreatePlanStreaming(context.Background(), "goal", nil, testSkills) {
		types = append(types, ev.Type)
		if ev.Type == StreamEventPlanComplete {
			finalPlan = ev.Plan
		}
	}

	require.Equal(t, StreamEventPlanningStarted, types[0])
	require.Equal(t, StreamEventPlanComplete, types[len(types)-1])
	require.Len(t, finalPlan.Actions, 2)
}

func TestCreatePlanStreamingEmitsPlanningErrorOnBadJSON(t *testing.T) {
	router := newTestRouter(`{"search_phrase": ""}`, "not json at all")
	p, err := New(router, nil, nil)
	require.NoError(t, err)

	var last StreamEvent
	for ev := range p.CreatePlanStreaming(context.Background(), "goal", nil, testSkills) {
		last = ev
	}
	require.Equal(t, StreamEventPlanningError, last.Type)
}

func TestReplanBuildsContinuationGoalFromFailure(t *testing.T) {
	router := newTestRouter(`{"search_phrase": ""}`, validPlanJSON)
	p, err := New(router, nil, nil)
	require.NoError(t, err)

	original := apitypes.Plan{
		Goal: "book a trip",
		Actions: []apitypes.Action{
			{ID: "action_1", Skill: "web_search"},
			{ID: "action_2", Skill: "chat_response"},
		},
	}

	plan, err := p.Replan(context.Background(), original, "action_2", "timeout", []string{"action_1"})
	require.NoError(t, err)
	require.Len(t, plan.Actions, 2)
}
