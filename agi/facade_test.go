package agi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/memory"
	"github.com/kanephamphu/connex-agi/model"
	"github.com/kanephamphu/connex-agi/orchestrator"
	"github.com/kanephamphu/connex-agi/planner"
	"github.com/kanephamphu/connex-agi/reflex"
	"github.com/kanephamphu/connex-agi/sensors"
)

// fakeClient is a scripted model.Client returning a fixed intent and
// chat reply, recording every Chat call it receives.
type fakeClient struct {
	intent  model.Intent
	reply   string
	chatLog []string
}

func (c *fakeClient) Chat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int) (string, error) {
	c.chatLog = append(c.chatLog, messages[len(messages)-1].Content)
	return c.reply, nil
}
func (c *fakeClient) StreamChat(ctx context.Context, messages []model.Message, temperature float64, maxTokens int, onChunk func(model.Chunk) error) error {
	return onChunk(model.Chunk{Text: c.reply, Done: true})
}
func (c *fakeClient) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, model.ErrEmbedUnsupported
}
func (c *fakeClient) ClassifyIntent(ctx context.Context, goal string, recentHistory []model.Message) (model.Intent, error) {
	return c.intent, nil
}
func (c *fakeClient) Name() string { return "fake" }

func newTestRouter(intent model.Intent, reply string) (*model.Router, *fakeClient) {
	client := &fakeClient{intent: intent, reply: reply}
	table := map[model.TaskClass][]model.ProviderEntry{
		model.TaskFast:     {{Client: client}},
		model.TaskCreative: {{Client: client}},
		model.TaskPlanning: {{Client: client}},
	}
	return model.NewRouter(table), client
}

// fakeSkill is a minimal apitypes.Skill whose Execute returns a
// scripted output map.
type fakeSkill struct {
	name   string
	output map[string]any
	err    error
	calls  int
}

func (s *fakeSkill) Metadata() apitypes.SkillMetadata { return apitypes.SkillMetadata{Name: s.name} }
func (s *fakeSkill) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	s.calls++
	return s.output, s.err
}
func (s *fakeSkill) ValidateInputs(inputs map[string]any) error { return nil }
func (s *fakeSkill) CheckConfig() error                         { return nil }

type fakeSkillSource struct {
	byName    map[string]apitypes.Skill
	relevant  []apitypes.SkillMetadata
	retrieved bool
}

func (f *fakeSkillSource) Get(name string) (apitypes.Skill, error) {
	if s, ok := f.byName[name]; ok {
		return s, nil
	}
	return nil, errNotFound{name}
}
func (f *fakeSkillSource) RetrieveRelevant(ctx context.Context, query string, limit int, category, subCategory string) ([]apitypes.SkillMetadata, error) {
	f.retrieved = true
	return f.relevant, nil
}

type errNotFound struct{ name string }

func (e errNotFound) Error() string { return "skill not found: " + e.name }

type fakePlanner struct {
	plan       apitypes.Plan
	err        error
	calls      int
	streamPlan apitypes.Plan
}

func (p *fakePlanner) CreatePlan(ctx context.Context, goal string, baseContext map[string]any, skills []apitypes.SkillMetadata) (apitypes.Plan, error) {
	p.calls++
	return p.plan, p.err
}
func (p *fakePlanner) CreatePlanStreaming(ctx context.Context, goal string, baseContext map[string]any, skills []apitypes.SkillMetadata) <-chan planner.StreamEvent {
	events := make(chan planner.StreamEvent, 4)
	go func() {
		defer close(events)
		events <- planner.StreamEvent{Type: planner.StreamEventPlanningStarted, Goal: goal}
		events <- planner.StreamEvent{Type: planner.StreamEventPlanComplete, Plan: p.streamPlan}
	}()
	return events
}

type fakeOrchestrator struct {
	result      orchestrator.ExecutionResult
	calls       int
	streamEvent []orchestrator.Event
}

func (o *fakeOrchestrator) ExecutePlan(ctx context.Context, plan apitypes.Plan) orchestrator.ExecutionResult {
	o.calls++
	return o.result
}
func (o *fakeOrchestrator) ExecutePlanStreaming(ctx context.Context, plan apitypes.Plan) <-chan orchestrator.Event {
	events := make(chan orchestrator.Event, len(o.streamEvent)+1)
	go func() {
		defer close(events)
		for _, e := range o.streamEvent {
			events <- e
		}
	}()
	return events
}

func newTestFacade(router *model.Router, skillSource SkillSource, plan Planning, orch Executing) *Facade {
	return New(router, nil, skillSource, nil, reflex.New(nil), plan, orch, memory.NewShortTerm(10, nil), nil)
}

func TestExecuteChatFastPathSkipsOrchestrator(t *testing.T) {
	router, _ := newTestRouter(model.IntentChat, "ignored")
	chat := &fakeSkill{name: "general_chat", output: map[string]any{"reply": "Hi there!"}}
	skillSource := &fakeSkillSource{byName: map[string]apitypes.Skill{"general_chat": chat}}
	plan := &fakePlanner{}
	orch := &fakeOrchestrator{}

	f := newTestFacade(router, skillSource, plan, orch)
	result, err := f.Execute(context.Background(), "Hello there", nil, false)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "Hi there!", result.Result)
	require.Equal(t, "CHAT", result.Metadata["intent"])
	require.Equal(t, 1, chat.calls)
	require.Equal(t, 0, plan.calls)
	require.Equal(t, 0, orch.calls)
	require.False(t, skillSource.retrieved)

	wm := f.shortTerm.WorkingMemory()
	require.Len(t, wm.Turns, 1)
	require.Equal(t, "Hello there", wm.Turns[0].Goal)
	require.Equal(t, "Hi there!", wm.Turns[0].Result)
}

func TestExecutePlanPathInvokesPlannerAndOrchestrator(t *testing.T) {
	router, _ := newTestRouter(model.IntentPlan, "ignored")
	skillSource := &fakeSkillSource{
		byName:   map[string]apitypes.Skill{},
		relevant: []apitypes.SkillMetadata{{Name: "web_search"}},
	}
	wantPlan := apitypes.Plan{Goal: "research the weather", Actions: []apitypes.Action{{ID: "action_1", Skill: "web_search"}}}
	plan := &fakePlanner{plan: wantPlan}
	orch := &fakeOrchestrator{result: orchestrator.ExecutionResult{
		Success:  true,
		Output:   map[string]any{"reply": "it's sunny"},
		Trace:    []apitypes.StepResult{{ActionID: "action_1", Success: true}},
		Duration: 2 * time.Second,
	}}

	f := newTestFacade(router, skillSource, plan, orch)
	result, err := f.Execute(context.Background(), "research the weather", nil, false)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, map[string]any{"reply": "it's sunny"}, result.Result)
	require.Equal(t, wantPlan, result.Plan)
	require.Len(t, result.Trace, 1)
	require.Equal(t, "PLAN", result.Metadata["intent"])
	require.Equal(t, 1, result.Metadata["steps_executed"])
	require.True(t, skillSource.retrieved)
	require.Equal(t, 1, plan.calls)
	require.Equal(t, 1, orch.calls)
}

func TestExecuteSpeaksOnSuccessWhenSpeakOutputRequested(t *testing.T) {
	router, _ := newTestRouter(model.IntentPlan, "ignored")
	speak := &fakeSkill{name: "speak", output: map[string]any{"status": "success"}}
	skillSource := &fakeSkillSource{byName: map[string]apitypes.Skill{"speak": speak}}
	plan := &fakePlanner{plan: apitypes.Plan{Goal: "g"}}
	orch := &fakeOrchestrator{result: orchestrator.ExecutionResult{Success: true, Output: map[string]any{"reply": "done"}}}

	f := newTestFacade(router, skillSource, plan, orch)
	_, err := f.Execute(context.Background(), "g", nil, true)
	require.NoError(t, err)
	require.Equal(t, 1, speak.calls)
}

func TestExecuteStreamingEmitsIntentThenActionCompletedOnChatPath(t *testing.T) {
	router, _ := newTestRouter(model.IntentChat, "ignored")
	chat := &fakeSkill{name: "general_chat", output: map[string]any{"reply": "hey"}}
	skillSource := &fakeSkillSource{byName: map[string]apitypes.Skill{"general_chat": chat}}
	f := newTestFacade(router, skillSource, &fakePlanner{}, &fakeOrchestrator{})

	var types []apitypes.EventType
	for ev := range f.ExecuteStreaming(context.Background(), "hi", nil, false) {
		types = append(types, ev.Type)
	}
	require.Equal(t, apitypes.EventIntentDetected, types[0])
	require.Contains(t, types, apitypes.EventActionCompleted)
}

func TestExecuteStreamingPlanPathEmitsPlanAndExecutionCompleted(t *testing.T) {
	router, _ := newTestRouter(model.IntentPlan, "ignored")
	skillSource := &fakeSkillSource{relevant: []apitypes.SkillMetadata{{Name: "web_search"}}}
	wantPlan := apitypes.Plan{Goal: "g", Actions: []apitypes.Action{{ID: "action_1", Skill: "web_search"}}}
	plan := &fakePlanner{streamPlan: wantPlan}
	orch := &fakeOrchestrator{streamEvent: []orchestrator.Event{
		{Type: orchestrator.EventExecutionStarted, TotalActions: 1, Levels: 1},
		{Type: orchestrator.EventActionCompleted, ActionID: "action_1", Output: map[string]any{"reply": "ok"}},
		{Type: orchestrator.EventExecutionDone, Success: true, Completed: 1},
	}}

	f := newTestFacade(router, skillSource, plan, orch)
	var types []apitypes.EventType
	for ev := range f.ExecuteStreaming(context.Background(), "g", nil, false) {
		types = append(types, ev.Type)
	}
	require.Contains(t, types, apitypes.EventPlanComplete)
	require.Contains(t, types, apitypes.EventExecutionCompleted)
}

type scriptedReflexModule struct {
	shouldFire bool
	actions    []apitypes.Action
}

func (m *scriptedReflexModule) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{Name: "scripted"}
}
func (m *scriptedReflexModule) Evaluate(ctx context.Context, event reflex.Event) (bool, error) {
	return m.shouldFire, nil
}
func (m *scriptedReflexModule) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	return m.actions, nil
}

func TestInjectEventDispatchesTriggeredReflexPlanThroughOrchestrator(t *testing.T) {
	router, _ := newTestRouter(model.IntentChat, "ignored")
	reflexLayer := reflex.New(nil)
	require.NoError(t, reflexLayer.Register(&scriptedReflexModule{shouldFire: true, actions: []apitypes.Action{{ID: "a", Skill: "speak"}}}))
	orch := &fakeOrchestrator{result: orchestrator.ExecutionResult{Success: true}}

	f := New(router, nil, &fakeSkillSource{}, nil, reflexLayer, &fakePlanner{}, orch, memory.NewShortTerm(10, nil), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go f.RunLoop(ctx)

	f.InjectEvent(sensors.Event{Type: "voice_input", Source: "sensor_ear", Payload: map[string]any{"text": "hi"}})

	require.Eventually(t, func() bool { return orch.calls == 1 }, 150*time.Millisecond, 5*time.Millisecond)
}

func TestInjectEventDropsWhenQueueFullWithoutBlocking(t *testing.T) {
	reflexLayer := reflex.New(nil)
	f := New(nil, nil, &fakeSkillSource{}, nil, reflexLayer, &fakePlanner{}, &fakeOrchestrator{}, memory.NewShortTerm(10, nil), nil)

	for i := 0; i < 64; i++ {
		f.InjectEvent(sensors.Event{Type: "time_event"})
	}
}
