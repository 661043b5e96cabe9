package reflex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/apitypes"
)

type panicReflex struct{}

func (p panicReflex) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{Name: "panics", TriggerType: "any"}
}

func (p panicReflex) Evaluate(ctx context.Context, event Event) (bool, error) {
	panic("boom")
}

func (p panicReflex) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	return nil, nil
}

type okReflex struct{ fired bool }

func (o *okReflex) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{Name: "ok", TriggerType: "any"}
}

func (o *okReflex) Evaluate(ctx context.Context, event Event) (bool, error) {
	o.fired = true
	return true, nil
}

func (o *okReflex) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	return []apitypes.Action{{ID: "a", Skill: "noop"}}, nil
}

func TestProcessEventIsolatesPanickingReflex(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.Register(panicReflex{}))
	ok := &okReflex{}
	require.NoError(t, l.Register(ok))

	triggered := l.ProcessEvent(context.Background(), Event{Type: "any"})
	require.True(t, ok.fired, "a panic in one reflex must not block others from evaluating")
	require.Len(t, triggered, 1)
	require.Equal(t, "ok", triggered[0].Reflex)
	require.Equal(t, "Reflex Trigger: ok", triggered[0].Plan.Goal)
}

func TestSafetyReflexTriggersOnForbiddenKeyword(t *testing.T) {
	s := NewSafety()
	should, err := s.Evaluate(context.Background(), Event{Payload: map[string]any{"goal": "please hack the mainframe"}})
	require.NoError(t, err)
	require.True(t, should)

	plan, err := s.GetPlan(context.Background())
	require.NoError(t, err)
	require.Len(t, plan, 1)
	require.Equal(t, "chat_response", plan[0].Skill)
}

func TestGovernorTriggersAboveCPUThreshold(t *testing.T) {
	g := NewGovernor()
	should, err := g.Evaluate(context.Background(), Event{
		Type:    "telemetry_update",
		Payload: map[string]any{"cpu_percent": 95.0},
	})
	require.NoError(t, err)
	require.True(t, should)

	should, err = g.Evaluate(context.Background(), Event{
		Type:    "telemetry_update",
		Payload: map[string]any{"cpu_percent": 40.0},
	})
	require.NoError(t, err)
	require.False(t, should)
}

func TestVoiceCommandCapturesCommandBetweenEvaluateAndGetPlan(t *testing.T) {
	v := NewVoiceCommand()
	should, err := v.Evaluate(context.Background(), Event{
		Type:    "voice_input",
		Payload: map[string]any{"text": "what time is it", "status": "success"},
	})
	require.NoError(t, err)
	require.True(t, should)

	plan, err := v.GetPlan(context.Background())
	require.NoError(t, err)
	require.Len(t, plan, 2)
	require.Equal(t, "what time is it", plan[1].Inputs["goal"])
	require.Equal(t, []string{"detect_emotion"}, plan[1].DependsOn)
}

func TestSmartClipboardOnlyTriggersOnURL(t *testing.T) {
	c := NewSmartClipboard()
	should, err := c.Evaluate(context.Background(), Event{Type: "clipboard_change", Payload: map[string]any{"content": "hello world"}})
	require.NoError(t, err)
	require.False(t, should)

	should, err = c.Evaluate(context.Background(), Event{Type: "clipboard_change", Payload: map[string]any{"content": "https://example.com"}})
	require.NoError(t, err)
	require.True(t, should)
}

type fakeHistory struct{ entries []map[string]any }

func (f fakeHistory) Recent(limit int) []map[string]any { return f.entries }

func TestSelfRepairTriggersOnRepeatedFailures(t *testing.T) {
	s := NewSelfRepair(fakeHistory{entries: []map[string]any{
		{"status": "failed"}, {"status": "failed"}, {"status": "failed"},
	}}, 3)
	should, err := s.Evaluate(context.Background(), Event{Type: "health_check"})
	require.NoError(t, err)
	require.True(t, should)
}

func TestSelfRepairDoesNotTriggerBelowThreshold(t *testing.T) {
	s := NewSelfRepair(fakeHistory{entries: []map[string]any{
		{"status": "failed"}, {"status": "ok"},
	}}, 3)
	should, err := s.Evaluate(context.Background(), Event{Type: "health_check"})
	require.NoError(t, err)
	require.False(t, should)
}
