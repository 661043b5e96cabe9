package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/apitypes"
)

type fakeSkill struct {
	meta        apitypes.SkillMetadata
	execute     func(ctx context.Context, inputs map[string]any) (map[string]any, error)
	configErr   error
	validateErr error
}

func (s *fakeSkill) Metadata() apitypes.SkillMetadata { return s.meta }
func (s *fakeSkill) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	return s.execute(ctx, inputs)
}
func (s *fakeSkill) ValidateInputs(inputs map[string]any) error { return s.validateErr }
func (s *fakeSkill) CheckConfig() error                         { return s.configErr }

type fakeRegistry struct {
	skills map[string]apitypes.Skill
}

func (r *fakeRegistry) Get(name string) (apitypes.Skill, error) {
	s, ok := r.skills[name]
	if !ok {
		return nil, agierr.New(agierr.KindConfiguration, "unknown skill "+name)
	}
	return s, nil
}

func TestExecutePlanEmptyPlanSucceeds(t *testing.T) {
	o := New(&fakeRegistry{skills: map[string]apitypes.Skill{}}, nil, nil, Config{}, nil)
	result := o.ExecutePlan(context.Background(), apitypes.Plan{Goal: "nothing to do"})
	require.True(t, result.Success)
	require.Empty(t, result.Trace)
}

func TestExecutePlanLevelParallelismAndOutputChaining(t *testing.T) {
	registry := &fakeRegistry{skills: map[string]apitypes.Skill{
		"echo": &fakeSkill{
			meta: apitypes.SkillMetadata{Name: "echo"},
			execute: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				return map[string]any{"result": inputs["content"]}, nil
			},
		},
		"combine": &fakeSkill{
			meta: apitypes.SkillMetadata{Name: "combine"},
			execute: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				return map[string]any{"result": inputs["content"]}, nil
			},
		},
	}}
	o := New(registry, nil, nil, Config{}, nil)

	plan := apitypes.Plan{
		Goal: "chain",
		Actions: []apitypes.Action{
			{ID: "action_1", Skill: "echo", Inputs: map[string]any{"content": "hello"}},
			{ID: "action_2", Skill: "combine", References: map[string]string{"content": "action_1.result"}, DependsOn: []string{"action_1"}},
		},
	}

	result := o.ExecutePlan(context.Background(), plan)
	require.True(t, result.Success)
	require.Equal(t, "hello", result.Output["result"])
	require.Len(t, result.Trace, 2)
}

func TestExecutePlanSkippableFailureContinues(t *testing.T) {
	registry := &fakeRegistry{skills: map[string]apitypes.Skill{
		"boom": &fakeSkill{
			meta: apitypes.SkillMetadata{Name: "boom"},
			execute: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				return nil, agierr.New(agierr.KindExecution, "boom failed")
			},
		},
		"ok": &fakeSkill{
			meta: apitypes.SkillMetadata{Name: "ok"},
			execute: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				return map[string]any{"result": "fine"}, nil
			},
		},
	}}
	o := New(registry, nil, nil, Config{}, nil)

	plan := apitypes.Plan{
		Actions: []apitypes.Action{
			{ID: "action_1", Skill: "boom", Priority: apitypes.PrioritySkippable},
			{ID: "action_2", Skill: "ok"},
		},
	}
	result := o.ExecutePlan(context.Background(), plan)
	require.True(t, result.Success)
	require.Equal(t, "fine", result.Output["result"])
}

func TestExecutePlanMajorFailureAbortsWithoutCorrection(t *testing.T) {
	registry := &fakeRegistry{skills: map[string]apitypes.Skill{
		"boom": &fakeSkill{
			meta: apitypes.SkillMetadata{Name: "boom"},
			execute: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				return nil, agierr.New(agierr.KindExecution, "boom failed")
			},
		},
	}}
	o := New(registry, nil, nil, Config{}, nil)

	plan := apitypes.Plan{
		Actions: []apitypes.Action{
			{ID: "action_1", Skill: "boom"},
		},
	}
	result := o.ExecutePlan(context.Background(), plan)
	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
}

type fakeCorrector struct {
	patch map[string]any
}

func (c *fakeCorrector) Correct(ctx context.Context, skillName string, originalInputs map[string]any, errorMessage string) map[string]any {
	return c.patch
}

func TestExecutePlanInPlaceRepairSucceeds(t *testing.T) {
	attempt := 0
	registry := &fakeRegistry{skills: map[string]apitypes.Skill{
		"flaky": &fakeSkill{
			meta: apitypes.SkillMetadata{Name: "flaky", InputSchema: map[string]any{
				"properties": map[string]any{"path": map[string]any{"type": "string"}},
			}},
			execute: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				attempt++
				if attempt == 1 {
					return nil, agierr.New(agierr.KindExecution, "file not found")
				}
				return map[string]any{"result": inputs["path"]}, nil
			},
		},
	}}
	corrector := &fakeCorrector{patch: map[string]any{"path": "/tmp/fixed", "unexpected": "dropped"}}
	o := New(registry, corrector, nil, Config{SelfCorrectionEnabled: true}, nil)

	plan := apitypes.Plan{
		Actions: []apitypes.Action{
			{ID: "action_1", Skill: "flaky", Inputs: map[string]any{"path": "/missing"}},
		},
	}
	result := o.ExecutePlan(context.Background(), plan)
	require.True(t, result.Success)
	require.Equal(t, "/tmp/fixed", result.Output["result"])
	require.True(t, result.Trace[0].Corrected)
}

type fakeReplanner struct {
	called bool
	plan   apitypes.Plan
}

func (r *fakeReplanner) Replan(ctx context.Context, original apitypes.Plan, failedAction, errorMessage string, completedSteps []string) (apitypes.Plan, error) {
	r.called = true
	return r.plan, nil
}

func TestExecutePlanMajorFailureTriggersExactlyOneReplan(t *testing.T) {
	registry := &fakeRegistry{skills: map[string]apitypes.Skill{
		"boom": &fakeSkill{
			meta: apitypes.SkillMetadata{Name: "boom"},
			execute: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				return nil, agierr.New(agierr.KindExecution, "boom failed")
			},
		},
		"ok": &fakeSkill{
			meta: apitypes.SkillMetadata{Name: "ok"},
			execute: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				return map[string]any{"result": "recovered"}, nil
			},
		},
	}}
	replanner := &fakeReplanner{plan: apitypes.Plan{Actions: []apitypes.Action{{ID: "action_2", Skill: "ok"}}}}
	o := New(registry, nil, replanner, Config{SelfCorrectionEnabled: true}, nil)

	plan := apitypes.Plan{
		Actions: []apitypes.Action{
			{ID: "action_1", Skill: "boom"},
		},
	}
	result := o.ExecutePlan(context.Background(), plan)
	require.True(t, replanner.called)
	require.True(t, result.Success)
	require.Equal(t, "recovered", result.Output["result"])
}

func TestExecuteActionTimeout(t *testing.T) {
	registry := &fakeRegistry{skills: map[string]apitypes.Skill{
		"slow": &fakeSkill{
			meta: apitypes.SkillMetadata{Name: "slow"},
			execute: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				select {
				case <-time.After(200 * time.Millisecond):
					return map[string]any{"result": "too late"}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		},
	}}
	o := New(registry, nil, nil, Config{ActionTimeout: 10 * time.Millisecond}, nil)
	plan := apitypes.Plan{Actions: []apitypes.Action{{ID: "action_1", Skill: "slow"}}}
	result := o.ExecutePlan(context.Background(), plan)
	require.False(t, result.Success)
}

func TestExecutionLevelsGroupsByDependency(t *testing.T) {
	plan := apitypes.Plan{Actions: []apitypes.Action{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"a"}},
		{ID: "d", DependsOn: []string{"b", "c"}},
	}}
	levels := executionLevels(plan)
	require.Len(t, levels, 3)
	require.ElementsMatch(t, []string{"a"}, levels[0])
	require.ElementsMatch(t, []string{"b", "c"}, levels[1])
	require.ElementsMatch(t, []string{"d"}, levels[2])
}

func TestExecutePlanStreamingStopsOnFailureWithoutReplan(t *testing.T) {
	registry := &fakeRegistry{skills: map[string]apitypes.Skill{
		"boom": &fakeSkill{
			meta: apitypes.SkillMetadata{Name: "boom"},
			execute: func(ctx context.Context, inputs map[string]any) (map[string]any, error) {
				return nil, agierr.New(agierr.KindExecution, "boom failed")
			},
		},
	}}
	replanner := &fakeReplanner{}
	o := New(registry, nil, replanner, Config{SelfCorrectionEnabled: true}, nil)
	plan := apitypes.Plan{Actions: []apitypes.Action{{ID: "action_1", Skill: "boom"}}}

	var events []Event
	for ev := range o.ExecutePlanStreaming(context.Background(), plan) {
		events = append(events, ev)
	}
	require.False(t, replanner.called)
	last := events[len(events)-1]
	require.Equal(t, EventExecutionDone, last.Type)
	require.False(t, last.Success)
}
