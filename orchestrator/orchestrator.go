// Package orchestrator executes an apitypes.Plan level by level: each
// topological generation of the action DAG runs concurrently, failures
// attempt an in-place repair via the Corrector before falling back to
// the action's declared priority (replan on MAJOR, log-and-continue on
// MINOR/SKIPPABLE), and the whole run is summarized into an
// ExecutionResult alongside the full per-action trace.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/iomapper"
	"github.com/kanephamphu/connex-agi/telemetry"
)

// SkillResolver is the subset of the Skill Registry the Orchestrator
// needs: look a skill up by name.
type SkillResolver interface {
	Get(name string) (apitypes.Skill, error)
}

// Corrector proposes patched inputs for a failed action, or nil if it
// could not or would not.
type Corrector interface {
	Correct(ctx context.Context, skillName string, originalInputs map[string]any, errorMessage string) map[string]any
}

// Replanner builds a continuation plan after a MAJOR-priority action
// fails and in-place repair did not succeed.
type Replanner interface {
	Replan(ctx context.Context, original apitypes.Plan, failedAction, errorMessage string, completedSteps []string) (apitypes.Plan, error)
}

// Config controls timeout and self-correction behavior. Zero value is
// usable: self-correction disabled, 30s default action timeout.
type Config struct {
	ActionTimeout         time.Duration
	SelfCorrectionEnabled bool
}

func (c Config) timeout() time.Duration {
	if c.ActionTimeout <= 0 {
		return 30 * time.Second
	}
	return c.ActionTimeout
}

// Orchestrator executes plans against a SkillResolver, optionally
// self-correcting and replanning on failure.
type Orchestrator struct {
	registry  SkillResolver
	corrector Corrector
	replanner Replanner
	config    Config
	obs       *telemetry.Observability
}

// New builds an Orchestrator. corrector and replanner may be nil — a
// nil corrector skips in-place repair, a nil replanner aborts instead
// of replanning a MAJOR failure.
func New(registry SkillResolver, corrector Corrector, replanner Replanner, config Config, obs *telemetry.Observability) *Orchestrator {
	if obs == nil {
		obs = telemetry.New(nil, nil, nil)
	}
	return &Orchestrator{registry: registry, corrector: corrector, replanner: replanner, config: config, obs: obs}
}

// ExecutionResult is the summarized outcome of running a Plan.
type ExecutionResult struct {
	RunID    string
	Success  bool
	Output   map[string]any
	Trace    []apitypes.StepResult
	Errors   []string
	Duration time.Duration
	State    *apitypes.ExecutionState
}

// ExecutePlan runs plan to completion or abort, auto-repairing failed
// actions in place and replanning MAJOR failures that repair could not
// fix.
func (o *Orchestrator) ExecutePlan(ctx context.Context, plan apitypes.Plan) ExecutionResult {
	start := time.Now()
	runID := uuid.NewString()
	actionIDs := make([]string, len(plan.Actions))
	for i, a := range plan.Actions {
		actionIDs[i] = a.ID
	}
	state := apitypes.NewExecutionState(actionIDs)

	levels := executionLevels(plan)

	ctx, span := o.obs.StartSpan(ctx, "orchestrator", "execute_plan", attribute.String("run_id", runID))
	var abortErr error

levelLoop:
	for _, level := range levels {
		results := o.runLevel(ctx, plan, state, level)

		for _, actionID := range level {
			result := results[actionID]
			if result.Success {
				state.MarkCompleted(actionID, result)
				continue
			}

			action, _ := plan.ActionByID(actionID)
			repaired, ok := o.tryRepair(ctx, action, result)
			if ok {
				state.MarkCompleted(actionID, repaired)
				continue
			}

			state.MarkFailed(actionID, result)

			switch action.EffectivePriority() {
			case apitypes.PrioritySkippable:
				continue
			case apitypes.PriorityMinor:
				continue
			default: // MAJOR
				if o.config.SelfCorrectionEnabled && o.replanner != nil {
					replanResult, err := o.replan(ctx, plan, state, actionID, result.Error)
					if err != nil {
						abortErr = fmt.Errorf("MAJOR step %q failed and replan failed: %s (replan error: %w)", actionID, result.Error, err)
						break levelLoop
					}
					o.obs.EndSpan(span, telemetry.OutcomeSuccess, nil)
					return replanResult
				}
				abortErr = fmt.Errorf("MAJOR step %q failed: %s", actionID, result.Error)
				break levelLoop
			}
		}
	}

	duration := time.Since(start)
	if abortErr != nil {
		o.obs.EndSpan(span, telemetry.OutcomeError, abortErr)
		return ExecutionResult{
			RunID:    runID,
			Success:  false,
			Errors:   []string{abortErr.Error()},
			Trace:    state.Trace(),
			Duration: duration,
			State:    state,
		}
	}

	output := map[string]any{}
	completed := state.Completed()
	if len(completed) > 0 {
		if last, ok := state.Result(completed[len(completed)-1]); ok {
			output = last.Output
		}
	}

	o.obs.EndSpan(span, telemetry.OutcomeSuccess, nil)
	return ExecutionResult{
		RunID:    runID,
		Success:  true,
		Output:   output,
		Trace:    state.Trace(),
		Duration: duration,
		State:    state,
	}
}

// runLevel executes every action in level concurrently and returns
// each action's StepResult keyed by id.
func (o *Orchestrator) runLevel(ctx context.Context, plan apitypes.Plan, state *apitypes.ExecutionState, level []string) map[string]apitypes.StepResult {
	results := make(map[string]apitypes.StepResult, len(level))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, actionID := range level {
		action, ok := plan.ActionByID(actionID)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(action apitypes.Action) {
			defer wg.Done()
			result := o.executeAction(ctx, action, state)
			mu.Lock()
			results[action.ID] = result
			mu.Unlock()
		}(action)
	}
	wg.Wait()
	return results
}

// executeAction resolves inputs, checks the skill's configuration,
// validates inputs, invokes the skill under a timeout, and
// smart-validates the output. The skill's persisted enabled flag is not
// consulted here.
func (o *Orchestrator) executeAction(ctx context.Context, action apitypes.Action, state *apitypes.ExecutionState) apitypes.StepResult {
	start := time.Now()
	inputs := map[string]any{}

	skill, err := o.registry.Get(action.Skill)
	if err != nil {
		return failResult(action, inputs, start, err.Error())
	}
	meta := skill.Metadata()

	inputs, err = iomapper.ResolveInputs(action, state, &meta)
	if err != nil {
		return failResult(action, inputs, start, err.Error())
	}

	if err := skill.CheckConfig(); err != nil {
		return failResult(action, inputs, start, err.Error())
	}

	if err := skill.ValidateInputs(inputs); err != nil {
		return failResult(action, inputs, start, fmt.Sprintf("input validation failed for %q: %s", action.Skill, err))
	}

	timeout := o.config.timeout()
	if v, ok := action.Metadata["timeout"]; ok {
		if ms, ok := v.(int64); ok && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		} else if ms, ok := v.(int); ok && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if meta.TimeoutDefault > 0 {
		if _, hasOverride := action.Metadata["timeout"]; !hasOverride {
			timeout = time.Duration(meta.TimeoutDefault) * time.Millisecond
		}
	}

	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := skill.Execute(actionCtx, inputs)
	if err != nil {
		if actionCtx.Err() != nil {
			return failResult(action, inputs, start, fmt.Sprintf("action %q timed out after %s", action.ID, timeout))
		}
		return failResult(action, inputs, start, err.Error())
	}

	if action.OutputSchema != nil {
		output = iomapper.ValidateOutput(output, action.OutputSchema)
	}
	if success, ok := output["success"].(bool); ok && !success {
		msg, _ := output["message"].(string)
		if msg == "" {
			msg, _ = output["error"].(string)
		}
		if msg == "" {
			msg = "skill reports failure without message"
		}
		return failResult(action, inputs, start, msg)
	}

	return apitypes.StepResult{
		ActionID: action.ID,
		Success:  true,
		Output:   output,
		Duration: time.Since(start),
		Metadata: map[string]any{"skill": action.Skill, "inputs": inputs},
	}
}

func failResult(action apitypes.Action, inputs map[string]any, start time.Time, errMsg string) apitypes.StepResult {
	return apitypes.StepResult{
		ActionID: action.ID,
		Success:  false,
		Error:    errMsg,
		Duration: time.Since(start),
		Metadata: map[string]any{"skill": action.Skill, "inputs": inputs},
	}
}

// tryRepair attempts one in-place correction of a failed action. It
// returns the replacement StepResult and true on success.
func (o *Orchestrator) tryRepair(ctx context.Context, action apitypes.Action, failed apitypes.StepResult) (apitypes.StepResult, bool) {
	if o.corrector == nil || !o.config.SelfCorrectionEnabled {
		return apitypes.StepResult{}, false
	}
	originalInputs, _ := failed.Metadata["inputs"].(map[string]any)
	if len(originalInputs) == 0 {
		return apitypes.StepResult{}, false
	}

	fixedInputs := o.corrector.Correct(ctx, action.Skill, originalInputs, failed.Error)
	if fixedInputs == nil {
		return apitypes.StepResult{}, false
	}

	skill, err := o.registry.Get(action.Skill)
	if err != nil {
		return apitypes.StepResult{}, false
	}
	meta := skill.Metadata()
	sanitized := sanitizeToSchema(fixedInputs, meta.InputSchema)

	timeout := o.config.timeout()
	if meta.TimeoutDefault > 0 {
		timeout = time.Duration(meta.TimeoutDefault) * time.Millisecond
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := skill.Execute(actionCtx, sanitized)
	if err != nil {
		return apitypes.StepResult{}, false
	}
	if action.OutputSchema != nil {
		output = iomapper.ValidateOutput(output, action.OutputSchema)
	}
	if success, ok := output["success"].(bool); ok && !success {
		return apitypes.StepResult{}, false
	}

	return apitypes.StepResult{
		ActionID:  action.ID,
		Success:   true,
		Output:    output,
		Corrected: true,
		Metadata:  map[string]any{"skill": action.Skill, "inputs": fixedInputs, "corrected": true},
	}, true
}

// sanitizeToSchema keeps only the keys an input schema actually
// declares, so a correction proposal cannot smuggle in unexpected
// parameters. An empty/loose schema is passed through unchanged.
func sanitizeToSchema(inputs map[string]any, schema map[string]any) map[string]any {
	var validKeys map[string]struct{}
	if props, ok := schema["properties"].(map[string]any); ok {
		validKeys = make(map[string]struct{}, len(props))
		for k := range props {
			validKeys[k] = struct{}{}
		}
	} else if _, hasType := schema["type"]; !hasType && len(schema) > 0 {
		validKeys = make(map[string]struct{}, len(schema))
		for k := range schema {
			validKeys[k] = struct{}{}
		}
	}
	if validKeys == nil {
		return inputs
	}
	sanitized := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if _, ok := validKeys[k]; ok {
			sanitized[k] = v
		}
	}
	return sanitized
}

// replan asks the Replanner for a continuation plan and executes it
// with replanning disabled, so one MAJOR failure leads to at most one
// replan: a MAJOR failure inside the continuation aborts it.
func (o *Orchestrator) replan(ctx context.Context, plan apitypes.Plan, state *apitypes.ExecutionState, failedAction, errorMessage string) (ExecutionResult, error) {
	newPlan, err := o.replanner.Replan(ctx, plan, failedAction, errorMessage, state.Completed())
	if err != nil {
		return ExecutionResult{}, agierr.Wrap(agierr.KindExecution, "orchestrator: replan", err)
	}
	continuation := *o
	continuation.replanner = nil
	return continuation.ExecutePlan(ctx, newPlan), nil
}
