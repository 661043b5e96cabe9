// Package apitypes defines the shared data model of the cognitive
// execution pipeline: actions, plans, execution state, skill metadata,
// and the typed events emitted while a plan runs. Every other package in
// this module depends on apitypes; apitypes depends on nothing else in
// the module.
package apitypes

import "time"

// Priority classifies how the Orchestrator reacts when an Action fails.
type Priority string

const (
	// PriorityMajor failures escalate to a replan after in-place repair fails.
	PriorityMajor Priority = "MAJOR"
	// PriorityMinor failures are logged; dependents that need the output are
	// implicitly skipped when reference resolution fails.
	PriorityMinor Priority = "MINOR"
	// PrioritySkippable failures are logged silently and never escalate.
	PrioritySkippable Priority = "SKIPPABLE"
)

// Action is a single unit of work executed by one skill.
type Action struct {
	// ID uniquely identifies the action within its Plan.
	ID string `json:"id"`
	// Skill is the registry key of the capability this action invokes.
	Skill string `json:"skill"`
	// Description is free-form text used by the IO Mapper's semantic
	// action inference and shown in traces.
	Description string `json:"description"`
	// Inputs holds the action's static input map. Values that look like
	// dotted references (`action_<id>.<key>`) are opportunistically
	// resolved by the IO Mapper even though they were supplied as literals.
	Inputs map[string]any `json:"inputs,omitempty"`
	// References maps a parameter name to a dotted reference
	// (`<action_id>.<output_key>`) into a prior action's output. Unlike
	// inline references inside Inputs, an unresolved entry here is a hard
	// error.
	References map[string]string `json:"references,omitempty"`
	// OutputSchema is a JSON-Schema fragment (or nil) describing the
	// shape the skill is expected to return.
	OutputSchema map[string]any `json:"output_schema,omitempty"`
	// DependsOn lists other action ids in the same Plan that must
	// complete (successfully or otherwise resolved) before this action
	// may start.
	DependsOn []string `json:"depends_on,omitempty"`
	// Priority governs failure handling; defaults to PriorityMajor.
	Priority Priority `json:"priority,omitempty"`
	// Metadata carries optional per-action overrides, notably "timeout".
	Metadata map[string]any `json:"metadata,omitempty"`
}

// EffectivePriority returns a.Priority, defaulting to PriorityMajor.
func (a Action) EffectivePriority() Priority {
	if a.Priority == "" {
		return PriorityMajor
	}
	return a.Priority
}

// Plan is an ordered, dependency-annotated set of Actions produced by the
// Planner (or by a Reflex) for the Orchestrator to execute.
type Plan struct {
	// Goal is the natural-language objective this plan pursues.
	Goal string `json:"goal"`
	// Actions is the full action set. Order is not significant to
	// execution (the Orchestrator computes topological levels) but is
	// preserved for display and reasoning traces.
	Actions []Action `json:"actions"`
	// Reasoning is the planner's free-form rationale, if the model
	// produced one.
	Reasoning string `json:"reasoning,omitempty"`
	// Metadata carries planner/model identifiers and captured sensor
	// context.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ActionByID returns the action with the given id and true, or the zero
// Action and false if no such action exists in the plan.
func (p Plan) ActionByID(id string) (Action, bool) {
	for _, a := range p.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return Action{}, false
}

// StepResult is the per-action outcome recorded in an ExecutionState.
type StepResult struct {
	ActionID  string         `json:"action_id"`
	Success   bool           `json:"success"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Corrected bool           `json:"corrected,omitempty"`
}
