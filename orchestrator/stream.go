package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kanephamphu/connex-agi/apitypes"
)

// EventType names the phase a streaming Event reports.
type EventType string

const (
	EventExecutionStarted EventType = "execution_started"
	EventLevelStarted     EventType = "level_started"
	EventActionStarted    EventType = "action_started"
	EventActionCompleted  EventType = "action_completed"
	EventActionFailed     EventType = "action_failed"
	EventConfigRequired   EventType = "config_required"
	EventExecutionDone    EventType = "execution_completed"
)

// Event is one lifecycle notification emitted by ExecutePlanStreaming.
// Fields not relevant to Type are left zero.
type Event struct {
	Type  EventType
	RunID string

	TotalActions int
	Levels       int

	Level        int
	LevelActions []string

	ActionID    string
	Skill       string
	Description string

	Output   map[string]any
	Error    string
	Duration time.Duration

	MissingConfigKeys []string
	ConfigSchema      map[string]any

	Success   bool
	Completed int
	Failed    int
}

// EventType satisfies events.Event so an Orchestrator Event can be
// published on the shared bus and SSE-encoded without adaptation.
func (e Event) EventType() string { return string(e.Type) }

// ExecutePlanStreaming runs plan level by level, sending a typed Event
// for every phase transition on events until the plan completes or a
// failure occurs. Unlike ExecutePlan, a failure here does not
// auto-repair or replan — it emits action_failed, then
// execution_completed with Success false, and stops, leaving any repair
// to an explicit caller-invoked retry. The returned channel is closed
// when the run ends.
func (o *Orchestrator) ExecutePlanStreaming(ctx context.Context, plan apitypes.Plan) <-chan Event {
	events := make(chan Event, 8)

	go func() {
		defer close(events)

		runID := uuid.NewString()
		actionIDs := make([]string, len(plan.Actions))
		for i, a := range plan.Actions {
			actionIDs[i] = a.ID
		}
		state := apitypes.NewExecutionState(actionIDs)
		levels := executionLevels(plan)

		events <- Event{Type: EventExecutionStarted, RunID: runID, TotalActions: len(plan.Actions), Levels: len(levels)}

		for levelIdx, level := range levels {
			events <- Event{Type: EventLevelStarted, RunID: runID, Level: levelIdx + 1, LevelActions: level}

			for _, actionID := range level {
				action, ok := plan.ActionByID(actionID)
				if !ok {
					continue
				}
				events <- Event{Type: EventActionStarted, RunID: runID, ActionID: action.ID, Skill: action.Skill, Description: action.Description}

				skill, err := o.registry.Get(action.Skill)
				if err != nil {
					result := failResult(action, nil, time.Now(), err.Error())
					state.MarkFailed(action.ID, result)
					events <- Event{Type: EventActionFailed, RunID: runID, ActionID: action.ID, Error: result.Error}
					break
				}
				if cfgErr := skill.CheckConfig(); cfgErr != nil {
					meta := skill.Metadata()
					events <- Event{Type: EventConfigRequired, RunID: runID, Skill: action.Skill, ConfigSchema: meta.ConfigSchema}
					return
				}

				result := o.executeAction(ctx, action, state)
				if result.Success {
					state.MarkCompleted(action.ID, result)
					events <- Event{Type: EventActionCompleted, RunID: runID, ActionID: action.ID, Output: result.Output, Duration: result.Duration}
				} else {
					state.MarkFailed(action.ID, result)
					events <- Event{Type: EventActionFailed, RunID: runID, ActionID: action.ID, Error: result.Error}
					break
				}
			}

			if len(state.Failed()) > 0 {
				events <- Event{
					Type:      EventExecutionDone,
					RunID:     runID,
					Success:   false,
					Completed: len(state.Completed()),
					Failed:    len(state.Failed()),
				}
				return
			}
		}

		events <- Event{
			Type:      EventExecutionDone,
			RunID:     runID,
			Success:   len(state.Failed()) == 0,
			Completed: len(state.Completed()),
			Failed:    len(state.Failed()),
		}
	}()

	return events
}
