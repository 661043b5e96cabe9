// Package agi wires every pipeline component — Model Router, Memory,
// Config store, Skill Registry, Perception, Reflex, Sensor drivers,
// Orchestrator, Planner, Corrector — into the single top-level Facade.
// It routes CHAT goals directly to the general_chat skill and
// everything else through the Planner/Orchestrator, exposes a
// typed-event streaming variant of the same flow, and dispatches
// sensor-injected events onto the Reflex Layer from one dedicated
// event-loop goroutine, the thread-safe post-to-loop boundary the
// Sensor Drivers rely on.
package agi

import (
	"context"
	"fmt"
	"time"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/config"
	"github.com/kanephamphu/connex-agi/events"
	"github.com/kanephamphu/connex-agi/memory"
	"github.com/kanephamphu/connex-agi/model"
	"github.com/kanephamphu/connex-agi/orchestrator"
	"github.com/kanephamphu/connex-agi/perception"
	"github.com/kanephamphu/connex-agi/planner"
	"github.com/kanephamphu/connex-agi/reflex"
	"github.com/kanephamphu/connex-agi/sensors"
	"github.com/kanephamphu/connex-agi/skills"
	"github.com/kanephamphu/connex-agi/telemetry"
)

// SkillSource is the subset of skills.Registry the Facade needs: look
// a skill up by name and retrieve the candidates relevant to a goal.
type SkillSource interface {
	Get(name string) (apitypes.Skill, error)
	RetrieveRelevant(ctx context.Context, query string, limit int, category, subCategory string) ([]apitypes.SkillMetadata, error)
}

// Planning is the subset of planner.Planner the Facade needs.
type Planning interface {
	CreatePlan(ctx context.Context, goal string, baseContext map[string]any, skills []apitypes.SkillMetadata) (apitypes.Plan, error)
	CreatePlanStreaming(ctx context.Context, goal string, baseContext map[string]any, skills []apitypes.SkillMetadata) <-chan planner.StreamEvent
}

// Executing is the subset of orchestrator.Orchestrator the Facade needs.
type Executing interface {
	ExecutePlan(ctx context.Context, plan apitypes.Plan) orchestrator.ExecutionResult
	ExecutePlanStreaming(ctx context.Context, plan apitypes.Plan) <-chan orchestrator.Event
}

// Facade is the top-level entry point: construction wires every
// component; RunLoop must be started once to drain sensor-injected
// events onto the Reflex Layer.
type Facade struct {
	router     *model.Router
	config     *config.Store
	skills     SkillSource
	perception *perception.Layer
	reflex     *reflex.Layer
	planner    Planning
	orch       Executing
	shortTerm  *memory.ShortTerm
	obs        *telemetry.Observability

	events chan sensors.Event
}

// New builds a Facade from already-constructed components. Every
// dependency is required except config (notable-info lookup degrades
// to empty), perception (emotion detection is skipped) and obs
// (defaults to a no-op Observability).
func New(
	router *model.Router,
	cfg *config.Store,
	skillSource SkillSource,
	perceptionLayer *perception.Layer,
	reflexLayer *reflex.Layer,
	plan Planning,
	orch Executing,
	shortTerm *memory.ShortTerm,
	obs *telemetry.Observability,
) *Facade {
	if obs == nil {
		obs = telemetry.New(nil, nil, nil)
	}
	return &Facade{
		router:     router,
		config:     cfg,
		skills:     skillSource,
		perception: perceptionLayer,
		reflex:     reflexLayer,
		planner:    plan,
		orch:       orch,
		shortTerm:  shortTerm,
		obs:        obs,
		events:     make(chan sensors.Event, 32),
	}
}

// Result is the facade's execute response envelope.
type Result struct {
	Success  bool
	Result   any
	Plan     apitypes.Plan
	Trace    []apitypes.StepResult
	Metadata map[string]any
}

// InjectEvent is the thread-safe post-to-loop primitive every Sensor
// Driver calls from its own goroutine. The send never blocks the
// caller: under sustained back-pressure the event is dropped and
// logged rather than stalling the sensor.
func (f *Facade) InjectEvent(e sensors.Event) {
	select {
	case f.events <- e:
	default:
		f.obs.LogOperation(context.Background(), telemetry.OperationEvent{
			Component: "agi", Operation: "inject_event", Outcome: telemetry.OutcomeError,
			Query: fmt.Sprintf("dropped event type=%s source=%s: event queue full", e.Type, e.Source),
		})
	}
}

// RunLoop drains injected sensor events onto the Reflex Layer until
// ctx is done. It is the single dedicated-loop goroutine every sensor
// thread and the main Execute path agree never to duplicate.
func (f *Facade) RunLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-f.events:
			f.handleReflexEvent(ctx, e)
		}
	}
}

// handleReflexEvent asks the Reflex Layer for plans triggered by e and
// executes each concurrently; a failing reflex-driven plan is logged,
// never propagated, so one misbehaving reflex can't stall the loop.
func (f *Facade) handleReflexEvent(ctx context.Context, e sensors.Event) {
	triggered := f.reflex.ProcessEvent(ctx, reflex.Event{Type: e.Type, Payload: e.Payload})
	for _, t := range triggered {
		go func(t reflex.Triggered) {
			result := f.orch.ExecutePlan(ctx, t.Plan)
			if !result.Success {
				f.obs.LogOperation(ctx, telemetry.OperationEvent{
					Component: "agi", Operation: "reflex_plan", Outcome: telemetry.OutcomeError,
					Query: fmt.Sprintf("reflex=%s errors=%v", t.Reflex, result.Errors),
				})
			}
		}(t)
	}
}

// Execute turns goal into a response: emotion perception fires in the
// background, working memory and notable info are folded into
// planning context, intent is classified, and CHAT goals are answered
// directly by the general_chat skill while everything else runs the
// full Planner/Orchestrator pipeline.
func (f *Facade) Execute(ctx context.Context, goal string, baseContext map[string]any, speakOutput bool) (Result, error) {
	if f.perception != nil {
		go f.perceiveEmotion(goal)
	}

	working := f.shortTerm.WorkingMemory()
	merged := f.mergeContext(ctx, baseContext, working)

	intent, err := f.router.ClassifyIntent(ctx, goal, historyMessages(working.Turns))
	if err != nil {
		intent = model.IntentChat
	}

	if intent == model.IntentChat {
		reply, output, err := f.chatReply(ctx, goal, working)
		if err != nil {
			return Result{}, err
		}
		if speakOutput && reply != "" {
			f.speak(ctx, reply)
		}
		f.recordTurn(goal, reply)
		return Result{
			Success: true,
			Result:  reply,
			Plan:    apitypes.Plan{Goal: goal},
			Metadata: map[string]any{
				"intent": string(intent),
				"output": output,
			},
		}, nil
	}

	relevant, err := f.skills.RetrieveRelevant(ctx, goal, 8, "", "")
	if err != nil {
		return Result{}, fmt.Errorf("agi: retrieve relevant skills: %w", err)
	}

	plan, err := f.planner.CreatePlan(ctx, goal, merged, relevant)
	if err != nil {
		return Result{}, err
	}

	result := f.orch.ExecutePlan(ctx, plan)
	reply := outputReply(result.Output)

	if speakOutput {
		if result.Success {
			if reply != "" {
				f.speak(ctx, reply)
			}
		} else {
			errMsg := "an unknown error occurred"
			if len(result.Errors) > 0 {
				errMsg = result.Errors[0]
			}
			f.speak(ctx, fmt.Sprintf("I'm sorry, I encountered an error: %s", errMsg))
		}
	}

	f.recordTurn(goal, reply)
	go func() { _ = f.shortTerm.UpdateSummary(context.Background()) }()

	return Result{
		Success: result.Success,
		Result:  result.Output,
		Plan:    plan,
		Trace:   result.Trace,
		Metadata: map[string]any{
			"intent":           string(intent),
			"run_id":           result.RunID,
			"steps_executed":   len(result.Trace),
			"errors":           result.Errors,
			"duration_seconds": result.Duration.Seconds(),
		},
	}, nil
}

// ExecuteStreaming mirrors Execute but yields every phase transition
// as a typed apitypes.Event: intent detection, planning's reasoning
// tokens and plan_complete/planning_error, and execution's per-action
// lifecycle. Errors are yielded as error events, never returned.
// Internally every event is published on a private events.Bus and
// relayed to the returned channel by a single subscriber, rather than
// written to the channel directly, so the bus's publish/subscribe
// contract is the actual event-delivery mechanism and not bypassed by
// this call's own convenience channel.
func (f *Facade) ExecuteStreaming(ctx context.Context, goal string, baseContext map[string]any, speakOutput bool) <-chan apitypes.Event {
	out := make(chan apitypes.Event, 16)
	bus := events.NewBus()
	sub, _ := bus.Register(events.SubscriberFunc(func(ctx context.Context, event events.Event) error {
		ev, ok := event.(apitypes.Event)
		if !ok {
			return nil
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
		return nil
	}))

	go func() {
		defer close(out)
		if sub != nil {
			defer sub.Close()
		}
		emit := func(phase apitypes.Phase, typ apitypes.EventType, payload map[string]any) {
			ev := apitypes.Event{Phase: phase, Type: typ, Timestamp: time.Now().Unix(), Payload: payload}
			_ = bus.Publish(ctx, ev)
		}

		if f.perception != nil {
			go f.perceiveEmotion(goal)
		}

		working := f.shortTerm.WorkingMemory()
		merged := f.mergeContext(ctx, baseContext, working)

		intent, err := f.router.ClassifyIntent(ctx, goal, historyMessages(working.Turns))
		if err != nil {
			intent = model.IntentChat
		}
		emit(apitypes.PhasePlanning, apitypes.EventIntentDetected, map[string]any{"intent": string(intent)})

		if intent == model.IntentChat {
			reply, output, err := f.chatReply(ctx, goal, working)
			if err != nil {
				emit(apitypes.PhaseExecution, apitypes.EventError, map[string]any{"message": err.Error()})
				return
			}
			emit(apitypes.PhaseExecution, apitypes.EventActionCompleted, map[string]any{"action_id": "chat_response", "output": output})
			if speakOutput && reply != "" {
				f.speak(ctx, reply)
			}
			f.recordTurn(goal, reply)
			return
		}

		relevant, err := f.skills.RetrieveRelevant(ctx, goal, 8, "", "")
		if err != nil {
			emit(apitypes.PhasePlanning, apitypes.EventPlanningError, map[string]any{"message": err.Error()})
			return
		}

		var finalPlan apitypes.Plan
		havePlan := false
		for ev := range f.planner.CreatePlanStreaming(ctx, goal, merged, relevant) {
			switch ev.Type {
			case planner.StreamEventPlanningStarted:
				emit(apitypes.PhasePlanning, apitypes.EventPlanStarted, map[string]any{"goal": ev.Goal})
			case planner.StreamEventContextGathered:
				emit(apitypes.PhasePlanning, apitypes.EventContextGathered, map[string]any{"context": ev.SensorContext})
			case planner.StreamEventReasoningToken:
				emit(apitypes.PhasePlanning, apitypes.EventReasoningToken, map[string]any{"token": ev.Token})
			case planner.StreamEventPlanComplete:
				finalPlan = ev.Plan
				havePlan = true
				emit(apitypes.PhasePlanning, apitypes.EventPlanComplete, map[string]any{"plan": ev.Plan})
			case planner.StreamEventPlanningError:
				emit(apitypes.PhasePlanning, apitypes.EventPlanningError, map[string]any{"message": ev.Error})
			}
		}
		if !havePlan {
			return
		}

		var lastOutput map[string]any
		success := true
		lastErr := ""
		for ev := range f.orch.ExecutePlanStreaming(ctx, finalPlan) {
			switch ev.Type {
			case orchestrator.EventExecutionStarted:
				emit(apitypes.PhaseExecution, apitypes.EventExecutionStarted, map[string]any{"total_actions": ev.TotalActions, "levels": ev.Levels})
			case orchestrator.EventLevelStarted:
				emit(apitypes.PhaseExecution, apitypes.EventLevelStarted, map[string]any{"level": ev.Level, "actions": ev.LevelActions})
			case orchestrator.EventActionStarted:
				emit(apitypes.PhaseExecution, apitypes.EventActionStarted, map[string]any{"action_id": ev.ActionID, "skill": ev.Skill})
			case orchestrator.EventActionCompleted:
				lastOutput = ev.Output
				emit(apitypes.PhaseExecution, apitypes.EventActionCompleted, map[string]any{"action_id": ev.ActionID, "output": ev.Output, "duration_ms": ev.Duration.Milliseconds()})
			case orchestrator.EventActionFailed:
				lastErr = ev.Error
				emit(apitypes.PhaseExecution, apitypes.EventActionFailed, map[string]any{"action_id": ev.ActionID, "error": ev.Error})
			case orchestrator.EventConfigRequired:
				emit(apitypes.PhaseExecution, apitypes.EventConfigRequired, map[string]any{"skill": ev.Skill, "missing_keys": ev.MissingConfigKeys, "config_schema": ev.ConfigSchema})
			case orchestrator.EventExecutionDone:
				success = ev.Success
				emit(apitypes.PhaseExecution, apitypes.EventExecutionCompleted, map[string]any{"success": ev.Success, "completed": ev.Completed, "failed": ev.Failed})
			}
		}

		reply := outputReply(lastOutput)
		if speakOutput {
			if success && reply != "" {
				f.speak(ctx, reply)
			} else if !success {
				f.speak(ctx, fmt.Sprintf("I'm sorry, I encountered an error: %s", lastErr))
			}
		}
		f.recordTurn(goal, reply)
	}()

	return out
}

// StreamSSE wraps ExecuteStreaming, encoding each event as one SSE
// frame via events.EncodeSSE — the wire format an external HTTP
// front end relays to a client, kept out of this module's scope but
// sharing its encoding with whatever front end consumes it.
func (f *Facade) StreamSSE(ctx context.Context, goal string, baseContext map[string]any, speakOutput bool) <-chan []byte {
	frames := make(chan []byte, 16)
	go func() {
		defer close(frames)
		for ev := range f.ExecuteStreaming(ctx, goal, baseContext, speakOutput) {
			frame, err := events.EncodeSSE(ev)
			if err != nil {
				continue
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return frames
}

// chatReply dispatches goal to the general_chat skill with recent
// history, returning the canonical reply text alongside its full
// output map.
func (f *Facade) chatReply(ctx context.Context, goal string, working apitypes.WorkingMemory) (string, map[string]any, error) {
	skill, err := f.skills.Get("general_chat")
	if err != nil {
		return "", nil, fmt.Errorf("agi: general_chat skill unavailable: %w", err)
	}
	output, err := skill.Execute(ctx, map[string]any{
		"message": goal,
		"history": working.Turns,
	})
	if err != nil {
		return "", nil, fmt.Errorf("agi: general_chat execute: %w", err)
	}
	return outputReply(output), output, nil
}

// speak dispatches text to the speak skill, if one is registered,
// swallowing lookup/execute failures — vocalising a reply is always
// best-effort and never blocks or fails the surrounding turn.
func (f *Facade) speak(ctx context.Context, text string) {
	skill, err := f.skills.Get("speak")
	if err != nil {
		return
	}
	_, _ = skill.Execute(ctx, map[string]any{"text": text})
}

// recordTurn appends the goal/reply pair to short-term memory. reply
// is always the actual final text, never a placeholder — correcting
// the upstream streaming-path bug of recording a canned
// "Task completed successfully." string instead.
func (f *Facade) recordTurn(goal, reply string) {
	f.shortTerm.Add(apitypes.ConversationTurn{
		Goal:      goal,
		Result:    reply,
		Timestamp: time.Now().Unix(),
	})
}

// mergeContext folds working memory, emotional state, and notable
// information into baseContext. Fixed keys always win over any
// caller-supplied value of the same name, matching the source's
// literal-after-spread merge order.
func (f *Facade) mergeContext(ctx context.Context, baseContext map[string]any, working apitypes.WorkingMemory) map[string]any {
	merged := make(map[string]any, len(baseContext)+3)
	for k, v := range baseContext {
		merged[k] = v
	}
	merged["conversation_history"] = working.Turns
	merged["conversation_summary"] = working.Summary
	if working.Emotional != "" {
		merged["emotional_state"] = working.Emotional
	}
	if f.config != nil {
		if notable, err := f.config.SearchNotable(ctx, "", 0); err == nil && len(notable) > 0 {
			info := make(map[string]any, len(notable))
			for _, n := range notable {
				info[n.Key] = n.Value
			}
			merged["notable_information"] = info
		}
	}
	return merged
}

// perceiveEmotion queries the emotion perception module for goal and
// folds the detected human-emotion label into short-term memory, the
// source feeding mergeContext's emotional_state and a future turn's
// planning context. Run on its own goroutine so a slow or failing
// classification never delays the caller's response.
func (f *Facade) perceiveEmotion(goal string) {
	result, err := f.perception.Perceive(context.Background(), "emotion", goal)
	if err != nil {
		return
	}
	state, ok := result.(map[string]any)
	if !ok {
		return
	}
	if label, ok := state["human_emotion"].(string); ok && label != "" {
		f.shortTerm.SetEmotional(label)
	}
}

// outputReply extracts the canonical final-answer text from a skill
// output map, checking "reply" before the looser "text"/"response"
// fallbacks a skill author might have used instead.
func outputReply(output map[string]any) string {
	for _, key := range []string{"reply", "text", "response"} {
		if s, ok := output[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// historyMessages renders the last few conversation turns as
// alternating user/assistant messages for the fast-model intent
// classifier.
func historyMessages(turns []apitypes.ConversationTurn) []model.Message {
	const maxTurns = 5
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	messages := make([]model.Message, 0, len(turns)*2)
	for _, t := range turns {
		messages = append(messages,
			model.Message{Role: model.RoleUser, Content: t.Goal},
			model.Message{Role: model.RoleAssistant, Content: t.Result},
		)
	}
	return messages
}
