package reflex

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kanephamphu/connex-agi/apitypes"
)

// Safety halts execution the instant a goal or event payload contains
// a forbidden keyword, bypassing the Planner entirely.
type Safety struct {
	forbidden []string
}

func NewSafety() *Safety {
	return &Safety{forbidden: []string{"hack", "steal", "leak", "malware", "ddos", "destructive"}}
}

func (s *Safety) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{
		Name:        "safety_policer",
		Description: "Enforces core safety and ethical boundaries instantly.",
		TriggerType: "goal_analysis",
	}
}

func (s *Safety) Evaluate(ctx context.Context, event Event) (bool, error) {
	content := strings.ToLower(fmt.Sprint(event.Payload["goal"]) + " " + fmt.Sprint(event.Payload))
	for _, word := range s.forbidden {
		if strings.Contains(content, word) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Safety) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	return []apitypes.Action{{
		ID:          "safety_halt",
		Skill:       "chat_response",
		Description: "Report safety violation to user",
		Inputs: map[string]any{
			"reply": "Reflex Error: this request violates safety policies. Execution halted at the nervous system layer.",
		},
	}}, nil
}

// Governor throttles activity when telemetry reports CPU pressure
// above 90%.
type Governor struct{}

func NewGovernor() *Governor { return &Governor{} }

func (g *Governor) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{
		Name:        "resource_governor",
		Description: "Automatically throttles or pauses activity during high system stress.",
		TriggerType: "telemetry",
	}
}

func (g *Governor) Evaluate(ctx context.Context, event Event) (bool, error) {
	if event.Type != "telemetry_update" {
		return false, nil
	}
	cpu, _ := event.Payload["cpu_percent"].(float64)
	return cpu > 90, nil
}

func (g *Governor) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	return []apitypes.Action{{
		ID:          "throttle_wait",
		Skill:       "code_executor",
		Description: "Enforce mandatory cooldown period",
		Inputs: map[string]any{
			"code": "time.Sleep(5 * time.Second)",
		},
	}}, nil
}

// Scheduler acknowledges periodic time ticks; a no-op plan that exists
// to make liveness visible through the Orchestrator's trace.
type Scheduler struct{}

func NewScheduler() *Scheduler { return &Scheduler{} }

func (s *Scheduler) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{
		Name:        "scheduler",
		Description: "Triggers periodic tasks.",
		TriggerType: "tick",
	}
}

func (s *Scheduler) Evaluate(ctx context.Context, event Event) (bool, error) {
	return event.Type == "tick", nil
}

func (s *Scheduler) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	return nil, nil
}

// AutoRecovery bypasses the Planner entirely when a critical system
// alert fires, issuing a fixed diagnostics-then-log plan.
type AutoRecovery struct{}

func NewAutoRecovery() *AutoRecovery { return &AutoRecovery{} }

func (a *AutoRecovery) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{
		Name:        "auto_recovery",
		Description: "Automatically handles critical system load alerts.",
		TriggerType: "webhook",
	}
}

func (a *AutoRecovery) Evaluate(ctx context.Context, event Event) (bool, error) {
	if event.Type != "system_alert" {
		return false, nil
	}
	severity, _ := event.Payload["severity"].(string)
	return severity == "critical", nil
}

func (a *AutoRecovery) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	return []apitypes.Action{
		{
			ID:          "step_1",
			Skill:       "system_monitor",
			Description: "Identify resource hogs",
			Inputs:      map[string]any{"query": "full_report"},
		},
		{
			ID:          "step_2",
			Skill:       "text_analyzer",
			Description: "Log the incident",
			Inputs: map[string]any{
				"text": "CRITICAL INCIDENT: system load exceeded safety thresholds. Auto-recovery initiated.",
			},
			DependsOn: []string{"step_1"},
		},
	}, nil
}

func weatherConditionText(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code >= 1 && code <= 3:
		return "Partly cloudy"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 55:
		return "Drizzle"
	case code >= 61 && code <= 65:
		return "Rain"
	case code >= 71 && code <= 75:
		return "Snow"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Unknown"
	}
}

// WeatherAlert announces a weather change. Evaluate captures the
// triggering payload so the subsequent GetPlan call — which the
// interface does not parameterise with the event — can still describe
// what changed; reflex dispatch for one module is sequential by
// contract, so this capture-then-read is race-free.
type WeatherAlert struct {
	mu      sync.Mutex
	latest  map[string]any
}

func NewWeatherAlert() *WeatherAlert { return &WeatherAlert{} }

func (w *WeatherAlert) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{
		Name:        "weather_alert",
		Description: "Notifies the user of weather changes.",
		TriggerType: "weather_change",
	}
}

func (w *WeatherAlert) Evaluate(ctx context.Context, event Event) (bool, error) {
	if event.Type != "weather_change" {
		return false, nil
	}
	w.mu.Lock()
	w.latest = event.Payload
	w.mu.Unlock()
	return true, nil
}

func (w *WeatherAlert) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	w.mu.Lock()
	payload := w.latest
	w.mu.Unlock()

	code, _ := payload["new_code"].(int)
	temp := payload["temp"]
	condition := weatherConditionText(code)

	return []apitypes.Action{{
		ID:          "weather_notification",
		Skill:       "speak",
		Description: "Announce weather change",
		Inputs: map[string]any{
			"text": fmt.Sprintf("Weather update: it is now %s and %v degrees.", condition, temp),
		},
	}}, nil
}

// VoiceCommand delegates a debounced spoken utterance to the AGI
// facade's planning path, first running emotion detection for
// context.
type VoiceCommand struct {
	mu      sync.Mutex
	command string
}

func NewVoiceCommand() *VoiceCommand { return &VoiceCommand{} }

func (v *VoiceCommand) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{
		Name:        "voice_commander",
		Description: "Transforms spoken text into a goal-oriented plan.",
		TriggerType: "voice_input",
	}
}

func (v *VoiceCommand) Evaluate(ctx context.Context, event Event) (bool, error) {
	if event.Type != "voice_input" {
		return false, nil
	}
	text, _ := event.Payload["text"].(string)
	status, _ := event.Payload["status"].(string)
	if status != "success" || text == "" {
		return false, nil
	}
	v.mu.Lock()
	v.command = text
	v.mu.Unlock()
	return true, nil
}

func (v *VoiceCommand) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	v.mu.Lock()
	command := v.command
	v.mu.Unlock()

	return []apitypes.Action{
		{
			ID:          "detect_emotion",
			Skill:       "emotion_detection",
			Description: "Analyze human and self emotions for the spoken command.",
			Inputs:      map[string]any{"text": command},
		},
		{
			ID:          "delegate_to_brain",
			Skill:       "agi_brain_interface",
			Description: "Delegate the spoken command to the AGI brain for decomposition, speaking the reply.",
			Inputs:      map[string]any{"goal": command, "speak": true},
			DependsOn:   []string{"detect_emotion"},
		},
	}, nil
}

// SmartClipboard offers to act on a URL copied to the clipboard.
type SmartClipboard struct{}

func NewSmartClipboard() *SmartClipboard { return &SmartClipboard{} }

func (c *SmartClipboard) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{
		Name:        "smart_clipboard",
		Description: "Analyzes copied text and suggests actions.",
		TriggerType: "clipboard_change",
	}
}

func (c *SmartClipboard) Evaluate(ctx context.Context, event Event) (bool, error) {
	if event.Type != "clipboard_change" {
		return false, nil
	}
	content, _ := event.Payload["content"].(string)
	return strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://"), nil
}

func (c *SmartClipboard) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	return []apitypes.Action{{
		ID:          "offer_browsing",
		Skill:       "speak",
		Description: "Offer to browse the copied URL",
		Inputs:      map[string]any{"text": "I see you copied a link. Would you like me to read it?"},
	}}, nil
}

// HistoryLookup is the subset of run history SelfRepair consumes.
type HistoryLookup interface {
	Recent(limit int) []map[string]any
}

// SelfRepair watches for a repeated-failure pattern in recent run
// history and triggers a diagnostics plan.
type SelfRepair struct {
	history   HistoryLookup
	threshold int
}

func NewSelfRepair(history HistoryLookup, threshold int) *SelfRepair {
	if threshold <= 0 {
		threshold = 3
	}
	return &SelfRepair{history: history, threshold: threshold}
}

func (s *SelfRepair) Metadata() apitypes.ReflexMetadata {
	return apitypes.ReflexMetadata{
		Name:        "auto_healer",
		Description: "Detects high error rates and triggers generic diagnostics.",
		TriggerType: "history_check",
	}
}

func (s *SelfRepair) Evaluate(ctx context.Context, event Event) (bool, error) {
	if event.Type == "execution_error" {
		return true, nil
	}
	if event.Type != "health_check" || s.history == nil {
		return false, nil
	}
	recent := s.history.Recent(s.threshold)
	failures := 0
	for _, item := range recent {
		if item["status"] == "failed" {
			failures++
		}
	}
	return failures >= s.threshold, nil
}

func (s *SelfRepair) GetPlan(ctx context.Context) ([]apitypes.Action, error) {
	return []apitypes.Action{
		{
			ID:          "run_diagnostics",
			Skill:       "system_monitor",
			Description: "Run system health check due to high error rate.",
			Inputs:      map[string]any{"query": "full_report"},
		},
		{
			ID:          "announce_repair",
			Skill:       "speak",
			Description: "Announce repair mode",
			Inputs:      map[string]any{"text": "Warning: high error rate detected. Initiating self-diagnostic sequence."},
		},
	}, nil
}
