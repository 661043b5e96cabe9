package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/model"
)

// SystemMonitor reports process-level health metrics, the Go analogue
// of the teacher's simulated `system://metrics/live` MCP resource:
// instead of mocked numbers it reports this process's own goroutine
// count and heap usage, which are the metrics actually available to a
// single Go binary without a host agent.
type SystemMonitor struct{}

func NewSystemMonitor() *SystemMonitor { return &SystemMonitor{} }

func (s *SystemMonitor) Metadata() apitypes.PerceptionMetadata {
	return apitypes.PerceptionMetadata{
		Name:        "system_monitor",
		Description: "Provides real-time process health metrics (goroutines, heap). Use this to check runtime health.",
		Category:    "system",
		SubCategory: "metrics",
		Version:     "1.0.0",
		Enabled:     true,
	}
}

func (s *SystemMonitor) Connect(ctx context.Context) error { return nil }

func (s *SystemMonitor) Disconnect(ctx context.Context) error { return nil }

func (s *SystemMonitor) Perceive(ctx context.Context, query string) (any, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()

	analysis := "NORMAL"
	switch {
	case goroutines > 5000:
		analysis = "CRITICAL_LOAD"
	case goroutines > 1000:
		analysis = "HIGH_LOAD"
	}

	return map[string]any{
		"status": "active",
		"metrics": map[string]any{
			"goroutines":   goroutines,
			"heap_alloc_mb": mem.HeapAlloc / (1024 * 1024),
			"heap_sys_mb":   mem.HeapSys / (1024 * 1024),
		},
		"analysis": analysis,
	}, nil
}

// ClipboardReader abstracts the OS clipboard so Clipboard itself stays
// platform-independent and testable; production wiring supplies a
// backend reading the real system clipboard.
type ClipboardReader func() (string, error)

// Clipboard monitors a read source for content changes, surfacing both
// an on-demand read and a change-detection poll for a sensor driver to
// call on a cadence.
type Clipboard struct {
	read ClipboardReader

	mu   sync.Mutex
	last string
}

func NewClipboard(read ClipboardReader) *Clipboard {
	return &Clipboard{read: read}
}

func (c *Clipboard) Metadata() apitypes.PerceptionMetadata {
	return apitypes.PerceptionMetadata{
		Name:        "clipboard_monitor",
		Description: "Monitors the system clipboard for new content.",
		Category:    "system",
		SubCategory: "io",
		Version:     "1.0.0",
		Enabled:     true,
	}
}

func (c *Clipboard) Connect(ctx context.Context) error { return nil }

func (c *Clipboard) Disconnect(ctx context.Context) error { return nil }

func (c *Clipboard) Perceive(ctx context.Context, query string) (any, error) {
	content, err := c.read()
	if err != nil {
		return map[string]any{"error": err.Error()}, nil
	}
	return map[string]any{"content": content}, nil
}

// CheckChange reports the clipboard content if it differs from the
// last observed value and is non-empty, and false otherwise. Intended to be
// polled by a sensor driver.
func (c *Clipboard) CheckChange(ctx context.Context) (string, bool) {
	content, err := c.read()
	if err != nil {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if content == c.last || content == "" {
		return "", false
	}
	c.last = content
	return content, true
}

// TimeSense answers on-demand time queries; scheduled-event emission
// lives in the Time Sensor driver (sensors.Time), not here — this
// module is the always-available "what time is it" perceive path the
// Planner and reflexes query directly.
type TimeSense struct{ now func() time.Time }

func NewTimeSense() *TimeSense { return &TimeSense{now: time.Now} }

func (t *TimeSense) Metadata() apitypes.PerceptionMetadata {
	return apitypes.PerceptionMetadata{
		Name:        "time_sense",
		Description: "Provides the current time and date.",
		Category:    "system",
		SubCategory: "time",
		Version:     "1.0.0",
		Enabled:     true,
	}
}

func (t *TimeSense) Connect(ctx context.Context) error { return nil }

func (t *TimeSense) Disconnect(ctx context.Context) error { return nil }

func (t *TimeSense) Perceive(ctx context.Context, query string) (any, error) {
	now := t.now()
	return map[string]any{
		"timestamp":      now.Unix(),
		"human_readable": now.Format(time.RFC1123),
	}, nil
}

// Weather queries Open-Meteo's free forecast endpoint for a fixed
// coordinate, mirroring the teacher's `_fetch_weather` call.
type Weather struct {
	client         *http.Client
	lat, lon       float64
	baseURL        string
}

func NewWeather(lat, lon float64) *Weather {
	return &Weather{
		client:  &http.Client{Timeout: 5 * time.Second},
		lat:     lat,
		lon:     lon,
		baseURL: "https://api.open-meteo.com/v1/forecast",
	}
}

func (w *Weather) Metadata() apitypes.PerceptionMetadata {
	return apitypes.PerceptionMetadata{
		Name:        "weather_monitor",
		Description: "Monitors local weather conditions.",
		Category:    "environment",
		SubCategory: "data",
		Version:     "1.0.0",
		Enabled:     true,
	}
}

func (w *Weather) Connect(ctx context.Context) error { return nil }

func (w *Weather) Disconnect(ctx context.Context) error { return nil }

func (w *Weather) Perceive(ctx context.Context, query string) (any, error) {
	url := fmt.Sprintf("%s?latitude=%f&longitude=%f&current_weather=true", w.baseURL, w.lat, w.lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return map[string]any{}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return map[string]any{}, nil
	}
	var body struct {
		CurrentWeather map[string]any `json:"current_weather"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return map[string]any{}, nil
	}
	return body.CurrentWeather, nil
}

// SkillLister is the subset of the Skill Registry Capability needs.
type SkillLister interface {
	List(ctx context.Context, includeDisabled bool) ([]apitypes.SkillMetadata, error)
}

// Capability senses the AGI's own tool surface by querying the Skill
// Registry, letting the Planner fold "what can I do" into context.
type Capability struct{ skills SkillLister }

func NewCapability(skills SkillLister) *Capability {
	return &Capability{skills: skills}
}

func (c *Capability) Metadata() apitypes.PerceptionMetadata {
	return apitypes.PerceptionMetadata{
		Name:        "capability_scanner",
		Description: "Returns information about registered skills and tools.",
		Category:    "core",
		SubCategory: "introspection",
		Version:     "1.0.0",
		Enabled:     true,
	}
}

func (c *Capability) Connect(ctx context.Context) error { return nil }

func (c *Capability) Disconnect(ctx context.Context) error { return nil }

func (c *Capability) Perceive(ctx context.Context, query string) (any, error) {
	metas, err := c.skills.List(ctx, false)
	if err != nil {
		return map[string]any{"error": err.Error()}, nil
	}
	out := make([]map[string]any, 0, len(metas))
	for _, m := range metas {
		out = append(out, map[string]any{
			"name":         m.Name,
			"category":     m.Category,
			"sub_category": m.SubCategory,
			"description":  m.Description,
		})
	}
	return map[string]any{"skills": out, "count": len(out)}, nil
}

// EmotionChatter is the subset of the Model Router the Emotion module
// needs: a single fast-tier chat call per party; satisfied by
// *model.Router.
type EmotionChatter interface {
	Chat(ctx context.Context, class model.TaskClass, messages []model.Message, temperature float64, maxTokens int) (string, error)
}

// Emotion detects the human party's and the AGI's own emotional tone
// for a query, classifying each independently with a short one-word
// label and remembering the last observed state for callers that
// perceive with an empty query.
type Emotion struct {
	router EmotionChatter

	mu    sync.Mutex
	state map[string]any
}

func NewEmotion(router EmotionChatter) *Emotion {
	return &Emotion{router: router, state: map[string]any{
		"human_emotion": "neutral",
		"agi_emotion":   "neutral",
		"last_update":   int64(0),
	}}
}

func (e *Emotion) Metadata() apitypes.PerceptionMetadata {
	return apitypes.PerceptionMetadata{
		Name:        "emotion",
		Description: "Detects emotional state of the user and the AGI itself.",
		Category:    "social",
		SubCategory: "emotional_intelligence",
		Version:     "1.0.0",
		Enabled:     true,
	}
}

func (e *Emotion) Connect(ctx context.Context) error { return nil }

func (e *Emotion) Disconnect(ctx context.Context) error { return nil }

// Perceive classifies the human and AGI emotional tone of query with
// two independent fast-tier model calls, and returns (without
// reclassifying) the last observed state when query is empty or the
// router is unavailable.
func (e *Emotion) Perceive(ctx context.Context, query string) (any, error) {
	if query == "" || e.router == nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		return cloneState(e.state), nil
	}

	human, _ := e.router.Chat(ctx, model.TaskFast, []model.Message{
		{Role: model.RoleSystem, Content: "You are an emotion detection specialist. Analyze the HUMAN's query and respond with exactly one word: happy, sad, angry, neutral, curious, or frustrated."},
		{Role: model.RoleUser, Content: query},
	}, 0.0, 10)
	agiEmotion, _ := e.router.Chat(ctx, model.TaskFast, []model.Message{
		{Role: model.RoleSystem, Content: "You are an introspection specialist. Analyze how an AGI should feel about handling this request and respond with exactly one word: helpful, concerned, analytical, cautious, or enthusiastic."},
		{Role: model.RoleUser, Content: query},
	}, 0.0, 10)

	e.mu.Lock()
	defer e.mu.Unlock()
	if human != "" {
		e.state["human_emotion"] = strings.ToLower(strings.TrimSpace(human))
	}
	if agiEmotion != "" {
		e.state["agi_emotion"] = strings.ToLower(strings.TrimSpace(agiEmotion))
	}
	e.state["last_update"] = time.Now().Unix()
	return cloneState(e.state), nil
}

func cloneState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

// Workload reports internal scheduling pressure — goroutine count as a
// proxy for CPU-bound work in flight, plus heap usage — the Go
// equivalent of the teacher's psutil-based CPU/RAM snapshot.
type Workload struct{}

func NewWorkload() *Workload { return &Workload{} }

func (w *Workload) Metadata() apitypes.PerceptionMetadata {
	return apitypes.PerceptionMetadata{
		Name:        "workload_monitor",
		Description: "Perceives goroutine and memory pressure as internal task load.",
		Category:    "core",
		SubCategory: "state",
		Version:     "1.0.0",
		Enabled:     true,
	}
}

func (w *Workload) Connect(ctx context.Context) error { return nil }

func (w *Workload) Disconnect(ctx context.Context) error { return nil }

func (w *Workload) Perceive(ctx context.Context, query string) (any, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	goroutines := runtime.NumGoroutine()

	status := "nominal"
	switch {
	case goroutines > 5000:
		status = "critical"
	case goroutines > 1000:
		status = "stressed"
	}

	return map[string]any{
		"timestamp":         time.Now().Unix(),
		"goroutines":        goroutines,
		"heap_alloc_mb":     mem.HeapAlloc / (1024 * 1024),
		"heap_available_mb": mem.HeapSys / (1024 * 1024),
		"status":            status,
	}, nil
}
