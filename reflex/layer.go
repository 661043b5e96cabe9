// Package reflex implements the Reflex Layer: a name-keyed registry of
// if-trigger-then-plan units that react to injected events independent
// of the deliberative Planner, each contributing at most one Plan per
// processed event.
package reflex

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/apitypes"
	"github.com/kanephamphu/connex-agi/telemetry"
)

// Event is an environmental occurrence handed to every active reflex.
type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Module is an if-trigger-then-plan unit: Evaluate decides whether
// event fires it, GetPlan supplies the actions to run when it does.
type Module interface {
	Metadata() apitypes.ReflexMetadata
	Evaluate(ctx context.Context, event Event) (bool, error)
	GetPlan(ctx context.Context) ([]apitypes.Action, error)
}

// Triggered pairs a reflex name with the Plan it produced.
type Triggered struct {
	Reflex string
	Plan   apitypes.Plan
}

// Layer manages registered Modules and dispatches incoming Events to
// them, isolating one reflex's failure from the rest.
type Layer struct {
	mu       sync.RWMutex
	reflexes map[string]Module
	order    []string

	obs *telemetry.Observability
}

// New builds an empty Layer.
func New(obs *telemetry.Observability) *Layer {
	if obs == nil {
		obs = telemetry.New(nil, nil, nil)
	}
	return &Layer{reflexes: make(map[string]Module), obs: obs}
}

// Register installs module under its metadata name, replacing any
// prior registration of the same name.
func (l *Layer) Register(module Module) error {
	meta := module.Metadata()
	if meta.Name == "" {
		return agierr.New(agierr.KindConfiguration, "reflex: register requires a non-empty name")
	}
	l.mu.Lock()
	if _, exists := l.reflexes[meta.Name]; !exists {
		l.order = append(l.order, meta.Name)
	}
	l.reflexes[meta.Name] = module
	l.mu.Unlock()
	return nil
}

// GetModule returns the live reflex registered under name.
func (l *Layer) GetModule(name string) (Module, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.reflexes[name]
	return m, ok
}

// ProcessEvent evaluates event against every registered reflex, in
// registration order, collecting one Plan from each that accepts. A
// reflex whose Evaluate or GetPlan returns an error is skipped and
// logged; it never prevents the rest from firing.
func (l *Layer) ProcessEvent(ctx context.Context, event Event) []Triggered {
	l.mu.RLock()
	names := make([]string, len(l.order))
	copy(names, l.order)
	modules := make(map[string]Module, len(l.reflexes))
	for k, v := range l.reflexes {
		modules[k] = v
	}
	l.mu.RUnlock()

	var triggered []Triggered
	for _, name := range names {
		module, ok := modules[name]
		if !ok {
			continue
		}
		should, err := l.safeEvaluate(ctx, module, event)
		if err != nil {
			l.obs.LogOperation(ctx, telemetry.OperationEvent{
				Component: "reflex", Operation: "evaluate", Outcome: telemetry.OutcomeError,
				Query: fmt.Sprintf("reflex=%s error=%s", name, err),
			})
			continue
		}
		if !should {
			continue
		}

		actions, err := l.safeGetPlan(ctx, module)
		if err != nil {
			l.obs.LogOperation(ctx, telemetry.OperationEvent{
				Component: "reflex", Operation: "get_plan", Outcome: telemetry.OutcomeError,
				Query: fmt.Sprintf("reflex=%s error=%s", name, err),
			})
			continue
		}

		triggered = append(triggered, Triggered{
			Reflex: name,
			Plan: apitypes.Plan{
				Goal:      "Reflex Trigger: " + name,
				Actions:   actions,
				Reasoning: "Triggered by reflex module " + name,
			},
		})
	}
	return triggered
}

// safeEvaluate recovers a panicking Evaluate into an error so one
// misbehaving reflex module never aborts event processing for others.
func (l *Layer) safeEvaluate(ctx context.Context, module Module, event Event) (should bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = agierr.Newf(agierr.KindExecution, "reflex: evaluate panicked: %v", r)
		}
	}()
	return module.Evaluate(ctx, event)
}

func (l *Layer) safeGetPlan(ctx context.Context, module Module) (actions []apitypes.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = agierr.Newf(agierr.KindExecution, "reflex: get_plan panicked: %v", r)
		}
	}()
	return module.GetPlan(ctx)
}

// ActiveReflexes returns the names of every registered reflex, in
// registration order.
func (l *Layer) ActiveReflexes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// LoadDirectory loads dynamic reflex modules the same way the
// Perception Layer's LoadDirectory discovers dynamic sensors: one
// subdirectory per module, gated by a manifest and a shell entry
// point run out-of-process.
func (l *Layer) LoadDirectory(root string, newDynamic func(dirName, dir, entryPoint string, manifest []byte) (Module, error)) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return agierr.Wrap(agierr.KindFatalSystem, "reflex: read directory", agierr.FromError(err))
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		manifestPath := filepath.Join(dir, "REFLEX.md")
		manifest, err := os.ReadFile(manifestPath)
		if err != nil {
			continue
		}
		entryPoint := filepath.Join(dir, "system.sh")
		if info, err := os.Stat(entryPoint); err != nil || info.IsDir() {
			continue
		}
		module, err := newDynamic(entry.Name(), dir, entryPoint, manifest)
		if err != nil {
			return err
		}
		if err := l.Register(module); err != nil {
			return err
		}
	}
	return nil
}
