package apitypes

import (
	"fmt"
	"strings"
	"sync"
)

// ExecutionState is the Orchestrator's per-run bookkeeping: one StepResult
// per action, the completed/failed/pending id sets, and the global dotted
// output map consulted by the IO Mapper. It is created when the
// Orchestrator begins a plan and discarded after the final event is
// emitted; it is never persisted.
type ExecutionState struct {
	mu        sync.RWMutex
	results   map[string]StepResult
	completed []string
	failed    []string
	pending   map[string]struct{}
	outputs   map[string]any // "<action_id>.<key>" -> value
}

// NewExecutionState creates state for a plan whose actions are all
// initially pending.
func NewExecutionState(actionIDs []string) *ExecutionState {
	pending := make(map[string]struct{}, len(actionIDs))
	for _, id := range actionIDs {
		pending[id] = struct{}{}
	}
	return &ExecutionState{
		results: make(map[string]StepResult),
		pending: pending,
		outputs: make(map[string]any),
	}
}

// MarkCompleted records a successful StepResult, moves the action out of
// pending, and atomically installs its outputs into the global dotted map.
func (s *ExecutionState) MarkCompleted(id string, result StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = result
	delete(s.pending, id)
	s.completed = append(s.completed, id)
	for k, v := range result.Output {
		s.outputs[id+"."+k] = v
	}
}

// MarkFailed records a failed StepResult and moves the action out of pending.
func (s *ExecutionState) MarkFailed(id string, result StepResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = result
	delete(s.pending, id)
	s.failed = append(s.failed, id)
}

// GetOutput resolves a dotted reference of the form "<action_id>.<key>"
// against the global output map. It returns an error if the action has
// not completed or the key is not present in its output.
func (s *ExecutionState) GetOutput(ref string) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.outputs[ref]
	if !ok {
		return nil, fmt.Errorf("apitypes: unresolved reference %q", ref)
	}
	return v, nil
}

// LooksLikeReference reports whether s has the shape "<action_id>.<key>":
// its first '.' has at least one character on each side.
func LooksLikeReference(s string) bool {
	idx := strings.IndexByte(s, '.')
	return idx > 0 && idx < len(s)-1
}

// Completed returns the ids of actions that completed successfully, in
// completion order.
func (s *ExecutionState) Completed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.completed))
	copy(out, s.completed)
	return out
}

// Failed returns the ids of actions that failed, in failure order.
func (s *ExecutionState) Failed() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.failed))
	copy(out, s.failed)
	return out
}

// Pending returns the ids of actions that have neither completed nor failed.
func (s *ExecutionState) Pending() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.pending))
	for id := range s.pending {
		out = append(out, id)
	}
	return out
}

// Result returns the recorded StepResult for id, if any.
func (s *ExecutionState) Result(id string) (StepResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	return r, ok
}

// Trace returns the StepResult for every completed action, in completion order.
func (s *ExecutionState) Trace() []StepResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StepResult, 0, len(s.completed))
	for _, id := range s.completed {
		out = append(out, s.results[id])
	}
	return out
}
