package orchestrator

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/kanephamphu/connex-agi/apitypes"
)

// buildDAGPlan turns depCounts into a Plan whose i-th action depends on
// the depCounts[i] most recently declared actions before it (clamped to
// i). Every dependency index is strictly less than its dependent's, so
// the resulting graph is acyclic by construction regardless of the
// input.
func buildDAGPlan(depCounts []int) apitypes.Plan {
	actions := make([]apitypes.Action, len(depCounts))
	for i, n := range depCounts {
		if n < 0 {
			n = 0
		}
		if n > i {
			n = i
		}
		var deps []string
		for j := i - n; j < i; j++ {
			deps = append(deps, fmt.Sprintf("action_%d", j))
		}
		actions[i] = apitypes.Action{
			ID:        fmt.Sprintf("action_%d", i),
			Skill:     "noop",
			DependsOn: deps,
		}
	}
	return apitypes.Plan{Goal: "property test", Actions: actions}
}

// TestExecutionLevelsProperties checks the topological-levels invariants
// the Orchestrator relies on: every action is scheduled exactly once,
// and every action's level strictly follows the level of each of its
// dependencies.
func TestExecutionLevelsProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every action appears in exactly one level", prop.ForAll(
		func(depCounts []int) bool {
			plan := buildDAGPlan(depCounts)
			levels := executionLevels(plan)

			seen := map[string]int{}
			for _, level := range levels {
				for _, id := range level {
					seen[id]++
				}
			}
			if len(seen) != len(plan.Actions) {
				return false
			}
			for _, count := range seen {
				if count != 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.Property("a dependency's level is always earlier than its dependent's", prop.ForAll(
		func(depCounts []int) bool {
			plan := buildDAGPlan(depCounts)
			levels := executionLevels(plan)

			levelOf := map[string]int{}
			for idx, level := range levels {
				for _, id := range level {
					levelOf[id] = idx
				}
			}
			for _, a := range plan.Actions {
				for _, dep := range a.DependsOn {
					if levelOf[dep] >= levelOf[a.ID] {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.Property("level count never exceeds action count", prop.ForAll(
		func(depCounts []int) bool {
			plan := buildDAGPlan(depCounts)
			levels := executionLevels(plan)
			return len(levels) <= len(plan.Actions) || len(plan.Actions) == 0
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}
