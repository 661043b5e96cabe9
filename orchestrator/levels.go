package orchestrator

import "github.com/kanephamphu/connex-agi/apitypes"

// executionLevels computes topological generations of the action DAG:
// each returned slice holds action ids whose dependencies are fully
// satisfied by every earlier slice, so actions within one slice can run
// concurrently. Ties are broken by the actions' declaration order so
// output is deterministic for a given Plan.
func executionLevels(plan apitypes.Plan) [][]string {
	indegree := make(map[string]int, len(plan.Actions))
	dependents := make(map[string][]string, len(plan.Actions))
	order := make([]string, 0, len(plan.Actions))

	for _, a := range plan.Actions {
		order = append(order, a.ID)
		if _, ok := indegree[a.ID]; !ok {
			indegree[a.ID] = 0
		}
		for _, dep := range a.DependsOn {
			indegree[a.ID]++
			dependents[dep] = append(dependents[dep], a.ID)
		}
	}

	var levels [][]string
	remaining := indegree
	done := map[string]bool{}

	for len(done) < len(order) {
		var level []string
		for _, id := range order {
			if done[id] {
				continue
			}
			if remaining[id] == 0 {
				level = append(level, id)
			}
		}
		if len(level) == 0 {
			// Cycle or dangling dependency: drain whatever remains as a
			// single best-effort final level rather than looping forever.
			for _, id := range order {
				if !done[id] {
					level = append(level, id)
				}
			}
		}
		for _, id := range level {
			done[id] = true
			for _, dep := range dependents[id] {
				remaining[dep]--
			}
		}
		levels = append(levels, level)
	}
	return levels
}
