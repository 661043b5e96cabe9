package planner

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kanephamphu/connex-agi/apitypes"
)

// planSchemaDoc is the JSON Schema the model's plan JSON must satisfy.
// Structural constraints it cannot express (acyclic depends_on, known
// skill names) are checked separately in validatePlan.
const planSchemaDoc = `{
  "type": "object",
  "required": ["reasoning", "actions", "expected_outcome"],
  "properties": {
    "reasoning": {"type": "string"},
    "expected_outcome": {"type": "string"},
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "skill", "description"],
        "properties": {
          "id": {"type": "string"},
          "skill": {"type": "string"},
          "description": {"type": "string"},
          "inputs": {"type": "object"},
          "input_refs": {"type": "object"},
          "output_schema": {"type": "object"},
          "depends_on": {"type": "array", "items": {"type": "string"}},
          "priority": {"type": "string"}
        }
      }
    }
  }
}`

func compilePlanSchema() (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(planSchemaDoc), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal plan schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("plan.json", doc); err != nil {
		return nil, fmt.Errorf("add plan schema resource: %w", err)
	}
	return c.Compile("plan.json")
}

// planDocument is the raw shape the model is asked to emit; it is
// decoded once, schema-validated, then converted into apitypes.Plan.
type planDocument struct {
	Reasoning       string           `json:"reasoning"`
	ExpectedOutcome string           `json:"expected_outcome"`
	Actions         []actionDocument `json:"actions"`
}

type actionDocument struct {
	ID           string         `json:"id"`
	Skill        string         `json:"skill"`
	Description  string         `json:"description"`
	Inputs       map[string]any `json:"inputs,omitempty"`
	InputRefs    map[string]string `json:"input_refs,omitempty"`
	OutputSchema map[string]any `json:"output_schema,omitempty"`
	DependsOn    []string       `json:"depends_on,omitempty"`
	Priority     string         `json:"priority,omitempty"`
}

// validatePlan schema-validates raw plan JSON, then checks the
// structural invariants a JSON Schema cannot express: every depends_on
// id resolves to a known action, the dependency graph is acyclic, and
// (when knownSkills is non-nil) every skill name is one of the
// candidates offered to the model.
func validatePlan(schema *jsonschema.Schema, raw []byte, knownSkills map[string]bool) (planDocument, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return planDocument{}, fmt.Errorf("plan is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return planDocument{}, fmt.Errorf("plan failed schema validation: %w", err)
	}

	var parsed planDocument
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return planDocument{}, fmt.Errorf("decode plan: %w", err)
	}

	ids := make(map[string]bool, len(parsed.Actions))
	for _, a := range parsed.Actions {
		if ids[a.ID] {
			return planDocument{}, fmt.Errorf("duplicate action id %q", a.ID)
		}
		ids[a.ID] = true
	}
	for _, a := range parsed.Actions {
		for _, dep := range a.DependsOn {
			if !ids[dep] {
				return planDocument{}, fmt.Errorf("action %q depends on unknown action %q", a.ID, dep)
			}
		}
		if knownSkills != nil && !knownSkills[a.Skill] {
			return planDocument{}, fmt.Errorf("action %q references unknown skill %q", a.ID, a.Skill)
		}
	}
	if cycleAt := findCycle(parsed.Actions); cycleAt != "" {
		return planDocument{}, fmt.Errorf("plan contains a dependency cycle at action %q", cycleAt)
	}

	return parsed, nil
}

// findCycle returns the id of an action participating in a dependency
// cycle, or "" if the graph is acyclic.
func findCycle(actions []actionDocument) string {
	deps := make(map[string][]string, len(actions))
	for _, a := range actions {
		deps[a.ID] = a.DependsOn
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(actions))

	var visit func(id string) bool
	visit = func(id string) bool {
		switch color[id] {
		case gray:
			return true
		case black:
			return false
		}
		color[id] = gray
		for _, dep := range deps[id] {
			if visit(dep) {
				return true
			}
		}
		color[id] = black
		return false
	}

	for _, a := range actions {
		if color[a.ID] == white && visit(a.ID) {
			return a.ID
		}
	}
	return ""
}

func toPlan(goal string, doc planDocument, metadata map[string]any) apitypes.Plan {
	actions := make([]apitypes.Action, len(doc.Actions))
	for i, a := range doc.Actions {
		actions[i] = apitypes.Action{
			ID:           a.ID,
			Skill:        a.Skill,
			Description:  a.Description,
			Inputs:       a.Inputs,
			References:   a.InputRefs,
			OutputSchema: a.OutputSchema,
			DependsOn:    a.DependsOn,
			Priority:     apitypes.Priority(a.Priority),
		}
	}
	return apitypes.Plan{
		Goal:      goal,
		Actions:   actions,
		Reasoning: doc.Reasoning,
		Metadata:  metadata,
	}
}
