package planner

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/kanephamphu/connex-agi/apitypes"
)

const systemPromptTemplateSrc = `You are an expert AI planner that decomposes complex goals into executable action sequences.

Your task is to create a DETAILED, STEP-BY-STEP plan that breaks down the user's goal into discrete actions.

# Available Skills

You must ONLY use the following skills. Do not invent new ones.

{{range .Skills}}- **{{.Name}}**: {{.Description}}
  - Inputs: {{.Inputs}}
  - Outputs: {{.Outputs}}

{{end}}
# Planning Guidelines

1. Decompose thoroughly: break complex tasks into small, focused actions.
2. Define dependencies with depends_on to ensure proper ordering.
3. Specify I/O: clearly define what each action produces and consumes.
4. Use input_refs to connect actions (e.g. {"text": "action_1.results"}).
5. If the goal is conversational (a greeting or a question with no side effect), prefer a single chat-style action if one is available.
6. Use the exact input parameter names listed for each skill; never invent keys the schema does not declare.

# Output Format

Respond with a single valid JSON object:
{
  "reasoning": "step-by-step explanation",
  "actions": [
    {"id": "action_1", "skill": "web_search", "description": "...", "inputs": {"query": "..."}, "output_schema": {}, "depends_on": []}
  ],
  "expected_outcome": "description of the final result"
}
`

var systemPromptTemplate = template.Must(template.New("planner_system").Parse(systemPromptTemplateSrc))

type skillPromptView struct {
	Name        string
	Description string
	Inputs      string
	Outputs     string
}

// renderSystemPrompt renders the planner's system prompt for the given
// candidate skills, listing each skill's declared inputs (with allowed
// enum values, where present) and outputs.
func renderSystemPrompt(skills []apitypes.SkillMetadata) (string, error) {
	views := make([]skillPromptView, len(skills))
	for i, s := range skills {
		views[i] = skillPromptView{
			Name:        s.Name,
			Description: s.Description,
			Inputs:      describeInputs(s.InputSchema),
			Outputs:     describeOutputs(s.OutputSchema),
		}
	}

	var b strings.Builder
	if err := systemPromptTemplate.Execute(&b, struct{ Skills []skillPromptView }{views}); err != nil {
		return "", fmt.Errorf("render planner system prompt: %w", err)
	}
	return b.String(), nil
}

func describeInputs(inputSchema map[string]any) string {
	props, _ := inputSchema["properties"].(map[string]any)
	if len(props) == 0 {
		return "None"
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		prop, _ := props[name].(map[string]any)
		typ, _ := prop["type"].(string)
		if typ == "" {
			typ = "any"
		}
		if enum, ok := prop["enum"].([]any); ok && len(enum) > 0 {
			values := make([]string, len(enum))
			for i, v := range enum {
				values[i] = fmt.Sprintf("%v", v)
			}
			typ = fmt.Sprintf("%s (Allowed: %s)", typ, strings.Join(values, ", "))
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, typ))
	}
	return strings.Join(parts, ", ")
}

func describeOutputs(outputSchema map[string]any) string {
	if len(outputSchema) == 0 {
		return ""
	}
	names := make([]string, 0, len(outputSchema))
	for name := range outputSchema {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s (%v)", name, outputSchema[name])
	}
	return strings.Join(parts, ", ")
}

// buildUserPrompt renders the goal and accumulated context (including
// any gathered sensor data) into the planner's user-turn prompt.
func buildUserPrompt(goal string, context map[string]any) string {
	var b strings.Builder
	b.WriteString("# Goal\n\n")
	b.WriteString(goal)
	b.WriteString("\n\n")

	if len(context) > 0 {
		b.WriteString("# Context\n\n")
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %v\n", k, context[k])
		}
		b.WriteString("\n")
	}

	b.WriteString("Create a detailed action plan to accomplish this goal. ")
	b.WriteString("Think step-by-step and respond with valid JSON only, matching the schema above.")
	return b.String()
}
