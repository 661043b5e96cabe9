// Package corrector implements the Orchestrator's in-place repair step:
// given a failed action's skill name, the inputs that caused the
// failure, and the error message, ask a fast/coding-tier model to
// propose a patched input map. Extraction is deliberately tolerant —
// raw JSON, then a fenced code block, then the first-to-last brace
// span — and any failure along the way yields nothing rather than an
// error, matching the contract callers rely on: a correction attempt
// either helps or is silently skipped.
package corrector

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kanephamphu/connex-agi/model"
)

const systemPrompt = "You are an automated debugger. Return valid JSON only."

// Corrector proposes patched inputs for a failed action.
type Corrector struct {
	router *model.Router
}

// New returns a Corrector that routes its diagnostic prompt through router.
func New(router *model.Router) *Corrector {
	return &Corrector{router: router}
}

// Correct asks the model to fix originalInputs given errorMessage, and
// returns the patched map or nil if the model declined, errored, or
// produced nothing parseable as JSON.
func (c *Corrector) Correct(ctx context.Context, skillName string, originalInputs map[string]any, errorMessage string) map[string]any {
	prompt, err := buildPrompt(skillName, originalInputs, errorMessage)
	if err != nil {
		return nil
	}

	class := model.TaskFast
	if skillName == "code_executor" {
		class = model.TaskCoding
	}

	messages := []model.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: prompt},
	}

	reply, err := c.router.Chat(ctx, class, messages, 0.0, 2000)
	if err != nil {
		return nil
	}
	return extractJSON(reply)
}

func buildPrompt(skillName string, originalInputs map[string]any, errorMessage string) (string, error) {
	encoded, err := json.MarshalIndent(originalInputs, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("A tool execution failed. Your task is to fix the inputs.\n\n")
	b.WriteString("Skill: ")
	b.WriteString(skillName)
	b.WriteString("\n\nOriginal Inputs:\n")
	b.Write(encoded)
	b.WriteString("\n\nError Output:\n")
	b.WriteString(errorMessage)
	b.WriteString("\n\nINSTRUCTIONS:\n")
	b.WriteString("1. Analyze WHY the error occurred (syntax error, invalid argument, missing file).\n")
	b.WriteString("2. Propose NEW inputs that fix the specific error.\n")
	b.WriteString("3. Do NOT change the intent of the action, only the implementation details.\n\n")
	b.WriteString("Return ONLY a JSON object containing the fixed inputs, e.g. {\"code\": \"print('fixed')\"}")
	return b.String(), nil
}

// extractJSON mirrors the three-stage parse the Python implementation
// uses: raw parse first, then a ```json fenced block, then the first
// '{' to last '}' span.
func extractJSON(text string) map[string]any {
	if m, ok := tryParse(text); ok {
		return m
	}

	if idx := strings.Index(text, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(text[start:], "```"); end != -1 {
			snippet := strings.TrimSpace(text[start : start+end])
			if m, ok := tryParse(snippet); ok {
				return m
			}
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		if m, ok := tryParse(text[start : end+1]); ok {
			return m
		}
	}
	return nil
}

func tryParse(text string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, false
	}
	return m, true
}
