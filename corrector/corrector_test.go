package corrector

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONRawParse(t *testing.T) {
	m := extractJSON(`{"path": "/tmp/fixed.txt"}`)
	require.Equal(t, "/tmp/fixed.txt", m["path"])
}

func TestExtractJSONFencedBlock(t *testing.T) {
	text := "Here is the fix:\n```json\n{\"count\": 3}\n```\nThat should work."
	m := extractJSON(text)
	require.Equal(t, float64(3), m["count"])
}

func TestExtractJSONBraceSpan(t *testing.T) {
	text := "I propose: {\"enabled\": true} as the new inputs."
	m := extractJSON(text)
	require.Equal(t, true, m["enabled"])
}

func TestExtractJSONGivesUpOnGarbage(t *testing.T) {
	require.Nil(t, extractJSON("I cannot fix this, sorry."))
}

func TestBuildPromptIncludesErrorAndSkill(t *testing.T) {
	prompt, err := buildPrompt("code_executor", map[string]any{"code": "prnt(1)"}, "NameError: prnt")
	require.NoError(t, err)
	require.Contains(t, prompt, "code_executor")
	require.Contains(t, prompt, "NameError: prnt")
}
