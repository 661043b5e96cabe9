package iomapper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kanephamphu/connex-agi/apitypes"
)

type fakeState struct {
	outputs map[string]any
}

func (f *fakeState) GetOutput(ref string) (any, error) {
	v, ok := f.outputs[ref]
	if !ok {
		return nil, errNotFound
	}
	return v, nil
}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "not found" }

var errNotFound = notFoundErr{}

func TestResolveInputsInlineReference(t *testing.T) {
	state := &fakeState{outputs: map[string]any{"action_1.result": "hello"}}
	action := apitypes.Action{
		ID:     "2",
		Inputs: map[string]any{"content": "action_1.result"},
	}
	resolved, err := ResolveInputs(action, state, nil)
	require.NoError(t, err)
	require.Equal(t, "hello", resolved["content"])
}

func TestResolveInputsExplicitReferenceOverridesInline(t *testing.T) {
	state := &fakeState{outputs: map[string]any{
		"action_1.result": "inline",
		"action_2.result": "explicit",
	}}
	action := apitypes.Action{
		ID:         "3",
		Inputs:     map[string]any{"content": "action_1.result"},
		References: map[string]string{"content": "action_2.result"},
	}
	resolved, err := ResolveInputs(action, state, nil)
	require.NoError(t, err)
	require.Equal(t, "explicit", resolved["content"])
}

func TestResolveInputsUnresolvedReferenceErrors(t *testing.T) {
	state := &fakeState{outputs: map[string]any{}}
	action := apitypes.Action{
		ID:         "4",
		References: map[string]string{"path": "action_9.missing"},
	}
	_, err := ResolveInputs(action, state, nil)
	require.Error(t, err)
}

func TestAutoMapToSchemaFuzzyParameter(t *testing.T) {
	meta := apitypes.SkillMetadata{
		InputSchema: map[string]any{
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []any{"path"},
		},
	}
	mapped := AutoMapToSchema(map[string]any{"file_path": "/tmp/x"}, meta, "")
	require.Equal(t, "/tmp/x", mapped["path"])
}

func TestAutoMapToSchemaSemanticActionInference(t *testing.T) {
	meta := apitypes.SkillMetadata{
		InputSchema: map[string]any{
			"properties": map[string]any{
				"action": map[string]any{"type": "string", "enum": []any{"read_file", "write_file"}},
			},
		},
	}
	mapped := AutoMapToSchema(map[string]any{}, meta, "please read the config file")
	require.Equal(t, "read_file", mapped["action"])
}

func TestAutoMapToSchemaTypeCoercion(t *testing.T) {
	meta := apitypes.SkillMetadata{
		InputSchema: map[string]any{
			"properties": map[string]any{
				"count":   map[string]any{"type": "integer"},
				"enabled": map[string]any{"type": "boolean"},
			},
		},
	}
	mapped := AutoMapToSchema(map[string]any{"count": "42", "enabled": "yes"}, meta, "")
	require.Equal(t, 42, mapped["count"])
	require.Equal(t, true, mapped["enabled"])
}

func TestValidateOutputSmartMapsReplyFromResponse(t *testing.T) {
	out := ValidateOutput(map[string]any{"response": "done"}, map[string]any{"reply": "str"})
	require.Equal(t, "done", out["reply"])
}

func TestValidateOutputPassesThroughExplicitFailure(t *testing.T) {
	out := ValidateOutput(map[string]any{"success": false, "error": "boom"}, map[string]any{"reply": "str"})
	require.Equal(t, false, out["success"])
	require.Equal(t, "boom", out["error"])
}

func TestValidateOutputEmptyIsFailure(t *testing.T) {
	out := ValidateOutput(map[string]any{}, map[string]any{})
	require.Equal(t, false, out["success"])
}
