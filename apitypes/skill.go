package apitypes

import "context"

// SkillMetadata describes a registered capability: its identity,
// retrieval facets, and the schemas the IO Mapper and Orchestrator
// validate against.
type SkillMetadata struct {
	Name string `json:"name"`
	// Description is used both for display and as lexical-boost material
	// in retrieval.
	Description string `json:"description"`
	// Category and SubCategory are the primary retrieval facets.
	Category    string `json:"category"`
	SubCategory string `json:"sub_category,omitempty"`
	// InputSchema is a JSON-Schema fragment: {"properties": {...},
	// "required": [...], ...}.
	InputSchema map[string]any `json:"input_schema"`
	// OutputSchema is either a JSON-Schema fragment or the simplified
	// {name: type_string} form the IO Mapper also understands.
	OutputSchema map[string]any `json:"output_schema,omitempty"`
	// ConfigSchema declares runtime settings the skill requires (API
	// keys, toggles) before CheckConfig will pass.
	ConfigSchema map[string]any `json:"config_schema,omitempty"`
	// Dependencies lists external packages/services the skill relies on,
	// surfaced for operator visibility only.
	Dependencies []string `json:"dependencies,omitempty"`
	Version      string   `json:"version,omitempty"`
	// TimeoutDefault is used by the Orchestrator when an action does not
	// override it via Action.Metadata["timeout"].
	TimeoutDefault int64 `json:"timeout_default_ms,omitempty"`
}

// MissingConfigError is returned by CheckConfig when required
// configuration keys are absent. The Orchestrator turns it into a
// terminal config_required event rather than retrying.
type MissingConfigError struct {
	Skill       string
	MissingKeys []string
	Schema      map[string]any
}

func (e *MissingConfigError) Error() string {
	return "apitypes: skill " + e.Skill + " missing required configuration"
}

// Skill is the polymorphic capability contract: execute, validate
// inputs, check configuration, and optional lifecycle hooks.
type Skill interface {
	Metadata() SkillMetadata
	// Execute runs the skill with the resolved input map and returns its
	// output map. A declared `success: false` in the output is treated
	// as an execution failure by the Orchestrator, not a Go error.
	Execute(ctx context.Context, inputs map[string]any) (map[string]any, error)
	// ValidateInputs checks inputs against InputSchema before Execute is called.
	ValidateInputs(inputs map[string]any) error
	// CheckConfig returns *MissingConfigError if required runtime
	// configuration (credentials, toggles) is absent.
	CheckConfig() error
}

// PreExecuteHook and PostExecuteHook are optional lifecycle extensions a
// Skill implementation may also satisfy.
type (
	PreExecuteHook  interface{ PreExecute(ctx context.Context, inputs map[string]any) error }
	PostExecuteHook interface {
		PostExecute(ctx context.Context, output map[string]any) (map[string]any, error)
	}
)
