// Package iomapper resolves action inputs (static values, inline
// "action_1.field" references, explicit reference maps) and smart-maps
// both inputs and outputs against a skill's declared schema. This is a
// faithful port of the orchestrator's Python input/output mapper: the
// fuzzy synonym tables, semantic action inference, and lenient
// type-coercion behavior reproduce its exact matching order so planner
// output that only approximately matches a skill's schema still
// executes.
package iomapper

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/kanephamphu/connex-agi/apitypes"
)

// ExecutionState is the subset of apitypes.ExecutionState the mapper
// needs to resolve "action_N.field"-style references.
type ExecutionState interface {
	GetOutput(ref string) (any, error)
}

var inputSynonyms = map[string][]string{
	"path":     {"file_path", "filename", "file_name", "key", "target", "uri", "location", "path_to_file"},
	"content":  {"data", "text", "body", "payload", "message", "value", "content_body"},
	"action":   {"operation", "op", "method", "task", "mode", "act"},
	"query":    {"q", "search_term", "text", "message", "prompt", "question"},
	"message":  {"text", "msg", "content", "query", "prompt", "input_text"},
	"url":      {"uri", "link", "address", "website", "site"},
	"location": {"city", "place", "address", "town", "region", "target_location"},
}

var outputSynonyms = map[string][]string{
	"content": {"data", "text", "body", "file_content", "result", "message"},
	"reply":   {"response", "answer", "text", "message", "output"},
	"status":  {"success", "message", "result", "state"},
}

// ResolveInputs combines an action's static inputs with inline and
// explicit references to prior step outputs, then self-heals the
// result against skill's declared input schema when skill is non-nil.
func ResolveInputs(action apitypes.Action, state ExecutionState, meta *apitypes.SkillMetadata) (map[string]any, error) {
	resolved := make(map[string]any, len(action.Inputs))
	for k, v := range action.Inputs {
		resolved[k] = v
	}

	// Auto-resolve inline references (e.g. "action_1.result").
	for key, value := range action.Inputs {
		if s, ok := value.(string); ok && strings.HasPrefix(s, "action_") && strings.Contains(s, ".") {
			if v, err := state.GetOutput(s); err == nil {
				resolved[key] = v
			}
		}
	}

	// Explicit reference map overrides inline resolution; a failed
	// lookup here is a hard error since the planner named it directly.
	for paramName, reference := range action.References {
		v, err := state.GetOutput(reference)
		if err != nil {
			return nil, &UnresolvedReferenceError{ActionID: action.ID, Param: paramName, Reference: reference}
		}
		resolved[paramName] = v
	}

	if meta != nil {
		resolved = AutoMapToSchema(resolved, *meta, action.Description)
	}
	return resolved, nil
}

// UnresolvedReferenceError reports a References entry whose target
// output could not be found in the execution state.
type UnresolvedReferenceError struct {
	ActionID  string
	Param     string
	Reference string
}

func (e *UnresolvedReferenceError) Error() string {
	return "action " + e.ActionID + ": cannot resolve input reference '" + e.Reference + "' for parameter '" + e.Param + "'"
}

// schemaProperty is the subset of a JSON-Schema property definition the
// mapper inspects: its declared type and, for action/operation
// parameters, its enum of allowed values.
type schemaProperty struct {
	Type string
	Enum []string
}

func properties(schema map[string]any) (map[string]schemaProperty, []string) {
	props := map[string]schemaProperty{}
	var required []string

	if raw, ok := schema["properties"].(map[string]any); ok {
		for name, def := range raw {
			props[name] = parseProperty(def)
		}
		if req, ok := schema["required"].([]string); ok {
			required = req
		} else if req, ok := schema["required"].([]any); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
		return props, required
	}

	if _, hasType := schema["type"]; !hasType {
		// Bare {key: type} shorthand — every key becomes required.
		for k, v := range schema {
			if s, ok := v.(string); ok {
				props[k] = schemaProperty{Type: s}
				required = append(required, k)
			}
		}
	}
	return props, required
}

func parseProperty(def any) schemaProperty {
	m, ok := def.(map[string]any)
	if !ok {
		return schemaProperty{}
	}
	p := schemaProperty{}
	if t, ok := m["type"].(string); ok {
		p.Type = t
	}
	if enum, ok := m["enum"].([]any); ok {
		for _, v := range enum {
			if s, ok := v.(string); ok {
				p.Enum = append(p.Enum, s)
			}
		}
	}
	return p
}

// AutoMapToSchema bridges the gap between planner output and a skill's
// strict schema via fuzzy parameter synonyms, semantic action
// inference from the step description, and lenient type coercion.
func AutoMapToSchema(inputs map[string]any, meta apitypes.SkillMetadata, description string) map[string]any {
	props, required := properties(meta.InputSchema)

	mapped := make(map[string]any, len(inputs))
	for k, v := range inputs {
		mapped[k] = v
	}

	// 1. Fuzzy parameter mapping for missing required params.
	for _, missing := range required {
		if _, present := mapped[missing]; present {
			continue
		}
		for _, alt := range inputSynonyms[missing] {
			if v, ok := mapped[alt]; ok {
				mapped[missing] = v
				break
			}
		}
	}

	// 2. Semantic action inference: infer a missing action/operation
	// value from an enum keyword appearing in the step description.
	targetKey := ""
	if _, ok := props["action"]; ok {
		targetKey = "action"
	} else if _, ok := props["operation"]; ok {
		targetKey = "operation"
	}
	if targetKey != "" && description != "" {
		if _, present := mapped[targetKey]; !present {
			descLower := strings.ToLower(description)
			for _, val := range props[targetKey].Enum {
				stem := val
				if idx := strings.Index(val, "_"); idx >= 0 {
					stem = val[:idx]
				}
				stem = strings.ToLower(stem)
				if len(stem) > 3 && strings.Contains(descLower, stem) {
					mapped[targetKey] = val
					break
				}
			}
		}
	}

	// 3. Type coercion.
	for key, value := range mapped {
		prop, ok := props[key]
		if !ok {
			continue
		}
		switch prop.Type {
		case "integer":
			if s, ok := value.(string); ok {
				if n, err := strconv.Atoi(s); err == nil {
					mapped[key] = n
				}
			}
		case "boolean":
			if s, ok := value.(string); ok {
				switch strings.ToLower(s) {
				case "true", "yes", "1", "on":
					mapped[key] = true
				case "false", "no", "0", "off":
					mapped[key] = false
				}
			}
		case "string":
			switch v := value.(type) {
			case string:
				// already a string
			case []any, map[string]any:
				if b, err := json.MarshalIndent(v, "", "  "); err == nil {
					mapped[key] = string(b)
				}
			default:
				mapped[key] = toString(v)
			}
		}
	}

	return mapped
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
