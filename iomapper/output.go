package iomapper

import (
	"strconv"
)

// ValidateOutput smart-maps a skill's raw output against its declared
// output schema: missing expected keys are filled in from a synonym
// table, and values are coerced (not rejected) toward the expected
// type when they don't already match. Lenient by design — a mismatch
// is logged by the caller, never raised, so the pipeline keeps moving.
func ValidateOutput(output map[string]any, schema map[string]any) map[string]any {
	if len(output) == 0 {
		return map[string]any{"success": false, "error": "skill returned null or empty output"}
	}
	if success, ok := output["success"].(bool); ok && !success {
		return output
	}
	if len(schema) == 0 {
		return output
	}

	targetKeys := map[string]string{}
	if props, ok := schema["properties"].(map[string]any); ok {
		for name, def := range props {
			t := "any"
			if m, ok := def.(map[string]any); ok {
				if s, ok := m["type"].(string); ok {
					t = s
				}
			}
			targetKeys[name] = t
		}
	} else if _, hasType := schema["type"]; hasType && len(schema) <= 2 {
		// whole-output type declaration, nothing per-key to map
	} else {
		for k, v := range schema {
			if s, ok := v.(string); ok {
				targetKeys[k] = s
			}
		}
	}

	mapped := make(map[string]any, len(output))
	for k, v := range output {
		mapped[k] = v
	}

	for key, typeStr := range targetKeys {
		if _, present := mapped[key]; !present {
			for _, alt := range outputSynonyms[key] {
				if v, ok := mapped[alt]; ok {
					mapped[key] = v
					break
				}
			}
			if _, present := mapped[key]; !present {
				continue
			}
		}

		value := mapped[key]
		if checkType(value, typeStr) {
			continue
		}
		switch typeStr {
		case "str":
			mapped[key] = toString(value)
		case "int":
			if n, ok := coerceInt(value); ok {
				mapped[key] = n
			}
		case "float":
			if f, ok := coerceFloat(value); ok {
				mapped[key] = f
			}
		}
	}
	return mapped
}

func checkType(value any, typeStr string) bool {
	switch typeStr {
	case "str":
		_, ok := value.(string)
		return ok
	case "int":
		switch value.(type) {
		case int, int64:
			return true
		default:
			return false
		}
	case "float":
		switch value.(type) {
		case int, int64, float32, float64:
			return true
		default:
			return false
		}
	case "bool":
		_, ok := value.(bool)
		return ok
	case "dict":
		_, ok := value.(map[string]any)
		return ok
	case "list":
		_, ok := value.([]any)
		return ok
	case "Any", "any", "":
		return true
	default:
		return true
	}
}

func coerceInt(value any) (int, bool) {
	switch v := value.(type) {
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func coerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}
