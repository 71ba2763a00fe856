package trigger

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/xde-mcp/sim-sub005/pkg/registry"
)

// coerceField converts a declared example value to the field's declared
// type. Unconvertible values fall back to the raw example rather than
// failing the whole resolution.
func coerceField(field registry.InputField) any {
	switch field.Type {
	case "number":
		return coerceNumber(field.Value)
	case "boolean":
		return coerceBool(field.Value)
	case "object", "array":
		return coerceJSON(field.Value)
	case "string":
		return coerceString(field.Value)
	default:
		return field.Value
	}
}

func coerceString(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return ""
		}

		return string(data)
	}
}

func coerceNumber(value any) any {
	switch typed := value.(type) {
	case float64:
		return typed
	case int:
		return float64(typed)
	case string:
		if n, err := strconv.ParseFloat(strings.TrimSpace(typed), 64); err == nil {
			return n
		}
	}

	return value
}

func coerceBool(value any) any {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(typed)); err == nil {
			return b
		}
	}

	return value
}

func coerceJSON(value any) any {
	typed, ok := value.(string)
	if !ok {
		return value
	}

	var out any
	if err := json.Unmarshal([]byte(typed), &out); err != nil {
		return value
	}

	return out
}
