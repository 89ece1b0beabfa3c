package datasource

import (
	"fmt"
	"strconv"
)

// StringParam returns config[key] as a string, or "" when missing or not a string.
func StringParam(config map[string]any, key string) string {
	if v, ok := config[key].(string); ok {
		return v
	}
	return ""
}

// FirstStringParam returns the first non-empty string among keys.
func FirstStringParam(config map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := StringParam(config, k); v != "" {
			return v
		}
	}
	return ""
}

// IntParam returns config[key] as an int. JSON numbers arrive as float64,
// programmatic maps as int, form values as strings.
func IntParam(config map[string]any, key string) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return 0
}

// BoolParam returns config[key] as a bool, accepting "true"/"false" strings.
func BoolParam(config map[string]any, key string) bool {
	switch v := config[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// StringMapParam returns config[key] as a string map. Non-string values are formatted.
func StringMapParam(config map[string]any, key string) map[string]string {
	switch v := config[key].(type) {
	case map[string]string:
		return v
	case map[string]any:
		out := make(map[string]string, len(v))
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			} else {
				out[k] = fmt.Sprint(val)
			}
		}
		return out
	}
	return nil
}

// MissingParamError is returned by adapter config parsers.
type MissingParamError struct {
	Param string
}

func (e *MissingParamError) Error() string {
	return e.Param + " is required"
}
