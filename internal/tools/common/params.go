package common

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// RequiredString returns a non-empty string argument.
func RequiredString(args map[string]interface{}, name string) (string, error) {
	value, ok := args[name].(string)
	if !ok || value == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return value, nil
}

// OptionalString returns a string argument and whether it was provided.
// An explicitly empty string counts as provided.
func OptionalString(args map[string]interface{}, name string) (string, bool) {
	value, ok := args[name].(string)
	return value, ok
}

// RequiredRFC3339 returns a string argument that must parse as RFC3339. The
// original string is returned so it can be passed on verbatim.
func RequiredRFC3339(args map[string]interface{}, name string) (string, error) {
	value, err := RequiredString(args, name)
	if err != nil {
		return "", err
	}
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		return "", fmt.Errorf("invalid %s format (expected RFC3339): %w", name, err)
	}
	return value, nil
}

// PositiveInt returns an integer argument, or def when it is absent. JSON
// numbers arrive as float64; numeric strings are accepted too.
func PositiveInt(args map[string]interface{}, name string, def int64) (int64, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return def, nil
	}

	var value int64
	switch v := raw.(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		value = int64(v)
	case int:
		value = int64(v)
	case int64:
		value = v
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		value = parsed
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}

	if value <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return value, nil
}
