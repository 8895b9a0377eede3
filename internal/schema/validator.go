// Package schema implements the restricted JSON-Schema subset used for
// collector input/output validation: object, string, number, integer,
// boolean and array with basic constraints. No $ref, no anyOf/oneOf —
// collectors declare flat structural schemas and that restriction is
// intentional.
package schema

import (
	"fmt"
	"regexp"
)

// Result is the outcome of a validation run.
type Result struct {
	Valid  bool
	Errors []string
}

// Validate checks value against schema, prefixing every error with path
// (e.g. "input" or "output") so callers can tell input failures from
// output failures.
func Validate(schema map[string]any, value any, path string) Result {
	errs := validateValue(schema, value, path)
	return Result{Valid: len(errs) == 0, Errors: errs}
}

func validateValue(schema map[string]any, value any, path string) []string {
	if schema == nil {
		return nil
	}

	typ, _ := schema["type"].(string)
	switch typ {
	case "object":
		return validateObject(schema, value, path)
	case "string":
		return validateString(schema, value, path)
	case "number":
		return validateNumber(schema, value, path, false)
	case "integer":
		return validateNumber(schema, value, path, true)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return []string{typeMismatch(path, "boolean", value)}
		}
		return nil
	case "array":
		return validateArray(schema, value, path)
	default:
		// Unknown or absent type accepts anything.
		return nil
	}
}

func validateObject(schema map[string]any, value any, path string) []string {
	obj, ok := value.(map[string]any)
	if !ok {
		return []string{typeMismatch(path, "object", value)}
	}

	var errs []string

	for _, name := range stringSlice(schema["required"]) {
		if _, present := obj[name]; !present {
			errs = append(errs, fmt.Sprintf("%s.%s: required property missing", path, name))
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, rawPropSchema := range props {
		propSchema, ok := rawPropSchema.(map[string]any)
		if !ok {
			continue
		}
		propVal, present := obj[name]
		if !present {
			// Optional unless listed in required, which is checked above.
			continue
		}
		errs = append(errs, validateValue(propSchema, propVal, path+"."+name)...)
	}

	return errs
}

func validateString(schema map[string]any, value any, path string) []string {
	s, ok := value.(string)
	if !ok {
		return []string{typeMismatch(path, "string", value)}
	}

	var errs []string

	if min, ok := numericOption(schema["minLength"]); ok && float64(len(s)) < min {
		errs = append(errs, fmt.Sprintf("%s: length %d below minLength %g", path, len(s), min))
	}
	if max, ok := numericOption(schema["maxLength"]); ok && float64(len(s)) > max {
		errs = append(errs, fmt.Sprintf("%s: length %d above maxLength %g", path, len(s), max))
	}

	if pattern, ok := schema["pattern"].(string); ok && pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid pattern %q: %v", path, pattern, err))
		} else if !re.MatchString(s) {
			errs = append(errs, fmt.Sprintf("%s: value does not match pattern %q", path, pattern))
		}
	}

	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		found := false
		for _, candidate := range enum {
			if cs, ok := candidate.(string); ok && cs == s {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Sprintf("%s: value %q not in enum", path, s))
		}
	}

	return errs
}

func validateNumber(schema map[string]any, value any, path string, wantInteger bool) []string {
	n, ok := numericValue(value)
	if !ok {
		want := "number"
		if wantInteger {
			want = "integer"
		}
		return []string{typeMismatch(path, want, value)}
	}

	var errs []string

	if wantInteger && n != float64(int64(n)) {
		errs = append(errs, fmt.Sprintf("%s: expected integer, got %g", path, n))
	}
	if min, ok := numericOption(schema["minimum"]); ok && n < min {
		errs = append(errs, fmt.Sprintf("%s: %g below minimum %g", path, n, min))
	}
	if max, ok := numericOption(schema["maximum"]); ok && n > max {
		errs = append(errs, fmt.Sprintf("%s: %g above maximum %g", path, n, max))
	}

	return errs
}

func validateArray(schema map[string]any, value any, path string) []string {
	arr, ok := value.([]any)
	if !ok {
		return []string{typeMismatch(path, "array", value)}
	}

	var errs []string

	if min, ok := numericOption(schema["minItems"]); ok && float64(len(arr)) < min {
		errs = append(errs, fmt.Sprintf("%s: %d items below minItems %g", path, len(arr), min))
	}
	if max, ok := numericOption(schema["maxItems"]); ok && float64(len(arr)) > max {
		errs = append(errs, fmt.Sprintf("%s: %d items above maxItems %g", path, len(arr), max))
	}

	if items, ok := schema["items"].(map[string]any); ok {
		for i, item := range arr {
			errs = append(errs, validateValue(items, item, fmt.Sprintf("%s[%d]", path, i))...)
		}
	}

	return errs
}

func typeMismatch(path, want string, got any) string {
	return fmt.Sprintf("%s: expected %s, got %s", path, want, typeName(got))
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// numericValue normalizes the numeric types JSON decoding and Go callers
// hand us into a float64.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func numericOption(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return numericValue(v)
}

func stringSlice(v any) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
