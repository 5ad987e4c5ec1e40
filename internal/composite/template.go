package composite

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// resolveTemplate evaluates one templateTransformations expression
// (§4.8 step 2b). Recognised forms:
//
//	$guid                 a freshly generated GUID
//	$requestid             the orchestrator's trace id
//	$prev.<step>.<path>    a dotted JSON path into an earlier step's response
//	$context.<var>         a caller-supplied context variable
//
// Anything else is returned as a literal string.
func resolveTemplate(expr string, requestID string, prior map[string]*Result, context map[string]interface{}) (interface{}, error) {
	switch {
	case expr == "$guid":
		return uuid.NewString(), nil
	case expr == "$requestid":
		return requestID, nil
	case strings.HasPrefix(expr, "$prev."):
		return resolvePrevPath(expr[len("$prev."):], prior)
	case strings.HasPrefix(expr, "$context."):
		key := expr[len("$context."):]
		v, ok := context[key]
		if !ok {
			return nil, fmt.Errorf("unknown context variable %q", key)
		}
		return v, nil
	default:
		return expr, nil
	}
}

// resolvePrevPath splits "<step>.<path...>" and walks path into prior[step]'s
// Body, descending through maps and (numeric) slice indices.
func resolvePrevPath(rest string, prior map[string]*Result) (interface{}, error) {
	parts := strings.Split(rest, ".")
	if len(parts) < 1 {
		return nil, fmt.Errorf("malformed $prev reference %q", rest)
	}
	stepName := parts[0]
	result, ok := prior[stepName]
	if !ok {
		return nil, fmt.Errorf("$prev references unknown or not-yet-executed step %q", stepName)
	}

	cur := result.Body
	for _, segment := range parts[1:] {
		next, err := descend(cur, segment)
		if err != nil {
			return nil, fmt.Errorf("$prev.%s: %w", rest, err)
		}
		cur = next
	}
	return cur, nil
}

func descend(cur interface{}, segment string) (interface{}, error) {
	switch v := cur.(type) {
	case map[string]interface{}:
		val, ok := v[segment]
		if !ok {
			return nil, fmt.Errorf("field %q not present", segment)
		}
		return val, nil
	case []interface{}:
		idx, err := strconv.Atoi(segment)
		if err != nil {
			return nil, fmt.Errorf("expected array index, got %q", segment)
		}
		if idx < 0 || idx >= len(v) {
			return nil, fmt.Errorf("array index %d out of range", idx)
		}
		return v[idx], nil
	default:
		return nil, fmt.Errorf("cannot descend into non-object/array at %q", segment)
	}
}
