package workflow

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// ResultRef is a typed reference to a prior step's result. Step is the
// zero-based step index; Path optionally names a field inside the
// result. Used as a value inside step Values or Where maps.
type ResultRef struct {
	Step int
	Path string
}

// placeholder matches the legacy string form {{result.N}} and
// {{result.N.field}}.
var placeholder = regexp.MustCompile(`\{\{\s*result\.(\d+)(?:\.([A-Za-z0-9_]+))?\s*\}\}`)

// resolveRecord returns a copy of the record with every result
// reference and placeholder substituted.
func resolveRecord(rec core.Record, results []any) (core.Record, error) {
	if rec == nil {
		return nil, nil
	}
	out := make(core.Record, len(rec))
	for k, v := range rec {
		rv, err := resolveValue(v, results)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

// resolveTree substitutes references inside a condition tree, including
// nested operator objects and _or groups.
func resolveTree(tree core.ConditionTree, results []any) (core.ConditionTree, error) {
	if tree == nil {
		return nil, nil
	}
	out := make(core.ConditionTree, len(tree))
	for k, v := range tree {
		rv, err := resolveValue(v, results)
		if err != nil {
			return nil, err
		}
		out[k] = rv
	}
	return out, nil
}

func resolveValue(v any, results []any) (any, error) {
	switch val := v.(type) {
	case ResultRef:
		return derefResult(val.Step, val.Path, results)
	case *ResultRef:
		return derefResult(val.Step, val.Path, results)
	case string:
		return interpolate(val, results)
	case core.ConditionTree:
		return resolveTree(val, results)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			rv, err := resolveValue(item, results)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			rv, err := resolveValue(item, results)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}

// interpolate substitutes placeholders in a string value. A string that
// is exactly one placeholder resolves to the referenced value itself,
// preserving its type; placeholders embedded in longer text are
// formatted with %v.
func interpolate(s string, results []any) (any, error) {
	matches := placeholder.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		step, path := refParts(s, matches[0])
		return derefResult(step, path, results)
	}

	out := make([]byte, 0, len(s))
	last := 0
	for _, m := range matches {
		step, path := refParts(s, m)
		v, err := derefResult(step, path, results)
		if err != nil {
			return nil, err
		}
		out = append(out, s[last:m[0]]...)
		out = append(out, fmt.Sprintf("%v", v)...)
		last = m[1]
	}
	out = append(out, s[last:]...)
	return string(out), nil
}

func refParts(s string, m []int) (int, string) {
	step, _ := strconv.Atoi(s[m[2]:m[3]])
	path := ""
	if m[4] >= 0 {
		path = s[m[4]:m[5]]
	}
	return step, path
}

// derefResult looks up a prior result and optionally a field inside it.
// A field path on a query result reads the first returned row.
func derefResult(step int, path string, results []any) (any, error) {
	if step < 0 || step >= len(results) {
		return nil, fmt.Errorf("result reference out of range: step %d of %d", step, len(results))
	}
	v := results[step]
	if path == "" {
		return v, nil
	}
	switch val := v.(type) {
	case core.Record:
		field, ok := val[path]
		if !ok {
			return nil, fmt.Errorf("result %d has no field %q", step, path)
		}
		return field, nil
	case []core.Record:
		if len(val) == 0 {
			return nil, fmt.Errorf("result %d is empty, cannot read field %q", step, path)
		}
		field, ok := val[0][path]
		if !ok {
			return nil, fmt.Errorf("result %d has no field %q", step, path)
		}
		return field, nil
	case map[string]any:
		field, ok := val[path]
		if !ok {
			return nil, fmt.Errorf("result %d has no field %q", step, path)
		}
		return field, nil
	default:
		return nil, fmt.Errorf("result %d (%T) has no fields", step, v)
	}
}
