package workflow

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// evalExpr evaluates a Starlark expression with prior step results
// bound as the list `results`.
func evalExpr(name, expr string, results []any) (any, error) {
	resultsVal, err := toStarlark(results)
	if err != nil {
		return nil, fmt.Errorf("eval %s: %w", name, err)
	}

	thread := &starlark.Thread{Name: name}
	predeclared := starlark.StringDict{"results": resultsVal}
	val, err := starlark.Eval(thread, name, expr, predeclared)
	if err != nil {
		return nil, fmt.Errorf("eval %s: %w", name, err)
	}
	return fromStarlark(val)
}

func toStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float32:
		return starlark.Float(float64(val)), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case core.Record:
		return mapToStarlark(val)
	case map[string]any:
		return mapToStarlark(val)
	case []core.Record:
		items := make([]starlark.Value, len(val))
		for i, rec := range val {
			sv, err := mapToStarlark(rec)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	case []any:
		items := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			items[i] = sv
		}
		return starlark.NewList(items), nil
	default:
		return nil, fmt.Errorf("cannot convert %T to a script value", v)
	}
}

func mapToStarlark(m map[string]any) (starlark.Value, error) {
	d := starlark.NewDict(len(m))
	for k, v := range m {
		sv, err := toStarlark(v)
		if err != nil {
			return nil, err
		}
		if err := d.SetKey(starlark.String(k), sv); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func fromStarlark(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		n, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer result out of range: %s", val.String())
		}
		return n, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		out := make([]any, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case starlark.Tuple:
		out := make([]any, 0, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlark(val.Index(i))
			if err != nil {
				return nil, err
			}
			out = append(out, item)
		}
		return out, nil
	case *starlark.Dict:
		out := make(map[string]any, val.Len())
		for _, k := range val.Keys() {
			key, ok := k.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("script dict key %s is not a string", k.String())
			}
			item, _, err := val.Get(k)
			if err != nil {
				return nil, err
			}
			gv, err := fromStarlark(item)
			if err != nil {
				return nil, err
			}
			out[string(key)] = gv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot convert script value %s (%s)", v.String(), v.Type())
	}
}
