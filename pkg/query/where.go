package query

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// operatorSQL maps condition operators to their SQL comparison form.
// null, notnull and in are handled structurally, not through this map.
var operatorSQL = map[string]string{
	core.OpEq:   "=",
	core.OpNe:   "!=",
	core.OpGt:   ">",
	core.OpGte:  ">=",
	core.OpLt:   "<",
	core.OpLte:  "<=",
	core.OpLike: "LIKE",
}

// whereState carries placeholder numbering through a fold so dollar-style
// dialects stay continuous across nested clauses.
type whereState struct {
	n    int
	args []any
}

func (w *whereState) bind(v any) int {
	w.args = append(w.args, v)
	w.n++
	return w.n
}

// foldWhere folds a condition tree into a SQL fragment. Top-level keys are
// AND'd; the reserved _or key OR-groups its sub-trees with parentheses.
// Keys are processed in sorted order so generated SQL is deterministic.
func (t *Translator) foldWhere(tree core.ConditionTree, tables []string, firstArg int) (string, []any, error) {
	st := &whereState{n: firstArg - 1}
	sql, err := t.foldTree(tree, tables, st)
	if err != nil {
		return "", nil, err
	}
	return sql, st.args, nil
}

func (t *Translator) foldTree(tree core.ConditionTree, tables []string, st *whereState) (string, error) {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var clauses []string
	for _, field := range keys {
		if field == core.OrKey {
			clause, err := t.foldOrGroup(tree[field], tables, st)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, clause)
			continue
		}

		clause, err := t.foldField(field, tree[field], tables, st)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), nil
}

// foldOrGroup folds the _or key: a list of sub-trees OR'd together.
func (t *Translator) foldOrGroup(val any, tables []string, st *whereState) (string, error) {
	subs, err := orSubTrees(val)
	if err != nil {
		return "", err
	}
	// An empty group matches nothing, like an empty membership list.
	if len(subs) == 0 {
		return "1 = 0", nil
	}
	parts := make([]string, 0, len(subs))
	for _, sub := range subs {
		part, err := t.foldTree(sub, tables, st)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+part+")")
	}
	return "(" + strings.Join(parts, " OR ") + ")", nil
}

// orSubTrees normalizes the _or value, which arrives as []ConditionTree
// from code or []any of maps from YAML.
func orSubTrees(val any) ([]core.ConditionTree, error) {
	switch v := val.(type) {
	case []core.ConditionTree:
		return v, nil
	case []map[string]any:
		subs := make([]core.ConditionTree, len(v))
		for i, m := range v {
			subs[i] = core.ConditionTree(m)
		}
		return subs, nil
	case []any:
		subs := make([]core.ConditionTree, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s entries must be condition trees, got %T", core.OrKey, item)
			}
			subs = append(subs, core.ConditionTree(m))
		}
		return subs, nil
	default:
		return nil, fmt.Errorf("%s must hold a list of condition trees, got %T", core.OrKey, val)
	}
}

// foldField folds a single field condition: literal equality, NULL test,
// membership list, or an operator object.
func (t *Translator) foldField(field string, val any, tables []string, st *whereState) (string, error) {
	if err := t.checkField(field, tables); err != nil {
		return "", err
	}
	ident := t.dialect.QuoteIdent(field)

	if val == nil {
		return ident + " IS NULL", nil
	}

	if ops, ok := operatorObject(val); ok {
		return t.foldOperators(ident, ops, st)
	}

	if items, ok := literalList(val); ok {
		return t.foldIn(ident, items, st), nil
	}

	n := st.bind(val)
	return fmt.Sprintf("%s = %s", ident, t.dialect.Placeholder(n)), nil
}

// foldOperators folds an operator object. Multiple operators on one field
// AND together, in sorted order.
func (t *Translator) foldOperators(ident string, ops map[string]any, st *whereState) (string, error) {
	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	var clauses []string
	for _, op := range names {
		operand := ops[op]
		switch op {
		case core.OpNull:
			if isTruthy(operand) {
				clauses = append(clauses, ident+" IS NULL")
			} else {
				clauses = append(clauses, ident+" IS NOT NULL")
			}
		case core.OpNotNull:
			if isTruthy(operand) {
				clauses = append(clauses, ident+" IS NOT NULL")
			} else {
				clauses = append(clauses, ident+" IS NULL")
			}
		case core.OpIn:
			items, ok := literalList(operand)
			if !ok {
				return "", fmt.Errorf("operator %q requires a list operand", op)
			}
			clauses = append(clauses, t.foldIn(ident, items, st))
		default:
			sqlOp, ok := operatorSQL[op]
			if !ok {
				return "", fmt.Errorf("unknown condition operator %q", op)
			}
			n := st.bind(operand)
			clauses = append(clauses, fmt.Sprintf("%s %s %s", ident, sqlOp, t.dialect.Placeholder(n)))
		}
	}
	return strings.Join(clauses, " AND "), nil
}

// foldIn renders a membership test. An empty list matches nothing.
func (t *Translator) foldIn(ident string, items []any, st *whereState) string {
	if len(items) == 0 {
		return "1 = 0"
	}
	phs := make([]string, len(items))
	for i, item := range items {
		n := st.bind(item)
		phs[i] = t.dialect.Placeholder(n)
	}
	return fmt.Sprintf("%s IN (%s)", ident, strings.Join(phs, ", "))
}

// operatorObject reports whether val is an operator object (a map of
// operator name to operand).
func operatorObject(val any) (map[string]any, bool) {
	switch m := val.(type) {
	case map[string]any:
		return m, true
	case core.ConditionTree:
		return map[string]any(m), true
	default:
		return nil, false
	}
}

// literalList reports whether val is a membership list. Strings and byte
// slices are literals, not lists.
func literalList(val any) ([]any, bool) {
	switch v := val.(type) {
	case string, []byte:
		return nil, false
	case []any:
		return v, true
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

// isTruthy interprets an operand of null/notnull, which callers commonly
// write as true, 1, or "true".
func isTruthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x == "true" || x == "1" || x == "yes"
	case nil:
		return true
	default:
		return true
	}
}
