package query

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// Match evaluates a condition tree against a record in memory, with the
// same semantics the SQL translation produces. Backends without a SQL
// engine filter through this; tests use it as the reference evaluator.
func Match(rec core.Record, tree core.ConditionTree) (bool, error) {
	for field, val := range tree {
		if field == core.OrKey {
			subs, err := orSubTrees(val)
			if err != nil {
				return false, err
			}
			anyMatched := false
			for _, sub := range subs {
				ok, err := Match(rec, sub)
				if err != nil {
					return false, err
				}
				if ok {
					anyMatched = true
					break
				}
			}
			if !anyMatched {
				return false, nil
			}
			continue
		}

		ok, err := matchField(rec[field], val)
		if err != nil {
			return false, fmt.Errorf("field %q: %w", field, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchField(have, want any) (bool, error) {
	if want == nil {
		return have == nil, nil
	}

	if ops, ok := operatorObject(want); ok {
		for op, operand := range ops {
			ok, err := matchOperator(have, op, operand)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}

	if items, ok := literalList(want); ok {
		return memberOf(have, items), nil
	}

	return equalValues(have, want), nil
}

func matchOperator(have any, op string, operand any) (bool, error) {
	switch op {
	case core.OpEq:
		return equalValues(have, operand), nil
	case core.OpNe:
		return !equalValues(have, operand), nil
	case core.OpNull:
		if isTruthy(operand) {
			return have == nil, nil
		}
		return have != nil, nil
	case core.OpNotNull:
		if isTruthy(operand) {
			return have != nil, nil
		}
		return have == nil, nil
	case core.OpIn:
		items, ok := literalList(operand)
		if !ok {
			return false, fmt.Errorf("operator %q requires a list operand", op)
		}
		return memberOf(have, items), nil
	case core.OpLike:
		s, ok := have.(string)
		if !ok {
			return false, nil
		}
		pattern, ok := operand.(string)
		if !ok {
			return false, fmt.Errorf("operator like requires a string pattern")
		}
		return likeMatch(s, pattern), nil
	case core.OpGt, core.OpGte, core.OpLt, core.OpLte:
		cmp, ok := compareValues(have, operand)
		if !ok {
			return false, nil
		}
		switch op {
		case core.OpGt:
			return cmp > 0, nil
		case core.OpGte:
			return cmp >= 0, nil
		case core.OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	default:
		return false, fmt.Errorf("unknown condition operator %q", op)
	}
}

func memberOf(have any, items []any) bool {
	for _, item := range items {
		if equalValues(have, item) {
			return true
		}
	}
	return false
}

// equalValues compares with loose numeric coercion so an int64 read back
// from one backend equals the int a caller wrote.
func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// compareValues returns -1/0/1, or ok=false when the values are not
// comparable (SQL semantics: comparisons against NULL match nothing).
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// likeMatch evaluates a SQL LIKE pattern (% and _ wildcards), case
// insensitively, matching sqlite's default behavior.
func likeMatch(s, pattern string) bool {
	var sb strings.Builder
	sb.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// SortRecords orders records in place per an order specification, using
// the same three accepted shapes as BuildOrderBy.
func SortRecords(recs []core.Record, order any) error {
	terms, err := orderTerms(order)
	if err != nil {
		return err
	}
	if len(terms) == 0 {
		return nil
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, term := range terms {
			cmp, ok := compareValues(recs[i][term.field], recs[j][term.field])
			if !ok || cmp == 0 {
				// NULLs and ties fall through to the next term.
				continue
			}
			if term.desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

type orderTerm struct {
	field string
	desc  bool
}

func orderTerms(order any) ([]orderTerm, error) {
	var tokens []string
	switch o := order.(type) {
	case nil:
		return nil, nil
	case string:
		tokens = strings.Split(o, ",")
	case []string:
		tokens = o
	case []any:
		for _, item := range o {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("order list entries must be strings, got %T", item)
			}
			tokens = append(tokens, s)
		}
	case map[string]string:
		fields := make([]string, 0, len(o))
		for f := range o {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			tokens = append(tokens, f+" "+o[f])
		}
	case map[string]any:
		fields := make([]string, 0, len(o))
		for f := range o {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			tokens = append(tokens, fmt.Sprintf("%s %v", f, o[f]))
		}
	default:
		return nil, fmt.Errorf("unsupported order specification type %T", order)
	}

	var terms []orderTerm
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		field, dir, err := splitOrderToken(tok)
		if err != nil {
			return nil, err
		}
		terms = append(terms, orderTerm{field: field, desc: dir == "DESC"})
	}
	return terms, nil
}
