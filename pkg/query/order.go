package query

import (
	"fmt"
	"sort"
	"strings"
)

// BuildOrderBy renders an ORDER BY fragment (without the keywords) from
// one of the three accepted shapes:
//   - a raw string: "name DESC, id" (each field validated);
//   - a []string of "field [ASC|DESC]" tokens;
//   - a map of field to direction (emitted in sorted field order).
func (t *Translator) BuildOrderBy(order any, tables []string) (string, error) {
	switch o := order.(type) {
	case nil:
		return "", nil
	case string:
		if strings.TrimSpace(o) == "" {
			return "", nil
		}
		return t.orderFromTokens(strings.Split(o, ","), tables)
	case []string:
		return t.orderFromTokens(o, tables)
	case []any:
		tokens := make([]string, 0, len(o))
		for _, item := range o {
			s, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("order list entries must be strings, got %T", item)
			}
			tokens = append(tokens, s)
		}
		return t.orderFromTokens(tokens, tables)
	case map[string]string:
		m := make(map[string]any, len(o))
		for k, v := range o {
			m[k] = v
		}
		return t.orderFromMap(m, tables)
	case map[string]any:
		return t.orderFromMap(o, tables)
	default:
		return "", fmt.Errorf("unsupported order specification type %T", order)
	}
}

// orderFromTokens renders "field [ASC|DESC]" tokens in the given order.
func (t *Translator) orderFromTokens(tokens []string, tables []string) (string, error) {
	var parts []string
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		field, dir, err := splitOrderToken(tok)
		if err != nil {
			return "", err
		}
		if err := t.checkField(field, tables); err != nil {
			return "", err
		}
		part := t.dialect.QuoteIdent(field)
		if dir != "" {
			part += " " + dir
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", "), nil
}

// orderFromMap renders a field-to-direction mapping in sorted field order
// so generated SQL is deterministic.
func (t *Translator) orderFromMap(m map[string]any, tables []string) (string, error) {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var parts []string
	for _, field := range fields {
		if err := t.checkField(field, tables); err != nil {
			return "", err
		}
		dir, err := normalizeDirection(fmt.Sprintf("%v", m[field]))
		if err != nil {
			return "", fmt.Errorf("field %q: %w", field, err)
		}
		part := t.dialect.QuoteIdent(field)
		if dir != "" {
			part += " " + dir
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", "), nil
}

// splitOrderToken splits "field DESC" into field and direction.
func splitOrderToken(tok string) (field, dir string, err error) {
	parts := strings.Fields(tok)
	switch len(parts) {
	case 1:
		return parts[0], "", nil
	case 2:
		dir, err = normalizeDirection(parts[1])
		if err != nil {
			return "", "", fmt.Errorf("order token %q: %w", tok, err)
		}
		return parts[0], dir, nil
	default:
		return "", "", fmt.Errorf("malformed order token %q", tok)
	}
}

// normalizeDirection validates a sort direction. Empty means backend
// default (ascending).
func normalizeDirection(dir string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(dir)) {
	case "", "ASC":
		return "ASC", nil
	case "DESC":
		return "DESC", nil
	default:
		return "", fmt.Errorf("invalid sort direction %q", dir)
	}
}
