package query

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// buildFrom renders the FROM clause and returns the tables that actually
// participate in the query. Three shapes:
//   - explicit joins: emitted in the given order;
//   - auto-join: FK-driven discovery, unresolved tables dropped with a
//     warning;
//   - multiple tables, no spec: a logged cross product.
func (t *Translator) buildFrom(sel *Select) ([]string, string, error) {
	for _, tbl := range sel.Tables {
		if err := t.checkTable(tbl); err != nil {
			return nil, "", err
		}
	}

	base := sel.Tables[0]

	switch {
	case len(sel.Joins) > 0:
		return t.buildExplicitJoins(base, sel.Joins)

	case sel.AutoJoin && len(sel.Tables) > 1:
		resolved, joins := t.discoverJoins(sel.Tables)
		return t.renderJoins(base, resolved, joins)

	case len(sel.Tables) > 1:
		t.logger.Warn("multiple tables without join spec, emitting cross product",
			"tables", sel.Tables)
		quoted := make([]string, len(sel.Tables))
		for i, tbl := range sel.Tables {
			quoted[i] = t.dialect.QuoteIdent(tbl)
		}
		return sel.Tables, strings.Join(quoted, ", "), nil

	default:
		return []string{base}, t.dialect.QuoteIdent(base), nil
	}
}

// buildExplicitJoins renders an explicit ordered join list.
func (t *Translator) buildExplicitJoins(base string, joins []core.Join) ([]string, string, error) {
	tables := []string{base}
	var sb strings.Builder
	sb.WriteString(t.dialect.QuoteIdent(base))

	for _, j := range joins {
		if err := t.checkTable(j.Table); err != nil {
			return nil, "", err
		}
		clause, err := t.renderJoin(j, tables)
		if err != nil {
			return nil, "", err
		}
		sb.WriteString(clause)
		tables = append(tables, j.Table)
	}
	return tables, sb.String(), nil
}

// renderJoins renders joins produced by auto-discovery.
func (t *Translator) renderJoins(base string, resolved []string, joins []core.Join) ([]string, string, error) {
	var sb strings.Builder
	sb.WriteString(t.dialect.QuoteIdent(base))
	tables := []string{base}
	for _, j := range joins {
		clause, err := t.renderJoin(j, tables)
		if err != nil {
			return nil, "", err
		}
		sb.WriteString(clause)
		tables = append(tables, j.Table)
	}
	return resolved, sb.String(), nil
}

// renderJoin renders one join clause. The kind is normalized against the
// allow-list; unknown kinds become inner joins.
func (t *Translator) renderJoin(j core.Join, joined []string) (string, error) {
	kind := core.NormalizeJoinKind(j.Kind)
	if j.Kind != "" && JoinKindName(kind) != strings.ToLower(j.Kind) {
		t.logger.Warn("unknown join kind, defaulting to inner", "kind", j.Kind, "table", j.Table)
	}

	if kind == core.JoinCross {
		return " CROSS JOIN " + t.dialect.QuoteIdent(j.Table), nil
	}

	if j.LeftKey == "" || j.RightKey == "" {
		return "", fmt.Errorf("join on %q requires left_key and right_key", j.Table)
	}

	leftTables := joined
	if err := t.checkField(j.LeftKey, leftTables); err != nil {
		return "", err
	}
	right := j.RightKey
	if !strings.Contains(right, ".") {
		right = j.Table + "." + right
	}
	if err := t.checkField(right, []string{j.Table}); err != nil {
		return "", err
	}

	return fmt.Sprintf(" %s JOIN %s ON %s = %s",
		joinKindSQL(kind),
		t.dialect.QuoteIdent(j.Table),
		t.dialect.QuoteIdent(j.LeftKey),
		t.dialect.QuoteIdent(right),
	), nil
}

// discoverJoins walks the field definitions of the requested tables looking
// for a foreign key pointing at an already-joined table (forward) or from
// an already-joined table at the candidate (reverse). First match wins;
// one inner join per resolved table. Unresolved tables are dropped with a
// warning; the query still runs over the resolvable subset.
func (t *Translator) discoverJoins(tables []string) ([]string, []core.Join) {
	resolved := []string{tables[0]}
	inJoin := map[string]bool{tables[0]: true}
	var joins []core.Join

	for _, candidate := range tables[1:] {
		j, ok := t.findJoinPath(candidate, resolved, inJoin)
		if !ok {
			t.logger.Warn("no join path found, dropping table from query",
				"table", candidate, "joined", resolved)
			continue
		}
		joins = append(joins, j)
		resolved = append(resolved, candidate)
		inJoin[candidate] = true
	}
	return resolved, joins
}

// findJoinPath searches forward then reverse for a usable foreign key.
func (t *Translator) findJoinPath(candidate string, joined []string, inJoin map[string]bool) (core.Join, bool) {
	if t.schema == nil {
		return core.Join{}, false
	}

	// Forward: candidate holds a foreign key into an already-joined table.
	if def, ok := t.schema.Table(candidate); ok {
		for i := range def.Fields {
			fk := def.Fields[i].ForeignKey
			if fk != nil && inJoin[fk.Table] {
				return core.Join{
					Kind:     string(core.JoinInner),
					Table:    candidate,
					LeftKey:  fk.Table + "." + fk.Column,
					RightKey: def.Fields[i].Name,
				}, true
			}
		}
	}

	// Reverse: an already-joined table holds a foreign key into candidate.
	for _, jt := range joined {
		def, ok := t.schema.Table(jt)
		if !ok {
			continue
		}
		for i := range def.Fields {
			fk := def.Fields[i].ForeignKey
			if fk != nil && fk.Table == candidate {
				return core.Join{
					Kind:     string(core.JoinInner),
					Table:    candidate,
					LeftKey:  jt + "." + def.Fields[i].Name,
					RightKey: fk.Column,
				}, true
			}
		}
	}
	return core.Join{}, false
}

// joinKindSQL renders the SQL keyword for a normalized join kind.
func joinKindSQL(kind core.JoinKind) string {
	switch kind {
	case core.JoinLeft:
		return "LEFT"
	case core.JoinRight:
		return "RIGHT"
	case core.JoinFull:
		return "FULL"
	default:
		return "INNER"
	}
}

// JoinKindName returns the lowercase name of a normalized join kind.
func JoinKindName(kind core.JoinKind) string { return string(kind) }
