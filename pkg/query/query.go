// Package query translates the declarative WHERE/JOIN/ORDER grammar into
// backend-native SQL fragments, and evaluates the same grammar in memory
// for backends that have no SQL engine.
//
// All literal values become bound parameters; only schema-validated field
// and table identifiers are composed into SQL text.
package query

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/dialect"
)

// Statement is a compiled SQL fragment with its bound arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Select is the declarative form of a read operation. SQL backends compile
// it through a Translator; the tabular backend evaluates it directly.
type Select struct {
	Tables   []string
	Fields   []string
	Where    core.ConditionTree
	Joins    []core.Join
	AutoJoin bool
	Order    any
	Limit    int
}

// Translator compiles declarative queries for one dialect against one
// schema. Construct one per source; it is stateless across calls.
type Translator struct {
	dialect *dialect.Dialect
	schema  *core.Schema
	logger  *slog.Logger
}

// NewTranslator creates a translator for the given dialect and schema.
// If logger is nil, a discard logger is used.
func NewTranslator(d *dialect.Dialect, schema *core.Schema, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Translator{dialect: d, schema: schema, logger: logger}
}

// BuildSelect compiles a full SELECT statement.
func (t *Translator) BuildSelect(sel *Select) (Statement, error) {
	if len(sel.Tables) == 0 {
		return Statement{}, fmt.Errorf("select requires at least one table")
	}

	tables, fromClause, err := t.buildFrom(sel)
	if err != nil {
		return Statement{}, err
	}

	cols, err := t.buildColumns(sel.Fields, tables)
	if err != nil {
		return Statement{}, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(fromClause)

	var args []any
	if !sel.Where.Empty() {
		whereSQL, whereArgs, err := t.foldWhere(sel.Where, tables, 1)
		if err != nil {
			return Statement{}, err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(whereSQL)
		args = whereArgs
	}

	if sel.Order != nil {
		orderSQL, err := t.BuildOrderBy(sel.Order, tables)
		if err != nil {
			return Statement{}, err
		}
		if orderSQL != "" {
			sb.WriteString(" ORDER BY ")
			sb.WriteString(orderSQL)
		}
	}

	if sel.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", sel.Limit)
	}

	return Statement{SQL: sb.String(), Args: args}, nil
}

// BuildWhere compiles a condition tree into a WHERE fragment (without the
// WHERE keyword) scoped to a single table. Used by update and delete.
func (t *Translator) BuildWhere(table string, tree core.ConditionTree) (Statement, error) {
	return t.BuildWhereFrom(table, tree, 1)
}

// BuildWhereFrom compiles a condition tree with placeholder numbering
// starting at firstArg. Backends that bind SET values before the WHERE
// clause pass the continuation index.
func (t *Translator) BuildWhereFrom(table string, tree core.ConditionTree, firstArg int) (Statement, error) {
	if tree.Empty() {
		return Statement{}, nil
	}
	sql, args, err := t.foldWhere(tree, []string{table}, firstArg)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: sql, Args: args}, nil
}

// buildColumns renders the projection list, validating each field against
// the involved tables.
func (t *Translator) buildColumns(fields []string, tables []string) (string, error) {
	if len(fields) == 0 {
		return "*", nil
	}
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if err := t.checkField(f, tables); err != nil {
			return "", err
		}
		cols = append(cols, t.dialect.QuoteIdent(f))
	}
	return strings.Join(cols, ", "), nil
}

// checkTable validates a table identifier against the schema.
func (t *Translator) checkTable(name string) error {
	if t.schema == nil {
		return nil
	}
	if _, ok := t.schema.Table(name); !ok {
		return fmt.Errorf("unknown table %q", name)
	}
	return nil
}

// checkField validates a (possibly table-qualified) field identifier
// against the schema definitions of the involved tables.
func (t *Translator) checkField(field string, tables []string) error {
	if t.schema == nil {
		return nil
	}
	name := field
	if tbl, col, ok := strings.Cut(field, "."); ok {
		def, found := t.schema.Table(tbl)
		if !found {
			return fmt.Errorf("unknown table %q in field %q", tbl, field)
		}
		if _, found := def.Field(col); !found {
			return fmt.Errorf("unknown field %q on table %q", col, tbl)
		}
		return nil
	}
	for _, tbl := range tables {
		if def, ok := t.schema.Table(tbl); ok {
			if _, ok := def.Field(name); ok {
				return nil
			}
		}
	}
	return fmt.Errorf("unknown field %q", field)
}
