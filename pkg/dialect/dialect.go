// Package dialect describes the SQL surface of each backend: identifier
// quoting, placeholder style, semantic-to-native type mapping, and the
// capabilities the shared SQL base consults when composing DDL and DML.
//
// Concrete dialects are registered from the pkg/backends/* packages in
// their init() functions.
package dialect

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

// PlaceholderStyle selects how bound parameters are written.
type PlaceholderStyle int

const (
	// PlaceholderQuestion uses "?" for every parameter (sqlite, duckdb).
	PlaceholderQuestion PlaceholderStyle = iota
	// PlaceholderDollar uses "$1", "$2", ... (postgres).
	PlaceholderDollar
)

// Dialect is the static SQL configuration for one backend kind.
type Dialect struct {
	// Name is the dialect name, matching the backend kind.
	Name string

	// QuoteChar quotes identifiers; doubled to escape.
	QuoteChar string

	// Placeholders selects the bound-parameter style.
	Placeholders PlaceholderStyle

	// Types maps semantic field types to native column types.
	Types map[core.FieldType]string

	// AutoIncrementPK is the full column clause for an automatically
	// assigned integer primary key. A "{seq}" placeholder is replaced
	// with the table's sequence name when NeedsSequence is set.
	AutoIncrementPK string

	// NeedsSequence is true for engines whose autoincrement rides on an
	// explicitly created sequence (duckdb).
	NeedsSequence bool

	// SupportsReturning is true when INSERT ... RETURNING yields the full
	// inserted row.
	SupportsReturning bool

	// SupportsUpsert is true when the backend has native conflict syntax
	// (INSERT ... ON CONFLICT DO UPDATE).
	SupportsUpsert bool

	// SupportsDropColumn is false for engines that must emulate
	// ALTER TABLE ... DROP COLUMN by recreate-and-copy.
	SupportsDropColumn bool
}

// QuoteIdent quotes a (possibly dotted) identifier.
func (d *Dialect) QuoteIdent(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		escaped := strings.ReplaceAll(p, d.QuoteChar, d.QuoteChar+d.QuoteChar)
		parts[i] = d.QuoteChar + escaped + d.QuoteChar
	}
	return strings.Join(parts, ".")
}

// Placeholder renders the n-th (1-based) bound parameter.
func (d *Dialect) Placeholder(n int) string {
	if d.Placeholders == PlaceholderDollar {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// MapType maps a semantic field type to this dialect's native column type.
func (d *Dialect) MapType(t core.FieldType) (string, error) {
	if native, ok := d.Types[t]; ok {
		return native, nil
	}
	return "", fmt.Errorf("dialect %s: no native type for %q", d.Name, t)
}
