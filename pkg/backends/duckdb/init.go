// Package duckdb provides an embedded analytical backend, built on the
// go-duckdb driver. Same contract as the other engines; autoincrement
// rides on an explicitly created sequence per table.
//
// This file registers the backend and its dialect. Import this package
// with a blank identifier to register the backend:
//
//	import _ "github.com/leapstack-labs/leapbase/pkg/backends/duckdb"
package duckdb

import (
	"log/slog"

	"github.com/leapstack-labs/leapbase/pkg/backend"
	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/dialect"
)

// Kind is the backend kind this package registers.
const Kind = "duckdb"

var duckDialect = &dialect.Dialect{
	Name:         Kind,
	QuoteChar:    `"`,
	Placeholders: dialect.PlaceholderQuestion,
	Types: map[core.FieldType]string{
		core.FieldString:   "VARCHAR",
		core.FieldInteger:  "BIGINT",
		core.FieldFloat:    "DOUBLE",
		core.FieldBoolean:  "BOOLEAN",
		core.FieldDatetime: "TIMESTAMP",
		core.FieldDate:     "DATE",
		core.FieldTime:     "TIME",
		core.FieldJSON:     "JSON",
		core.FieldBinary:   "BLOB",
	},
	AutoIncrementPK:    "BIGINT DEFAULT nextval('{seq}') PRIMARY KEY",
	NeedsSequence:      true,
	SupportsReturning:  true,
	SupportsUpsert:     true,
	SupportsDropColumn: true,
}

func init() {
	dialect.Register(duckDialect)
	backend.Register(Kind, func(logger *slog.Logger) backend.Backend { return New(logger) })
}
