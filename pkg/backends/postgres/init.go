// Package postgres provides the client/server relational backend, built
// on the pgx driver's database/sql compatibility layer.
//
// This file registers the backend and its dialect. Import this package
// with a blank identifier to register the backend:
//
//	import _ "github.com/leapstack-labs/leapbase/pkg/backends/postgres"
package postgres

import (
	"log/slog"

	"github.com/leapstack-labs/leapbase/pkg/backend"
	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/dialect"
)

// Kind is the backend kind this package registers.
const Kind = "postgres"

// pgDialect describes the PostgreSQL SQL surface. Identity autoincrement,
// dollar placeholders, full-row RETURNING, native ON CONFLICT upsert.
var pgDialect = &dialect.Dialect{
	Name:         Kind,
	QuoteChar:    `"`,
	Placeholders: dialect.PlaceholderDollar,
	Types: map[core.FieldType]string{
		core.FieldString:   "TEXT",
		core.FieldInteger:  "BIGINT",
		core.FieldFloat:    "DOUBLE PRECISION",
		core.FieldBoolean:  "BOOLEAN",
		core.FieldDatetime: "TIMESTAMPTZ",
		core.FieldDate:     "DATE",
		core.FieldTime:     "TIME",
		core.FieldJSON:     "JSONB",
		core.FieldBinary:   "BYTEA",
	},
	AutoIncrementPK:    "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
	SupportsReturning:  true,
	SupportsUpsert:     true,
	SupportsDropColumn: true,
}

func init() {
	dialect.Register(pgDialect)
	backend.Register(Kind, func(logger *slog.Logger) backend.Backend { return New(logger) })
}
