// Package sqlite provides the embedded single-file storage backend,
// built on the modernc.org/sqlite driver.
//
// This file registers the backend and its dialect. Import this package
// with a blank identifier to register the backend:
//
//	import _ "github.com/leapstack-labs/leapbase/pkg/backends/sqlite"
package sqlite

import (
	"log/slog"

	"github.com/leapstack-labs/leapbase/pkg/backend"
	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/dialect"
)

// Kind is the backend kind this package registers.
const Kind = "sqlite"

// sqliteDialect describes the SQLite SQL surface. Rowid autoincrement,
// question-mark placeholders, no full-row RETURNING (row ids come from
// the driver), no native DROP COLUMN.
var sqliteDialect = &dialect.Dialect{
	Name:         Kind,
	QuoteChar:    `"`,
	Placeholders: dialect.PlaceholderQuestion,
	Types: map[core.FieldType]string{
		core.FieldString:   "TEXT",
		core.FieldInteger:  "INTEGER",
		core.FieldFloat:    "REAL",
		core.FieldBoolean:  "INTEGER",
		core.FieldDatetime: "TEXT",
		core.FieldDate:     "TEXT",
		core.FieldTime:     "TEXT",
		core.FieldJSON:     "TEXT",
		core.FieldBinary:   "BLOB",
	},
	AutoIncrementPK:    "INTEGER PRIMARY KEY AUTOINCREMENT",
	SupportsReturning:  false,
	SupportsUpsert:     true,
	SupportsDropColumn: false,
}

func init() {
	dialect.Register(sqliteDialect)
	backend.Register(Kind, func(logger *slog.Logger) backend.Backend { return New(logger) })
}
