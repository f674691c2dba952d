// Package backend defines the uniform storage contract every LeapBase
// engine implements, plus the shared database/sql base that the SQL-backed
// engines embed.
//
// Concrete implementations live in pkg/backends/* and register themselves
// with this package's registry in their init() functions.
package backend

import (
	"context"

	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/dialect"
	"github.com/leapstack-labs/leapbase/pkg/query"
)

// Backend is the uniform storage contract: connection lifecycle, DDL,
// CRUD, and transaction control. One instance owns one live connection
// for one source alias; its lifetime is one workflow execution.
type Backend interface {
	// Connect establishes the connection. A failure is fatal for the
	// alias the backend serves.
	Connect(ctx context.Context, cfg core.BackendConfig, schema *core.Schema) error

	// Close closes the connection and releases resources.
	Close() error

	// Kind returns the backend kind (sqlite, memtab, postgres, duckdb).
	Kind() string

	// Dialect returns the SQL dialect for this backend. Nil for backends
	// without a SQL surface.
	Dialect() *dialect.Dialect

	// CreateTable creates the table with composite primary key and
	// foreign-key constraints embedded in the DDL; indexes are created
	// afterwards.
	CreateTable(ctx context.Context, tbl *core.Table) error

	// DropTable removes the table.
	DropTable(ctx context.Context, name string) error

	// DropColumn removes a column. Engines without native support
	// emulate it (recreate-and-copy) or reject it explicitly.
	DropColumn(ctx context.Context, tbl *core.Table, column string) error

	// TableExists reports whether the named table exists.
	TableExists(ctx context.Context, name string) (bool, error)

	// ListTables returns all table names in the storage location.
	ListTables(ctx context.Context) ([]string, error)

	// Insert writes one record and returns the assigned row id. Backends
	// with RETURNING support also return the full inserted row.
	Insert(ctx context.Context, tbl *core.Table, rec core.Record) (int64, core.Record, error)

	// Upsert inserts or updates on primary-key conflict.
	Upsert(ctx context.Context, tbl *core.Table, rec core.Record) (int64, core.Record, error)

	// Select executes a declarative read and returns field-keyed records.
	Select(ctx context.Context, sel *query.Select) ([]core.Record, error)

	// Update applies the record's fields to every row matching the
	// condition tree and returns the affected count. An empty tree
	// matches all rows.
	Update(ctx context.Context, tbl *core.Table, rec core.Record, where core.ConditionTree) (int64, error)

	// Delete removes every row matching the condition tree and returns
	// the affected count. An empty tree matches all rows.
	Delete(ctx context.Context, tbl *core.Table, where core.ConditionTree) (int64, error)

	// Begin, Commit and Rollback control the backend transaction. The
	// tabular engine implements these as flush/reload semantics.
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	// InTransaction reports whether a transaction is open.
	InTransaction() bool
}
