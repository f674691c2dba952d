// Package memtab provides the in-memory tabular backend: one JSON file
// per table under a configured directory, every operation a whole-table
// load-mutate-persist.
//
// The engine has no native transactions: Begin is a marker, Commit
// flushes the in-memory tables to disk, Rollback discards edits by
// reload. Two tables mutated in one nominal transaction are therefore
// not atomic relative to each other, and concurrent writers race
// last-writer-wins. Documented limitations, not bugs.
//
// Import this package with a blank identifier to register the backend:
//
//	import _ "github.com/leapstack-labs/leapbase/pkg/backends/memtab"
package memtab

import (
	"log/slog"

	"github.com/leapstack-labs/leapbase/pkg/backend"
)

// Kind is the backend kind this package registers.
const Kind = "memtab"

func init() {
	backend.Register(Kind, func(logger *slog.Logger) backend.Backend { return New(logger) })
}
