package duckdb

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapbase/pkg/backend"
	"github.com/leapstack-labs/leapbase/pkg/core"
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// Backend implements the storage contract for DuckDB.
type Backend struct {
	backend.BaseSQLBackend
}

// New creates a DuckDB backend instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Backend{
		BaseSQLBackend: backend.BaseSQLBackend{
			Logger:   logger,
			KindName: Kind,
			D:        duckDialect,
		},
	}
	b.Classify = classify
	return b
}

// Connect opens the database file. Use ":memory:" or an empty path for
// an in-memory database.
func (b *Backend) Connect(ctx context.Context, cfg core.BackendConfig, schema *core.Schema) error {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}

	b.Logger.Debug("connecting to duckdb", "path", path)

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return &core.OpError{Op: "connect", Backend: Kind, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return &core.OpError{Op: "connect", Backend: Kind, Err: err}
	}

	b.Attach(db, cfg, schema)
	return nil
}

// TableExists reports whether the named table exists in the main schema.
func (b *Backend) TableExists(ctx context.Context, name string) (bool, error) {
	recs, err := b.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'main' AND table_name = ?`, name)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// ListTables returns all base table names in the main schema.
func (b *Backend) ListTables(ctx context.Context) ([]string, error) {
	recs, err := b.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'main' AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		if n, ok := rec["table_name"].(string); ok {
			names = append(names, n)
		}
	}
	return names, nil
}

// classify maps duckdb constraint messages onto the taxonomy. The driver
// surfaces violations as text, not codes.
func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Duplicate key") || strings.Contains(msg, "unique constraint"):
		return &core.ConstraintError{Kind: core.ConstraintUnique, Err: err}
	case strings.Contains(msg, "foreign key constraint") || strings.Contains(msg, "Violates foreign key"):
		return &core.ConstraintError{Kind: core.ConstraintForeignKey, Err: err}
	case strings.Contains(msg, "NOT NULL constraint"):
		return &core.ConstraintError{Kind: core.ConstraintNotNull, Err: err}
	case strings.Contains(msg, "Constraint Error"):
		return &core.ConstraintError{Kind: core.ConstraintOther, Err: err}
	}
	return nil
}

// Ensure Backend implements the storage contract.
var _ backend.Backend = (*Backend)(nil)
