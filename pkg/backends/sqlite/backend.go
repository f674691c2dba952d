package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapbase/pkg/backend"
	"github.com/leapstack-labs/leapbase/pkg/core"
	_ "modernc.org/sqlite" // sqlite driver
)

// Backend implements the storage contract for SQLite.
type Backend struct {
	backend.BaseSQLBackend
}

// New creates a SQLite backend instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Backend{
		BaseSQLBackend: backend.BaseSQLBackend{
			Logger:   logger,
			KindName: Kind,
			D:        sqliteDialect,
		},
	}
	b.Classify = classify
	return b
}

// Connect opens the database file. Use ":memory:" as the path for an
// in-memory database.
func (b *Backend) Connect(ctx context.Context, cfg core.BackendConfig, schema *core.Schema) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	b.Logger.Debug("connecting to sqlite", "path", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return &core.OpError{Op: "connect", Backend: Kind, Err: err}
	}

	// In-memory databases live per connection; a pool of one keeps the
	// database alive and visible to every statement.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			_ = db.Close()
			return &core.OpError{Op: "connect", Backend: Kind, Err: err}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return &core.OpError{Op: "connect", Backend: Kind, Err: err}
	}

	b.Attach(db, cfg, schema)
	return nil
}

// TableExists reports whether the named table exists.
func (b *Backend) TableExists(ctx context.Context, name string) (bool, error) {
	recs, err := b.Query(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// ListTables returns all user table names.
func (b *Backend) ListTables(ctx context.Context) ([]string, error) {
	recs, err := b.Query(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(recs))
	for _, rec := range recs {
		if n, ok := rec["name"].(string); ok {
			names = append(names, n)
		}
	}
	return names, nil
}

// DropColumn emulates ALTER TABLE ... DROP COLUMN, which SQLite does not
// support for constrained columns: create a copy of the table without the
// column, copy the data across, drop the original, rename.
func (b *Backend) DropColumn(ctx context.Context, tbl *core.Table, column string) error {
	if _, ok := tbl.Field(column); !ok {
		return &core.OpError{Op: "drop_column", Backend: Kind, Table: tbl.Name,
			Err: fmt.Errorf("unknown column %q", column)}
	}

	stripped := stripColumn(tbl, column)
	tmp := *stripped
	tmp.Name = tbl.Name + "_mig"
	tmp.Indexes = nil

	ownTx := !b.InTransaction()
	if ownTx {
		if err := b.Begin(ctx); err != nil {
			return err
		}
		defer func() {
			if b.InTransaction() {
				_ = b.Rollback()
			}
		}()
	}

	if err := b.CreateTable(ctx, &tmp); err != nil {
		return err
	}

	cols := make([]string, len(stripped.Fields))
	for i := range stripped.Fields {
		cols[i] = b.D.QuoteIdent(stripped.Fields[i].Name)
	}
	colList := strings.Join(cols, ", ")
	copyStmt := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		b.D.QuoteIdent(tmp.Name), colList, colList, b.D.QuoteIdent(tbl.Name))
	if err := b.Exec(ctx, copyStmt); err != nil {
		return err
	}

	if err := b.Exec(ctx, "DROP TABLE "+b.D.QuoteIdent(tbl.Name)); err != nil {
		return err
	}
	if err := b.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
		b.D.QuoteIdent(tmp.Name), b.D.QuoteIdent(tbl.Name))); err != nil {
		return err
	}
	if err := b.CreateIndexes(ctx, tbl.Name, stripped.Indexes); err != nil {
		return err
	}

	if ownTx {
		return b.Commit()
	}
	return nil
}

// stripColumn returns a copy of the table definition without the named
// column, dropping indexes that referenced it.
func stripColumn(tbl *core.Table, column string) *core.Table {
	out := &core.Table{Name: tbl.Name}
	for _, c := range tbl.PrimaryKey {
		if c != column {
			out.PrimaryKey = append(out.PrimaryKey, c)
		}
	}
	for i := range tbl.Fields {
		if tbl.Fields[i].Name != column {
			out.Fields = append(out.Fields, tbl.Fields[i])
		}
	}
	for _, idx := range tbl.Indexes {
		references := false
		for _, c := range idx.Columns {
			if c == column {
				references = true
				break
			}
		}
		if !references {
			out.Indexes = append(out.Indexes, idx)
		}
	}
	return out
}

// classify maps driver errors onto the constraint taxonomy.
func classify(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint"):
		return &core.ConstraintError{Kind: core.ConstraintUnique, Err: err}
	case strings.Contains(msg, "FOREIGN KEY constraint"):
		return &core.ConstraintError{Kind: core.ConstraintForeignKey, Err: err}
	case strings.Contains(msg, "NOT NULL constraint"):
		return &core.ConstraintError{Kind: core.ConstraintNotNull, Err: err}
	case strings.Contains(msg, "constraint failed"):
		return &core.ConstraintError{Kind: core.ConstraintOther, Err: err}
	}
	return nil
}

// Ensure Backend implements the storage contract.
var _ backend.Backend = (*Backend)(nil)
