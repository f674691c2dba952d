package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/leapstack-labs/leapbase/pkg/backend"
	"github.com/leapstack-labs/leapbase/pkg/core"
)

// Backend implements the storage contract for PostgreSQL. One persistent
// connection pool per source alias.
type Backend struct {
	backend.BaseSQLBackend
}

// New creates a PostgreSQL backend instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Backend{
		BaseSQLBackend: backend.BaseSQLBackend{
			Logger:   logger,
			KindName: Kind,
			D:        pgDialect,
		},
	}
	b.Classify = classify
	return b
}

// Connect establishes the connection and, when a sidecar path is
// configured, writes the diagnostics sidecar.
func (b *Backend) Connect(ctx context.Context, cfg core.BackendConfig, schema *core.Schema) error {
	dsn := buildDSN(cfg)

	b.Logger.Debug("connecting to postgres", "host", cfg.Host, "database", cfg.Database)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return &core.OpError{Op: "connect", Backend: Kind, Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return &core.OpError{Op: "connect", Backend: Kind, Err: err}
	}

	b.Attach(db, cfg, schema)

	if err := b.writeSidecar(ctx); err != nil {
		// Diagnostics only; the connection is healthy.
		b.Logger.Warn("failed to write connection sidecar", "error", err)
	}
	return nil
}

// buildDSN constructs a key=value connection string.
func buildDSN(cfg core.BackendConfig) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if cfg.Options != nil {
		if mode, ok := cfg.Options["sslmode"]; ok {
			sslmode = mode
		}
	}

	dsn := fmt.Sprintf("host=%s port=%d dbname=%s sslmode=%s", host, port, cfg.Database, sslmode)
	if cfg.Username != "" {
		dsn += fmt.Sprintf(" user=%s", cfg.Username)
	}
	if cfg.Password != "" {
		dsn += fmt.Sprintf(" password=%s", cfg.Password)
	}
	return dsn
}

// TableExists reports whether the named table exists in the public schema.
func (b *Backend) TableExists(ctx context.Context, name string) (bool, error) {
	recs, err := b.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_name = $1`, name)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// ListTables returns all base table names in the public schema.
func (b *Backend) ListTables(ctx context.Context) ([]string, error) {
	recs, err := b.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
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

// classify maps pgx errors onto the constraint taxonomy via SQLSTATE.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	switch pgErr.Code {
	case "23505":
		return &core.ConstraintError{Kind: core.ConstraintUnique, Err: err}
	case "23503":
		return &core.ConstraintError{Kind: core.ConstraintForeignKey, Err: err}
	case "23502":
		return &core.ConstraintError{Kind: core.ConstraintNotNull, Err: err}
	case "23514", "23P01":
		return &core.ConstraintError{Kind: core.ConstraintOther, Err: err}
	}
	return nil
}

// Ensure Backend implements the storage contract.
var _ backend.Backend = (*Backend)(nil)
