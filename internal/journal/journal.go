// Package journal records workflow runs and their steps in a local
// SQLite database. The journal is an audit trail, not a control plane:
// writes are best effort from the orchestrator's point of view.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Run is one recorded workflow execution.
type Run struct {
	ID          string
	Workflow    string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time
	Error       string
}

// StepRecord is one recorded step of a run.
type StepRecord struct {
	RunID    string
	Index    int
	Name     string
	Kind     string
	Status   string
	Duration time.Duration
	Error    string
}

// Journal is the SQLite-backed run history store.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the journal database at path and runs
// pending migrations. Use ":memory:" for a throwaway journal.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", "path", path)
	return &Journal{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// StartRun records a new run in running state and returns its id.
func (j *Journal) StartRun(ctx context.Context, workflow string) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (id, workflow, status, started_at) VALUES (?, ?, ?, ?)`,
		id, workflow, "running", now)
	if err != nil {
		return "", fmt.Errorf("failed to record run start: %w", err)
	}
	return id, nil
}

// FinishRun marks a run completed or failed.
func (j *Journal) FinishRun(ctx context.Context, runID, status, errMsg string) error {
	now := time.Now().UTC()
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}

	res, err := j.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, now, errVal, runID)
	if err != nil {
		return fmt.Errorf("failed to record run completion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}
	return nil
}

// RecordStep appends one step row to a run.
func (j *Journal) RecordStep(ctx context.Context, runID string, index int, name, kind, status string, elapsed time.Duration, errMsg string) error {
	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO workflow_steps (run_id, step_index, name, kind, status, duration_ms, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, index, name, kind, status, elapsed.Milliseconds(), errVal)
	if err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, workflow, status, started_at, completed_at, error
		 FROM workflow_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var completed sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.Workflow, &r.Status, &r.StartedAt, &completed, &errMsg); err != nil {
			return nil, err
		}
		if completed.Valid {
			t := completed.Time
			r.CompletedAt = &t
		}
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Steps returns the recorded steps of a run in execution order.
func (j *Journal) Steps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id, step_index, name, kind, status, duration_ms, error
		 FROM workflow_steps WHERE run_id = ? ORDER BY step_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var s StepRecord
		var ms int64
		var errMsg sql.NullString
		if err := rows.Scan(&s.RunID, &s.Index, &s.Name, &s.Kind, &s.Status, &ms, &errMsg); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(ms) * time.Millisecond
		s.Error = errMsg.String
		steps = append(steps, s)
	}
	return steps, rows.Err()
}
