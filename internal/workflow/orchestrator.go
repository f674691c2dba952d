package workflow

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/leapstack-labs/leapbase/internal/schema"
	"github.com/leapstack-labs/leapbase/internal/source"
	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/query"
	"github.com/leapstack-labs/leapbase/pkg/validate"
)

// Recorder persists workflow run history. Implemented by the journal;
// nil disables recording.
type Recorder interface {
	StartRun(ctx context.Context, workflow string) (string, error)
	FinishRun(ctx context.Context, runID, status, errMsg string) error
	RecordStep(ctx context.Context, runID string, index int, name, kind, status string, elapsed time.Duration, errMsg string) error
}

// Run statuses written to the journal.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Orchestrator executes workflows step by step. Connections are drawn
// from the source cache and cleared when the run ends, whatever the
// outcome.
type Orchestrator struct {
	cache    *source.Cache
	schemas  *schema.Loader
	logger   *slog.Logger
	recorder Recorder
	out      io.Writer
}

// NewOrchestrator creates an orchestrator over the given connection
// cache and schema loader. If logger is nil, a discard logger is used.
func NewOrchestrator(cache *source.Cache, schemas *schema.Loader, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		cache:   cache,
		schemas: schemas,
		logger:  logger,
		out:     os.Stdout,
	}
}

// SetRecorder enables run journaling.
func (o *Orchestrator) SetRecorder(r Recorder) { o.recorder = r }

// SetOutput redirects display step output (stdout by default).
func (o *Orchestrator) SetOutput(w io.Writer) { o.out = w }

// Run executes the workflow and returns the append-only result list,
// one entry per completed step. On failure the results of the completed
// steps are returned alongside the error.
//
// In transactional mode a transaction is opened on each source alias at
// its first data step; a step failure rolls back every open transaction
// before the error is returned, and success commits them all. The
// connection cache is cleared on every exit path.
func (o *Orchestrator) Run(ctx context.Context, wf *Workflow) ([]any, error) {
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	defer o.cache.Clear()

	runID := o.startRun(ctx, wf)
	o.logger.Info("workflow started", "workflow", wf.Name, "steps", len(wf.Steps), "transactional", wf.Transactional)

	results := make([]any, 0, len(wf.Steps))
	for i := range wf.Steps {
		step := &wf.Steps[i]
		started := time.Now()

		result, err := o.runStep(ctx, wf, step, results)
		elapsed := time.Since(started)
		if err != nil {
			err = fmt.Errorf("step %d (%s): %w", i, step.Name, err)
			if wf.Transactional {
				o.cache.RollbackAll()
			}
			o.recordStep(ctx, runID, i, step, StatusFailed, elapsed, err)
			o.finishRun(ctx, runID, StatusFailed, err)
			o.logger.Error("workflow failed", "workflow", wf.Name, "step", step.Name, "error", err)
			return results, err
		}

		results = append(results, result)
		o.recordStep(ctx, runID, i, step, StatusCompleted, elapsed, nil)
		o.logger.Debug("step completed", "workflow", wf.Name, "step", step.Name, "elapsed", elapsed)
	}

	if wf.Transactional {
		if err := o.cache.CommitAll(); err != nil {
			o.cache.RollbackAll()
			o.finishRun(ctx, runID, StatusFailed, err)
			return results, err
		}
	}

	o.finishRun(ctx, runID, StatusCompleted, nil)
	o.logger.Info("workflow completed", "workflow", wf.Name, "steps", len(results))
	return results, nil
}

func (o *Orchestrator) runStep(ctx context.Context, wf *Workflow, step *Step, results []any) (any, error) {
	switch step.Kind {
	case StepEval:
		return evalExpr(step.Name, step.Expr, results)
	case StepDisplay:
		msg, err := interpolate(step.Message, results)
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf("%v", msg)
		fmt.Fprintln(o.out, text)
		return text, nil
	default:
		return o.runDataStep(ctx, wf, step, results)
	}
}

func (o *Orchestrator) runDataStep(ctx context.Context, wf *Workflow, step *Step, results []any) (any, error) {
	b, err := o.cache.Get(ctx, step.Source)
	if err != nil {
		return nil, err
	}
	if wf.Transactional && !o.cache.InTransaction(step.Source) {
		if err := o.cache.Begin(ctx, step.Source); err != nil {
			return nil, err
		}
	}

	s, err := o.schemas.Load(step.Source)
	if err != nil {
		return nil, err
	}

	values, err := resolveRecord(step.Values, results)
	if err != nil {
		return nil, err
	}
	where, err := resolveTree(step.Where, results)
	if err != nil {
		return nil, err
	}

	if step.Kind == StepQuery {
		tables := step.Tables
		if len(tables) == 0 {
			tables = []string{step.Table}
		}
		return b.Select(ctx, &query.Select{
			Tables:   tables,
			Fields:   step.Fields,
			Where:    where,
			Joins:    step.Joins,
			AutoJoin: step.AutoJoin,
			Order:    step.Order,
			Limit:    step.Limit,
		})
	}

	tbl, ok := s.Table(step.Table)
	if !ok {
		return nil, fmt.Errorf("unknown table %q on source %s", step.Table, step.Source)
	}

	v := validate.New(s, o.logger)
	switch step.Kind {
	case StepInsert, StepUpsert:
		if verrs := v.ValidateInsert(step.Table, values); verrs != nil {
			return nil, verrs
		}
	case StepUpdate:
		if verrs := v.ValidateUpdate(step.Table, values); verrs != nil {
			return nil, verrs
		}
	}

	switch step.Kind {
	case StepInsert:
		id, row, err := b.Insert(ctx, tbl, values)
		if err != nil {
			return nil, err
		}
		return insertResult(id, row), nil
	case StepUpsert:
		id, row, err := b.Upsert(ctx, tbl, values)
		if err != nil {
			return nil, err
		}
		return insertResult(id, row), nil
	case StepUpdate:
		return b.Update(ctx, tbl, values, where)
	case StepDelete:
		return b.Delete(ctx, tbl, where)
	default:
		return nil, fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// insertResult prefers the returned row; backends without RETURNING
// yield the assigned id instead.
func insertResult(id int64, row core.Record) any {
	if row != nil {
		return row
	}
	return id
}

func (o *Orchestrator) startRun(ctx context.Context, wf *Workflow) string {
	if o.recorder == nil {
		return ""
	}
	runID, err := o.recorder.StartRun(ctx, wf.Name)
	if err != nil {
		o.logger.Warn("journal unavailable", "error", err)
		return ""
	}
	return runID
}

func (o *Orchestrator) finishRun(ctx context.Context, runID, status string, runErr error) {
	if o.recorder == nil || runID == "" {
		return
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	if err := o.recorder.FinishRun(ctx, runID, status, msg); err != nil {
		o.logger.Warn("journal write failed", "error", err)
	}
}

func (o *Orchestrator) recordStep(ctx context.Context, runID string, index int, step *Step, status string, elapsed time.Duration, stepErr error) {
	if o.recorder == nil || runID == "" {
		return
	}
	msg := ""
	if stepErr != nil {
		msg = stepErr.Error()
	}
	if err := o.recorder.RecordStep(ctx, runID, index, step.Name, step.Kind, status, elapsed, msg); err != nil {
		o.logger.Warn("journal write failed", "error", err)
	}
}
