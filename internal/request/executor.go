// Package request executes uniform data-operation requests: resolve the
// source, validate the payload, translate the declarative parts, and
// dispatch to the backend. Callers that do not orchestrate multi-step
// runs go through here instead of hand-building backend calls.
package request

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/leapbase/internal/schema"
	"github.com/leapstack-labs/leapbase/internal/source"
	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/query"
	"github.com/leapstack-labs/leapbase/pkg/validate"
)

// Result is the outcome of one executed request. The fields relevant to
// the action are set: Records for reads (and writes on backends that
// return the full row), ID for inserts and upserts, Count for the rows
// touched, Tables for table listings.
type Result struct {
	ID      int64
	Count   int64
	Records []core.Record
	Tables  []string
}

// Executor runs requests against the configured sources. Connections
// come from the source cache; the cache's owner controls their lifetime.
type Executor struct {
	schemas *schema.Loader
	cache   *source.Cache
	logger  *slog.Logger
}

// NewExecutor creates an executor over the given schema loader and
// connection cache. If logger is nil, a discard logger is used.
func NewExecutor(schemas *schema.Loader, cache *source.Cache, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{schemas: schemas, cache: cache, logger: logger}
}

// Execute dispatches one request. Write payloads are validated against
// the source schema before they reach the backend.
func (e *Executor) Execute(ctx context.Context, req *core.Request) (*Result, error) {
	if req.Model == "" {
		return nil, &core.ConfigError{Field: "model", Message: "request names no source"}
	}
	b, err := e.cache.Get(ctx, req.Model)
	if err != nil {
		return nil, err
	}

	switch req.Action {
	case core.ActionListTables:
		names, err := b.ListTables(ctx)
		if err != nil {
			return nil, err
		}
		return &Result{Tables: names}, nil

	case core.ActionRead:
		recs, err := b.Select(ctx, &query.Select{
			Tables:   req.Tables,
			Fields:   req.Fields,
			Where:    req.Where,
			Joins:    req.Joins,
			AutoJoin: req.AutoJoin,
			Order:    req.Order,
			Limit:    req.Limit,
		})
		if err != nil {
			return nil, err
		}
		return &Result{Records: recs, Count: int64(len(recs))}, nil
	}

	s, err := e.schemas.Load(req.Model)
	if err != nil {
		return nil, err
	}
	tbl, ok := s.Table(req.Table())
	if !ok {
		return nil, fmt.Errorf("unknown table %q on source %s", req.Table(), req.Model)
	}

	switch req.Action {
	case core.ActionCreate:
		if err := b.CreateTable(ctx, tbl); err != nil {
			return nil, err
		}
		return &Result{}, nil

	case core.ActionInsert:
		if verrs := validate.New(s, e.logger).ValidateInsert(tbl.Name, req.Values); verrs != nil {
			return nil, verrs
		}
		id, row, err := b.Insert(ctx, tbl, req.Values)
		if err != nil {
			return nil, err
		}
		return writeResult(id, row), nil

	case core.ActionUpsert:
		if verrs := validate.New(s, e.logger).ValidateInsert(tbl.Name, req.Values); verrs != nil {
			return nil, verrs
		}
		id, row, err := b.Upsert(ctx, tbl, req.Values)
		if err != nil {
			return nil, err
		}
		return writeResult(id, row), nil

	case core.ActionUpdate:
		if verrs := validate.New(s, e.logger).ValidateUpdate(tbl.Name, req.Values); verrs != nil {
			return nil, verrs
		}
		n, err := b.Update(ctx, tbl, req.Values, req.Where)
		if err != nil {
			return nil, err
		}
		return &Result{Count: n}, nil

	case core.ActionDelete:
		n, err := b.Delete(ctx, tbl, req.Where)
		if err != nil {
			return nil, err
		}
		return &Result{Count: n}, nil

	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
}

// writeResult shapes an insert or upsert outcome: the backend's returned
// row when it has one, always the assigned id.
func writeResult(id int64, row core.Record) *Result {
	res := &Result{ID: id, Count: 1}
	if row != nil {
		res.Records = []core.Record{row}
	}
	return res
}
