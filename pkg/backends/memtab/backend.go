package memtab

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/leapstack-labs/leapbase/pkg/backend"
	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/dialect"
	"github.com/leapstack-labs/leapbase/pkg/query"
)

// Backend implements the storage contract over per-table JSON files with
// a whole-table read-through cache for the duration of a run.
type Backend struct {
	cfg    core.BackendConfig
	schema *core.Schema
	logger *slog.Logger

	dir       string
	connected bool

	tables map[string][]core.Record
	dirty  map[string]bool
	inTx   bool
}

// New creates a memtab backend instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{
		logger: logger,
		tables: make(map[string][]core.Record),
		dirty:  make(map[string]bool),
	}
}

// Kind returns the backend kind.
func (b *Backend) Kind() string { return Kind }

// Dialect returns nil: memtab has no SQL surface.
func (b *Backend) Dialect() *dialect.Dialect { return nil }

// Connect ensures the storage directory exists.
func (b *Backend) Connect(_ context.Context, cfg core.BackendConfig, schema *core.Schema) error {
	if cfg.Path == "" {
		return &core.ConfigError{Field: "path", Message: "memtab requires a storage directory"}
	}
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return &core.OpError{Op: "connect", Backend: Kind, Err: err}
	}
	b.cfg = cfg
	b.schema = schema
	b.dir = cfg.Path
	b.connected = true
	b.logger.Debug("memtab attached", "dir", b.dir)
	return nil
}

// Close discards the in-memory cache. Uncommitted transactional edits
// are lost, matching rollback-by-reload semantics.
func (b *Backend) Close() error {
	b.tables = make(map[string][]core.Record)
	b.dirty = make(map[string]bool)
	b.inTx = false
	b.connected = false
	return nil
}

func (b *Backend) opErr(op, table string, err error) error {
	return &core.OpError{Op: op, Backend: Kind, Table: table, Err: err}
}

// --- DDL ---

// CreateTable materializes an empty table file. Field and index
// declarations live in the schema; only existence is stored on disk.
func (b *Backend) CreateTable(ctx context.Context, tbl *core.Table) error {
	if !b.connected {
		return b.opErr("create_table", tbl.Name, errNotConnected)
	}
	exists, err := b.TableExists(ctx, tbl.Name)
	if err != nil {
		return err
	}
	if exists {
		return b.opErr("create_table", tbl.Name, fmt.Errorf("table already exists"))
	}
	b.tables[tbl.Name] = []core.Record{}
	return b.persist("create_table", tbl.Name)
}

// DropTable removes the table file and cache entry.
func (b *Backend) DropTable(_ context.Context, name string) error {
	delete(b.tables, name)
	delete(b.dirty, name)
	if err := os.Remove(b.tablePath(name)); err != nil && !os.IsNotExist(err) {
		return b.opErr("drop_table", name, err)
	}
	return nil
}

// DropColumn removes the field from every stored record.
func (b *Backend) DropColumn(_ context.Context, tbl *core.Table, column string) error {
	recs, err := b.load(tbl.Name)
	if err != nil {
		return b.opErr("drop_column", tbl.Name, err)
	}
	for _, rec := range recs {
		delete(rec, column)
	}
	b.tables[tbl.Name] = recs
	return b.persist("drop_column", tbl.Name)
}

// TableExists reports whether the table is cached or stored on disk.
func (b *Backend) TableExists(_ context.Context, name string) (bool, error) {
	if _, ok := b.tables[name]; ok {
		return true, nil
	}
	_, err := os.Stat(b.tablePath(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, b.opErr("table_exists", name, err)
}

// ListTables returns all table files in the storage directory.
func (b *Backend) ListTables(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, b.opErr("list_tables", "", err)
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), tableExt) {
			seen[strings.TrimSuffix(e.Name(), tableExt)] = true
		}
	}
	for name := range b.tables {
		seen[name] = true
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// --- DML ---

// Insert appends one record, assigning the auto key and applying field
// defaults, after checking primary-key and unique collisions.
func (b *Backend) Insert(_ context.Context, tbl *core.Table, rec core.Record) (int64, core.Record, error) {
	recs, err := b.load(tbl.Name)
	if err != nil {
		return 0, nil, b.opErr("insert", tbl.Name, err)
	}
	row, id, err := b.prepareRow(tbl, rec, recs)
	if err != nil {
		return 0, nil, err
	}
	if err := b.checkCollisions(tbl, row, recs, -1); err != nil {
		return 0, nil, err
	}
	b.tables[tbl.Name] = append(recs, row)
	if err := b.persist("insert", tbl.Name); err != nil {
		b.tables[tbl.Name] = recs
		return 0, nil, err
	}
	return id, row.Clone(), nil
}

// Upsert replaces the row with a matching primary key, or inserts.
func (b *Backend) Upsert(ctx context.Context, tbl *core.Table, rec core.Record) (int64, core.Record, error) {
	pkCols := tbl.PrimaryKeyColumns()
	if len(pkCols) == 0 {
		return 0, nil, b.opErr("upsert", tbl.Name, fmt.Errorf("upsert requires a primary key"))
	}

	recs, err := b.load(tbl.Name)
	if err != nil {
		return 0, nil, b.opErr("upsert", tbl.Name, err)
	}

	for i, existing := range recs {
		if pkEqual(existing, rec, pkCols) {
			merged := existing.Clone()
			for k, v := range rec {
				merged[k] = v
			}
			if err := b.checkCollisions(tbl, merged, recs, i); err != nil {
				return 0, nil, err
			}
			prev := recs[i]
			recs[i] = merged
			b.tables[tbl.Name] = recs
			if err := b.persist("upsert", tbl.Name); err != nil {
				recs[i] = prev
				return 0, nil, err
			}
			return recordID(tbl, merged), merged.Clone(), nil
		}
	}
	return b.Insert(ctx, tbl, rec)
}

// Select filters, orders, projects and limits in memory. Multi-table
// reads are rejected: the tabular engine has no join support.
func (b *Backend) Select(_ context.Context, sel *query.Select) ([]core.Record, error) {
	if len(sel.Tables) != 1 || len(sel.Joins) > 0 {
		return nil, b.opErr("select", firstTable(sel),
			fmt.Errorf("memtab supports single-table reads only"))
	}
	table := sel.Tables[0]
	if b.schema != nil {
		if _, ok := b.schema.Table(table); !ok {
			return nil, b.opErr("select", table, fmt.Errorf("unknown table %q", table))
		}
	}

	recs, err := b.load(table)
	if err != nil {
		return nil, b.opErr("select", table, err)
	}

	var out []core.Record
	for _, rec := range recs {
		ok, err := query.Match(rec, sel.Where)
		if err != nil {
			return nil, b.opErr("select", table, err)
		}
		if ok {
			out = append(out, rec.Clone())
		}
	}

	if sel.Order != nil {
		if err := query.SortRecords(out, sel.Order); err != nil {
			return nil, b.opErr("select", table, err)
		}
	}
	if sel.Limit > 0 && len(out) > sel.Limit {
		out = out[:sel.Limit]
	}
	if len(sel.Fields) > 0 {
		for i, rec := range out {
			proj := make(core.Record, len(sel.Fields))
			for _, f := range sel.Fields {
				proj[f] = rec[f]
			}
			out[i] = proj
		}
	}
	return out, nil
}

// Update applies the record to matching rows. An empty condition tree
// updates every row; that is logged before it applies.
func (b *Backend) Update(_ context.Context, tbl *core.Table, rec core.Record, where core.ConditionTree) (int64, error) {
	if where.Empty() {
		b.logger.Warn("update with empty condition tree affects all rows", "table", tbl.Name)
	}
	if err := b.checkFields(tbl, rec); err != nil {
		return 0, b.opErr("update", tbl.Name, err)
	}

	recs, err := b.load(tbl.Name)
	if err != nil {
		return 0, b.opErr("update", tbl.Name, err)
	}

	// Evaluate the whole condition tree before touching any row, so a
	// bad tree cannot leave earlier rows mutated in the run cache.
	var matched []int
	for i, existing := range recs {
		ok, err := query.Match(existing, where)
		if err != nil {
			return 0, b.opErr("update", tbl.Name, err)
		}
		if ok {
			matched = append(matched, i)
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}

	prev := make(map[int]core.Record, len(matched))
	for _, i := range matched {
		prev[i] = recs[i]
		updated := recs[i].Clone()
		for k, v := range rec {
			updated[k] = v
		}
		recs[i] = updated
	}
	b.tables[tbl.Name] = recs
	if err := b.persist("update", tbl.Name); err != nil {
		for i, r := range prev {
			recs[i] = r
		}
		return 0, err
	}
	return int64(len(matched)), nil
}

// Delete removes matching rows. An empty condition tree deletes every
// row; that is logged before it applies.
func (b *Backend) Delete(_ context.Context, tbl *core.Table, where core.ConditionTree) (int64, error) {
	if where.Empty() {
		b.logger.Warn("delete with empty condition tree affects all rows", "table", tbl.Name)
	}

	recs, err := b.load(tbl.Name)
	if err != nil {
		return 0, b.opErr("delete", tbl.Name, err)
	}

	kept := recs[:0:0]
	var count int64
	for _, existing := range recs {
		ok, err := query.Match(existing, where)
		if err != nil {
			return 0, b.opErr("delete", tbl.Name, err)
		}
		if ok {
			count++
			continue
		}
		kept = append(kept, existing)
	}
	if count > 0 {
		b.tables[tbl.Name] = kept
		if err := b.persist("delete", tbl.Name); err != nil {
			b.tables[tbl.Name] = recs
			return 0, err
		}
	}
	return count, nil
}

// --- Transactions (flush/reload semantics) ---

// Begin marks a nominal transaction open. Writes stay in memory until
// Commit.
func (b *Backend) Begin(_ context.Context) error {
	if b.inTx {
		return b.opErr("begin", "", fmt.Errorf("transaction already open"))
	}
	b.inTx = true
	return nil
}

// Commit flushes every dirty table to disk.
func (b *Backend) Commit() error {
	if !b.inTx {
		return b.opErr("commit", "", fmt.Errorf("no open transaction"))
	}
	b.inTx = false
	for name := range b.dirty {
		if err := b.flush(name); err != nil {
			return b.opErr("commit", name, err)
		}
		delete(b.dirty, name)
	}
	return nil
}

// Rollback discards in-memory edits; tables reload from disk on next
// access.
func (b *Backend) Rollback() error {
	if !b.inTx {
		return b.opErr("rollback", "", fmt.Errorf("no open transaction"))
	}
	b.inTx = false
	for name := range b.dirty {
		delete(b.tables, name)
		delete(b.dirty, name)
	}
	return nil
}

// InTransaction reports whether a nominal transaction is open.
func (b *Backend) InTransaction() bool { return b.inTx }

var errNotConnected = fmt.Errorf("connection not established")

func firstTable(sel *query.Select) string {
	if len(sel.Tables) == 0 {
		return ""
	}
	return sel.Tables[0]
}

// Ensure Backend implements the storage contract.
var _ backend.Backend = (*Backend)(nil)
