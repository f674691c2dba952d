package memtab

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

const tableExt = ".json"

func (b *Backend) tablePath(name string) string {
	return filepath.Join(b.dir, name+tableExt)
}

// load returns the cached rows for a table, reading the table file on
// first access.
func (b *Backend) load(name string) ([]core.Record, error) {
	if !b.connected {
		return nil, errNotConnected
	}
	if recs, ok := b.tables[name]; ok {
		return recs, nil
	}
	data, err := os.ReadFile(b.tablePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("unknown table %q", name)
		}
		return nil, err
	}
	var recs []core.Record
	if len(data) > 0 {
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("corrupt table file %s: %w", b.tablePath(name), err)
		}
	}
	for _, rec := range recs {
		normalizeNumbers(rec)
	}
	if recs == nil {
		recs = []core.Record{}
	}
	b.tables[name] = recs
	return recs, nil
}

// persist flushes the table immediately, or marks it dirty when a
// transaction is open.
func (b *Backend) persist(op, name string) error {
	if b.inTx {
		b.dirty[name] = true
		return nil
	}
	if err := b.flush(name); err != nil {
		return b.opErr(op, name, err)
	}
	return nil
}

func (b *Backend) flush(name string) error {
	recs, ok := b.tables[name]
	if !ok {
		return nil
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.tablePath(name), data, 0o644)
}

// normalizeNumbers converts integral float64 values produced by JSON
// decoding back to int64, so ids compare equal across save/load cycles.
func normalizeNumbers(rec core.Record) {
	for k, v := range rec {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && !math.IsInf(f, 0) {
			rec[k] = int64(f)
		}
	}
}

// prepareRow clones the input record, checks fields against the schema,
// applies defaults and assigns the auto key.
func (b *Backend) prepareRow(tbl *core.Table, rec core.Record, existing []core.Record) (core.Record, int64, error) {
	if err := b.checkFields(tbl, rec); err != nil {
		return nil, 0, b.opErr("insert", tbl.Name, err)
	}
	row := rec.Clone()
	var id int64
	for i := range tbl.Fields {
		f := &tbl.Fields[i]
		if _, ok := row[f.Name]; ok {
			continue
		}
		switch {
		case f.AutoKey():
			id = nextKey(existing, f.Name)
			row[f.Name] = id
		case f.Default != nil:
			row[f.Name] = f.Default
		}
	}
	if id == 0 {
		id = recordID(tbl, row)
	}
	return row, id, nil
}

// checkFields rejects records carrying fields the table does not define.
func (b *Backend) checkFields(tbl *core.Table, rec core.Record) error {
	for name := range rec {
		if _, ok := tbl.Field(name); !ok {
			return fmt.Errorf("unknown field %q on table %q", name, tbl.Name)
		}
	}
	return nil
}

// checkCollisions enforces primary-key and unique-field constraints
// against the current rows. skip is the index of the row being replaced,
// or -1 for inserts. Foreign keys are not enforced by this engine.
func (b *Backend) checkCollisions(tbl *core.Table, row core.Record, recs []core.Record, skip int) error {
	pkCols := tbl.PrimaryKeyColumns()
	for i, existing := range recs {
		if i == skip {
			continue
		}
		if len(pkCols) > 0 && pkEqual(existing, row, pkCols) {
			return &core.ConstraintError{
				Kind:    core.ConstraintUnique,
				Table:   tbl.Name,
				Backend: Kind,
				Err:     fmt.Errorf("duplicate primary key"),
			}
		}
		for j := range tbl.Fields {
			f := &tbl.Fields[j]
			if !f.Unique {
				continue
			}
			v, ok := row[f.Name]
			if !ok || v == nil {
				continue
			}
			if looseEqual(existing[f.Name], v) {
				return &core.ConstraintError{
					Kind:    core.ConstraintUnique,
					Table:   tbl.Name,
					Backend: Kind,
					Err:     fmt.Errorf("duplicate value for unique field %q", f.Name),
				}
			}
		}
	}
	return nil
}

// nextKey returns max(column)+1 over the stored rows, starting at 1.
func nextKey(recs []core.Record, column string) int64 {
	var max int64
	for _, rec := range recs {
		if n, ok := asInt64(rec[column]); ok && n > max {
			max = n
		}
	}
	return max + 1
}

// recordID extracts the integer id from a row when the table has a
// single integer primary key, 0 otherwise.
func recordID(tbl *core.Table, rec core.Record) int64 {
	cols := tbl.PrimaryKeyColumns()
	if len(cols) != 1 {
		return 0
	}
	f, ok := tbl.Field(cols[0])
	if !ok || f.Type != core.FieldInteger {
		return 0
	}
	n, _ := asInt64(rec[cols[0]])
	return n
}

func pkEqual(a, b core.Record, cols []string) bool {
	for _, col := range cols {
		av, aok := a[col]
		bv, bok := b[col]
		if !aok || !bok || !looseEqual(av, bv) {
			return false
		}
	}
	return true
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

// looseEqual compares values the way condition matching does: numbers
// compare by value across integer and float representations.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
