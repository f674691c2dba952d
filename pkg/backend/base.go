package backend

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/dialect"
	"github.com/leapstack-labs/leapbase/pkg/query"
)

// executor abstracts *sql.DB and *sql.Tx so every operation runs inside
// the open transaction when there is one.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// BaseSQLBackend provides the shared database/sql implementation of the
// Backend contract. Concrete SQL backends embed it and supply connection
// setup, table introspection, and error classification.
type BaseSQLBackend struct {
	DB     *sql.DB
	Cfg    core.BackendConfig
	Schema *core.Schema
	Logger *slog.Logger

	// KindName and D are set by the embedding backend's constructor.
	KindName string
	D        *dialect.Dialect

	// Classify maps driver errors onto the core error taxonomy
	// (ConstraintError for row-level violations). Optional.
	Classify func(err error) error

	tx *sql.Tx
}

// Kind returns the backend kind.
func (b *BaseSQLBackend) Kind() string { return b.KindName }

// Dialect returns the backend's SQL dialect.
func (b *BaseSQLBackend) Dialect() *dialect.Dialect { return b.D }

// Attach stores the live connection, config and schema after a successful
// connect.
func (b *BaseSQLBackend) Attach(db *sql.DB, cfg core.BackendConfig, schema *core.Schema) {
	b.DB = db
	b.Cfg = cfg
	b.Schema = schema
}

// Close closes the database connection.
func (b *BaseSQLBackend) Close() error {
	if b.tx != nil {
		_ = b.tx.Rollback()
		b.tx = nil
	}
	if b.DB != nil {
		if b.Logger != nil {
			b.Logger.Debug("closing connection", "backend", b.KindName)
		}
		err := b.DB.Close()
		b.DB = nil
		return err
	}
	return nil
}

// Translator returns a query translator bound to this backend's dialect
// and schema.
func (b *BaseSQLBackend) Translator() *query.Translator {
	return query.NewTranslator(b.D, b.Schema, b.Logger)
}

// exec returns the active executor: the open transaction, or the pool.
func (b *BaseSQLBackend) exec() executor {
	if b.tx != nil {
		return b.tx
	}
	return b.DB
}

// opErr wraps a driver error in the taxonomy: constraint violations stay
// typed, everything else becomes an OpError carrying operation and backend.
func (b *BaseSQLBackend) opErr(op, table string, err error) error {
	if err == nil {
		return nil
	}
	if b.Classify != nil {
		if classified := b.Classify(err); classified != nil {
			if ce, ok := classified.(*core.ConstraintError); ok {
				ce.Table = table
				ce.Backend = b.KindName
				return ce
			}
			err = classified
		}
	}
	return &core.OpError{Op: op, Backend: b.KindName, Table: table, Err: err}
}

// Exec executes a raw SQL statement that doesn't return rows, inside the
// open transaction when there is one.
func (b *BaseSQLBackend) Exec(ctx context.Context, stmt string, args ...any) error {
	if b.DB == nil {
		return b.opErr("exec", "", errNotConnected)
	}
	if _, err := b.exec().ExecContext(ctx, stmt, args...); err != nil {
		return b.opErr("exec", "", err)
	}
	return nil
}

// Query executes a raw SQL statement and returns normalized records.
func (b *BaseSQLBackend) Query(ctx context.Context, stmt string, args ...any) ([]core.Record, error) {
	if b.DB == nil {
		return nil, b.opErr("query", "", errNotConnected)
	}
	rows, err := b.exec().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, b.opErr("query", "", err)
	}
	defer func() { _ = rows.Close() }()
	recs, err := ScanRecords(rows)
	if err != nil {
		return nil, b.opErr("query", "", err)
	}
	return recs, nil
}

// --- Transaction control ---

// Begin opens a transaction. Every subsequent operation runs inside it
// until Commit or Rollback.
func (b *BaseSQLBackend) Begin(ctx context.Context) error {
	if b.DB == nil {
		return b.opErr("begin", "", errNotConnected)
	}
	if b.tx != nil {
		return b.opErr("begin", "", fmt.Errorf("transaction already open"))
	}
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return b.opErr("begin", "", err)
	}
	b.tx = tx
	return nil
}

// Commit commits the open transaction.
func (b *BaseSQLBackend) Commit() error {
	if b.tx == nil {
		return b.opErr("commit", "", fmt.Errorf("no open transaction"))
	}
	err := b.tx.Commit()
	b.tx = nil
	if err != nil {
		return b.opErr("commit", "", err)
	}
	return nil
}

// Rollback discards the open transaction.
func (b *BaseSQLBackend) Rollback() error {
	if b.tx == nil {
		return b.opErr("rollback", "", fmt.Errorf("no open transaction"))
	}
	err := b.tx.Rollback()
	b.tx = nil
	if err != nil {
		return b.opErr("rollback", "", err)
	}
	return nil
}

// InTransaction reports whether a transaction is open.
func (b *BaseSQLBackend) InTransaction() bool { return b.tx != nil }

// --- DDL ---

// CreateTable creates the table with embedded composite-PK and FK
// constraints, then creates declared indexes. Sequence-backed dialects
// get their sequence created first.
func (b *BaseSQLBackend) CreateTable(ctx context.Context, tbl *core.Table) error {
	ddl, seq, err := b.buildCreateTable(tbl)
	if err != nil {
		return b.opErr("create_table", tbl.Name, err)
	}
	if seq != "" {
		stmt := "CREATE SEQUENCE IF NOT EXISTS " + b.D.QuoteIdent(seq)
		if _, err := b.exec().ExecContext(ctx, stmt); err != nil {
			return b.opErr("create_table", tbl.Name, err)
		}
	}
	if _, err := b.exec().ExecContext(ctx, ddl); err != nil {
		return b.opErr("create_table", tbl.Name, err)
	}
	return b.CreateIndexes(ctx, tbl.Name, tbl.Indexes)
}

// CreateIndexes creates secondary indexes on an existing table.
func (b *BaseSQLBackend) CreateIndexes(ctx context.Context, table string, idxs []core.Index) error {
	for _, idx := range idxs {
		if _, err := b.exec().ExecContext(ctx, b.buildCreateIndex(table, idx)); err != nil {
			return b.opErr("create_index", table, err)
		}
	}
	return nil
}

// buildCreateTable renders CREATE TABLE DDL for the dialect, returning
// the sequence name to create first when the dialect needs one.
func (b *BaseSQLBackend) buildCreateTable(tbl *core.Table) (string, string, error) {
	pkCols := tbl.PrimaryKeyColumns()
	inlineAutoPK := len(pkCols) == 1 && len(tbl.PrimaryKey) == 0 && b.autoKeyField(tbl, pkCols[0])

	seq := ""
	if inlineAutoPK && b.D.NeedsSequence {
		seq = fmt.Sprintf("%s_%s_seq", tbl.Name, pkCols[0])
	}

	var defs []string
	for i := range tbl.Fields {
		f := &tbl.Fields[i]
		def, err := b.buildColumnDef(f, inlineAutoPK && f.Name == pkCols[0], seq)
		if err != nil {
			return "", "", err
		}
		defs = append(defs, def)
	}

	if len(pkCols) > 0 && !inlineAutoPK {
		quoted := make([]string, len(pkCols))
		for i, c := range pkCols {
			quoted[i] = b.D.QuoteIdent(c)
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	for i := range tbl.Fields {
		f := &tbl.Fields[i]
		if f.ForeignKey == nil {
			continue
		}
		fk := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
			b.D.QuoteIdent(f.Name),
			b.D.QuoteIdent(f.ForeignKey.Table),
			b.D.QuoteIdent(f.ForeignKey.Column))
		if f.ForeignKey.OnDelete != "" {
			fk += " ON DELETE " + strings.ToUpper(f.ForeignKey.OnDelete)
		}
		defs = append(defs, fk)
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", b.D.QuoteIdent(tbl.Name), strings.Join(defs, ", "))
	return ddl, seq, nil
}

// buildColumnDef renders one column definition.
func (b *BaseSQLBackend) buildColumnDef(f *core.Field, asAutoPK bool, seq string) (string, error) {
	if asAutoPK {
		clause := b.D.AutoIncrementPK
		if seq != "" {
			clause = strings.ReplaceAll(clause, "{seq}", seq)
		}
		return fmt.Sprintf("%s %s", b.D.QuoteIdent(f.Name), clause), nil
	}
	native, err := b.D.MapType(f.Type)
	if err != nil {
		return "", err
	}
	def := fmt.Sprintf("%s %s", b.D.QuoteIdent(f.Name), native)
	if f.Required {
		def += " NOT NULL"
	}
	if f.Unique {
		def += " UNIQUE"
	}
	if f.Default != nil {
		lit, err := defaultLiteral(f.Default)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", f.Name, err)
		}
		def += " DEFAULT " + lit
	}
	return def, nil
}

// autoKeyField reports whether the named field is an auto-assigned key.
func (b *BaseSQLBackend) autoKeyField(tbl *core.Table, name string) bool {
	f, ok := tbl.Field(name)
	return ok && f.AutoKey()
}

// buildCreateIndex renders CREATE INDEX DDL.
func (b *BaseSQLBackend) buildCreateIndex(table string, idx core.Index) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	name := idx.Name
	if name == "" {
		name = fmt.Sprintf("idx_%s_%s", table, strings.Join(idx.Columns, "_"))
	}
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = b.D.QuoteIdent(c)
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, b.D.QuoteIdent(name), b.D.QuoteIdent(table), strings.Join(cols, ", "))
}

// defaultLiteral renders a DDL DEFAULT literal. Values come from schema
// files, never request payloads, but strings are still escaped.
func defaultLiteral(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", nil
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int, int32, int64, uint64, float32, float64:
		return fmt.Sprintf("%v", x), nil
	default:
		return "", fmt.Errorf("unsupported default value type %T", v)
	}
}

// DropTable removes a table.
func (b *BaseSQLBackend) DropTable(ctx context.Context, name string) error {
	_, err := b.exec().ExecContext(ctx, "DROP TABLE IF EXISTS "+b.D.QuoteIdent(name))
	return b.opErr("drop_table", name, err)
}

// DropColumn removes a column with native ALTER TABLE. Engines without
// native support override this with an emulation.
func (b *BaseSQLBackend) DropColumn(ctx context.Context, tbl *core.Table, column string) error {
	if !b.D.SupportsDropColumn {
		return b.opErr("drop_column", tbl.Name, fmt.Errorf("dialect %s does not support DROP COLUMN", b.D.Name))
	}
	stmt := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s",
		b.D.QuoteIdent(tbl.Name), b.D.QuoteIdent(column))
	_, err := b.exec().ExecContext(ctx, stmt)
	return b.opErr("drop_column", tbl.Name, err)
}

// --- DML ---

// recordColumns returns the record's columns in table-field order, each
// validated against the table definition.
func recordColumns(tbl *core.Table, rec core.Record) ([]string, []any, error) {
	var cols []string
	var args []any
	seen := 0
	for i := range tbl.Fields {
		name := tbl.Fields[i].Name
		if v, ok := rec[name]; ok {
			cols = append(cols, name)
			args = append(args, v)
			seen++
		}
	}
	if seen != len(rec) {
		for k := range rec {
			if _, ok := tbl.Field(k); !ok {
				return nil, nil, fmt.Errorf("unknown field %q on table %q", k, tbl.Name)
			}
		}
	}
	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("record has no fields")
	}
	return cols, args, nil
}

// buildInsert renders the INSERT statement shared by Insert and Upsert.
func (b *BaseSQLBackend) buildInsert(tbl *core.Table, cols []string) string {
	quoted := make([]string, len(cols))
	phs := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = b.D.QuoteIdent(c)
		phs[i] = b.D.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.D.QuoteIdent(tbl.Name), strings.Join(quoted, ", "), strings.Join(phs, ", "))
}

// Insert writes one record. Dialects with RETURNING yield the full row;
// the others report the driver's last-insert id.
func (b *BaseSQLBackend) Insert(ctx context.Context, tbl *core.Table, rec core.Record) (int64, core.Record, error) {
	cols, args, err := recordColumns(tbl, rec)
	if err != nil {
		return 0, nil, b.opErr("insert", tbl.Name, err)
	}
	stmt := b.buildInsert(tbl, cols)

	if b.D.SupportsReturning {
		row, err := b.queryOneRow(ctx, stmt+" RETURNING *", args)
		if err != nil {
			return 0, nil, b.opErr("insert", tbl.Name, err)
		}
		return b.rowID(tbl, row), row, nil
	}

	res, err := b.exec().ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, nil, b.opErr("insert", tbl.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		id = 0
	}
	return id, nil, nil
}

// Upsert inserts or updates on primary-key conflict using the dialect's
// native conflict syntax.
func (b *BaseSQLBackend) Upsert(ctx context.Context, tbl *core.Table, rec core.Record) (int64, core.Record, error) {
	if !b.D.SupportsUpsert {
		return 0, nil, b.opErr("upsert", tbl.Name, fmt.Errorf("dialect %s has no upsert syntax", b.D.Name))
	}
	pkCols := tbl.PrimaryKeyColumns()
	if len(pkCols) == 0 {
		return 0, nil, b.opErr("upsert", tbl.Name, fmt.Errorf("upsert requires a primary key"))
	}

	cols, args, err := recordColumns(tbl, rec)
	if err != nil {
		return 0, nil, b.opErr("upsert", tbl.Name, err)
	}

	stmt := b.buildInsert(tbl, cols) + " ON CONFLICT (" + b.quoteJoin(pkCols) + ")"

	pkSet := make(map[string]bool, len(pkCols))
	for _, c := range pkCols {
		pkSet[c] = true
	}
	var sets []string
	for _, c := range cols {
		if pkSet[c] {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", b.D.QuoteIdent(c), b.D.QuoteIdent(c)))
	}
	if len(sets) == 0 {
		stmt += " DO NOTHING"
	} else {
		stmt += " DO UPDATE SET " + strings.Join(sets, ", ")
	}

	if b.D.SupportsReturning {
		row, err := b.queryOneRow(ctx, stmt+" RETURNING *", args)
		if err != nil {
			return 0, nil, b.opErr("upsert", tbl.Name, err)
		}
		return b.rowID(tbl, row), row, nil
	}

	res, err := b.exec().ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, nil, b.opErr("upsert", tbl.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		id = 0
	}
	return id, nil, nil
}

// Select compiles and executes a declarative read.
func (b *BaseSQLBackend) Select(ctx context.Context, sel *query.Select) ([]core.Record, error) {
	stmt, err := b.Translator().BuildSelect(sel)
	if err != nil {
		return nil, b.opErr("select", firstTable(sel), err)
	}
	rows, err := b.exec().QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, b.opErr("select", firstTable(sel), err)
	}
	defer func() { _ = rows.Close() }()
	recs, err := ScanRecords(rows)
	if err != nil {
		return nil, b.opErr("select", firstTable(sel), err)
	}
	return recs, nil
}

// Update applies the record to matching rows. An empty condition tree
// updates every row; that is logged before it applies.
func (b *BaseSQLBackend) Update(ctx context.Context, tbl *core.Table, rec core.Record, where core.ConditionTree) (int64, error) {
	cols, args, err := recordColumns(tbl, rec)
	if err != nil {
		return 0, b.opErr("update", tbl.Name, err)
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = %s", b.D.QuoteIdent(c), b.D.Placeholder(i+1))
	}
	stmt := fmt.Sprintf("UPDATE %s SET %s", b.D.QuoteIdent(tbl.Name), strings.Join(sets, ", "))

	if where.Empty() {
		if b.Logger != nil {
			b.Logger.Warn("update with empty condition tree affects all rows", "table", tbl.Name)
		}
	} else {
		w, err := b.Translator().BuildWhereFrom(tbl.Name, where, len(args)+1)
		if err != nil {
			return 0, b.opErr("update", tbl.Name, err)
		}
		stmt += " WHERE " + w.SQL
		args = append(args, w.Args...)
	}

	res, err := b.exec().ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, b.opErr("update", tbl.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, b.opErr("update", tbl.Name, err)
	}
	return n, nil
}

// Delete removes matching rows. An empty condition tree deletes every
// row; that is logged before it applies.
func (b *BaseSQLBackend) Delete(ctx context.Context, tbl *core.Table, where core.ConditionTree) (int64, error) {
	stmt := "DELETE FROM " + b.D.QuoteIdent(tbl.Name)
	var args []any

	if where.Empty() {
		if b.Logger != nil {
			b.Logger.Warn("delete with empty condition tree affects all rows", "table", tbl.Name)
		}
	} else {
		w, err := b.Translator().BuildWhere(tbl.Name, where)
		if err != nil {
			return 0, b.opErr("delete", tbl.Name, err)
		}
		stmt += " WHERE " + w.SQL
		args = w.Args
	}

	res, err := b.exec().ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, b.opErr("delete", tbl.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, b.opErr("delete", tbl.Name, err)
	}
	return n, nil
}

// --- Helpers ---

var errNotConnected = fmt.Errorf("connection not established")

// quoteJoin quotes and comma-joins identifiers.
func (b *BaseSQLBackend) quoteJoin(idents []string) string {
	quoted := make([]string, len(idents))
	for i, id := range idents {
		quoted[i] = b.D.QuoteIdent(id)
	}
	return strings.Join(quoted, ", ")
}

// queryOneRow runs a statement expected to return exactly one row.
func (b *BaseSQLBackend) queryOneRow(ctx context.Context, stmt string, args []any) (core.Record, error) {
	rows, err := b.exec().QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	recs, err := ScanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("statement returned no rows")
	}
	return recs[0], nil
}

// rowID extracts the integer primary key from a returned row, when the
// table has a single-column integer key.
func (b *BaseSQLBackend) rowID(tbl *core.Table, row core.Record) int64 {
	pk := tbl.PrimaryKeyColumns()
	if len(pk) != 1 {
		return 0
	}
	switch v := row[pk[0]].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// firstTable names the primary table of a select for error reporting.
func firstTable(sel *query.Select) string {
	if len(sel.Tables) == 0 {
		return ""
	}
	return sel.Tables[0]
}

// ScanRecords normalizes sql.Rows into field-name-keyed records. Byte
// slices become strings; drivers report TEXT that way and records travel
// through YAML and Starlark as strings.
func ScanRecords(rows *sql.Rows) ([]core.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var recs []core.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		rec := make(core.Record, len(cols))
		for i, col := range cols {
			v := values[i]
			if bs, ok := v.([]byte); ok {
				v = string(bs)
			}
			rec[col] = v
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return recs, nil
}
