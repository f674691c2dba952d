package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/dialect"
	"github.com/leapstack-labs/leapbase/pkg/query"
)

func testTypes() map[core.FieldType]string {
	return map[core.FieldType]string{
		core.FieldString:  "TEXT",
		core.FieldInteger: "BIGINT",
		core.FieldFloat:   "DOUBLE",
		core.FieldBoolean: "BOOLEAN",
	}
}

func questionDialect() *dialect.Dialect {
	return &dialect.Dialect{
		Name:            "mock",
		QuoteChar:       `"`,
		Placeholders:    dialect.PlaceholderQuestion,
		Types:           testTypes(),
		AutoIncrementPK: "INTEGER PRIMARY KEY AUTOINCREMENT",
		SupportsUpsert:  true,
	}
}

func dollarDialect() *dialect.Dialect {
	return &dialect.Dialect{
		Name:               "mock-dollar",
		QuoteChar:          `"`,
		Placeholders:       dialect.PlaceholderDollar,
		Types:              testTypes(),
		AutoIncrementPK:    "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY",
		SupportsReturning:  true,
		SupportsUpsert:     true,
		SupportsDropColumn: true,
	}
}

func seqDialect() *dialect.Dialect {
	d := questionDialect()
	d.Name = "mock-seq"
	d.AutoIncrementPK = "BIGINT DEFAULT nextval('{seq}') PRIMARY KEY"
	d.NeedsSequence = true
	return d
}

func usersTable() *core.Table {
	return &core.Table{
		Name: "users",
		Fields: []core.Field{
			{Name: "id", Type: core.FieldInteger, PrimaryKey: true},
			{Name: "email", Type: core.FieldString, Required: true, Unique: true},
			{Name: "name", Type: core.FieldString},
			{Name: "active", Type: core.FieldBoolean, Default: true},
		},
	}
}

func usersSchema() *core.Schema {
	return &core.Schema{
		Source: "app",
		Meta:   core.SchemaMeta{Backend: "mock"},
		Tables: map[string]*core.Table{"users": usersTable()},
	}
}

// newMockBackend wires a BaseSQLBackend to a sqlmock pool with exact
// statement matching, so tests assert the generated SQL text verbatim.
func newMockBackend(t *testing.T, d *dialect.Dialect) (*BaseSQLBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	b := &BaseSQLBackend{
		Logger:   slog.New(slog.DiscardHandler),
		KindName: "mock",
		D:        d,
	}
	b.Attach(db, core.BackendConfig{Kind: "mock"}, usersSchema())
	return b, mock
}

func TestBuildCreateTableAutoPK(t *testing.T) {
	b := &BaseSQLBackend{D: questionDialect()}

	ddl, seq, err := b.buildCreateTable(usersTable())
	require.NoError(t, err)
	assert.Empty(t, seq)
	assert.Equal(t,
		`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, `+
			`"email" TEXT NOT NULL UNIQUE, "name" TEXT, "active" BOOLEAN DEFAULT TRUE)`,
		ddl)
}

func TestBuildCreateTableCompositePKAndFK(t *testing.T) {
	b := &BaseSQLBackend{D: questionDialect()}
	tbl := &core.Table{
		Name:       "memberships",
		PrimaryKey: []string{"user_id", "team_id"},
		Fields: []core.Field{
			{Name: "user_id", Type: core.FieldInteger,
				ForeignKey: &core.ForeignKey{Table: "users", Column: "id", OnDelete: "cascade"}},
			{Name: "team_id", Type: core.FieldInteger},
			{Name: "role", Type: core.FieldString},
		},
	}

	ddl, seq, err := b.buildCreateTable(tbl)
	require.NoError(t, err)
	assert.Empty(t, seq)
	assert.Equal(t,
		`CREATE TABLE "memberships" ("user_id" BIGINT, "team_id" BIGINT, "role" TEXT, `+
			`PRIMARY KEY ("user_id", "team_id"), `+
			`FOREIGN KEY ("user_id") REFERENCES "users" ("id") ON DELETE CASCADE)`,
		ddl)
}

func TestBuildCreateTableSequence(t *testing.T) {
	b := &BaseSQLBackend{D: seqDialect()}
	tbl := &core.Table{
		Name: "items",
		Fields: []core.Field{
			{Name: "id", Type: core.FieldInteger, PrimaryKey: true},
			{Name: "label", Type: core.FieldString},
		},
	}

	ddl, seq, err := b.buildCreateTable(tbl)
	require.NoError(t, err)
	assert.Equal(t, "items_id_seq", seq)
	assert.Equal(t,
		`CREATE TABLE "items" ("id" BIGINT DEFAULT nextval('items_id_seq') PRIMARY KEY, "label" TEXT)`,
		ddl)
}

func TestBuildCreateTableUnknownType(t *testing.T) {
	b := &BaseSQLBackend{D: questionDialect()}
	tbl := &core.Table{
		Name:   "blobs",
		Fields: []core.Field{{Name: "data", Type: core.FieldBinary}},
	}

	_, _, err := b.buildCreateTable(tbl)
	require.Error(t, err)
}

func TestCreateTableWithIndexes(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())
	tbl := usersTable()
	tbl.Indexes = []core.Index{
		{Columns: []string{"email"}, Unique: true},
		{Name: "users_by_name", Columns: []string{"name", "active"}},
	}

	mock.ExpectExec(`CREATE TABLE "users" ("id" INTEGER PRIMARY KEY AUTOINCREMENT, ` +
		`"email" TEXT NOT NULL UNIQUE, "name" TEXT, "active" BOOLEAN DEFAULT TRUE)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX "idx_users_email" ON "users" ("email")`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX "users_by_name" ON "users" ("name", "active")`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, b.CreateTable(context.Background(), tbl))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDefaultLiteral(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    string
		wantErr bool
	}{
		{name: "string escaped", value: "O'Brien", want: "'O''Brien'"},
		{name: "bool true", value: true, want: "TRUE"},
		{name: "bool false", value: false, want: "FALSE"},
		{name: "int", value: 42, want: "42"},
		{name: "float", value: 1.5, want: "1.5"},
		{name: "unsupported", value: []int{1}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := defaultLiteral(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDropTable(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())

	mock.ExpectExec(`DROP TABLE IF EXISTS "users"`).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, b.DropTable(context.Background(), "users"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDropColumn(t *testing.T) {
	b, mock := newMockBackend(t, dollarDialect())

	mock.ExpectExec(`ALTER TABLE "users" DROP COLUMN "name"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, b.DropColumn(context.Background(), usersTable(), "name"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDropColumnUnsupported(t *testing.T) {
	b, _ := newMockBackend(t, questionDialect())

	err := b.DropColumn(context.Background(), usersTable(), "name")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support DROP COLUMN")
}

func TestInsert(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())

	mock.ExpectExec(`INSERT INTO "users" ("email", "name") VALUES (?, ?)`).
		WithArgs("ada@example.com", "Ada").
		WillReturnResult(sqlmock.NewResult(7, 1))

	id, row, err := b.Insert(context.Background(), usersTable(),
		core.Record{"email": "ada@example.com", "name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.Nil(t, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReturning(t *testing.T) {
	b, mock := newMockBackend(t, dollarDialect())

	mock.ExpectQuery(`INSERT INTO "users" ("email") VALUES ($1) RETURNING *`).
		WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "active"}).
			AddRow(int64(3), "ada@example.com", true))

	id, row, err := b.Insert(context.Background(), usersTable(),
		core.Record{"email": "ada@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	require.NotNil(t, row)
	assert.Equal(t, "ada@example.com", row["email"])
	assert.Equal(t, true, row["active"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertUnknownField(t *testing.T) {
	b, _ := newMockBackend(t, questionDialect())

	_, _, err := b.Insert(context.Background(), usersTable(),
		core.Record{"email": "a@b.c", "nickname": "x"})
	require.Error(t, err)

	var opErr *core.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "insert", opErr.Op)
	assert.Contains(t, err.Error(), "nickname")
}

func TestUpsert(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())

	mock.ExpectExec(`INSERT INTO "users" ("id", "email") VALUES (?, ?) `+
		`ON CONFLICT ("id") DO UPDATE SET "email" = excluded."email"`).
		WithArgs(int64(1), "new@example.com").
		WillReturnResult(sqlmock.NewResult(1, 1))

	id, row, err := b.Upsert(context.Background(), usersTable(),
		core.Record{"id": int64(1), "email": "new@example.com"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	assert.Nil(t, row)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertKeyOnly(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())

	mock.ExpectExec(`INSERT INTO "users" ("id") VALUES (?) ON CONFLICT ("id") DO NOTHING`).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(9, 1))

	_, _, err := b.Upsert(context.Background(), usersTable(), core.Record{"id": int64(9)})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertUnsupportedDialect(t *testing.T) {
	d := questionDialect()
	d.SupportsUpsert = false
	b, _ := newMockBackend(t, d)

	_, _, err := b.Upsert(context.Background(), usersTable(), core.Record{"id": int64(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no upsert syntax")
}

func TestUpsertRequiresPrimaryKey(t *testing.T) {
	b, _ := newMockBackend(t, questionDialect())
	tbl := &core.Table{
		Name:   "notes",
		Fields: []core.Field{{Name: "body", Type: core.FieldString}},
	}

	_, _, err := b.Upsert(context.Background(), tbl, core.Record{"body": "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a primary key")
}

func TestSelect(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())

	mock.ExpectQuery(`SELECT "email" FROM "users" WHERE "active" = ? ORDER BY "email" LIMIT 2`).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).
			AddRow([]byte("a@example.com")).
			AddRow("b@example.com"))

	recs, err := b.Select(context.Background(), &query.Select{
		Tables: []string{"users"},
		Fields: []string{"email"},
		Where:  core.ConditionTree{"active": true},
		Order:  "email",
		Limit:  2,
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// Byte-slice columns come back as strings.
	assert.Equal(t, "a@example.com", recs[0]["email"])
	assert.Equal(t, "b@example.com", recs[1]["email"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectUnknownTable(t *testing.T) {
	b, _ := newMockBackend(t, questionDialect())

	_, err := b.Select(context.Background(), &query.Select{Tables: []string{"ghosts"}})
	require.Error(t, err)

	var opErr *core.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "select", opErr.Op)
	assert.Equal(t, "ghosts", opErr.Table)
}

func TestUpdatePlaceholderContinuity(t *testing.T) {
	b, mock := newMockBackend(t, dollarDialect())

	mock.ExpectExec(`UPDATE "users" SET "name" = $1 WHERE "id" = $2`).
		WithArgs("Grace", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := b.Update(context.Background(), usersTable(),
		core.Record{"name": "Grace"}, core.ConditionTree{"id": int64(5)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEmptyConditionTouchesAllRows(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())

	mock.ExpectExec(`UPDATE "users" SET "active" = ?`).
		WithArgs(false).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := b.Update(context.Background(), usersTable(),
		core.Record{"active": false}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())

	mock.ExpectExec(`DELETE FROM "users" WHERE "id" IN (?, ?)`).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := b.Delete(context.Background(), usersTable(),
		core.ConditionTree{"id": []any{int64(1), int64(2)}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteEmptyConditionTouchesAllRows(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())

	mock.ExpectExec(`DELETE FROM "users"`).WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := b.Delete(context.Background(), usersTable(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmptyConditionWithoutLogger(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	// A backend built without a logger must still take the warn path.
	b := &BaseSQLBackend{KindName: "mock", D: questionDialect()}
	b.Attach(db, core.BackendConfig{Kind: "mock"}, usersSchema())

	mock.ExpectExec(`UPDATE "users" SET "active" = ?`).
		WithArgs(false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "users"`).WillReturnResult(sqlmock.NewResult(0, 1))

	_, err = b.Update(context.Background(), usersTable(), core.Record{"active": false}, nil)
	require.NoError(t, err)

	_, err = b.Delete(context.Background(), usersTable(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionLifecycle(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "users"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	assert.False(t, b.InTransaction())
	require.NoError(t, b.Begin(ctx))
	assert.True(t, b.InTransaction())

	err := b.Begin(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction already open")

	// Statements issued while a transaction is open run inside it.
	_, err = b.Delete(ctx, usersTable(), nil)
	require.NoError(t, err)

	require.NoError(t, b.Commit())
	assert.False(t, b.InTransaction())

	err = b.Commit()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no open transaction")

	err = b.Rollback()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no open transaction")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRollback(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())

	mock.ExpectBegin()
	mock.ExpectRollback()

	require.NoError(t, b.Begin(context.Background()))
	require.NoError(t, b.Rollback())
	assert.False(t, b.InTransaction())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseRollsBackOpenTransaction(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectClose()

	require.NoError(t, b.Begin(context.Background()))
	require.NoError(t, b.Close())
	assert.False(t, b.InTransaction())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassifyWrapsConstraintErrors(t *testing.T) {
	b, mock := newMockBackend(t, questionDialect())
	b.Classify = func(err error) error {
		return &core.ConstraintError{Kind: core.ConstraintUnique, Err: err}
	}

	driverErr := errors.New("UNIQUE violation")
	mock.ExpectExec(`INSERT INTO "users" ("email") VALUES (?)`).
		WithArgs("dup@example.com").
		WillReturnError(driverErr)

	_, _, err := b.Insert(context.Background(), usersTable(),
		core.Record{"email": "dup@example.com"})
	require.Error(t, err)

	var ce *core.ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, core.ConstraintUnique, ce.Kind)
	assert.Equal(t, "users", ce.Table)
	assert.Equal(t, "mock", ce.Backend)
	assert.ErrorIs(t, err, driverErr)
}

func TestExecAndQueryNotConnected(t *testing.T) {
	b := &BaseSQLBackend{Logger: slog.New(slog.DiscardHandler), KindName: "mock", D: questionDialect()}

	err := b.Exec(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection not established")

	_, err = b.Query(context.Background(), "SELECT 1")
	require.Error(t, err)

	err = b.Begin(context.Background())
	require.Error(t, err)
}

func TestRecordColumnsOrdering(t *testing.T) {
	// Columns follow table declaration order regardless of map iteration.
	tbl := usersTable()
	for i := 0; i < 10; i++ {
		cols, args, err := recordColumns(tbl, core.Record{
			"active": true, "email": "a@b.c", "name": "Ada",
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"email", "name", "active"}, cols)
		assert.Equal(t, []any{"a@b.c", "Ada", true}, args)
	}

	_, _, err := recordColumns(tbl, core.Record{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no fields")
}

func TestRowID(t *testing.T) {
	b := &BaseSQLBackend{D: questionDialect()}
	tbl := usersTable()

	assert.Equal(t, int64(4), b.rowID(tbl, core.Record{"id": int64(4)}))
	assert.Equal(t, int64(4), b.rowID(tbl, core.Record{"id": float64(4)}))
	assert.Equal(t, int64(0), b.rowID(tbl, core.Record{"id": "four"}))

	composite := &core.Table{
		Name:       "m",
		PrimaryKey: []string{"a", "b"},
		Fields: []core.Field{
			{Name: "a", Type: core.FieldInteger},
			{Name: "b", Type: core.FieldInteger},
		},
	}
	assert.Equal(t, int64(0), b.rowID(composite, core.Record{"a": int64(1), "b": int64(2)}))
}

func TestOpErrorMessage(t *testing.T) {
	b := &BaseSQLBackend{KindName: "mock", D: questionDialect()}

	err := b.opErr("insert", "users", fmt.Errorf("boom"))
	assert.EqualError(t, err, "insert mock on users: boom")
	assert.NoError(t, b.opErr("insert", "users", nil))
}
