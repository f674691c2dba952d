package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSchema() *Schema {
	return &Schema{
		Source: "app",
		Meta:   SchemaMeta{Backend: "sqlite", Location: "app.db"},
		Tables: map[string]*Table{
			"users": {
				Name: "users",
				Fields: []Field{
					{Name: "id", Type: FieldInteger, PrimaryKey: true},
					{Name: "email", Type: FieldString, Unique: true},
				},
			},
			"posts": {
				Name: "posts",
				Fields: []Field{
					{Name: "id", Type: FieldInteger, PrimaryKey: true},
					{Name: "user_id", Type: FieldInteger, ForeignKey: &ForeignKey{Table: "users", Column: "id"}},
				},
			},
		},
	}
}

func TestSchemaValidate(t *testing.T) {
	require.NoError(t, validSchema().Validate())
}

func TestSchemaValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Schema)
		want   string
	}{
		{
			"missing backend",
			func(s *Schema) { s.Meta.Backend = "" },
			"backend kind is required",
		},
		{
			"empty table",
			func(s *Schema) { s.Tables["empty"] = &Table{Name: "empty"} },
			"table has no fields",
		},
		{
			"unknown field type",
			func(s *Schema) { s.Tables["users"].Fields[0].Type = "varchar2" },
			`unknown field type "varchar2"`,
		},
		{
			"dangling foreign key",
			func(s *Schema) { s.Tables["posts"].Fields[1].ForeignKey.Table = "ghosts" },
			`references undefined table "ghosts"`,
		},
		{
			"composite key names unknown field",
			func(s *Schema) { s.Tables["users"].PrimaryKey = []string{"id", "nope"} },
			`references undefined field "nope"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSchema()
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrimaryKeyColumns(t *testing.T) {
	tbl := &Table{
		Fields: []Field{
			{Name: "a", Type: FieldString, PrimaryKey: true},
			{Name: "b", Type: FieldString, PrimaryKey: true},
			{Name: "c", Type: FieldString},
		},
	}
	assert.Equal(t, []string{"a", "b"}, tbl.PrimaryKeyColumns())

	tbl.PrimaryKey = []string{"c"}
	assert.Equal(t, []string{"c"}, tbl.PrimaryKeyColumns())
}

func TestAutoKey(t *testing.T) {
	assert.True(t, (&Field{Name: "id", Type: FieldInteger, PrimaryKey: true}).AutoKey())
	assert.False(t, (&Field{Name: "id", Type: FieldString, PrimaryKey: true}).AutoKey())
	assert.False(t, (&Field{Name: "id", Type: FieldInteger}).AutoKey())
}

func TestRecordClone(t *testing.T) {
	rec := Record{"a": 1, "b": "x"}
	cl := rec.Clone()
	cl["a"] = 2
	assert.Equal(t, 1, rec["a"])
	assert.True(t, rec.Has("b"))
	assert.False(t, rec.Has("c"))
}

func TestNormalizeJoinKind(t *testing.T) {
	assert.Equal(t, JoinLeft, NormalizeJoinKind("left"))
	assert.Equal(t, JoinInner, NormalizeJoinKind("sideways"))
	assert.Equal(t, JoinInner, NormalizeJoinKind(""))
}
