package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statcan/internal/table"
)

var schema = table.Schema{
	{Name: "product_id", Type: table.String},
	{Name: "vector_id", Type: table.Int64},
	{Name: "value", Type: table.Float64},
}

func build(t *testing.T, rows [][]any) *table.Table {
	t.Helper()
	tbl, err := table.New(schema, rows)
	require.NoError(t, err)
	return tbl
}

func TestCheck_Passes(t *testing.T) {
	tbl := build(t, [][]any{
		{"a", int64(1), 1.0},
		{"b", int64(2), nil},
		{"c", int64(2), 3.0},
	})
	err := Check(tbl, Rules{
		Columns:     map[string]table.Type{"product_id": table.String, "value": table.Float64},
		NotNull:     []string{"product_id", "vector_id"},
		Unique:      []string{"product_id"},
		MinRows:     3,
		MinDistinct: map[string]int{"vector_id": 2},
	})
	require.NoError(t, err)
}

func TestCheck_CollectsEveryViolation(t *testing.T) {
	tbl := build(t, [][]any{
		{"a", nil, 1.0},
		{"a", int64(1), 2.0},
	})
	err := Check(tbl, Rules{
		Columns:     map[string]table.Type{"product_id": table.Int64, "title": table.String},
		NotNull:     []string{"vector_id"},
		Unique:      []string{"product_id"},
		MinRows:     100,
		MinDistinct: map[string]int{"vector_id": 5},
	})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Violations, 6)

	msg := err.Error()
	assert.Contains(t, msg, `column "product_id": type string, want int64`)
	assert.Contains(t, msg, `column "title": missing`)
	assert.Contains(t, msg, "row count 2 below minimum 100")
	assert.Contains(t, msg, `column "vector_id": 1 null values`)
	assert.Contains(t, msg, `column "product_id": duplicate values a`)
	assert.Contains(t, msg, `column "vector_id": 1 distinct values, want at least 5`)
	assert.NotContains(t, msg, "\n")
}

func TestCheck_UniqueIgnoresNulls(t *testing.T) {
	tbl := build(t, [][]any{
		{nil, int64(1), nil},
		{nil, int64(2), nil},
	})
	require.NoError(t, Check(tbl, Rules{Unique: []string{"product_id"}}))
}

func TestCheck_UnknownColumnInRule(t *testing.T) {
	tbl := build(t, nil)
	err := Check(tbl, Rules{NotNull: []string{"nope"}, Unique: []string{"nope"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no column "nope"`)
}
