package table_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nerdvision/internal/table"
)

var pageSchema = table.Schema{
	Dimensions: []string{"ga:pagePath"},
	Metrics:    []string{"ga:pageviews", "ga:sessions"},
}

func TestFromRawReordersColumns(t *testing.T) {
	tbl, err := table.FromRaw(pageSchema,
		[]string{"ga:sessions", "ga:pagePath", "ga:pageviews"},
		[][]any{{"4", "/a", "10"}, {3, "/b", 7.0}},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"ga:pagePath", "ga:pageviews", "ga:sessions"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "/a", tbl.String(0, "ga:pagePath"))
	assert.Equal(t, int64(10), tbl.Int(0, "ga:pageviews"))
	assert.Equal(t, int64(4), tbl.Int(0, "ga:sessions"))
	assert.Equal(t, int64(7), tbl.Int(1, "ga:pageviews"))
	assert.Equal(t, int64(3), tbl.Int(1, "ga:sessions"))
}

func TestFromRawShortRowsAndNulls(t *testing.T) {
	tbl, err := table.FromRaw(pageSchema,
		[]string{"ga:pagePath", "ga:pageviews", "ga:sessions"},
		[][]any{{"/a", "5"}, {"/b", nil, ""}},
	)
	require.NoError(t, err)

	assert.Equal(t, int64(5), tbl.Int(0, "ga:pageviews"))
	assert.Equal(t, int64(0), tbl.Int(0, "ga:sessions"))
	assert.True(t, tbl.Cell(0, "ga:sessions").IsNull())
	assert.Equal(t, int64(0), tbl.Int(1, "ga:pageviews"))
	assert.Equal(t, int64(0), tbl.Int(1, "ga:sessions"))
}

func TestFromRawAbsentColumns(t *testing.T) {
	t.Run("no rows gives empty table with schema", func(t *testing.T) {
		tbl, err := table.FromRaw(pageSchema, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, tbl.Len())
		assert.Equal(t, pageSchema.Columns(), tbl.Columns)
	})

	t.Run("rows read in schema order", func(t *testing.T) {
		tbl, err := table.FromRaw(pageSchema, nil, [][]any{{"/a", "1", "2"}})
		require.NoError(t, err)
		assert.Equal(t, int64(2), tbl.Int(0, "ga:sessions"))
	})

	t.Run("rows wider than schema", func(t *testing.T) {
		_, err := table.FromRaw(pageSchema, nil, [][]any{{"/a", "1", "2", "3"}})
		var mismatch *table.SchemaMismatchError
		require.True(t, errors.As(err, &mismatch))
	})
}

func TestFromRawSchemaMismatch(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		rows    [][]any
		missing []string
		column  string
	}{
		{
			name:    "missing metric",
			columns: []string{"ga:pagePath", "ga:pageviews"},
			missing: []string{"ga:sessions"},
		},
		{
			name:    "non numeric metric",
			columns: []string{"ga:pagePath", "ga:pageviews", "ga:sessions"},
			rows:    [][]any{{"/a", "many", "1"}},
			column:  "ga:pageviews",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := table.FromRaw(pageSchema, tt.columns, tt.rows)
			require.Error(t, err)

			var mismatch *table.SchemaMismatchError
			require.True(t, errors.As(err, &mismatch))
			assert.Equal(t, tt.missing, mismatch.Missing)
			assert.Equal(t, tt.column, mismatch.Column)
			assert.Contains(t, err.Error(), "schema mismatch")
		})
	}
}

func TestAppendPadsRows(t *testing.T) {
	tbl := table.New([]string{"a", "b"})
	tbl.Append([]table.Value{table.Text("x")})

	assert.Equal(t, "x", tbl.String(0, "a"))
	assert.True(t, tbl.Cell(0, "b").IsNull())
	assert.Equal(t, -1, tbl.Index("c"))
	assert.Equal(t, "", tbl.String(0, "c"))
}
