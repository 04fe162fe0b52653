package analytics_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nerdvision/internal/analytics"
	"nerdvision/internal/datasource"
	"nerdvision/internal/pkg/sourcerules"
	"nerdvision/internal/table"
)

func mustTable(t *testing.T, dims, metrics []string, rows ...[]any) *table.Table {
	t.Helper()
	tbl, err := table.FromRaw(table.Schema{Dimensions: dims, Metrics: metrics}, nil, rows)
	require.NoError(t, err)
	return tbl
}

func pageviewTable(t *testing.T, rows ...[]any) *table.Table {
	return mustTable(t, []string{datasource.DimPagePath}, []string{datasource.MetricPageviews}, rows...)
}

var pathSpec = analytics.AlignSpec{
	Keys:    []string{datasource.DimPagePath},
	Metrics: []string{datasource.MetricPageviews},
}

func TestAlign_OuterJoinKeepsEveryKeyOnce(t *testing.T) {
	prev := pageviewTable(t, []any{"/a", 10}, []any{"/b", 5})
	curr := pageviewTable(t, []any{"/c", 7}, []any{"/a", 12})

	cmp, err := analytics.Align(prev, curr, pathSpec)
	require.NoError(t, err)

	require.Len(t, cmp.Rows, 3)
	assert.Equal(t, []string{"/a"}, cmp.Rows[0].Key)
	assert.Equal(t, []int64{10}, cmp.Rows[0].Prev)
	assert.Equal(t, []int64{12}, cmp.Rows[0].Curr)

	assert.Equal(t, []string{"/b"}, cmp.Rows[1].Key)
	assert.Equal(t, []int64{5}, cmp.Rows[1].Prev)
	assert.Equal(t, []int64{0}, cmp.Rows[1].Curr)

	assert.Equal(t, []string{"/c"}, cmp.Rows[2].Key)
	assert.Equal(t, []int64{0}, cmp.Rows[2].Prev)
	assert.Equal(t, []int64{7}, cmp.Rows[2].Curr)
}

func TestAlign_PrevAndCurrDoNotShareStorage(t *testing.T) {
	cmp, err := analytics.Align(pageviewTable(t, []any{"/a", 10}), pageviewTable(t, []any{"/a", 12}), pathSpec)
	require.NoError(t, err)
	require.Len(t, cmp.Rows, 1)

	row := cmp.Rows[0]
	_ = append(row.Prev, 999)
	assert.Equal(t, []int64{12}, row.Curr)
}

func TestAlign_EmptyPreviousPeriod(t *testing.T) {
	prev := pageviewTable(t)
	curr := pageviewTable(t, []any{"/b", 5})

	cmp, err := analytics.Align(prev, curr, pathSpec)
	require.NoError(t, err)
	require.Len(t, cmp.Rows, 1)

	deltas, err := cmp.Deltas(datasource.MetricPageviews)
	require.NoError(t, err)
	assert.Equal(t, analytics.DeltaRow{Key: []string{"/b"}, Prev: 0, Curr: 5, Delta: 5, DeltaPct: 100}, deltas[0])
}

func TestAlign_BothEmpty(t *testing.T) {
	cmp, err := analytics.Align(pageviewTable(t), nil, pathSpec)
	require.NoError(t, err)
	assert.Empty(t, cmp.Rows)
}

func TestAlign_FoldsHostIntoPath(t *testing.T) {
	dims := []string{datasource.DimPagePath, datasource.DimHostname}
	metrics := []string{datasource.MetricPageviews}
	prev := mustTable(t, dims, metrics, []any{"/a", "example.com", 3})
	curr := mustTable(t, dims, metrics, []any{"/a", "shop.example.com", 4}, []any{"/a", "example.com", 6})

	cmp, err := analytics.Align(prev, curr, analytics.AlignSpec{
		Keys:       []string{datasource.DimPagePath},
		HostColumn: datasource.DimHostname,
		Metrics:    metrics,
	})
	require.NoError(t, err)

	require.Len(t, cmp.Rows, 2)
	assert.Equal(t, "example.com/a", cmp.Rows[0].Key[0])
	assert.Equal(t, int64(3), cmp.Rows[0].Prev[0])
	assert.Equal(t, int64(6), cmp.Rows[0].Curr[0])
	assert.Equal(t, "shop.example.com/a", cmp.Rows[1].Key[0])
}

func TestAlign_CleansTrackingParametersAndRegroups(t *testing.T) {
	rules := sourcerules.MustDefault()
	prev := pageviewTable(t,
		[]any{"/p?inf_contact_key=abc", 3},
		[]any{"/q", 1},
		[]any{"/p", 2},
	)
	curr := pageviewTable(t,
		[]any{"/p?utm=1&inf_contact_key=z", 4},
		[]any{"/p", 4},
	)

	spec := pathSpec
	spec.Cleaner = rules
	cmp, err := analytics.Align(prev, curr, spec)
	require.NoError(t, err)

	require.Len(t, cmp.Rows, 3)
	assert.Equal(t, "/p", cmp.Rows[0].Key[0])
	assert.Equal(t, []int64{5}, cmp.Rows[0].Prev)
	assert.Equal(t, []int64{4}, cmp.Rows[0].Curr)
	assert.Equal(t, "/q", cmp.Rows[1].Key[0])
	assert.Equal(t, "/p?utm=1", cmp.Rows[2].Key[0])
	assert.Equal(t, []int64{4}, cmp.Rows[2].Curr)
}

func TestAlign_SumsDuplicateKeysAndNullMetrics(t *testing.T) {
	prev := pageviewTable(t, []any{"/a", 1}, []any{"/a", nil}, []any{"/a", "2"})
	cmp, err := analytics.Align(prev, pageviewTable(t), pathSpec)
	require.NoError(t, err)

	require.Len(t, cmp.Rows, 1)
	assert.Equal(t, []int64{3}, cmp.Rows[0].Prev)
	assert.Equal(t, []int64{0}, cmp.Rows[0].Curr)
}

func TestAlign_MissingColumn(t *testing.T) {
	prev := pageviewTable(t, []any{"/a", 1})
	_, err := analytics.Align(prev, prev, analytics.AlignSpec{
		Keys:    []string{datasource.DimPagePath},
		Metrics: []string{datasource.MetricSessions},
	})

	var mismatch *table.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, []string{datasource.MetricSessions}, mismatch.Missing)
}

func TestComparison_Table(t *testing.T) {
	cmp, err := analytics.Align(
		pageviewTable(t, []any{"/a", 10}),
		pageviewTable(t, []any{"/a", 20}),
		pathSpec,
	)
	require.NoError(t, err)

	tbl := cmp.Table()
	assert.Equal(t, []string{datasource.DimPagePath, "ga:pageviews_prev", "ga:pageviews_curr"}, tbl.Columns)
	assert.Equal(t, "/a", tbl.String(0, datasource.DimPagePath))
	assert.Equal(t, int64(10), tbl.Int(0, "ga:pageviews_prev"))
	assert.Equal(t, int64(20), tbl.Int(0, "ga:pageviews_curr"))
}

func TestAggregate_AppliesCleaner(t *testing.T) {
	rows, err := analytics.Aggregate(
		pageviewTable(t, []any{"/a&inf_contact_key=1", 2}, []any{"/a", 3}),
		analytics.AlignSpec{
			Keys:    []string{datasource.DimPagePath},
			Metrics: []string{datasource.MetricPageviews},
			Cleaner: sourcerules.MustDefault(),
		})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"/a"}, rows[0].Key)
	assert.Equal(t, []int64{5}, rows[0].Values)
}
