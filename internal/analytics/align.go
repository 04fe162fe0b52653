package analytics

import (
	"strings"

	"nerdvision/internal/table"
)

// PathCleaner rewrites page paths, typically to drop tracking parameters
type PathCleaner interface {
	CleanPath(path string) string
}

// AlignSpec describes how two period tables are joined
type AlignSpec struct {
	// Keys are the join columns. The first one receives the host prefix and
	// the path cleaning.
	Keys []string
	// HostColumn, when set, is prefixed to the first key and then dropped
	HostColumn string
	Metrics    []string
	Cleaner    PathCleaner
}

func (s AlignSpec) columns() []string {
	cols := append([]string{}, s.Keys...)
	if s.HostColumn != "" {
		cols = append(cols, s.HostColumn)
	}
	return append(cols, s.Metrics...)
}

func (s AlignSpec) check(t *table.Table) error {
	var missing []string
	for _, c := range s.columns() {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &table.SchemaMismatchError{Expected: s.columns(), Returned: t.Columns, Missing: missing}
	}
	return nil
}

// AggregateRow is one key of a single-period table with its summed metrics
type AggregateRow struct {
	Key    []string
	Values []int64
}

// accumulator sums values per key while keeping first-appearance order
type accumulator struct {
	width int
	index map[string]int
	rows  []AggregateRow
}

func newAccumulator(width int) *accumulator {
	return &accumulator{width: width, index: make(map[string]int)}
}

func joinKey(key []string) string {
	return strings.Join(key, "\x00")
}

func (a *accumulator) add(key []string, values []int64) {
	k := joinKey(key)
	i, ok := a.index[k]
	if !ok {
		i = len(a.rows)
		a.index[k] = i
		a.rows = append(a.rows, AggregateRow{
			Key:    append([]string(nil), key...),
			Values: make([]int64, a.width),
		})
	}
	for j, v := range values {
		a.rows[i].Values[j] += v
	}
}

// Aggregate folds the host into the first key, cleans it and sums rows that
// share a key. Null metric cells count as zero. A nil table has no rows.
func Aggregate(t *table.Table, spec AlignSpec) ([]AggregateRow, error) {
	if t == nil {
		return nil, nil
	}
	if err := spec.check(t); err != nil {
		return nil, err
	}

	acc := newAccumulator(len(spec.Metrics))
	for i := 0; i < t.Len(); i++ {
		key := make([]string, len(spec.Keys))
		for j, col := range spec.Keys {
			key[j] = t.String(i, col)
		}
		if spec.HostColumn != "" && len(key) > 0 {
			key[0] = t.String(i, spec.HostColumn) + key[0]
		}
		if spec.Cleaner != nil && len(key) > 0 {
			key[0] = spec.Cleaner.CleanPath(key[0])
		}

		values := make([]int64, len(spec.Metrics))
		for j, col := range spec.Metrics {
			values[j] = t.Int(i, col)
		}
		acc.add(key, values)
	}
	return acc.rows, nil
}

// Align outer-joins the previous and current tables. Previous keys come first
// in their input order, followed by keys only present in the current table.
// Missing values are zero. Path cleaning runs on the joined rows and rows that
// end up sharing a key are summed.
func Align(prev, curr *table.Table, spec AlignSpec) (*Comparison, error) {
	raw := spec
	raw.Cleaner = nil

	prevRows, err := Aggregate(prev, raw)
	if err != nil {
		return nil, err
	}
	currRows, err := Aggregate(curr, raw)
	if err != nil {
		return nil, err
	}

	width := len(spec.Metrics)
	acc := newAccumulator(2 * width)
	for _, r := range prevRows {
		acc.add(r.Key, r.Values)
	}
	for _, r := range currRows {
		values := make([]int64, 2*width)
		copy(values[width:], r.Values)
		acc.add(r.Key, values)
	}
	merged := acc.rows

	if spec.Cleaner != nil && len(spec.Keys) > 0 {
		cleaned := newAccumulator(2 * width)
		for _, r := range merged {
			key := append([]string(nil), r.Key...)
			key[0] = spec.Cleaner.CleanPath(key[0])
			cleaned.add(key, r.Values)
		}
		merged = cleaned.rows
	}

	cmp := &Comparison{
		Keys:    append([]string(nil), spec.Keys...),
		Metrics: append([]string(nil), spec.Metrics...),
		Rows:    make([]ComparisonRow, 0, len(merged)),
	}
	for _, r := range merged {
		cmp.Rows = append(cmp.Rows, ComparisonRow{
			Key:  r.Key,
			Prev: r.Values[:width:width],
			Curr: r.Values[width:],
		})
	}
	return cmp, nil
}
