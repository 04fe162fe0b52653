package analytics

import (
	"fmt"
	"strings"

	"nerdvision/internal/table"
)

// Column suffixes of the generic comparison view
const (
	PrevSuffix = "_prev"
	CurrSuffix = "_curr"
)

// ComparisonRow holds one key with its metric values for both periods, in the
// order of Comparison.Metrics
type ComparisonRow struct {
	Key  []string
	Prev []int64
	Curr []int64
}

// Comparison is the outer join of two period tables. Every key present in
// either period appears exactly once.
type Comparison struct {
	Keys    []string
	Metrics []string
	Rows    []ComparisonRow
}

// KeyIndex returns the position of a key column or -1
func (c *Comparison) KeyIndex(name string) int {
	for i, k := range c.Keys {
		if k == name {
			return i
		}
	}
	return -1
}

// MetricIndex returns the position of a metric or -1
func (c *Comparison) MetricIndex(name string) int {
	for i, m := range c.Metrics {
		if m == name {
			return i
		}
	}
	return -1
}

// Totals sums every metric over all rows
func (c *Comparison) Totals() (prev, curr []int64) {
	prev = make([]int64, len(c.Metrics))
	curr = make([]int64, len(c.Metrics))
	for _, r := range c.Rows {
		for i := range c.Metrics {
			prev[i] += r.Prev[i]
			curr[i] += r.Curr[i]
		}
	}
	return prev, curr
}

// Table renders the comparison as key columns followed by a _prev/_curr pair
// per metric
func (c *Comparison) Table() *table.Table {
	cols := append([]string{}, c.Keys...)
	for _, m := range c.Metrics {
		cols = append(cols, m+PrevSuffix, m+CurrSuffix)
	}

	t := table.New(cols)
	for _, r := range c.Rows {
		row := make([]table.Value, 0, len(cols))
		for _, k := range r.Key {
			row = append(row, table.Text(k))
		}
		for i := range c.Metrics {
			row = append(row, table.Number(float64(r.Prev[i])), table.Number(float64(r.Curr[i])))
		}
		t.Append(row)
	}
	return t
}

// DeltaRow is a comparison row reduced to one metric with its change
type DeltaRow struct {
	Key      []string `json:"key"`
	Prev     int64    `json:"prev"`
	Curr     int64    `json:"curr"`
	Delta    int64    `json:"delta"`
	DeltaPct float64  `json:"delta_pct"`
}

// Label joins the key parts for display
func (r DeltaRow) Label() string {
	return strings.Join(r.Key, " / ")
}

// NewDeltaRow computes delta = curr - prev and its percentage
func NewDeltaRow(key []string, prev, curr int64) DeltaRow {
	return DeltaRow{
		Key:      key,
		Prev:     prev,
		Curr:     curr,
		Delta:    curr - prev,
		DeltaPct: DeltaPct(float64(prev), float64(curr)),
	}
}

// Deltas computes delta and delta_pct of one metric for every row
func (c *Comparison) Deltas(metric string) ([]DeltaRow, error) {
	idx := c.MetricIndex(metric)
	if idx < 0 {
		return nil, fmt.Errorf("metric %s is not part of the comparison", metric)
	}

	rows := make([]DeltaRow, 0, len(c.Rows))
	for _, r := range c.Rows {
		rows = append(rows, NewDeltaRow(r.Key, r.Prev[idx], r.Curr[idx]))
	}
	return rows, nil
}
