// Package table holds the tabular values exchanged between the data sources
// and the comparison pipeline.
//
// A Table is a column-named grid of Values. Dimension cells keep their text,
// metric cells are parsed into numbers when the table is built so that every
// later computation works on counts and never on raw strings.
package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Schema lists the columns a query asked for: dimensions first, then metrics.
type Schema struct {
	Dimensions []string
	Metrics    []string
}

// Columns returns the dimension and metric names in query order
func (s Schema) Columns() []string {
	cols := make([]string, 0, len(s.Dimensions)+len(s.Metrics))
	cols = append(cols, s.Dimensions...)
	return append(cols, s.Metrics...)
}

// IsMetric reports whether name is one of the schema's metric columns
func (s Schema) IsMetric(name string) bool {
	for _, m := range s.Metrics {
		if m == name {
			return true
		}
	}
	return false
}

// Value is a single cell. The zero Value is null.
type Value struct {
	text    string
	num     float64
	numeric bool
	set     bool
}

// Text creates a string cell
func Text(s string) Value {
	return Value{text: s, set: true}
}

// Number creates a numeric cell
func Number(f float64) Value {
	return Value{num: f, numeric: true, set: true}
}

// Null returns the empty cell
func Null() Value {
	return Value{}
}

// IsNull reports whether the cell carries no value
func (v Value) IsNull() bool {
	return !v.set
}

// String renders the cell as text; null renders as the empty string.
func (v Value) String() string {
	switch {
	case !v.set:
		return ""
	case v.numeric:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return v.text
	}
}

// Float returns the numeric content of the cell. Null cells are zero.
func (v Value) Float() float64 {
	if !v.set || !v.numeric {
		return 0
	}
	return v.num
}

// Table is an ordered set of rows sharing one column list
type Table struct {
	Columns []string
	Rows    [][]Value
	index   map[string]int
}

// New creates an empty table with the given columns
func New(columns []string) *Table {
	t := &Table{
		Columns: append([]string(nil), columns...),
	}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.index[c] = i
	}
}

// Append adds a row, padding short rows with nulls
func (t *Table) Append(row []Value) {
	if len(row) < len(t.Columns) {
		padded := make([]Value, len(t.Columns))
		copy(padded, row)
		row = padded
	}
	t.Rows = append(t.Rows, row[:len(t.Columns)])
}

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of a column or -1 when it is absent
func (t *Table) Index(name string) int {
	if t.index == nil {
		t.reindex()
	}
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Has reports whether the table carries the named column
func (t *Table) Has(name string) bool {
	return t.Index(name) >= 0
}

// Cell returns the value at row/column, or null when the column is absent
func (t *Table) Cell(row int, col string) Value {
	i := t.Index(col)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return Null()
	}
	return t.Rows[row][i]
}

// String returns the text of a cell
func (t *Table) String(row int, col string) string {
	return t.Cell(row, col).String()
}

// Int returns a metric cell as a whole count; nulls are zero.
func (t *Table) Int(row int, col string) int64 {
	return int64(math.Trunc(t.Cell(row, col).Float()))
}

// FromRaw builds a table for the requested schema out of a raw result.
//
// Columns may be absent, in which case rows are read in schema order. Rows
// shorter than the column list are padded with nulls. Returned columns that do
// not match the schema, and metric cells that are not numbers, produce a
// *SchemaMismatchError.
func FromRaw(schema Schema, columns []string, rows [][]any) (*Table, error) {
	want := schema.Columns()
	if len(columns) == 0 {
		columns = want
		for _, r := range rows {
			if len(r) > len(want) {
				return nil, &SchemaMismatchError{
					Expected: want,
					Reason:   fmt.Sprintf("row has %d cells but no column headers were returned", len(r)),
				}
			}
		}
	}

	if err := checkColumns(want, columns); err != nil {
		return nil, err
	}

	positions := make([]int, len(want))
	for i, name := range want {
		for j, c := range columns {
			if c == name {
				positions[i] = j
				break
			}
		}
	}

	t := New(want)
	for _, raw := range rows {
		row := make([]Value, len(want))
		for i, name := range want {
			pos := positions[i]
			var cell any
			if pos < len(raw) {
				cell = raw[pos]
			}
			v, err := convert(cell, schema.IsMetric(name))
			if err != nil {
				return nil, &SchemaMismatchError{
					Expected: want,
					Column:   name,
					Reason:   err.Error(),
				}
			}
			row[i] = v
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func checkColumns(want, got []string) error {
	gotSet := make(map[string]bool, len(got))
	for _, c := range got {
		gotSet[c] = true
	}
	wantSet := make(map[string]bool, len(want))
	var missing, unexpected []string
	for _, c := range want {
		wantSet[c] = true
		if !gotSet[c] {
			missing = append(missing, c)
		}
	}
	for _, c := range got {
		if !wantSet[c] {
			unexpected = append(unexpected, c)
		}
	}
	if len(missing) == 0 && len(unexpected) == 0 {
		return nil
	}
	return &SchemaMismatchError{
		Expected:   want,
		Returned:   got,
		Missing:    missing,
		Unexpected: unexpected,
	}
}

func convert(cell any, metric bool) (Value, error) {
	switch c := cell.(type) {
	case nil:
		return Null(), nil
	case string:
		s := strings.TrimSpace(c)
		if !metric {
			return Text(c), nil
		}
		if s == "" {
			return Null(), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, fmt.Errorf("non-numeric metric value %q", c)
		}
		return Number(f), nil
	case []byte:
		return convert(string(c), metric)
	case float64:
		return numberOrText(c, metric), nil
	case float32:
		return numberOrText(float64(c), metric), nil
	case int:
		return numberOrText(float64(c), metric), nil
	case int32:
		return numberOrText(float64(c), metric), nil
	case int64:
		return numberOrText(float64(c), metric), nil
	case uint:
		return numberOrText(float64(c), metric), nil
	case uint64:
		return numberOrText(float64(c), metric), nil
	case fmt.Stringer:
		return convert(c.String(), metric)
	case bool:
		if metric {
			return Value{}, fmt.Errorf("non-numeric metric value %v", c)
		}
		if c {
			return Text("Yes"), nil
		}
		return Text("No"), nil
	default:
		return Value{}, fmt.Errorf("unsupported cell type %T", cell)
	}
}

func numberOrText(f float64, metric bool) Value {
	if metric {
		return Number(f)
	}
	return Text(strconv.FormatFloat(f, 'f', -1, 64))
}
