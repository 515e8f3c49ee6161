package panel

import (
	"fmt"
	"math"
	"time"

	"nowcast/internal/errors"
	"nowcast/pkg/contracts/domain"
)

// Panel is a dated table of float columns. NaN marks a missing cell.
// The row index is monotonic and gap-free at Freq, and column names are unique.
// A Panel is never mutated after construction; every operation returns a new one.
type Panel struct {
	freq    domain.Frequency
	index   []time.Time
	columns []string
	data    [][]float64
	lookup  map[string]int
}

// New validates and builds a panel. data holds one slice per column.
func New(freq domain.Frequency, index []time.Time, columns []string, data [][]float64) (*Panel, error) {
	if len(columns) != len(data) {
		return nil, errors.NewDataAlignmentError(
			fmt.Sprintf("panel has %d column names but %d columns", len(columns), len(data)), time.Time{}, "")
	}
	for i, d := range index {
		if !d.Equal(freq.PeriodEnd(d)) {
			return nil, errors.NewDataAlignmentError("index date is not a period end", d, "")
		}
		if i > 0 && !d.Equal(freq.Next(index[i-1])) {
			return nil, errors.NewDataAlignmentError("panel index is not contiguous", d, "")
		}
	}
	lookup := make(map[string]int, len(columns))
	for j, c := range columns {
		if c == "" {
			return nil, errors.NewDataAlignmentError("empty column name", time.Time{}, "")
		}
		if _, dup := lookup[c]; dup {
			return nil, errors.NewDataAlignmentError("duplicate column name", time.Time{}, c)
		}
		if len(data[j]) != len(index) {
			return nil, errors.NewDataAlignmentError(
				fmt.Sprintf("column has %d rows, index has %d", len(data[j]), len(index)), time.Time{}, c)
		}
		lookup[c] = j
	}

	p := &Panel{
		freq:    freq,
		index:   make([]time.Time, len(index)),
		columns: make([]string, len(columns)),
		data:    make([][]float64, len(data)),
		lookup:  lookup,
	}
	copy(p.index, index)
	copy(p.columns, columns)
	for j := range data {
		p.data[j] = append([]float64(nil), data[j]...)
	}
	return p, nil
}

// Empty returns a panel with an index and no columns
func Empty(freq domain.Frequency, from, to time.Time) (*Panel, error) {
	return New(freq, Range(freq, from, to), nil, nil)
}

// Range lists the period ends of freq from the period containing from to
// the period containing to
func Range(freq domain.Frequency, from, to time.Time) []time.Time {
	var out []time.Time
	end := freq.PeriodEnd(to)
	for d := freq.PeriodEnd(from); !d.After(end); d = freq.Next(d) {
		out = append(out, d)
	}
	return out
}

// Freq returns the working frequency of the row index
func (p *Panel) Freq() domain.Frequency { return p.freq }

// Len returns the number of rows
func (p *Panel) Len() int { return len(p.index) }

// Width returns the number of columns
func (p *Panel) Width() int { return len(p.columns) }

// Index returns a copy of the row dates
func (p *Panel) Index() []time.Time {
	return append([]time.Time(nil), p.index...)
}

// Date returns the date of row i
func (p *Panel) Date(i int) time.Time { return p.index[i] }

// Columns returns a copy of the column names in order
func (p *Panel) Columns() []string {
	return append([]string(nil), p.columns...)
}

// ColumnIndex returns the position of a column
func (p *Panel) ColumnIndex(name string) (int, bool) {
	j, ok := p.lookup[name]
	return j, ok
}

// Has reports whether the column exists
func (p *Panel) Has(name string) bool {
	_, ok := p.lookup[name]
	return ok
}

// Column returns a copy of a column's values
func (p *Panel) Column(name string) ([]float64, bool) {
	j, ok := p.lookup[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), p.data[j]...), true
}

// Value returns the cell at row i, column j
func (p *Panel) Value(i, j int) float64 { return p.data[j][i] }

// RowOf returns the row whose date equals d
func (p *Panel) RowOf(d time.Time) (int, bool) {
	if len(p.index) == 0 {
		return 0, false
	}
	d = p.freq.PeriodEnd(d)
	for i, x := range p.index {
		if x.Equal(d) {
			return i, true
		}
		if x.After(d) {
			break
		}
	}
	return 0, false
}

// Rows returns the row positions whose dates fall in [from, to]
func (p *Panel) Rows(from, to time.Time) []int {
	var out []int
	for i, d := range p.index {
		if d.Before(from) || d.After(to) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// Slice returns the contiguous rows [from, to)
func (p *Panel) Slice(from, to int) (*Panel, error) {
	if from < 0 || to > len(p.index) || from > to {
		return nil, errors.NewDataAlignmentError(fmt.Sprintf("row range [%d, %d) out of bounds", from, to), time.Time{}, "")
	}
	data := make([][]float64, len(p.data))
	for j := range p.data {
		data[j] = p.data[j][from:to]
	}
	return New(p.freq, p.index[from:to], p.columns, data)
}

// Between returns the rows dated in [from, to]
func (p *Panel) Between(from, to time.Time) (*Panel, error) {
	rows := p.Rows(from, to)
	if len(rows) == 0 {
		return p.Slice(0, 0)
	}
	return p.Slice(rows[0], rows[len(rows)-1]+1)
}

// Select keeps the named columns in the given order
func (p *Panel) Select(cols []string) (*Panel, error) {
	data := make([][]float64, len(cols))
	for k, c := range cols {
		j, ok := p.lookup[c]
		if !ok {
			return nil, errors.NewDataAlignmentError("unknown column", time.Time{}, c)
		}
		data[k] = p.data[j]
	}
	return New(p.freq, p.index, cols, data)
}

// Drop removes the named columns; unknown names are ignored
func (p *Panel) Drop(cols ...string) *Panel {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	keep := make([]string, 0, len(p.columns))
	for _, c := range p.columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	out, _ := p.Select(keep)
	return out
}

// DropWhere removes every column for which fn returns true
func (p *Panel) DropWhere(fn func(ColumnName) bool) *Panel {
	var drop []string
	for _, c := range p.columns {
		if fn(ParseColumnName(c)) {
			drop = append(drop, c)
		}
	}
	return p.Drop(drop...)
}

// WithColumns returns a panel with extra columns appended
func (p *Panel) WithColumns(cols []string, data [][]float64) (*Panel, error) {
	allCols := append(p.Columns(), cols...)
	allData := make([][]float64, 0, len(allCols))
	allData = append(allData, p.data...)
	allData = append(allData, data...)
	return New(p.freq, p.index, allCols, allData)
}

// Clone returns a deep copy
func (p *Panel) Clone() *Panel {
	out, _ := New(p.freq, p.index, p.columns, p.data)
	return out
}

// ReferenceEnd returns the reference period end of the observation stored
// in cell (row, col). Slot columns of a quarterly panel refer to a month of
// the row's quarter; lag columns refer to an earlier row. ok is false when
// the lag reaches before the first row.
func (p *Panel) ReferenceEnd(row int, col string) (time.Time, bool) {
	name := ParseColumnName(col)
	src := row - name.Lag
	if src < 0 || src >= len(p.index) {
		return time.Time{}, false
	}
	d := p.index[src]
	if p.freq == domain.FrequencyQuarterly && name.Slot > 0 {
		return domain.QuarterOf(d).Month(name.Slot), true
	}
	return d, true
}

// Snapshot is the serialisable form of a panel
type Snapshot struct {
	Frequency domain.Frequency `json:"frequency"`
	Index     []string         `json:"index"`
	Columns   []string         `json:"columns"`
	Values    [][]*float64     `json:"values"`
}

// Snapshot exports the panel with NaN cells as null
func (p *Panel) Snapshot() Snapshot {
	s := Snapshot{
		Frequency: p.freq,
		Index:     make([]string, len(p.index)),
		Columns:   p.Columns(),
		Values:    make([][]*float64, len(p.data)),
	}
	for i, d := range p.index {
		s.Index[i] = d.Format("2006-01-02")
	}
	for j, col := range p.data {
		s.Values[j] = make([]*float64, len(col))
		for i, v := range col {
			s.Values[j][i] = domain.NullFloat(v)
		}
	}
	return s
}

// FromSnapshot rebuilds a panel
func FromSnapshot(s Snapshot) (*Panel, error) {
	index := make([]time.Time, len(s.Index))
	for i, raw := range s.Index {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot date %q: %w", raw, err)
		}
		index[i] = d
	}
	data := make([][]float64, len(s.Values))
	for j, col := range s.Values {
		data[j] = make([]float64, len(col))
		for i, v := range col {
			data[j][i] = domain.FromNullFloat(v)
		}
	}
	return New(s.Frequency, index, s.Columns, data)
}

// CountValid returns the number of non-missing cells in a column slice
func CountValid(xs []float64) int {
	n := 0
	for _, x := range xs {
		if !math.IsNaN(x) {
			n++
		}
	}
	return n
}
