package results

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"nowcast/pkg/contracts/domain"
)

// Table stores forecast records by series key and quarter. It accepts one
// record per (key, quarter).
type Table struct {
	mu     sync.RWMutex
	series map[domain.ResultKey]map[domain.Quarter]domain.ResultRecord
}

// NewTable returns an empty table
func NewTable() *Table {
	return &Table{series: make(map[domain.ResultKey]map[domain.Quarter]domain.ResultRecord)}
}

// FromRecords builds a table from stored records
func FromRecords(records []domain.ResultRecord) (*Table, error) {
	t := NewTable()
	for _, r := range records {
		if err := t.Add(r); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Add inserts r; a second record for the same key and quarter is an error
func (t *Table) Add(r domain.ResultRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.series[r.Key]
	if !ok {
		s = make(map[domain.Quarter]domain.ResultRecord)
		t.series[r.Key] = s
	}
	if _, dup := s[r.Quarter]; dup {
		return fmt.Errorf("duplicate result for %s in %s", r.Key, r.Quarter)
	}
	r.Selected = append([]string(nil), r.Selected...)
	s[r.Quarter] = r
	return nil
}

// Get returns the record of key for quarter q
func (t *Table) Get(key domain.ResultKey, q domain.Quarter) (domain.ResultRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.series[key][q]
	return r, ok
}

// Len returns the number of records
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, s := range t.series {
		n += len(s)
	}
	return n
}

// Keys returns every series key in sorted order
func (t *Table) Keys() []domain.ResultKey {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]domain.ResultKey, 0, len(t.series))
	for k := range t.series {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

// Series returns the records of key ordered by quarter
func (t *Table) Series(key domain.ResultKey) []domain.ResultRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedSeries(t.series[key])
}

// Filter restricts Query; empty fields match everything
type Filter struct {
	Branch    domain.Branch
	Criterion domain.Criterion
	Weighting domain.Weighting
	Horizon   string
}

// Match reports whether k satisfies the filter
func (f Filter) Match(k domain.ResultKey) bool {
	return (f.Branch == "" || f.Branch == k.Branch) &&
		(f.Criterion == "" || f.Criterion == k.Criterion) &&
		(f.Weighting == "" || f.Weighting == k.Weighting) &&
		(f.Horizon == "" || f.Horizon == k.Horizon)
}

// Query returns the records of every key matching f
func (t *Table) Query(f Filter) []domain.ResultRecord {
	var out []domain.ResultRecord
	for _, k := range t.Keys() {
		if f.Match(k) {
			out = append(out, t.Series(k)...)
		}
	}
	return out
}

// Records returns every record ordered by key then quarter
func (t *Table) Records() []domain.ResultRecord {
	return t.Query(Filter{})
}

func sortedSeries(s map[domain.Quarter]domain.ResultRecord) []domain.ResultRecord {
	out := make([]domain.ResultRecord, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quarter.Before(out[j].Quarter) })
	return out
}

func sortKeys(keys []domain.ResultKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Branch != b.Branch {
			return a.Branch > b.Branch
		}
		if a.Criterion != b.Criterion {
			return a.Criterion < b.Criterion
		}
		if a.Weighting != b.Weighting {
			return a.Weighting < b.Weighting
		}
		return horizonLess(a.Horizon, b.Horizon)
	})
}

// horizonLess orders p1 < p2 < ... < p10 < pooled
func horizonLess(a, b string) bool {
	ha, errA := domain.ParseHorizon(a)
	hb, errB := domain.ParseHorizon(b)
	switch {
	case errA == nil && errB == nil:
		return ha.Steps < hb.Steps
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}

// RunningMSE accumulates squared forecast errors
type RunningMSE struct {
	sum float64
	n   int
}

// Add records one forecast and returns the mean so far. Pairs with a
// missing actual or prediction are skipped.
func (m *RunningMSE) Add(actual, pred float64) float64 {
	if !math.IsNaN(actual) && !math.IsNaN(pred) {
		d := actual - pred
		m.sum += d * d
		m.n++
	}
	return m.Value()
}

// Value returns the current mean, NaN before the first scored pair
func (m *RunningMSE) Value() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.n)
}

// N returns the number of scored pairs
func (m *RunningMSE) N() int { return m.n }
