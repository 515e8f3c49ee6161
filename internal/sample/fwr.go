package sample

import (
	"fmt"
	"sort"
	"time"

	"nowcast/internal/calendar"
	"nowcast/internal/errors"
	"nowcast/internal/panel"
	"nowcast/pkg/contracts/domain"
)

// Dataset bundles everything the evaluator needs about the prepared panel
type Dataset struct {
	Panel    *panel.Panel
	YVar     string
	Calendar *calendar.Calendar
	Views    Views
	Horizons []domain.Horizon
	// WindowLength bounds how many periods before the target row may be
	// used for training; zero means an expanding window
	WindowLength int
}

func (ds *Dataset) validate() error {
	if ds.Panel == nil || ds.Calendar == nil {
		return errors.NewConfigurationError("dataset requires a panel and a calendar", nil)
	}
	if !ds.Panel.Has(ds.YVar) {
		return errors.NewDataAlignmentError("target variable not in panel", time.Time{}, ds.YVar)
	}
	if ds.WindowLength < 0 {
		return errors.NewConfigurationError("window length cannot be negative",
			map[string]interface{}{"window_length": ds.WindowLength})
	}
	if len(ds.Horizons) == 0 {
		return errors.NewConfigurationError("at least one horizon is required", nil)
	}
	return nil
}

// TargetBase returns the indicator name of the target column
func (ds *Dataset) TargetBase() string {
	return panel.ParseColumnName(ds.YVar).Base
}

// TargetRow returns the panel row holding the target value of quarter q
func (ds *Dataset) TargetRow(q domain.Quarter) (int, bool) {
	return ds.Panel.RowOf(q.End())
}

// Actual returns the realised target value of quarter q, NaN when unknown.
// It is used for scoring only and never enters a Window.
func (ds *Dataset) Actual(q domain.Quarter) float64 {
	r, ok := ds.TargetRow(q)
	if !ok {
		return nan
	}
	j, _ := ds.Panel.ColumnIndex(ds.YVar)
	return ds.Panel.Value(r, j)
}

// VisibleSet lists the rows and columns known at the forecast date of one
// (quarter, horizon) cell
type VisibleSet struct {
	Quarter      domain.Quarter `json:"quarter"`
	Horizon      domain.Horizon `json:"horizon"`
	ForecastDate time.Time      `json:"forecast_date"`
	TargetRow    int            `json:"target_row"`
	// Rows are the training rows, ascending
	Rows []int `json:"rows"`
	// Columns are the visible regressors in panel order
	Columns []string `json:"columns"`
	// TargetLags are the visible lags of the target in lag order
	TargetLags []string `json:"target_lags"`
	// HistoryRows are the rows before TargetRow whose target value is
	// released, used by the autoregressive baseline
	HistoryRows []int `json:"history_rows"`
}

func (v VisibleSet) clone() VisibleSet {
	v.Rows = append([]int(nil), v.Rows...)
	v.Columns = append([]string(nil), v.Columns...)
	v.TargetLags = append([]string(nil), v.TargetLags...)
	v.HistoryRows = append([]int(nil), v.HistoryRows...)
	return v
}

type cellKey struct {
	quarter domain.Quarter
	horizon string
}

// Index maps every out-of-sample (quarter, horizon) cell to its visible set.
// It is read-only after construction.
type Index struct {
	quarters []domain.Quarter
	horizons []domain.Horizon
	sets     map[cellKey]VisibleSet
}

// GetForwardRollingWindowIndex computes the visible set of every quarter
// after nowcastStart up to end for every horizon of the dataset
func GetForwardRollingWindowIndex(ds *Dataset, start, nowcastStart, end time.Time) (*Index, error) {
	if err := ds.validate(); err != nil {
		return nil, err
	}
	views, err := ToSampleViews(ds.Panel, start, end, nowcastStart)
	if err != nil {
		return nil, err
	}

	ix := &Index{
		horizons: append([]domain.Horizon(nil), ds.Horizons...),
		sets:     make(map[cellKey]VisibleSet),
	}
	seen := make(map[domain.Quarter]bool)
	for _, r := range views.Out {
		q := domain.QuarterOf(ds.Panel.Date(r))
		if seen[q] {
			continue
		}
		seen[q] = true
		ix.quarters = append(ix.quarters, q)
		for _, h := range ds.Horizons {
			set, err := visibleSet(ds, views, q, h)
			if err != nil {
				return nil, fmt.Errorf("quarter %s horizon %s: %w", q, h.Label, err)
			}
			ix.sets[cellKey{q, h.Label}] = set
		}
	}
	sort.Slice(ix.quarters, func(i, j int) bool { return ix.quarters[i].Before(ix.quarters[j]) })
	return ix, nil
}

// Quarters returns the out-of-sample quarters in ascending order
func (ix *Index) Quarters() []domain.Quarter {
	return append([]domain.Quarter(nil), ix.quarters...)
}

// Horizons returns the indexed horizons
func (ix *Index) Horizons() []domain.Horizon {
	return append([]domain.Horizon(nil), ix.horizons...)
}

// Get returns a copy of the visible set of a cell
func (ix *Index) Get(q domain.Quarter, h domain.Horizon) (VisibleSet, bool) {
	set, ok := ix.sets[cellKey{q, h.Label}]
	if !ok {
		return VisibleSet{}, false
	}
	return set.clone(), true
}

// Len returns the number of indexed cells
func (ix *Index) Len() int { return len(ix.sets) }

func visibleSet(ds *Dataset, views Views, q domain.Quarter, h domain.Horizon) (VisibleSet, error) {
	p := ds.Panel
	target, ok := ds.TargetRow(q)
	if !ok {
		return VisibleSet{}, errors.NewDataAlignmentError("no panel row for target quarter", q.End(), ds.YVar)
	}
	fd, err := ds.Calendar.ForecastDate(q, h)
	if err != nil {
		return VisibleSet{}, err
	}
	set := VisibleSet{Quarter: q, Horizon: h, ForecastDate: fd, TargetRow: target}

	yBase := ds.TargetBase()
	var lagged []panel.ColumnName
	for _, col := range p.Columns() {
		if col == ds.YVar {
			continue
		}
		name := panel.ParseColumnName(col)
		known, err := released(ds, target, col, fd)
		if err != nil {
			return VisibleSet{}, err
		}
		if !known {
			continue
		}
		if name.Base == yBase {
			lagged = append(lagged, name)
			continue
		}
		set.Columns = append(set.Columns, col)
	}
	sort.SliceStable(lagged, func(i, j int) bool { return lagged[i].Lag < lagged[j].Lag })
	for _, n := range lagged {
		set.TargetLags = append(set.TargetLags, n.String())
	}
	required := append(append([]string(nil), set.Columns...), set.TargetLags...)

	first := 0
	if ds.WindowLength > 0 {
		first = target - ds.WindowLength
	}
	for _, r := range views.Full {
		if r >= target || r < first {
			continue
		}
		yKnown, err := released(ds, r, ds.YVar, fd)
		if err != nil {
			return VisibleSet{}, err
		}
		if !yKnown {
			continue
		}
		set.HistoryRows = append(set.HistoryRows, r)
		all := true
		for _, col := range required {
			if all, err = released(ds, r, col, fd); err != nil {
				return VisibleSet{}, err
			}
			if !all {
				break
			}
		}
		if all {
			set.Rows = append(set.Rows, r)
		}
	}
	return set, nil
}

// released reports whether cell (row, col) is published by fd. Cells whose
// reference period precedes the panel hold no data and count as released.
func released(ds *Dataset, row int, col string, fd time.Time) (bool, error) {
	ref, ok := ds.Panel.ReferenceEnd(row, col)
	if !ok {
		return true, nil
	}
	return ds.Calendar.Visible(panel.ParseColumnName(col).Base, ref, fd)
}
