package sample

import (
	"math"
	"time"

	"nowcast/internal/errors"
	"nowcast/internal/model"
	"nowcast/pkg/contracts/domain"
)

var nan = math.NaN()

// Window is the materialised training sample of one cell. It holds only
// cells released by the forecast date.
type Window struct {
	VisibleSet
	Dates   []time.Time
	X       [][]float64
	Y       []float64
	XTarget []float64
	// History holds the released target values before the target row,
	// oldest first, with their dates
	History      []float64
	HistoryDates []time.Time
}

// Window materialises the visible set of (q, h)
func (ix *Index) Window(ds *Dataset, q domain.Quarter, h domain.Horizon) (*Window, error) {
	set, ok := ix.Get(q, h)
	if !ok {
		return nil, errors.NewConfigurationError("cell not in the forward rolling window index",
			map[string]interface{}{"quarter": q.String(), "horizon": h.Label})
	}
	p := ds.Panel
	cols := append(append([]string(nil), set.Columns...), set.TargetLags...)
	idx := make([]int, len(cols))
	for k, c := range cols {
		j, ok := p.ColumnIndex(c)
		if !ok {
			return nil, errors.NewDataAlignmentError("indexed column missing from panel", set.ForecastDate, c)
		}
		idx[k] = j
	}
	yj, ok := p.ColumnIndex(ds.YVar)
	if !ok {
		return nil, errors.NewDataAlignmentError("target variable not in panel", set.ForecastDate, ds.YVar)
	}

	w := &Window{VisibleSet: set}
	row := func(r int) []float64 {
		out := make([]float64, len(idx))
		for k, j := range idx {
			out[k] = p.Value(r, j)
		}
		return out
	}
	for _, r := range set.Rows {
		w.Dates = append(w.Dates, p.Date(r))
		w.X = append(w.X, row(r))
		w.Y = append(w.Y, p.Value(r, yj))
	}
	w.XTarget = row(set.TargetRow)
	for _, r := range set.HistoryRows {
		w.History = append(w.History, p.Value(r, yj))
		w.HistoryDates = append(w.HistoryDates, p.Date(r))
	}
	return w, nil
}

// Problem converts the window into a forecasting problem over the given
// regressors, which must be a subset of the visible columns
func (w *Window) Problem(regressors []string) (model.Problem, error) {
	pos := make(map[string]int, len(w.Columns)+len(w.TargetLags))
	for k, c := range w.Columns {
		pos[c] = k
	}
	for k, c := range w.TargetLags {
		pos[c] = len(w.Columns) + k
	}
	var keep []int
	for _, c := range regressors {
		k, ok := pos[c]
		if !ok || k >= len(w.Columns) {
			return model.Problem{}, errors.NewConfigurationError("regressor is not a visible column",
				map[string]interface{}{"column": c, "quarter": w.Quarter.String(), "horizon": w.Horizon.Label})
		}
		keep = append(keep, k)
	}
	for k := range w.TargetLags {
		keep = append(keep, len(w.Columns)+k)
	}

	pick := func(src []float64) []float64 {
		out := make([]float64, len(keep))
		for i, k := range keep {
			out[i] = src[k]
		}
		return out
	}
	p := model.Problem{
		Regressors: append([]string(nil), regressors...),
		TargetLags: append([]string(nil), w.TargetLags...),
		Y:          append([]float64(nil), w.Y...),
		XTarget:    pick(w.XTarget),
	}
	for _, x := range w.X {
		p.X = append(p.X, pick(x))
	}
	return p, nil
}

// Regressors returns the visible regressor matrix without the target lags
func (w *Window) Regressors() [][]float64 {
	out := make([][]float64, len(w.X))
	for i, x := range w.X {
		out[i] = append([]float64(nil), x[:len(w.Columns)]...)
	}
	return out
}

// LastHistoryDate returns the date of the latest released target value
func (w *Window) LastHistoryDate() (time.Time, bool) {
	if len(w.HistoryDates) == 0 {
		return time.Time{}, false
	}
	return w.HistoryDates[len(w.HistoryDates)-1], true
}

// StepsAhead returns how many periods separate the latest released target
// value from the target row
func (w *Window) StepsAhead() int {
	if len(w.HistoryRows) == 0 {
		return 1
	}
	return w.TargetRow - w.HistoryRows[len(w.HistoryRows)-1]
}
