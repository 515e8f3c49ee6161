package model

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"nowcast/pkg/contracts/domain"
)

// Problem is a single forecasting task. X rows align with Y; columns of X
// are Regressors followed by TargetLags. XTarget holds the same columns for
// the row being forecast.
type Problem struct {
	Regressors []string
	TargetLags []string
	X          [][]float64
	Y          []float64
	XTarget    []float64
}

// Forecast is the outcome of FitForecast
type Forecast struct {
	Pred      float64  `json:"pred"`
	Used      []string `json:"used"`
	NLags     int      `json:"nlags"`
	Criterion float64  `json:"criterion"`
	NObs      int      `json:"nobs"`
	// Fallback is set when no regression could be fitted and the forecast is
	// the mean of Y
	Fallback bool `json:"fallback"`
}

// InterceptOnly forecasts the mean of the finite values of y
func InterceptOnly(y []float64) (Forecast, error) {
	obs := finite(y)
	if len(obs) == 0 {
		return Forecast{}, fmt.Errorf("no observed target values")
	}
	return Forecast{Pred: stat.Mean(obs, nil), NObs: len(obs), Fallback: true}, nil
}

// FitForecast regresses y on the regressors plus the first n target lags for
// every n from zero to len(TargetLags), keeps the fit with the lowest
// criterion, and predicts the target row. Rows missing a used value are
// dropped. When the regressors outnumber what the sample supports, the
// ones most correlated with y are kept.
func FitForecast(p Problem, criterion domain.Criterion) (Forecast, error) {
	width := len(p.Regressors) + len(p.TargetLags)
	if len(p.XTarget) != width {
		return Forecast{}, fmt.Errorf("target row has %d values, expected %d", len(p.XTarget), width)
	}
	for i, row := range p.X {
		if len(row) != width {
			return Forecast{}, fmt.Errorf("row %d has %d values, expected %d", i, len(row), width)
		}
	}
	if len(p.X) != len(p.Y) {
		return Forecast{}, fmt.Errorf("X has %d rows, y has %d", len(p.X), len(p.Y))
	}

	// a regressor is only usable when its target-row value is known
	var regs []int
	for j := range p.Regressors {
		if !math.IsNaN(p.XTarget[j]) {
			regs = append(regs, j)
		}
	}
	var lags []int
	for k := range p.TargetLags {
		j := len(p.Regressors) + k
		if math.IsNaN(p.XTarget[j]) {
			break
		}
		lags = append(lags, j)
	}

	var best *Forecast
	for n := 0; n <= len(lags); n++ {
		cols := candidateColumns(p, regs, lags[:n])
		f, ok := fitColumns(p, cols, criterion)
		if !ok {
			continue
		}
		f.NLags = n
		f.Used = make([]string, len(cols))
		for i, j := range cols {
			f.Used[i] = columnName(p, j)
		}
		if best == nil || f.Criterion < best.Criterion {
			fc := f
			best = &fc
		}
	}
	if best == nil {
		return InterceptOnly(p.Y)
	}
	return *best, nil
}

func columnName(p Problem, j int) string {
	if j < len(p.Regressors) {
		return p.Regressors[j]
	}
	return p.TargetLags[j-len(p.Regressors)]
}

// candidateColumns caps the regressor count at what the complete-case sample
// supports, ranking regressors by absolute correlation with y
func candidateColumns(p Problem, regs, lags []int) []int {
	rows := completeRows(p, append(append([]int(nil), regs...), lags...))
	capacity := len(rows) - len(lags) - 1 - minResidualDOF
	if capacity >= len(regs) {
		return append(append([]int(nil), regs...), lags...)
	}

	// rank on rows complete for lags and each regressor separately
	type scored struct {
		col   int
		score float64
	}
	lagRows := completeRows(p, lags)
	var ranked []scored
	for _, j := range regs {
		var xs, ys []float64
		for _, i := range lagRows {
			if v := p.X[i][j]; !math.IsNaN(v) {
				xs = append(xs, v)
				ys = append(ys, p.Y[i])
			}
		}
		score := 0.0
		if len(xs) > 2 {
			if c := stat.Correlation(xs, ys, nil); !math.IsNaN(c) {
				score = math.Abs(c)
			}
		}
		ranked = append(ranked, scored{col: j, score: score})
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].score > ranked[b].score })

	// shrink until the complete-case sample is large enough
	for keep := len(ranked); keep >= 0; keep-- {
		cols := make([]int, 0, keep+len(lags))
		for _, r := range ranked[:keep] {
			cols = append(cols, r.col)
		}
		sort.Ints(cols)
		cols = append(cols, lags...)
		if len(completeRows(p, cols))-len(cols)-1 >= minResidualDOF {
			return cols
		}
	}
	return lags
}

func completeRows(p Problem, cols []int) []int {
	var rows []int
	for i, row := range p.X {
		if math.IsNaN(p.Y[i]) {
			continue
		}
		ok := true
		for _, j := range cols {
			if math.IsNaN(row[j]) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	return rows
}

func fitColumns(p Problem, cols []int, criterion domain.Criterion) (Forecast, bool) {
	rows := completeRows(p, cols)
	if len(rows)-len(cols)-1 < minResidualDOF {
		return Forecast{}, false
	}
	design := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for r, i := range rows {
		x := make([]float64, len(cols))
		for c, j := range cols {
			x[c] = p.X[i][j]
		}
		design[r] = x
		y[r] = p.Y[i]
	}
	fit, err := OLS(Design(design), y)
	if err != nil {
		return Forecast{}, false
	}
	target := make([]float64, len(cols)+1)
	target[0] = 1
	for c, j := range cols {
		target[c+1] = p.XTarget[j]
	}
	ic := fit.BIC()
	if criterion == domain.CriterionAIC {
		ic = fit.AIC()
	}
	return Forecast{Pred: fit.Predict(target), Criterion: ic, NObs: len(rows)}, true
}

func finite(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			out = append(out, x)
		}
	}
	return out
}
