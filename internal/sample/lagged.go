package sample

import (
	"math"
	"time"

	"nowcast/internal/errors"
	"nowcast/internal/panel"
)

// LagKind selects how regressor lags enter the panel
type LagKind string

const (
	// LagKindNone keeps regressors contemporaneous ("nl_nc")
	LagKindNone LagKind = "nl_nc"
	// LagKindFixed adds lag columns _L1.._Lk for every regressor
	LagKindFixed LagKind = "fixed"
)

// ParseLagKind accepts nl_nc, its alias none, and fixed
func ParseLagKind(s string) (LagKind, error) {
	switch s {
	case "nl_nc", "none", "":
		return LagKindNone, nil
	case "fixed":
		return LagKindFixed, nil
	}
	return "", errors.NewUnsupportedPolicyError("lag kind", s)
}

// ToLaggedPanel adds lag columns. Regressors get lags 1..lags for the fixed
// kind only; the target gets lags 1..yLags for every kind.
func ToLaggedPanel(p *panel.Panel, kind LagKind, lags int, yVar string, yLags int) (*panel.Panel, error) {
	if kind != LagKindNone && kind != LagKindFixed {
		return nil, errors.NewUnsupportedPolicyError("lag kind", string(kind))
	}
	if lags < 0 || yLags < 0 {
		return nil, errors.NewConfigurationError("lag depth cannot be negative",
			map[string]interface{}{"lags": lags, "y_var_lags": yLags})
	}
	if !p.Has(yVar) {
		return nil, errors.NewDataAlignmentError("target variable not in panel", time.Time{}, yVar)
	}

	var cols []string
	var data [][]float64
	add := func(col string, n int) {
		values, _ := p.Column(col)
		name := panel.ParseColumnName(col)
		for k := 1; k <= n; k++ {
			cols = append(cols, name.WithLag(name.Lag+k).String())
			data = append(data, shift(values, k))
		}
	}

	if kind == LagKindFixed {
		for _, col := range p.Columns() {
			if col != yVar {
				add(col, lags)
			}
		}
	}
	add(yVar, yLags)
	return p.WithColumns(cols, data)
}

func shift(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	for i := range out {
		if i < k {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i-k]
	}
	return out
}
