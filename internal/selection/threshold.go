package selection

import (
	"context"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

type threshold struct {
	pValue float64
}

func (s *threshold) Policy() Policy { return PolicyThreshold }

// Select keeps the columns whose univariate regression slope on y is
// significant at the configured level
func (s *threshold) Select(_ context.Context, in Input) (Result, error) {
	p := prepare(in)
	n := p.n()
	if n < 4 {
		return Result{Selected: []string{}}, nil
	}
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	picked := make(map[string]bool)
	for j, name := range p.columns {
		if SlopePValue(p.x[j], p.y, dist) <= s.pValue {
			picked[name] = true
		}
	}
	return Result{Selected: ordered(in, picked)}, nil
}

// SlopePValue is the two-sided p-value of the slope of y on x
func SlopePValue(x, y []float64, dist distuv.StudentsT) float64 {
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 1
	}
	if math.Abs(r) >= 1 {
		return 0
	}
	t := r * math.Sqrt(dist.Nu/(1-r*r))
	return 2 * dist.Survival(math.Abs(t))
}
