package selection

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const gridSize = 30

// penalised is the lasso / elastic net strategy: the penalty is chosen by
// contiguous-fold cross validation and the columns with a non-zero
// coefficient at that penalty are selected
type penalised struct {
	policy Policy
	opts   Options
}

func (s *penalised) Policy() Policy { return s.policy }

func (s *penalised) Select(ctx context.Context, in Input) (Result, error) {
	p := prepare(in)
	n := p.n()
	if n < 4 || len(p.columns) == 0 {
		return Result{Selected: []string{}}, nil
	}
	full := standardise(p.x, p.y)
	grid := s.grid(full)
	if len(grid) == 0 {
		return Result{Selected: []string{}}, nil
	}

	folds := s.opts.Folds
	if folds > n/2 {
		folds = n / 2
	}
	errs := make([][]float64, len(grid))
	for f := 0; f < folds; f++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		lo, hi := f*n/folds, (f+1)*n/folds
		trainX, trainY, testX, testY := split(p, lo, hi)
		train := standardise(trainX, trainY)
		beta := make([]float64, len(p.columns))
		for g, lambda := range grid {
			s.descend(train, lambda, beta)
			var sse float64
			for i := range testY {
				d := testY[i] - train.predict(beta, testX, i)
				sse += d * d
			}
			errs[g] = append(errs[g], sse/float64(len(testY)))
		}
	}

	chosen := s.choose(errs)
	beta := make([]float64, len(p.columns))
	for g := 0; g <= chosen; g++ {
		s.descend(full, grid[g], beta)
	}
	picked := make(map[string]bool)
	for j, b := range beta {
		if b != 0 {
			picked[p.columns[j]] = true
		}
	}
	return Result{Selected: ordered(in, picked), Lambda: grid[chosen]}, nil
}

// grid returns the penalties in descending order
func (s *penalised) grid(d design) []float64 {
	if len(s.opts.Alphas) > 0 {
		out := append([]float64(nil), s.opts.Alphas...)
		sort.Sort(sort.Reverse(sort.Float64Slice(out)))
		return out
	}
	n := float64(len(d.y))
	var lambdaMax float64
	for _, z := range d.z {
		if v := math.Abs(floats.Dot(z, d.y)) / (n * s.opts.L1Ratio); v > lambdaMax {
			lambdaMax = v
		}
	}
	if lambdaMax == 0 || math.IsNaN(lambdaMax) {
		return nil
	}
	grid := floats.LogSpan(make([]float64, gridSize), lambdaMax*1e-3, lambdaMax)
	sort.Sort(sort.Reverse(sort.Float64Slice(grid)))
	return grid
}

// choose picks the grid position with the lowest mean error, or under the
// 1se rule the largest penalty within one standard error of it
func (s *penalised) choose(errs [][]float64) int {
	means := make([]float64, len(errs))
	best := 0
	for g, e := range errs {
		means[g] = stat.Mean(e, nil)
		if means[g] < means[best] {
			best = g
		}
	}
	if s.opts.Rule != "1se" || len(errs[best]) < 2 {
		return best
	}
	limit := means[best] + stat.StdErr(stat.StdDev(errs[best], nil), float64(len(errs[best])))
	for g := range means {
		if means[g] <= limit {
			return g
		}
	}
	return best
}

// descend runs cyclic coordinate descent for one penalty, updating beta in
// place so consecutive penalties warm start
func (s *penalised) descend(d design, lambda float64, beta []float64) {
	n := float64(len(d.y))
	resid := make([]float64, len(d.y))
	copy(resid, d.y)
	for j, z := range d.z {
		if beta[j] != 0 {
			floats.AddScaled(resid, -beta[j], z)
		}
	}
	l1 := lambda * s.opts.L1Ratio
	l2 := lambda * (1 - s.opts.L1Ratio)
	for iter := 0; iter < s.opts.MaxIter; iter++ {
		var delta float64
		for j, z := range d.z {
			rho := floats.Dot(z, resid)/n + beta[j]
			next := softThreshold(rho, l1) / (1 + l2)
			if change := next - beta[j]; change != 0 {
				floats.AddScaled(resid, -change, z)
				delta = math.Max(delta, math.Abs(change))
				beta[j] = next
			}
		}
		if delta < s.opts.Tol {
			return
		}
	}
}

func softThreshold(x, t float64) float64 {
	switch {
	case x > t:
		return x - t
	case x < -t:
		return x + t
	}
	return 0
}

// design is a standardised sample: every column of z has mean zero and
// population variance one, y is centred
type design struct {
	z      [][]float64
	y      []float64
	means  []float64
	scales []float64
	yMean  float64
}

func standardise(x [][]float64, y []float64) design {
	n := float64(len(y))
	d := design{
		z:      make([][]float64, len(x)),
		means:  make([]float64, len(x)),
		scales: make([]float64, len(x)),
		yMean:  stat.Mean(y, nil),
	}
	d.y = make([]float64, len(y))
	for i, v := range y {
		d.y[i] = v - d.yMean
	}
	for j, col := range x {
		mean, variance := stat.MeanVariance(col, nil)
		scale := math.Sqrt(variance * (n - 1) / n)
		d.means[j] = mean
		d.scales[j] = scale
		d.z[j] = make([]float64, len(col))
		if scale == 0 || math.IsNaN(scale) {
			continue
		}
		for i, v := range col {
			d.z[j][i] = (v - mean) / scale
		}
	}
	return d
}

// predict evaluates row i of the column-major matrix x in original units
func (d design) predict(beta []float64, x [][]float64, i int) float64 {
	out := d.yMean
	for j, b := range beta {
		if b == 0 || d.scales[j] == 0 || math.IsNaN(d.scales[j]) {
			continue
		}
		out += b * (x[j][i] - d.means[j]) / d.scales[j]
	}
	return out
}

// split separates rows [lo, hi) as the test fold
func split(p prepared, lo, hi int) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	trainX = make([][]float64, len(p.x))
	testX = make([][]float64, len(p.x))
	for j, col := range p.x {
		trainX[j] = append(append([]float64(nil), col[:lo]...), col[hi:]...)
		testX[j] = append([]float64(nil), col[lo:hi]...)
	}
	trainY = append(append([]float64(nil), p.y[:lo]...), p.y[hi:]...)
	testY = append([]float64(nil), p.y[lo:hi]...)
	return trainX, trainY, testX, testY
}
