package selection

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"nowcast/internal/errors"
)

// Policy names a selection strategy
type Policy string

const (
	PolicyNone       Policy = "none"
	PolicyLasso      Policy = "lasso"
	PolicyElasticNet Policy = "elasticnet"
	PolicyThreshold  Policy = "threshold"
	PolicyKBest      Policy = "kbest"
)

// Policies lists the supported strategies
func Policies() []Policy {
	return []Policy{PolicyNone, PolicyLasso, PolicyElasticNet, PolicyThreshold, PolicyKBest}
}

// Input is the training sample of one cell. X rows align with Y and its
// columns with Columns; NaN marks a missing cell.
type Input struct {
	Columns []string
	X       [][]float64
	Y       []float64
}

// Result is the outcome of a selection
type Result struct {
	Selected []string `json:"selected"`
	// Lambda is the penalty chosen by cross validation, zero for the
	// unpenalised strategies
	Lambda float64 `json:"lambda"`
}

// Selector picks the columns that enter the forecasting regression
type Selector interface {
	Policy() Policy
	Select(ctx context.Context, in Input) (Result, error)
}

// Options configure the strategies
type Options struct {
	Policy Policy
	// Folds is the number of contiguous cross-validation folds
	Folds int
	// Alphas overrides the penalty grid
	Alphas []float64
	// L1Ratio mixes the lasso and ridge penalties of the elastic net
	L1Ratio float64
	// Rule picks the penalty: "min" or "1se"
	Rule string
	// K is the number of columns kept by kbest
	K int
	// Threshold is the p-value cut-off of the threshold strategy
	Threshold float64
	MaxIter   int
	Tol       float64
}

// DefaultOptions returns the settings used when none are configured
func DefaultOptions() Options {
	return Options{
		Policy:    PolicyLasso,
		Folds:     5,
		L1Ratio:   0.5,
		Rule:      "min",
		K:         5,
		Threshold: 0.05,
		MaxIter:   1000,
		Tol:       1e-6,
	}
}

// New returns the selector for opts.Policy
func New(opts Options) (Selector, error) {
	d := DefaultOptions()
	if opts.Folds <= 1 {
		opts.Folds = d.Folds
	}
	if opts.Rule == "" {
		opts.Rule = d.Rule
	}
	if opts.K <= 0 {
		opts.K = d.K
	}
	if opts.Threshold <= 0 {
		opts.Threshold = d.Threshold
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = d.MaxIter
	}
	if opts.Tol <= 0 {
		opts.Tol = d.Tol
	}
	if opts.Rule != "min" && opts.Rule != "1se" {
		return nil, errors.NewUnsupportedPolicyError("penalty rule", opts.Rule)
	}

	switch opts.Policy {
	case PolicyNone:
		return noneSelector{}, nil
	case PolicyLasso:
		opts.L1Ratio = 1
		return &penalised{policy: PolicyLasso, opts: opts}, nil
	case PolicyElasticNet:
		if opts.L1Ratio <= 0 || opts.L1Ratio > 1 {
			opts.L1Ratio = d.L1Ratio
		}
		return &penalised{policy: PolicyElasticNet, opts: opts}, nil
	case PolicyThreshold:
		return &threshold{pValue: opts.Threshold}, nil
	case PolicyKBest:
		return &kBest{k: opts.K}, nil
	}
	return nil, errors.NewUnsupportedPolicyError("selection", string(opts.Policy))
}

type noneSelector struct{}

func (noneSelector) Policy() Policy { return PolicyNone }

func (noneSelector) Select(_ context.Context, in Input) (Result, error) {
	return Result{Selected: append([]string(nil), in.Columns...)}, nil
}

// prepared is the sample after dropping rows without a target value and
// mean-filling missing regressor cells. Columns without any observation or
// without variation are removed.
type prepared struct {
	columns []string
	x       [][]float64 // column-major
	y       []float64
}

func prepare(in Input) prepared {
	var rows []int
	for i, v := range in.Y {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			rows = append(rows, i)
		}
	}
	p := prepared{y: make([]float64, len(rows))}
	for k, i := range rows {
		p.y[k] = in.Y[i]
	}
	for j, name := range in.Columns {
		col := make([]float64, len(rows))
		var obs []float64
		for k, i := range rows {
			col[k] = in.X[i][j]
			if !math.IsNaN(col[k]) {
				obs = append(obs, col[k])
			}
		}
		if len(obs) < 2 {
			continue
		}
		mean := stat.Mean(obs, nil)
		for k := range col {
			if math.IsNaN(col[k]) {
				col[k] = mean
			}
		}
		if _, v := stat.MeanVariance(col, nil); v <= 1e-12 {
			continue
		}
		p.columns = append(p.columns, name)
		p.x = append(p.x, col)
	}
	return p
}

func (p prepared) n() int { return len(p.y) }

// ordered returns the picked columns in input order
func ordered(in Input, picked map[string]bool) []string {
	out := []string{}
	for _, c := range in.Columns {
		if picked[c] {
			out = append(out, c)
		}
	}
	return out
}

type kBest struct{ k int }

func (s *kBest) Policy() Policy { return PolicyKBest }

// Select keeps the k columns with the largest absolute correlation with y
func (s *kBest) Select(_ context.Context, in Input) (Result, error) {
	p := prepare(in)
	if p.n() < 3 {
		return Result{Selected: []string{}}, nil
	}
	type scored struct {
		name string
		r    float64
	}
	scores := make([]scored, len(p.columns))
	for j, name := range p.columns {
		scores[j] = scored{name, math.Abs(stat.Correlation(p.x[j], p.y, nil))}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].r > scores[b].r })
	picked := make(map[string]bool, s.k)
	for i := 0; i < len(scores) && i < s.k; i++ {
		picked[scores[i].name] = true
	}
	return Result{Selected: ordered(in, picked)}, nil
}
