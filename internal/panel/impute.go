package panel

import (
	"math"
	"sort"

	"nowcast/internal/errors"
)

// ImputeFunc fills missing values of one column and returns a new slice
type ImputeFunc func(values []float64) []float64

var imputers = map[string]ImputeFunc{
	"linear": LinearInterior,
	"ffill":  ForwardFill,
	"mean":   MeanFill,
}

// ImputeMethods lists the registered imputation strategies
func ImputeMethods() []string {
	out := make([]string, 0, len(imputers))
	for k := range imputers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LookupImputer resolves a named imputation strategy
func LookupImputer(method string) (ImputeFunc, error) {
	fn, ok := imputers[method]
	if !ok {
		return nil, errors.NewUnsupportedPolicyError("imputation", method).
			With("known", ImputeMethods())
	}
	return fn, nil
}

// LinearInterior interpolates gaps bounded by observations on both sides.
// Leading and trailing gaps stay missing.
func LinearInterior(values []float64) []float64 {
	out := append([]float64(nil), values...)
	prev := -1
	for i, v := range out {
		if math.IsNaN(v) {
			continue
		}
		if prev >= 0 && i-prev > 1 {
			step := (v - out[prev]) / float64(i-prev)
			for k := prev + 1; k < i; k++ {
				out[k] = out[prev] + step*float64(k-prev)
			}
		}
		prev = i
	}
	return out
}

// ForwardFill carries the last observation forward over gaps
func ForwardFill(values []float64) []float64 {
	out := append([]float64(nil), values...)
	last := math.NaN()
	for i, v := range out {
		if math.IsNaN(v) {
			out[i] = last
			continue
		}
		last = v
	}
	return out
}

// MeanFill replaces each gap with the mean of the observations before it.
// Gaps ahead of the first observation stay missing.
func MeanFill(values []float64) []float64 {
	out := append([]float64(nil), values...)
	var sum float64
	var n int
	for i, v := range values {
		if math.IsNaN(v) {
			if n > 0 {
				out[i] = sum / float64(n)
			}
			continue
		}
		sum += v
		n++
	}
	return out
}

// ToImputedDFs fills missing observations of every column. With impute false
// the inputs are returned unchanged.
func ToImputedDFs(dfs []*Panel, impute bool, method string) ([]*Panel, error) {
	if !impute {
		return dfs, nil
	}
	fn, err := LookupImputer(method)
	if err != nil {
		return nil, err
	}
	out := make([]*Panel, len(dfs))
	for i, df := range dfs {
		data := make([][]float64, df.Width())
		for j := range data {
			data[j] = fn(df.data[j])
		}
		if out[i], err = New(df.freq, df.index, df.columns, data); err != nil {
			return nil, err
		}
	}
	return out, nil
}
