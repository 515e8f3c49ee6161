package stationarity

import (
	"math"
	"strconv"

	"nowcast/internal/errors"
	"nowcast/pkg/contracts/domain"
)

// Transform applies a FRED-MD transformation code to a series. The output has
// the same length; leading values without enough history are NaN, and the
// log of a non-positive value is NaN.
func Transform(code int, x []float64) ([]float64, error) {
	switch code {
	case 0, domain.TransformLevel:
		return append([]float64(nil), x...), nil
	case domain.TransformDiff:
		return diff(x), nil
	case domain.TransformDiff2:
		return diff(diff(x)), nil
	case domain.TransformLog:
		return logs(x), nil
	case domain.TransformLogDiff:
		return diff(logs(x)), nil
	case domain.TransformLogDiff2:
		return diff(diff(logs(x))), nil
	case domain.TransformPctChgDiff:
		return diff(pctChange(x)), nil
	}
	return nil, errors.NewUnsupportedPolicyError("transformation", strconv.Itoa(code))
}

func diff(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		if i == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[i] - x[i-1]
	}
	return out
}

func logs(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if v <= 0 || math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		out[i] = math.Log(v)
	}
	return out
}

func pctChange(x []float64) []float64 {
	out := make([]float64, len(x))
	for i := range x {
		if i == 0 || x[i-1] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = x[i]/x[i-1] - 1
	}
	return out
}
