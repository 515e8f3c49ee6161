package stationarity

import (
	"fmt"
	"math"

	"nowcast/internal/errors"
	"nowcast/internal/model"
)

// MinObservations is the shortest sample the unit-root test accepts
const MinObservations = 8

// mackinnon holds MacKinnon (2010) response-surface coefficients for the
// constant-only Dickey-Fuller distribution: β∞, β1, β2, β3
var mackinnon = map[float64][4]float64{
	0.99: {-3.43035, -6.5393, -16.786, -79.433},
	0.95: {-2.86154, -2.8903, -4.234, -40.040},
	0.90: {-2.56677, -1.5384, -2.809, 0},
}

// CriticalValue returns the finite-sample Dickey-Fuller critical value for
// the given confidence (0.90, 0.95 or 0.99) and number of observations
func CriticalValue(confidence float64, nobs int) (float64, error) {
	b, ok := mackinnon[confidence]
	if !ok {
		return 0, errors.NewConfigurationError(
			fmt.Sprintf("unsupported stationarity confidence %.2f", confidence),
			map[string]interface{}{"confidence": confidence, "supported": []float64{0.90, 0.95, 0.99}})
	}
	t := float64(nobs)
	return b[0] + b[1]/t + b[2]/(t*t) + b[3]/(t*t*t), nil
}

// ADFResult is the outcome of an augmented Dickey-Fuller test
type ADFResult struct {
	Tau          float64 `json:"tau"`
	Critical     float64 `json:"critical"`
	UsedLag      int     `json:"used_lag"`
	NObs         int     `json:"nobs"`
	Stationary   bool    `json:"stationary"`
	Insufficient bool    `json:"insufficient"`
}

// SchwertLag returns the default maximum lag 12·(n/100)^¼
func SchwertLag(n int) int {
	return int(math.Floor(12 * math.Pow(float64(n)/100, 0.25)))
}

// ADF runs the augmented Dickey-Fuller test with a constant. Missing values
// are skipped. The lag order is picked by AIC over 0..maxLag on a common
// sample, then the test regression is refitted on the longest sample for
// that order. A negative maxLag selects the Schwert rule.
func ADF(x []float64, maxLag int, confidence float64) (ADFResult, error) {
	if _, err := CriticalValue(confidence, MinObservations); err != nil {
		return ADFResult{}, err
	}
	y := make([]float64, 0, len(x))
	for _, v := range x {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			y = append(y, v)
		}
	}
	n := len(y)
	if n < MinObservations {
		return ADFResult{Insufficient: true, Tau: math.NaN(), Critical: math.NaN(), NObs: n}, nil
	}

	if maxLag < 0 {
		maxLag = SchwertLag(n)
	}
	if limit := (n - 5) / 2; maxLag > limit {
		maxLag = limit
	}
	if maxLag < 0 {
		maxLag = 0
	}

	dy := make([]float64, n-1)
	for t := 1; t < n; t++ {
		dy[t-1] = y[t] - y[t-1]
	}

	best, bestAIC := 0, math.Inf(1)
	for p := 0; p <= maxLag; p++ {
		fit, err := adfRegression(y, dy, p, maxLag)
		if err != nil {
			continue
		}
		if aic := fit.AIC(); aic < bestAIC {
			best, bestAIC = p, aic
		}
	}

	fit, err := adfRegression(y, dy, best, best)
	if err != nil {
		return ADFResult{}, fmt.Errorf("ADF regression: %w", err)
	}
	tau := fit.TStat(1)
	crit, _ := CriticalValue(confidence, fit.N)
	return ADFResult{
		Tau:        tau,
		Critical:   crit,
		UsedLag:    best,
		NObs:       fit.N,
		Stationary: !math.IsNaN(tau) && tau < crit,
	}, nil
}

// adfRegression fits Δy_t = a + b·y_{t-1} + Σ c_i Δy_{t-i} over t ≥ start
func adfRegression(y, dy []float64, p, start int) (*model.OLSResult, error) {
	var rows [][]float64
	var target []float64
	for t := start; t < len(dy); t++ {
		row := make([]float64, 0, p+1)
		row = append(row, y[t])
		for i := 1; i <= p; i++ {
			row = append(row, dy[t-i])
		}
		rows = append(rows, row)
		target = append(target, dy[t])
	}
	if len(rows) <= p+2 {
		return nil, fmt.Errorf("too few observations for lag %d", p)
	}
	return model.OLS(model.Design(rows), target)
}
