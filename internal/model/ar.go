package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minResidualDOF is the residual degrees of freedom an AR fit must keep
const minResidualDOF = 2

// ARModel is an autoregression y_t = c + Σ φ_i y_{t-i} + e_t. Order 0 is the
// sample mean model.
type ARModel struct {
	Order     int       `json:"order"`
	MaxOrder  int       `json:"max_order"`
	Intercept float64   `json:"intercept"`
	Coef      []float64 `json:"coef"`
	MSE       float64   `json:"mse"`
	NObs      int       `json:"nobs"`
}

// FitAR fits the highest order up to maxOrder that the sample supports,
// stepping down to the mean model. Missing values are not allowed.
func FitAR(y []float64, maxOrder int) (*ARModel, error) {
	if len(y) == 0 {
		return nil, fmt.Errorf("AR: empty sample")
	}
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("AR: sample contains non-finite values")
		}
	}
	for p := maxOrder; p >= 1; p-- {
		n := len(y) - p
		if n-(p+1) < minResidualDOF {
			continue
		}
		rows := make([][]float64, n)
		target := make([]float64, n)
		for t := p; t < len(y); t++ {
			row := make([]float64, p)
			for i := 1; i <= p; i++ {
				row[i-1] = y[t-i]
			}
			rows[t-p] = row
			target[t-p] = y[t]
		}
		fit, err := OLS(Design(rows), target)
		if err != nil {
			continue
		}
		return &ARModel{
			Order:     p,
			MaxOrder:  maxOrder,
			Intercept: fit.Coef[0],
			Coef:      append([]float64(nil), fit.Coef[1:]...),
			MSE:       fit.SSR / float64(n),
			NObs:      n,
		}, nil
	}

	mean, variance := stat.MeanVariance(y, nil)
	if len(y) < 2 {
		variance = 0
	}
	return &ARModel{Order: 0, MaxOrder: maxOrder, Intercept: mean, MSE: variance, NObs: len(y)}, nil
}

// Forecast iterates the model steps periods beyond the end of history.
// steps of 1 is the one-step-ahead forecast.
func (m *ARModel) Forecast(history []float64, steps int) float64 {
	if m.Order == 0 || steps < 1 {
		return m.Intercept
	}
	buf := append([]float64(nil), history...)
	var next float64
	for s := 0; s < steps; s++ {
		next = m.Intercept
		for i, phi := range m.Coef {
			idx := len(buf) - 1 - i
			if idx < 0 {
				break
			}
			next += phi * buf[idx]
		}
		buf = append(buf, next)
	}
	return next
}

// Companion returns the companion matrix of the AR polynomial
func (m *ARModel) Companion() *mat.Dense {
	if m.Order == 0 {
		return mat.NewDense(1, 1, []float64{0})
	}
	c := mat.NewDense(m.Order, m.Order, nil)
	for i, phi := range m.Coef {
		c.Set(0, i, phi)
	}
	for i := 1; i < m.Order; i++ {
		c.Set(i, i-1, 1)
	}
	return c
}

// Stable reports whether every eigenvalue of the companion matrix lies
// inside the unit circle
func (m *ARModel) Stable() bool {
	var eig mat.Eigen
	if ok := eig.Factorize(m.Companion(), mat.EigenNone); !ok {
		return false
	}
	for _, v := range eig.Values(nil) {
		if math.Hypot(real(v), imag(v)) >= 1 {
			return false
		}
	}
	return true
}
