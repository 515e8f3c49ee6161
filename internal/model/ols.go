package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// OLSResult holds a least-squares fit of y on the columns of X
type OLSResult struct {
	Coef      []float64
	Residuals []float64
	SSR       float64
	N         int
	K         int
	// Rank is K unless the normal equations were singular
	Rank int

	xtxInv *mat.Dense
}

// OLS solves min ||y - Xb|| through the normal equations, falling back to the
// SVD minimum-norm solution when X'X cannot be inverted
func OLS(X *mat.Dense, y []float64) (*OLSResult, error) {
	n, k := X.Dims()
	if n != len(y) {
		return nil, fmt.Errorf("OLS: X has %d rows, y has %d", n, len(y))
	}
	if n == 0 || k == 0 {
		return nil, fmt.Errorf("OLS: empty design matrix (%dx%d)", n, k)
	}
	Y := mat.NewVecDense(n, append([]float64(nil), y...))

	res := &OLSResult{N: n, K: k, Rank: k}
	var b mat.VecDense

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err == nil {
		var xty mat.VecDense
		xty.MulVec(X.T(), Y)
		b.MulVec(&inv, &xty)
		res.xtxInv = &inv
	} else {
		var svd mat.SVD
		if ok := svd.Factorize(X, mat.SVDThin); !ok {
			return nil, fmt.Errorf("OLS: X'X singular and SVD factorization failed: %v", err)
		}
		res.Rank = svd.Rank(1e-12)
		if res.Rank == 0 {
			b = *mat.NewVecDense(k, nil)
		} else {
			var B mat.Dense
			svd.SolveTo(&B, mat.NewDense(n, 1, Y.RawVector().Data), res.Rank)
			b = *mat.NewVecDense(k, mat.Col(nil, 0, &B))
		}
	}

	res.Coef = make([]float64, k)
	for i := 0; i < k; i++ {
		res.Coef[i] = b.AtVec(i)
	}
	var fitted mat.VecDense
	fitted.MulVec(X, &b)
	res.Residuals = make([]float64, n)
	for i := 0; i < n; i++ {
		r := y[i] - fitted.AtVec(i)
		res.Residuals[i] = r
		res.SSR += r * r
	}
	return res, nil
}

// DOF returns the residual degrees of freedom
func (r *OLSResult) DOF() int { return r.N - r.Rank }

// Sigma2 returns the unbiased residual variance
func (r *OLSResult) Sigma2() float64 {
	if r.DOF() <= 0 {
		return math.NaN()
	}
	return r.SSR / float64(r.DOF())
}

// StdErr returns the standard error of coefficient i, NaN when the
// normal equations were singular
func (r *OLSResult) StdErr(i int) float64 {
	if r.xtxInv == nil {
		return math.NaN()
	}
	return math.Sqrt(r.Sigma2() * r.xtxInv.At(i, i))
}

// TStat returns the t statistic of coefficient i
func (r *OLSResult) TStat(i int) float64 {
	return r.Coef[i] / r.StdErr(i)
}

// AIC returns n·log(SSR/n) + 2k
func (r *OLSResult) AIC() float64 {
	return r.logFit() + 2*float64(r.K)
}

// BIC returns n·log(SSR/n) + k·log(n)
func (r *OLSResult) BIC() float64 {
	return r.logFit() + float64(r.K)*math.Log(float64(r.N))
}

func (r *OLSResult) logFit() float64 {
	n := float64(r.N)
	ssr := r.SSR
	if ssr <= 0 {
		ssr = 1e-300
	}
	return n * math.Log(ssr/n)
}

// Predict applies the coefficients to one row
func (r *OLSResult) Predict(x []float64) float64 {
	var s float64
	for i, c := range r.Coef {
		s += c * x[i]
	}
	return s
}

// Design builds a row-major design matrix with a leading intercept column
func Design(rows [][]float64) *mat.Dense {
	n := len(rows)
	k := 1
	if n > 0 {
		k += len(rows[0])
	}
	X := mat.NewDense(n, k, nil)
	for i, row := range rows {
		X.Set(i, 0, 1)
		for j, v := range row {
			X.Set(i, j+1, v)
		}
	}
	return X
}
