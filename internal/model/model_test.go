package model_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"nowcast/internal/model"
	"nowcast/pkg/contracts/domain"
)

func TestOLSExactFit(t *testing.T) {
	// y = 2 + 3x
	rows := [][]float64{{0}, {1}, {2}, {3}, {4}}
	y := []float64{2, 5, 8, 11, 14}

	fit, err := model.OLS(model.Design(rows), y)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, fit.Coef[0], 1e-9)
	assert.InDelta(t, 3.0, fit.Coef[1], 1e-9)
	assert.InDelta(t, 0.0, fit.SSR, 1e-9)
	assert.InDelta(t, 17.0, fit.Predict([]float64{1, 5}), 1e-9)
	assert.Equal(t, 2, fit.Rank)
}

func TestOLSSingularFallsBackToSVD(t *testing.T) {
	// duplicated column makes X'X singular
	X := mat.NewDense(4, 2, []float64{
		1, 1,
		2, 2,
		3, 3,
		4, 4,
	})
	y := []float64{2, 4, 6, 8}

	fit, err := model.OLS(X, y)
	require.NoError(t, err)
	assert.Equal(t, 1, fit.Rank)
	assert.InDelta(t, 1.0, fit.Coef[0], 1e-9, "minimum norm splits the weight")
	assert.InDelta(t, 1.0, fit.Coef[1], 1e-9)
	assert.True(t, math.IsNaN(fit.StdErr(0)))
}

func TestOLSErrors(t *testing.T) {
	_, err := model.OLS(mat.NewDense(2, 1, []float64{1, 2}), []float64{1})
	assert.Error(t, err)
}

func TestOLSStatistics(t *testing.T) {
	rows := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}}
	y := []float64{1.1, 1.9, 3.2, 3.8, 5.1, 6.0}
	fit, err := model.OLS(model.Design(rows), y)
	require.NoError(t, err)

	assert.Equal(t, 4, fit.DOF())
	assert.Greater(t, fit.TStat(1), 10.0)
	assert.InDelta(t, 2*(math.Log(6)-2), fit.BIC()-fit.AIC(), 1e-9)
}

func TestFitAR(t *testing.T) {
	// y_t = 1 + 0.5 y_{t-1}
	y := []float64{0}
	for i := 0; i < 30; i++ {
		y = append(y, 1+0.5*y[len(y)-1])
	}

	t.Run("recovers coefficients", func(t *testing.T) {
		m, err := model.FitAR(y, 1)
		require.NoError(t, err)
		assert.Equal(t, 1, m.Order)
		assert.InDelta(t, 1.0, m.Intercept, 1e-6)
		assert.InDelta(t, 0.5, m.Coef[0], 1e-6)
		assert.True(t, m.Stable())
	})

	t.Run("iterated forecast", func(t *testing.T) {
		m, err := model.FitAR(y, 1)
		require.NoError(t, err)
		one := m.Forecast([]float64{2}, 1)
		two := m.Forecast([]float64{2}, 2)
		assert.InDelta(t, 2.0, one, 1e-6)
		assert.InDelta(t, 2.0, two, 1e-6)
		assert.InDelta(t, 1.5, m.Forecast([]float64{1}, 1), 1e-6)
		assert.InDelta(t, 1.75, m.Forecast([]float64{1}, 2), 1e-6)
	})

	t.Run("order reduced for short samples", func(t *testing.T) {
		m, err := model.FitAR([]float64{1, 2, 1.5, 2.5, 2, 3}, 4)
		require.NoError(t, err)
		assert.Equal(t, 1, m.Order)
		assert.Equal(t, 4, m.MaxOrder)
	})

	t.Run("mean model when nothing fits", func(t *testing.T) {
		m, err := model.FitAR([]float64{1, 3}, 4)
		require.NoError(t, err)
		assert.Equal(t, 0, m.Order)
		assert.InDelta(t, 2.0, m.Forecast([]float64{1, 3}, 3), 1e-12)
	})

	t.Run("rejects missing values", func(t *testing.T) {
		_, err := model.FitAR([]float64{1, math.NaN(), 2}, 1)
		assert.Error(t, err)
		_, err = model.FitAR(nil, 1)
		assert.Error(t, err)
	})
}

func TestFitForecast(t *testing.T) {
	// y depends on x1 only; x2 is noise
	x1 := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	x2 := []float64{0.3, -0.1, 0.4, 0.0, -0.2, 0.1, 0.5, -0.3, 0.2, 0.0}
	y := make([]float64, len(x1))
	X := make([][]float64, len(x1))
	for i := range x1 {
		y[i] = 1 + 2*x1[i]
		lag := math.NaN()
		if i > 0 {
			lag = y[i-1]
		}
		X[i] = []float64{x1[i], x2[i], lag}
	}

	p := model.Problem{
		Regressors: []string{"x1", "x2"},
		TargetLags: []string{"y_L1"},
		X:          X,
		Y:          y,
		XTarget:    []float64{11, 0.1, y[9]},
	}

	for _, c := range []domain.Criterion{domain.CriterionBIC, domain.CriterionAIC} {
		t.Run(string(c), func(t *testing.T) {
			f, err := model.FitForecast(p, c)
			require.NoError(t, err)
			assert.False(t, f.Fallback)
			assert.InDelta(t, 23.0, f.Pred, 1e-6)
			assert.Contains(t, f.Used, "x1")
		})
	}

	t.Run("unknown target regressor is skipped", func(t *testing.T) {
		q := p
		q.XTarget = []float64{11, math.NaN(), y[9]}
		f, err := model.FitForecast(q, domain.CriterionBIC)
		require.NoError(t, err)
		assert.NotContains(t, f.Used, "x2")
	})

	t.Run("too few rows falls back to the mean", func(t *testing.T) {
		q := model.Problem{
			Regressors: []string{"x1"},
			X:          [][]float64{{1}, {2}},
			Y:          []float64{3, 5},
			XTarget:    []float64{3},
		}
		f, err := model.FitForecast(q, domain.CriterionBIC)
		require.NoError(t, err)
		assert.True(t, f.Fallback)
		assert.InDelta(t, 4.0, f.Pred, 1e-12)
	})

	t.Run("shape mismatch", func(t *testing.T) {
		q := p
		q.XTarget = []float64{1}
		_, err := model.FitForecast(q, domain.CriterionBIC)
		assert.Error(t, err)
	})
}

func TestInterceptOnly(t *testing.T) {
	f, err := model.InterceptOnly([]float64{1, math.NaN(), 3})
	require.NoError(t, err)
	assert.True(t, f.Fallback)
	assert.Equal(t, 2.0, f.Pred)

	_, err = model.InterceptOnly([]float64{math.NaN()})
	assert.Error(t, err)
}
