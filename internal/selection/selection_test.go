package selection_test

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowcast/internal/errors"
	"nowcast/internal/selection"
)

// sample builds y = 2·x0 − x1 + ε with two unrelated columns
func sample(n int) selection.Input {
	rng := rand.New(rand.NewSource(7))
	in := selection.Input{Columns: []string{"x0", "x1", "noise_a", "noise_b"}}
	for i := 0; i < n; i++ {
		row := []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		in.X = append(in.X, row)
		in.Y = append(in.Y, 2*row[0]-row[1]+0.05*rng.NormFloat64())
	}
	return in
}

func TestPolicies(t *testing.T) {
	in := sample(60)
	ctx := context.Background()

	tests := []struct {
		name string
		opts selection.Options
		must []string
		len  int
	}{
		{"none keeps everything", selection.Options{Policy: selection.PolicyNone}, in.Columns, 4},
		{"lasso", selection.Options{Policy: selection.PolicyLasso}, []string{"x0", "x1"}, -1},
		{"lasso 1se", selection.Options{Policy: selection.PolicyLasso, Rule: "1se"}, []string{"x0", "x1"}, -1},
		{"elasticnet", selection.Options{Policy: selection.PolicyElasticNet, L1Ratio: 0.5}, []string{"x0", "x1"}, -1},
		{"threshold", selection.Options{Policy: selection.PolicyThreshold, Threshold: 0.01}, []string{"x0"}, -1},
		{"kbest", selection.Options{Policy: selection.PolicyKBest, K: 2}, []string{"x0", "x1"}, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := selection.New(tc.opts)
			require.NoError(t, err)
			assert.Equal(t, tc.opts.Policy, s.Policy())
			res, err := s.Select(ctx, in)
			require.NoError(t, err)
			for _, c := range tc.must {
				assert.Contains(t, res.Selected, c)
			}
			if tc.len >= 0 {
				assert.Len(t, res.Selected, tc.len)
			}
			assert.Subset(t, in.Columns, res.Selected)
		})
	}
}

func TestSelectionPreservesColumnOrder(t *testing.T) {
	s, err := selection.New(selection.Options{Policy: selection.PolicyKBest, K: 2})
	require.NoError(t, err)
	in := sample(40)
	in.Columns = []string{"b", "a", "c", "d"}
	res, err := s.Select(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, res.Selected)
}

func TestMissingCells(t *testing.T) {
	in := sample(40)
	in.X[3][0] = math.NaN()
	in.Y[5] = math.NaN()
	for i := range in.X {
		in.X[i][3] = math.NaN()
	}
	for _, p := range selection.Policies() {
		s, err := selection.New(selection.Options{Policy: p})
		require.NoError(t, err)
		res, err := s.Select(context.Background(), in)
		require.NoError(t, err, p)
		if p != selection.PolicyNone {
			assert.NotContains(t, res.Selected, "noise_b", "an all-missing column cannot be selected")
		}
	}
}

func TestTinySampleSelectsNothing(t *testing.T) {
	in := sample(3)
	for _, p := range []selection.Policy{selection.PolicyLasso, selection.PolicyThreshold, selection.PolicyKBest} {
		s, err := selection.New(selection.Options{Policy: p})
		require.NoError(t, err)
		res, err := s.Select(context.Background(), in)
		require.NoError(t, err)
		assert.Empty(t, res.Selected, p)
		assert.NotNil(t, res.Selected)
	}
}

func TestLassoHonoursCancellation(t *testing.T) {
	s, err := selection.New(selection.Options{Policy: selection.PolicyLasso})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Select(ctx, sample(40))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnknownPolicy(t *testing.T) {
	_, err := selection.New(selection.Options{Policy: "stepwise"})
	assert.True(t, errors.Is(err, errors.ErrUnsupportedPolicy))
	_, err = selection.New(selection.Options{Policy: selection.PolicyLasso, Rule: "2se"})
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}
