package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuarter(t *testing.T) {
	tests := []struct {
		in      string
		want    Quarter
		wantErr bool
	}{
		{"2020Q2", Quarter{2020, 2}, false},
		{"2020-q4", Quarter{2020, 4}, false},
		{" 2019Q1 ", Quarter{2019, 1}, false},
		{"2020Q5", Quarter{}, true},
		{"2020", Quarter{}, true},
		{"abcQ1", Quarter{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseQuarter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuarterArithmetic(t *testing.T) {
	q := Quarter{2020, 4}
	assert.Equal(t, Quarter{2021, 1}, q.Add(1))
	assert.Equal(t, Quarter{2019, 4}, q.Add(-4))
	assert.Equal(t, 7, Quarter{2021, 4}.Sub(Quarter{2020, 1}))
	assert.True(t, Quarter{2020, 1}.Before(q))
	assert.Equal(t, "2020Q4", q.String())

	assert.Equal(t, time.Date(2020, 10, 1, 0, 0, 0, 0, time.UTC), q.Start())
	assert.Equal(t, time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC), q.End())
	assert.Equal(t, Quarter{2020, 3}, QuarterOf(time.Date(2020, 9, 30, 0, 0, 0, 0, time.UTC)))
}

func TestParseHorizon(t *testing.T) {
	tests := []struct {
		in    string
		label string
		steps int
	}{
		{"p1", "p1", 0},
		{"P3", "p3", 2},
		{"h0", "p1", 0},
		{"h2", "p3", 2},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			h, err := ParseHorizon(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.label, h.Label)
			assert.Equal(t, tt.steps, h.Steps)
		})
	}

	for _, bad := range []string{"", "p", "p0", "h-1", "x1", "pooled"} {
		_, err := ParseHorizon(bad)
		assert.Error(t, err, bad)
	}

	_, err := ParseHorizons([]string{"p1", "h0"})
	assert.ErrorContains(t, err, "duplicate")
}

func TestParseResultKeyParts(t *testing.T) {
	b, err := ParseBranch("selected")
	require.NoError(t, err)
	assert.Equal(t, BranchSelected, b)
	_, err = ParseBranch("some")
	assert.Error(t, err)

	c, err := ParseCriterion("aic")
	require.NoError(t, err)
	assert.Equal(t, CriterionAIC, c)
	_, err = ParseCriterion("hqic")
	assert.Error(t, err)

	w, err := ParseWeighting("periods_mseweight")
	require.NoError(t, err)
	assert.Equal(t, WeightingMSE, w)
	_, err = ParseWeighting("median")
	assert.Error(t, err)
}

func TestResultRecordJSONMissingValues(t *testing.T) {
	r := ResultRecord{
		Quarter:  Quarter{2021, 4},
		Key:      ResultKey{Branch: BranchAll, Criterion: CriterionBIC, Weighting: WeightingNone, Horizon: "p1"},
		YActual:  math.NaN(),
		YPred:    0.5,
		MSE:      math.NaN(),
		YPredAR4: 0.25,
		MSEAR4:   math.Inf(1),
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "2021Q4", raw["quarter"])
	assert.Nil(t, raw["y_actual"])
	assert.Nil(t, raw["mse_ar4"])
	assert.EqualValues(t, 0.5, raw["y_pred"])

	var back ResultRecord
	require.NoError(t, json.Unmarshal(b, &back))
	assert.False(t, back.HasActual())
	assert.True(t, math.IsNaN(back.MSEAR4))
	assert.Equal(t, r.Key, back.Key)
	assert.Equal(t, r.Quarter, back.Quarter)
}
