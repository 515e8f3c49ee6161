package evaluate_test

import (
	"context"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowcast/internal/cache"
	"nowcast/internal/errors"
	"nowcast/internal/evaluate"
	"nowcast/internal/panel"
	"nowcast/internal/sample"
	"nowcast/internal/selection"
	"nowcast/internal/shared/testutil"
	"nowcast/pkg/contracts/domain"
)

func prepare(t *testing.T, f *testutil.Fixture, edit func(*panel.Panel) *panel.Panel) (*sample.Dataset, *sample.Index) {
	t.Helper()
	src := f.Panel
	if edit != nil {
		src = edit(src)
	}
	lagged, err := sample.ToLaggedPanel(src, sample.LagKindNone, 4, f.YVar, 2)
	require.NoError(t, err)
	views, err := sample.ToSampleViews(lagged, testutil.Start, testutil.End, testutil.NowcastStart)
	require.NoError(t, err)
	hs, err := domain.ParseHorizons([]string{"p1", "p2", "p3"})
	require.NoError(t, err)
	ds := &sample.Dataset{Panel: lagged, YVar: f.YVar, Calendar: f.Calendar, Views: views, Horizons: hs}
	ix, err := sample.GetForwardRollingWindowIndex(ds, testutil.Start, testutil.NowcastStart, testutil.End)
	require.NoError(t, err)
	return ds, ix
}

func selector(t *testing.T, policy selection.Policy) selection.Selector {
	t.Helper()
	opts := selection.DefaultOptions()
	opts.Policy = policy
	s, err := selection.New(opts)
	require.NoError(t, err)
	return s
}

type recorder struct {
	cells, baselines int
	fallbacks        map[string]int
}

func (r *recorder) RecordCell(_ context.Context, _ string, baseline bool) {
	r.cells++
	if baseline {
		r.baselines++
	}
}

func (r *recorder) RecordFallback(_ context.Context, branch string) {
	if r.fallbacks == nil {
		r.fallbacks = make(map[string]int)
	}
	r.fallbacks[branch]++
}

func TestCellTransitions(t *testing.T) {
	q := domain.Quarter{Year: 2020, Q: 2}
	h := domain.Horizon{Label: "p1"}

	c := evaluate.NewCell(q, h)
	assert.Equal(t, evaluate.CellPending, c.Status)
	assert.Error(t, c.Advance(evaluate.CellFitting))
	assert.Error(t, c.Advance(evaluate.CellScored))
	require.NoError(t, c.Advance(evaluate.CellSelecting))
	require.NoError(t, c.Advance(evaluate.CellFitting))
	require.NoError(t, c.Advance(evaluate.CellScored))
	assert.False(t, c.Baseline)
	assert.Error(t, c.Advance(evaluate.CellPending))

	b := evaluate.NewCell(q, h)
	require.NoError(t, b.Advance(evaluate.CellSelecting))
	require.NoError(t, b.Advance(evaluate.CellScored))
	assert.True(t, b.Baseline)
	assert.Equal(t, evaluate.CellScored, b.Status)
}

func TestRun(t *testing.T) {
	f := testutil.NewFixture(t)
	ds, ix := prepare(t, f, nil)
	logger, logs := testutil.NewLogger(t)
	rec := &recorder{}

	ev, err := evaluate.New(ds, ix, selector(t, selection.PolicyNone), nil, evaluate.Options{Logger: logger, Recorder: rec})
	require.NoError(t, err)
	out, err := ev.Run(context.Background())
	require.NoError(t, err)

	quarters := ix.Quarters()
	require.Len(t, quarters, 7)
	assert.Equal(t, domain.Quarter{Year: 2020, Q: 2}, quarters[0])
	assert.Equal(t, 7*3*2*2, out.Table.Len())
	assert.Len(t, out.Cells, 7*3)
	assert.Equal(t, 7*3, rec.cells)

	for i, c := range out.Cells {
		assert.Equal(t, evaluate.CellScored, c.Status)
		if i > 0 {
			assert.False(t, c.Quarter.Before(out.Cells[i-1].Quarter), "cells must be evaluated in ascending quarters")
		}
	}

	for _, r := range out.Table.Records() {
		assert.False(t, math.IsNaN(r.YPred), "%s %s", r.Key, r.Quarter)
		assert.False(t, math.IsNaN(r.YPredAR4), "%s %s", r.Key, r.Quarter)
		assert.Equal(t, ds.Actual(r.Quarter), r.YActual)
		assert.Equal(t, domain.WeightingNone, r.Key.Weighting)
	}

	// the policy none selects every visible column, so both branches agree
	for _, q := range quarters {
		for _, h := range ix.Horizons() {
			sel, ok := out.Table.Get(domain.ResultKey{Branch: domain.BranchSelected, Criterion: domain.CriterionBIC, Weighting: domain.WeightingNone, Horizon: h.Label}, q)
			require.True(t, ok)
			all, ok := out.Table.Get(domain.ResultKey{Branch: domain.BranchAll, Criterion: domain.CriterionBIC, Weighting: domain.WeightingNone, Horizon: h.Label}, q)
			require.True(t, ok)
			assert.Equal(t, all.Selected, sel.Selected)
			assert.InDelta(t, all.YPred, sel.YPred, 1e-12)
		}
	}

	// running MSE of the last quarter equals the mean squared error of the series
	key := domain.ResultKey{Branch: domain.BranchAll, Criterion: domain.CriterionAIC, Weighting: domain.WeightingNone, Horizon: "p1"}
	series := out.Table.Series(key)
	var sse float64
	for _, r := range series {
		sse += (r.YActual - r.YPred) * (r.YActual - r.YPred)
	}
	assert.InDelta(t, sse/float64(len(series)), series[len(series)-1].MSE, 1e-9)

	testutil.AssertLogged(t, logs, slog.LevelInfo, "evaluation_completed")
}

func TestRunOnlyUsesVisibleColumns(t *testing.T) {
	f := testutil.NewFixture(t, testutil.Sentinel(testutil.Series()[0], "oracle"))
	ds, ix := prepare(t, f, nil)
	require.True(t, ds.Panel.Has("oracle"))

	ev, err := evaluate.New(ds, ix, selector(t, selection.PolicyKBest), nil, evaluate.Options{})
	require.NoError(t, err)
	out, err := ev.Run(context.Background())
	require.NoError(t, err)

	for _, r := range out.Table.Records() {
		assert.NotContains(t, r.Selected, "oracle")
		vs, ok := ix.Get(r.Quarter, domain.Horizon{Label: r.Key.Horizon})
		require.True(t, ok)
		assert.Subset(t, vs.Columns, r.Selected)
	}
}

func TestRunWithoutRegressorsScoresBaseline(t *testing.T) {
	f := testutil.NewFixture(t)
	ds, ix := prepare(t, f, func(p *panel.Panel) *panel.Panel {
		out, err := p.Select([]string{"gdp"})
		require.NoError(t, err)
		return out
	})
	rec := &recorder{}
	logger, logs := testutil.NewLogger(t)

	ev, err := evaluate.New(ds, ix, selector(t, selection.PolicyLasso), nil, evaluate.Options{Recorder: rec, Logger: logger})
	require.NoError(t, err)
	out, err := ev.Run(context.Background())
	require.NoError(t, err)

	for _, c := range out.Cells {
		assert.True(t, c.Baseline)
	}
	assert.Equal(t, rec.cells, rec.baselines)
	assert.Equal(t, out.Table.Len(), out.Fallbacks)
	assert.Equal(t, out.Fallbacks, rec.fallbacks["selected"]+rec.fallbacks["all"])
	for _, r := range out.Table.Records() {
		assert.True(t, r.Fallback)
		assert.Empty(t, r.Selected)
		assert.False(t, math.IsNaN(r.YPred))
	}
	assert.Positive(t, logs.Count("selection_fallback"))
}

func TestRunReusesCachedFits(t *testing.T) {
	f := testutil.NewFixture(t)
	ds, ix := prepare(t, f, nil)
	store := cache.NewMemoryStore()

	first, err := evaluate.New(ds, ix, selector(t, selection.PolicyLasso), cache.New(store, nil), evaluate.Options{})
	require.NoError(t, err)
	a, err := first.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, a.Cache.Misses)
	entries := store.Len()

	second, err := evaluate.New(ds, ix, selector(t, selection.PolicyLasso), cache.New(store, nil), evaluate.Options{})
	require.NoError(t, err)
	b, err := second.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, b.Cache.Misses)
	assert.Equal(t, a.Cache.Hits+a.Cache.Misses, b.Cache.Hits)
	assert.Equal(t, entries, store.Len())

	for _, r := range a.Table.Records() {
		other, ok := b.Table.Get(r.Key, r.Quarter)
		require.True(t, ok)
		assert.Equal(t, r.Selected, other.Selected)
		assert.InDelta(t, r.YPred, other.YPred, 1e-12)
		assert.InDelta(t, r.YPredAR4, other.YPredAR4, 1e-12)
	}
}

func TestRunRevisedValuesMissSharedCache(t *testing.T) {
	original := testutil.NewFixture(t)
	revised := testutil.NewFixtureFrom(t, testutil.Revise(testutil.Series(), "gdp", func(i int, v float64) float64 {
		return 3*v + 0.1*float64(i%3)
	}))
	run := func(f *testutil.Fixture, store cache.Store) *evaluate.Outcome {
		ds, ix := prepare(t, f, nil)
		ev, err := evaluate.New(ds, ix, selector(t, selection.PolicyLasso), cache.New(store, nil), evaluate.Options{})
		require.NoError(t, err)
		out, err := ev.Run(context.Background())
		require.NoError(t, err)
		return out
	}

	shared := cache.NewMemoryStore()
	a := run(original, shared)
	b := run(revised, shared)
	fresh := run(revised, cache.NewMemoryStore())

	assert.Positive(t, b.Cache.Misses)
	assert.Equal(t, fresh.Cache.Hits, b.Cache.Hits, "entries of the original data must not serve the revision")
	assert.Equal(t, fresh.Cache.Misses, b.Cache.Misses)

	require.Equal(t, fresh.Table.Len(), b.Table.Len())
	changed := map[domain.Quarter]bool{}
	for _, r := range fresh.Table.Records() {
		got, ok := b.Table.Get(r.Key, r.Quarter)
		require.True(t, ok)
		assert.Equal(t, r.Selected, got.Selected, "%s %s", r.Key, r.Quarter)
		assert.InDelta(t, r.YPred, got.YPred, 1e-12, "%s %s", r.Key, r.Quarter)
		assert.InDelta(t, r.YPredAR4, got.YPredAR4, 1e-12, "%s %s", r.Key, r.Quarter)

		old, ok := a.Table.Get(r.Key, r.Quarter)
		require.True(t, ok)
		if math.Abs(old.YPredAR4-got.YPredAR4) > 1e-9 {
			changed[r.Quarter] = true
		}
	}
	assert.Len(t, changed, 7, "every quarter forecasts the revised history")
}

type emptySelector struct{}

func (emptySelector) Policy() selection.Policy { return selection.PolicyLasso }

func (emptySelector) Select(context.Context, selection.Input) (selection.Result, error) {
	return selection.Result{}, nil
}

func TestRunEmptySelectionFallsBack(t *testing.T) {
	f := testutil.NewFixture(t)
	ds, ix := prepare(t, f, nil)
	rec := &recorder{}
	logger, logs := testutil.NewLogger(t)

	ev, err := evaluate.New(ds, ix, emptySelector{}, nil, evaluate.Options{Recorder: rec, Logger: logger})
	require.NoError(t, err)
	out, err := ev.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7*3*2*2, out.Table.Len())

	ref, err := evaluate.New(ds, ix, selector(t, selection.PolicyNone), nil, evaluate.Options{})
	require.NoError(t, err)
	full, err := ref.Run(context.Background())
	require.NoError(t, err)

	for _, r := range out.Table.Records() {
		assert.False(t, math.IsNaN(r.YPred), "%s %s", r.Key, r.Quarter)
		assert.False(t, math.IsInf(r.YPred, 0), "%s %s", r.Key, r.Quarter)
		switch r.Key.Branch {
		case domain.BranchSelected:
			assert.True(t, r.Fallback, "%s %s", r.Key, r.Quarter)
			assert.Empty(t, r.Selected)
		case domain.BranchAll:
			assert.False(t, r.Fallback, "%s %s", r.Key, r.Quarter)
			ref, ok := full.Table.Get(r.Key, r.Quarter)
			require.True(t, ok)
			assert.InDelta(t, ref.YPred, r.YPred, 1e-12, "the all branch ignores the selector")
		}
	}
	assert.Equal(t, 7*3*2, rec.fallbacks["selected"])
	assert.Zero(t, rec.fallbacks["all"])
	assert.Positive(t, logs.Count("selection_fallback"))
}

func TestRunSkipsUnknownActualsInMSE(t *testing.T) {
	f := testutil.NewFixture(t)
	ds, ix := prepare(t, f, func(p *panel.Panel) *panel.Panel {
		col, _ := p.Column("gdp")
		col = append([]float64(nil), col...)
		col[len(col)-1] = math.NaN()
		out, err := p.Drop("gdp").WithColumns([]string{"gdp"}, [][]float64{col})
		require.NoError(t, err)
		return out
	})

	ev, err := evaluate.New(ds, ix, selector(t, selection.PolicyNone), nil, evaluate.Options{})
	require.NoError(t, err)
	out, err := ev.Run(context.Background())
	require.NoError(t, err)

	key := domain.ResultKey{Branch: domain.BranchAll, Criterion: domain.CriterionBIC, Weighting: domain.WeightingNone, Horizon: "p1"}
	series := out.Table.Series(key)
	require.Len(t, series, 7)
	last := series[len(series)-1]
	assert.False(t, last.HasActual())
	assert.False(t, math.IsNaN(last.YPred))
	assert.Equal(t, series[len(series)-2].MSE, last.MSE)
}

func TestNewValidates(t *testing.T) {
	f := testutil.NewFixture(t)
	ds, ix := prepare(t, f, nil)

	_, err := evaluate.New(nil, ix, selector(t, selection.PolicyNone), nil, evaluate.Options{})
	assert.True(t, errors.Is(err, errors.ErrConfiguration))

	_, err = evaluate.New(ds, ix, selector(t, selection.PolicyNone), nil, evaluate.Options{Criteria: []domain.Criterion{"hqic"}})
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestRunHonoursCancellation(t *testing.T) {
	f := testutil.NewFixture(t)
	ds, ix := prepare(t, f, nil)
	ev, err := evaluate.New(ds, ix, selector(t, selection.PolicyNone), nil, evaluate.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ev.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
