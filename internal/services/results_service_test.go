package services_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowcast/internal/config"
	"nowcast/internal/exporter"
	"nowcast/internal/results"
	"nowcast/internal/services"
	"nowcast/pkg/contracts/domain"
)

func writeRun(t *testing.T, dir string) *exporter.Bundle {
	t.Helper()
	q2, err := domain.ParseQuarter("2020Q2")
	require.NoError(t, err)
	q3, err := domain.ParseQuarter("2020Q3")
	require.NoError(t, err)

	key := domain.ResultKey{Branch: domain.BranchSelected, Criterion: domain.CriterionBIC, Weighting: domain.WeightingNone, Horizon: "p1"}
	pooled := key
	pooled.Weighting = domain.WeightingMSE
	pooled.Horizon = domain.HorizonPooled

	tbl := results.NewTable()
	require.NoError(t, tbl.Add(domain.ResultRecord{Quarter: q2, Key: key, YActual: 2, YPred: 1.5, YPredAR4: 1}))
	require.NoError(t, tbl.Add(domain.ResultRecord{Quarter: q3, Key: key, YActual: math.NaN(), YPred: 2, YPredAR4: math.NaN()}))
	require.NoError(t, tbl.Add(domain.ResultRecord{Quarter: q2, Key: pooled, YActual: 2, YPred: 1.75, YPredAR4: 1}))

	cfg := config.Default()
	b := exporter.NewBundle(exporter.Parameters{Run: cfg.Run, Selection: cfg.Selection, CacheBackend: cfg.Cache.Backend}, tbl)
	b.Fallbacks = 2
	_, err = exporter.WriteBundle(dir, b)
	require.NoError(t, err)
	return b
}

func TestResultsServiceListRuns(t *testing.T) {
	dir := t.TempDir()
	svc := services.NewResultsService(dir, nil)

	runs, err := svc.ListRuns(context.Background())
	require.NoError(t, err)
	assert.Empty(t, runs)

	b := writeRun(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0o644))

	runs, err = svc.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, b.RunID, runs[0].RunID)
	assert.Equal(t, 2, runs[0].Records)
	assert.Equal(t, 1, runs[0].Pooled)
}

func TestResultsServiceGetRun(t *testing.T) {
	dir := t.TempDir()
	b := writeRun(t, dir)
	svc := services.NewResultsService(dir, nil)

	detail, err := svc.GetRun(context.Background(), b.RunID.String())
	require.NoError(t, err)
	assert.Equal(t, b.RunID, detail.RunID)
	assert.Equal(t, "gdp", detail.YVar)
	assert.Equal(t, "gdp", detail.Parameters.Run.YVar)
	assert.Equal(t, 2, detail.Fallbacks)

	_, err = svc.GetRun(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, services.ErrRunNotFound)

	_, err = svc.GetRun(context.Background(), "latest")
	assert.ErrorIs(t, err, services.ErrInvalidRunID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.GetRun(ctx, b.RunID.String())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResultsServiceRecords(t *testing.T) {
	dir := t.TempDir()
	b := writeRun(t, dir)
	svc := services.NewResultsService(dir, nil)
	id := b.RunID.String()

	tests := []struct {
		name  string
		query services.RecordQuery
		want  int
	}{
		{"all", services.RecordQuery{}, 3},
		{"pooled", services.RecordQuery{Horizon: "pooled"}, 1},
		{"horizon alias", services.RecordQuery{Horizon: "h0"}, 2},
		{"weighting", services.RecordQuery{Weighting: "periods_mseweight"}, 1},
		{"no match", services.RecordQuery{Criterion: "aic"}, 0},
		{"combined", services.RecordQuery{Branch: "selected", Criterion: "bic", Weighting: "none"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := svc.Records(context.Background(), id, tt.query)
			require.NoError(t, err)
			assert.NotNil(t, recs)
			assert.Len(t, recs, tt.want)
		})
	}
}

func TestResultsServiceRejectsFilters(t *testing.T) {
	dir := t.TempDir()
	b := writeRun(t, dir)
	svc := services.NewResultsService(dir, nil)

	tests := []struct {
		query services.RecordQuery
		field string
	}{
		{services.RecordQuery{Branch: "some"}, "branch"},
		{services.RecordQuery{Criterion: "hqic"}, "criterion"},
		{services.RecordQuery{Weighting: "median"}, "weighting"},
		{services.RecordQuery{Horizon: "q3"}, "horizon"},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			_, err := svc.Records(context.Background(), b.RunID.String(), tt.query)
			var fe *services.FilterError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestResultsServiceSummary(t *testing.T) {
	dir := t.TempDir()
	b := writeRun(t, dir)
	svc := services.NewResultsService(dir, nil)

	rows, err := svc.Summary(context.Background(), b.RunID.String())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, 1, row.N)
		assert.InDelta(t, 1.0, row.RMSEAR4, 1e-12)
	}
}

func TestResultsServiceUnreadableDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results")
	require.NoError(t, os.WriteFile(path, []byte("not a directory"), 0o644))
	svc := services.NewResultsService(path, nil)

	_, err := svc.ListRuns(context.Background())
	assert.ErrorIs(t, err, services.ErrResultsUnavailable)
}
