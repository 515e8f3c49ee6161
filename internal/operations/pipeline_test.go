package operations_test

import (
	"context"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowcast/internal/cache"
	"nowcast/internal/config"
	"nowcast/internal/errors"
	"nowcast/internal/exporter"
	"nowcast/internal/operations"
	"nowcast/internal/panel"
	"nowcast/internal/shared/testutil"
	"nowcast/pkg/contracts/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Run.Start = config.NewDate(testutil.Start)
	cfg.Run.NowcastStart = config.NewDate(testutil.NowcastStart)
	cfg.Run.End = config.NewDate(testutil.End)
	cfg.Selection.Policy = "none"
	cfg.Cache.Backend = "memory"
	cfg.Paths.InputDir = filepath.Join(dir, "input")
	cfg.Paths.ResultsDir = filepath.Join(dir, "results")
	cfg.Paths.CacheDir = filepath.Join(dir, "cache")
	cfg.Paths.LogsDir = filepath.Join(dir, "logs")
	cfg.Cache.Dir = cfg.Paths.CacheDir
	return cfg
}

// writeInputs stores series as metadata.csv plus one long-format
// observations file
func writeInputs(t *testing.T, dir string, series []domain.IndicatorSeries) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	meta := [][]string{{"name", "frequency", "release_lag_days", "transform_code", "category"}}
	obs := [][]string{{"date", "indicator", "value"}}
	for _, s := range series {
		meta = append(meta, []string{
			s.Meta.Name,
			string(s.Meta.Frequency),
			strconv.Itoa(s.Meta.ReleaseLagDays),
			strconv.Itoa(s.Meta.TransformCode),
			s.Meta.Category,
		})
		for _, o := range s.Observations {
			obs = append(obs, []string{o.Date.Format("2006-01-02"), s.Meta.Name, strconv.FormatFloat(o.Value, 'g', -1, 64)})
		}
	}
	for name, rows := range map[string][][]string{"metadata.csv": meta, "observations.csv": obs} {
		f, err := os.Create(filepath.Join(dir, name))
		require.NoError(t, err)
		require.NoError(t, csv.NewWriter(f).WriteAll(rows))
		require.NoError(t, f.Close())
	}
}

type metrics struct {
	stages, cells, cacheEvents int
}

func (m *metrics) RecordStage(context.Context, string, time.Duration, error) { m.stages++ }
func (m *metrics) RecordCell(context.Context, string, bool)                  { m.cells++ }
func (m *metrics) RecordFallback(context.Context, string)                    {}
func (m *metrics) RecordCacheEvent(context.Context, string, string)          { m.cacheEvents++ }

func TestPipelineRun(t *testing.T) {
	cfg := testConfig(t)
	logger, logs := testutil.NewLogger(t)
	rec := &metrics{}
	p := operations.NewPipeline(operations.Options{
		Logger:   logger,
		Series:   testutil.Series(),
		Store:    cache.NewMemoryStore(),
		Recorder: rec,
		Workbook: true,
		CSV:      true,
	})

	state, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, operations.RunStatusCompleted, state.GetStatus())
	assert.Len(t, state.StagesWithStatus(operations.StageStatusCompleted), 8)
	assert.Equal(t, 8, rec.stages)
	assert.Equal(t, 7*3, rec.cells)
	assert.Positive(t, rec.cacheEvents)

	a := state.Artifacts
	require.NotNil(t, a.Calendar)
	assert.Equal(t, "periods_3", a.Calendar.Mapping().Name)
	require.NotNil(t, a.Evaluation)
	assert.Equal(t, 7*3*2*2, a.Evaluation.Table.Len())

	// pooled series: 2 branches x 2 criteria x 2 weightings x 7 quarters
	require.NotNil(t, a.Results)
	assert.Equal(t, 7*3*2*2+2*2*2*7, a.Results.Table.Len())
	assert.NotEmpty(t, a.Results.Summary)

	require.NotNil(t, a.Persisted)
	b, err := exporter.ReadBundle(a.Persisted.BundlePath)
	require.NoError(t, err)
	assert.Equal(t, state.ID, b.RunID.String())
	assert.Len(t, b.Records, 7*3*2*2)
	assert.Len(t, b.Pooled, 2*2*2*7)
	assert.NotEmpty(t, b.CalendarFingerprint)
	require.NotNil(t, b.Panel)
	require.NotNil(t, b.Stationarity)
	assert.Equal(t, "none", b.Parameters.Selection.Policy)

	assert.FileExists(t, a.Persisted.WorkbookPath)
	assert.FileExists(t, a.Persisted.CSVPath)
	assert.Equal(t, cfg.Paths.WorkbookPath(state.ID), a.Persisted.WorkbookPath)

	assert.Equal(t, 8, logs.Count("stage_complete"))
	assert.Equal(t, 1, logs.Count("run_complete"))
}

func missingIP(t *testing.T, stages *panel.Stages) int {
	t.Helper()
	for _, df := range stages.Imputed {
		if col, ok := df.Column("ip"); ok {
			n := 0
			for _, v := range col {
				if math.IsNaN(v) {
					n++
				}
			}
			return n
		}
	}
	t.Fatal("no ip column in the imputed panels")
	return 0
}

func TestPipelineRunWithMissingReleases(t *testing.T) {
	var quarters []domain.Quarter
	for q := (domain.Quarter{Year: 2020, Q: 2}); !testutil.LastQuarter.Before(q); q = q.Add(1) {
		quarters = append(quarters, q)
	}
	require.Len(t, quarters, 7)

	holes := map[string]int{}
	for _, tc := range []struct {
		name   string
		impute bool
		method string
	}{
		{"raw", false, "linear"},
		{"linear", true, "linear"},
		{"mean", true, "mean"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Run.Impute = tc.impute
			cfg.Run.ImputeMethod = tc.method
			p := operations.NewPipeline(operations.Options{Series: testutil.SeriesWithGaps(), Store: cache.NewMemoryStore()})

			state, err := p.Run(context.Background(), cfg)
			require.NoError(t, err)
			assert.Equal(t, operations.RunStatusCompleted, state.GetStatus())
			holes[tc.name] = missingIP(t, state.Artifacts.Panel)

			b := state.Artifacts.Persisted.Bundle
			require.Len(t, b.Records, 7*3*2*2)
			type group struct {
				branch    domain.Branch
				criterion domain.Criterion
			}
			cells := map[group]int{}
			seen := map[domain.Quarter]bool{}
			for _, r := range b.Records {
				cells[group{r.Key.Branch, r.Key.Criterion}]++
				seen[r.Quarter] = true
				assert.True(t, r.HasActual(), "%s %s", r.Key, r.Quarter)
				assert.False(t, math.IsNaN(r.YPred), "%s %s", r.Key, r.Quarter)
			}
			assert.Len(t, cells, 4)
			for g, n := range cells {
				assert.Equal(t, 7*3, n, "%v", g)
			}
			assert.Len(t, seen, 7)
			for _, q := range quarters {
				assert.True(t, seen[q], q.String())
			}
		})
	}

	assert.GreaterOrEqual(t, holes["raw"], len(testutil.GapMonths), "gaps reach the panel without imputation")
	assert.Equal(t, holes["raw"]-len(testutil.GapMonths), holes["linear"], "interior gaps are interpolated")
	assert.LessOrEqual(t, holes["mean"], holes["raw"]-len(testutil.GapMonths), "the expanding mean fills every gap after the first release")
}

func TestPipelineRunFromDirectory(t *testing.T) {
	cfg := testConfig(t)
	writeInputs(t, cfg.Paths.InputDir, testutil.Series())

	p := operations.NewPipeline(operations.Options{Store: cache.NewMemoryStore()})
	state, err := p.Run(context.Background(), cfg)
	require.NoError(t, err)

	in := state.Artifacts.Inputs
	require.NotNil(t, in)
	assert.Len(t, in.Files, 2)
	assert.NotEmpty(t, in.Fingerprint)
	assert.Len(t, in.Series, 3)
	assert.Equal(t, 7*3*2*2, state.Artifacts.Evaluation.Table.Len())

	b := state.Artifacts.Persisted.Bundle
	assert.Equal(t, in.Fingerprint, b.InputFingerprint)
	assert.Len(t, b.Inputs, 2)
	assert.Empty(t, state.Artifacts.Persisted.WorkbookPath)
}

func TestPipelineRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.Lags = 2
	p := operations.NewPipeline(operations.Options{Series: testutil.Series(), Store: cache.NewMemoryStore()})

	state, err := p.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, state, "nothing runs before the configuration is valid")
	assert.True(t, errors.Is(err, errors.ErrInsufficientLag))
	assert.NoDirExists(t, cfg.Paths.ResultsDir)
}

func TestPipelineMissingInputDirectory(t *testing.T) {
	cfg := testConfig(t)
	p := operations.NewPipeline(operations.Options{Store: cache.NewMemoryStore()})

	state, err := p.Run(context.Background(), cfg)
	require.Error(t, err)
	require.NotNil(t, state)
	assert.Equal(t, operations.RunStatusFailed, state.GetStatus())
	assert.Equal(t, operations.StageStatusFailed, state.GetStage(operations.StageIDIngest).GetStatus())
	assert.Equal(t, operations.StageStatusSkipped, state.GetStage(operations.StageIDPersist).GetStatus())
	assert.Nil(t, state.Artifacts.Persisted)
}

func TestPipelineUnknownTarget(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.YVar = "gnp"
	p := operations.NewPipeline(operations.Options{Series: testutil.Series(), Store: cache.NewMemoryStore()})

	state, err := p.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDataAlignment))
	assert.Equal(t, operations.StageStatusFailed, state.GetStage(operations.StageIDStationarity).GetStatus())
}
