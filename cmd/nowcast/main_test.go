package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowcast/internal/shared/testutil"
	"nowcast/pkg/contracts"
)

const configTemplate = `run:
  start_date: "2019-01-01"
  end_date: "2021-12-31"
  nowcast_start: "2020-03-31"
  lags: %d
selection:
  policy: none
cache:
  backend: memory
paths:
  input_dir: %s
  results_dir: %s
  cache_dir: %s
  logs_dir: %s
logging:
  level: warn
  output: console
telemetry:
  trace_exporter: none
  metric_exporter: none
`

type workspace struct {
	dir, config, input, results string
}

func newWorkspace(t *testing.T, lags int) *workspace {
	t.Helper()
	dir := t.TempDir()
	w := &workspace{
		dir:     dir,
		config:  filepath.Join(dir, "nowcast.yaml"),
		input:   filepath.Join(dir, "input"),
		results: filepath.Join(dir, "results"),
	}
	yaml := fmt.Sprintf(configTemplate, lags, w.input, w.results, filepath.Join(dir, "cache"), filepath.Join(dir, "logs"))
	require.NoError(t, os.WriteFile(w.config, []byte(yaml), 0o644))
	writeInputs(t, w.input)
	return w
}

func writeInputs(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	meta := [][]string{{"name", "frequency", "release_lag_days", "transform_code", "category"}}
	obs := [][]string{{"date", "indicator", "value"}}
	for _, s := range testutil.Series() {
		meta = append(meta, []string{s.Meta.Name, string(s.Meta.Frequency),
			strconv.Itoa(s.Meta.ReleaseLagDays), strconv.Itoa(s.Meta.TransformCode), s.Meta.Category})
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

func TestRunVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-version"}, &stdout, &stderr)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout.String(), contracts.GetVersionString())
}

func TestRunUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-bogus"}},
		{"missing config file", []string{"-config", filepath.Join(t.TempDir(), "absent.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 2, run(context.Background(), tt.args, &stdout, &stderr))
			assert.Empty(t, stdout.String())
		})
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	w := newWorkspace(t, 2)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", w.config}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Empty(t, stdout.String())
	assert.NoDirExists(t, w.results)
}

func TestRunWritesBundle(t *testing.T) {
	w := newWorkspace(t, 4)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", w.config, "-xlsx"}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var summary struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Bundle   string `json:"bundle"`
		Workbook string `json:"workbook"`
		CSV      string `json:"csv"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.Equal(t, "completed", summary.Status)
	assert.Equal(t, filepath.Join(w.results, summary.ID+".json"), summary.Bundle)
	assert.FileExists(t, summary.Bundle)
	assert.FileExists(t, summary.Workbook)
	assert.Empty(t, summary.CSV)
}

func TestRunFailsOnMissingInput(t *testing.T) {
	w := newWorkspace(t, 4)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", w.config, "-input", filepath.Join(w.dir, "nothing")}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	var summary struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.Equal(t, "failed", summary.Status)
	assert.NotEmpty(t, summary.Error)
}
