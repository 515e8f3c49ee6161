package http

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowcast/internal/config"
	apierrors "nowcast/internal/errors"
	"nowcast/internal/exporter"
	"nowcast/internal/results"
	"nowcast/internal/services"
	"nowcast/pkg/contracts/domain"
)

type requestCounter struct {
	mu     sync.Mutex
	routes map[string]int
}

func (c *requestCounter) RecordHTTPRequest(_ context.Context, route string, status int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.routes == nil {
		c.routes = make(map[string]int)
	}
	c.routes[route]++
}

func (c *requestCounter) countPrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for route, v := range c.routes {
		if strings.HasPrefix(route, prefix) {
			n += v
		}
	}
	return n
}

type apiFixture struct {
	router   http.Handler
	bundle   *exporter.Bundle
	recorder *requestCounter
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	dir := t.TempDir()

	q2, err := domain.ParseQuarter("2020Q2")
	require.NoError(t, err)
	q3, err := domain.ParseQuarter("2020Q3")
	require.NoError(t, err)
	tbl := results.NewTable()
	for _, c := range []domain.Criterion{domain.CriterionBIC, domain.CriterionAIC} {
		key := domain.ResultKey{Branch: domain.BranchAll, Criterion: c, Weighting: domain.WeightingNone, Horizon: "p2"}
		require.NoError(t, tbl.Add(domain.ResultRecord{Quarter: q2, Key: key, YActual: 1, YPred: 0.5, YPredAR4: 0}))
		require.NoError(t, tbl.Add(domain.ResultRecord{Quarter: q3, Key: key, YActual: math.NaN(), YPred: 0.75, YPredAR4: 0.25}))
		pooled := key
		pooled.Weighting = domain.WeightingAverage
		pooled.Horizon = domain.HorizonPooled
		require.NoError(t, tbl.Add(domain.ResultRecord{Quarter: q2, Key: pooled, YActual: 1, YPred: 0.5, YPredAR4: 0}))
	}
	cfg := config.Default()
	b := exporter.NewBundle(exporter.Parameters{Run: cfg.Run, Selection: cfg.Selection, CacheBackend: cfg.Cache.Backend}, tbl)
	_, err = exporter.WriteBundle(dir, b)
	require.NoError(t, err)

	rec := &requestCounter{}
	router := NewRouter(RouterOptions{
		Results:  services.NewResultsService(dir, nil),
		Health:   services.NewHealthService(dir, nil),
		Recorder: rec,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
	return &apiFixture{router: router, bundle: b, recorder: rec}
}

func (f *apiFixture) get(t *testing.T, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	if rec.Header().Get("Content-Type") != "" && rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestListRuns(t *testing.T) {
	f := newAPIFixture(t)
	rec, body := f.get(t, "/api/v1/runs")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.EqualValues(t, 1, body["count"])
	runs := body["data"].([]interface{})
	run := runs[0].(map[string]interface{})
	assert.Equal(t, f.bundle.RunID.String(), run["run_id"])
	assert.EqualValues(t, 4, run["records"])
	assert.EqualValues(t, 2, run["pooled"])
}

func TestGetRun(t *testing.T) {
	f := newAPIFixture(t)
	rec, body := f.get(t, "/api/v1/runs/"+f.bundle.RunID.String())

	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, f.bundle.RunID.String(), data["run_id"])
	assert.Equal(t, "gdp", data["y_var"])
	params := data["parameters"].(map[string]interface{})
	assert.Contains(t, params, "run")
	assert.Contains(t, params, "selection")
}

func TestGetRunErrors(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		path   string
		status int
		ptype  string
	}{
		{"unknown run", "/api/v1/runs/" + uuid.NewString(), http.StatusNotFound, apierrors.TypeRunNotFound},
		{"malformed id", "/api/v1/runs/latest", http.StatusBadRequest, apierrors.TypeValidation},
		{"malformed id records", "/api/v1/runs/latest/records", http.StatusBadRequest, apierrors.TypeValidation},
		{"unknown route", "/api/v1/nothing", http.StatusNotFound, apierrors.TypeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.get(t, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.ptype, body["type"])
			assert.EqualValues(t, tt.status, body["status"])
			assert.NotEmpty(t, body["trace_id"])
		})
	}
}

func TestGetRecords(t *testing.T) {
	f := newAPIFixture(t)
	base := "/api/v1/runs/" + f.bundle.RunID.String() + "/records"

	tests := []struct {
		query string
		count int
	}{
		{"", 6},
		{"?criterion=aic", 3},
		{"?horizon=pooled", 2},
		{"?horizon=p2&criterion=bic", 2},
		{"?branch=selected", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec, body := f.get(t, base+tt.query)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.EqualValues(t, tt.count, body["count"])
			assert.Len(t, body["data"], tt.count)
		})
	}
}

func TestGetRecordsEncodesMissingActualAsNull(t *testing.T) {
	f := newAPIFixture(t)
	rec, body := f.get(t, "/api/v1/runs/"+f.bundle.RunID.String()+"/records?criterion=bic&horizon=p2")
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["data"].([]interface{})
	require.Len(t, data, 2)
	last := data[1].(map[string]interface{})
	v, ok := last["y_actual"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestGetRecordsLimit(t *testing.T) {
	f := newAPIFixture(t)
	base := "/api/v1/runs/" + f.bundle.RunID.String() + "/records"

	rec, body := f.get(t, base+"?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])
	assert.EqualValues(t, 6, body["total"])

	for _, bad := range []string{"0", "-1", "many", "10001"} {
		rec, body = f.get(t, base+"?limit="+bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		details := body["details"].(map[string]interface{})
		assert.Equal(t, "limit", details["field"])
	}
}

func TestGetRecordsRejectsUnknownFilter(t *testing.T) {
	f := newAPIFixture(t)
	rec, body := f.get(t, "/api/v1/runs/"+f.bundle.RunID.String()+"/records?weighting=median")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, apierrors.TypeValidation, body["type"])
	details := body["details"].(map[string]interface{})
	assert.Equal(t, "weighting", details["field"])
}

func TestGetSummary(t *testing.T) {
	f := newAPIFixture(t)
	rec, body := f.get(t, "/api/v1/runs/"+f.bundle.RunID.String()+"/summary")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["count"])
	for _, row := range body["data"].([]interface{}) {
		r := row.(map[string]interface{})
		assert.EqualValues(t, 1, r["n"])
		assert.InDelta(t, 0.5, r["rmse"], 1e-12)
		assert.InDelta(t, 0.5, r["relative_rmse"], 1e-12)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newAPIFixture(t)

	rec, body := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", body["status"])

	rec, body = f.get(t, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", body["status"])

	rec, body = f.get(t, "/api/v1/version")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "v1", body["api_version"])

	rec, _ = f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")
}

func TestRequestsRecordedByRoute(t *testing.T) {
	f := newAPIFixture(t)
	f.get(t, "/api/v1/runs/"+f.bundle.RunID.String())
	f.get(t, "/api/v1/runs/"+uuid.NewString())
	f.get(t, "/metrics")

	assert.Equal(t, 2, f.recorder.countPrefix("/api/v1/runs/{id}"))
	assert.Zero(t, f.recorder.countPrefix("/metrics"))
}

func TestSecurityHeadersApplied(t *testing.T) {
	f := newAPIFixture(t)
	rec, _ := f.get(t, "/api/v1/runs")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestListRunsUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	router := NewRouter(RouterOptions{
		Results: services.NewResultsService(path, nil),
		Health:  services.NewHealthService(path, nil),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apierrors.TypeServiceDown, body["type"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
