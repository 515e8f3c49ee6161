package errors_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowcast/internal/errors"
	"nowcast/internal/shared/testutil"
)

type requestRecorder struct {
	mu     sync.Mutex
	routes []string
	codes  []int
}

func (r *requestRecorder) RecordHTTPRequest(_ context.Context, route string, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
	r.codes = append(r.codes, status)
}

func newRouter(t *testing.T) (http.Handler, *testutil.LogCapture, *requestRecorder) {
	t.Helper()
	logger, logs := testutil.NewLogger(t)
	rec := &requestRecorder{}
	h := errors.NewErrorHandler(logger, false)

	r := chi.NewRouter()
	r.Use(errors.NewErrorMiddleware(h, logger, rec).Handler)
	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "missing" {
			h.HandleError(w, r, errors.RunNotFound("missing"))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/panic", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
	r.Get("/quiet", func(http.ResponseWriter, *http.Request) {})
	return r, logs, rec
}

func TestErrorMiddleware(t *testing.T) {
	router, logs, rec := newRouter(t)

	for _, path := range []string{"/runs/a", "/runs/missing", "/quiet"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Len(t, rec.routes, 3)
	assert.Equal(t, []string{"/runs/{id}", "/runs/{id}", "/quiet"}, rec.routes, "metrics use the route pattern")
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound, http.StatusOK}, rec.codes)

	entries := logs.Find("http_request")
	require.Len(t, entries, 3)
	assert.Equal(t, slog.LevelInfo, entries[0].Level)
	assert.Equal(t, slog.LevelWarn, entries[1].Level)
	assert.Equal(t, "/runs/{id}", entries[1].Attrs["route"])
}

func TestErrorMiddlewareRecoversPanics(t *testing.T) {
	router, logs, rec := newRouter(t)
	w := httptest.NewRecorder()

	assert.NotPanics(t, func() {
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, errors.TypeInternal, decodeProblem(t, w)["type"])
	require.Len(t, rec.codes, 1)
	assert.Equal(t, http.StatusInternalServerError, rec.codes[0])
	testutil.AssertLogged(t, logs, slog.LevelError, "panic_recovered")
	testutil.AssertLogged(t, logs, slog.LevelError, "http_request")
}

func TestRecoveryMiddleware(t *testing.T) {
	h := errors.NewErrorHandler(nil, false)
	handler := errors.RecoveryMiddleware(h)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
