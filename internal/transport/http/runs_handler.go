package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"nowcast/internal/config"
	apierrors "nowcast/internal/errors"
	"nowcast/internal/services"
)

// RunsHandler serves persisted runs with RFC 7807 errors
type RunsHandler struct {
	service      ResultsServiceInterface
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(service ResultsServiceInterface, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *RunsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "runs_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the run routes
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.ListRuns)
	r.Route("/{id}", func(r chi.Router) {
		r.Use(h.RunCtx)
		r.Get("/", h.GetRun)
		r.Get("/records", h.GetRecords)
		r.Get("/summary", h.GetSummary)
	})
	return r
}

// RunCtx rejects run IDs that are not UUIDs
func (h *RunsHandler) RunCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, err := uuid.Parse(id); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.InvalidParameter("id", "run id must be a UUID"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ListRuns handles GET /api/v1/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.service.ListRuns(r.Context())
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   runs,
		"count":  len(runs),
	})
}

// GetRun handles GET /api/v1/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.service.GetRun(r.Context(), id)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   run,
	})
}

// GetRecords handles GET /api/v1/runs/{id}/records. The branch, criterion,
// weighting and horizon query parameters narrow the result; limit caps it.
func (h *RunsHandler) GetRecords(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()
	limit := config.DefaultRecordLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > config.DefaultRecordLimit {
			h.errorHandler.HandleError(w, r, apierrors.InvalidParameter("limit",
				fmt.Sprintf("limit must be an integer between 1 and %d", config.DefaultRecordLimit)))
			return
		}
		limit = n
	}
	query := services.RecordQuery{
		Branch:    q.Get("branch"),
		Criterion: q.Get("criterion"),
		Weighting: q.Get("weighting"),
		Horizon:   q.Get("horizon"),
	}
	recs, err := h.service.Records(r.Context(), id, query)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	total := len(recs)
	if total > limit {
		recs = recs[:limit]
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   recs,
		"count":  len(recs),
		"total":  total,
	})
}

// GetSummary handles GET /api/v1/runs/{id}/summary
func (h *RunsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := h.service.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "success",
		"data":   rows,
		"count":  len(rows),
	})
}

// fail maps service errors to API errors
func (h *RunsHandler) fail(w http.ResponseWriter, r *http.Request, id string, err error) {
	var fe *services.FilterError
	switch {
	case errors.Is(err, services.ErrRunNotFound):
		err = apierrors.RunNotFound(id)
	case errors.Is(err, services.ErrInvalidRunID):
		err = apierrors.InvalidParameter("id", "run id must be a UUID")
	case errors.As(err, &fe):
		err = apierrors.InvalidParameter(fe.Field, fe.Err.Error())
	case errors.Is(err, services.ErrResultsUnavailable):
		h.logger.ErrorContext(r.Context(), "results_unavailable", slog.String("error", err.Error()))
		err = apierrors.Unavailable("results directory cannot be read")
	default:
		h.logger.ErrorContext(r.Context(), "runs_request_failed",
			slog.String("run_id", id),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetReqID(r.Context())))
	}
	h.errorHandler.HandleError(w, r, err)
}
