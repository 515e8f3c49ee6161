package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/trace"

	"nowcast/internal/config"
	apierrors "nowcast/internal/errors"
	nowmw "nowcast/internal/middleware"
)

// RouterOptions wires the services and observability of the results API
type RouterOptions struct {
	Results ResultsServiceInterface
	Health  HealthServiceInterface
	Logger  *slog.Logger

	// Recorder counts requests per route; nil disables counting
	Recorder apierrors.RequestRecorder
	// Metrics is served on /metrics when set
	Metrics http.Handler
	Tracer  trace.Tracer

	// RequestTimeout defaults to config.DefaultHTTPTimeout
	RequestTimeout time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
	IncludeStack   bool
}

// NewRouter builds the results API:
//
//	GET /healthz
//	GET /readyz
//	GET /metrics
//	GET /api/v1/version
//	GET /api/v1/runs
//	GET /api/v1/runs/{id}
//	GET /api/v1/runs/{id}/records
//	GET /api/v1/runs/{id}/summary
func NewRouter(opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errorHandler := apierrors.NewErrorHandler(logger, opts.IncludeStack)
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Group(func(r chi.Router) {
		r.Use(nowmw.Tracing(opts.Tracer))
		r.Use(apierrors.NewErrorMiddleware(errorHandler, logger, opts.Recorder).Handler)
		r.Use(nowmw.SecurityHeaders)
		r.Use(middleware.Timeout(timeout))
		if opts.RateLimitRPS > 0 {
			r.Use(nowmw.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst, logger).Handler)
		}

		r.NotFound(errorHandler.NotFound)
		r.MethodNotAllowed(errorHandler.MethodNotAllowed)

		health := NewHealthHandler(opts.Health, logger)
		r.Get("/healthz", health.LivenessCheck)
		r.Get("/readyz", health.ReadinessCheck)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(render.SetContentType(render.ContentTypeJSON))
			r.NotFound(errorHandler.NotFound)
			r.MethodNotAllowed(errorHandler.MethodNotAllowed)
			r.Get("/version", health.Version)
			r.Mount("/runs", NewRunsHandler(opts.Results, logger, errorHandler).Routes())
		})
	})

	// Prometheus scrapes stay outside the request logging group
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	return r
}
