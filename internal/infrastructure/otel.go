package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"

	"nowcast/internal/config"
)

// MeterName is the instrumentation scope of every instrument and tracer
const MeterName = "nowcast"

// OTelProviders holds the OpenTelemetry providers
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel installs the global tracer and meter providers selected by
// cfg. Disabled exporters leave no-op implementations in place.
func InitializeOTel(cfg config.TelemetryConfig, logger *slog.Logger) (*OTelProviders, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ctx := context.Background()

	logger.InfoContext(ctx, "Initializing OpenTelemetry",
		slog.String("service", cfg.ServiceName),
		slog.String("environment", cfg.Environment),
		slog.String("trace_exporter", cfg.TraceExporter),
		slog.String("metric_exporter", cfg.MetricExporter))

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(config.AppVersion),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", uuid.New().String()),
	)

	providers := &OTelProviders{
		Logger: logger,
		Tracer: otel.Tracer(MeterName),
		Meter:  noop.NewMeterProvider().Meter(MeterName),
	}
	if err := initializeTracing(cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if err := initializeMetrics(cfg, res, providers); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return providers, nil
}

func initializeTracing(cfg config.TelemetryConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.TraceExporter {
	case "none", "":
		return nil
	case "stdout":
	default:
		return fmt.Errorf("unsupported trace exporter: %s", cfg.TraceExporter)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRatio)),
	)
	providers.TracerProvider = tp
	providers.Tracer = tp.Tracer(MeterName, trace.WithInstrumentationVersion(config.AppVersion))
	otel.SetTracerProvider(tp)
	return nil
}

func initializeMetrics(cfg config.TelemetryConfig, res *resource.Resource, providers *OTelProviders) error {
	switch cfg.MetricExporter {
	case "none", "":
		return nil
	case "prometheus":
	default:
		return fmt.Errorf("unsupported metric exporter: %s", cfg.MetricExporter)
	}

	exporter, err := prometheus.New()
	if err != nil {
		return fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	providers.PrometheusHTTP = promhttp.Handler()
	providers.MeterProvider = mp
	providers.Meter = mp.Meter(MeterName, metric.WithInstrumentationVersion(config.AppVersion))
	otel.SetMeterProvider(mp)
	return nil
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error
	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

// PipelineMetrics are the instruments of a nowcast run. It records cache
// lookups, scored cells, selection fallbacks and stage executions.
type PipelineMetrics struct {
	stageExecutions metric.Int64Counter
	stageDuration   metric.Float64Histogram
	cellsScored     metric.Int64Counter
	cacheEvents     metric.Int64Counter
	fallbacks       metric.Int64Counter
	httpRequests    metric.Int64Counter
}

// NewPipelineMetrics creates the instruments on meter
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	var m PipelineMetrics
	var err error
	if m.stageExecutions, err = meter.Int64Counter("nowcast_stage_executions_total",
		metric.WithDescription("Pipeline stage executions by stage and status")); err != nil {
		return nil, err
	}
	if m.stageDuration, err = meter.Float64Histogram("nowcast_stage_duration_seconds",
		metric.WithDescription("Pipeline stage duration in seconds"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.cellsScored, err = meter.Int64Counter("nowcast_cells_scored_total",
		metric.WithDescription("Evaluated (quarter, horizon) cells")); err != nil {
		return nil, err
	}
	if m.cacheEvents, err = meter.Int64Counter("nowcast_cache_events_total",
		metric.WithDescription("Model cache lookups by namespace and outcome")); err != nil {
		return nil, err
	}
	if m.fallbacks, err = meter.Int64Counter("nowcast_selection_fallbacks_total",
		metric.WithDescription("Forecasts that fell back to the intercept-only model")); err != nil {
		return nil, err
	}
	if m.httpRequests, err = meter.Int64Counter("nowcast_http_requests_total",
		metric.WithDescription("Results API requests by route and status")); err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordStage counts one stage execution
func (m *PipelineMetrics) RecordStage(ctx context.Context, stage string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	attrs := metric.WithAttributes(attribute.String("stage", stage), attribute.String("status", status))
	m.stageExecutions.Add(ctx, 1, attrs)
	m.stageDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordCell counts one scored cell
func (m *PipelineMetrics) RecordCell(ctx context.Context, horizon string, baseline bool) {
	m.cellsScored.Add(ctx, 1, metric.WithAttributes(
		attribute.String("horizon", horizon),
		attribute.Bool("baseline", baseline)))
}

// RecordFallback counts one intercept-only forecast
func (m *PipelineMetrics) RecordFallback(ctx context.Context, branch string) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("branch", branch)))
}

// RecordCacheEvent counts one cache lookup
func (m *PipelineMetrics) RecordCacheEvent(ctx context.Context, namespace, outcome string) {
	m.cacheEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", namespace),
		attribute.String("outcome", outcome)))
}

// RecordHTTPRequest counts one API request
func (m *PipelineMetrics) RecordHTTPRequest(ctx context.Context, route string, status int) {
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status)))
}

// RecordError marks the span of ctx as failed
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err == nil || !span.IsRecording() {
		return
	}
	span.RecordError(err)
}
