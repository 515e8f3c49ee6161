package operations

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"nowcast/internal/config"
	"nowcast/internal/errors"
	"nowcast/internal/infrastructure"
)

// TracerName is the instrumentation scope of pipeline spans
const TracerName = "nowcast.pipeline"

// PipelineTracer opens one span per run and one child span per stage
type PipelineTracer struct {
	tracer trace.Tracer
}

// NewPipelineTracer uses tp, or the global provider when tp is nil
func NewPipelineTracer(tp trace.TracerProvider) *PipelineTracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &PipelineTracer{tracer: tp.Tracer(TracerName)}
}

// TraceRun starts the span of a whole run
func (pt *PipelineTracer) TraceRun(ctx context.Context, runID string, cfg *config.Config) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("run.id", runID)}
	if cfg != nil {
		attrs = append(attrs,
			attribute.String("run.y_var", cfg.Run.YVar),
			attribute.String("run.mapping", cfg.Run.Mapping),
			attribute.String("run.horizons", strings.Join(cfg.Run.Horizons, ",")),
			attribute.String("run.start_date", cfg.Run.Start.String()),
			attribute.String("run.nowcast_start", cfg.Run.NowcastStart.String()),
			attribute.String("run.end_date", cfg.Run.End.String()),
			attribute.String("selection.policy", cfg.Selection.Policy),
			attribute.String("cache.backend", cfg.Cache.Backend),
		)
	}
	return pt.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
}

// TraceStage starts the span of one stage
func (pt *PipelineTracer) TraceStage(ctx context.Context, runID string, stage Stage) (context.Context, trace.Span) {
	return pt.tracer.Start(ctx, "pipeline.stage."+stage.ID(),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("stage.id", stage.ID()),
			attribute.String("stage.name", stage.Name()),
		))
}

// RecordStageCompletion ends a stage span with its outcome
func (pt *PipelineTracer) RecordStageCompletion(ctx context.Context, span trace.Span, duration time.Duration, err error) {
	span.SetAttributes(attribute.Float64("stage.duration_seconds", duration.Seconds()))
	finish(ctx, span, err, "stage completed")
}

// RecordRunCompletion ends a run span with its outcome
func (pt *PipelineTracer) RecordRunCompletion(ctx context.Context, span trace.Span, state *RunState, err error) {
	span.SetAttributes(
		attribute.String("run.status", string(state.GetStatus())),
		attribute.Float64("run.duration_seconds", state.Duration().Seconds()),
	)
	if ev := state.Artifacts.Evaluation; ev != nil {
		span.SetAttributes(
			attribute.Int("run.cells", len(ev.Cells)),
			attribute.Int("run.fallbacks", ev.Fallbacks),
			attribute.Int64("run.cache_hits", ev.Cache.Hits),
			attribute.Int64("run.cache_misses", ev.Cache.Misses),
		)
	}
	finish(ctx, span, err, "run completed")
}

func finish(ctx context.Context, span trace.Span, err error, ok string) {
	defer span.End()
	if err == nil {
		span.SetStatus(codes.Ok, ok)
		return
	}
	span.SetAttributes(attribute.String("error.type", string(errors.GetErrorType(err))))
	infrastructure.RecordError(trace.ContextWithSpan(ctx, span), err)
	span.SetStatus(codes.Error, err.Error())
}
