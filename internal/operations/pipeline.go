package operations

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"nowcast/internal/cache"
	"nowcast/internal/config"
	"nowcast/internal/evaluate"
	"nowcast/internal/infrastructure"
	"nowcast/pkg/contracts/domain"
)

// Recorder receives every metric event of a run
type Recorder interface {
	StageRecorder
	evaluate.Recorder
	cache.Recorder
}

// Options configure a Pipeline. Zero values select defaults.
type Options struct {
	Logger *slog.Logger
	// Series replace the input directory when non-nil
	Series []domain.IndicatorSeries
	// Store replaces the configured cache backend when set; the pipeline
	// never closes it
	Store          cache.Store
	Recorder       Recorder
	TracerProvider trace.TracerProvider
	Workbook       bool
	CSV            bool
	Timeouts       map[string]time.Duration
}

// Pipeline runs the full evaluation for a configuration
type Pipeline struct {
	opts   Options
	logger *slog.Logger
	tracer *PipelineTracer
}

// NewPipeline creates a pipeline
func NewPipeline(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		opts:   opts,
		logger: logger,
		tracer: NewPipelineTracer(opts.TracerProvider),
	}
}

// Registry registers the stages of one run over mc
func (p *Pipeline) Registry(runID uuid.UUID, mc *cache.ModelCache) (*Registry, error) {
	var evalRecorder evaluate.Recorder
	if p.opts.Recorder != nil {
		evalRecorder = p.opts.Recorder
	}
	r := NewRegistry()
	for _, s := range []Stage{
		NewIngestStage(p.opts.Series, p.logger),
		NewCalendarStage(p.logger),
		NewPanelStage(p.logger),
		NewStationarityStage(p.logger),
		NewSampleStage(p.logger),
		NewEvaluateStage(mc, evalRecorder, p.logger),
		NewAggregateStage(p.logger),
		NewPersistStage(runID, ExportOptions{Workbook: p.opts.Workbook, CSV: p.opts.CSV}, p.logger),
	} {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Run validates cfg and executes every stage. The returned state is
// non-nil whenever the run started, including on failure.
func (p *Pipeline) Run(ctx context.Context, cfg *config.Config) (*RunState, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := p.opts.Store
	if store == nil {
		opened, err := cache.Open(ctx, cacheOptions(cfg.Cache))
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := opened.Close(); err != nil {
				p.logger.Warn("cache_close_failed", slog.String("error", err.Error()))
			}
		}()
		store = opened
	}
	mc := cache.New(store, p.logger)
	if p.opts.Recorder != nil {
		mc = mc.WithRecorder(p.opts.Recorder)
	}

	runID := uuid.New()
	ctx = infrastructure.WithRunID(ctx, runID.String())
	registry, err := p.Registry(runID, mc)
	if err != nil {
		return nil, err
	}
	mopts := ManagerOptions{
		Logger:   p.logger,
		Tracer:   p.tracer,
		Timeouts: p.opts.Timeouts,
	}
	if p.opts.Recorder != nil {
		mopts.Recorder = p.opts.Recorder
	}
	state := NewRunState(runID.String(), cfg)
	_, err = NewManager(registry, mopts).Execute(ctx, state)
	return state, err
}

func cacheOptions(c config.CacheConfig) cache.Options {
	dsn := c.DSN
	if dsn == "" && cache.Backend(c.Backend) == cache.BackendSQLite {
		dsn = filepath.Join(c.Dir, "cache.db")
	}
	return cache.Options{
		Backend:     cache.Backend(c.Backend),
		Dir:         c.Dir,
		DSN:         dsn,
		RedisAddr:   c.RedisAddr,
		RedisDB:     c.RedisDB,
		RedisPrefix: c.RedisPrefix,
	}
}
