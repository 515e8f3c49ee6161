package operations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"nowcast/internal/cache"
	"nowcast/internal/calendar"
	"nowcast/internal/errors"
	"nowcast/internal/evaluate"
	"nowcast/internal/exporter"
	"nowcast/internal/files"
	"nowcast/internal/panel"
	"nowcast/internal/results"
	"nowcast/internal/sample"
	"nowcast/internal/selection"
	"nowcast/internal/stationarity"
	"nowcast/pkg/contracts/domain"
)

func missing(stage, artifact string) error {
	return errors.NewConfigurationError(fmt.Sprintf("%s stage requires the %s artifact", stage, artifact), nil)
}

// IngestStage discovers and loads the indicator files of the input
// directory, or adopts preloaded series
type IngestStage struct {
	BaseStage
	series []domain.IndicatorSeries
	logger *slog.Logger
}

// NewIngestStage creates the ingest stage; series, when non-nil, replace
// the input directory
func NewIngestStage(series []domain.IndicatorSeries, logger *slog.Logger) *IngestStage {
	return &IngestStage{
		BaseStage: NewBaseStage(StageIDIngest, StageNameIngest),
		series:    series,
		logger:    logger,
	}
}

// Execute implements Stage
func (s *IngestStage) Execute(ctx context.Context, state *RunState) error {
	if s.series != nil {
		out := make([]domain.IndicatorSeries, len(s.series))
		for i, series := range s.series {
			out[i] = series.Clone()
		}
		state.Artifacts.Inputs = &Inputs{Series: out}
		return nil
	}
	dir := state.Config.Paths.InputDir
	inputs, err := files.Discover(dir)
	if err != nil {
		return fmt.Errorf("failed to read input directory %s: %w", dir, err)
	}
	series, err := panel.LoadInputs(ctx, dir, inputs, s.logger)
	if err != nil {
		return err
	}
	state.Artifacts.Inputs = &Inputs{
		Dir:         dir,
		Files:       inputs,
		Fingerprint: files.Fingerprint(inputs),
		Series:      series,
	}
	return nil
}

// CalendarStage builds the release calendar from the indicator metadata
type CalendarStage struct {
	BaseStage
	logger *slog.Logger
}

// NewCalendarStage creates the calendar stage
func NewCalendarStage(logger *slog.Logger) *CalendarStage {
	return &CalendarStage{
		BaseStage: NewBaseStage(StageIDCalendar, StageNameCalendar, StageIDIngest),
		logger:    logger,
	}
}

// Validate implements Stage
func (s *CalendarStage) Validate(state *RunState) error {
	if state.Artifacts.Inputs == nil {
		return missing(s.ID(), StageIDIngest)
	}
	return nil
}

// Execute implements Stage
func (s *CalendarStage) Execute(_ context.Context, state *RunState) error {
	mapping, err := calendar.Lookup(state.Config.Run.Mapping)
	if err != nil {
		return err
	}
	cal, err := calendar.Build(mapping, state.Artifacts.Inputs.Metas())
	if err != nil {
		return err
	}
	state.Artifacts.Calendar = cal
	s.logger.Info("calendar_built",
		slog.String("mapping", mapping.Name),
		slog.Int("indicators", len(cal.Indicators())),
		slog.String("fingerprint", cal.Fingerprint()))
	return nil
}

// PanelStage turns the series into the blocked quarterly panel
type PanelStage struct {
	BaseStage
	logger *slog.Logger
}

// NewPanelStage creates the panel stage
func NewPanelStage(logger *slog.Logger) *PanelStage {
	return &PanelStage{
		BaseStage: NewBaseStage(StageIDPanel, StageNamePanel, StageIDIngest, StageIDCalendar),
		logger:    logger,
	}
}

// Validate implements Stage
func (s *PanelStage) Validate(state *RunState) error {
	if state.Artifacts.Inputs == nil {
		return missing(s.ID(), StageIDIngest)
	}
	if state.Artifacts.Calendar == nil {
		return missing(s.ID(), StageIDCalendar)
	}
	return nil
}

// Execute implements Stage
func (s *PanelStage) Execute(_ context.Context, state *RunState) error {
	b, err := panel.NewBuilder(state.Artifacts.Inputs.Series, state.Artifacts.Calendar, s.logger)
	if err != nil {
		return err
	}
	stages, err := b.Build(state.Config.Run.Impute, state.Config.Run.ImputeMethod)
	if err != nil {
		return err
	}
	state.Artifacts.Panel = stages
	return nil
}

// StationarityStage tests and transforms the panel, then filters it to the
// run window
type StationarityStage struct {
	BaseStage
	logger *slog.Logger
}

// NewStationarityStage creates the stationarity stage
func NewStationarityStage(logger *slog.Logger) *StationarityStage {
	return &StationarityStage{
		BaseStage: NewBaseStage(StageIDStationarity, StageNameStationarity, StageIDPanel),
		logger:    logger,
	}
}

// Validate implements Stage
func (s *StationarityStage) Validate(state *RunState) error {
	if state.Artifacts.Panel == nil || state.Artifacts.Panel.Blocked == nil {
		return missing(s.ID(), StageIDPanel)
	}
	return nil
}

// Execute implements Stage
func (s *StationarityStage) Execute(_ context.Context, state *RunState) error {
	run := state.Config.Run
	end, err := stationarity.WindowEndPolicy(run.Stationarity.WindowEnd).End(run.NowcastStart.Time, run.End.Time)
	if err != nil {
		return err
	}
	codes := make(map[string]int)
	if state.Artifacts.Inputs != nil {
		for _, m := range state.Artifacts.Inputs.Metas() {
			codes[m.Name] = m.TransformCode
		}
	}
	tested, report, err := stationarity.ToStationarityTested(state.Artifacts.Panel.Blocked, stationarity.Options{
		TransformAll: run.Stationarity.TransformAll,
		Confidence:   run.Stationarity.Confidence,
		Start:        run.Start.Time,
		End:          end,
		Codes:        codes,
		Exclude:      []string{run.YVar},
		MaxLag:       run.Stationarity.MaxLag,
		Logger:       s.logger,
	})
	if err != nil {
		return err
	}
	filtered, err := stationarity.ToFiltered(tested, stationarity.FilterOptions{
		DropVars: run.DropVars,
		Lags:     run.Lags,
		YVar:     run.YVar,
		YVarLags: run.YVarLags,
		Start:    run.Start.Time,
		End:      run.End.Time,
	})
	if err != nil {
		return err
	}
	state.Artifacts.Stationarity = &StationarityOutput{Tested: tested, Report: report, Filtered: filtered}
	return nil
}

// SampleStage lags the panel, splits it and builds the visibility index
type SampleStage struct {
	BaseStage
	logger *slog.Logger
}

// NewSampleStage creates the sample stage
func NewSampleStage(logger *slog.Logger) *SampleStage {
	return &SampleStage{
		BaseStage: NewBaseStage(StageIDSample, StageNameSample, StageIDStationarity, StageIDCalendar),
		logger:    logger,
	}
}

// Validate implements Stage
func (s *SampleStage) Validate(state *RunState) error {
	if state.Artifacts.Stationarity == nil {
		return missing(s.ID(), StageIDStationarity)
	}
	return nil
}

// Execute implements Stage
func (s *SampleStage) Execute(_ context.Context, state *RunState) error {
	run := state.Config.Run
	kind, err := sample.ParseLagKind(run.LagKind)
	if err != nil {
		return err
	}
	lagged, err := sample.ToLaggedPanel(state.Artifacts.Stationarity.Filtered, kind, run.Lags, run.YVar, run.YVarLags)
	if err != nil {
		return err
	}
	views, err := sample.ToSampleViews(lagged, run.Start.Time, run.End.Time, run.NowcastStart.Time)
	if err != nil {
		return err
	}
	ds := &sample.Dataset{
		Panel:        lagged,
		YVar:         run.YVar,
		Calendar:     state.Artifacts.Calendar,
		Views:        views,
		Horizons:     run.ParsedHorizons(),
		WindowLength: run.WindowLength,
	}
	ix, err := sample.GetForwardRollingWindowIndex(ds, run.Start.Time, run.NowcastStart.Time, run.End.Time)
	if err != nil {
		return err
	}
	state.Artifacts.Sample = &SampleOutput{Dataset: ds, Index: ix}
	s.logger.Info("sample_prepared",
		slog.String("lag_kind", string(kind)),
		slog.Int("columns", len(lagged.Columns())),
		slog.Int("quarters", len(ix.Quarters())),
		slog.Int("cells", ix.Len()))
	return nil
}

// EvaluateStage scores every out-of-sample cell
type EvaluateStage struct {
	BaseStage
	cache    *cache.ModelCache
	recorder evaluate.Recorder
	logger   *slog.Logger
}

// NewEvaluateStage creates the evaluate stage over mc
func NewEvaluateStage(mc *cache.ModelCache, recorder evaluate.Recorder, logger *slog.Logger) *EvaluateStage {
	return &EvaluateStage{
		BaseStage: NewBaseStage(StageIDEvaluate, StageNameEvaluate, StageIDSample),
		cache:     mc,
		recorder:  recorder,
		logger:    logger,
	}
}

// Validate implements Stage
func (s *EvaluateStage) Validate(state *RunState) error {
	if state.Artifacts.Sample == nil {
		return missing(s.ID(), StageIDSample)
	}
	return nil
}

// Execute implements Stage
func (s *EvaluateStage) Execute(ctx context.Context, state *RunState) error {
	sel := state.Config.Selection
	selector, err := selection.New(sel.Options())
	if err != nil {
		return err
	}
	ev, err := evaluate.New(state.Artifacts.Sample.Dataset, state.Artifacts.Sample.Index, selector, s.cache, evaluate.Options{
		Criteria:        sel.ParsedCriteria(),
		ARLags:          sel.ARLags,
		SelectionParams: sel.SignatureParams(),
		Recorder:        s.recorder,
		Logger:          s.logger,
	})
	if err != nil {
		return err
	}
	out, err := ev.Run(ctx)
	if err != nil {
		return err
	}
	state.Artifacts.Evaluation = out
	return nil
}

// AggregateStage adds the pooled series to a copy of the evaluation table
type AggregateStage struct {
	BaseStage
	logger *slog.Logger
}

// NewAggregateStage creates the aggregate stage
func NewAggregateStage(logger *slog.Logger) *AggregateStage {
	return &AggregateStage{
		BaseStage: NewBaseStage(StageIDAggregate, StageNameAggregate, StageIDEvaluate),
		logger:    logger,
	}
}

// Validate implements Stage
func (s *AggregateStage) Validate(state *RunState) error {
	if state.Artifacts.Evaluation == nil {
		return missing(s.ID(), StageIDEvaluate)
	}
	return nil
}

// Execute implements Stage
func (s *AggregateStage) Execute(_ context.Context, state *RunState) error {
	t, err := results.FromRecords(state.Artifacts.Evaluation.Table.Records())
	if err != nil {
		return err
	}
	if err := results.Aggregate(t, state.Config.Run.ParsedHorizons(), s.logger); err != nil {
		return err
	}
	state.Artifacts.Results = &ResultsOutput{Table: t, Summary: results.Summary(t)}
	return nil
}

// ExportOptions select the optional exports of the persist stage
type ExportOptions struct {
	Workbook bool
	CSV      bool
}

// PersistStage writes the run bundle and the requested exports
type PersistStage struct {
	BaseStage
	runID  uuid.UUID
	export ExportOptions
	logger *slog.Logger
}

// NewPersistStage creates the persist stage for run runID
func NewPersistStage(runID uuid.UUID, export ExportOptions, logger *slog.Logger) *PersistStage {
	return &PersistStage{
		BaseStage: NewBaseStage(StageIDPersist, StageNamePersist, StageIDAggregate),
		runID:     runID,
		export:    export,
		logger:    logger,
	}
}

// Validate implements Stage
func (s *PersistStage) Validate(state *RunState) error {
	if state.Artifacts.Results == nil {
		return missing(s.ID(), StageIDAggregate)
	}
	return nil
}

// Execute implements Stage
func (s *PersistStage) Execute(_ context.Context, state *RunState) error {
	cfg := state.Config
	a := state.Artifacts
	b := exporter.NewBundle(exporter.Parameters{
		Run:          cfg.Run,
		Selection:    cfg.Selection,
		CacheBackend: cfg.Cache.Backend,
	}, a.Results.Table)
	b.RunID = s.runID
	if a.Inputs != nil {
		b.Inputs = a.Inputs.Files
		b.InputFingerprint = a.Inputs.Fingerprint
	}
	if a.Calendar != nil {
		b.CalendarFingerprint = a.Calendar.Fingerprint()
	}
	if a.Stationarity != nil {
		snap := a.Stationarity.Filtered.Snapshot()
		b.Panel = &snap
		report := a.Stationarity.Report
		b.Stationarity = &report
	}
	if a.Evaluation != nil {
		b.Cache = a.Evaluation.Cache
		b.Fallbacks = a.Evaluation.Fallbacks
	}

	path, err := exporter.WriteBundle(cfg.Paths.ResultsDir, b)
	if err != nil {
		return err
	}
	out := &PersistOutput{Bundle: b, BundlePath: path}
	if s.export.Workbook {
		out.WorkbookPath = cfg.Paths.WorkbookPath(b.RunID.String())
		if err := exporter.WriteWorkbook(out.WorkbookPath, b); err != nil {
			return err
		}
	}
	if s.export.CSV {
		out.CSVPath = cfg.Paths.CSVPath(b.RunID.String())
		if err := exporter.WriteCSV(out.CSVPath, a.Results.Table.Records(), exporter.DefaultWriteOptions()); err != nil {
			return err
		}
	}
	a.Persisted = out
	return nil
}
