package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"nowcast/internal/cache"
	"nowcast/internal/exporter"
	"nowcast/internal/files"
	"nowcast/internal/results"
	"nowcast/pkg/contracts/domain"
)

// RecordQuery holds the raw record filters of a request. Empty fields match
// everything.
type RecordQuery struct {
	Branch    string
	Criterion string
	Weighting string
	Horizon   string
}

// FilterError rejects one record filter
type FilterError struct {
	Field string
	Err   error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// Filter validates q against the result key vocabulary
func (q RecordQuery) Filter() (results.Filter, error) {
	var f results.Filter
	var err error
	if q.Branch != "" {
		if f.Branch, err = domain.ParseBranch(q.Branch); err != nil {
			return f, &FilterError{Field: "branch", Err: err}
		}
	}
	if q.Criterion != "" {
		if f.Criterion, err = domain.ParseCriterion(q.Criterion); err != nil {
			return f, &FilterError{Field: "criterion", Err: err}
		}
	}
	if q.Weighting != "" {
		if f.Weighting, err = domain.ParseWeighting(q.Weighting); err != nil {
			return f, &FilterError{Field: "weighting", Err: err}
		}
	}
	if q.Horizon != "" {
		if q.Horizon == domain.HorizonPooled {
			f.Horizon = q.Horizon
		} else {
			h, err := domain.ParseHorizon(q.Horizon)
			if err != nil {
				return f, &FilterError{Field: "horizon", Err: err}
			}
			f.Horizon = h.Label
		}
	}
	return f, nil
}

// RunDetail is a bundle listing entry plus the parameters and provenance of
// the run
type RunDetail struct {
	exporter.BundleInfo
	Parameters          exporter.Parameters `json:"parameters"`
	Inputs              []files.Input       `json:"inputs"`
	InputFingerprint    string              `json:"input_fingerprint"`
	CalendarFingerprint string              `json:"calendar_fingerprint"`
	Cache               cache.Stats         `json:"cache"`
	Fallbacks           int                 `json:"fallbacks"`
}

// ResultsService reads persisted run bundles from the results directory
type ResultsService struct {
	dir    string
	logger *slog.Logger
}

// NewResultsService creates a service over dir
func NewResultsService(dir string, logger *slog.Logger) *ResultsService {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("ResultsService initialized", slog.String("results_dir", dir))
	return &ResultsService{
		dir:    dir,
		logger: logger.With(slog.String("service", "results")),
	}
}

// Dir returns the results directory
func (s *ResultsService) Dir() string {
	return s.dir
}

// ListRuns returns every readable run, newest first
func (s *ResultsService) ListRuns(ctx context.Context) ([]exporter.BundleInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runs, err := exporter.ListBundles(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResultsUnavailable, err)
	}
	s.logger.DebugContext(ctx, "runs_listed", slog.Int("count", len(runs)))
	return runs, nil
}

// GetRun returns the detail of run id
func (s *ResultsService) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	b, err := s.bundle(ctx, id)
	if err != nil {
		return nil, err
	}
	return &RunDetail{
		BundleInfo:          b.Info(),
		Parameters:          b.Parameters,
		Inputs:              b.Inputs,
		InputFingerprint:    b.InputFingerprint,
		CalendarFingerprint: b.CalendarFingerprint,
		Cache:               b.Cache,
		Fallbacks:           b.Fallbacks,
	}, nil
}

// Records returns the records of run id matching q
func (s *ResultsService) Records(ctx context.Context, id string, q RecordQuery) ([]domain.ResultRecord, error) {
	f, err := q.Filter()
	if err != nil {
		return nil, err
	}
	t, err := s.table(ctx, id)
	if err != nil {
		return nil, err
	}
	recs := t.Query(f)
	if recs == nil {
		recs = []domain.ResultRecord{}
	}
	return recs, nil
}

// Summary returns the accuracy summary of run id
func (s *ResultsService) Summary(ctx context.Context, id string) ([]results.SummaryRow, error) {
	t, err := s.table(ctx, id)
	if err != nil {
		return nil, err
	}
	rows := results.Summary(t)
	if rows == nil {
		rows = []results.SummaryRow{}
	}
	return rows, nil
}

func (s *ResultsService) table(ctx context.Context, id string) (*results.Table, error) {
	b, err := s.bundle(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := b.Table()
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild results of run %s: %w", id, err)
	}
	return t, nil
}

func (s *ResultsService) bundle(ctx context.Context, id string) (*exporter.Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRunID, id)
	}
	b, err := exporter.ReadBundleID(s.dir, id)
	if errors.Is(err, exporter.ErrBundleNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "run_bundle_read_failed",
			slog.String("run_id", id),
			slog.String("error", err.Error()))
		return nil, err
	}
	return b, nil
}
