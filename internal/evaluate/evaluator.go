package evaluate

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"nowcast/internal/cache"
	"nowcast/internal/errors"
	"nowcast/internal/model"
	"nowcast/internal/results"
	"nowcast/internal/sample"
	"nowcast/internal/selection"
	"nowcast/pkg/contracts/domain"
)

// Cache namespaces
const (
	NamespaceAR        = "ar_baseline"
	NamespaceSelection = "selection"
)

// DefaultARLags is the maximum order of the autoregressive baseline
const DefaultARLags = 4

// Recorder receives evaluation events for metrics
type Recorder interface {
	RecordCell(ctx context.Context, horizon string, baseline bool)
	RecordFallback(ctx context.Context, branch string)
}

// Options configure an Evaluator
type Options struct {
	Criteria []domain.Criterion
	ARLags   int
	// SelectionParams enter the selection cache signature
	SelectionParams map[string]string
	Recorder        Recorder
	Logger          *slog.Logger
}

// Outcome is the result of a run
type Outcome struct {
	Table     *results.Table
	Cells     []Cell
	Fallbacks int
	Cache     cache.Stats
}

// Evaluator scores every out-of-sample (quarter, horizon) cell. It reads
// the panel only through the windows of the index.
type Evaluator struct {
	ds       *sample.Dataset
	ix       *sample.Index
	selector selection.Selector
	cache    *cache.ModelCache
	opts     Options
	logger   *slog.Logger
}

// arFit is the cached baseline payload
type arFit struct {
	Model  model.ARModel `json:"model"`
	Stable bool          `json:"stable"`
}

// New validates the inputs. A nil cache memoises in memory only.
func New(ds *sample.Dataset, ix *sample.Index, selector selection.Selector, mc *cache.ModelCache, opts Options) (*Evaluator, error) {
	if ds == nil || ix == nil || selector == nil {
		return nil, errors.NewConfigurationError("evaluator requires a dataset, an index and a selector", nil)
	}
	if len(opts.Criteria) == 0 {
		opts.Criteria = []domain.Criterion{domain.CriterionBIC, domain.CriterionAIC}
	}
	for _, c := range opts.Criteria {
		if _, err := domain.ParseCriterion(string(c)); err != nil {
			return nil, errors.NewUnsupportedPolicyError("criterion", string(c))
		}
	}
	if opts.ARLags <= 0 {
		opts.ARLags = DefaultARLags
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if mc == nil {
		mc = cache.New(cache.NewMemoryStore(), logger)
	}
	return &Evaluator{ds: ds, ix: ix, selector: selector, cache: mc, opts: opts, logger: logger}, nil
}

// Run evaluates the cells quarter by quarter in ascending order
func (e *Evaluator) Run(ctx context.Context) (*Outcome, error) {
	start := time.Now()
	out := &Outcome{Table: results.NewTable()}
	running := make(map[domain.ResultKey]*results.RunningMSE)
	runningAR := make(map[domain.ResultKey]*results.RunningMSE)
	mse := func(m map[domain.ResultKey]*results.RunningMSE, k domain.ResultKey) *results.RunningMSE {
		if m[k] == nil {
			m[k] = &results.RunningMSE{}
		}
		return m[k]
	}

	for _, q := range e.ix.Quarters() {
		actual := e.ds.Actual(q)
		for _, h := range e.ix.Horizons() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			cell := NewCell(q, h)
			scored, err := e.scoreCell(ctx, cell)
			if err != nil {
				return nil, errors.Annotate(err, "evaluate", "quarter", q.String(), "horizon", h.Label)
			}
			for _, rec := range scored {
				rec.Quarter = q
				rec.YActual = actual
				rec.MSE = mse(running, rec.Key).Add(actual, rec.YPred)
				rec.MSEAR4 = mse(runningAR, rec.Key).Add(actual, rec.YPredAR4)
				if err := out.Table.Add(rec); err != nil {
					return nil, errors.Annotate(err, "evaluate", "quarter", q.String(), "horizon", h.Label)
				}
				if rec.Fallback {
					out.Fallbacks++
				}
			}
			out.Cells = append(out.Cells, *cell)
			if e.opts.Recorder != nil {
				e.opts.Recorder.RecordCell(ctx, h.Label, cell.Baseline)
			}
		}
	}
	out.Cache = e.cache.Stats()
	e.logger.Info("evaluation_completed",
		slog.Int("cells", len(out.Cells)),
		slog.Int("records", out.Table.Len()),
		slog.Int("fallbacks", out.Fallbacks),
		slog.Int64("cache_hits", out.Cache.Hits),
		slog.Int64("cache_misses", out.Cache.Misses),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

func (e *Evaluator) scoreCell(ctx context.Context, cell *Cell) ([]domain.ResultRecord, error) {
	q, h := cell.Quarter, cell.Horizon
	w, err := e.ix.Window(e.ds, q, h)
	if err != nil {
		return nil, err
	}
	if err := cell.Advance(CellSelecting); err != nil {
		return nil, err
	}

	selected := []string{}
	if len(w.Columns) > 0 {
		if selected, err = e.selectColumns(ctx, w); err != nil {
			return nil, fmt.Errorf("select: %w", err)
		}
		if err := cell.Advance(CellFitting); err != nil {
			return nil, err
		}
	}

	arPred, err := e.baseline(ctx, w)
	if err != nil {
		return nil, fmt.Errorf("AR baseline: %w", err)
	}

	branches := []struct {
		branch  domain.Branch
		columns []string
	}{
		{domain.BranchSelected, selected},
		{domain.BranchAll, w.Columns},
	}
	var out []domain.ResultRecord
	for _, crit := range e.opts.Criteria {
		for _, b := range branches {
			f, err := e.fit(w, b.columns, crit)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", b.branch, crit, err)
			}
			if f.Fallback {
				e.logger.Info("selection_fallback",
					slog.String("quarter", q.String()),
					slog.String("horizon", h.Label),
					slog.String("branch", string(b.branch)),
					slog.String("criterion", string(crit)),
					slog.Int("visible_columns", len(w.Columns)))
				if e.opts.Recorder != nil {
					e.opts.Recorder.RecordFallback(ctx, string(b.branch))
				}
			}
			out = append(out, domain.ResultRecord{
				Key: domain.ResultKey{
					Branch:    b.branch,
					Criterion: crit,
					Weighting: domain.WeightingNone,
					Horizon:   h.Label,
				},
				YPred:    f.Pred,
				YPredAR4: arPred,
				Selected: append([]string(nil), b.columns...),
				Fallback: f.Fallback,
			})
		}
	}
	if err := cell.Advance(CellScored); err != nil {
		return nil, err
	}
	e.logger.Debug("cell_scored",
		slog.String("quarter", q.String()),
		slog.String("horizon", h.Label),
		slog.String("forecast_date", w.ForecastDate.Format("2006-01-02")),
		slog.Int("rows", len(w.Rows)),
		slog.Int("columns", len(w.Columns)),
		slog.Int("selected", len(selected)),
		slog.Bool("baseline", cell.Baseline))
	return out, nil
}

// fit forecasts from the given columns, or from the mean of the released
// target values when there are no columns or no training rows
func (e *Evaluator) fit(w *sample.Window, columns []string, crit domain.Criterion) (model.Forecast, error) {
	if len(columns) == 0 || len(w.Rows) == 0 {
		return model.InterceptOnly(w.History)
	}
	p, err := w.Problem(columns)
	if err != nil {
		return model.Forecast{}, err
	}
	f, err := model.FitForecast(p, crit)
	if err != nil {
		return model.Forecast{}, err
	}
	if f.Fallback {
		return model.InterceptOnly(w.History)
	}
	return f, nil
}

func (e *Evaluator) selectColumns(ctx context.Context, w *sample.Window) ([]string, error) {
	if e.selector.Policy() == selection.PolicyNone {
		return append([]string(nil), w.Columns...), nil
	}
	extra := map[string]string{
		"policy":  string(e.selector.Policy()),
		"columns": strings.Join(w.Columns, ","),
	}
	for k, v := range e.opts.SelectionParams {
		extra[k] = v
	}
	sig := cache.Signature{
		Namespace:  NamespaceSelection,
		Lags:       len(w.TargetLags),
		Start:      e.ds.Views.Start,
		End:        w.ForecastDate,
		Target:     e.ds.YVar,
		WindowID:   cache.WindowIdentity(w.Dates),
		CalendarID: e.ds.Calendar.Fingerprint(),
		Extra:      extra,
	}
	in := selection.Input{Columns: w.Columns, X: w.Regressors(), Y: w.Y}
	rows := make([][]float64, 0, len(in.X)+1)
	rows = append(rows, in.X...)
	rows = append(rows, in.Y)
	sig.DataID = cache.ContentDigest(in.Columns, rows...)
	res, err := cache.Load(ctx, e.cache, sig, func() (selection.Result, error) {
		return e.selector.Select(ctx, in)
	})
	if err != nil {
		return nil, err
	}
	visible := make(map[string]bool, len(w.Columns))
	for _, c := range w.Columns {
		visible[c] = true
	}
	out := []string{}
	for _, c := range res.Selected {
		if !visible[c] {
			return nil, errors.NewDataAlignmentError("selector returned a column outside the window", w.ForecastDate, c)
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return indexOf(w.Columns, out[i]) < indexOf(w.Columns, out[j]) })
	return out, nil
}

// baseline forecasts the target quarter with the cached AR model of the
// released target history, iterating over quarters whose value is not yet
// released
func (e *Evaluator) baseline(ctx context.Context, w *sample.Window) (float64, error) {
	var hist []float64
	var dates []time.Time
	steps := 1
	for i, v := range w.History {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			hist = append(hist, v)
			dates = append(dates, w.HistoryDates[i])
			steps = w.TargetRow - w.HistoryRows[i]
		}
	}
	if len(hist) == 0 {
		return math.NaN(), nil
	}
	sig := cache.Signature{
		Namespace:  NamespaceAR,
		Lags:       e.opts.ARLags,
		Start:      e.ds.Views.Start,
		End:        dates[len(dates)-1],
		Target:     e.ds.YVar,
		WindowID:   cache.WindowIdentity(dates),
		CalendarID: e.ds.Calendar.Fingerprint(),
		DataID:     cache.ContentDigest(nil, hist),
	}
	fit, err := cache.Load(ctx, e.cache, sig, func() (arFit, error) {
		m, err := model.FitAR(hist, e.opts.ARLags)
		if err != nil {
			return arFit{}, err
		}
		return arFit{Model: *m, Stable: m.Stable()}, nil
	})
	if err != nil {
		return 0, err
	}
	if !fit.Stable {
		e.logger.Debug("ar_baseline_unstable",
			slog.String("quarter", w.Quarter.String()),
			slog.Int("order", fit.Model.Order))
	}
	return fit.Model.Forecast(hist, steps), nil
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return len(xs)
}
