package stationarity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"nowcast/internal/errors"
	"nowcast/internal/panel"
	"nowcast/pkg/contracts/domain"
)

// MinLags is the shortest lag depth the downstream model construction accepts
const MinLags = 4

// WindowEndPolicy names the date that closes the stationarity test window
type WindowEndPolicy string

const (
	// WindowEndNowcastStart tests on data up to the nowcast start only
	WindowEndNowcastStart WindowEndPolicy = "nowcast_start"
	// WindowEndEndDate tests on the full sample
	WindowEndEndDate WindowEndPolicy = "end_date"
)

// End resolves the window end for the policy
func (p WindowEndPolicy) End(nowcastStart, endDate time.Time) (time.Time, error) {
	switch p {
	case WindowEndNowcastStart, "":
		return nowcastStart, nil
	case WindowEndEndDate:
		return endDate, nil
	}
	return time.Time{}, errors.NewUnsupportedPolicyError("stationarity window end", string(p))
}

// Options configure ToStationarityTested
type Options struct {
	TransformAll bool
	Confidence   float64
	Start        time.Time
	End          time.Time
	// Codes maps base indicator names to FRED-MD transformation codes
	Codes map[string]int
	// Exclude lists columns that are tested but never transformed
	Exclude []string
	// MaxLag bounds the ADF lag search; negative selects the Schwert rule
	MaxLag int
	Logger *slog.Logger
}

// ColumnReport records what happened to one column
type ColumnReport struct {
	Column       string  `json:"column"`
	Output       string  `json:"output"`
	Tested       bool    `json:"tested"`
	Insufficient bool    `json:"insufficient"`
	Stationary   bool    `json:"stationary"`
	Tau          float64 `json:"tau"`
	Critical     float64 `json:"critical"`
	UsedLag      int     `json:"used_lag"`
	Transform    int     `json:"transform"`
	Excluded     bool    `json:"excluded,omitempty"`
}

type columnReportAlias ColumnReport

// MarshalJSON encodes NaN statistics as null
func (c ColumnReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		columnReportAlias
		Tau      *float64 `json:"tau"`
		Critical *float64 `json:"critical"`
	}{columnReportAlias(c), domain.NullFloat(c.Tau), domain.NullFloat(c.Critical)})
}

// UnmarshalJSON decodes null statistics as NaN
func (c *ColumnReport) UnmarshalJSON(b []byte) error {
	var raw struct {
		columnReportAlias
		Tau      *float64 `json:"tau"`
		Critical *float64 `json:"critical"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*c = ColumnReport(raw.columnReportAlias)
	c.Tau = domain.FromNullFloat(raw.Tau)
	c.Critical = domain.FromNullFloat(raw.Critical)
	return nil
}

// Report is the per-column outcome of ToStationarityTested in column order
type Report struct {
	Confidence float64        `json:"confidence"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	Columns    []ColumnReport `json:"columns"`
}

// Get returns the report of an input column
func (r Report) Get(column string) (ColumnReport, bool) {
	for _, c := range r.Columns {
		if c.Column == column {
			return c, true
		}
	}
	return ColumnReport{}, false
}

// Transformed counts the columns that were transformed
func (r Report) Transformed() int {
	n := 0
	for _, c := range r.Columns {
		if c.Transform > 1 {
			n++
		}
	}
	return n
}

// ToStationarityTested tests every column on [Start, End]. With TransformAll
// each column gets its indicator's transformation; otherwise only columns
// failing the test are transformed, with the indicator code when it is above
// 1 and a first difference otherwise. Transformed columns are renamed with
// the transformation suffix.
func ToStationarityTested(p *panel.Panel, opts Options) (*panel.Panel, Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.End.Before(opts.Start) {
		return nil, Report{}, errors.NewConfigurationError("stationarity window ends before it starts",
			map[string]interface{}{"start": opts.Start.Format("2006-01-02"), "end": opts.End.Format("2006-01-02")})
	}
	rows := p.Rows(opts.Start, opts.End)
	if len(rows) == 0 {
		return nil, Report{}, errors.NewEmptySampleError("stationarity", opts.Start, opts.End)
	}
	excluded := make(map[string]bool, len(opts.Exclude))
	for _, c := range opts.Exclude {
		excluded[c] = true
	}

	report := Report{Confidence: opts.Confidence, Start: opts.Start, End: opts.End}
	var cols []string
	var data [][]float64
	for _, col := range p.Columns() {
		values, _ := p.Column(col)
		window := make([]float64, len(rows))
		for i, r := range rows {
			window[i] = values[r]
		}
		res, err := ADF(window, opts.MaxLag, opts.Confidence)
		if err != nil {
			return nil, Report{}, fmt.Errorf("column %s: %w", col, err)
		}

		name := panel.ParseColumnName(col)
		cr := ColumnReport{
			Column:       col,
			Output:       col,
			Tested:       !res.Insufficient,
			Insufficient: res.Insufficient,
			Stationary:   res.Stationary,
			Tau:          res.Tau,
			Critical:     res.Critical,
			UsedLag:      res.UsedLag,
			Excluded:     excluded[col],
		}

		code := 0
		switch {
		case excluded[col] || name.Transform > 1:
		case opts.TransformAll:
			code = opts.Codes[name.Base]
		case res.Insufficient || res.Stationary:
		default:
			code = opts.Codes[name.Base]
			if code <= 1 {
				code = domain.TransformDiff
			}
		}

		out := values
		if code > 1 {
			if out, err = Transform(code, values); err != nil {
				return nil, Report{}, fmt.Errorf("column %s: %w", col, err)
			}
			cr.Transform = code
			cr.Output = name.WithTransform(code).String()
		}
		report.Columns = append(report.Columns, cr)
		cols = append(cols, cr.Output)
		data = append(data, out)
	}

	result, err := panel.New(p.Freq(), p.Index(), cols, data)
	if err != nil {
		return nil, Report{}, err
	}
	logger.Info("stationarity_tested",
		slog.Int("columns", len(cols)),
		slog.Int("transformed", report.Transformed()),
		slog.Float64("confidence", opts.Confidence),
		slog.String("window_end", opts.End.Format("2006-01-02")))
	return result, report, nil
}

// FilterOptions configure ToFiltered
type FilterOptions struct {
	// DropVars lists base indicators to remove
	DropVars []string
	Lags     int
	YVar     string
	YVarLags int
	Start    time.Time
	End      time.Time
}

// ToFiltered removes excluded indicators, enforces the minimum lag depth and
// restricts the panel to [Start, End]
func ToFiltered(p *panel.Panel, opts FilterOptions) (*panel.Panel, error) {
	if opts.Lags < MinLags {
		return nil, errors.NewInsufficientLagError(opts.Lags, MinLags)
	}
	if opts.YVarLags < 0 {
		return nil, errors.NewConfigurationError("target lag depth cannot be negative",
			map[string]interface{}{"y_var_lags": opts.YVarLags})
	}
	if !p.Has(opts.YVar) {
		return nil, errors.NewDataAlignmentError("target variable not in panel", time.Time{}, opts.YVar)
	}
	target := panel.ParseColumnName(opts.YVar).Base
	drop := make(map[string]bool, len(opts.DropVars))
	for _, v := range opts.DropVars {
		if v == target || v == opts.YVar {
			return nil, errors.NewConfigurationError("the target variable cannot be dropped",
				map[string]interface{}{"y_var": opts.YVar})
		}
		drop[v] = true
	}
	kept := p.DropWhere(func(c panel.ColumnName) bool { return drop[c.Base] })

	out, err := kept.Between(opts.Start, opts.End)
	if err != nil {
		return nil, err
	}
	if out.Len() == 0 {
		return nil, errors.NewEmptySampleError("filtered", opts.Start, opts.End)
	}
	return out, nil
}
