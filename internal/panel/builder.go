package panel

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"nowcast/internal/calendar"
	"nowcast/internal/errors"
	"nowcast/pkg/contracts/domain"
)

// Builder turns raw indicator series into the blocked quarterly panel.
// The series are never modified.
type Builder struct {
	series []domain.IndicatorSeries
	byName map[string]int
	cal    *calendar.Calendar
	logger *slog.Logger
}

// Stages holds the output of every builder step
type Stages struct {
	Raw     []*Panel
	Imputed []*Panel
	Aligned []*Panel
	Blocked *Panel
}

// NewBuilder validates the series set. cal, when set, decides the release
// block grouping of the blocked panel; otherwise IndicatorMeta.Block does.
func NewBuilder(series []domain.IndicatorSeries, cal *calendar.Calendar, logger *slog.Logger) (*Builder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(series) == 0 {
		return nil, errors.NewDataAlignmentError("no indicator series supplied", time.Time{}, "")
	}
	b := &Builder{
		series: make([]domain.IndicatorSeries, len(series)),
		byName: make(map[string]int, len(series)),
		cal:    cal,
		logger: logger,
	}
	for i, s := range series {
		name := s.Meta.Name
		if _, dup := b.byName[name]; dup {
			return nil, errors.NewDataAlignmentError("duplicate indicator", time.Time{}, name)
		}
		if _, err := domain.ParseFrequency(string(s.Meta.Frequency)); err != nil {
			return nil, errors.NewDataAlignmentError(err.Error(), time.Time{}, name)
		}
		b.byName[name] = i
		b.series[i] = s.Clone()
	}
	return b, nil
}

// Metas returns the indicator metadata in declaration order
func (b *Builder) Metas() []domain.IndicatorMeta {
	out := make([]domain.IndicatorMeta, len(b.series))
	for i, s := range b.series {
		out[i] = s.Meta
	}
	return out
}

// Build runs every step in order
func (b *Builder) Build(impute bool, method string) (*Stages, error) {
	raw, err := b.ToRawDFs()
	if err != nil {
		return nil, err
	}
	imputed, err := ToImputedDFs(raw, impute, method)
	if err != nil {
		return nil, err
	}
	aligned, err := ToFrequencyAlignedDFs(imputed)
	if err != nil {
		return nil, err
	}
	blocked, err := b.ToBlockedPanel(aligned)
	if err != nil {
		return nil, err
	}
	return &Stages{Raw: raw, Imputed: imputed, Aligned: aligned, Blocked: blocked}, nil
}

// ToRawDFs returns one single-column panel per indicator at its native
// frequency. Periods without an observation are NaN; nothing is interpolated.
func (b *Builder) ToRawDFs() ([]*Panel, error) {
	out := make([]*Panel, 0, len(b.series))
	for _, s := range b.series {
		freq := s.Meta.Frequency
		if len(s.Observations) == 0 {
			return nil, errors.NewDataAlignmentError("indicator has no observations", time.Time{}, s.Meta.Name)
		}
		index := Range(freq, s.Observations[0].Date, s.Observations[len(s.Observations)-1].Date)
		values := make([]float64, len(index))
		for i := range values {
			values[i] = math.NaN()
		}
		pos := 0
		for _, o := range s.Observations {
			d := freq.PeriodEnd(o.Date)
			for pos < len(index) && index[pos].Before(d) {
				pos++
			}
			if pos == len(index) || !index[pos].Equal(d) {
				return nil, errors.NewDataAlignmentError("observation outside the native index", o.Date, s.Meta.Name)
			}
			values[pos] = o.Value
		}
		p, err := New(freq, index, []string{s.Meta.Name}, [][]float64{values})
		if err != nil {
			return nil, fmt.Errorf("raw panel for %s: %w", s.Meta.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ToFrequencyAlignedDFs converts every panel to the monthly working
// frequency. The value of month t is the latest native observation dated on
// or before the end of t: quarterly values are carried over the following
// months, daily values are reduced to the last non-missing day of the month.
// Nothing is carried beyond a series' final native period.
func ToFrequencyAlignedDFs(dfs []*Panel) ([]*Panel, error) {
	out := make([]*Panel, len(dfs))
	for k, df := range dfs {
		if df.freq == domain.FrequencyMonthly || df.Len() == 0 {
			out[k] = df
			continue
		}
		index := Range(domain.FrequencyMonthly, df.index[0], df.index[len(df.index)-1])
		data := make([][]float64, df.Width())
		for j := range data {
			data[j] = alignMonthly(df.freq, df.index, df.data[j], index)
		}
		p, err := New(domain.FrequencyMonthly, index, df.columns, data)
		if err != nil {
			return nil, err
		}
		out[k] = p
	}
	return out, nil
}

func alignMonthly(native domain.Frequency, dates []time.Time, values []float64, months []time.Time) []float64 {
	out := make([]float64, len(months))
	pos := -1
	for i, m := range months {
		for pos+1 < len(dates) && !dates[pos+1].After(m) {
			pos++
		}
		out[i] = math.NaN()
		if pos < 0 {
			continue
		}
		if native != domain.FrequencyDaily {
			out[i] = values[pos]
			continue
		}
		start := domain.MonthStart(m)
		for r := pos; r >= 0 && !dates[r].Before(start); r-- {
			if !math.IsNaN(values[r]) {
				out[i] = values[r]
				break
			}
		}
	}
	return out
}

// ToBlockedPanel stacks the aligned series into one quarterly panel. Monthly
// and daily series contribute one column per month of the quarter (_m1.._m3),
// quarterly series one column. Columns follow declaration order within each
// release block; blocks are ordered by release period.
func (b *Builder) ToBlockedPanel(aligned []*Panel) (*Panel, error) {
	if len(aligned) == 0 {
		return nil, errors.NewDataAlignmentError("no aligned series", time.Time{}, "")
	}
	var first, last time.Time
	for _, df := range aligned {
		if df.freq != domain.FrequencyMonthly {
			return nil, errors.NewDataAlignmentError("series is not at the monthly working frequency", time.Time{}, df.columns[0])
		}
		if df.Len() == 0 {
			continue
		}
		if first.IsZero() || df.index[0].Before(first) {
			first = df.index[0]
		}
		if end := df.index[df.Len()-1]; end.After(last) {
			last = end
		}
	}
	if first.IsZero() {
		return nil, errors.NewDataAlignmentError("aligned series are all empty", time.Time{}, "")
	}
	quarters := Range(domain.FrequencyQuarterly, first, last)

	type source struct {
		name   string
		native domain.Frequency
		values []float64
		index  []time.Time
	}
	var sources []source
	for _, df := range aligned {
		for j, col := range df.columns {
			i, ok := b.byName[col]
			if !ok {
				return nil, errors.NewDataAlignmentError("aligned column is not a declared indicator", time.Time{}, col)
			}
			sources = append(sources, source{name: col, native: b.series[i].Meta.Frequency, values: df.data[j], index: df.index})
		}
	}
	sort.SliceStable(sources, func(x, y int) bool {
		return b.blockRank(sources[x].name) < b.blockRank(sources[y].name)
	})

	var cols []string
	var data [][]float64
	at := func(s source, d time.Time) float64 {
		if len(s.index) == 0 || d.Before(s.index[0]) || d.After(s.index[len(s.index)-1]) {
			return math.NaN()
		}
		months := int(d.Year()-s.index[0].Year())*12 + int(d.Month()-s.index[0].Month())
		return s.values[months]
	}
	for _, s := range sources {
		if s.native == domain.FrequencyQuarterly {
			col := make([]float64, len(quarters))
			for r, q := range quarters {
				col[r] = at(s, q)
			}
			cols = append(cols, ColumnName{Base: s.name}.String())
			data = append(data, col)
			continue
		}
		for slot := 1; slot <= 3; slot++ {
			col := make([]float64, len(quarters))
			for r, q := range quarters {
				col[r] = at(s, domain.QuarterOf(q).Month(slot))
			}
			cols = append(cols, ColumnName{Base: s.name, Slot: slot}.String())
			data = append(data, col)
		}
	}

	p, err := New(domain.FrequencyQuarterly, quarters, cols, data)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("blocked_panel_built",
		slog.Int("rows", p.Len()),
		slog.Int("columns", p.Width()),
		slog.String("first", first.Format("2006-01-02")),
		slog.String("last", last.Format("2006-01-02")))
	return p, nil
}

// blockRank orders release blocks; unlabelled indicators come first
func (b *Builder) blockRank(name string) int {
	if b.cal != nil {
		if label, err := b.cal.Label(name); err == nil {
			return calendar.LabelIndex(label)
		}
	}
	if i, ok := b.byName[name]; ok {
		return calendar.LabelIndex(b.series[i].Meta.Block)
	}
	return 0
}
