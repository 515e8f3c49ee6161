package testutil

import (
	"math"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nowcast/internal/calendar"
	"nowcast/internal/panel"
	"nowcast/pkg/contracts/domain"
)

// Fixture dates: twelve quarters, out of sample from 2020Q2
var (
	FirstQuarter = domain.Quarter{Year: 2019, Q: 1}
	LastQuarter  = domain.Quarter{Year: 2021, Q: 4}
	Start        = FirstQuarter.Start()
	NowcastStart = time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC)
	End          = LastQuarter.End()
)

// Fixture is a small synthetic nowcasting problem: quarterly gdp driven by
// a monthly production index (released after 20 days) and a monthly
// sentiment survey (released at month end); gdp is released after 30 days
type Fixture struct {
	Series   []domain.IndicatorSeries
	Calendar *calendar.Calendar
	Panel    *panel.Panel
	YVar     string
}

// Series generates the fixture indicators deterministically
func Series() []domain.IndicatorSeries {
	rng := rand.New(rand.NewSource(42))
	months := LastQuarter.Sub(FirstQuarter)*3 + 3
	ip := make([]domain.Observation, months)
	sent := make([]domain.Observation, months)
	for m := 0; m < months; m++ {
		d := domain.MonthEnd(Start.AddDate(0, m, 0))
		ip[m] = domain.Observation{Date: d, Value: rng.NormFloat64()}
		sent[m] = domain.Observation{Date: d, Value: rng.NormFloat64()}
	}
	var gdp []domain.Observation
	for q, i := FirstQuarter, 0; !LastQuarter.Before(q); q, i = q.Add(1), i+3 {
		var v float64
		for k := 0; k < 3; k++ {
			v += 0.6*ip[i+k].Value/3 + 0.4*sent[i+k].Value/3
		}
		gdp = append(gdp, domain.Observation{Date: q.End(), Value: v + 0.1*rng.NormFloat64()})
	}
	return []domain.IndicatorSeries{
		domain.NewIndicatorSeries(domain.IndicatorMeta{
			Name: "gdp", Category: "national_accounts", Frequency: domain.FrequencyQuarterly,
			TransformCode: domain.TransformLevel, ReleaseLagDays: 30,
		}, gdp),
		domain.NewIndicatorSeries(domain.IndicatorMeta{
			Name: "ip", Category: "production", Frequency: domain.FrequencyMonthly,
			TransformCode: domain.TransformDiff, ReleaseLagDays: 20,
		}, ip),
		domain.NewIndicatorSeries(domain.IndicatorMeta{
			Name: "sent", Category: "surveys", Frequency: domain.FrequencyMonthly,
			TransformCode: domain.TransformLevel, ReleaseLagDays: 0,
		}, sent),
	}
}

// Sentinel copies the observations of src under a new name with a release
// lag long enough that the value of a quarter is never known while that
// quarter is being nowcast
func Sentinel(src domain.IndicatorSeries, name string) domain.IndicatorSeries {
	meta := src.Meta
	meta.Name = name
	meta.ReleaseLagDays = 200
	meta.Category = "sentinel"
	return domain.NewIndicatorSeries(meta, src.Clone().Observations)
}

// NewFixture builds the fixture panel on the periods_3 mapping. Extra
// series are added after the standard ones.
func NewFixture(t testing.TB, extra ...domain.IndicatorSeries) *Fixture {
	t.Helper()
	return NewFixtureFrom(t, append(Series(), extra...))
}

// NewFixtureFrom builds a fixture from the given series, gdp being the target
func NewFixtureFrom(t testing.TB, series []domain.IndicatorSeries) *Fixture {
	t.Helper()
	metas := make([]domain.IndicatorMeta, len(series))
	for i, s := range series {
		metas[i] = s.Meta
	}
	mapping, err := calendar.Lookup("periods_3")
	require.NoError(t, err)
	cal, err := calendar.Build(mapping, metas)
	require.NoError(t, err)
	b, err := panel.NewBuilder(series, cal, nil)
	require.NoError(t, err)
	stages, err := b.Build(false, "")
	require.NoError(t, err)
	return &Fixture{Series: series, Calendar: cal, Panel: stages.Blocked, YVar: "gdp"}
}

// Revise returns a deep copy of series in which the observations of the
// named indicator are replaced by fn(index, value)
func Revise(series []domain.IndicatorSeries, name string, fn func(i int, v float64) float64) []domain.IndicatorSeries {
	out := make([]domain.IndicatorSeries, len(series))
	for i, s := range series {
		out[i] = s.Clone()
		if s.Meta.Name != name {
			continue
		}
		for j := range out[i].Observations {
			out[i].Observations[j].Value = fn(j, out[i].Observations[j].Value)
		}
	}
	return out
}

// GapMonths are the ip observations blanked by SeriesWithGaps, interior
// months on both sides of the nowcast start
var GapMonths = []int{4, 5, 13, 19, 20, 27}

// SeriesWithGaps is Series with missing ip releases at GapMonths
func SeriesWithGaps() []domain.IndicatorSeries {
	gaps := make(map[int]bool, len(GapMonths))
	for _, m := range GapMonths {
		gaps[m] = true
	}
	return Revise(Series(), "ip", func(i int, v float64) float64 {
		if gaps[i] {
			return math.NaN()
		}
		return v
	})
}

// Counter counts invocations of wrapped compute functions
type Counter struct {
	n atomic.Int64
}

// Wrap returns fn instrumented with the counter
func (c *Counter) Wrap(fn func() (any, error)) func() (any, error) {
	return func() (any, error) {
		c.n.Add(1)
		return fn()
	}
}

// Calls returns how many wrapped calls ran
func (c *Counter) Calls() int {
	return int(c.n.Load())
}
