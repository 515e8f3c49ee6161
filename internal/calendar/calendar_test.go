package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowcast/internal/calendar"
	"nowcast/internal/errors"
	"nowcast/pkg/contracts/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testMetas() []domain.IndicatorMeta {
	return []domain.IndicatorMeta{
		{Name: "ip", Frequency: domain.FrequencyMonthly, ReleaseLagDays: 15},
		{Name: "sentiment", Frequency: domain.FrequencyMonthly, ReleaseLagDays: 0},
		{Name: "gdp", Frequency: domain.FrequencyQuarterly, ReleaseLagDays: 30},
		{Name: "trade", Frequency: domain.FrequencyMonthly, ReleaseLagDays: 70},
	}
}

func buildCalendar(t *testing.T, name string) *calendar.Calendar {
	t.Helper()
	m, err := calendar.Lookup(name)
	require.NoError(t, err)
	cal, err := calendar.Build(m, testMetas())
	require.NoError(t, err)
	return cal
}

func TestLookup(t *testing.T) {
	tests := []struct {
		name   string
		blocks int
	}{
		{"periods_2", 2},
		{"periods_3", 3},
		{"periods_4", 4},
		{"periods_6", 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := calendar.Lookup(tt.name)
			require.NoError(t, err)
			assert.Equal(t, tt.blocks, m.Blocks)
		})
	}

	t.Run("unknown mapping", func(t *testing.T) {
		_, err := calendar.Lookup("periods_5")
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrUnknownMapping))
		assert.True(t, errors.Is(err, errors.ErrConfiguration))
	})
}

func TestRegister(t *testing.T) {
	require.NoError(t, calendar.Register(calendar.Mapping{Name: "periods_12", Blocks: 12}))
	m, err := calendar.Lookup("periods_12")
	require.NoError(t, err)
	assert.Equal(t, 12, m.Blocks)
	assert.Contains(t, calendar.Names(), "periods_12")

	assert.Error(t, calendar.Register(calendar.Mapping{Name: "", Blocks: 2}))
	assert.Error(t, calendar.Register(calendar.Mapping{Name: "broken", Blocks: 0}))
}

func TestLabels(t *testing.T) {
	cal := buildCalendar(t, "periods_3")
	labels := cal.Labels()

	// block length is 30.4375 days
	assert.Equal(t, "p1", labels["ip"])
	assert.Equal(t, "p1", labels["sentiment"])
	assert.Equal(t, "p1", labels["gdp"])
	assert.Equal(t, "p3", labels["trade"])

	_, err := cal.Label("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDataAlignment))
}

func TestBuildRejectsDuplicates(t *testing.T) {
	m, err := calendar.Lookup("periods_3")
	require.NoError(t, err)
	metas := append(testMetas(), domain.IndicatorMeta{Name: "ip", Frequency: domain.FrequencyMonthly})
	_, err = calendar.Build(m, metas)
	assert.True(t, errors.Is(err, errors.ErrDataAlignment))
}

func TestAsOfBoundary(t *testing.T) {
	cal := buildCalendar(t, "periods_3")
	q := domain.Quarter{Year: 2020, Q: 2} // 91 days

	assert.Equal(t, date(2020, 4, 1), cal.AsOfBoundary(q, 0))
	assert.Equal(t, date(2020, 5, 1), cal.AsOfBoundary(q, 1))
	assert.Equal(t, date(2020, 6, 1), cal.AsOfBoundary(q, 2))
	assert.Equal(t, date(2020, 7, 1), cal.AsOfBoundary(q, 3))
}

func TestAsOf(t *testing.T) {
	cal := buildCalendar(t, "periods_3")

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"on boundary", date(2020, 5, 1), date(2020, 5, 1)},
		{"inside first block", date(2020, 4, 15), date(2020, 5, 1)},
		{"quarter start", date(2020, 4, 1), date(2020, 4, 1)},
		{"second block", date(2020, 5, 20), date(2020, 6, 1)},
		{"last day of quarter", date(2020, 6, 30), date(2020, 7, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.AsOf(tt.in))
		})
	}
}

func TestForecastDate(t *testing.T) {
	cal := buildCalendar(t, "periods_3")
	q := domain.Quarter{Year: 2020, Q: 2}

	p1, err := domain.ParseHorizon("p1")
	require.NoError(t, err)
	p3, err := domain.ParseHorizon("p3")
	require.NoError(t, err)

	d1, err := cal.ForecastDate(q, p1)
	require.NoError(t, err)
	assert.Equal(t, date(2020, 7, 1), d1)

	d3, err := cal.ForecastDate(q, p3)
	require.NoError(t, err)
	assert.Equal(t, date(2020, 5, 1), d3)
	assert.True(t, d3.Before(d1))

	p4, err := domain.ParseHorizon("p4")
	require.NoError(t, err)
	_, err = cal.ForecastDate(q, p4)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
}

func TestVisible(t *testing.T) {
	cal := buildCalendar(t, "periods_3")
	forecast := date(2020, 6, 1)

	tests := []struct {
		name      string
		indicator string
		ref       time.Time
		want      bool
	}{
		{"april ip released mid may", "ip", date(2020, 4, 30), true},
		{"may ip not yet released", "ip", date(2020, 5, 31), false},
		{"may sentiment released at month end", "sentiment", date(2020, 5, 31), true},
		{"previous quarter gdp", "gdp", date(2020, 3, 31), true},
		{"current quarter gdp", "gdp", date(2020, 6, 30), false},
		{"slow trade series", "trade", date(2020, 3, 31), false},
		{"older trade value", "trade", date(2020, 2, 29), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := cal.Visible(tt.indicator, tt.ref, forecast)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}

	_, err := cal.Visible("missing", date(2020, 1, 31), forecast)
	assert.True(t, errors.Is(err, errors.ErrDataAlignment))
}

func TestVintagesMonotonic(t *testing.T) {
	cal := buildCalendar(t, "periods_4")
	refs := []time.Time{date(2020, 3, 31), date(2020, 1, 31), date(2020, 2, 29), date(2020, 4, 30)}

	vintages, err := cal.Vintages("trade", refs)
	require.NoError(t, err)
	require.Len(t, vintages, 4)
	for i := 1; i < len(vintages); i++ {
		assert.True(t, vintages[i].Reference.After(vintages[i-1].Reference))
		assert.False(t, vintages[i].AsOf.Before(vintages[i-1].AsOf))
	}
	for _, v := range vintages {
		ok, err := cal.Visible("trade", v.Reference, v.AsOf)
		require.NoError(t, err)
		assert.True(t, ok, "value must be visible at its own vintage")
		ok, err = cal.Visible("trade", v.Reference, v.AsOf.AddDate(0, 0, 40))
		require.NoError(t, err)
		assert.True(t, ok, "value must stay visible later")
	}
}

func TestKnownAsOf(t *testing.T) {
	cal := buildCalendar(t, "periods_3")
	known := cal.KnownAsOf(date(2020, 6, 1))

	assert.Equal(t, date(2020, 4, 30), known["ip"])
	assert.Equal(t, date(2020, 5, 31), known["sentiment"])
	assert.Equal(t, date(2020, 3, 31), known["gdp"])
	assert.Equal(t, date(2020, 2, 29), known["trade"])
}

func TestFingerprint(t *testing.T) {
	a := buildCalendar(t, "periods_3")
	b := buildCalendar(t, "periods_3")
	c := buildCalendar(t, "periods_4")

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)
}

func TestBoundaries(t *testing.T) {
	cal := buildCalendar(t, "periods_2")
	got := cal.Boundaries(date(2020, 1, 1), date(2020, 6, 30))
	require.Len(t, got, 4)
	assert.Equal(t, date(2020, 1, 1), got[0])
	assert.Equal(t, date(2020, 4, 1), got[2])
}

func TestLabelIndex(t *testing.T) {
	assert.Equal(t, 3, calendar.LabelIndex("p3"))
	assert.Equal(t, 0, calendar.LabelIndex("x"))
}
