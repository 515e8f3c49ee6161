package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Frequency is the native release frequency of an indicator series
type Frequency string

const (
	FrequencyDaily     Frequency = "daily"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
)

// ParseFrequency accepts the long names and the usual one-letter codes (D, M, Q)
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "d":
		return FrequencyDaily, nil
	case "monthly", "m":
		return FrequencyMonthly, nil
	case "quarterly", "q":
		return FrequencyQuarterly, nil
	default:
		return "", fmt.Errorf("unknown frequency %q", s)
	}
}

// PeriodEnd returns the end date of the native period containing t
func (f Frequency) PeriodEnd(t time.Time) time.Time {
	switch f {
	case FrequencyMonthly:
		return MonthEnd(t)
	case FrequencyQuarterly:
		return QuarterOf(t).End()
	default:
		return Day(t)
	}
}

// Next returns the end of the native period following the one ending at end
func (f Frequency) Next(end time.Time) time.Time {
	switch f {
	case FrequencyMonthly:
		return MonthEnd(MonthStart(end).AddDate(0, 1, 0))
	case FrequencyQuarterly:
		return QuarterOf(end).Add(1).End()
	default:
		return Day(end).AddDate(0, 0, 1)
	}
}

// Prev returns the end of the native period preceding the one ending at end
func (f Frequency) Prev(end time.Time) time.Time {
	switch f {
	case FrequencyMonthly:
		return MonthEnd(MonthStart(end).AddDate(0, -1, 0))
	case FrequencyQuarterly:
		return QuarterOf(end).Add(-1).End()
	default:
		return Day(end).AddDate(0, 0, -1)
	}
}

// Transformation codes follow the FRED-MD convention
const (
	TransformLevel      = 1
	TransformDiff       = 2
	TransformDiff2      = 3
	TransformLog        = 4
	TransformLogDiff    = 5
	TransformLogDiff2   = 6
	TransformPctChgDiff = 7
)

// IndicatorMeta describes an indicator and how it is released
type IndicatorMeta struct {
	Name           string    `json:"name" yaml:"name" validate:"required"`
	Category       string    `json:"category,omitempty" yaml:"category"`
	Subcategory    string    `json:"subcategory,omitempty" yaml:"subcategory"`
	Frequency      Frequency `json:"frequency" yaml:"frequency" validate:"required,oneof=daily monthly quarterly"`
	TransformCode  int       `json:"transform_code" yaml:"transform_code" validate:"min=0,max=7"`
	ReleaseLagDays int       `json:"release_lag_days" yaml:"release_lag_days" validate:"min=0"`
	Block          string    `json:"block,omitempty" yaml:"block"`
}

// Observation is a single dated value; NaN marks a missing value
type Observation struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// IndicatorSeries is a named series at its native frequency.
// A series is treated as immutable once loaded.
type IndicatorSeries struct {
	Meta         IndicatorMeta `json:"meta"`
	Observations []Observation `json:"observations"`
}

// NewIndicatorSeries sorts the observations by date and normalises each date
// to the end of its native period. Duplicate periods keep the last value.
func NewIndicatorSeries(meta IndicatorMeta, obs []Observation) IndicatorSeries {
	byEnd := make(map[time.Time]float64, len(obs))
	for _, o := range obs {
		byEnd[meta.Frequency.PeriodEnd(o.Date)] = o.Value
	}
	out := make([]Observation, 0, len(byEnd))
	for d, v := range byEnd {
		out = append(out, Observation{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return IndicatorSeries{Meta: meta, Observations: out}
}

// Clone returns a deep copy
func (s IndicatorSeries) Clone() IndicatorSeries {
	obs := make([]Observation, len(s.Observations))
	copy(obs, s.Observations)
	return IndicatorSeries{Meta: s.Meta, Observations: obs}
}

// Span returns the first and last observation dates with a non-missing value
func (s IndicatorSeries) Span() (first, last time.Time, ok bool) {
	for _, o := range s.Observations {
		if math.IsNaN(o.Value) {
			continue
		}
		if !ok {
			first = o.Date
			ok = true
		}
		last = o.Date
	}
	return first, last, ok
}

// ReleaseVintage denotes the value of an indicator for a reference period
// becoming known as of a date
type ReleaseVintage struct {
	Indicator string    `json:"indicator"`
	Reference time.Time `json:"reference"`
	AsOf      time.Time `json:"as_of"`
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of t's month
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd returns the last day of t's month
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}
