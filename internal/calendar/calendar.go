package calendar

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"nowcast/internal/errors"
	"nowcast/pkg/contracts/domain"
)

// averageQuarterDays is the mean quarter length used to size release blocks
const averageQuarterDays = 365.25 / 4

// Mapping is a release scheme splitting every quarter into Blocks release periods
type Mapping struct {
	Name   string `json:"name"`
	Blocks int    `json:"blocks"`
}

// BlockLength returns the nominal length of a release block in days
func (m Mapping) BlockLength() float64 {
	return averageQuarterDays / float64(m.Blocks)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Mapping{
		"periods_2": {Name: "periods_2", Blocks: 2},
		"periods_3": {Name: "periods_3", Blocks: 3},
		"periods_4": {Name: "periods_4", Blocks: 4},
		"periods_6": {Name: "periods_6", Blocks: 6},
	}
)

// Register adds a mapping to the registry
func Register(m Mapping) error {
	if m.Name == "" {
		return errors.NewConfigurationError("mapping name cannot be empty", nil)
	}
	if m.Blocks < 1 {
		return errors.NewConfigurationError("mapping must have at least one block",
			map[string]interface{}{"mapping": m.Name, "blocks": m.Blocks})
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[m.Name] = m
	return nil
}

// Lookup resolves a registered mapping by name
func Lookup(name string) (Mapping, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	m, ok := registry[name]
	if !ok {
		return Mapping{}, errors.NewUnknownMappingError(name, namesLocked())
	}
	return m, nil
}

// Names lists the registered mappings
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type entry struct {
	meta  domain.IndicatorMeta
	label string
}

// Calendar assigns release periods to indicators and answers visibility
// questions. It is immutable after Build.
type Calendar struct {
	mapping     Mapping
	entries     map[string]entry
	order       []string
	fingerprint string
}

// Build assigns every indicator its release-period label under mapping
func Build(mapping Mapping, metas []domain.IndicatorMeta) (*Calendar, error) {
	if mapping.Blocks < 1 {
		return nil, errors.NewUnknownMappingError(mapping.Name, Names())
	}
	c := &Calendar{
		mapping: mapping,
		entries: make(map[string]entry, len(metas)),
		order:   make([]string, 0, len(metas)),
	}
	for _, m := range metas {
		if m.Name == "" {
			return nil, errors.NewDataAlignmentError("indicator without a name", time.Time{}, "")
		}
		if _, dup := c.entries[m.Name]; dup {
			return nil, errors.NewDataAlignmentError("duplicate indicator in release calendar", time.Time{}, m.Name)
		}
		if m.ReleaseLagDays < 0 {
			return nil, errors.NewDataAlignmentError("negative release lag", time.Time{}, m.Name)
		}
		k := int(math.Floor(float64(m.ReleaseLagDays)/mapping.BlockLength())) + 1
		c.entries[m.Name] = entry{meta: m, label: "p" + strconv.Itoa(k)}
		c.order = append(c.order, m.Name)
	}
	c.fingerprint = c.computeFingerprint()
	return c, nil
}

func (c *Calendar) computeFingerprint() string {
	names := append([]string(nil), c.order...)
	sort.Strings(names)
	h := sha256.New()
	fmt.Fprintf(h, "mapping=%s;blocks=%d\n", c.mapping.Name, c.mapping.Blocks)
	for _, n := range names {
		e := c.entries[n]
		fmt.Fprintf(h, "%s|%s|%d|%s\n", n, e.label, e.meta.ReleaseLagDays, e.meta.Frequency)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Mapping returns the release scheme
func (c *Calendar) Mapping() Mapping { return c.mapping }

// Fingerprint identifies the release-period assignment
func (c *Calendar) Fingerprint() string { return c.fingerprint }

// Indicators returns indicator names in declaration order
func (c *Calendar) Indicators() []string {
	return append([]string(nil), c.order...)
}

// Labels returns the release-period label of every indicator
func (c *Calendar) Labels() map[string]string {
	out := make(map[string]string, len(c.entries))
	for n, e := range c.entries {
		out[n] = e.label
	}
	return out
}

// Label returns the release-period label of one indicator
func (c *Calendar) Label(indicator string) (string, error) {
	e, err := c.lookup(indicator)
	if err != nil {
		return "", err
	}
	return e.label, nil
}

// Meta returns the metadata the calendar was built with
func (c *Calendar) Meta(indicator string) (domain.IndicatorMeta, error) {
	e, err := c.lookup(indicator)
	if err != nil {
		return domain.IndicatorMeta{}, err
	}
	return e.meta, nil
}

func (c *Calendar) lookup(indicator string) (entry, error) {
	e, ok := c.entries[indicator]
	if !ok {
		return entry{}, errors.NewDataAlignmentError("release period lookup miss", time.Time{}, indicator)
	}
	return e, nil
}

// AsOfBoundary returns the start of release block b (0..N) of quarter q.
// Boundary N is the first day of the following quarter.
func (c *Calendar) AsOfBoundary(q domain.Quarter, b int) time.Time {
	days := float64(q.Days())
	offset := int(math.Round(float64(b) * days / float64(c.mapping.Blocks)))
	return q.Start().AddDate(0, 0, offset)
}

// AsOf returns the as-of date of the release block containing t: the first
// block boundary on or after t
func (c *Calendar) AsOf(t time.Time) time.Time {
	t = domain.Day(t)
	q := domain.QuarterOf(t)
	for b := 0; b <= c.mapping.Blocks; b++ {
		boundary := c.AsOfBoundary(q, b)
		if !boundary.Before(t) {
			return boundary
		}
	}
	return q.Add(1).Start()
}

// Boundaries lists every block boundary in [from, to]
func (c *Calendar) Boundaries(from, to time.Time) []time.Time {
	from, to = domain.Day(from), domain.Day(to)
	var out []time.Time
	for q := domain.QuarterOf(from); !q.Start().After(to); q = q.Add(1) {
		for b := 0; b < c.mapping.Blocks; b++ {
			d := c.AsOfBoundary(q, b)
			if d.Before(from) || d.After(to) {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}

// ReleaseDate returns the date the value for referenceEnd is published
func (c *Calendar) ReleaseDate(indicator string, referenceEnd time.Time) (time.Time, error) {
	e, err := c.lookup(indicator)
	if err != nil {
		return time.Time{}, err
	}
	return domain.Day(referenceEnd).AddDate(0, 0, e.meta.ReleaseLagDays), nil
}

// Visible reports whether the value for referenceEnd is known at forecastDate
func (c *Calendar) Visible(indicator string, referenceEnd, forecastDate time.Time) (bool, error) {
	release, err := c.ReleaseDate(indicator, referenceEnd)
	if err != nil {
		return false, err
	}
	return !c.AsOf(release).After(domain.Day(forecastDate)), nil
}

// ForecastDate returns the as-of date of a forecast for quarter q at horizon h
func (c *Calendar) ForecastDate(q domain.Quarter, h domain.Horizon) (time.Time, error) {
	if h.Steps < 0 || h.Steps >= c.mapping.Blocks {
		return time.Time{}, errors.NewConfigurationError(
			fmt.Sprintf("horizon %s exceeds the %d release periods of mapping %s", h.Label, c.mapping.Blocks, c.mapping.Name),
			map[string]interface{}{"horizon": h.Label, "mapping": c.mapping.Name})
	}
	return c.AsOfBoundary(q, c.mapping.Blocks-h.Steps), nil
}

// Vintages returns the as-of date of each reference period of an indicator,
// sorted by reference date
func (c *Calendar) Vintages(indicator string, refs []time.Time) ([]domain.ReleaseVintage, error) {
	sorted := append([]time.Time(nil), refs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	out := make([]domain.ReleaseVintage, 0, len(sorted))
	for _, ref := range sorted {
		release, err := c.ReleaseDate(indicator, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ReleaseVintage{
			Indicator: indicator,
			Reference: domain.Day(ref),
			AsOf:      c.AsOf(release),
		})
	}
	return out, nil
}

// KnownAsOf returns, per indicator, the latest reference period end whose
// value is known at asOf
func (c *Calendar) KnownAsOf(asOf time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(c.entries))
	for _, name := range c.order {
		e := c.entries[name]
		freq := e.meta.Frequency
		ref := freq.PeriodEnd(asOf)
		// release lags are bounded, so the walk back terminates quickly
		for i := 0; i < 1000; i++ {
			if ok, _ := c.Visible(name, ref, asOf); ok {
				out[name] = ref
				break
			}
			ref = freq.Prev(ref)
		}
	}
	return out
}

// LabelIndex returns the numeric part of a release-period label ("p3" → 3)
func LabelIndex(label string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(label, "p"))
	if err != nil {
		return 0
	}
	return n
}
