package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Quarter identifies a calendar quarter
type Quarter struct {
	Year int `json:"year"`
	Q    int `json:"q"`
}

// QuarterOf returns the quarter containing t
func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}

// ParseQuarter parses "2020Q2" or "2020-Q2"
func ParseQuarter(s string) (Quarter, error) {
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	parts := strings.Split(s, "Q")
	if len(parts) != 2 {
		return Quarter{}, fmt.Errorf("invalid quarter %q", s)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Quarter{}, fmt.Errorf("invalid quarter year %q: %w", s, err)
	}
	q, err := strconv.Atoi(parts[1])
	if err != nil || q < 1 || q > 4 {
		return Quarter{}, fmt.Errorf("invalid quarter number %q", s)
	}
	return Quarter{Year: year, Q: q}, nil
}

// Start returns the first day of the quarter
func (q Quarter) Start() time.Time {
	return time.Date(q.Year, time.Month((q.Q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the quarter
func (q Quarter) End() time.Time {
	return q.Start().AddDate(0, 3, -1)
}

// Month returns the end of the k-th month (1..3) of the quarter
func (q Quarter) Month(k int) time.Time {
	return MonthEnd(q.Start().AddDate(0, k-1, 0))
}

// Days returns the number of days in the quarter
func (q Quarter) Days() int {
	return int(q.Start().AddDate(0, 3, 0).Sub(q.Start()).Hours() / 24)
}

// Ordinal is a monotonically increasing quarter number used for arithmetic
func (q Quarter) Ordinal() int {
	return q.Year*4 + q.Q - 1
}

// Add shifts the quarter by n quarters
func (q Quarter) Add(n int) Quarter {
	o := q.Ordinal() + n
	return Quarter{Year: floorDiv(o, 4), Q: o - floorDiv(o, 4)*4 + 1}
}

// Sub returns the number of quarters between q and o
func (q Quarter) Sub(o Quarter) int {
	return q.Ordinal() - o.Ordinal()
}

// Before reports whether q precedes o
func (q Quarter) Before(o Quarter) bool {
	return q.Ordinal() < o.Ordinal()
}

func (q Quarter) String() string {
	return fmt.Sprintf("%dQ%d", q.Year, q.Q)
}

// MarshalText encodes the quarter as "2020Q2"
func (q Quarter) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText decodes "2020Q2"
func (q *Quarter) UnmarshalText(b []byte) error {
	parsed, err := ParseQuarter(string(b))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

func floorDiv(a, b int) int {
	d := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		d--
	}
	return d
}

// Horizon is a forecast horizon expressed in release periods.
// Label p1 corresponds to h0 (Steps 0), the latest forecast date within the
// target quarter; p2 is one release period earlier, and so on.
type Horizon struct {
	Label string `json:"label"`
	Steps int    `json:"steps"`
}

// ParseHorizon accepts "p1".."pN" and "h0".."h(N-1)"
func ParseHorizon(s string) (Horizon, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 2 {
		return Horizon{}, fmt.Errorf("invalid horizon %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return Horizon{}, fmt.Errorf("invalid horizon %q: %w", s, err)
	}
	switch s[0] {
	case 'p':
		if n < 1 {
			return Horizon{}, fmt.Errorf("invalid horizon %q", s)
		}
		return Horizon{Label: s, Steps: n - 1}, nil
	case 'h':
		if n < 0 {
			return Horizon{}, fmt.Errorf("invalid horizon %q", s)
		}
		return Horizon{Label: fmt.Sprintf("p%d", n+1), Steps: n}, nil
	}
	return Horizon{}, fmt.Errorf("invalid horizon %q", s)
}

// ParseHorizons parses a list of horizon labels
func ParseHorizons(labels []string) ([]Horizon, error) {
	out := make([]Horizon, 0, len(labels))
	seen := make(map[int]bool, len(labels))
	for _, l := range labels {
		h, err := ParseHorizon(l)
		if err != nil {
			return nil, err
		}
		if seen[h.Steps] {
			return nil, fmt.Errorf("duplicate horizon %q", l)
		}
		seen[h.Steps] = true
		out = append(out, h)
	}
	return out, nil
}

func (h Horizon) String() string {
	return h.Label
}
