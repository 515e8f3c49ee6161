package config

import (
	"encoding/json"
	"time"
)

// DateLayout is the format of every configured date
const DateLayout = "2006-01-02"

// Date is a calendar date read from YAML, the environment or JSON as
// YYYY-MM-DD
type Date struct {
	time.Time
}

// NewDate returns the date of t at midnight UTC
func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses YYYY-MM-DD
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Decode implements envconfig.Decoder
func (d *Date) Decode(value string) error {
	parsed, err := ParseDate(value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalYAML reads the date as a plain string
func (d *Date) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.Decode(s)
}

// MarshalYAML writes YYYY-MM-DD
func (d Date) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// MarshalText writes YYYY-MM-DD
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText reads YYYY-MM-DD
func (d *Date) UnmarshalText(b []byte) error {
	return d.Decode(string(b))
}

// MarshalJSON writes "YYYY-MM-DD", shadowing time.Time's RFC 3339 form
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON reads "YYYY-MM-DD"
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.Decode(s)
}
