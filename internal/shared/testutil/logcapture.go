package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

// LogEntry is a captured log record
type LogEntry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// LogCapture is a slog handler that keeps every record for assertions
type LogCapture struct {
	mu      sync.Mutex
	entries []LogEntry
	attrs   []slog.Attr
	t       *testing.T
}

// NewLogger returns a logger writing into a fresh LogCapture
func NewLogger(t *testing.T) (*slog.Logger, *LogCapture) {
	c := &LogCapture{t: t}
	return slog.New(c), c
}

// Enabled implements slog.Handler
func (c *LogCapture) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler
func (c *LogCapture) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(c.attrs))
	for _, a := range c.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	c.mu.Lock()
	c.entries = append(c.entries, LogEntry{Level: r.Level, Message: r.Message, Attrs: attrs})
	c.mu.Unlock()
	if c.t != nil {
		c.t.Logf("[%s] %s %v", r.Level, r.Message, attrs)
	}
	return nil
}

// WithAttrs implements slog.Handler
func (c *LogCapture) WithAttrs(attrs []slog.Attr) slog.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attrs = append(c.attrs, attrs...)
	return c
}

// WithGroup implements slog.Handler; groups are flattened
func (c *LogCapture) WithGroup(string) slog.Handler { return c }

// Entries returns a copy of the captured records
func (c *LogCapture) Entries() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]LogEntry(nil), c.entries...)
}

// Find returns the records whose message contains msg
func (c *LogCapture) Find(msg string) []LogEntry {
	var out []LogEntry
	for _, e := range c.Entries() {
		if strings.Contains(e.Message, msg) {
			out = append(out, e)
		}
	}
	return out
}

// Count returns how many records have exactly the message msg
func (c *LogCapture) Count(msg string) int {
	n := 0
	for _, e := range c.Entries() {
		if e.Message == msg {
			n++
		}
	}
	return n
}

// AssertLogged fails the test when no record at level carries msg
func AssertLogged(t *testing.T, c *LogCapture, level slog.Level, msg string) {
	t.Helper()
	for _, e := range c.Find(msg) {
		if e.Level == level {
			return
		}
	}
	t.Errorf("expected %s log %q", level, msg)
	for _, e := range c.Entries() {
		t.Logf("  - [%s] %s", e.Level, e.Message)
	}
}
