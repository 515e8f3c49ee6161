// Package shared holds helpers used by more than one pipeline package.
//
// The testutil subpackage provides the synthetic nowcasting fixture used
// across package tests (a quarterly target with two monthly indicators on
// the periods_3 release mapping), a sentinel-series generator for
// no-lookahead checks, a counting wrapper for cached compute functions and
// a capturing slog handler.
//
//	f := testutil.NewFixture(t)
//	logger, logs := testutil.NewLogger(t)
package shared
