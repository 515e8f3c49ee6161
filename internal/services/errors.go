package services

import "errors"

// Results service errors
var (
	ErrRunNotFound        = errors.New("run not found")
	ErrInvalidRunID       = errors.New("invalid run id")
	// ErrResultsUnavailable marks a results directory that cannot be read
	ErrResultsUnavailable = errors.New("results directory unavailable")
)
