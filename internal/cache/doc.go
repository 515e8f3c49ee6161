// Package cache memoises deterministic model computations.
//
// A Signature describes everything a result depends on and hashes to a
// stable key. ModelCache wraps a Store (file, sqlite, redis or memory)
// with checksummed envelopes and per-key single flight: an entry is
// computed at most once, and a corrupt entry is recomputed and replaced
// rather than failing the run.
package cache
