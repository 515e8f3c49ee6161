package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"nowcast/internal/errors"
)

// Envelope wraps every stored payload
type Envelope struct {
	SchemaVersion int             `json:"schema_version"`
	Key           string          `json:"key"`
	Checksum      string          `json:"checksum"`
	Payload       json.RawMessage `json:"payload"`
}

func checksum(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Seal encodes v into an envelope blob for key
func Seal(key string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache payload: %w", err)
	}
	return json.Marshal(Envelope{
		SchemaVersion: SchemaVersion,
		Key:           key,
		Checksum:      checksum(payload),
		Payload:       payload,
	})
}

// Unseal verifies an envelope blob and returns its payload
func Unseal(key string, blob []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return nil, errors.NewCacheCorruptionError(key, err)
	}
	switch {
	case env.SchemaVersion != SchemaVersion:
		return nil, errors.NewCacheCorruptionError(key,
			fmt.Errorf("schema version %d, expected %d", env.SchemaVersion, SchemaVersion))
	case env.Key != key:
		return nil, errors.NewCacheCorruptionError(key, fmt.Errorf("entry stored under key %s", env.Key))
	case env.Checksum != checksum(env.Payload):
		return nil, errors.NewCacheCorruptionError(key, fmt.Errorf("checksum mismatch"))
	}
	return env.Payload, nil
}

// Stats counts cache outcomes since creation
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Corrupt int64 `json:"corrupt"`
}

// Recorder receives one event per lookup; outcome is hit, miss or corrupt
type Recorder interface {
	RecordCacheEvent(ctx context.Context, namespace, outcome string)
}

// ModelCache memoises computations by signature on top of a Store.
// Concurrent lookups of one key run the computation once.
type ModelCache struct {
	store    Store
	logger   *slog.Logger
	recorder Recorder
	group    singleflight.Group

	hits, misses, corrupt atomic.Int64
}

// New wraps store. logger may be nil.
func New(store Store, logger *slog.Logger) *ModelCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelCache{store: store, logger: logger}
}

// WithRecorder attaches a metrics recorder
func (c *ModelCache) WithRecorder(r Recorder) *ModelCache {
	c.recorder = r
	return c
}

// Store returns the underlying store
func (c *ModelCache) Store() Store { return c.store }

// Stats returns the current counters
func (c *ModelCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Corrupt: c.corrupt.Load()}
}

func (c *ModelCache) record(ctx context.Context, ns, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordCacheEvent(ctx, ns, outcome)
	}
}

// LoadOrCompute decodes the entry for sig into out, running compute and
// storing its result on a miss. Both paths decode from the stored payload
// so a hit returns exactly what the original miss returned. A corrupt
// entry is logged, counted and replaced.
func (c *ModelCache) LoadOrCompute(ctx context.Context, sig Signature, out any, compute func() (any, error)) error {
	key := sig.StoreKey()
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.loadOrCompute(ctx, sig.Namespace, key, compute)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(v.([]byte), out); err != nil {
		return fmt.Errorf("decode cache payload %s: %w", key, err)
	}
	return nil
}

func (c *ModelCache) loadOrCompute(ctx context.Context, ns, key string, compute func() (any, error)) ([]byte, error) {
	blob, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if found {
		payload, err := Unseal(key, blob)
		if err == nil {
			c.hits.Add(1)
			c.record(ctx, ns, "hit")
			c.logger.Debug("cache_hit", slog.String("namespace", ns), slog.String("key", key))
			return payload, nil
		}
		c.corrupt.Add(1)
		c.record(ctx, ns, "corrupt")
		c.logger.Warn("cache_entry_corrupt",
			slog.String("namespace", ns),
			slog.String("key", key),
			slog.String("error", err.Error()))
		if err := c.store.Delete(ctx, key); err != nil {
			return nil, err
		}
	}

	c.misses.Add(1)
	c.record(ctx, ns, "miss")
	v, err := compute()
	if err != nil {
		return nil, err
	}
	blob, err = Seal(key, v)
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(ctx, key, blob); err != nil {
		return nil, err
	}
	c.logger.Debug("cache_stored", slog.String("namespace", ns), slog.String("key", key))
	return Unseal(key, blob)
}

// Load is the typed form of LoadOrCompute
func Load[T any](ctx context.Context, c *ModelCache, sig Signature, compute func() (T, error)) (T, error) {
	var out T
	err := c.LoadOrCompute(ctx, sig, &out, func() (any, error) { return compute() })
	return out, err
}
