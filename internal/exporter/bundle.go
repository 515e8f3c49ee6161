package exporter

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"nowcast/internal/cache"
	"nowcast/internal/config"
	"nowcast/internal/errors"
	"nowcast/internal/files"
	"nowcast/internal/panel"
	"nowcast/internal/results"
	"nowcast/internal/stationarity"
	"nowcast/pkg/contracts/domain"
)

// BundleVersion is the layout version written into every bundle
const BundleVersion = 1

// ErrBundleNotFound is returned when no bundle has the requested id
var ErrBundleNotFound = stderrors.New("run bundle not found")

// Parameters are the settings a run was produced with
type Parameters struct {
	Run          config.RunConfig       `json:"run"`
	Selection    config.SelectionConfig `json:"selection"`
	CacheBackend string                 `json:"cache_backend"`
}

// Bundle is the persisted outcome of one run
type Bundle struct {
	RunID               uuid.UUID             `json:"run_id"`
	Version             int                   `json:"version"`
	CreatedAt           time.Time             `json:"created_at"`
	Parameters          Parameters            `json:"parameters"`
	Inputs              []files.Input         `json:"inputs,omitempty"`
	InputFingerprint    string                `json:"input_fingerprint,omitempty"`
	CalendarFingerprint string                `json:"calendar_fingerprint,omitempty"`
	Records             []domain.ResultRecord `json:"records"`
	Pooled              []domain.ResultRecord `json:"pooled"`
	Panel               *panel.Snapshot       `json:"panel,omitempty"`
	Stationarity        *stationarity.Report  `json:"stationarity,omitempty"`
	Cache               cache.Stats           `json:"cache"`
	Fallbacks           int                   `json:"fallbacks"`
	Checksum            string                `json:"checksum,omitempty"`
}

// NewBundle starts a bundle for the records of t. Pooled series are kept
// apart from the per-horizon records.
func NewBundle(params Parameters, t *results.Table) *Bundle {
	b := &Bundle{
		RunID:      uuid.New(),
		Version:    BundleVersion,
		CreatedAt:  time.Now().UTC(),
		Parameters: params,
		Records:    []domain.ResultRecord{},
		Pooled:     []domain.ResultRecord{},
	}
	if t == nil {
		return b
	}
	for _, r := range t.Records() {
		if r.Key.Weighting == domain.WeightingNone {
			b.Records = append(b.Records, r)
		} else {
			b.Pooled = append(b.Pooled, r)
		}
	}
	return b
}

// Table rebuilds the result table of the bundle
func (b *Bundle) Table() (*results.Table, error) {
	all := make([]domain.ResultRecord, 0, len(b.Records)+len(b.Pooled))
	all = append(all, b.Records...)
	all = append(all, b.Pooled...)
	return results.FromRecords(all)
}

// BundleInfo is the listing entry of a bundle
type BundleInfo struct {
	RunID     uuid.UUID `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	YVar      string    `json:"y_var"`
	Policy    string    `json:"policy"`
	Horizons  []string  `json:"horizons"`
	Records   int       `json:"records"`
	Pooled    int       `json:"pooled"`
}

// Info summarises the bundle for listings
func (b *Bundle) Info() BundleInfo {
	return BundleInfo{
		RunID:     b.RunID,
		CreatedAt: b.CreatedAt,
		YVar:      b.Parameters.Run.YVar,
		Policy:    b.Parameters.Selection.Policy,
		Horizons:  b.Parameters.Run.Horizons,
		Records:   len(b.Records),
		Pooled:    len(b.Pooled),
	}
}

// BundlePath returns the file of run id under dir
func BundlePath(dir string, id uuid.UUID) string {
	return filepath.Join(dir, id.String()+".json")
}

// WriteBundle stores b as dir/<run id>.json atomically
func WriteBundle(dir string, b *Bundle) (string, error) {
	if b.RunID == uuid.Nil {
		return "", errors.NewConfigurationError("bundle has no run id", nil)
	}
	sum, err := Checksum(b)
	if err != nil {
		return "", err
	}
	b.Checksum = sum
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode bundle: %w", err)
	}
	path := BundlePath(dir, b.RunID)
	if err := files.WriteAtomic(path, data); err != nil {
		return "", err
	}
	slog.Info("run_bundle_written",
		slog.String("run_id", b.RunID.String()),
		slog.String("path", path),
		slog.Int("records", len(b.Records)),
		slog.Int("pooled", len(b.Pooled)))
	return path, nil
}

// ReadBundle decodes the bundle at path
func ReadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to decode bundle %s: %w", filepath.Base(path), err)
	}
	if b.Version != BundleVersion {
		return nil, fmt.Errorf("bundle %s has version %d, expected %d", filepath.Base(path), b.Version, BundleVersion)
	}
	if err := verify(&b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ReadBundleID reads the bundle of run id from dir. Ids that are not UUIDs
// are reported as not found.
func ReadBundleID(dir, id string) (*Bundle, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBundleNotFound, id)
	}
	return ReadBundle(BundlePath(dir, runID))
}

// ListBundles returns the bundles of dir, newest first. Files that do not
// decode are skipped with a warning.
func ListBundles(dir string) ([]BundleInfo, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []BundleInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}
	out := []BundleInfo{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if _, err := uuid.Parse(strings.TrimSuffix(name, ".json")); err != nil {
			continue
		}
		b, err := ReadBundle(filepath.Join(dir, name))
		if err != nil {
			slog.Warn("run_bundle_unreadable", slog.String("file", name), slog.String("error", err.Error()))
			continue
		}
		out = append(out, b.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
