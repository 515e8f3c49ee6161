package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// resolve makes every directory absolute. Relative entries are joined to
// BaseDir, which itself defaults to the working directory.
func (p *PathsConfig) resolve() error {
	if p.BaseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		p.BaseDir = wd
	}
	base, err := filepath.Abs(p.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	p.BaseDir = base
	for _, dir := range []*string{&p.InputDir, &p.ResultsDir, &p.CacheDir, &p.LogsDir} {
		if *dir != "" && !filepath.IsAbs(*dir) {
			*dir = filepath.Join(base, *dir)
		}
	}
	return nil
}

// EnsureDirectories creates the output directories if they don't exist.
// The input directory is never created.
func (p *PathsConfig) EnsureDirectories(logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{p.ResultsDir, p.CacheDir, p.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}
	return nil
}

// BundlePath returns the path of the run bundle with the given id
func (p *PathsConfig) BundlePath(runID string) string {
	return filepath.Join(p.ResultsDir, runID+".json")
}

// WorkbookPath returns the path of the workbook export of a run
func (p *PathsConfig) WorkbookPath(runID string) string {
	return filepath.Join(p.ResultsDir, runID+".xlsx")
}

// CSVPath returns the path of the CSV export of a run
func (p *PathsConfig) CSVPath(runID string) string {
	return filepath.Join(p.ResultsDir, runID+".csv")
}

// LogPathResolution logs the resolved directories
func (p *PathsConfig) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("input", p.InputDir),
			slog.String("results", p.ResultsDir),
			slog.String("cache", p.CacheDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Bool("input_exists", FileExists(p.InputDir)))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
