package panel

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"nowcast/internal/files"
	"nowcast/pkg/contracts/domain"
)

// MetadataFile is the metadata companion of CSV inputs in a directory
const MetadataFile = files.MetadataFile

// LoadDirectory loads every indicator file in dir concurrently. CSV
// observation files share metadata.csv; workbooks and SDMX files carry
// their own metadata. Results are merged in file name order.
func LoadDirectory(ctx context.Context, dir string, logger *slog.Logger) ([]domain.IndicatorSeries, error) {
	inputs, err := files.Discover(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input directory %s: %w", dir, err)
	}
	return LoadInputs(ctx, dir, inputs, logger)
}

// LoadInputs loads the discovered files of dir
func LoadInputs(ctx context.Context, dir string, inputs []files.Input, logger *slog.Logger) ([]domain.IndicatorSeries, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var names []string
	kinds := make(map[string]files.Kind)
	for _, in := range inputs {
		if in.Kind == files.KindMetadata {
			continue
		}
		names = append(names, in.Name)
		kinds[in.Name] = in.Kind
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no indicator files in %s", dir)
	}

	results := make([][]domain.IndicatorSeries, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(dir, name)
			var series []domain.IndicatorSeries
			var err error
			switch kinds[name] {
			case files.KindCSV:
				series, err = loadCSVPartial(path, filepath.Join(dir, MetadataFile))
			case files.KindWorkbook:
				series, err = LoadWorkbook(path)
			case files.KindSDMX:
				series, err = LoadSDMX(path)
			}
			if err != nil {
				return fmt.Errorf("failed to load %s: %w", name, err)
			}
			results[i] = series
			logger.Debug("indicator_file_loaded", slog.String("file", name), slog.Int("series", len(series)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.IndicatorSeries
	seen := make(map[string]string)
	for i, batch := range results {
		for _, s := range batch {
			if prev, dup := seen[s.Meta.Name]; dup {
				return nil, fmt.Errorf("indicator %s defined in both %s and %s", s.Meta.Name, prev, names[i])
			}
			seen[s.Meta.Name] = names[i]
			out = append(out, s)
		}
	}
	logger.Info("indicators_loaded", slog.String("dir", dir), slog.Int("files", len(names)), slog.Int("series", len(out)))
	return out, nil
}
