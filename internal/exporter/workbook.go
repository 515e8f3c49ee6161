package exporter

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"nowcast/internal/files"
	"nowcast/internal/results"
	"nowcast/pkg/contracts/domain"
)

// Workbook sheet names
const (
	SheetResults      = "results"
	SheetPooled       = "pooled"
	SheetSummary      = "summary"
	SheetStationarity = "stationarity"
	SheetPanel        = "panel"
	SheetMetadata     = "metadata"
)

// WriteWorkbook renders the bundle as an xlsx workbook at path
func WriteWorkbook(path string, b *Bundle) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		return err
	}
	if err := writeRecordSheet(f, SheetResults, b.Records); err != nil {
		return err
	}
	if err := writeRecordSheet(f, SheetPooled, b.Pooled); err != nil {
		return err
	}

	t, err := b.Table()
	if err != nil {
		return fmt.Errorf("failed to rebuild result table: %w", err)
	}
	summary := [][]interface{}{{"branch", "criterion", "weighting", "horizon", "n", "rmse", "rmse_ar4", "relative_rmse"}}
	for _, s := range results.Summary(t) {
		summary = append(summary, []interface{}{
			string(s.Key.Branch), string(s.Key.Criterion), string(s.Key.Weighting), s.Key.Horizon,
			s.N, cellFloat(s.RMSE), cellFloat(s.RMSEAR4), cellFloat(s.Relative),
		})
	}
	if err := writeSheet(f, SheetSummary, summary); err != nil {
		return err
	}

	if b.Stationarity != nil {
		rows := [][]interface{}{{"column", "output", "tested", "insufficient", "stationary", "tau", "critical", "used_lag", "transform", "excluded"}}
		for _, c := range b.Stationarity.Columns {
			rows = append(rows, []interface{}{
				c.Column, c.Output, c.Tested, c.Insufficient, c.Stationary,
				cellFloat(c.Tau), cellFloat(c.Critical), c.UsedLag, c.Transform, c.Excluded,
			})
		}
		if err := writeSheet(f, SheetStationarity, rows); err != nil {
			return err
		}
	}

	if b.Panel != nil {
		header := append([]interface{}{"date"}, stringsToCells(b.Panel.Columns)...)
		rows := [][]interface{}{header}
		for i, d := range b.Panel.Index {
			row := []interface{}{d}
			for _, v := range b.Panel.Values[i] {
				if v == nil {
					row = append(row, nil)
				} else {
					row = append(row, *v)
				}
			}
			rows = append(rows, row)
		}
		if err := writeSheet(f, SheetPanel, rows); err != nil {
			return err
		}
	}

	p := b.Parameters
	meta := [][]interface{}{
		{"key", "value"},
		{"run_id", b.RunID.String()},
		{"created_at", b.CreatedAt.Format("2006-01-02T15:04:05Z07:00")},
		{"y_var", p.Run.YVar},
		{"start_date", p.Run.Start.String()},
		{"end_date", p.Run.End.String()},
		{"nowcast_start", p.Run.NowcastStart.String()},
		{"mapping", p.Run.Mapping},
		{"horizons", strings.Join(p.Run.Horizons, ",")},
		{"lags", p.Run.Lags},
		{"y_var_lags", p.Run.YVarLags},
		{"lag_kind", p.Run.LagKind},
		{"policy", p.Selection.Policy},
		{"criteria", strings.Join(p.Selection.Criteria, ",")},
		{"cache_backend", p.CacheBackend},
		{"cache_hits", b.Cache.Hits},
		{"cache_misses", b.Cache.Misses},
		{"fallbacks", b.Fallbacks},
		{"input_fingerprint", b.InputFingerprint},
		{"calendar_fingerprint", b.CalendarFingerprint},
	}
	if err := writeSheet(f, SheetMetadata, meta); err != nil {
		return err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return fmt.Errorf("failed to render workbook: %w", err)
	}
	if err := files.WriteAtomic(path, buf.Bytes()); err != nil {
		return err
	}
	slog.Info("workbook_written",
		slog.String("path", path),
		slog.String("run_id", b.RunID.String()),
		slog.Int("sheets", len(f.GetSheetList())))
	return nil
}

func writeRecordSheet(f *excelize.File, sheet string, records []domain.ResultRecord) error {
	header := stringsToCells(RecordHeaders)
	rows := [][]interface{}{header}
	for _, r := range records {
		rows = append(rows, []interface{}{
			r.Quarter.String(),
			string(r.Key.Branch),
			string(r.Key.Criterion),
			string(r.Key.Weighting),
			r.Key.Horizon,
			cellFloat(r.YActual),
			cellFloat(r.YPred),
			cellFloat(r.MSE),
			cellFloat(r.YPredAR4),
			cellFloat(r.MSEAR4),
			strings.Join(r.Selected, ";"),
			strconv.FormatBool(r.Fallback),
		})
	}
	return writeSheet(f, sheet, rows)
}

// writeSheet creates sheet when missing and writes rows from A1
func writeSheet(f *excelize.File, sheet string, rows [][]interface{}) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return err
	}
	if idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// cellFloat leaves missing values as empty cells
func cellFloat(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func stringsToCells(xs []string) []interface{} {
	out := make([]interface{}, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}
