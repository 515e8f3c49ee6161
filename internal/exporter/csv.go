package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"nowcast/internal/files"
	"nowcast/pkg/contracts/domain"
)

// RecordHeaders are the columns of a record export
var RecordHeaders = []string{
	"quarter", "branch", "criterion", "weighting", "horizon",
	"y_actual", "y_pred", "mse", "y_pred_ar4", "mse_ar4",
	"selected", "fallback",
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	// BOMPrefix adds a UTF-8 BOM for Excel compatibility
	BOMPrefix bool
	// Precision is the number of decimals, -1 for the shortest representation
	Precision int
}

// DefaultWriteOptions writes a BOM and full precision
func DefaultWriteOptions() WriteOptions {
	return WriteOptions{BOMPrefix: true, Precision: -1}
}

// WriteCSV writes records to path atomically. Missing values are empty cells.
func WriteCSV(path string, records []domain.ResultRecord, opts WriteOptions) error {
	var buf bytes.Buffer
	if err := EncodeCSV(&buf, records, opts); err != nil {
		return err
	}
	if err := files.WriteAtomic(path, buf.Bytes()); err != nil {
		return err
	}
	slog.Info("records_csv_written",
		slog.String("path", path),
		slog.Int("record_count", len(records)))
	return nil
}

// EncodeCSV writes the header and one row per record to buf
func EncodeCSV(buf *bytes.Buffer, records []domain.ResultRecord, opts WriteOptions) error {
	if opts.BOMPrefix {
		buf.Write([]byte{0xEF, 0xBB, 0xBF})
	}
	w := csv.NewWriter(buf)
	if err := w.Write(RecordHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, r := range records {
		if err := w.Write(recordRow(r, opts.Precision)); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	w.Flush()
	return w.Error()
}

func recordRow(r domain.ResultRecord, prec int) []string {
	return []string{
		r.Quarter.String(),
		string(r.Key.Branch),
		string(r.Key.Criterion),
		string(r.Key.Weighting),
		r.Key.Horizon,
		formatFloat(r.YActual, prec),
		formatFloat(r.YPred, prec),
		formatFloat(r.MSE, prec),
		formatFloat(r.YPredAR4, prec),
		formatFloat(r.MSEAR4, prec),
		strings.Join(r.Selected, ";"),
		strconv.FormatBool(r.Fallback),
	}
}

func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}
