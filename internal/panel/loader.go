package panel

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"nowcast/pkg/contracts/domain"
)

var dateLayouts = []string{"2006-01-02", "2006-01", "01/02/2006", "2006/01/02", "2006-01-02T15:04:05Z07:00"}

// ParseDate accepts the date layouts found in indicator exports
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if q, err := domain.ParseQuarter(s); err == nil && strings.ContainsAny(strings.ToUpper(s), "Q") {
		return q.End(), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ParseValue reads a cell value; blanks and NA markers are missing
func ParseValue(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "", "NA", "NAN", "N/A", ".", "NULL":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

var metaValidator = validator.New()

// parseMetaRows decodes a metadata table whose first row is the header
func parseMetaRows(rows [][]string) ([]domain.IndicatorMeta, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("metadata table is empty")
	}
	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := header["name"]; !ok {
		return nil, fmt.Errorf("metadata table has no name column")
	}
	if _, ok := header["frequency"]; !ok {
		return nil, fmt.Errorf("metadata table has no frequency column")
	}
	cell := func(row []string, col string) string {
		i, ok := header[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var metas []domain.IndicatorMeta
	for n, row := range rows[1:] {
		name := cell(row, "name")
		if name == "" {
			continue
		}
		freq, err := domain.ParseFrequency(cell(row, "frequency"))
		if err != nil {
			return nil, fmt.Errorf("metadata row %d: %w", n+2, err)
		}
		meta := domain.IndicatorMeta{
			Name:        name,
			Category:    cell(row, "category"),
			Subcategory: cell(row, "subcategory"),
			Frequency:   freq,
			Block:       cell(row, "block"),
		}
		if v := cell(row, "transform_code"); v != "" {
			if meta.TransformCode, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("metadata row %d: invalid transform code %q", n+2, v)
			}
		}
		if v := cell(row, "release_lag_days"); v != "" {
			if meta.ReleaseLagDays, err = strconv.Atoi(v); err != nil {
				return nil, fmt.Errorf("metadata row %d: invalid release lag %q", n+2, v)
			}
		}
		if err := metaValidator.Struct(meta); err != nil {
			return nil, fmt.Errorf("metadata row %d (%s): %w", n+2, name, err)
		}
		metas = append(metas, meta)
	}
	return metas, nil
}

// assemble pairs metadata with observations, keeping metadata order
func assemble(metas []domain.IndicatorMeta, obs map[string][]domain.Observation) ([]domain.IndicatorSeries, error) {
	known := make(map[string]bool, len(metas))
	out := make([]domain.IndicatorSeries, 0, len(metas))
	for _, m := range metas {
		known[m.Name] = true
		o, ok := obs[m.Name]
		if !ok || len(o) == 0 {
			return nil, fmt.Errorf("indicator %s has metadata but no observations", m.Name)
		}
		out = append(out, domain.NewIndicatorSeries(m, o))
	}
	var extra []string
	for name := range obs {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, fmt.Errorf("observations without metadata: %s", strings.Join(extra, ", "))
	}
	return out, nil
}

// ReadMetadataCSV reads indicator metadata from a CSV table
func ReadMetadataCSV(r io.Reader) ([]domain.IndicatorMeta, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata csv: %w", err)
	}
	return parseMetaRows(rows)
}

// ReadObservationsCSV reads long-format date,indicator,value rows
func ReadObservationsCSV(r io.Reader) (map[string][]domain.Observation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read observations csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("observations csv is empty")
	}
	header := make(map[string]int, 3)
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"date", "indicator", "value"} {
		if _, ok := header[required]; !ok {
			return nil, fmt.Errorf("observations csv has no %s column", required)
		}
	}

	out := make(map[string][]domain.Observation)
	for n, row := range rows[1:] {
		if len(row) < len(header) {
			continue
		}
		d, err := ParseDate(row[header["date"]])
		if err != nil {
			return nil, fmt.Errorf("observations row %d: %w", n+2, err)
		}
		v, err := ParseValue(row[header["value"]])
		if err != nil {
			return nil, fmt.Errorf("observations row %d: %w", n+2, err)
		}
		name := strings.TrimSpace(row[header["indicator"]])
		out[name] = append(out[name], domain.Observation{Date: d, Value: v})
	}
	return out, nil
}

// LoadCSV reads a long-format observations file and its metadata file.
// Every indicator in the metadata must have observations.
func LoadCSV(dataPath, metaPath string) ([]domain.IndicatorSeries, error) {
	metas, obs, err := readCSVPair(dataPath, metaPath)
	if err != nil {
		return nil, err
	}
	return assemble(metas, obs)
}

// loadCSVPartial reads an observations file whose indicators are a subset of
// a shared metadata file
func loadCSVPartial(dataPath, metaPath string) ([]domain.IndicatorSeries, error) {
	metas, obs, err := readCSVPair(dataPath, metaPath)
	if err != nil {
		return nil, err
	}
	present := metas[:0:0]
	for _, m := range metas {
		if _, ok := obs[m.Name]; ok {
			present = append(present, m)
		}
	}
	return assemble(present, obs)
}

func readCSVPair(dataPath, metaPath string) ([]domain.IndicatorMeta, map[string][]domain.Observation, error) {
	mf, err := os.Open(metaPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open metadata %s: %w", metaPath, err)
	}
	defer mf.Close()
	metas, err := ReadMetadataCSV(mf)
	if err != nil {
		return nil, nil, err
	}

	df, err := os.Open(dataPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open observations %s: %w", dataPath, err)
	}
	defer df.Close()
	obs, err := ReadObservationsCSV(df)
	if err != nil {
		return nil, nil, err
	}
	return metas, obs, nil
}
