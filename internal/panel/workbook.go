package panel

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"nowcast/pkg/contracts/domain"
)

// MetadataSheet is the workbook sheet holding indicator metadata
const MetadataSheet = "metadata"

// LoadWorkbook reads an indicator workbook: a metadata sheet plus one sheet
// per indicator whose first two columns are date and value
func LoadWorkbook(path string) ([]domain.IndicatorSeries, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	metaRows, err := f.GetRows(MetadataSheet)
	if err != nil {
		return nil, fmt.Errorf("workbook %s has no %s sheet: %w", path, MetadataSheet, err)
	}
	metas, err := parseMetaRows(metaRows)
	if err != nil {
		return nil, fmt.Errorf("workbook %s: %w", path, err)
	}

	sheets := make(map[string]string)
	for _, name := range f.GetSheetList() {
		sheets[strings.ToLower(strings.TrimSpace(name))] = name
	}

	obs := make(map[string][]domain.Observation, len(metas))
	for _, m := range metas {
		sheet, ok := sheets[strings.ToLower(m.Name)]
		if !ok {
			return nil, fmt.Errorf("workbook %s has no sheet for indicator %s", path, m.Name)
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}
		series, err := parseSheetRows(rows)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		obs[m.Name] = series
	}
	return assemble(metas, obs)
}

func parseSheetRows(rows [][]string) ([]domain.Observation, error) {
	var out []domain.Observation
	for i, row := range rows {
		if len(row) < 2 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		d, err := ParseDate(row[0])
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		v, err := ParseValue(row[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, domain.Observation{Date: d, Value: v})
	}
	return out, nil
}
