package operations

import (
	"nowcast/internal/calendar"
	"nowcast/internal/evaluate"
	"nowcast/internal/exporter"
	"nowcast/internal/files"
	"nowcast/internal/panel"
	"nowcast/internal/results"
	"nowcast/internal/sample"
	"nowcast/internal/stationarity"
	"nowcast/pkg/contracts/domain"
)

// Artifacts holds one typed output per stage. A stage writes only its own
// field, once, and later stages read earlier fields without modifying them.
type Artifacts struct {
	Inputs       *Inputs
	Calendar     *calendar.Calendar
	Panel        *panel.Stages
	Stationarity *StationarityOutput
	Sample       *SampleOutput
	Evaluation   *evaluate.Outcome
	Results      *ResultsOutput
	Persisted    *PersistOutput
}

// Inputs are the indicator series of the run and the files they came from
type Inputs struct {
	Dir         string
	Files       []files.Input
	Fingerprint string
	Series      []domain.IndicatorSeries
}

// Metas returns the indicator metadata in input order
func (in *Inputs) Metas() []domain.IndicatorMeta {
	out := make([]domain.IndicatorMeta, len(in.Series))
	for i, s := range in.Series {
		out[i] = s.Meta
	}
	return out
}

// StationarityOutput is the tested panel, its report and the filtered panel
type StationarityOutput struct {
	Tested   *panel.Panel
	Report   stationarity.Report
	Filtered *panel.Panel
}

// SampleOutput is the evaluation dataset and its visibility index
type SampleOutput struct {
	Dataset *sample.Dataset
	Index   *sample.Index
}

// ResultsOutput is the result table including pooled series
type ResultsOutput struct {
	Table   *results.Table
	Summary []results.SummaryRow
}

// PersistOutput lists what the run wrote
type PersistOutput struct {
	Bundle       *exporter.Bundle
	BundlePath   string
	WorkbookPath string
	CSVPath      string
}
