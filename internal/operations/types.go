package operations

import (
	"time"
)

// Pipeline stage identifiers
const (
	StageIDIngest       = "ingest"
	StageIDCalendar     = "calendar"
	StageIDPanel        = "panel"
	StageIDStationarity = "stationarity"
	StageIDSample       = "sample"
	StageIDEvaluate     = "evaluate"
	StageIDAggregate    = "aggregate"
	StageIDPersist      = "persist"
)

// Pipeline stage names
const (
	StageNameIngest       = "Input Ingestion"
	StageNameCalendar     = "Release Calendar"
	StageNamePanel        = "Panel Construction"
	StageNameStationarity = "Stationarity Filter"
	StageNameSample       = "Sample Split"
	StageNameEvaluate     = "Rolling Evaluation"
	StageNameAggregate    = "Horizon Pooling"
	StageNamePersist      = "Run Persistence"
)

// DefaultStageTimeout bounds a stage that has no configured timeout
const DefaultStageTimeout = 30 * time.Minute

// RunResponse summarises a finished run
type RunResponse struct {
	ID       string                 `json:"id"`
	Status   RunStatus              `json:"status"`
	Duration time.Duration          `json:"duration"`
	Stages   map[string]*StageState `json:"stages"`
	Error    string                 `json:"error,omitempty"`
}
