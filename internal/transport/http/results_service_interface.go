package http

import (
	"context"

	"nowcast/internal/exporter"
	"nowcast/internal/results"
	"nowcast/internal/services"
	"nowcast/pkg/contracts/domain"
)

// ResultsServiceInterface defines the read operations over persisted runs
type ResultsServiceInterface interface {
	ListRuns(ctx context.Context) ([]exporter.BundleInfo, error)
	GetRun(ctx context.Context, id string) (*services.RunDetail, error)
	Records(ctx context.Context, id string, q services.RecordQuery) ([]domain.ResultRecord, error)
	Summary(ctx context.Context, id string) ([]results.SummaryRow, error)
}

// HealthServiceInterface defines the health operations
type HealthServiceInterface interface {
	LivenessCheck(ctx context.Context) services.HealthStatus
	ReadinessCheck(ctx context.Context) services.HealthStatus
}
