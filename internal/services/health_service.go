package services

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"nowcast/pkg/contracts"
)

// HealthService reports liveness and readiness of the results server
type HealthService struct {
	resultsDir string
	startTime  time.Time
	logger     *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Version   string                   `json:"version"`
	Runtime   map[string]interface{}   `json:"runtime,omitempty"`
	Services  map[string]ServiceHealth `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a health service for the bundles under resultsDir
func NewHealthService(resultsDir string, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		resultsDir: resultsDir,
		startTime:  time.Now(),
		logger:     logger.With(slog.String("service", "health")),
	}
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Runtime: map[string]interface{}{
			"uptime":     time.Since(hs.startTime).Seconds(),
			"go_version": runtime.Version(),
			"goroutines": runtime.NumGoroutine(),
		},
	}
}

// ReadinessCheck reports ready once the results directory can be read
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   contracts.Version,
		Services:  map[string]ServiceHealth{"results": hs.checkResults()},
	}
	for _, sh := range status.Services {
		if sh.Status != "ready" {
			status.Status = "not_ready"
		}
	}
	if status.Status != "ready" {
		hs.logger.WarnContext(ctx, "readiness_failed", slog.Any("services", status.Services))
	}
	return status
}

// Version returns version information
func (hs *HealthService) Version() contracts.VersionInfo {
	return contracts.GetVersionInfo()
}

func (hs *HealthService) checkResults() ServiceHealth {
	info, err := os.Stat(hs.resultsDir)
	switch {
	case os.IsNotExist(err):
		// no run has been persisted yet
		return ServiceHealth{Status: "ready", Message: "results directory not created yet"}
	case err != nil:
		return ServiceHealth{Status: "error", Message: err.Error()}
	case !info.IsDir():
		return ServiceHealth{Status: "error", Message: "results path is not a directory"}
	}
	return ServiceHealth{Status: "ready"}
}
