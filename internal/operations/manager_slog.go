package operations

import (
	"context"
	"log/slog"
	"time"
)

func (m *Manager) logRunStart(ctx context.Context, runID string, stages int) {
	m.logger.InfoContext(ctx, "run_start",
		slog.String("run_id", runID),
		slog.Int("stage_count", stages))
}

func (m *Manager) logRunComplete(ctx context.Context, runID string, duration time.Duration) {
	m.logger.InfoContext(ctx, "run_complete",
		slog.String("run_id", runID),
		slog.Duration("duration", duration))
}

func (m *Manager) logRunError(ctx context.Context, runID string, err error) {
	m.logger.ErrorContext(ctx, "run_error",
		slog.String("run_id", runID),
		slog.String("error", errString(err)))
}

func (m *Manager) logStageStart(ctx context.Context, runID, stageID string) {
	m.logger.DebugContext(ctx, "stage_start",
		slog.String("run_id", runID),
		slog.String("stage", stageID))
}

func (m *Manager) logStageComplete(ctx context.Context, runID, stageID string, duration time.Duration) {
	m.logger.InfoContext(ctx, "stage_complete",
		slog.String("run_id", runID),
		slog.String("stage", stageID),
		slog.Duration("duration", duration))
}

func (m *Manager) logStageError(ctx context.Context, runID, stageID string, err error) {
	m.logger.ErrorContext(ctx, "stage_error",
		slog.String("run_id", runID),
		slog.String("stage", stageID),
		slog.String("error", errString(err)))
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
