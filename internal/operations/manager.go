package operations

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"nowcast/internal/errors"
)

// StageRecorder receives stage timings for metrics
type StageRecorder interface {
	RecordStage(ctx context.Context, stage string, d time.Duration, err error)
}

// ManagerOptions configure a Manager. Zero values select defaults.
type ManagerOptions struct {
	Logger   *slog.Logger
	Tracer   *PipelineTracer
	Recorder StageRecorder
	// Timeouts bound individual stages by ID
	Timeouts map[string]time.Duration
}

// Manager executes the stages of a registry in dependency order
type Manager struct {
	registry *Registry
	logger   *slog.Logger
	tracer   *PipelineTracer
	recorder StageRecorder
	timeouts map[string]time.Duration
}

// NewManager creates a manager over registry
func NewManager(registry *Registry, opts ManagerOptions) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = NewPipelineTracer(nil)
	}
	return &Manager{
		registry: registry,
		logger:   opts.Logger,
		tracer:   opts.Tracer,
		recorder: opts.Recorder,
		timeouts: opts.Timeouts,
	}
}

// Registry returns the registry of the manager
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Execute runs every stage sequentially. The first failure aborts the run
// and marks every stage depending on the failed one as skipped.
func (m *Manager) Execute(ctx context.Context, state *RunState) (*RunResponse, error) {
	ctx, span := m.tracer.TraceRun(ctx, state.ID, state.Config)

	stages, err := m.registry.GetDependencyOrder()
	if err != nil {
		err = errors.NewConfigurationError(fmt.Sprintf("invalid stage graph: %v", err), nil)
		m.logRunError(ctx, state.ID, err)
		state.Fail(err, false)
		m.tracer.RecordRunCompletion(ctx, span, state, err)
		return state.Response(), err
	}
	for _, stage := range stages {
		state.SetStage(stage.ID(), NewStageState(stage.ID(), stage.Name()))
	}

	m.logRunStart(ctx, state.ID, len(stages))
	state.Start()
	err = m.executeSequential(ctx, state, stages)
	if err != nil {
		state.Fail(err, stderrors.Is(err, context.Canceled))
		m.logRunError(ctx, state.ID, err)
	} else {
		state.Complete()
		m.logRunComplete(ctx, state.ID, state.Duration())
	}
	m.tracer.RecordRunCompletion(ctx, span, state, err)
	return state.Response(), err
}

func (m *Manager) executeSequential(ctx context.Context, state *RunState, stages []Stage) error {
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			m.logger.WarnContext(ctx, "run_cancelled",
				slog.String("run_id", state.ID),
				slog.String("stage", stage.ID()))
			m.skipRemaining(state, stages[i:], "run cancelled")
			return fmt.Errorf("run cancelled before stage %s: %w", stage.ID(), err)
		}

		m.logger.InfoContext(ctx, "executing_stage",
			slog.String("run_id", state.ID),
			slog.String("stage", stage.ID()),
			slog.Int("stage_number", i+1),
			slog.Int("total_stages", len(stages)))
		if err := m.executeStage(ctx, state, stage); err != nil {
			m.skipDependentStages(state, stages, stage.ID())
			return err
		}
		m.logger.InfoContext(ctx, "stage_completed_successfully",
			slog.String("run_id", state.ID),
			slog.String("stage", stage.ID()))
	}
	return nil
}

func (m *Manager) executeStage(ctx context.Context, state *RunState, stage Stage) error {
	stageState := state.GetStage(stage.ID())
	if err := m.checkDependencies(state, stage); err != nil {
		stageState.Skip(err.Error())
		return errors.Annotate(err, stage.ID())
	}
	if err := stage.Validate(state); err != nil {
		stageState.Fail(err)
		m.logStageError(ctx, state.ID, stage.ID(), err)
		return errors.Annotate(err, stage.ID())
	}

	timeout := DefaultStageTimeout
	if t, ok := m.timeouts[stage.ID()]; ok && t > 0 {
		timeout = t
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stageCtx, span := m.tracer.TraceStage(stageCtx, state.ID, stage)

	m.logStageStart(stageCtx, state.ID, stage.ID())
	stageState.Start()
	start := time.Now()
	err := stage.Execute(stageCtx, state)
	duration := time.Since(start)

	if m.recorder != nil {
		m.recorder.RecordStage(ctx, stage.ID(), duration, err)
	}
	m.tracer.RecordStageCompletion(stageCtx, span, duration, err)

	if err != nil {
		stageState.Fail(err)
		m.logStageError(ctx, state.ID, stage.ID(), err)
		if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("stage %s: %w", stage.ID(), err)
		}
		return errors.Annotate(err, stage.ID())
	}
	stageState.Complete()
	m.logStageComplete(ctx, state.ID, stage.ID(), duration)
	return nil
}

// skipDependentStages marks every pending stage that depends on failedID,
// directly or transitively, as skipped
func (m *Manager) skipDependentStages(state *RunState, stages []Stage, failedID string) {
	for _, stage := range stages {
		for _, dep := range stage.Dependencies() {
			if dep != failedID {
				continue
			}
			st := state.GetStage(stage.ID())
			if st != nil && st.GetStatus() == StageStatusPending {
				st.Skip(fmt.Sprintf("dependency %s failed", failedID))
				m.skipDependentStages(state, stages, stage.ID())
			}
			break
		}
	}
}

func (m *Manager) skipRemaining(state *RunState, stages []Stage, reason string) {
	for _, stage := range stages {
		if st := state.GetStage(stage.ID()); st != nil && st.GetStatus() == StageStatusPending {
			st.Skip(reason)
		}
	}
}

// checkDependencies verifies that all dependencies completed
func (m *Manager) checkDependencies(state *RunState, stage Stage) error {
	for _, dep := range stage.Dependencies() {
		depState := state.GetStage(dep)
		if depState == nil {
			return errors.NewConfigurationError(fmt.Sprintf("dependency %s not found", dep), nil)
		}
		if depState.GetStatus() != StageStatusCompleted {
			return errors.NewConfigurationError(
				fmt.Sprintf("dependency %s not completed (status: %s)", dep, depState.GetStatus()), nil)
		}
	}
	return nil
}
