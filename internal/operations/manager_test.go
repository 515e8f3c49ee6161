package operations

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowcast/internal/config"
	"nowcast/internal/errors"
	"nowcast/internal/shared/testutil"
)

type stageEvent struct {
	stage string
	err   error
}

type stageRecorder struct {
	mu     sync.Mutex
	events []stageEvent
}

func (r *stageRecorder) RecordStage(_ context.Context, stage string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, stageEvent{stage, err})
}

func newTestManager(t *testing.T, stages ...Stage) (*Manager, *testutil.LogCapture, *stageRecorder) {
	t.Helper()
	r := NewRegistry()
	for _, s := range stages {
		require.NoError(t, r.Register(s))
	}
	logger, logs := testutil.NewLogger(t)
	rec := &stageRecorder{}
	return NewManager(r, ManagerOptions{Logger: logger, Recorder: rec}), logs, rec
}

func TestManagerExecute(t *testing.T) {
	a := newMockStage("a")
	b := newMockStage("b", "a")
	var order []string
	a.run = func(context.Context, *RunState) error { order = append(order, "a"); return nil }
	b.run = func(context.Context, *RunState) error { order = append(order, "b"); return nil }
	m, logs, rec := newTestManager(t, b, a)

	state := NewRunState("run-1", config.Default())
	resp, err := m.Execute(context.Background(), state)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, RunStatusCompleted, resp.Status)
	assert.Equal(t, "run-1", resp.ID)
	assert.Empty(t, resp.Error)
	assert.Equal(t, StageStatusCompleted, resp.Stages["a"].GetStatus())
	assert.Equal(t, StageStatusCompleted, resp.Stages["b"].GetStatus())
	assert.Len(t, rec.events, 2)

	testutil.AssertLogged(t, logs, slog.LevelInfo, "run_start")
	testutil.AssertLogged(t, logs, slog.LevelInfo, "run_complete")
	assert.Equal(t, 2, logs.Count("stage_complete"))
}

func TestManagerFailureSkipsDependents(t *testing.T) {
	a := newMockStage("a")
	b := newMockStage("b", "a")
	c := newMockStage("c", "b")
	d := newMockStage("d")
	a.err = stderrors.New("disk on fire")
	m, logs, rec := newTestManager(t, a, b, c, d)

	state := NewRunState("run-2", config.Default())
	_, err := m.Execute(context.Background(), state)
	require.Error(t, err)

	var pe *errors.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, errors.ErrorTypeExecution, pe.Type)
	assert.Equal(t, "a", pe.Stage)
	assert.ErrorContains(t, err, "disk on fire")

	assert.Equal(t, RunStatusFailed, state.GetStatus())
	assert.Equal(t, StageStatusFailed, state.GetStage("a").GetStatus())
	assert.Equal(t, StageStatusSkipped, state.GetStage("b").GetStatus())
	assert.Equal(t, StageStatusSkipped, state.GetStage("c").GetStatus())
	assert.Equal(t, StageStatusPending, state.GetStage("d").GetStatus(), "independent stages are not skipped")
	assert.Zero(t, b.calls)
	assert.Zero(t, d.calls)

	require.Len(t, rec.events, 1)
	assert.Equal(t, "a", rec.events[0].stage)
	assert.Error(t, rec.events[0].err)
	testutil.AssertLogged(t, logs, slog.LevelError, "stage_error")
	testutil.AssertLogged(t, logs, slog.LevelError, "run_error")
}

func TestManagerValidateFailure(t *testing.T) {
	a := newMockStage("a")
	a.validate = errors.NewConfigurationError("missing artifact", nil)
	m, _, rec := newTestManager(t, a)

	state := NewRunState("run-3", config.Default())
	_, err := m.Execute(context.Background(), state)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
	assert.Zero(t, a.calls)
	assert.Empty(t, rec.events)
	assert.Equal(t, StageStatusFailed, state.GetStage("a").GetStatus())
}

func TestManagerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := newMockStage("a")
	a.run = func(context.Context, *RunState) error { cancel(); return nil }
	b := newMockStage("b", "a")
	m, _, _ := newTestManager(t, a, b)

	state := NewRunState("run-4", config.Default())
	_, err := m.Execute(ctx, state)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, RunStatusCancelled, state.GetStatus())
	assert.Equal(t, StageStatusCompleted, state.GetStage("a").GetStatus())
	assert.Equal(t, StageStatusSkipped, state.GetStage("b").GetStatus())
	assert.Zero(t, b.calls)
}

func TestManagerStageTimeout(t *testing.T) {
	a := newMockStage("a")
	a.run = func(ctx context.Context, _ *RunState) error {
		<-ctx.Done()
		return ctx.Err()
	}
	r := NewRegistry()
	require.NoError(t, r.Register(a))
	m := NewManager(r, ManagerOptions{Timeouts: map[string]time.Duration{"a": 10 * time.Millisecond}})

	state := NewRunState("run-5", config.Default())
	_, err := m.Execute(context.Background(), state)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, RunStatusFailed, state.GetStatus())
}

func TestManagerRejectsCycles(t *testing.T) {
	m, _, _ := newTestManager(t, newMockStage("a", "b"), newMockStage("b", "a"))
	state := NewRunState("run-6", config.Default())
	resp, err := m.Execute(context.Background(), state)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConfiguration))
	assert.Equal(t, RunStatusFailed, resp.Status)
}
