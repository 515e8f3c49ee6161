package operations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStage records its execution and optionally fails
type mockStage struct {
	BaseStage
	err      error
	validate error
	run      func(ctx context.Context, state *RunState) error
	calls    int
}

func newMockStage(id string, deps ...string) *mockStage {
	return &mockStage{BaseStage: NewBaseStage(id, "Mock "+id, deps...)}
}

func (m *mockStage) Validate(*RunState) error { return m.validate }

func (m *mockStage) Execute(ctx context.Context, state *RunState) error {
	m.calls++
	if m.run != nil {
		return m.run(ctx, state)
	}
	return m.err
}

func stageIDs(stages []Stage) []string {
	ids := make([]string, len(stages))
	for i, s := range stages {
		ids[i] = s.ID()
	}
	return ids
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newMockStage("a")))
	assert.Error(t, r.Register(newMockStage("a")), "duplicate id")
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(newMockStage("")))

	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("b"))
	assert.Equal(t, 1, r.Count())

	s, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "Mock a", s.Name())
	_, err = r.Get("b")
	assert.Error(t, err)
}

func TestRegistryDependencyOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newMockStage("persist", "aggregate")))
	require.NoError(t, r.Register(newMockStage("ingest")))
	require.NoError(t, r.Register(newMockStage("calendar", "ingest")))
	require.NoError(t, r.Register(newMockStage("panel", "ingest", "calendar")))
	require.NoError(t, r.Register(newMockStage("aggregate", "panel")))
	require.NoError(t, r.Register(newMockStage("report")))

	ordered, err := r.GetDependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"ingest", "report", "calendar", "panel", "aggregate", "persist"}, stageIDs(ordered))

	assert.Equal(t, []string{"calendar", "panel"}, stageIDs(r.GetDependents("ingest")))
	assert.Empty(t, r.GetDependents("persist"))
}

func TestRegistryDependencyErrors(t *testing.T) {
	t.Run("missing dependency", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(newMockStage("a", "ghost")))
		_, err := r.GetDependencyOrder()
		assert.ErrorContains(t, err, "non-existent stage ghost")
	})

	t.Run("cycle", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(newMockStage("a", "c")))
		require.NoError(t, r.Register(newMockStage("b", "a")))
		require.NoError(t, r.Register(newMockStage("c", "b")))
		_, err := r.GetDependencyOrder()
		assert.ErrorContains(t, err, "cycle")
	})
}
