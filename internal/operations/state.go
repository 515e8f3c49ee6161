package operations

import (
	"sync"
	"time"

	"nowcast/internal/config"
)

// RunStatus represents the overall run status
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState is the complete state of one pipeline run
type RunState struct {
	mu sync.RWMutex

	ID        string
	Status    RunStatus
	StartTime time.Time
	EndTime   *time.Time

	Stages map[string]*StageState

	// Config is read by every stage and never modified
	Config *config.Config

	// Artifacts carries stage outputs between stages
	Artifacts *Artifacts

	Error error
}

// NewRunState creates a pending run
func NewRunState(id string, cfg *config.Config) *RunState {
	return &RunState{
		ID:        id,
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Stages:    make(map[string]*StageState),
		Config:    cfg,
		Artifacts: &Artifacts{},
	}
}

// Start marks the run as running
func (s *RunState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = RunStatusRunning
	s.StartTime = time.Now()
}

// Complete marks the run as completed
func (s *RunState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = RunStatusCompleted
}

// Fail marks the run as failed, or cancelled when err is a cancellation
func (s *RunState) Fail(err error, cancelled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.EndTime = &now
	s.Status = RunStatusFailed
	if cancelled {
		s.Status = RunStatusCancelled
	}
	s.Error = err
}

// GetStage returns the state of a stage
func (s *RunState) GetStage(stageID string) *StageState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Stages[stageID]
}

// SetStage stores the state of a stage
func (s *RunState) SetStage(stageID string, state *StageState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Stages[stageID] = state
}

// GetStatus returns the run status
func (s *RunState) GetStatus() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// Duration returns the run duration so far
func (s *RunState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return time.Since(s.StartTime)
}

// StagesWithStatus returns the IDs of stages in the given status
func (s *RunState) StagesWithStatus(status StageStatus) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, st := range s.Stages {
		if st.GetStatus() == status {
			ids = append(ids, id)
		}
	}
	return ids
}

// Response summarises the run
func (s *RunState) Response() *RunResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := &RunResponse{ID: s.ID, Status: s.Status, Stages: s.Stages}
	if s.EndTime != nil {
		resp.Duration = s.EndTime.Sub(s.StartTime)
	}
	if s.Error != nil {
		resp.Error = s.Error.Error()
	}
	return resp
}
