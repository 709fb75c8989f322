package core

import (
	"sync"
	"time"
)

// RunMode selects how the engine runs a sequence.
type RunMode string

const (
	RunOnce RunMode = "once"
	RunLoop RunMode = "loop"
)

// ExecutionState holds the single source of truth for what the engine is
// doing. There is exactly one instance per process and only the engine
// mutates it; everyone else reads snapshots via Clone.
type ExecutionState struct {
	mu           sync.RWMutex
	Running      bool
	Mode         RunMode
	SequenceName string
	LoopCount    int
	Since        time.Time
}

// NewExecutionState creates a new idle ExecutionState.
func NewExecutionState() *ExecutionState {
	return &ExecutionState{}
}

// Clone returns a snapshot of the current state for safe reading.
func (s *ExecutionState) Clone() ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ExecutionState{
		Running:      s.Running,
		Mode:         s.Mode,
		SequenceName: s.SequenceName,
		LoopCount:    s.LoopCount,
		Since:        s.Since,
	}
}

// SetRunning marks a sequence as running and resets the loop counter.
func (s *ExecutionState) SetRunning(name string, mode RunMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running = true
	s.Mode = mode
	s.SequenceName = name
	s.LoopCount = 0
	s.Since = time.Now()
}

// SetIdle clears the running state.
func (s *ExecutionState) SetIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Running = false
	s.Mode = ""
	s.SequenceName = ""
	s.LoopCount = 0
	s.Since = time.Time{}
}

// IncrementLoop bumps the loop counter by one completed pass and returns the
// new count.
func (s *ExecutionState) IncrementLoop() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoopCount++
	return s.LoopCount
}
