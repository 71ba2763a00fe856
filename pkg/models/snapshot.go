package models

import "time"

// BlockState is the recorded outcome of one block inside a snapshot.
type BlockState struct {
	Output     map[string]any `json:"output"`
	Executed   bool           `json:"executed"`
	DurationMs int64          `json:"duration_ms"`
}

// BlockLog is one per-block execution record.
type BlockLog struct {
	BlockID    string         `json:"block_id"`
	BlockName  string         `json:"block_name"`
	BlockType  string         `json:"block_type"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
	DurationMs int64          `json:"duration_ms"`
	Success    bool           `json:"success"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Decisions records the branch choices a run took, keyed by the deciding
// block's id.
type Decisions struct {
	Router    map[string]string `json:"router,omitempty"`    // router block id -> chosen target id
	Condition map[string]string `json:"condition,omitempty"` // condition block id -> chosen condition id
}

// ExecutionSnapshot is the per-workflow record of what has run and with
// what output. It backs partial re-execution: run-from-block substitutes
// upstream values from here instead of re-running them.
type ExecutionSnapshot struct {
	BlockStates         map[string]*BlockState `json:"block_states"`
	ExecutedBlocks      map[string]bool        `json:"executed_blocks"`
	BlockLogs           []*BlockLog            `json:"block_logs"`
	Decisions           Decisions              `json:"decisions"`
	CompletedLoops      map[string]bool        `json:"completed_loops"`
	ActiveExecutionPath map[string]bool        `json:"active_execution_path"`
}

// NewExecutionSnapshot returns an empty snapshot.
func NewExecutionSnapshot() *ExecutionSnapshot {
	return &ExecutionSnapshot{
		BlockStates:         make(map[string]*BlockState),
		ExecutedBlocks:      make(map[string]bool),
		BlockLogs:           make([]*BlockLog, 0),
		Decisions:           Decisions{Router: make(map[string]string), Condition: make(map[string]string)},
		CompletedLoops:      make(map[string]bool),
		ActiveExecutionPath: make(map[string]bool),
	}
}

// Merge layers other on top of the receiver: executed blocks are
// unioned, block states and decisions from other win per key, and logs
// are concatenated in order. Used after run-until-block and
// run-from-block partial runs; a full run replaces the snapshot instead.
func (s *ExecutionSnapshot) Merge(other *ExecutionSnapshot) {
	if other == nil {
		return
	}

	for id, state := range other.BlockStates {
		s.BlockStates[id] = state
	}

	for id := range other.ExecutedBlocks {
		s.ExecutedBlocks[id] = true
	}

	s.BlockLogs = append(s.BlockLogs, other.BlockLogs...)

	for id, target := range other.Decisions.Router {
		s.Decisions.Router[id] = target
	}

	for id, cond := range other.Decisions.Condition {
		s.Decisions.Condition[id] = cond
	}

	for id := range other.CompletedLoops {
		s.CompletedLoops[id] = true
	}

	for id := range other.ActiveExecutionPath {
		s.ActiveExecutionPath[id] = true
	}
}

// Clone returns a deep copy of the snapshot.
func (s *ExecutionSnapshot) Clone() *ExecutionSnapshot {
	clone := NewExecutionSnapshot()
	clone.Merge(s)

	clone.BlockStates = make(map[string]*BlockState, len(s.BlockStates))
	for id, state := range s.BlockStates {
		stateCopy := *state
		stateCopy.Output = deepCopyMap(state.Output)
		clone.BlockStates[id] = &stateCopy
	}

	return clone
}
