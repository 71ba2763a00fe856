package models

import "time"

// ResultMetadata carries timing and debug continuation data of a run.
type ResultMetadata struct {
	DurationMs    int64     `json:"duration_ms"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	PendingBlocks []string  `json:"pending_blocks,omitempty"`
}

// ExecutionResult is the terminal outcome of one run (or of one debug
// step when PendingBlocks is non-empty).
type ExecutionResult struct {
	Success  bool            `json:"success"`
	Output   map[string]any  `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
	Logs     []*BlockLog     `json:"logs,omitempty"`
	Metadata *ResultMetadata `json:"metadata,omitempty"`
}
