// Package persistence provides storage abstraction for finished
// execution records.
package persistence

import (
	"context"
	"time"

	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// ExecutionRecord is the durable trace of one finalized run.
type ExecutionRecord struct {
	ExecutionID string             `json:"execution_id"`
	WorkflowID  string             `json:"workflow_id"`
	Trigger     string             `json:"trigger"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     time.Time          `json:"ended_at"`
	DurationMs  int64              `json:"duration_ms"`
	Success     bool               `json:"success"`
	Error       string             `json:"error,omitempty"`
	Logs        []*models.BlockLog `json:"logs"`
}

// ExecutionLogRepository persists execution records. Callers treat Save
// as fire and forget: a failed save is logged, never surfaced.
type ExecutionLogRepository interface {
	SaveExecution(ctx context.Context, record *ExecutionRecord) error
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*ExecutionRecord, error)
	ExecutionByID(ctx context.Context, executionID string) (*ExecutionRecord, error)
	Close(ctx context.Context) error
}
