// Package executor runs workflow graphs. The Service contract is what
// the execution controller consumes: a streaming black box that
// delivers block lifecycle events and terminates every run with exactly
// one of completed, error or cancelled.
package executor

import (
	"context"

	"github.com/xde-mcp/sim-sub005/pkg/events"
	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// Callbacks receive the lifecycle events of one run. Nil members are
// skipped. Exactly one of the three terminal callbacks fires per run.
type Callbacks struct {
	OnBlockStarted       func(ctx context.Context, event *events.BlockStarted)
	OnBlockCompleted     func(ctx context.Context, event *events.BlockCompleted)
	OnBlockError         func(ctx context.Context, event *events.BlockError)
	OnStreamChunk        func(ctx context.Context, event *events.StreamChunk)
	OnExecutionCompleted func(ctx context.Context, event *events.ExecutionCompleted)
	OnExecutionError     func(ctx context.Context, event *events.ExecutionError)
	OnExecutionCancelled func(ctx context.Context, event *events.ExecutionCancelled)
}

// Request describes a run from the workflow's resolved start block.
type Request struct {
	WorkflowID   string
	State        *models.WorkflowState
	StartBlockID string
	Input        map[string]any
	TriggerType  string
	// StopAfterBlockID makes the run stop immediately after the named
	// block completes, leaving a partial result.
	StopAfterBlockID string
	// Debug executes only the start block and returns the pending
	// frontier instead of auto-advancing.
	Debug bool
}

// FromBlockRequest describes a run scoped to the subgraph reachable
// from StartBlockID, with upstream values substituted from
// SourceSnapshot.
type FromBlockRequest struct {
	WorkflowID     string
	State          *models.WorkflowState
	StartBlockID   string
	Input          map[string]any
	SourceSnapshot *models.ExecutionSnapshot
}

// DebugContext carries the paused walk of a debug session between
// Execute and ContinueExecution calls. Opaque to callers.
type DebugContext struct {
	WorkflowID  string
	ExecutionID string

	run *run
}

// Service is the execution engine contract.
type Service interface {
	Execute(ctx context.Context, req Request, cb Callbacks) (*models.ExecutionResult, error)
	ExecuteFromBlock(ctx context.Context, req FromBlockRequest, cb Callbacks) (*models.ExecutionResult, error)
	// ContinueExecution runs exactly the pending blocks once. The result
	// either carries Metadata.PendingBlocks (debug continues) or is
	// terminal.
	ContinueExecution(ctx context.Context, pendingBlocks []string, debugCtx *DebugContext, cb Callbacks) (*models.ExecutionResult, error)
	// DebugSession returns the paused debug session of the open run, or
	// nil when no run is paused.
	DebugSession() *DebugContext
	// Cancel is a best-effort abort of the currently open run.
	Cancel()
}
