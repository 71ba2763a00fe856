package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/persistence"
	"github.com/xde-mcp/sim-sub005/pkg/snapshot"
)

// adoptResult finalizes a terminal run: exactly one of persist-logs,
// cancel-console or report-error happens, the snapshot is written per
// the run kind, and executor handle, debug context and pending blocks
// are always cleared before the state returns to idle.
func (c *Controller) adoptResult(ctx context.Context, result *models.ExecutionResult) *models.ExecutionResult {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()

	if run == nil {
		return result
	}

	switch {
	case run.cancelled:
		c.console.MarkAllCancelled(run.executionID)
		c.settle(StateCancelled, result, run)
	case result.Success:
		c.writeSnapshot(ctx, run)
		c.persistLogs(ctx, run, result)
		c.settle(StateCompleted, result, run)
	default:
		result.Error = normalizeError(errors.New(result.Error))

		c.synthesizeErrorLog(run, result.Error, false)
		c.persistLogs(ctx, run, result)
		c.settle(StateErrored, result, run)
	}

	return result
}

// finalizePreExecution reports a failure that happened before (or
// instead of) a normal terminal event: trigger validation, dependency
// gating, a refused executor call.
func (c *Controller) finalizePreExecution(ctx context.Context, workflowID string, err error) (*models.ExecutionResult, error) {
	now := time.Now().UTC()

	result := &models.ExecutionResult{
		Success: false,
		Error:   normalizeError(err),
		Metadata: &models.ResultMetadata{
			StartTime: now,
			EndTime:   now,
		},
	}

	c.mu.Lock()
	run := c.run
	c.mu.Unlock()

	if run == nil {
		run = c.newRun(models.NewWorkflowState(workflowID), runFull, "", nil)
	}

	// Pre-execution errors always get a synthetic error log entry.
	c.synthesizeErrorLog(run, result.Error, true)
	result.Logs = run.logs

	c.settle(StateErrored, result, run)

	return result, err
}

func (c *Controller) finalizeDebugRun(ctx context.Context, result *models.ExecutionResult) (*models.ExecutionResult, error) {
	return c.adoptResult(ctx, result), nil
}

// finalizeCancelledDebug closes a paused debug session on cancel.
func (c *Controller) finalizeCancelledDebug(ctx context.Context) {
	c.mu.Lock()
	run := c.run
	c.mu.Unlock()

	if run != nil {
		c.console.MarkAllCancelled(run.executionID)
	}

	result := &models.ExecutionResult{Success: false}
	c.settle(StateCancelled, result, run)
}

// settle performs the terminal transition and the return to idle,
// clearing every per-run field.
func (c *Controller) settle(terminal State, result *models.ExecutionResult, run *runState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CanTransition(terminal) {
		c.logger.Warn("forcing terminal state", "from", string(c.state), "to", string(terminal))
	}

	c.state = StateIdle
	c.result = result
	c.lastRun = run
	c.run = nil
	c.debugCtx = nil
	c.pendingBlocks = nil
}

// writeSnapshot applies the run's outcome to the store: a full run
// replaces the snapshot wholesale, partial runs merge so blocks outside
// the run keep their prior state.
func (c *Controller) writeSnapshot(ctx context.Context, run *runState) {
	switch run.kind {
	case runFull:
		c.snapshots.Replace(ctx, run.workflowID, run.candidate)
	case runFromBlock, runUntilBlock:
		c.snapshots.MergeInto(ctx, run.workflowID, run.candidate)
	}
}

// persistLogs hands the finalized record to the log repository. Fire
// and forget: failure is logged, never surfaced.
func (c *Controller) persistLogs(ctx context.Context, run *runState, result *models.ExecutionResult) {
	if c.execLogs == nil {
		return
	}

	record := &persistence.ExecutionRecord{
		ExecutionID: run.executionID,
		WorkflowID:  run.workflowID,
		Trigger:     run.trigger,
		StartedAt:   run.startedAt,
		EndedAt:     time.Now().UTC(),
		Success:     result.Success,
		Error:       result.Error,
		Logs:        run.logs,
	}

	record.DurationMs = record.EndedAt.Sub(record.StartedAt).Milliseconds()

	if err := c.execLogs.SaveExecution(ctx, record); err != nil {
		c.logger.WarnContext(ctx, "failed to persist execution logs",
			"workflow_id", run.workflowID, "execution_id", run.executionID, "error", err)
	}
}

// synthesizeErrorLog appends a synthetic error entry. Pre-execution
// failures always get one; runtime failures only when no block already
// reported its own error, to avoid duplicate error entries.
func (c *Controller) synthesizeErrorLog(run *runState, message string, preExecution bool) {
	if !preExecution {
		for _, entry := range run.logs {
			if !entry.Success {
				return
			}
		}
	}

	now := time.Now().UTC()
	run.logs = append(run.logs, &models.BlockLog{
		BlockName: "Execution",
		StartedAt: now,
		EndedAt:   now,
		Success:   false,
		Error:     message,
	})
}

// checkDependencies gates run-from-block: every direct upstream source
// of the target must already be executed in the snapshot or itself be a
// trigger. A non-trigger target with no upstream at all is stale by
// definition.
func (c *Controller) checkDependencies(state *models.WorkflowState, target *models.Block, snap *models.ExecutionSnapshot) error {
	incoming := state.IncomingEdges(target.ID)
	if len(incoming) == 0 {
		return fmt.Errorf("upstream dependency not executed: %s has no connected upstream", target.ID)
	}

	for _, edge := range incoming {
		source, ok := state.Blocks[edge.Source]
		if !ok {
			return fmt.Errorf("block not found: %s", edge.Source)
		}

		if models.IsTriggerType(source.Type) {
			continue
		}

		if !snap.ExecutedBlocks[source.ID] {
			return fmt.Errorf("upstream dependency not executed: %s", source.ID)
		}
	}

	return nil
}

// invalidateSnapshot clears the stored snapshot when the error shape
// says it is stale, wrapping the cause for the caller.
func (c *Controller) invalidateSnapshot(ctx context.Context, workflowID string, err error) error {
	if !snapshot.IsStale(err) {
		return err
	}

	c.snapshots.Clear(ctx, workflowID)

	return &SnapshotInvalidationError{WorkflowID: workflowID, Err: err}
}
