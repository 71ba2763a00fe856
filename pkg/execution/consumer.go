package execution

import (
	"context"
	"strings"
	"time"

	"github.com/xde-mcp/sim-sub005/pkg/console"
	"github.com/xde-mcp/sim-sub005/pkg/events"
	"github.com/xde-mcp/sim-sub005/pkg/executor"
	"github.com/xde-mcp/sim-sub005/pkg/models"
)

// callbacks builds the event-stream consumer for the current run. Block
// events arrive in per-block order (started before completed/error);
// stream chunks may arrive concurrently from the drain goroutines, so
// every handler takes the controller lock.
func (c *Controller) callbacks() executor.Callbacks {
	cb := executor.Callbacks{
		OnBlockStarted:       c.onBlockStarted,
		OnBlockCompleted:     c.onBlockCompleted,
		OnBlockError:         c.onBlockError,
		OnStreamChunk:        c.onStreamChunk,
		OnExecutionCompleted: c.onExecutionCompleted,
		OnExecutionError:     c.onExecutionError,
		OnExecutionCancelled: c.onExecutionCancelled,
	}

	if c.observer != nil {
		cb = cb.Merge(*c.observer)
	}

	return cb
}

func (c *Controller) onBlockStarted(ctx context.Context, event *events.BlockStarted) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.run
	if run == nil {
		return
	}

	run.executionID = event.ExecutionID
	run.activeBlocks[event.BlockID] = true

	// Edges terminating at the block light up for UI feedback.
	for _, edge := range run.graph.IncomingEdges(event.BlockID) {
		if !run.traversedSeen[edge.ID] {
			run.traversedSeen[edge.ID] = true
			run.traversedEdges = append(run.traversedEdges, edge.ID)
		}
	}

	run.consoleIDs[event.BlockID] = c.console.Add(&console.Entry{
		ExecutionID: event.ExecutionID,
		BlockID:     event.BlockID,
		BlockName:   event.BlockName,
		BlockType:   event.BlockType,
		Status:      console.StatusRunning,
		StartedAt:   event.Timestamp,
	})
}

func (c *Controller) onBlockCompleted(ctx context.Context, event *events.BlockCompleted) {
	c.mu.Lock()

	run := c.run
	if run == nil {
		c.mu.Unlock()

		return
	}

	delete(run.activeBlocks, event.BlockID)

	run.candidate.ExecutedBlocks[event.BlockID] = true
	run.candidate.ActiveExecutionPath[event.BlockID] = true
	run.candidate.BlockStates[event.BlockID] = &models.BlockState{
		Output:     event.Output,
		Executed:   true,
		DurationMs: event.DurationMs,
	}

	// Containers produce no user-visible output of their own.
	isContainer := event.BlockType == models.BlockTypeLoop || event.BlockType == models.BlockTypeParallel
	if !isContainer {
		run.logs = append(run.logs, &models.BlockLog{
			BlockID:    event.BlockID,
			BlockName:  event.BlockName,
			BlockType:  event.BlockType,
			StartedAt:  event.Timestamp.Add(-time.Duration(event.DurationMs) * time.Millisecond),
			EndedAt:    event.Timestamp,
			DurationMs: event.DurationMs,
			Success:    true,
			Output:     event.Output,
		})
	}

	if id, ok := run.consoleIDs[event.BlockID]; ok {
		c.console.Finalize(id, console.Update{
			Status:     console.StatusSuccess,
			EndedAt:    event.Timestamp,
			DurationMs: event.DurationMs,
			Output:     event.Output,
		})
	}

	callback := run.onBlockComplete
	c.mu.Unlock()

	if callback != nil {
		if err := callback(event.BlockID, event.Output); err != nil {
			c.logger.WarnContext(ctx, "block completion callback failed",
				"block_id", event.BlockID, "error", err)
		}
	}
}

func (c *Controller) onBlockError(ctx context.Context, event *events.BlockError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.run
	if run == nil {
		return
	}

	delete(run.activeBlocks, event.BlockID)

	run.candidate.BlockStates[event.BlockID] = &models.BlockState{
		Output:     map[string]any{"error": event.Error},
		DurationMs: event.DurationMs,
	}

	run.logs = append(run.logs, &models.BlockLog{
		BlockID:    event.BlockID,
		BlockName:  event.BlockName,
		BlockType:  event.BlockType,
		StartedAt:  event.Timestamp.Add(-time.Duration(event.DurationMs) * time.Millisecond),
		EndedAt:    event.Timestamp,
		DurationMs: event.DurationMs,
		Success:    false,
		Error:      event.Error,
	})

	if id, ok := run.consoleIDs[event.BlockID]; ok {
		c.console.Finalize(id, console.Update{
			Status:     console.StatusError,
			EndedAt:    event.Timestamp,
			DurationMs: event.DurationMs,
			Output:     map[string]any{"error": event.Error},
			Error:      event.Error,
		})
	}
}

// adoptSnapshot folds the terminal snapshot fields the per-block events
// never carry: the ordered block logs, branch decisions, and completed
// loops. Block states stay as accumulated from the completion events,
// which keeps their durations.
func (r *runState) adoptSnapshot(snap *models.ExecutionSnapshot) {
	if snap == nil {
		return
	}

	r.candidate.BlockLogs = append(r.candidate.BlockLogs, snap.BlockLogs...)

	for id, target := range snap.Decisions.Router {
		r.candidate.Decisions.Router[id] = target
	}

	for id, cond := range snap.Decisions.Condition {
		r.candidate.Decisions.Condition[id] = cond
	}

	for id := range snap.CompletedLoops {
		r.candidate.CompletedLoops[id] = true
	}
}

func (c *Controller) onStreamChunk(ctx context.Context, event *events.StreamChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.run
	if run == nil || run.cancelled {
		return
	}

	buf, ok := run.streamBufs[event.BlockID]
	if !ok {
		buf = &strings.Builder{}
		run.streamBufs[event.BlockID] = buf

		// Separate this block's transcript from earlier streamed output.
		if len(run.streamOrder) > 0 {
			buf.WriteString("\n")
		}

		run.streamOrder = append(run.streamOrder, event.BlockID)
	}

	buf.WriteString(event.Chunk)
}

func (c *Controller) onExecutionCompleted(ctx context.Context, event *events.ExecutionCompleted) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		c.run.executionID = event.ExecutionID
		c.run.adoptSnapshot(event.Snapshot)
	}
}

func (c *Controller) onExecutionError(ctx context.Context, event *events.ExecutionError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		c.run.executionID = event.ExecutionID
	}
}

func (c *Controller) onExecutionCancelled(ctx context.Context, event *events.ExecutionCancelled) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		c.run.executionID = event.ExecutionID
		c.run.cancelled = true
	}
}

// StreamedContent returns the concatenated stream transcript of the
// last run, in first-chunk order.
func (c *Controller) StreamedContent() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.run
	if run == nil {
		run = c.lastRun
	}

	if run == nil {
		return ""
	}

	var out strings.Builder

	for _, blockID := range run.streamOrder {
		out.WriteString(run.streamBufs[blockID].String())
	}

	return out.String()
}

// TraversedEdges returns the edge ids the last run lit up, in traversal
// order.
func (c *Controller) TraversedEdges() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := c.run
	if run == nil {
		run = c.lastRun
	}

	if run == nil {
		return nil
	}

	out := make([]string, len(run.traversedEdges))
	copy(out, run.traversedEdges)

	return out
}
