package executor

import (
	"context"

	"github.com/xde-mcp/sim-sub005/pkg/events"
)

// Merge returns callbacks that invoke the receiver first and next
// second. Nil members on either side are skipped.
func (cb Callbacks) Merge(next Callbacks) Callbacks {
	return Callbacks{
		OnBlockStarted: func(ctx context.Context, event *events.BlockStarted) {
			if cb.OnBlockStarted != nil {
				cb.OnBlockStarted(ctx, event)
			}

			if next.OnBlockStarted != nil {
				next.OnBlockStarted(ctx, event)
			}
		},
		OnBlockCompleted: func(ctx context.Context, event *events.BlockCompleted) {
			if cb.OnBlockCompleted != nil {
				cb.OnBlockCompleted(ctx, event)
			}

			if next.OnBlockCompleted != nil {
				next.OnBlockCompleted(ctx, event)
			}
		},
		OnBlockError: func(ctx context.Context, event *events.BlockError) {
			if cb.OnBlockError != nil {
				cb.OnBlockError(ctx, event)
			}

			if next.OnBlockError != nil {
				next.OnBlockError(ctx, event)
			}
		},
		OnStreamChunk: func(ctx context.Context, event *events.StreamChunk) {
			if cb.OnStreamChunk != nil {
				cb.OnStreamChunk(ctx, event)
			}

			if next.OnStreamChunk != nil {
				next.OnStreamChunk(ctx, event)
			}
		},
		OnExecutionCompleted: func(ctx context.Context, event *events.ExecutionCompleted) {
			if cb.OnExecutionCompleted != nil {
				cb.OnExecutionCompleted(ctx, event)
			}

			if next.OnExecutionCompleted != nil {
				next.OnExecutionCompleted(ctx, event)
			}
		},
		OnExecutionError: func(ctx context.Context, event *events.ExecutionError) {
			if cb.OnExecutionError != nil {
				cb.OnExecutionError(ctx, event)
			}

			if next.OnExecutionError != nil {
				next.OnExecutionError(ctx, event)
			}
		},
		OnExecutionCancelled: func(ctx context.Context, event *events.ExecutionCancelled) {
			if cb.OnExecutionCancelled != nil {
				cb.OnExecutionCancelled(ctx, event)
			}

			if next.OnExecutionCancelled != nil {
				next.OnExecutionCancelled(ctx, event)
			}
		},
	}
}
