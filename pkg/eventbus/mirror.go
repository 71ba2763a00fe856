package eventbus

import (
	"context"
	"log/slog"

	"github.com/xde-mcp/sim-sub005/pkg/events"
	"github.com/xde-mcp/sim-sub005/pkg/executor"
)

// MirrorCallbacks publishes every lifecycle event of a run onto the
// bus, keyed by workflow id. Publish failures are logged and dropped so
// a broken broker never stalls an execution.
func MirrorCallbacks(bus EventPublisher, logger *slog.Logger) executor.Callbacks {
	publish := func(ctx context.Context, key string, event Event) {
		if err := bus.Publish(ctx, key, event); err != nil {
			logger.WarnContext(ctx, "failed to mirror execution event",
				"event_type", event.GetType(), "key", key, "error", err)
		}
	}

	return executor.Callbacks{
		OnBlockStarted: func(ctx context.Context, event *events.BlockStarted) {
			publish(ctx, event.WorkflowID, event)
		},
		OnBlockCompleted: func(ctx context.Context, event *events.BlockCompleted) {
			publish(ctx, event.WorkflowID, event)
		},
		OnBlockError: func(ctx context.Context, event *events.BlockError) {
			publish(ctx, event.WorkflowID, event)
		},
		OnStreamChunk: func(ctx context.Context, event *events.StreamChunk) {
			publish(ctx, event.WorkflowID, event)
		},
		OnExecutionCompleted: func(ctx context.Context, event *events.ExecutionCompleted) {
			publish(ctx, event.WorkflowID, event)
		},
		OnExecutionError: func(ctx context.Context, event *events.ExecutionError) {
			publish(ctx, event.WorkflowID, event)
		},
		OnExecutionCancelled: func(ctx context.Context, event *events.ExecutionCancelled) {
			publish(ctx, event.WorkflowID, event)
		},
	}
}
