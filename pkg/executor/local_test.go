package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xde-mcp/sim-sub005/pkg/events"
	"github.com/xde-mcp/sim-sub005/pkg/models"
)

func testBlock(id, blockType, name string) *models.Block {
	return &models.Block{
		ID:      id,
		Type:    blockType,
		Name:    name,
		Enabled: true,
	}
}

func testGraph(blocks ...*models.Block) *models.WorkflowState {
	state := models.NewWorkflowState("wf-1")
	for _, block := range blocks {
		state.Blocks[block.ID] = block
	}

	return state
}

func link(state *models.WorkflowState, source, target, handle string) {
	state.Edges = append(state.Edges, &models.Edge{
		ID:           fmt.Sprintf("e-%s-%s-%s", source, target, handle),
		Source:       source,
		Target:       target,
		SourceHandle: handle,
	})
}

// recorder collects the event stream of a run. Stream chunks arrive
// from drain goroutines, so every handler locks.
type recorder struct {
	mu        sync.Mutex
	started   []string
	completed []string
	errored   []string
	chunks    map[string][]string
	terminals []string
}

func newRecorder() *recorder {
	return &recorder{chunks: make(map[string][]string)}
}

func (rec *recorder) callbacks() Callbacks {
	return Callbacks{
		OnBlockStarted: func(_ context.Context, e *events.BlockStarted) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.started = append(rec.started, e.BlockID)
		},
		OnBlockCompleted: func(_ context.Context, e *events.BlockCompleted) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.completed = append(rec.completed, e.BlockID)
		},
		OnBlockError: func(_ context.Context, e *events.BlockError) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.errored = append(rec.errored, e.BlockID)
		},
		OnStreamChunk: func(_ context.Context, e *events.StreamChunk) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.chunks[e.BlockID] = append(rec.chunks[e.BlockID], e.Chunk)
		},
		OnExecutionCompleted: func(_ context.Context, _ *events.ExecutionCompleted) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.terminals = append(rec.terminals, "completed")
		},
		OnExecutionError: func(_ context.Context, _ *events.ExecutionError) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.terminals = append(rec.terminals, "error")
		},
		OnExecutionCancelled: func(_ context.Context, _ *events.ExecutionCancelled) {
			rec.mu.Lock()
			defer rec.mu.Unlock()
			rec.terminals = append(rec.terminals, "cancelled")
		},
	}
}

func (rec *recorder) snapshot() (started, completed, errored, terminals []string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	return append([]string(nil), rec.started...),
		append([]string(nil), rec.completed...),
		append([]string(nil), rec.errored...),
		append([]string(nil), rec.terminals...)
}

func (rec *recorder) streamed(blockID string) string {
	rec.mu.Lock()
	defer rec.mu.Unlock()

	return strings.Join(rec.chunks[blockID], "")
}

func newLocal() *Local {
	return NewLocal(DefaultRunners(), slog.Default())
}

func TestExecuteLinearGraph(t *testing.T) {
	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		testBlock("b", models.BlockTypeFunction, "Transform"),
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	link(state, "a", "b", models.HandleSource)
	link(state, "b", "c", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
		Input:        map[string]any{"greeting": "hello"},
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	started, completed, _, terminals := rec.snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, started)
	assert.Equal(t, []string{"a", "b", "c"}, completed)
	assert.Equal(t, []string{"completed"}, terminals)

	require.Len(t, result.Logs, 3)

	for _, entry := range result.Logs {
		assert.True(t, entry.Success)
	}

	// The response block folds its input in; the trigger payload reached
	// it through the function block.
	input, ok := result.Output["input"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, input, "transform")
}

func TestExecuteUnknownStartBlock(t *testing.T) {
	state := testGraph(testBlock("a", models.BlockTypeStart, "Start"))

	svc := newLocal()
	rec := newRecorder()

	_, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "missing",
	}, rec.callbacks())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "block not found")
}

func TestExecuteConditionBranching(t *testing.T) {
	cond := testBlock("cond", models.BlockTypeCondition, "Check")
	cond.SetSubBlockValue("conditions", []any{
		map[string]any{"id": "if1", "key": "route", "equals": "left"},
		map[string]any{"id": "else1"},
	})

	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		cond,
		testBlock("left", models.BlockTypeFunction, "Left"),
		testBlock("right", models.BlockTypeFunction, "Right"),
	)
	link(state, "a", "cond", models.HandleSource)
	link(state, "cond", "left", models.HandleCondition+"-if1")
	link(state, "cond", "right", models.HandleCondition+"-else1")

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
		Input:        map[string]any{"route": "left"},
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	_, completed, _, _ := rec.snapshot()
	assert.Contains(t, completed, "left")
	assert.NotContains(t, completed, "right")
}

func TestExecuteRouterSelectsTargetByName(t *testing.T) {
	router := testBlock("r", models.BlockTypeRouter, "Route")
	router.SetSubBlockValue("target", "Slow Path")

	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		router,
		testBlock("fast", models.BlockTypeFunction, "Fast Path"),
		testBlock("slow", models.BlockTypeFunction, "Slow Path"),
	)
	link(state, "a", "r", models.HandleSource)
	link(state, "r", "fast", models.HandleSource)
	link(state, "r", "slow", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	_, completed, _, _ := rec.snapshot()
	assert.Contains(t, completed, "slow")
	assert.NotContains(t, completed, "fast")
}

func TestExecuteErrorWithoutErrorEdgeFailsRun(t *testing.T) {
	runners := DefaultRunners()
	runners.Register(models.BlockTypeFunction, func(_ context.Context, _ RunInput) (*RunOutput, error) {
		return nil, fmt.Errorf("boom")
	})

	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		testBlock("b", models.BlockTypeFunction, "Broken"),
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	link(state, "a", "b", models.HandleSource)
	link(state, "b", "c", models.HandleSource)

	svc := NewLocal(runners, slog.Default())
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
	}, rec.callbacks())

	require.NoError(t, err)
	require.False(t, result.Success)
	assert.Contains(t, result.Error, "Broken")

	_, completed, errored, terminals := rec.snapshot()
	assert.NotContains(t, completed, "c")
	assert.Equal(t, []string{"b"}, errored)
	assert.Equal(t, []string{"error"}, terminals)
}

func TestExecuteErrorEdgeRoutesFailureBranch(t *testing.T) {
	runners := DefaultRunners()
	runners.Register(models.BlockTypeFunction, func(_ context.Context, _ RunInput) (*RunOutput, error) {
		return nil, fmt.Errorf("boom")
	})

	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		testBlock("b", models.BlockTypeFunction, "Broken"),
		testBlock("ok", models.BlockTypeResponse, "Success Path"),
		testBlock("recover", models.BlockTypeResponse, "Recovery"),
	)
	link(state, "a", "b", models.HandleSource)
	link(state, "b", "ok", models.HandleSource)
	link(state, "b", "recover", models.HandleError)

	svc := NewLocal(runners, slog.Default())
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
	}, rec.callbacks())

	require.NoError(t, err)
	// The error was handled; the run completes.
	require.True(t, result.Success)

	_, completed, errored, terminals := rec.snapshot()
	assert.Equal(t, []string{"b"}, errored)
	assert.Contains(t, completed, "recover")
	assert.NotContains(t, completed, "ok")
	assert.Equal(t, []string{"completed"}, terminals)

	// The recovery branch sees the failing block's error output.
	input, ok := result.Output["input"].(map[string]any)
	require.True(t, ok)
	upstream, ok := input["broken"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "boom", upstream["error"])
}

func TestExecuteDisabledBlockBranchGoesDead(t *testing.T) {
	disabled := testBlock("b", models.BlockTypeFunction, "Off")
	disabled.Enabled = false

	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		disabled,
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	link(state, "a", "b", models.HandleSource)
	link(state, "b", "c", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	_, completed, _, _ := rec.snapshot()
	assert.Equal(t, []string{"a"}, completed)
}

func TestExecuteOtherTriggersStayDormant(t *testing.T) {
	state := testGraph(
		testBlock("chat", models.BlockTypeChat, "Chat"),
		testBlock("hook", models.BlockTypeWebhook, "Hook"),
		testBlock("b", models.BlockTypeFunction, "Shared"),
	)
	link(state, "chat", "b", models.HandleSource)
	link(state, "hook", "b", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "chat",
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	_, completed, _, _ := rec.snapshot()
	assert.Equal(t, []string{"chat", "b"}, completed)
}

func TestExecuteStopAfterBlock(t *testing.T) {
	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		testBlock("b", models.BlockTypeFunction, "Middle"),
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	link(state, "a", "b", models.HandleSource)
	link(state, "b", "c", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:       "wf-1",
		State:            state,
		StartBlockID:     "a",
		StopAfterBlockID: "b",
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	_, completed, _, _ := rec.snapshot()
	assert.Equal(t, []string{"a", "b"}, completed)
}

func TestExecuteFromBlockUsesSnapshotOutputs(t *testing.T) {
	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		testBlock("b", models.BlockTypeFunction, "Upstream"),
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	link(state, "a", "b", models.HandleSource)
	link(state, "b", "c", models.HandleSource)

	snap := models.NewExecutionSnapshot()
	snap.ExecutedBlocks["a"] = true
	snap.ExecutedBlocks["b"] = true
	snap.BlockStates["b"] = &models.BlockState{
		Output:   map[string]any{"value": 42},
		Executed: true,
	}

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.ExecuteFromBlock(context.Background(), FromBlockRequest{
		WorkflowID:     "wf-1",
		State:          state,
		StartBlockID:   "c",
		SourceSnapshot: snap,
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	// Only the target re-ran; upstream came from the snapshot.
	_, completed, _, _ := rec.snapshot()
	assert.Equal(t, []string{"c"}, completed)

	input, ok := result.Output["input"].(map[string]any)
	require.True(t, ok)
	upstream, ok := input["upstream"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 42, upstream["value"])
}

func TestExecuteFromBlockGatesOnMissingUpstream(t *testing.T) {
	state := testGraph(
		testBlock("b", models.BlockTypeFunction, "Upstream"),
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	link(state, "b", "c", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()

	_, err := svc.ExecuteFromBlock(context.Background(), FromBlockRequest{
		WorkflowID:     "wf-1",
		State:          state,
		StartBlockID:   "c",
		SourceSnapshot: models.NewExecutionSnapshot(),
	}, rec.callbacks())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream dependency not executed")
}

func TestExecuteFromBlockGatesOnDeletedUpstream(t *testing.T) {
	state := testGraph(testBlock("c", models.BlockTypeResponse, "Reply"))
	state.Edges = append(state.Edges, &models.Edge{
		ID: "e-ghost", Source: "ghost", Target: "c", SourceHandle: models.HandleSource,
	})

	snap := models.NewExecutionSnapshot()
	snap.ExecutedBlocks["ghost"] = true

	svc := newLocal()
	rec := newRecorder()

	_, err := svc.ExecuteFromBlock(context.Background(), FromBlockRequest{
		WorkflowID:     "wf-1",
		State:          state,
		StartBlockID:   "c",
		SourceSnapshot: snap,
	}, rec.callbacks())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "block not found")
}

func TestExecuteFromBlockTriggerIgnoresSnapshot(t *testing.T) {
	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		testBlock("b", models.BlockTypeFunction, "Next"),
		testBlock("other", models.BlockTypeFunction, "Unrelated"),
	)
	link(state, "a", "b", models.HandleSource)

	// Stale state claiming an unrelated block ran must not leak in.
	snap := models.NewExecutionSnapshot()
	snap.ExecutedBlocks["other"] = true

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.ExecuteFromBlock(context.Background(), FromBlockRequest{
		WorkflowID:     "wf-1",
		State:          state,
		StartBlockID:   "a",
		SourceSnapshot: snap,
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	_, completed, _, _ := rec.snapshot()
	assert.Equal(t, []string{"a", "b"}, completed)
}

func TestDebugStepThrough(t *testing.T) {
	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		testBlock("b", models.BlockTypeFunction, "Middle"),
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	link(state, "a", "b", models.HandleSource)
	link(state, "b", "c", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()
	ctx := context.Background()

	result, err := svc.Execute(ctx, Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
		Debug:        true,
	}, rec.callbacks())

	require.NoError(t, err)
	require.NotNil(t, result.Metadata)
	require.Equal(t, []string{"b"}, result.Metadata.PendingBlocks)

	debugCtx := svc.DebugSession()
	require.NotNil(t, debugCtx)

	result, err = svc.ContinueExecution(ctx, result.Metadata.PendingBlocks, debugCtx, rec.callbacks())
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, result.Metadata.PendingBlocks)

	result, err = svc.ContinueExecution(ctx, result.Metadata.PendingBlocks, debugCtx, rec.callbacks())
	require.NoError(t, err)
	assert.Empty(t, result.Metadata.PendingBlocks)
	assert.True(t, result.Success)

	_, completed, _, terminals := rec.snapshot()
	assert.Equal(t, []string{"a", "b", "c"}, completed)
	assert.Equal(t, []string{"completed"}, terminals)
}

func TestContinueExecutionWithoutSession(t *testing.T) {
	svc := newLocal()

	_, err := svc.ContinueExecution(context.Background(), []string{"b"}, nil, Callbacks{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no open debug session")
}

func TestAgentStreamsContent(t *testing.T) {
	agent := testBlock("b", models.BlockTypeAgent, "Writer")
	agent.SetSubBlockValue("content", "hello streaming world")

	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		agent,
	)
	link(state, "a", "b", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	// finalize waits for the drain goroutine, so all chunks are in.
	assert.Equal(t, "hello streaming world ", rec.streamed("b"))
	assert.Equal(t, "hello streaming world", result.Output["content"])
}

func TestDebugStepDrainsStreamBeforePausing(t *testing.T) {
	agent := testBlock("b", models.BlockTypeAgent, "Writer")
	agent.SetSubBlockValue("content", "step by step")

	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		agent,
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	link(state, "a", "b", models.HandleSource)
	link(state, "b", "c", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()
	ctx := context.Background()

	result, err := svc.Execute(ctx, Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
		Debug:        true,
	}, rec.callbacks())

	require.NoError(t, err)
	require.Equal(t, []string{"b"}, result.Metadata.PendingBlocks)

	debugCtx := svc.DebugSession()
	require.NotNil(t, debugCtx)

	result, err = svc.ContinueExecution(ctx, result.Metadata.PendingBlocks, debugCtx, rec.callbacks())
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, result.Metadata.PendingBlocks)

	// The paused result only returns once the agent's drain goroutine
	// has finished, so every chunk went through this step's callbacks.
	assert.Equal(t, "step by step ", rec.streamed("b"))

	// Continuing with a fresh callback set must not observe late chunks.
	late := newRecorder()

	result, err = svc.ContinueExecution(ctx, result.Metadata.PendingBlocks, debugCtx, late.callbacks())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Empty(t, late.streamed("b"))
}

func TestCancelMidRun(t *testing.T) {
	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		testBlock("b", models.BlockTypeFunction, "Middle"),
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	link(state, "a", "b", models.HandleSource)
	link(state, "b", "c", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()

	cb := rec.callbacks()
	inner := cb.OnBlockCompleted
	cb.OnBlockCompleted = func(ctx context.Context, e *events.BlockCompleted) {
		inner(ctx, e)

		if e.BlockID == "b" {
			svc.Cancel()
		}
	}

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
	}, cb)

	require.NoError(t, err)
	require.False(t, result.Success)

	_, completed, _, terminals := rec.snapshot()
	assert.Equal(t, []string{"a", "b"}, completed)
	assert.Equal(t, []string{"cancelled"}, terminals)
}

func TestLoopContainerRunsMembersPerIteration(t *testing.T) {
	loop := testBlock("loop", models.BlockTypeLoop, "Batch")
	inner := testBlock("m", models.BlockTypeFunction, "Member")
	inner.ParentID = "loop"

	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		loop,
		inner,
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	state.Loops["loop"] = &models.Loop{
		ID:           "loop",
		Nodes:        []string{"m"},
		LoopType:     "forEach",
		ForEachItems: []any{"x", "y", "z"},
	}
	link(state, "a", "loop", models.HandleSource)
	link(state, "loop", "c", models.HandleLoopEnd)

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	_, completed, _, _ := rec.snapshot()
	// Member fires once per item, then the container, then downstream.
	assert.Equal(t, []string{"a", "m", "m", "m", "loop", "c"}, completed)

	input, ok := result.Output["input"].(map[string]any)
	require.True(t, ok)
	container, ok := input["batch"].(map[string]any)
	require.True(t, ok)
	results, ok := container["results"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 3)
}

func TestStopAfterContainerMemberHaltsRun(t *testing.T) {
	loop := testBlock("loop", models.BlockTypeLoop, "Batch")
	inner := testBlock("m", models.BlockTypeFunction, "Member")
	inner.ParentID = "loop"

	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		loop,
		inner,
		testBlock("c", models.BlockTypeResponse, "Reply"),
	)
	state.Loops["loop"] = &models.Loop{
		ID:           "loop",
		Nodes:        []string{"m"},
		LoopType:     "forEach",
		ForEachItems: []any{"x", "y", "z"},
	}
	link(state, "a", "loop", models.HandleSource)
	link(state, "loop", "c", models.HandleLoopEnd)

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:       "wf-1",
		State:            state,
		StartBlockID:     "a",
		StopAfterBlockID: "m",
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	_, completed, _, _ := rec.snapshot()
	// The member completes its first iteration, then nothing else runs:
	// no further iterations, no container-downstream blocks.
	assert.Equal(t, []string{"a", "m", "loop"}, completed)

	for _, entry := range result.Logs {
		assert.NotEqual(t, "c", entry.BlockID, "downstream of the container must not run")
	}
}

func TestParallelContainerCountIterations(t *testing.T) {
	par := testBlock("par", models.BlockTypeParallel, "Fan Out")
	inner := testBlock("m", models.BlockTypeFunction, "Member")
	inner.ParentID = "par"

	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		par,
		inner,
	)
	state.Parallels["par"] = &models.Parallel{ID: "par", Nodes: []string{"m"}, Count: 2}
	link(state, "a", "par", models.HandleSource)

	svc := newLocal()
	rec := newRecorder()

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
	}, rec.callbacks())

	require.NoError(t, err)
	require.True(t, result.Success)

	_, completed, _, _ := rec.snapshot()
	assert.Equal(t, []string{"a", "m", "m", "par"}, completed)
}

func TestSnapshotCandidateInCompletedEvent(t *testing.T) {
	state := testGraph(
		testBlock("a", models.BlockTypeStart, "Start"),
		testBlock("b", models.BlockTypeResponse, "Reply"),
	)
	link(state, "a", "b", models.HandleSource)

	svc := newLocal()

	var snap *models.ExecutionSnapshot

	cb := Callbacks{
		OnExecutionCompleted: func(_ context.Context, e *events.ExecutionCompleted) {
			snap = e.Snapshot
		},
	}

	result, err := svc.Execute(context.Background(), Request{
		WorkflowID:   "wf-1",
		State:        state,
		StartBlockID: "a",
	}, cb)

	require.NoError(t, err)
	require.True(t, result.Success)
	require.NotNil(t, snap)

	assert.True(t, snap.ExecutedBlocks["a"])
	assert.True(t, snap.ExecutedBlocks["b"])
	assert.True(t, snap.BlockStates["b"].Executed)
}
