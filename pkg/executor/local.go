package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xde-mcp/sim-sub005/pkg/events"
	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/otelhelper"
)

// Local executes workflow graphs in-process. One run is open at a
// time; Cancel aborts it cooperatively.
type Local struct {
	runners *Runners
	logger  *slog.Logger
	tracer  trace.Tracer

	mu      sync.Mutex
	current *run
}

func NewLocal(runners *Runners, logger *slog.Logger) *Local {
	return &Local{
		runners: runners,
		logger:  logger.With("module", "executor"),
	}
}

// SetTracer enables per-run and per-block tracing spans.
func (l *Local) SetTracer(tracer trace.Tracer) {
	l.tracer = tracer
}

type edgeState int

const (
	edgePending edgeState = iota
	edgeFired
	edgeSatisfied // resolved by a prior run's snapshot, not activating
	edgeDead
)

type run struct {
	svc *Local

	workflowID   string
	executionID  string
	state        *models.WorkflowState
	input        map[string]any
	startBlockID string
	stopAfter    string
	cb           Callbacks

	cancelled atomic.Bool
	stopped   bool
	failure   error

	outputs    map[string]map[string]any
	executed   map[string]bool
	dead       map[string]bool
	failed     map[string]bool
	edges      map[string]edgeState
	logs       []*models.BlockLog
	decisions  models.Decisions
	lastOutput map[string]any
	startTime  time.Time

	streams sync.WaitGroup
}

func (l *Local) newRun(req Request, cb Callbacks) *run {
	return &run{
		svc:          l,
		workflowID:   req.WorkflowID,
		executionID:  uuid.NewString(),
		state:        req.State,
		input:        req.Input,
		startBlockID: req.StartBlockID,
		stopAfter:    req.StopAfterBlockID,
		cb:           cb,
		outputs:      make(map[string]map[string]any),
		executed:     make(map[string]bool),
		dead:         make(map[string]bool),
		failed:       make(map[string]bool),
		edges:        make(map[string]edgeState),
		decisions:    models.Decisions{Router: make(map[string]string), Condition: make(map[string]string)},
		startTime:    time.Now().UTC(),
	}
}

func (l *Local) Execute(ctx context.Context, req Request, cb Callbacks) (*models.ExecutionResult, error) {
	if _, ok := req.State.Blocks[req.StartBlockID]; !ok {
		return nil, fmt.Errorf("block not found: %s", req.StartBlockID)
	}

	r := l.newRun(req, cb)

	l.mu.Lock()
	l.current = r
	l.mu.Unlock()

	if req.Debug {
		return r.debugStart(ctx)
	}

	return r.execute(ctx)
}

func (l *Local) ExecuteFromBlock(ctx context.Context, req FromBlockRequest, cb Callbacks) (*models.ExecutionResult, error) {
	target, ok := req.State.Blocks[req.StartBlockID]
	if !ok {
		return nil, fmt.Errorf("block not found: %s", req.StartBlockID)
	}

	snap := req.SourceSnapshot
	if snap == nil {
		snap = models.NewExecutionSnapshot()
	}

	if !models.IsTriggerType(target.Type) {
		for _, edge := range req.State.IncomingEdges(target.ID) {
			source, ok := req.State.Blocks[edge.Source]
			if !ok {
				return nil, fmt.Errorf("block not found: %s", edge.Source)
			}

			if models.IsTriggerType(source.Type) {
				continue
			}

			if !snap.ExecutedBlocks[source.ID] {
				return nil, fmt.Errorf("upstream dependency not executed: %s", source.ID)
			}
		}
	}

	r := l.newRun(Request{
		WorkflowID:   req.WorkflowID,
		State:        req.State,
		StartBlockID: req.StartBlockID,
		Input:        req.Input,
	}, cb)

	// A trigger target runs with an empty effective snapshot so no
	// unrelated prior state leaks in.
	if !models.IsTriggerType(target.Type) {
		r.seedFromSnapshot(snap, r.reachableFrom(target.ID))
	}

	l.mu.Lock()
	l.current = r
	l.mu.Unlock()

	return r.execute(ctx)
}

func (l *Local) ContinueExecution(ctx context.Context, pendingBlocks []string, debugCtx *DebugContext, cb Callbacks) (*models.ExecutionResult, error) {
	if debugCtx == nil || debugCtx.run == nil {
		return nil, fmt.Errorf("no open debug session")
	}

	r := debugCtx.run
	r.cb = cb

	for _, blockID := range pendingBlocks {
		block, ok := r.state.Blocks[blockID]
		if !ok {
			return nil, fmt.Errorf("block not found: %s", blockID)
		}

		if r.cancelled.Load() {
			break
		}

		r.fireBlock(ctx, block)

		if r.failure != nil {
			break
		}
	}

	pending := r.advanceFrontier()
	if len(pending) > 0 && r.failure == nil && !r.cancelled.Load() {
		return r.pausedResult(pending), nil
	}

	return r.finalize(ctx), nil
}

func (l *Local) Cancel() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current != nil {
		l.current.cancelled.Store(true)
	}
}

// DebugSession returns the paused debug session of the open run, if any.
func (l *Local) DebugSession() *DebugContext {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return nil
	}

	return &DebugContext{
		WorkflowID:  l.current.workflowID,
		ExecutionID: l.current.executionID,
		run:         l.current,
	}
}

// reachableFrom returns the subgraph the run will re-execute: the start
// block and everything downstream of it.
func (r *run) reachableFrom(startID string) map[string]bool {
	reachable := map[string]bool{startID: true}
	queue := []string{startID}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		for _, edge := range r.state.OutgoingEdges(id) {
			if !reachable[edge.Target] {
				reachable[edge.Target] = true
				queue = append(queue, edge.Target)
			}
		}
	}

	return reachable
}

// seedFromSnapshot marks prior-run blocks as satisfied dependencies and
// makes their outputs available for reference without re-running them.
// Edges inside the re-run subgraph stay pending so the walk fires them
// afresh.
func (r *run) seedFromSnapshot(snap *models.ExecutionSnapshot, rerun map[string]bool) {
	for id := range snap.ExecutedBlocks {
		if _, ok := r.state.Blocks[id]; !ok {
			continue
		}

		if state, ok := snap.BlockStates[id]; ok {
			r.outputs[id] = state.Output
		}

		if rerun[id] {
			continue
		}

		for _, edge := range r.state.OutgoingEdges(id) {
			if r.edges[edge.ID] == edgePending {
				r.edges[edge.ID] = edgeSatisfied
			}
		}
	}
}

func (r *run) execute(ctx context.Context) (*models.ExecutionResult, error) {
	if tracer := r.svc.tracer; tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, tracer, "workflow.execute",
			attribute.String(otelhelper.WorkflowIDKey, r.workflowID),
			attribute.String(otelhelper.ExecutionIDKey, r.executionID),
		)
		defer span.End()
	}

	start := r.state.Blocks[r.startBlockID]
	r.fireBlock(ctx, start)

	for r.failure == nil && !r.stopped && !r.cancelled.Load() {
		frontier := r.advanceFrontier()
		if len(frontier) == 0 {
			break
		}

		for _, blockID := range frontier {
			if r.failure != nil || r.stopped || r.cancelled.Load() {
				break
			}

			r.fireBlock(ctx, r.state.Blocks[blockID])
		}
	}

	return r.finalize(ctx), nil
}

func (r *run) debugStart(ctx context.Context) (*models.ExecutionResult, error) {
	start := r.state.Blocks[r.startBlockID]
	r.fireBlock(ctx, start)

	pending := r.advanceFrontier()
	if len(pending) > 0 && r.failure == nil && !r.cancelled.Load() {
		return r.pausedResult(pending), nil
	}

	return r.finalize(ctx), nil
}

// advanceFrontier settles dead branches to a fixpoint and returns the
// blocks whose dependencies are now satisfied, in name order.
func (r *run) advanceFrontier() []string {
	for r.propagateDead() {
	}

	var frontier []string

	for id := range r.state.Blocks {
		if r.ready(id) {
			frontier = append(frontier, id)
		}
	}

	sort.Slice(frontier, func(i, j int) bool {
		bi, bj := r.state.Blocks[frontier[i]], r.state.Blocks[frontier[j]]
		if bi.Name != bj.Name {
			return bi.Name < bj.Name
		}

		return bi.ID < bj.ID
	})

	return frontier
}

func (r *run) settled(id string) bool {
	return r.executed[id] || r.dead[id] || r.failed[id]
}

func (r *run) ready(id string) bool {
	if r.settled(id) {
		return false
	}

	block := r.state.Blocks[id]
	if block.ParentID != "" {
		// Container members run inside their container.
		return false
	}

	fired := 0

	for _, edge := range r.state.IncomingEdges(id) {
		switch r.edges[edge.ID] {
		case edgePending:
			return false
		case edgeFired:
			fired++
		case edgeSatisfied, edgeDead:
		}
	}

	return fired > 0
}

// propagateDead marks blocks that can no longer run and resolves their
// outgoing edges, returning whether anything changed.
func (r *run) propagateDead() bool {
	changed := false

	for id, block := range r.state.Blocks {
		if r.settled(id) || id == r.startBlockID || block.ParentID != "" {
			continue
		}

		incoming := r.state.IncomingEdges(id)
		if len(incoming) == 0 {
			// Roots other than the start block do not run.
			r.markDead(id)

			changed = true

			continue
		}

		resolved, fired := 0, 0

		for _, edge := range incoming {
			switch r.edges[edge.ID] {
			case edgeFired:
				resolved++
				fired++
			case edgeSatisfied, edgeDead:
				resolved++
			case edgePending:
			}
		}

		if resolved == len(incoming) && fired == 0 {
			r.markDead(id)

			changed = true
		}
	}

	return changed
}

func (r *run) markDead(id string) {
	r.dead[id] = true

	for _, edge := range r.state.OutgoingEdges(id) {
		if r.edges[edge.ID] == edgePending {
			r.edges[edge.ID] = edgeDead
		}
	}
}

// buildInput merges the outputs of resolved upstream blocks keyed by
// their normalized name. The start block additionally receives the
// run's own input on top: the trigger payload on a full run, the
// caller-supplied override on a run-from-block.
func (r *run) buildInput(block *models.Block) map[string]any {
	input := map[string]any{}

	for _, edge := range r.state.IncomingEdges(block.ID) {
		state := r.edges[edge.ID]
		if state != edgeFired && state != edgeSatisfied {
			continue
		}

		source, ok := r.state.Blocks[edge.Source]
		if !ok {
			continue
		}

		if output, ok := r.outputs[edge.Source]; ok {
			input[models.NormalizeName(source.Name)] = output
		}
	}

	if block.ID == r.startBlockID {
		for k, v := range r.input {
			input[k] = v
		}
	}

	return input
}

func (r *run) fireBlock(ctx context.Context, block *models.Block) {
	if block == nil || r.settled(block.ID) {
		return
	}

	if !block.Enabled {
		r.markDead(block.ID)

		return
	}

	input := r.buildInput(block)
	started := time.Now().UTC()

	var span trace.Span

	if tracer := r.svc.tracer; tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, tracer, "block.execute",
			attribute.String(otelhelper.WorkflowIDKey, r.workflowID),
			attribute.String(otelhelper.BlockIDKey, block.ID),
			attribute.String(otelhelper.BlockTypeKey, block.Type),
			attribute.String(otelhelper.BlockNameKey, block.Name),
		)
		defer span.End()
	}

	r.emitStarted(ctx, block, input)

	var (
		out *RunOutput
		err error
	)

	if block.IsContainer() {
		out, err = r.runContainer(ctx, block)
	} else {
		runner := r.svc.runners.Get(block.Type)
		out, err = runner(ctx, RunInput{WorkflowID: r.workflowID, Block: block, Input: input})
	}

	ended := time.Now().UTC()
	durationMs := ended.Sub(started).Milliseconds()

	if err != nil {
		if span != nil {
			otelhelper.SetError(span, err, attribute.String(otelhelper.BlockIDKey, block.ID))
		}

		r.recordError(ctx, block, err, started, ended, durationMs)

		return
	}

	if out.Stream != nil {
		r.drainStream(ctx, block.ID, out.Stream)
	}

	r.outputs[block.ID] = out.Output
	r.executed[block.ID] = true
	r.lastOutput = out.Output

	switch block.Type {
	case models.BlockTypeCondition:
		r.decisions.Condition[block.ID] = out.SelectedHandle
	case models.BlockTypeRouter:
		r.decisions.Router[block.ID] = out.SelectedTarget
	}

	r.logs = append(r.logs, &models.BlockLog{
		BlockID:    block.ID,
		BlockName:  block.Name,
		BlockType:  block.Type,
		StartedAt:  started,
		EndedAt:    ended,
		DurationMs: durationMs,
		Success:    true,
		Output:     out.Output,
	})

	r.resolveOutgoing(block, out, false)
	r.emitCompleted(ctx, block, out.Output, durationMs)

	if block.ID == r.stopAfter {
		r.stopped = true
	}
}

func (r *run) recordError(ctx context.Context, block *models.Block, err error, started, ended time.Time, durationMs int64) {
	r.failed[block.ID] = true
	r.outputs[block.ID] = map[string]any{"error": err.Error()}

	r.logs = append(r.logs, &models.BlockLog{
		BlockID:    block.ID,
		BlockName:  block.Name,
		BlockType:  block.Type,
		StartedAt:  started,
		EndedAt:    ended,
		DurationMs: durationMs,
		Success:    false,
		Error:      err.Error(),
	})

	r.emitError(ctx, block, err, durationMs)

	hasErrorEdge := false

	for _, edge := range r.state.OutgoingEdges(block.ID) {
		if edge.SourceHandle == models.HandleError {
			hasErrorEdge = true

			r.edges[edge.ID] = edgeFired
		} else if r.edges[edge.ID] == edgePending {
			r.edges[edge.ID] = edgeDead
		}
	}

	if !hasErrorEdge {
		r.failure = fmt.Errorf("block %s failed: %w", block.Name, err)
	}
}

func (r *run) resolveOutgoing(block *models.Block, out *RunOutput, failed bool) {
	for _, edge := range r.state.OutgoingEdges(block.ID) {
		if r.edges[edge.ID] != edgePending {
			continue
		}

		fired := false

		switch {
		case failed:
			fired = edge.SourceHandle == models.HandleError
		case block.Type == models.BlockTypeCondition:
			fired = edge.SourceHandle == out.SelectedHandle
		case block.Type == models.BlockTypeRouter:
			target, ok := r.state.Blocks[edge.Target]
			fired = ok && models.NormalizeName(target.Name) == out.SelectedTarget
		case block.IsContainer():
			fired = edge.SourceHandle == "" ||
				edge.SourceHandle == models.HandleSource ||
				edge.SourceHandle == models.HandleLoopEnd ||
				edge.SourceHandle == models.HandleParallelEnd
		default:
			fired = edge.SourceHandle == "" || edge.SourceHandle == models.HandleSource
		}

		if fired {
			r.edges[edge.ID] = edgeFired
		} else {
			r.edges[edge.ID] = edgeDead
		}
	}
}

// drainStream reads the block's stream concurrently with the walk. The
// run waits for all drains before finalizing or pausing, so no drain
// goroutine ever outlives the walk that started it.
func (r *run) drainStream(ctx context.Context, blockID string, stream <-chan string) {
	r.streams.Add(1)

	go func() {
		defer r.streams.Done()

		for chunk := range stream {
			if r.cancelled.Load() {
				continue // drain without emitting
			}

			r.emitChunk(ctx, blockID, chunk)
		}
	}()
}

func (r *run) pausedResult(pending []string) *models.ExecutionResult {
	// A paused session may be continued with fresh callbacks; no drain
	// may still be emitting through the old ones.
	r.streams.Wait()

	now := time.Now().UTC()

	return &models.ExecutionResult{
		Success: true,
		Output:  r.lastOutput,
		Logs:    r.logs,
		Metadata: &models.ResultMetadata{
			DurationMs:    now.Sub(r.startTime).Milliseconds(),
			StartTime:     r.startTime,
			EndTime:       now,
			PendingBlocks: pending,
		},
	}
}

func (r *run) finalize(ctx context.Context) *models.ExecutionResult {
	r.streams.Wait()

	r.svc.mu.Lock()
	if r.svc.current == r {
		r.svc.current = nil
	}
	r.svc.mu.Unlock()

	now := time.Now().UTC()
	durationMs := now.Sub(r.startTime).Milliseconds()

	result := &models.ExecutionResult{
		Logs: r.logs,
		Metadata: &models.ResultMetadata{
			DurationMs: durationMs,
			StartTime:  r.startTime,
			EndTime:    now,
		},
	}

	switch {
	case r.cancelled.Load():
		result.Success = false

		if r.cb.OnExecutionCancelled != nil {
			r.cb.OnExecutionCancelled(ctx, &events.ExecutionCancelled{
				BaseEvent:  r.baseEvent(events.ExecutionCancelledEvent),
				Logs:       r.logs,
				DurationMs: durationMs,
			})
		}
	case r.failure != nil:
		result.Success = false
		result.Error = r.failure.Error()

		if r.cb.OnExecutionError != nil {
			r.cb.OnExecutionError(ctx, &events.ExecutionError{
				BaseEvent:  r.baseEvent(events.ExecutionErrorEvent),
				Error:      r.failure.Error(),
				Logs:       r.logs,
				DurationMs: durationMs,
			})
		}
	default:
		result.Success = true
		result.Output = r.lastOutput

		if r.cb.OnExecutionCompleted != nil {
			r.cb.OnExecutionCompleted(ctx, &events.ExecutionCompleted{
				BaseEvent:  r.baseEvent(events.ExecutionCompletedEvent),
				Output:     r.lastOutput,
				Logs:       r.logs,
				Snapshot:   r.snapshotCandidate(),
				DurationMs: durationMs,
			})
		}
	}

	return result
}

// snapshotCandidate assembles the run's outcome in snapshot form.
func (r *run) snapshotCandidate() *models.ExecutionSnapshot {
	snap := models.NewExecutionSnapshot()

	for id := range r.executed {
		snap.ExecutedBlocks[id] = true
		snap.ActiveExecutionPath[id] = true

		output := r.outputs[id]
		snap.BlockStates[id] = &models.BlockState{Output: output, Executed: true}
	}

	snap.BlockLogs = append(snap.BlockLogs, r.logs...)
	snap.Decisions = r.decisions

	for id, block := range r.state.Blocks {
		if block.Type == models.BlockTypeLoop && r.executed[id] {
			snap.CompletedLoops[id] = true
		}
	}

	return snap
}

func (r *run) baseEvent(eventType events.EventType) events.BaseEvent {
	return events.BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  r.workflowID,
		ExecutionID: r.executionID,
	}
}

func (r *run) emitStarted(ctx context.Context, block *models.Block, input map[string]any) {
	if r.cb.OnBlockStarted == nil {
		return
	}

	r.cb.OnBlockStarted(ctx, &events.BlockStarted{
		BaseEvent: r.baseEvent(events.BlockStartedEvent),
		BlockID:   block.ID,
		BlockType: block.Type,
		BlockName: block.Name,
		Input:     input,
	})
}

func (r *run) emitCompleted(ctx context.Context, block *models.Block, output map[string]any, durationMs int64) {
	if r.cb.OnBlockCompleted == nil {
		return
	}

	r.cb.OnBlockCompleted(ctx, &events.BlockCompleted{
		BaseEvent:  r.baseEvent(events.BlockCompletedEvent),
		BlockID:    block.ID,
		BlockType:  block.Type,
		BlockName:  block.Name,
		Output:     output,
		DurationMs: durationMs,
	})
}

func (r *run) emitError(ctx context.Context, block *models.Block, err error, durationMs int64) {
	if r.cb.OnBlockError == nil {
		return
	}

	r.cb.OnBlockError(ctx, &events.BlockError{
		BaseEvent:  r.baseEvent(events.BlockErrorEvent),
		BlockID:    block.ID,
		BlockType:  block.Type,
		BlockName:  block.Name,
		Error:      err.Error(),
		DurationMs: durationMs,
	})
}

func (r *run) emitChunk(ctx context.Context, blockID, chunk string) {
	if r.cb.OnStreamChunk == nil {
		return
	}

	r.cb.OnStreamChunk(ctx, &events.StreamChunk{
		BaseEvent: r.baseEvent(events.StreamChunkEvent),
		BlockID:   blockID,
		Chunk:     chunk,
	})
}
