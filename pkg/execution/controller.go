// Package execution hosts the run controller: a state machine that
// resolves the trigger, drives the executor, consumes its event stream
// and finalizes snapshots, console entries and persisted logs.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xde-mcp/sim-sub005/pkg/console"
	"github.com/xde-mcp/sim-sub005/pkg/executor"
	"github.com/xde-mcp/sim-sub005/pkg/models"
	"github.com/xde-mcp/sim-sub005/pkg/persistence"
	"github.com/xde-mcp/sim-sub005/pkg/snapshot"
	"github.com/xde-mcp/sim-sub005/pkg/trigger"
)

const defaultResumeCeiling = 500

// Options tune the controller.
type Options struct {
	// ResumeCeiling bounds Resume's step iterations as a safety net
	// against runaway graphs. Zero means the default of 500.
	ResumeCeiling int
}

// RunOptions shape one run.
type RunOptions struct {
	Mode  trigger.Mode
	Input map[string]any
	// Files are uploaded sequentially before a chat run; a single
	// failure is recorded and surfaced but does not abort the others.
	Files []FileUpload
	// Debug pauses after the start block and opens a step session.
	Debug bool
	// OnBlockComplete is invoked after each block completes. Failures
	// are caught and logged, never propagated.
	OnBlockComplete func(blockID string, output map[string]any) error
}

type runKind int

const (
	runFull runKind = iota
	runFromBlock
	runUntilBlock
)

type runState struct {
	workflowID  string
	executionID string
	graph       *models.WorkflowState
	kind        runKind
	trigger     string
	startedAt   time.Time

	activeBlocks   map[string]bool
	traversedEdges []string
	traversedSeen  map[string]bool
	logs           []*models.BlockLog
	candidate      *models.ExecutionSnapshot
	consoleIDs     map[string]string
	streamBufs     map[string]*strings.Builder
	streamOrder    []string
	cancelled      bool

	onBlockComplete func(blockID string, output map[string]any) error
}

// Controller owns one workflow editing session's execution lifecycle.
// One run is in flight at a time.
type Controller struct {
	resolver  *trigger.Resolver
	snapshots *snapshot.Store
	console   console.Console
	execLogs  persistence.ExecutionLogRepository
	svc       executor.Service
	uploader  Uploader
	observer  *executor.Callbacks
	logger    *slog.Logger
	opts      Options

	mu            sync.Mutex
	state         State
	run           *runState
	lastRun       *runState
	result        *models.ExecutionResult
	debugCtx      *executor.DebugContext
	pendingBlocks []string
}

func NewController(
	resolver *trigger.Resolver,
	snapshots *snapshot.Store,
	sink console.Console,
	execLogs persistence.ExecutionLogRepository,
	svc executor.Service,
	logger *slog.Logger,
	opts Options,
) *Controller {
	if opts.ResumeCeiling <= 0 {
		opts.ResumeCeiling = defaultResumeCeiling
	}

	return &Controller{
		resolver:  resolver,
		snapshots: snapshots,
		console:   sink,
		execLogs:  execLogs,
		svc:       svc,
		logger:    logger.With("module", "execution"),
		opts:      opts,
		state:     StateIdle,
	}
}

// SetUploader wires the optional chat file-upload collaborator.
func (c *Controller) SetUploader(uploader Uploader) {
	c.uploader = uploader
}

// SetObserver registers extra callbacks invoked after the controller's
// own consumer for every lifecycle event, typically an event-bus
// mirror.
func (c *Controller) SetObserver(cb executor.Callbacks) {
	c.observer = &cb
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Result returns the most recent terminal result.
func (c *Controller) Result() *models.ExecutionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.result
}

// IsExecuting reports whether a run is in flight.
func (c *Controller) IsExecuting() bool {
	state := c.State()

	return state == StateExecuting || state.IsDebugging()
}

// IsDebugging reports whether a debug session is open.
func (c *Controller) IsDebugging() bool {
	return c.State().IsDebugging()
}

// LastExecutionID returns the execution id of the in-flight run, or of
// the most recently finished one.
func (c *Controller) LastExecutionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		return c.run.executionID
	}

	if c.lastRun != nil {
		return c.lastRun.executionID
	}

	return ""
}

// PendingBlocks returns the open debug session's frontier.
func (c *Controller) PendingBlocks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, len(c.pendingBlocks))
	copy(out, c.pendingBlocks)

	return out
}

func (c *Controller) transition(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CanTransition(to) {
		return invalidTransition(c.state, to)
	}

	c.state = to

	return nil
}

func (c *Controller) newRun(graph *models.WorkflowState, kind runKind, triggerType string, onBlockComplete func(string, map[string]any) error) *runState {
	return &runState{
		workflowID:      graph.WorkflowID,
		graph:           graph,
		kind:            kind,
		trigger:         triggerType,
		startedAt:       time.Now().UTC(),
		activeBlocks:    make(map[string]bool),
		traversedSeen:   make(map[string]bool),
		candidate:       models.NewExecutionSnapshot(),
		consoleIDs:      make(map[string]string),
		streamBufs:      make(map[string]*strings.Builder),
		onBlockComplete: onBlockComplete,
	}
}

// Run resolves the trigger and executes the workflow from its start
// block. A debug run pauses after the start block and opens a step
// session instead of finalizing.
func (c *Controller) Run(ctx context.Context, state *models.WorkflowState, opts RunOptions) (*models.ExecutionResult, error) {
	if err := c.transition(StateExecuting); err != nil {
		return nil, err
	}

	resolution, err := c.resolver.Resolve(state, opts.Mode)
	if err != nil {
		return c.finalizePreExecution(ctx, state.WorkflowID, err)
	}

	input := resolution.Payload
	if len(opts.Input) > 0 {
		input = opts.Input
	}

	if opts.Mode == trigger.ModeChat && len(opts.Files) > 0 {
		// Never write upload results into the caller's map.
		merged := make(map[string]any, len(input)+2)
		for k, v := range input {
			merged[k] = v
		}

		input = merged

		uploads, uploadErr := c.preflightUploads(ctx, opts.Files)
		if len(uploads) > 0 {
			input["files"] = uploads
		}

		if uploadErr != nil {
			input["uploadError"] = uploadErr.Error()
		}
	}

	c.mu.Lock()
	c.run = c.newRun(state, runFull, string(opts.Mode), opts.OnBlockComplete)
	c.mu.Unlock()

	result, err := c.svc.Execute(ctx, executor.Request{
		WorkflowID:   state.WorkflowID,
		State:        state,
		StartBlockID: resolution.StartBlockID,
		Input:        input,
		TriggerType:  string(opts.Mode),
		Debug:        opts.Debug,
	}, c.callbacks())
	if err != nil {
		return c.finalizePreExecution(ctx, state.WorkflowID, c.invalidateSnapshot(ctx, state.WorkflowID, err))
	}

	if opts.Debug && result.Metadata != nil && len(result.Metadata.PendingBlocks) > 0 {
		return c.enterDebug(result)
	}

	return c.adoptResult(ctx, result), nil
}

// RunFromBlock starts execution at the named block, substituting its
// upstream values from the stored snapshot. Dependencies gate the run:
// either the target is a trigger (runs with an empty effective
// snapshot), or every direct upstream source must already be executed
// in the snapshot or itself be a trigger.
func (c *Controller) RunFromBlock(ctx context.Context, state *models.WorkflowState, blockID string, input map[string]any) (*models.ExecutionResult, error) {
	if err := c.transition(StateExecuting); err != nil {
		return nil, err
	}

	target, ok := state.Blocks[blockID]
	if !ok {
		return c.finalizePreExecution(ctx, state.WorkflowID, c.invalidateSnapshot(ctx, state.WorkflowID, fmt.Errorf("block not found: %s", blockID)))
	}

	snap := c.snapshots.Get(ctx, state.WorkflowID)

	if !models.IsTriggerType(target.Type) {
		if err := c.checkDependencies(state, target, snap); err != nil {
			return c.finalizePreExecution(ctx, state.WorkflowID, c.invalidateSnapshot(ctx, state.WorkflowID, err))
		}
	}

	c.mu.Lock()
	c.run = c.newRun(state, runFromBlock, "manual", nil)
	c.mu.Unlock()

	result, err := c.svc.ExecuteFromBlock(ctx, executor.FromBlockRequest{
		WorkflowID:     state.WorkflowID,
		State:          state,
		StartBlockID:   blockID,
		Input:          input,
		SourceSnapshot: snap,
	}, c.callbacks())
	if err != nil {
		return c.finalizePreExecution(ctx, state.WorkflowID, c.invalidateSnapshot(ctx, state.WorkflowID, err))
	}

	return c.adoptResult(ctx, result), nil
}

// RunUntilBlock executes from the normal start but stops immediately
// after the named block completes. The partial result merges into the
// existing snapshot so a later run-from-block downstream of the stop
// point still sees upstream state.
func (c *Controller) RunUntilBlock(ctx context.Context, state *models.WorkflowState, stopBlockID string, opts RunOptions) (*models.ExecutionResult, error) {
	if err := c.transition(StateExecuting); err != nil {
		return nil, err
	}

	if _, ok := state.Blocks[stopBlockID]; !ok {
		return c.finalizePreExecution(ctx, state.WorkflowID, fmt.Errorf("block not found: %s", stopBlockID))
	}

	resolution, err := c.resolver.Resolve(state, opts.Mode)
	if err != nil {
		return c.finalizePreExecution(ctx, state.WorkflowID, err)
	}

	input := resolution.Payload
	if len(opts.Input) > 0 {
		input = opts.Input
	}

	c.mu.Lock()
	c.run = c.newRun(state, runUntilBlock, string(opts.Mode), opts.OnBlockComplete)
	c.mu.Unlock()

	result, err := c.svc.Execute(ctx, executor.Request{
		WorkflowID:       state.WorkflowID,
		State:            state,
		StartBlockID:     resolution.StartBlockID,
		Input:            input,
		TriggerType:      string(opts.Mode),
		StopAfterBlockID: stopBlockID,
	}, c.callbacks())
	if err != nil {
		return c.finalizePreExecution(ctx, state.WorkflowID, c.invalidateSnapshot(ctx, state.WorkflowID, err))
	}

	return c.adoptResult(ctx, result), nil
}

// Step executes exactly the pending debug blocks once. Invalid debug
// state resets the session rather than silently doing nothing.
func (c *Controller) Step(ctx context.Context) (*models.ExecutionResult, error) {
	c.mu.Lock()
	debugCtx, pending := c.debugCtx, c.pendingBlocks
	c.mu.Unlock()

	if debugCtx == nil || len(pending) == 0 {
		c.resetDebug()

		return nil, fmt.Errorf("no open debug session to step")
	}

	if err := c.transition(StateDebugStepping); err != nil {
		return nil, err
	}

	return c.continueDebug(ctx, debugCtx, pending)
}

// Resume repeatedly steps until no pending blocks remain, bounded by
// the configured ceiling. When the ceiling is hit the last known result
// is returned and debug state is still cleared.
func (c *Controller) Resume(ctx context.Context) (*models.ExecutionResult, error) {
	c.mu.Lock()
	debugCtx, pending := c.debugCtx, c.pendingBlocks
	c.mu.Unlock()

	if debugCtx == nil || len(pending) == 0 {
		c.resetDebug()

		return nil, fmt.Errorf("no open debug session to resume")
	}

	if err := c.transition(StateDebugResuming); err != nil {
		return nil, err
	}

	var (
		result *models.ExecutionResult
		err    error
	)

	for i := 0; i < c.opts.ResumeCeiling; i++ {
		result, err = c.svc.ContinueExecution(ctx, pending, debugCtx, c.callbacks())
		if err != nil {
			return c.finalizePreExecution(ctx, debugCtx.WorkflowID, err)
		}

		if result.Metadata == nil || len(result.Metadata.PendingBlocks) == 0 {
			return c.finalizeDebugRun(ctx, result)
		}

		pending = result.Metadata.PendingBlocks
	}

	c.logger.WarnContext(ctx, "resume hit iteration ceiling",
		"workflow_id", debugCtx.WorkflowID, "ceiling", c.opts.ResumeCeiling)

	return c.finalizeDebugRun(ctx, result)
}

// Cancel aborts the in-flight run from any non-terminal state: the
// executor is asked to stop, running console entries flip to cancelled,
// and no snapshot is written.
func (c *Controller) Cancel(ctx context.Context) error {
	c.mu.Lock()

	if c.state == StateIdle || c.state.IsTerminal() {
		c.mu.Unlock()

		return fmt.Errorf("no run in flight to cancel")
	}

	if c.run != nil {
		c.run.cancelled = true
	}

	debugging := c.state.IsDebugging()
	c.mu.Unlock()

	c.svc.Cancel()

	// A paused debug session has no executor loop to observe the flag;
	// finalize directly.
	if debugging {
		c.finalizeCancelledDebug(ctx)
	}

	return nil
}

func (c *Controller) continueDebug(ctx context.Context, debugCtx *executor.DebugContext, pending []string) (*models.ExecutionResult, error) {
	result, err := c.svc.ContinueExecution(ctx, pending, debugCtx, c.callbacks())
	if err != nil {
		return c.finalizePreExecution(ctx, debugCtx.WorkflowID, err)
	}

	if result.Metadata != nil && len(result.Metadata.PendingBlocks) > 0 {
		c.mu.Lock()
		c.pendingBlocks = result.Metadata.PendingBlocks
		c.mu.Unlock()

		if err := c.transition(StateDebugAwaitingStep); err != nil {
			return nil, err
		}

		return result, nil
	}

	return c.finalizeDebugRun(ctx, result)
}

func (c *Controller) enterDebug(result *models.ExecutionResult) (*models.ExecutionResult, error) {
	c.mu.Lock()
	c.debugCtx = c.svc.DebugSession()
	c.pendingBlocks = result.Metadata.PendingBlocks
	c.result = result
	c.mu.Unlock()

	if err := c.transition(StateDebugAwaitingStep); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Controller) resetDebug() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.debugCtx = nil
	c.pendingBlocks = nil
}
