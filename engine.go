package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/intrafind/ihub-apps-sub010/retry"
	"github.com/intrafind/ihub-apps-sub010/script"
)

// DefaultNodeTimeout bounds agent and tool nodes that configure no timeout.
const DefaultNodeTimeout = 300 * time.Second

// EngineOptions configures a new Engine
type EngineOptions struct {
	Store                Store
	Completer            Completer
	Tools                ToolInvoker
	ScriptCompiler       script.Compiler
	Logger               *slog.Logger
	Callbacks            Callbacks
	NodeLogger           NodeLogger
	Definitions          DefinitionRegistry
	Registry             *Registry
	NodeTimeout          time.Duration
	DefaultMaxIterations int
}

// ResumeOptions configures a resume. Workflow may be nil when the engine can
// find the definition in its registry or definition registry.
type ResumeOptions struct {
	Workflow *Workflow
}

// Engine drives workflow executions. It is safe for concurrent use by many
// executions; nodes of one execution always run sequentially.
type Engine struct {
	states               *StateManager
	registry             *Registry
	definitions          DefinitionRegistry
	executors            map[NodeType]NodeExecutor
	expressions          *expressions
	evaluator            *EdgeEvaluator
	completer            Completer
	tools                ToolInvoker
	logger               *slog.Logger
	callbacks            Callbacks
	nodeLogger           NodeLogger
	nodeTimeout          time.Duration
	defaultMaxIterations int
}

// NewEngine returns a new Engine. Unset options get in-memory or no-op
// defaults and expressions are compiled with expr-lang.
func NewEngine(opts EngineOptions) *Engine {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.ScriptCompiler == nil {
		opts.ScriptCompiler = script.NewExprEngine()
	}
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseCallbacks{}
	}
	if opts.NodeLogger == nil {
		opts.NodeLogger = NewNullNodeLogger()
	}
	if opts.Definitions == nil {
		opts.Definitions = NewMemoryDefinitionRegistry()
	}
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.NodeTimeout <= 0 {
		opts.NodeTimeout = DefaultNodeTimeout
	}
	exprs := newExpressions(opts.ScriptCompiler)
	return &Engine{
		states:               NewStateManager(opts.Store),
		registry:             opts.Registry,
		definitions:          opts.Definitions,
		executors:            newExecutors(),
		expressions:          exprs,
		evaluator:            newEdgeEvaluator(exprs),
		completer:            opts.Completer,
		tools:                opts.Tools,
		logger:               opts.Logger,
		callbacks:            opts.Callbacks,
		nodeLogger:           opts.NodeLogger,
		nodeTimeout:          opts.NodeTimeout,
		defaultMaxIterations: opts.DefaultMaxIterations,
	}
}

// Registry returns the engine's execution registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Definitions returns the engine's definition registry
func (e *Engine) Definitions() DefinitionRegistry {
	return e.definitions
}

// Start creates an execution of wf and runs it until it pauses or reaches a
// terminal status. Invalid input returns an error and creates no state.
// Failures inside the graph are recorded in the returned state.
func (e *Engine) Start(ctx context.Context, wf *Workflow, input map[string]any, ec ExecutionContext) (*ExecutionState, error) {
	id, err := e.create(ctx, wf, input, ec)
	if err != nil {
		return nil, err
	}
	runCtx, done := e.registry.begin(ctx, id, wf)
	defer done()
	return e.drive(runCtx, wf, id)
}

// StartAsync creates an execution and runs it on a new goroutine. The
// execution is not cancelled when ctx is; use Cancel. Use Wait to block
// until it pauses or terminates.
func (e *Engine) StartAsync(ctx context.Context, wf *Workflow, input map[string]any, ec ExecutionContext) (string, error) {
	id, err := e.create(ctx, wf, input, ec)
	if err != nil {
		return "", err
	}
	e.runAsync(ctx, wf, id)
	return id, nil
}

// Resume answers the pending checkpoint of a paused execution and continues
// it from the paused node's outgoing edges. A response for a checkpoint that
// is not pending fails with ErrStaleCheckpoint and leaves the state as is.
func (e *Engine) Resume(ctx context.Context, executionID string, resp HumanResponse, opts ResumeOptions) (*ExecutionState, error) {
	wf, err := e.accept(ctx, executionID, resp, opts)
	if err != nil {
		return nil, err
	}
	runCtx, done := e.registry.begin(ctx, executionID, wf)
	defer done()
	return e.drive(runCtx, wf, executionID)
}

// ResumeAsync is Resume on a new goroutine. Errors accepting the response
// are returned synchronously.
func (e *Engine) ResumeAsync(ctx context.Context, executionID string, resp HumanResponse, opts ResumeOptions) error {
	wf, err := e.accept(ctx, executionID, resp, opts)
	if err != nil {
		return err
	}
	e.runAsync(ctx, wf, executionID)
	return nil
}

// GetState returns the current state of an execution, or nil if unknown.
func (e *Engine) GetState(ctx context.Context, executionID string) (*ExecutionState, error) {
	return e.states.Get(ctx, executionID)
}

// Wait blocks until the execution is no longer being driven and returns
// its state.
func (e *Engine) Wait(ctx context.Context, executionID string) (*ExecutionState, error) {
	if err := e.registry.wait(ctx, executionID); err != nil {
		return nil, err
	}
	return e.GetState(ctx, executionID)
}

// Cancel marks an execution cancelled and cancels any in-flight node call.
// Cancelling a terminal execution does nothing.
func (e *Engine) Cancel(ctx context.Context, executionID string) error {
	_, err := e.states.Update(ctx, executionID, func(s *ExecutionState) error {
		if s.Status.IsTerminal() {
			return errHalt
		}
		s.PendingCheckpoint = nil
		s.finish(ExecutionStatusCancelled)
		return nil
	})
	if err != nil {
		return err
	}
	e.registry.cancel(executionID)
	e.logger.Info("execution cancelled", "execution_id", executionID)
	return nil
}

// Remove forgets an execution: it is dropped from the registry and its
// state deleted from the store.
func (e *Engine) Remove(ctx context.Context, executionID string) error {
	e.registry.Remove(executionID)
	return e.states.Delete(ctx, executionID)
}

// List returns summaries of stored executions when the store supports it.
func (e *Engine) List(ctx context.Context) ([]*ExecutionSummary, error) {
	lister, ok := e.states.Store().(Lister)
	if !ok {
		return nil, fmt.Errorf("store %T does not support listing", e.states.Store())
	}
	return lister.List(ctx)
}

func (e *Engine) runAsync(ctx context.Context, wf *Workflow, executionID string) {
	runCtx, done := e.registry.begin(context.WithoutCancel(ctx), executionID, wf)
	go func() {
		defer done()
		if _, err := e.drive(runCtx, wf, executionID); err != nil {
			e.logger.Error("execution stopped", "execution_id", executionID, "error", err)
		}
	}()
}

// create validates input and persists a new pending execution.
func (e *Engine) create(ctx context.Context, wf *Workflow, input map[string]any, ec ExecutionContext) (string, error) {
	if wf == nil {
		return "", ErrWorkflowRequired
	}
	data, err := validateInput(wf, input)
	if err != nil {
		return "", err
	}
	state := newExecutionState(NewExecutionID(), wf.ID(), data, ec)
	state.CurrentNode = wf.Start().ID
	if err := e.states.Create(ctx, state); err != nil {
		return "", err
	}
	e.registry.Add(state.ExecutionID, wf)
	if err := e.definitions.Register(wf); err != nil {
		e.logger.Warn("failed to register workflow definition", "workflow_id", wf.ID(), "error", err)
	}
	return state.ExecutionID, nil
}

// resumeWorkflow finds the definition a paused execution runs.
func (e *Engine) resumeWorkflow(ctx context.Context, executionID string, opts ResumeOptions) (*Workflow, error) {
	state, err := e.states.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %q", ErrExecutionNotFound, executionID)
	}
	wf := opts.Workflow
	if wf == nil {
		if registered, ok := e.registry.Get(executionID); ok {
			wf = registered
		} else if defined, ok := e.definitions.Get(state.WorkflowID); ok {
			wf = defined
		}
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: workflow %q for execution %q", ErrWorkflowRequired, state.WorkflowID, executionID)
	}
	if wf.ID() != state.WorkflowID {
		return nil, validationError("execution %q runs workflow %q, not %q", executionID, state.WorkflowID, wf.ID())
	}
	return wf, nil
}

// accept validates a human response against the pending checkpoint and, in
// the same atomic update, merges it and selects the next node.
func (e *Engine) accept(ctx context.Context, executionID string, resp HumanResponse, opts ResumeOptions) (*Workflow, error) {
	wf, err := e.resumeWorkflow(ctx, executionID, opts)
	if err != nil {
		return nil, err
	}
	_, err = e.states.Update(ctx, executionID, func(s *ExecutionState) error {
		checkpoint := s.PendingCheckpoint
		if s.Status != ExecutionStatusPaused || checkpoint == nil || checkpoint.ID != resp.CheckpointID {
			return staleCheckpointError(s, resp.CheckpointID)
		}
		node, ok := wf.GetNode(checkpoint.NodeID)
		if !ok {
			return validationError("checkpoint node %q not found in workflow %q", checkpoint.NodeID, wf.ID())
		}
		result, err := humanResult(node, checkpoint, resp)
		if err != nil {
			return err
		}
		s.PendingCheckpoint = nil
		s.Status = ExecutionStatusRunning
		ApplyPatches(s.Data, patchesFor(result))
		e.advance(ctx, wf, node, s, result)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.registry.Add(executionID, wf)
	e.logger.Info("checkpoint answered",
		"execution_id", executionID,
		"checkpoint_id", resp.CheckpointID,
		"response", resp.Response)
	return wf, nil
}

func staleCheckpointError(s *ExecutionState, checkpointID string) error {
	wrapped := ErrStaleCheckpoint
	if s.Status != ExecutionStatusPaused {
		wrapped = errors.Join(ErrStaleCheckpoint, ErrNotPaused)
	}
	return &WorkflowError{
		Type:    ErrorTypeStaleCheckpoint,
		Cause:   fmt.Sprintf("checkpoint %q is not pending for execution %q (status %s)", checkpointID, s.ExecutionID, s.Status),
		Wrapped: wrapped,
	}
}

// drive runs the step loop until the execution pauses, terminates or is
// cancelled. State is re-read from the store on every step, so a drive can
// pick up any execution persisted by any process.
func (e *Engine) drive(ctx context.Context, wf *Workflow, executionID string) (*ExecutionState, error) {
	storeCtx := context.WithoutCancel(ctx)
	ctx = WithExecutionID(ctx, executionID)
	logger := e.logger.With("execution_id", executionID, "workflow_id", wf.ID())

	state, err := e.states.Update(storeCtx, executionID, func(s *ExecutionState) error {
		if s.Status != ExecutionStatusPending {
			return errHalt
		}
		s.Status = ExecutionStatusRunning
		return nil
	})
	if err != nil {
		return nil, err
	}
	if state.Status != ExecutionStatusRunning {
		return state, nil
	}

	startTime := time.Now()
	logger.Info("execution running", "current_node", state.CurrentNode)
	e.callbacks.BeforeWorkflowExecution(ctx, &WorkflowExecutionEvent{
		ExecutionID:    executionID,
		WorkflowID:     wf.ID(),
		Status:         state.Status,
		StartTime:      startTime,
		Data:           copyMap(state.Data),
		CompletedNodes: append([]string{}, state.CompletedNodes...),
	})

	for state.Status == ExecutionStatusRunning {
		state, err = e.step(ctx, storeCtx, wf, state, logger)
		if err != nil {
			logger.Error("execution step failed", "error", err)
			return state, err
		}
	}

	endTime := time.Now()
	event := &WorkflowExecutionEvent{
		ExecutionID:    executionID,
		WorkflowID:     wf.ID(),
		Status:         state.Status,
		StartTime:      startTime,
		EndTime:        endTime,
		Duration:       endTime.Sub(startTime),
		Data:           copyMap(state.Data),
		Output:         copyMap(state.Output),
		CompletedNodes: append([]string{}, state.CompletedNodes...),
	}
	switch state.Status {
	case ExecutionStatusPaused:
		logger.Info("execution paused", "node_id", state.CurrentNode, "checkpoint_id", state.PendingCheckpoint.ID)
	case ExecutionStatusFailed:
		if last := state.LastError(); last != nil {
			event.Error = errors.New(last.Message)
			logger.Error("execution failed", "node_id", last.NodeID, "error", last.Message)
		}
	default:
		logger.Info("execution finished", "status", state.Status, "duration", event.Duration)
	}
	e.callbacks.AfterWorkflowExecution(ctx, event)
	return state, nil
}

// step executes the current node and applies its result. It returns the
// persisted state after the step.
func (e *Engine) step(ctx, storeCtx context.Context, wf *Workflow, state *ExecutionState, logger *slog.Logger) (*ExecutionState, error) {
	id := state.ExecutionID
	if err := ctx.Err(); err != nil {
		return e.interrupt(storeCtx, id, err)
	}

	node, ok := wf.GetNode(state.CurrentNode)
	if !ok {
		return e.states.Update(storeCtx, id, func(s *ExecutionState) error {
			if s.Status != ExecutionStatusRunning {
				return errHalt
			}
			e.recordFailure(s, state.CurrentNode, &WorkflowError{
				Type:    ErrorTypeGraph,
				Cause:   fmt.Sprintf("current node %q not found in workflow %q", state.CurrentNode, wf.ID()),
				NodeID:  state.CurrentNode,
				Wrapped: ErrDanglingEdge,
			})
			return nil
		})
	}

	limit := e.maxIterations(wf)
	state, err := e.states.Update(storeCtx, id, func(s *ExecutionState) error {
		if s.Status != ExecutionStatusRunning {
			return errHalt
		}
		s.Iterations++
		if s.Iterations > limit {
			e.recordFailure(s, node.ID, &WorkflowError{
				Type:    ErrorTypeIterationLimit,
				Cause:   fmt.Sprintf("exceeded %d iterations at node %q", limit, node.ID),
				NodeID:  node.ID,
				Wrapped: ErrMaxIterationsExceeded,
			})
		}
		return nil
	})
	if err != nil || state.Status != ExecutionStatusRunning {
		return state, err
	}

	result, execErr := e.execute(ctx, wf, node, state, logger)

	return e.states.Update(storeCtx, id, func(s *ExecutionState) error {
		if s.Status != ExecutionStatusRunning {
			// Cancelled while the node ran; its result is discarded.
			return errHalt
		}
		applied := result
		if execErr != nil {
			if ctx.Err() != nil {
				s.recordError(ErrorRecord{
					Type:    ErrorTypeCancelled,
					Message: execErr.Error(),
					NodeID:  node.ID,
				})
				s.finish(ExecutionStatusCancelled)
				return nil
			}
			outputVariable, cont := continueOnError(wf, node)
			if !cont {
				e.recordFailure(s, node.ID, execErr)
				return nil
			}
			e.recordError(s, node.ID, execErr)
			logger.Warn("node failed, continuing", "node_id", node.ID, "error", execErr)
			applied = &NodeResult{
				Output: map[string]any{outputVariable: map[string]any{"error": execErr.Error()}},
				Branch: "error",
			}
		}

		s.CompletedNodes = append(s.CompletedNodes, node.ID)
		ApplyPatches(s.Data, patchesFor(applied))

		if applied.Checkpoint != nil {
			s.PendingCheckpoint = applied.Checkpoint
			s.Status = ExecutionStatusPaused
			return nil
		}
		if applied.Terminal != nil || node.Type == NodeTypeEnd {
			status := ExecutionStatusCompleted
			if applied.Terminal != nil {
				s.Output = applied.Terminal.Output
				status = applied.Terminal.Status
			}
			s.PendingCheckpoint = nil
			s.finish(status)
			return nil
		}
		e.advance(ctx, wf, node, s, applied)
		return nil
	})
}

// advance selects the edge out of node and moves the execution to its
// target, or fails the execution when no edge matches.
func (e *Engine) advance(ctx context.Context, wf *Workflow, node *Node, s *ExecutionState, result *NodeResult) {
	scope := newScope(s).withResult(result.resultScope())
	edge, err := e.evaluator.selectEdge(ctx, node, wf.Outgoing(node.ID), scope)
	if err != nil {
		e.recordFailure(s, node.ID, err)
		return
	}
	if edge == nil {
		s.finish(ExecutionStatusCompleted)
		return
	}
	s.CurrentNode = edge.Target
}

// interrupt stops an execution whose context was cancelled between steps.
func (e *Engine) interrupt(storeCtx context.Context, executionID string, cause error) (*ExecutionState, error) {
	return e.states.Update(storeCtx, executionID, func(s *ExecutionState) error {
		if s.Status != ExecutionStatusRunning {
			return errHalt
		}
		s.recordError(ErrorRecord{Type: ErrorTypeCancelled, Message: cause.Error(), NodeID: s.CurrentNode})
		s.finish(ExecutionStatusCancelled)
		return nil
	})
}

// execute runs a node's executor with its timeout, callbacks and node log.
func (e *Engine) execute(ctx context.Context, wf *Workflow, node *Node, state *ExecutionState, logger *slog.Logger) (*NodeResult, error) {
	logger = logger.With("node_id", node.ID, "node_type", node.Type)
	executor, ok := e.executors[node.Type]
	if !ok {
		return nil, newNodeError(ErrorTypeGraph, node.ID, fmt.Errorf("%w: %q", ErrUnknownNodeType, node.Type))
	}
	svc := &Services{
		Workflow:    wf,
		Completer:   e.completer,
		Tools:       e.tools,
		Logger:      logger,
		expressions: e.expressions,
	}

	nodeCtx := ctx
	timeout := e.timeoutFor(wf, node)
	if timeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	startTime := time.Now()
	e.callbacks.BeforeNodeExecution(ctx, &NodeExecutionEvent{
		ExecutionID: state.ExecutionID,
		WorkflowID:  wf.ID(),
		NodeID:      node.ID,
		NodeType:    node.Type,
		Iteration:   state.Iterations,
		StartTime:   startTime,
	})
	logger.Debug("executing node", "iteration", state.Iterations)

	result, err := executor.Execute(nodeCtx, node, state, svc)
	if err == nil && result == nil {
		result = &NodeResult{}
	}
	if err != nil && ctx.Err() == nil && errors.Is(nodeCtx.Err(), context.DeadlineExceeded) {
		err = &WorkflowError{
			Type:    ErrorTypeTimeout,
			Cause:   fmt.Sprintf("node %q timed out after %s", node.ID, timeout),
			NodeID:  node.ID,
			Wrapped: errors.Join(context.DeadlineExceeded, err),
		}
	}
	endTime := time.Now()

	event := &NodeExecutionEvent{
		ExecutionID: state.ExecutionID,
		WorkflowID:  wf.ID(),
		NodeID:      node.ID,
		NodeType:    node.Type,
		Iteration:   state.Iterations,
		StartTime:   startTime,
		EndTime:     endTime,
		Duration:    endTime.Sub(startTime),
		Error:       err,
	}
	entry := &NodeLogEntry{
		ID:          uuid.NewString(),
		ExecutionID: state.ExecutionID,
		WorkflowID:  wf.ID(),
		NodeID:      node.ID,
		NodeType:    node.Type,
		Iteration:   state.Iterations,
		Config:      node.Config,
		StartTime:   startTime,
		Duration:    endTime.Sub(startTime).Seconds(),
	}
	if result != nil {
		event.Branch = result.Branch
		event.Patches = patchesFor(result)
		entry.Output = result.Output
		entry.Branch = result.Branch
	}
	if err != nil {
		entry.Error = err.Error()
		logger.Error("node failed", "error", err, "duration", event.Duration)
	} else {
		logger.Debug("node completed", "branch", event.Branch, "duration", event.Duration)
	}
	e.callbacks.AfterNodeExecution(ctx, event)
	if logErr := e.nodeLogger.LogNode(context.WithoutCancel(ctx), entry); logErr != nil {
		logger.Warn("failed to write node log", "error", logErr)
	}
	return result, err
}

func (e *Engine) maxIterations(wf *Workflow) int {
	configured := wf.opts.Config != nil && wf.opts.Config.MaxIterations > 0
	if !configured && e.defaultMaxIterations > 0 {
		return e.defaultMaxIterations
	}
	return wf.Config().MaxIterations
}

// timeoutFor returns the timeout applied to agent and tool nodes.
func (e *Engine) timeoutFor(wf *Workflow, node *Node) time.Duration {
	var configured time.Duration
	switch cfg := wf.nodeConfig(node.ID).(type) {
	case *AgentConfig:
		configured = cfg.timeout
	case *ToolConfig:
		configured = cfg.timeout
	default:
		return 0
	}
	if configured > 0 {
		return configured
	}
	return e.nodeTimeout
}

// continueOnError reports whether a failed node should record the error and
// continue, and the variable its error marker is written to.
func continueOnError(wf *Workflow, node *Node) (string, bool) {
	switch cfg := wf.nodeConfig(node.ID).(type) {
	case *AgentConfig:
		return cfg.OutputVariable, cfg.OnError == OnErrorContinue
	case *ToolConfig:
		return cfg.OutputVariable, cfg.OnError == OnErrorContinue
	}
	return "", false
}

func (e *Engine) recordError(s *ExecutionState, nodeID string, err error) {
	classified := ClassifyError(err)
	if classified.NodeID != "" {
		nodeID = classified.NodeID
	}
	s.recordError(ErrorRecord{
		Type:        classified.Type,
		Message:     err.Error(),
		NodeID:      nodeID,
		Recoverable: retry.IsRecoverable(err),
	})
}

// recordFailure records err and fails the execution.
func (e *Engine) recordFailure(s *ExecutionState, nodeID string, err error) {
	e.recordError(s, nodeID, err)
	s.finish(ExecutionStatusFailed)
}
