// Package orchestrator drives workflow executions. It reacts to component responses,
// records node execution state and hands completed nodes to the navigator.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/orchestra/pkg/dispatcher"
	"github.com/dukex/orchestra/pkg/eventbus"
	"github.com/dukex/orchestra/pkg/events"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/navigator"
	"github.com/dukex/orchestra/pkg/otelhelper"
	"github.com/dukex/orchestra/pkg/persistence"
	"github.com/dukex/orchestra/pkg/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidState     = errors.New("node execution is not in the expected state")
	ErrWorkflowMismatch = errors.New("execution belongs to another workflow")
)

type Orchestrator struct {
	logger     *slog.Logger
	workflows  persistence.WorkflowRegistry
	executions persistence.WorkflowExecutionRegistry
	dispatcher *dispatcher.Dispatcher
	navigator  *navigator.Navigator
	tracer     trace.Tracer

	failurePolicy FailurePolicy
	stateTimeout  time.Duration
	watchInterval time.Duration
	now           func() time.Time

	locks *keyedMutex
}

type Option func(*Orchestrator)

// WithFailurePolicy replaces HaltBranch as the reaction to failed non-START nodes.
func WithFailurePolicy(policy FailurePolicy) Option {
	return func(o *Orchestrator) {
		o.failurePolicy = policy
	}
}

// WithStateTimeout fails node executions left WORKING or WAITING for longer than timeout.
// Nodes override it with a "timeout" duration in their config, "0" disables it.
func WithStateTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.stateTimeout = timeout
	}
}

// WithWatchInterval sets how often the state timeout watchdog sweeps.
func WithWatchInterval(interval time.Duration) Option {
	return func(o *Orchestrator) {
		o.watchInterval = interval
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

func New(
	logger *slog.Logger,
	workflows persistence.WorkflowRegistry,
	executions persistence.WorkflowExecutionRegistry,
	publisher eventbus.EventPublisher,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		logger:        logger.With("module", "orchestrator"),
		workflows:     workflows,
		executions:    executions,
		dispatcher:    dispatcher.New(logger, publisher),
		navigator:     navigator.New(logger),
		tracer:        otelhelper.Tracer("orchestra/orchestrator"),
		failurePolicy: HaltBranch,
		now:           time.Now,
		locks:         newKeyedMutex(),
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.watchInterval <= 0 && o.stateTimeout > 0 {
		o.watchInterval = max(o.stateTimeout/4, 10*time.Millisecond)
	}

	return o
}

// Start registers the response handlers and, with a state timeout configured, runs the
// watchdog until ctx is done. The caller subscribes the bus.
func (o *Orchestrator) Start(ctx context.Context, subscriber eventbus.EventSubscriber) error {
	o.logger.InfoContext(ctx, "Starting orchestrator", "state_timeout", o.stateTimeout)

	err := subscriber.Handle(events.ActivationRespondedEvent, o.handleActivationResponse)
	if err != nil {
		return err
	}

	err = subscriber.Handle(events.InvocationRespondedEvent, o.handleInvocationResponse)
	if err != nil {
		return err
	}

	if o.stateTimeout > 0 {
		go o.Watch(ctx)
	}

	return nil
}

func (o *Orchestrator) handleActivationResponse(ctx context.Context, event any) error {
	resp, ok := event.(*events.ActivationResponse)
	if !ok {
		o.logger.ErrorContext(ctx, "Invalid event type for ActivationResponse")

		return nil
	}

	return o.OnActivated(ctx, resp)
}

func (o *Orchestrator) handleInvocationResponse(ctx context.Context, event any) error {
	resp, ok := event.(*events.InvocationResponse)
	if !ok {
		o.logger.ErrorContext(ctx, "Invalid event type for InvocationResponse")

		return nil
	}

	return o.OnInvoked(ctx, resp)
}

// Orchestrate starts a new execution of workflow. Executions of the same workflow that
// never progressed are discarded first.
func (o *Orchestrator) Orchestrate(ctx context.Context, workflow *models.Workflow) (*models.WorkflowExecution, error) {
	err := workflow.Validate()
	if err != nil {
		return nil, err
	}

	_, err = o.workflows.GetWorkflow(ctx, workflow.ID)
	if persistence.IsWorkflowNotFound(err) {
		err = o.workflows.SaveWorkflow(ctx, workflow)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to register workflow %s: %w", workflow.ID, err)
	}

	err = o.executions.DeleteIdlesFor(ctx, workflow.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to discard idle executions of %s: %w", workflow.ID, err)
	}

	execution := models.NewWorkflowExecution(workflow.ID)
	roots := workflow.RootNodes()

	for _, root := range roots {
		nodeExecution := models.NewWorkflowNodeExecution(root, models.NewExecutionContext())
		nodeExecution.Phase = models.PhaseActivation
		execution.Add(nodeExecution)
	}

	_, err = o.executions.Register(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to register execution: %w", err)
	}

	o.logger.InfoContext(ctx, "Orchestrating workflow",
		"workflow_id", workflow.ID,
		"execution_id", execution.ID,
		"roots", len(roots),
	)

	for _, nodeExecution := range execution.NodeExecutions {
		err = o.dispatcher.RequestActivation(ctx, execution, nodeExecution, nil)
		if err != nil {
			return execution, err
		}
	}

	return execution, nil
}

// OrchestrateByID loads the workflow from the registry and orchestrates it.
func (o *Orchestrator) OrchestrateByID(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	workflow, err := o.workflows.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	return o.Orchestrate(ctx, workflow)
}

// ReplayExecution resets a node execution to IDLE and drives it through activation again.
func (o *Orchestrator) ReplayExecution(ctx context.Context, workflowID, executionID, nodeExecutionID string) error {
	unlock := o.locks.Lock(executionID)
	defer unlock()

	execution, nodeExecution, err := o.load(ctx, executionID, nodeExecutionID)
	if err != nil {
		return err
	}

	if execution.WorkflowID != workflowID {
		return persistence.NewExecutionError("ReplayExecution", executionID, ErrWorkflowMismatch)
	}

	nodeExecution.Transition(models.NodeStateIdle)
	nodeExecution.Error = nil
	nodeExecution.LastEventID = ""
	nodeExecution.Phase = models.PhaseActivation

	if execution.Status == models.ExecutionStatusError {
		execution.Status = models.ExecutionStatusInProgress
		if nodeExecution.Type() == models.NodeTypeStart {
			execution.Status = models.ExecutionStatusPending
		}
	}

	execution.Touch()

	_, err = o.executions.Register(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to register execution: %w", err)
	}

	o.logger.InfoContext(ctx, "Replaying node execution",
		"execution_id", executionID,
		"node_id", nodeExecution.WorkflowNodeID,
		"node_execution_id", nodeExecutionID,
	)

	return o.dispatcher.RequestActivation(ctx, execution, nodeExecution, nil)
}

// ResumeWaiting releases a WAITING node execution: data is merged into its stage context
// and the node is invoked.
func (o *Orchestrator) ResumeWaiting(ctx context.Context, executionID, nodeExecutionID string, data map[string]any) error {
	unlock := o.locks.Lock(executionID)
	defer unlock()

	execution, nodeExecution, err := o.load(ctx, executionID, nodeExecutionID)
	if err != nil {
		return err
	}

	if nodeExecution.State != models.NodeStateWaiting {
		return fmt.Errorf("%w: %s is %s, not %s",
			ErrInvalidState, nodeExecutionID, nodeExecution.State, models.NodeStateWaiting)
	}

	stageContext := nodeExecution.StageContext.Clone()
	for key, value := range data {
		stageContext.Set(key, value)
	}

	nodeExecution.StageContext = stageContext
	nodeExecution.Transition(models.NodeStateWorking)
	nodeExecution.Phase = models.PhaseInvocation
	execution.Touch()

	_, err = o.executions.Register(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to register execution: %w", err)
	}

	o.logger.InfoContext(ctx, "Resuming waiting node execution",
		"execution_id", executionID,
		"node_id", nodeExecution.WorkflowNodeID,
		"node_execution_id", nodeExecutionID,
	)

	return o.dispatcher.RequestInvocation(ctx, execution, nodeExecution, nil)
}

func (o *Orchestrator) load(
	ctx context.Context,
	executionID string,
	nodeExecutionID string,
) (*models.WorkflowExecution, *models.WorkflowNodeExecution, error) {
	execution, err := o.executions.GetWorkflowExecution(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}

	nodeExecution, ok := execution.NodeExecution(nodeExecutionID)
	if !ok {
		return nil, nil, persistence.NewExecutionError("load", executionID,
			fmt.Errorf("%w: %s", persistence.ErrNodeExecutionNotFound, nodeExecutionID))
	}

	return execution, nodeExecution, nil
}

// fail records err on nodeExecution. A failing START node fails the execution, any other
// node is handed to the failure policy.
func (o *Orchestrator) fail(
	ctx context.Context,
	execution *models.WorkflowExecution,
	nodeExecution *models.WorkflowNodeExecution,
	err error,
) {
	nodeExecution.Transition(models.NodeStateFailed)
	nodeExecution.Error = protocol.ToPayload(err)

	if nodeExecution.Type() == models.NodeTypeStart {
		o.logger.ErrorContext(ctx, "START node failed, failing the execution",
			"execution_id", execution.ID,
			"node_id", nodeExecution.WorkflowNodeID,
			"error", err,
		)

		execution.Status = models.ExecutionStatusError
	} else {
		o.failurePolicy(ctx, o.logger, execution, nodeExecution, err)
	}

	execution.Touch()
}

func (o *Orchestrator) startSpan(ctx context.Context, name string, base events.BaseEvent) (context.Context, trace.Span) {
	return otelhelper.StartSpan(ctx, o.tracer, name, otelhelper.EventAttributes(base)...)
}

func outcome(span trace.Span, value string) {
	span.SetAttributes(attribute.String(otelhelper.OutcomeKey, value))
}
