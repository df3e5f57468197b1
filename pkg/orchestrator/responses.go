package orchestrator

import (
	"context"
	"fmt"

	"github.com/dukex/orchestra/pkg/events"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/navigator"
	"github.com/dukex/orchestra/pkg/otelhelper"
	"github.com/dukex/orchestra/pkg/persistence"
	"go.opentelemetry.io/otel/trace"
)

// accept loads the node execution a response is about. It returns ok=false, and no error,
// for responses that must be dropped.
func (o *Orchestrator) accept(
	ctx context.Context,
	span trace.Span,
	base events.BaseEvent,
	applies func(*models.WorkflowNodeExecution) bool,
) (*models.WorkflowExecution, *models.WorkflowNodeExecution, bool, error) {
	logger := o.logger.With(
		"event_id", base.ID,
		"event_type", base.Type,
		"execution_id", base.WorkflowExecutionID,
		"node_execution_id", base.WorkflowNodeExecutionID,
	)

	if base.Processed() {
		logger.DebugContext(ctx, "Skipping processed event")
		outcome(span, "processed")

		return nil, nil, false, nil
	}

	execution, nodeExecution, err := o.load(ctx, base.WorkflowExecutionID, base.WorkflowNodeExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) || persistence.IsNodeExecutionNotFound(err) {
			logger.WarnContext(ctx, "Dropping response for unknown node execution", "error", err)
			outcome(span, "unknown")

			return nil, nil, false, nil
		}

		otelhelper.SetError(span, err)

		return nil, nil, false, err
	}

	if nodeExecution.LastEventID == base.ID {
		logger.DebugContext(ctx, "Skipping already applied event")
		outcome(span, "duplicate")

		return nil, nil, false, nil
	}

	if execution.Status == models.ExecutionStatusError {
		logger.InfoContext(ctx, "Dropping response for failed execution")
		outcome(span, "execution_failed")

		return nil, nil, false, nil
	}

	if !applies(nodeExecution) {
		logger.WarnContext(ctx, "Dropping stale response",
			"state", nodeExecution.State,
			"phase", nodeExecution.Phase,
		)
		outcome(span, "stale")

		return nil, nil, false, nil
	}

	nodeExecution.LastEventID = base.ID

	return execution, nodeExecution, true, nil
}

// OnActivated applies an activation response. A failed activation fails the node; a
// successful one leaves WAIT nodes WAITING and invokes every other node.
func (o *Orchestrator) OnActivated(ctx context.Context, resp *events.ActivationResponse) error {
	ctx, span := o.startSpan(ctx, "orchestrator.activated", resp.BaseEvent)
	defer span.End()

	unlock := o.locks.Lock(resp.WorkflowExecutionID)
	defer unlock()

	execution, nodeExecution, ok, err := o.accept(ctx, span, resp.BaseEvent, func(n *models.WorkflowNodeExecution) bool {
		return n.State == models.NodeStateIdle && n.Phase == models.PhaseActivation
	})
	if err != nil || !ok {
		return err
	}

	if resp.Failed() {
		o.fail(ctx, execution, nodeExecution, resp.Err())
		outcome(span, "failed")

		return o.register(ctx, execution)
	}

	switch nodeExecution.Type() {
	case models.NodeTypeWait:
		nodeExecution.Transition(models.NodeStateWaiting)
		o.progress(execution)
		outcome(span, "waiting")

		return o.register(ctx, execution)
	case models.NodeTypeStart:
		nodeExecution.Phase = models.PhaseInvocation
	default:
		nodeExecution.Transition(models.NodeStateWorking)
		nodeExecution.Phase = models.PhaseInvocation
		o.progress(execution)
	}

	execution.Touch()

	err = o.register(ctx, execution)
	if err != nil {
		return err
	}

	outcome(span, "invoked")

	return o.dispatcher.RequestInvocation(ctx, execution, nodeExecution, &resp.BaseEvent)
}

// OnInvoked applies an invocation response. Success stores the returned context and
// navigates to the children, failure fails the node.
func (o *Orchestrator) OnInvoked(ctx context.Context, resp *events.InvocationResponse) error {
	ctx, span := o.startSpan(ctx, "orchestrator.invoked", resp.BaseEvent)
	defer span.End()

	unlock := o.locks.Lock(resp.WorkflowExecutionID)
	defer unlock()

	execution, nodeExecution, ok, err := o.accept(ctx, span, resp.BaseEvent, func(n *models.WorkflowNodeExecution) bool {
		if n.Phase != models.PhaseInvocation {
			return false
		}

		if n.Type() == models.NodeTypeStart {
			return n.State == models.NodeStateIdle || n.State == models.NodeStateDone
		}

		return n.State == models.NodeStateWorking
	})
	if err != nil || !ok {
		return err
	}

	o.absorb(ctx, execution, nodeExecution, resp.Absorbed)

	if resp.Failed() {
		o.fail(ctx, execution, nodeExecution, resp.Err())
		outcome(span, "failed")

		return o.register(ctx, execution)
	}

	workflow, err := o.workflows.GetWorkflow(ctx, execution.WorkflowID)
	if err != nil {
		otelhelper.SetError(span, err)

		return fmt.Errorf("failed to load workflow of execution %s: %w", execution.ID, err)
	}

	if resp.Context != nil {
		nodeExecution.StageContext = resp.Context
	}

	err = o.navigator.Navigate(ctx, workflow, execution, nodeExecution, func(ctx context.Context, result navigator.Result) error {
		return o.childrenReady(ctx, result, &resp.BaseEvent)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	outcome(span, "navigated")

	return nil
}

// absorb closes the node executions whose arrivals a join consumed on behalf of nodeExecution.
func (o *Orchestrator) absorb(
	ctx context.Context,
	execution *models.WorkflowExecution,
	nodeExecution *models.WorkflowNodeExecution,
	absorbed []string,
) {
	for _, id := range absorbed {
		if id == nodeExecution.ID {
			continue
		}

		other, ok := execution.NodeExecution(id)
		if !ok || other.State.Terminal() {
			continue
		}

		other.Transition(models.NodeStateDone)

		o.logger.DebugContext(ctx, "Node execution absorbed",
			"execution_id", execution.ID,
			"node_execution_id", id,
			"absorbed_by", nodeExecution.ID,
		)
	}
}

func (o *Orchestrator) childrenReady(ctx context.Context, result navigator.Result, cause *events.BaseEvent) error {
	for _, child := range result.Children {
		child.Phase = models.PhaseActivation
	}

	if result.Renewed() {
		err := o.register(ctx, result.Source)
		if err != nil {
			return err
		}
	}

	err := o.register(ctx, result.Execution)
	if err != nil {
		return err
	}

	if result.Execution.Status == models.ExecutionStatusSuccess && len(result.Children) == 0 {
		o.logger.InfoContext(ctx, "Execution completed",
			"workflow_id", result.Execution.WorkflowID,
			"execution_id", result.Execution.ID,
		)
	}

	for _, child := range result.Children {
		err = o.dispatcher.RequestActivation(ctx, result.Execution, child, cause)
		if err != nil {
			return err
		}
	}

	return nil
}

func (o *Orchestrator) progress(execution *models.WorkflowExecution) {
	if execution.Status == models.ExecutionStatusPending {
		execution.Status = models.ExecutionStatusInProgress
	}
}

func (o *Orchestrator) register(ctx context.Context, execution *models.WorkflowExecution) error {
	_, err := o.executions.Register(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to register execution %s: %w", execution.ID, err)
	}

	return nil
}
