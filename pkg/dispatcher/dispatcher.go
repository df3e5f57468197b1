// Package dispatcher turns node executions into component requests on the event bus.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/orchestra/pkg/eventbus"
	"github.com/dukex/orchestra/pkg/events"
	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
)

type Dispatcher struct {
	logger    *slog.Logger
	publisher eventbus.EventPublisher
}

func New(logger *slog.Logger, publisher eventbus.EventPublisher) *Dispatcher {
	return &Dispatcher{
		logger:    logger.With("module", "dispatcher"),
		publisher: publisher,
	}
}

// RequestActivation asks the runtime engine whether the node may run. cause is the
// event that led here, nil when a run or replay starts.
func (d *Dispatcher) RequestActivation(
	ctx context.Context,
	execution *models.WorkflowExecution,
	nodeExecution *models.WorkflowNodeExecution,
	cause *events.BaseEvent,
) error {
	target, nodeType, config := describe(execution, nodeExecution)
	req := events.NewActivationRequest(target, nodeType, config, nodeExecution.StageContext, cause)

	nodeExecution.Phase = models.PhaseActivation

	d.logger.DebugContext(ctx, "Requesting activation",
		"execution_id", execution.ID,
		"node_id", nodeExecution.WorkflowNodeID,
		"node_execution_id", nodeExecution.ID,
		"component", target.Component,
		"event_id", req.ID,
	)

	err := d.publisher.Publish(ctx, execution.ID, req)
	if err != nil {
		return fmt.Errorf("failed to publish activation request for %s: %w", nodeExecution.ID, err)
	}

	return nil
}

// RequestInvocation asks the runtime engine to run the node.
func (d *Dispatcher) RequestInvocation(
	ctx context.Context,
	execution *models.WorkflowExecution,
	nodeExecution *models.WorkflowNodeExecution,
	cause *events.BaseEvent,
) error {
	target, nodeType, config := describe(execution, nodeExecution)
	req := events.NewInvocationRequest(target, nodeType, config, nodeExecution.StageContext, cause)

	nodeExecution.Phase = models.PhaseInvocation

	d.logger.DebugContext(ctx, "Requesting invocation",
		"execution_id", execution.ID,
		"node_id", nodeExecution.WorkflowNodeID,
		"node_execution_id", nodeExecution.ID,
		"component", target.Component,
		"event_id", req.ID,
	)

	err := d.publisher.Publish(ctx, execution.ID, req)
	if err != nil {
		return fmt.Errorf("failed to publish invocation request for %s: %w", nodeExecution.ID, err)
	}

	return nil
}

func describe(execution *models.WorkflowExecution, nodeExecution *models.WorkflowNodeExecution) (events.Target, models.NodeType, map[string]any) {
	component := protocol.DefaultComponent
	config := map[string]any{}

	if nodeExecution.Node != nil {
		if nodeExecution.Node.Component != "" {
			component = nodeExecution.Node.Component
		}

		if nodeExecution.Node.Config != nil {
			config = nodeExecution.Node.Config
		}
	}

	target := events.Target{
		WorkflowID:              execution.WorkflowID,
		WorkflowExecutionID:     execution.ID,
		WorkflowNodeID:          nodeExecution.WorkflowNodeID,
		WorkflowNodeExecutionID: nodeExecution.ID,
		Component:               component,
	}

	return target, nodeExecution.Type(), config
}
