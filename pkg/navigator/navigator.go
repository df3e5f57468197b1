// Package navigator advances an execution once a node execution completes.
package navigator

import (
	"context"
	"log/slog"
	"slices"

	"github.com/dukex/orchestra/pkg/decision"
	"github.com/dukex/orchestra/pkg/models"
)

// Result is what a completed navigation produced.
type Result struct {
	// Execution holds the children. It differs from Source after a START renewal.
	Execution *models.WorkflowExecution
	// NodeExecution is the parent of Children inside Execution.
	NodeExecution *models.WorkflowNodeExecution
	Children      []*models.WorkflowNodeExecution
	// Source is the execution navigation started from.
	Source *models.WorkflowExecution
}

// Renewed reports whether navigation opened a new execution cycle.
func (r Result) Renewed() bool {
	return r.Execution != r.Source
}

type ChildrenReady func(ctx context.Context, result Result) error

type Navigator struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Navigator {
	return &Navigator{logger: logger.With("module", "navigator")}
}

// Navigate marks nodeExecution DONE, instantiates its eligible children and hands the
// outcome to onChildrenReady.
//
// A completing START node opens a new execution holding a renewed copy of the START node
// execution, so a polling START fires one run per emission. A completing END node
// finishes its execution. A child whose workflow node already has a finished record in
// the execution replaces that record; records still in flight are kept.
func (n *Navigator) Navigate(
	ctx context.Context,
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	nodeExecution *models.WorkflowNodeExecution,
	onChildrenReady ChildrenReady,
) error {
	nodeExecution.Transition(models.NodeStateDone)
	nodeExecution.Error = nil

	owner := execution
	parent := nodeExecution

	if nodeExecution.Type() == models.NodeTypeStart {
		owner, parent = renew(workflow, execution, nodeExecution)

		n.logger.DebugContext(ctx, "Renewed execution cycle",
			"execution_id", execution.ID,
			"renewed_execution_id", owner.ID,
		)
	}

	next := decision.DetermineNextNodes(workflow, nodeExecution)
	children := make([]*models.WorkflowNodeExecution, 0, len(next))

	for _, node := range next {
		child := models.NewWorkflowNodeExecution(node, nodeExecution.StageContext.DeriveFor(node.ID, nodeExecution.WorkflowNodeID))

		n.place(ctx, owner, child)

		if !slices.Contains(parent.Children, child.ID) {
			parent.Children = append(parent.Children, child.ID)
		}

		children = append(children, child)
	}

	if nodeExecution.Type() == models.NodeTypeEnd {
		owner.Status = models.ExecutionStatusSuccess
	}

	owner.Touch()
	execution.Touch()

	return onChildrenReady(ctx, Result{
		Execution:     owner,
		NodeExecution: parent,
		Children:      children,
		Source:        execution,
	})
}

func (n *Navigator) place(ctx context.Context, execution *models.WorkflowExecution, child *models.WorkflowNodeExecution) {
	for _, existing := range execution.NodeExecutionsFor(child.WorkflowNodeID) {
		if existing.State.Terminal() {
			n.logger.DebugContext(ctx, "Replacing finished node execution on re-entry",
				"execution_id", execution.ID,
				"node_id", child.WorkflowNodeID,
				"stale_node_execution_id", existing.ID,
			)

			execution.Replace(existing.ID, child)

			return
		}
	}

	execution.Add(child)
}

func renew(
	workflow *models.Workflow,
	execution *models.WorkflowExecution,
	start *models.WorkflowNodeExecution,
) (*models.WorkflowExecution, *models.WorkflowNodeExecution) {
	renewed := models.NewWorkflowExecution(workflow.ID)
	renewed.Status = models.ExecutionStatusInProgress
	renewed.ParentExecutionID = execution.ID

	node := start.Node
	if node == nil {
		found, ok := workflow.Node(start.WorkflowNodeID)
		if !ok {
			found = &models.WorkflowNode{ID: start.WorkflowNodeID, Type: models.NodeTypeStart}
		}

		node = found
	}

	carried := models.NewWorkflowNodeExecution(node, start.StageContext.Clone())
	carried.Phase = start.Phase
	carried.Transition(models.NodeStateDone)

	renewed.Add(carried)

	return renewed, carried
}
