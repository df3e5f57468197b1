package orchestrator

import (
	"context"
	"log/slog"

	"github.com/dukex/orchestra/pkg/models"
)

// FailurePolicy decides what a failed non-START node means for its execution. The node
// execution is already FAILED when the policy runs; the policy may change the execution.
type FailurePolicy func(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.WorkflowExecution,
	nodeExecution *models.WorkflowNodeExecution,
	err error,
)

// HaltBranch logs the failure and leaves the execution running. Sibling branches continue.
func HaltBranch(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.WorkflowExecution,
	nodeExecution *models.WorkflowNodeExecution,
	err error,
) {
	logger.WarnContext(ctx, "Node execution failed, halting its branch",
		"execution_id", execution.ID,
		"node_id", nodeExecution.WorkflowNodeID,
		"node_execution_id", nodeExecution.ID,
		"error", err,
	)
}

// FailExecution marks the whole execution as failed. Responses arriving afterwards are dropped.
func FailExecution(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.WorkflowExecution,
	nodeExecution *models.WorkflowNodeExecution,
	err error,
) {
	logger.ErrorContext(ctx, "Node execution failed, failing the execution",
		"execution_id", execution.ID,
		"node_id", nodeExecution.WorkflowNodeID,
		"node_execution_id", nodeExecution.ID,
		"error", err,
	)

	execution.Status = models.ExecutionStatusError
}
