package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence"
	"github.com/lib/pq"
)

// ExecutionRepository stores workflow executions with their node executions as a JSONB array.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const selectExecution = `
	SELECT
		id
	  , workflow_id
	  , parent_execution_id
	  , status
	  , node_executions
	  , created_at
	  , updated_at
	FROM workflow_executions
`

// Register upserts the execution.
func (r *ExecutionRepository) Register(
	ctx context.Context,
	execution *models.WorkflowExecution,
) (*models.WorkflowExecution, error) {
	nodeExecutions, err := persistence.Encode(execution.NodeExecutions)
	if err != nil {
		return nil, persistence.NewExecutionError("Register", execution.ID, err)
	}

	query := `
		INSERT INTO workflow_executions
			(id, workflow_id, parent_execution_id, status, node_executions, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			parent_execution_id = EXCLUDED.parent_execution_id,
			status = EXCLUDED.status,
			node_executions = EXCLUDED.node_executions,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.WorkflowID,
		execution.ParentExecutionID,
		execution.Status,
		nodeExecutions,
		execution.CreatedAt,
		execution.UpdatedAt,
	)
	if err != nil {
		return nil, persistence.NewExecutionError("Register", execution.ID, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) GetWorkflowExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	execution, err := scanExecution(r.db.QueryRowContext(ctx, selectExecution+" WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = persistence.ErrExecutionNotFound
		}

		return nil, persistence.NewExecutionError("GetWorkflowExecution", id, err)
	}

	return execution, nil
}

// DeleteIdlesFor removes pending executions whose node executions are all still IDLE.
func (r *ExecutionRepository) DeleteIdlesFor(ctx context.Context, workflowID string) error {
	query := `
		DELETE FROM workflow_executions
		WHERE workflow_id = $1
		  AND status = $2
		  AND NOT EXISTS (
			SELECT 1
			FROM jsonb_array_elements(node_executions) AS node_execution
			WHERE node_execution->>'state' <> $3
		  )
	`

	_, err := r.db.ExecContext(ctx, query, workflowID, models.ExecutionStatusPending, models.NodeStateIdle)
	if err != nil {
		return fmt.Errorf("failed to delete idle executions of workflow %s: %w", workflowID, err)
	}

	return nil
}

func (r *ExecutionRepository) ExecutionsByWorkflow(
	ctx context.Context,
	workflowID string,
) ([]*models.WorkflowExecution, error) {
	return r.query(ctx, selectExecution+" WHERE workflow_id = $1 ORDER BY created_at, id", workflowID)
}

func (r *ExecutionRepository) ListExecutions(
	ctx context.Context,
	statuses ...models.ExecutionStatus,
) ([]*models.WorkflowExecution, error) {
	if len(statuses) == 0 {
		return r.query(ctx, selectExecution+" ORDER BY created_at, id")
	}

	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}

	return r.query(ctx, selectExecution+" WHERE status = ANY($1) ORDER BY created_at, id", pq.Array(values))
}

func (r *ExecutionRepository) query(ctx context.Context, query string, args ...any) ([]*models.WorkflowExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflow executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.WorkflowExecution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflow executions: %w", err)
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.WorkflowExecution, error) {
	var (
		parent         sql.NullString
		nodeExecutions []byte
	)

	execution := &models.WorkflowExecution{}

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&parent,
		&execution.Status,
		&nodeExecutions,
		&execution.CreatedAt,
		&execution.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.ParentExecutionID = parent.String

	err = persistence.Decode(nodeExecutions, &execution.NodeExecutions)
	if err != nil {
		return nil, fmt.Errorf("failed to decode node executions: %w", err)
	}

	if execution.NodeExecutions == nil {
		execution.NodeExecutions = make([]*models.WorkflowNodeExecution, 0)
	}

	return execution, nil
}
