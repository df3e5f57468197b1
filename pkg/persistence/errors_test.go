package persistence_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestErrors(t *testing.T) {
	t.Parallel()

	t.Run("workflow error wraps the sentinel", func(t *testing.T) {
		err := persistence.NewWorkflowError("GetWorkflow", "workflow-123", persistence.ErrWorkflowNotFound)

		assert.True(t, persistence.IsWorkflowNotFound(err))
		assert.False(t, persistence.IsExecutionNotFound(err))
		assert.Contains(t, err.Error(), "GetWorkflow")
		assert.Contains(t, err.Error(), "workflow-123")
		assert.Contains(t, err.Error(), "workflow not found")
	})

	t.Run("execution error survives further wrapping", func(t *testing.T) {
		err := fmt.Errorf("orchestrate: %w",
			persistence.NewExecutionError("GetWorkflowExecution", "exec-1", persistence.ErrExecutionNotFound))

		assert.True(t, persistence.IsExecutionNotFound(err))

		var executionErr *persistence.ExecutionError
		assert.True(t, errors.As(err, &executionErr))
		assert.Equal(t, "exec-1", executionErr.ExecutionID)
	})
}

func TestMatchesStatus(t *testing.T) {
	t.Parallel()

	assert.True(t, persistence.MatchesStatus(models.ExecutionStatusPending, nil))
	assert.True(t, persistence.MatchesStatus(models.ExecutionStatusError,
		[]models.ExecutionStatus{models.ExecutionStatusSuccess, models.ExecutionStatusError}))
	assert.False(t, persistence.MatchesStatus(models.ExecutionStatusInProgress,
		[]models.ExecutionStatus{models.ExecutionStatusSuccess}))
}

func TestStamp(t *testing.T) {
	t.Parallel()

	workflow := &models.Workflow{ID: "wf"}
	persistence.Stamp(workflow)

	created := workflow.CreatedAt
	assert.False(t, created.IsZero())

	persistence.Stamp(workflow)
	assert.Equal(t, created, workflow.CreatedAt)
	assert.False(t, workflow.UpdatedAt.Before(created))
}
