// Package persistence provides the storage ports for workflow definitions and executions.
package persistence

import (
	"context"
	"sort"
	"time"

	"github.com/dukex/orchestra/pkg/models"
	gojson "github.com/goccy/go-json"
)

// WorkflowRegistry stores workflow definitions.
type WorkflowRegistry interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	// GetWorkflow returns ErrWorkflowNotFound when id is unknown.
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error
}

// WorkflowExecutionRegistry stores execution records. Register is an upsert.
type WorkflowExecutionRegistry interface {
	Register(ctx context.Context, execution *models.WorkflowExecution) (*models.WorkflowExecution, error)
	// GetWorkflowExecution returns ErrExecutionNotFound when id is unknown.
	GetWorkflowExecution(ctx context.Context, id string) (*models.WorkflowExecution, error)
	// DeleteIdlesFor removes the executions of the workflow that never progressed.
	DeleteIdlesFor(ctx context.Context, workflowID string) error
	ExecutionsByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowExecution, error)
	// ListExecutions returns every execution whose status is one of statuses, or all of them
	// when none is given.
	ListExecutions(ctx context.Context, statuses ...models.ExecutionStatus) ([]*models.WorkflowExecution, error)
}

type Persistence interface {
	WorkflowRegistry
	WorkflowExecutionRegistry

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Encode and Decode are the document encoding shared by the stores.
func Encode(v any) ([]byte, error) {
	return gojson.Marshal(v)
}

func Decode(data []byte, v any) error {
	return gojson.Unmarshal(data, v)
}

// MatchesStatus reports whether status is one of statuses. An empty filter matches everything.
func MatchesStatus(status models.ExecutionStatus, statuses []models.ExecutionStatus) bool {
	if len(statuses) == 0 {
		return true
	}

	for _, s := range statuses {
		if s == status {
			return true
		}
	}

	return false
}

// Stamp sets the creation and update times before a workflow is stored.
func Stamp(workflow *models.Workflow) {
	now := time.Now().UTC()

	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
}

// SortExecutions orders executions by creation time, oldest first.
func SortExecutions(executions []*models.WorkflowExecution) {
	sort.SliceStable(executions, func(i, j int) bool {
		if executions[i].CreatedAt.Equal(executions[j].CreatedAt) {
			return executions[i].ID < executions[j].ID
		}

		return executions[i].CreatedAt.Before(executions[j].CreatedAt)
	})
}
