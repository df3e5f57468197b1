package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence"
)

func (p *Persistence) executionPath(id string) string {
	return filepath.Join(p.root, executionsDir, id+".json")
}

func (p *Persistence) Register(_ context.Context, execution *models.WorkflowExecution) (*models.WorkflowExecution, error) {
	err := validateID(execution.ID)
	if err != nil {
		return nil, persistence.NewExecutionError("Register", execution.ID, err)
	}

	data, err := persistence.Encode(execution)
	if err != nil {
		return nil, persistence.NewExecutionError("Register", execution.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = writeAtomic(p.executionPath(execution.ID), data)
	if err != nil {
		return nil, persistence.NewExecutionError("Register", execution.ID, err)
	}

	return execution, nil
}

func (p *Persistence) GetWorkflowExecution(_ context.Context, id string) (*models.WorkflowExecution, error) {
	err := validateID(id)
	if err != nil {
		return nil, persistence.NewExecutionError("GetWorkflowExecution", id, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.readExecution(id)
}

func (p *Persistence) readExecution(id string) (*models.WorkflowExecution, error) {
	data, err := os.ReadFile(p.executionPath(id)) // #nosec G304 -- id is validated
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, persistence.NewExecutionError("GetWorkflowExecution", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetWorkflowExecution", id, err)
	}

	execution := &models.WorkflowExecution{}

	err = persistence.Decode(data, execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetWorkflowExecution", id, err)
	}

	return execution, nil
}

func (p *Persistence) readExecutions(keep func(*models.WorkflowExecution) bool) ([]*models.WorkflowExecution, error) {
	files, err := fs.Glob(os.DirFS(filepath.Join(p.root, executionsDir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files: %w", err)
	}

	executions := make([]*models.WorkflowExecution, 0, len(files))

	for _, file := range files {
		execution, err := p.readExecution(strings.TrimSuffix(file, ".json"))
		if err != nil {
			return nil, err
		}

		if keep(execution) {
			executions = append(executions, execution)
		}
	}

	persistence.SortExecutions(executions)

	return executions, nil
}

func (p *Persistence) DeleteIdlesFor(_ context.Context, workflowID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idle, err := p.readExecutions(func(e *models.WorkflowExecution) bool {
		return e.WorkflowID == workflowID && !e.Progressed()
	})
	if err != nil {
		return err
	}

	for _, execution := range idle {
		err := os.Remove(p.executionPath(execution.ID))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return persistence.NewExecutionError("DeleteIdlesFor", execution.ID, err)
		}
	}

	return nil
}

func (p *Persistence) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.readExecutions(func(e *models.WorkflowExecution) bool {
		return e.WorkflowID == workflowID
	})
}

func (p *Persistence) ListExecutions(
	_ context.Context,
	statuses ...models.ExecutionStatus,
) ([]*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.readExecutions(func(e *models.WorkflowExecution) bool {
		return persistence.MatchesStatus(e.Status, statuses)
	})
}
