// Package memory provides an in-process persistence implementation, used by tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence"
)

// Persistence keeps encoded documents so callers never share memory with the store.
type Persistence struct {
	mu         sync.RWMutex
	workflows  map[string][]byte
	executions map[string][]byte
	byWorkflow map[string]map[string]struct{}
}

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:  make(map[string][]byte),
		executions: make(map[string][]byte),
		byWorkflow: make(map[string]map[string]struct{}),
	}
}

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	workflows := make([]*models.Workflow, 0, len(p.workflows))

	for id, data := range p.workflows {
		workflow := &models.Workflow{}

		err := persistence.Decode(data, workflow)
		if err != nil {
			return nil, persistence.NewWorkflowError("Workflows", id, err)
		}

		workflows = append(workflows, workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].ID < workflows[j].ID
	})

	return workflows, nil
}

func (p *Persistence) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	data, ok := p.workflows[id]
	p.mu.RUnlock()

	if !ok {
		return nil, persistence.NewWorkflowError("GetWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	workflow := &models.Workflow{}

	err := persistence.Decode(data, workflow)
	if err != nil {
		return nil, persistence.NewWorkflowError("GetWorkflow", id, err)
	}

	return workflow, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	persistence.Stamp(workflow)

	data, err := persistence.Encode(workflow)
	if err != nil {
		return persistence.NewWorkflowError("SaveWorkflow", workflow.ID, err)
	}

	p.mu.Lock()
	p.workflows[workflow.ID] = data
	p.mu.Unlock()

	return nil
}

func (p *Persistence) DeleteWorkflow(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.workflows[id]; !ok {
		return persistence.NewWorkflowError("DeleteWorkflow", id, persistence.ErrWorkflowNotFound)
	}

	delete(p.workflows, id)

	return nil
}

func (p *Persistence) Register(_ context.Context, execution *models.WorkflowExecution) (*models.WorkflowExecution, error) {
	data, err := persistence.Encode(execution)
	if err != nil {
		return nil, persistence.NewExecutionError("Register", execution.ID, err)
	}

	p.mu.Lock()
	p.executions[execution.ID] = data

	index, ok := p.byWorkflow[execution.WorkflowID]
	if !ok {
		index = make(map[string]struct{})
		p.byWorkflow[execution.WorkflowID] = index
	}

	index[execution.ID] = struct{}{}
	p.mu.Unlock()

	return execution, nil
}

func (p *Persistence) GetWorkflowExecution(_ context.Context, id string) (*models.WorkflowExecution, error) {
	p.mu.RLock()
	data, ok := p.executions[id]
	p.mu.RUnlock()

	if !ok {
		return nil, persistence.NewExecutionError("GetWorkflowExecution", id, persistence.ErrExecutionNotFound)
	}

	return decodeExecution(id, data)
}

func (p *Persistence) DeleteIdlesFor(_ context.Context, workflowID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := range p.byWorkflow[workflowID] {
		execution, err := decodeExecution(id, p.executions[id])
		if err != nil {
			return err
		}

		if execution.Progressed() {
			continue
		}

		delete(p.executions, id)
		delete(p.byWorkflow[workflowID], id)
	}

	return nil
}

func (p *Persistence) ExecutionsByWorkflow(_ context.Context, workflowID string) ([]*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	executions := make([]*models.WorkflowExecution, 0, len(p.byWorkflow[workflowID]))

	for id := range p.byWorkflow[workflowID] {
		execution, err := decodeExecution(id, p.executions[id])
		if err != nil {
			return nil, err
		}

		executions = append(executions, execution)
	}

	persistence.SortExecutions(executions)

	return executions, nil
}

func (p *Persistence) ListExecutions(
	_ context.Context,
	statuses ...models.ExecutionStatus,
) ([]*models.WorkflowExecution, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	executions := make([]*models.WorkflowExecution, 0)

	for id, data := range p.executions {
		execution, err := decodeExecution(id, data)
		if err != nil {
			return nil, err
		}

		if persistence.MatchesStatus(execution.Status, statuses) {
			executions = append(executions, execution)
		}
	}

	persistence.SortExecutions(executions)

	return executions, nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func decodeExecution(id string, data []byte) (*models.WorkflowExecution, error) {
	execution := &models.WorkflowExecution{}

	err := persistence.Decode(data, execution)
	if err != nil {
		return nil, persistence.NewExecutionError("decode", id, err)
	}

	return execution, nil
}
