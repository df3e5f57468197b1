package mocks

import (
	"context"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockOrchestrator is a mock implementation of web.Orchestrator interface.
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Orchestrate(ctx context.Context, workflow *models.Workflow) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, workflow)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockOrchestrator) OrchestrateByID(ctx context.Context, workflowID string) (*models.WorkflowExecution, error) {
	args := m.Called(ctx, workflowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkflowExecution), args.Error(1)
}

func (m *MockOrchestrator) ReplayExecution(ctx context.Context, workflowID, executionID, nodeExecutionID string) error {
	args := m.Called(ctx, workflowID, executionID, nodeExecutionID)

	return args.Error(0)
}

func (m *MockOrchestrator) ResumeWaiting(ctx context.Context, executionID, nodeExecutionID string, data map[string]any) error {
	args := m.Called(ctx, executionID, nodeExecutionID, data)

	return args.Error(0)
}
