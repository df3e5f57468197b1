// Package web provides the HTTP request and response types of the orchestration API.
package web

import (
	"time"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/protocol"
)

// ResumeRequest is merged into the stage context of a WAITING node execution.
type ResumeRequest struct {
	Data map[string]any `json:"data"`
}

// ComponentResponse describes a registered component.
type ComponentResponse struct {
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	NodeTypes   []models.NodeType `json:"node_types,omitempty"`
	Schema      map[string]any    `json:"schema,omitempty"`
}

func TransformComponentResponse(definition protocol.ComponentDefinition) ComponentResponse {
	return ComponentResponse{
		Key:         definition.Key(),
		Name:        definition.Name,
		Description: definition.Description,
		NodeTypes:   definition.NodeTypes,
		Schema:      definition.Schema,
	}
}

// ExecutionResponse summarizes an execution. Node executions are returned without the
// static node definition they were created from.
type ExecutionResponse struct {
	ID                string                  `json:"id"`
	WorkflowID        string                  `json:"workflow_id"`
	ParentExecutionID string                  `json:"parent_execution_id,omitempty"`
	Status            models.ExecutionStatus  `json:"status"`
	NodeExecutions    []NodeExecutionResponse `json:"node_executions"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

type NodeExecutionResponse struct {
	ID             string               `json:"id"`
	WorkflowNodeID string               `json:"workflow_node_id"`
	State          models.NodeState     `json:"state"`
	Data           map[string]any       `json:"data,omitempty"`
	Children       []string             `json:"children,omitempty"`
	Error          *models.ErrorPayload `json:"error,omitempty"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

func TransformExecutionResponse(execution *models.WorkflowExecution) ExecutionResponse {
	response := ExecutionResponse{
		ID:                execution.ID,
		WorkflowID:        execution.WorkflowID,
		ParentExecutionID: execution.ParentExecutionID,
		Status:            execution.Status,
		NodeExecutions:    make([]NodeExecutionResponse, 0, len(execution.NodeExecutions)),
		CreatedAt:         execution.CreatedAt,
		UpdatedAt:         execution.UpdatedAt,
	}

	for _, nodeExecution := range execution.NodeExecutions {
		node := NodeExecutionResponse{
			ID:             nodeExecution.ID,
			WorkflowNodeID: nodeExecution.WorkflowNodeID,
			State:          nodeExecution.State,
			Children:       nodeExecution.Children,
			Error:          nodeExecution.Error,
			UpdatedAt:      nodeExecution.UpdatedAt,
		}

		if nodeExecution.StageContext != nil {
			node.Data = nodeExecution.StageContext.Data
		}

		response.NodeExecutions = append(response.NodeExecutions, node)
	}

	return response
}
