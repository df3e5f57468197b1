package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/persistence"
	"github.com/dukex/orchestra/pkg/protocol"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// Orchestrator is the part of the orchestrator the API drives.
type Orchestrator interface {
	Orchestrate(ctx context.Context, workflow *models.Workflow) (*models.WorkflowExecution, error)
	OrchestrateByID(ctx context.Context, workflowID string) (*models.WorkflowExecution, error)
	ReplayExecution(ctx context.Context, workflowID, executionID, nodeExecutionID string) error
	ResumeWaiting(ctx context.Context, executionID, nodeExecutionID string, data map[string]any) error
}

// Components lists the registered component definitions.
type Components interface {
	Definitions() []protocol.ComponentDefinition
}

type APIHandlers struct {
	orchestrator Orchestrator
	persistence  persistence.Persistence
	components   Components
	validator    *validator.Validate
}

func NewAPIHandlers(
	orchestrator Orchestrator,
	persistence persistence.Persistence,
	components Components,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		orchestrator: orchestrator,
		persistence:  persistence,
		components:   components,
		validator:    validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	err := h.persistence.HealthCheck(c.Context())

	if err != nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{
			"status":    "unhealthy",
			"message":   err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetComponents(c fiber.Ctx) error {
	definitions := h.components.Definitions()
	response := make([]ComponentResponse, 0, len(definitions))

	for _, definition := range definitions {
		response = append(response, TransformComponentResponse(definition))
	}

	return c.JSON(response)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.persistence.Workflows(c.Context())
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var workflow models.Workflow
	if err := c.Bind().JSON(&workflow); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(workflow); err != nil {
		return badRequest(c, err.Error())
	}

	if err := workflow.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.persistence.SaveWorkflow(c.Context(), &workflow); err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(workflow)
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.persistence.GetWorkflow(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.persistence.DeleteWorkflow(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// StartExecution orchestrates a stored workflow.
func (h *APIHandlers) StartExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	execution, err := h.orchestrator.OrchestrateByID(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(TransformExecutionResponse(execution))
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if _, err := h.persistence.GetWorkflow(c.Context(), id); err != nil {
		return handleError(c, err)
	}

	executions, err := h.persistence.ExecutionsByWorkflow(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	response := make([]ExecutionResponse, 0, len(executions))
	for _, execution := range executions {
		response = append(response, TransformExecutionResponse(execution))
	}

	return c.JSON(response)
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	execution, err := h.persistence.GetWorkflowExecution(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	return c.JSON(TransformExecutionResponse(execution))
}

// ReplayNodeExecution re-runs one node execution. The workflow_id query parameter, when
// given, must match the execution.
func (h *APIHandlers) ReplayNodeExecution(c fiber.Ctx) error {
	id := c.Params("id")
	nodeExecutionID := c.Params("nodeExecutionId")

	if id == "" || nodeExecutionID == "" {
		return badRequest(c, "Execution ID and node execution ID are required")
	}

	execution, err := h.persistence.GetWorkflowExecution(c.Context(), id)
	if err != nil {
		return handleError(c, err)
	}

	workflowID := c.Query("workflow_id", execution.WorkflowID)

	err = h.orchestrator.ReplayExecution(c.Context(), workflowID, id, nodeExecutionID)
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}

// ResumeNodeExecution releases a WAITING node execution with the posted data.
func (h *APIHandlers) ResumeNodeExecution(c fiber.Ctx) error {
	id := c.Params("id")
	nodeExecutionID := c.Params("nodeExecutionId")

	if id == "" || nodeExecutionID == "" {
		return badRequest(c, "Execution ID and node execution ID are required")
	}

	var req ResumeRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}
	}

	err := h.orchestrator.ResumeWaiting(c.Context(), id, nodeExecutionID, req.Data)
	if err != nil {
		return handleError(c, err)
	}

	return c.SendStatus(fiber.StatusAccepted)
}
