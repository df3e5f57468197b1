package web

import (
	"errors"

	"github.com/dukex/orchestra/pkg/models"
	"github.com/dukex/orchestra/pkg/orchestrator"
	"github.com/dukex/orchestra/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType("conflict").
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleError maps orchestration and storage errors to problems.
func handleError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidWorkflow), errors.Is(err, persistence.ErrInvalidID):
		return badRequest(c, err.Error())
	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "workflow not found")
	case persistence.IsNodeExecutionNotFound(err):
		return notFound(c, "node_execution_not_found", "node execution not found")
	case persistence.IsExecutionNotFound(err):
		return notFound(c, "execution_not_found", "execution not found")
	case errors.Is(err, orchestrator.ErrInvalidState), errors.Is(err, orchestrator.ErrWorkflowMismatch):
		return conflict(c, err.Error())
	default:
		return internalError(c, err)
	}
}
