package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/xde-mcp/sim-sub005/pkg/execution"
	"github.com/xde-mcp/sim-sub005/pkg/trigger"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
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

// handleRunError maps controller failures onto problem responses:
// trigger validation is the caller's fault, missing blocks are 404,
// stale snapshots and busy controllers are conflicts, the rest stays
// opaque.
func handleRunError(c fiber.Ctx, err error) error {
	var validation *trigger.ValidationError

	switch {
	case errors.As(err, &validation):
		return badRequest(c, validation.Error())

	case execution.IsSnapshotInvalidation(err):
		return conflict(c, err.Error())

	case strings.Contains(err.Error(), "block not found"):
		return notFound(c, err.Error())

	case strings.Contains(err.Error(), "invalid state transition"),
		strings.Contains(err.Error(), "no run in flight"),
		strings.Contains(err.Error(), "no open debug session"):
		return conflict(c, err.Error())

	case strings.Contains(err.Error(), "upstream dependency not executed"):
		return badRequest(c, err.Error())

	default:
		return internalError(c, err)
	}
}
