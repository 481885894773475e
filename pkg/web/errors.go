package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/flowrelay/flowrelay/pkg/orchestrator"
	"github.com/flowrelay/flowrelay/pkg/store"
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

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleExecuteError provides typed error handling for orchestrator errors.
func handleExecuteError(c fiber.Ctx, err error) error {
	switch {
	case orchestrator.IsPreconditionFailed(err):
		problem := problems.NewStatusProblem(fiber.StatusPreconditionFailed).
			WithInstance(c.Path()).
			WithType("precondition_failed").
			WithDetail(err.Error())

		return c.Status(fiber.StatusPreconditionFailed).JSON(problem)

	case store.IsStoreUnavailable(err):
		problem := problems.NewStatusProblem(fiber.StatusServiceUnavailable).
			WithInstance(c.Path()).
			WithType("store_unavailable").
			WithDetail("execution store could not accept the record")

		return c.Status(fiber.StatusServiceUnavailable).JSON(problem)

	default:
		return internalError(c, err)
	}
}
