// Package main provides the Flowrelay API server implementation.
package main

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/flowrelay/flowrelay/pkg/feed"
	"github.com/flowrelay/flowrelay/pkg/orchestrator"
	"github.com/flowrelay/flowrelay/pkg/publishing"
	"github.com/flowrelay/flowrelay/pkg/store"
	"github.com/flowrelay/flowrelay/pkg/trigger"
	"github.com/flowrelay/flowrelay/pkg/web"
)

type API struct {
	logger      *slog.Logger
	persistence store.Persistence
	changeFeed  feed.Feed
	timeout     time.Duration
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence store.Persistence,
	changeFeed feed.Feed,
	timeout time.Duration,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		changeFeed:  changeFeed,
		timeout:     timeout,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	triggerClient := trigger.NewClient(a.logger, trigger.WithTimeout(a.timeout))
	executions := publishing.NewRepository(a.persistence.Executions(), a.changeFeed, a.logger)
	orch := orchestrator.New(a.persistence.Workflows(), executions, triggerClient, a.logger)

	handlers := web.NewAPIHandlers(orch, executions, a.persistence, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowrelay API")
	})

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Get("/:id", handlers.GetWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
