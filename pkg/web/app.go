package web

import (
	gojson "github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
)

type AppOption func(*appConfig)

type appConfig struct {
	requestLog bool
}

// WithRequestLog enables the fiber access log.
func WithRequestLog() AppOption {
	return func(c *appConfig) {
		c.requestLog = true
	}
}

// NewApp routes the API handlers. Readiness reports the health of the persistence.
func NewApp(handlers *APIHandlers, opts ...AppOption) *fiber.App {
	config := &appConfig{}
	for _, opt := range opts {
		opt(config)
	}

	app := fiber.New(fiber.Config{
		AppName:     "orchestra",
		JSONEncoder: gojson.Marshal,
		JSONDecoder: gojson.Unmarshal,
	})
	app.Use(cors.New())

	if config.requestLog {
		app.Use(fiberlogger.New(fiberlogger.Config{
			DisableColors: true,
		}))
	}

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return handlers.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/health", handlers.HealthCheck)
	app.Get("/components", handlers.GetComponents)

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/executions", handlers.StartExecution)
	w.Get("/:id/executions", handlers.GetWorkflowExecutions)

	e := app.Group("/executions")
	e.Get("/:id", handlers.GetExecution)
	e.Post("/:id/nodes/:nodeExecutionId/replay", handlers.ReplayNodeExecution)
	e.Post("/:id/nodes/:nodeExecutionId/resume", handlers.ResumeNodeExecution)

	return app
}
