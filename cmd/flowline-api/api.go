// Package main provides the Flowline API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/flowlinehq/flowline/pkg/eventbus"
	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/registry"
	"github.com/flowlinehq/flowline/pkg/services"
	"github.com/flowlinehq/flowline/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	definitionService := services.NewDefinitions(a.persistence)
	automationService := services.NewAutomations(a.persistence)
	executionService := services.NewExecutions(a.persistence, a.eventBus)
	deadLetterService := services.NewDeadLetters(a.persistence, a.eventBus)

	handlers := web.NewAPIHandlers(
		definitionService,
		automationService,
		executionService,
		deadLetterService,
		a.validate,
		a.registry,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowline API")
	})

	definitions := app.Group("/definitions")
	definitions.Get("/", handlers.ListDefinitions)
	definitions.Post("/", handlers.CreateDefinition)
	definitions.Get("/:id", handlers.GetDefinition)
	definitions.Put("/:id", handlers.UpdateDefinition)
	definitions.Delete("/:id", handlers.DeleteDefinition)
	definitions.Get("/:id/versions", handlers.ListDefinitionVersions)
	definitions.Post("/:id/rollback", handlers.RollbackDefinition)

	automations := app.Group("/automations")
	automations.Get("/", handlers.ListAutomations)
	automations.Post("/", handlers.CreateAutomation)
	automations.Get("/:id", handlers.GetAutomation)
	automations.Put("/:id", handlers.UpdateAutomation)

	executions := app.Group("/executions")
	executions.Get("/", handlers.ListExecutions)
	executions.Get("/:id", handlers.GetExecution)
	executions.Post("/:id/cancel", handlers.CancelExecution)

	deadLetters := app.Group("/dead-letters")
	deadLetters.Get("/", handlers.ListDeadLetters)
	deadLetters.Get("/:id", handlers.GetDeadLetter)
	deadLetters.Post("/:id/resolve", handlers.ResolveDeadLetter)
	deadLetters.Post("/:id/ignore", handlers.IgnoreDeadLetter)
	deadLetters.Post("/:id/replay", handlers.ReplayDeadLetter)

	app.Get("/node-types", handlers.ListNodeTypes)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
