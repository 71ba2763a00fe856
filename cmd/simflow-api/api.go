// Package main provides the Simflow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/xde-mcp/sim-sub005/pkg/console"
	"github.com/xde-mcp/sim-sub005/pkg/document"
	"github.com/xde-mcp/sim-sub005/pkg/eventbus"
	"github.com/xde-mcp/sim-sub005/pkg/execution"
	"github.com/xde-mcp/sim-sub005/pkg/executor"
	"github.com/xde-mcp/sim-sub005/pkg/identity"
	"github.com/xde-mcp/sim-sub005/pkg/persistence"
	"github.com/xde-mcp/sim-sub005/pkg/registry"
	"github.com/xde-mcp/sim-sub005/pkg/services"
	"github.com/xde-mcp/sim-sub005/pkg/snapshot"
	"github.com/xde-mcp/sim-sub005/pkg/trigger"
	"github.com/xde-mcp/sim-sub005/pkg/web"
)

type API struct {
	logger    *slog.Logger
	registry  *registry.Registry
	resolver  *trigger.Resolver
	snapshots *snapshot.Store
	execLogs  persistence.ExecutionLogRepository
	eventBus  eventbus.EventBus
	tracer    trace.Tracer
	validate  *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	registry *registry.Registry,
	resolver *trigger.Resolver,
	snapshots *snapshot.Store,
	execLogs persistence.ExecutionLogRepository,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:    logger,
		registry:  registry,
		resolver:  resolver,
		snapshots: snapshots,
		execLogs:  execLogs,
		eventBus:  eventBus,
		tracer:    tracer,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	sink := console.NewMemory()

	sessions := services.NewSessionManager(func(string) *execution.Controller {
		svc := executor.NewLocal(executor.DefaultRunners(), a.logger)
		if a.tracer != nil {
			svc.SetTracer(a.tracer)
		}

		controller := execution.NewController(a.resolver, a.snapshots, sink, a.execLogs, svc, a.logger, execution.Options{})
		if a.eventBus != nil {
			controller.SetObserver(eventbus.MirrorCallbacks(a.eventBus, a.logger))
		}

		return controller
	})

	importer := document.NewImporter(identity.NewService(a.registry, a.logger), a.registry, a.logger)
	handlers := web.NewAPIHandlers(sessions, importer, a.snapshots, a.execLogs, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Simflow API")
	})

	handlers.Register(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
