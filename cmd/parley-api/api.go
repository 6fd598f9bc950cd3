// Package main provides the Parley API server implementation.
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

	"github.com/parley-ai/parley/pkg/autonomous"
	"github.com/parley-ai/parley/pkg/completion"
	"github.com/parley-ai/parley/pkg/instructions"
	"github.com/parley-ai/parley/pkg/intent"
	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/notifier"
	"github.com/parley-ai/parley/pkg/pipeline"
	"github.com/parley-ai/parley/pkg/resources"
	"github.com/parley-ai/parley/pkg/session"
	"github.com/parley-ai/parley/pkg/web"
)

type API struct {
	logger      *slog.Logger
	store       kvstore.Store
	completions completion.Service
	bus         *notifier.Bus
	tracer      trace.Tracer
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store kvstore.Store,
	completions completion.Service,
	bus *notifier.Bus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:      logger,
		store:       store,
		completions: completions,
		bus:         bus,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	sessions := session.NewAdapter(a.store, a.logger)
	memories := memory.NewManager(a.store, a.logger)
	resolver := instructions.NewResolver(a.store, a.logger)
	classifier := intent.NewClassifier(a.completions, a.logger)

	executor := autonomous.NewExecutor(
		resources.NewClient(a.logger),
		a.completions,
		a.store,
		&autonomous.LogSender{Logger: a.logger},
		sessions,
		a.bus,
		a.logger,
	)

	stages := &pipeline.Stages{
		Store:        a.store,
		Memory:       memories,
		Instructions: resolver,
		Sessions:     sessions,
		Classifier:   classifier,
		Autonomous:   executor,
		Completions:  a.completions,
		Logger:       a.logger,
	}

	handlers := web.NewAPIHandlers(
		pipeline.NewOperatorPipeline(stages, a.logger, a.tracer),
		pipeline.NewCustomerPipeline(stages, a.logger, a.tracer),
		a.store,
		a.validate,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Parley API")
	})

	v1 := app.Group("/v1")
	v1.Post("/console/messages", handlers.PostConsoleMessage)
	v1.Post("/webhook/:channel", handlers.PostWebhookMessage)
	v1.Put("/instructions", handlers.PutInstructions)

	return app
}

func (a *API) Start(port int) error {
	return a.App().Listen(":" + strconv.Itoa(port))
}
