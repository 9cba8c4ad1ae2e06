// Package main provides the SoundForge authoring API server implementation.
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

	"github.com/soundforge/soundforge/pkg/audition"
	"github.com/soundforge/soundforge/pkg/catalog"
	"github.com/soundforge/soundforge/pkg/eventbus"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/materializer"
	"github.com/soundforge/soundforge/pkg/services"
	"github.com/soundforge/soundforge/pkg/web"
)

type API struct {
	logger   *slog.Logger
	catalog  *catalog.StaticCatalog
	gw       gateway.Gateway
	eventBus eventbus.EventBus
	tracer   trace.Tracer
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	cat *catalog.StaticCatalog,
	gw gateway.Gateway,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:   logger,
		catalog:  cat,
		gw:       gw,
		eventBus: eventBus,
		tracer:   tracer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	var matOpts []materializer.Option
	if a.tracer != nil {
		matOpts = append(matOpts, materializer.WithTracer(a.tracer))
	}

	mat := materializer.New(a.gw, a.catalog, a.logger, matOpts...)
	sessions := services.NewSessions(a.catalog, a.gw, mat, a.logger,
		services.WithSessionPublisher(a.eventBus))
	graph := services.NewGraph(sessions, a.logger, a.eventBus)
	aud := audition.NewController(a.gw, a.logger, audition.WithPublisher(a.eventBus))
	authoring := services.NewAuthoring(sessions, mat, aud, a.logger, a.eventBus)

	handlers := web.NewAPIHandlers(sessions, graph, authoring, a.catalog, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("SoundForge Authoring API")
	})

	s := app.Group("/sessions")
	s.Get("/", handlers.ListSessions)
	s.Post("/", handlers.OpenSession)
	s.Post("/from-spec", handlers.OpenSessionFromSpec)
	s.Get("/:name", handlers.GetSession)
	s.Patch("/:name", handlers.UpdateSession)
	s.Delete("/:name", handlers.CloseSession)

	// Graph mutation endpoints:
	s.Post("/:name/nodes", handlers.AddNode)
	s.Delete("/:name/nodes/:nodeId", handlers.RemoveNode)
	s.Post("/:name/connections", handlers.Connect)
	s.Delete("/:name/connections", handlers.Disconnect)
	s.Put("/:name/defaults", handlers.SetDefault)
	s.Get("/:name/defaults", handlers.GetDefault)
	s.Post("/:name/inputs", handlers.DeclareInput)
	s.Delete("/:name/inputs/:ioName", handlers.RemoveInput)
	s.Post("/:name/outputs", handlers.DeclareOutput)
	s.Delete("/:name/outputs/:ioName", handlers.RemoveOutput)

	// Materialization and audition endpoints:
	s.Post("/:name/transient", handlers.BuildTransient)
	s.Put("/:name/transient", handlers.OverwriteTransient)
	s.Post("/:name/asset", handlers.BuildToAsset)
	s.Post("/:name/audition", handlers.StartAudition)
	s.Delete("/:name/audition", handlers.StopAudition)
	s.Put("/:name/crossfade", handlers.SetCrossfade)

	n := app.Group("/node-types")
	n.Get("/", handlers.ListNodeTypes)
	n.Get("/:id", handlers.GetNodeType)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
