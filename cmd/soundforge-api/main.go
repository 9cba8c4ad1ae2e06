package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/soundforge/soundforge/pkg/cmd"
	"github.com/soundforge/soundforge/pkg/gateway"
	"github.com/soundforge/soundforge/pkg/log"
	"github.com/soundforge/soundforge/pkg/otelhelper"
)

const defaultPort = 9610

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "soundforge-api",
		Usage:                 "Author and materialize audio graphs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "host-addr",
				Usage:    "Address of the authoring host (host:port)",
				Required: true,
				Sources:  cli.EnvVars("SOUNDFORGE_HOST_ADDR"),
			},
			&cli.StringFlag{
				Name:    "catalog-path",
				Usage:   "Path to an additional node catalog JSON file",
				Sources: cli.EnvVars("SOUNDFORGE_CATALOG"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces for materialization calls",
				Sources: cli.EnvVars("OTEL_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing SoundForge API")

			cat := cmd.NewCatalog(ctx, logger, command.String("catalog-path"))
			gw := gateway.NewTCPClient(command.String("host-addr"), logger)

			defer func() {
				if err := gw.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close gateway", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var tracer trace.Tracer

			if command.Bool("tracing") {
				t, err := otelhelper.NewTracer(ctx, "soundforge-api")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				tracer = t
			}

			api := NewAPI(
				logger,
				cat,
				gw,
				eventBus,
				tracer,
			)

			err := api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
