package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parley-ai/parley/pkg/cmd"
	"github.com/parley-ai/parley/pkg/completion"
	"github.com/parley-ai/parley/pkg/config"
	"github.com/parley-ai/parley/pkg/instructions"
	"github.com/parley-ai/parley/pkg/kvstore"
	"github.com/parley-ai/parley/pkg/log"
	"github.com/parley-ai/parley/pkg/otelhelper"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "parley-api",
		Usage:                 "Serve the conversational orchestration API",
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
				Name:     "store-url",
				Usage:    "Storage URL for memory and sessions (redis://... or a directory)",
				Required: true,
				Sources:  cli.EnvVars("STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider for operator notifications (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:     "completion-endpoint",
				Usage:    "Chat completion endpoint URL",
				Required: true,
				Sources:  cli.EnvVars("COMPLETION_ENDPOINT"),
			},
			&cli.StringFlag{
				Name:    "completion-model",
				Usage:   "Model name sent to the completion endpoint",
				Value:   "gpt-4o-mini",
				Sources: cli.EnvVars("COMPLETION_MODEL"),
			},
			&cli.StringFlag{
				Name:    "completion-api-key",
				Usage:   "Bearer token for the completion endpoint",
				Sources: cli.EnvVars("COMPLETION_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a parley.yaml seed file (businesses, instruction packs)",
				Sources: cli.EnvVars("PARLEY_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces via OTLP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Parley API")

			store := cmd.NewStore(ctx, logger, command.String("store-url"))
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close store", "error", err)
				}
			}()

			bus := cmd.NewNotifierBus(command.String("event-bus"), logger)
			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var tracer trace.Tracer = noop.NewTracerProvider().Tracer("parley-api")

			if command.Bool("tracing") {
				otelTracer, err := otelhelper.NewTracer(ctx, "parley-api")
				if err != nil {
					return err
				}

				tracer = otelTracer
			}

			if configPath := command.String("config"); configPath != "" {
				if err := seedFromConfig(ctx, store, configPath); err != nil {
					return err
				}
			}

			completions := completion.NewHTTPService(
				command.String("completion-endpoint"),
				command.String("completion-api-key"),
				command.String("completion-model"),
				logger,
			)

			api := NewAPI(logger, store, completions, bus, tracer)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

// seedFromConfig installs configured businesses and instruction packs.
func seedFromConfig(ctx context.Context, store kvstore.Store, configPath string) error {
	configFile, err := config.LoadServiceConfig(configPath)
	if err != nil {
		return err
	}

	if err := config.SeedBusinesses(ctx, store, configFile.Businesses); err != nil {
		return err
	}

	for _, packPath := range configFile.InstructionPacks {
		pack, err := instructions.LoadPack(packPath)
		if err != nil {
			return err
		}

		if err := instructions.Install(ctx, store, pack); err != nil {
			return err
		}
	}

	return nil
}
