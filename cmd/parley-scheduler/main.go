package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/parley-ai/parley/pkg/cmd"
	"github.com/parley-ai/parley/pkg/log"
	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/notifier"
	"github.com/parley-ai/parley/pkg/pipeline"
	"github.com/parley-ai/parley/pkg/session"
)

const defaultSweepCron = "*/15 * * * *"

func main() {
	logger := log.WithModule("scheduler")

	command := &cli.Command{
		Name:                  "parley-scheduler",
		Usage:                 "Sweep open sessions and refresh their memory snapshots",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
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
				Name:    "sweep-cron",
				Usage:   "Cron expression for the session sweep",
				Value:   defaultSweepCron,
				Sources: cli.EnvVars("SWEEP_CRON"),
			},
			&cli.IntFlag{
				Name:    "sweep-limit",
				Usage:   "Maximum sessions visited per sweep",
				Value:   100,
				Sources: cli.EnvVars("SWEEP_LIMIT"),
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

			logger.InfoContext(ctx, "Initializing Parley Scheduler")

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

			sessions := session.NewAdapter(store, logger)
			memories := memory.NewManager(store, logger)

			stages := &pipeline.Stages{
				Store:    store,
				Memory:   memories,
				Sessions: sessions,
				Logger:   logger,
			}

			refresh := pipeline.NewMemoryRefreshPipeline(stages, logger, noop.NewTracerProvider().Tracer("parley-scheduler"))

			// The scheduler doubles as a bus consumer so autonomous workflow
			// completions show up in its log stream between sweeps.
			if err := bus.Subscribe(ctx, func(ctx context.Context, notification notifier.Notification) error {
				logger.InfoContext(ctx, "Operator notification",
					"business_id", notification.BusinessID,
					"event", notification.Event,
				)

				return nil
			}); err != nil {
				logger.ErrorContext(ctx, "Failed to subscribe to operator notifications", "error", err)
			}

			sweeper := NewSweeper(
				sessions,
				memories,
				refresh,
				command.String("sweep-cron"),
				command.Int("sweep-limit"),
				logger,
			)

			if err := sweeper.Start(ctx); err != nil {
				return err
			}
			defer sweeper.Stop()

			<-ctx.Done()

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
