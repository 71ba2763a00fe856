package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/xde-mcp/sim-sub005/pkg/cmd"
	"github.com/xde-mcp/sim-sub005/pkg/eventbus"
	"github.com/xde-mcp/sim-sub005/pkg/log"
	"github.com/xde-mcp/sim-sub005/pkg/otelhelper"
	persistencefile "github.com/xde-mcp/sim-sub005/pkg/persistence/file"
	"github.com/xde-mcp/sim-sub005/pkg/trigger"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9094

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "simflow-api",
		Usage:                 "Edit and execute workflow graphs over HTTP",
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
				Name:    "snapshot-url",
				Usage:   "Snapshot storage URL (directory path or redis://...)",
				Value:   "./data/snapshots",
				Sources: cli.EnvVars("SNAPSHOT_URL"),
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Directory for execution log persistence",
				Value:   "./data/executions",
				Sources: cli.EnvVars("DATA_DIR"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider for execution event mirroring (kafka, memory, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing for block execution",
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

			logger.InfoContext(ctx, "Initializing Simflow API")

			registry := cmd.NewRegistry(logger)
			resolver := trigger.NewResolver(registry, logger)

			snapshots, err := cmd.NewSnapshotStore(ctx, command.String("snapshot-url"), logger)
			if err != nil {
				return err
			}

			execLogs := persistencefile.NewRepository(command.String("data-dir"))

			var bus eventbus.EventBus

			if provider := command.String("event-bus"); provider != "" && provider != "none" {
				bus, err = cmd.NewEventBus(provider, logger)
				if err != nil {
					return err
				}

				defer func() {
					if err := bus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()
			}

			var tracer trace.Tracer

			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "simflow-api")
				if err != nil {
					return err
				}
			}

			api := NewAPI(
				logger,
				registry,
				resolver,
				snapshots,
				execLogs,
				bus,
				tracer,
			)

			err = api.Start(command.Int("port"))
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
