package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/xde-mcp/sim-sub005/pkg/cmd"
	"github.com/xde-mcp/sim-sub005/pkg/console"
	"github.com/xde-mcp/sim-sub005/pkg/document"
	"github.com/xde-mcp/sim-sub005/pkg/execution"
	"github.com/xde-mcp/sim-sub005/pkg/executor"
	"github.com/xde-mcp/sim-sub005/pkg/identity"
	"github.com/xde-mcp/sim-sub005/pkg/log"
	"github.com/xde-mcp/sim-sub005/pkg/models"
	persistencefile "github.com/xde-mcp/sim-sub005/pkg/persistence/file"
	"github.com/xde-mcp/sim-sub005/pkg/trigger"
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Execute a workflow document",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the workflow YAML document",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Trigger mode to resolve (manual, chat, api)",
				Value: "manual",
			},
			&cli.StringFlag{
				Name:  "input",
				Usage: "JSON object passed to the start block",
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Block ID to run from, reusing the stored snapshot",
			},
			&cli.StringFlag{
				Name:  "until",
				Usage: "Block ID to stop after",
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
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("cli")

			data, err := os.ReadFile(command.String("file"))
			if err != nil {
				return err
			}

			var input map[string]any

			if raw := command.String("input"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &input); err != nil {
					return fmt.Errorf("invalid --input JSON: %w", err)
				}
			}

			registry := cmd.NewRegistry(logger)

			snapshots, err := cmd.NewSnapshotStore(ctx, command.String("snapshot-url"), logger)
			if err != nil {
				return err
			}

			sink := console.NewMemory()
			controller := execution.NewController(
				trigger.NewResolver(registry, logger),
				snapshots,
				sink,
				persistencefile.NewRepository(command.String("data-dir")),
				executor.NewLocal(executor.DefaultRunners(), logger),
				logger,
				execution.Options{},
			)

			workflowID := workflowIDFromPath(command.String("file"))
			importer := document.NewImporter(identity.NewService(registry, logger), registry, logger)

			state, diagnostics, err := importer.Import(data, document.PolicyFresh, nil, workflowID)
			if err != nil {
				return err
			}

			for _, d := range diagnostics {
				fmt.Fprintf(os.Stderr, "%s: %s\n", d.Level, d.Message)
			}

			result, err := runWorkflow(ctx, controller, state, command, input)
			if err != nil {
				return err
			}

			printConsole(sink, controller.LastExecutionID())

			return printJSON(result)
		},
	}
}

func runWorkflow(
	ctx context.Context,
	controller *execution.Controller,
	state *models.WorkflowState,
	command *cli.Command,
	input map[string]any,
) (*models.ExecutionResult, error) {
	if from := command.String("from"); from != "" {
		return controller.RunFromBlock(ctx, state, from, input)
	}

	opts := execution.RunOptions{
		Mode:  trigger.Mode(command.String("mode")),
		Input: input,
	}

	if until := command.String("until"); until != "" {
		return controller.RunUntilBlock(ctx, state, until, opts)
	}

	return controller.Run(ctx, state, opts)
}

func workflowIDFromPath(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}

func printConsole(sink *console.Memory, executionID string) {
	if executionID == "" {
		return
	}

	for _, entry := range sink.Entries(executionID) {
		fmt.Fprintf(os.Stderr, "%-9s %-20s %s (%dms)\n", entry.Status, entry.BlockType, entry.BlockName, entry.DurationMs)

		if entry.Error != "" {
			fmt.Fprintf(os.Stderr, "          error: %s\n", entry.Error)
		}
	}
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
