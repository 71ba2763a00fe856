package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/xde-mcp/sim-sub005/pkg/cmd"
	"github.com/xde-mcp/sim-sub005/pkg/document"
	"github.com/xde-mcp/sim-sub005/pkg/identity"
	"github.com/xde-mcp/sim-sub005/pkg/log"
	"github.com/xde-mcp/sim-sub005/pkg/trigger"
)

func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Check a workflow document against the schema and registry",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the workflow YAML document",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Trigger mode to resolve against (manual, chat, api)",
				Value: "manual",
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

			registry := cmd.NewRegistry(logger)
			importer := document.NewImporter(identity.NewService(registry, logger), registry, logger)

			workflowID := workflowIDFromPath(command.String("file"))

			state, diagnostics, err := importer.Import(data, document.PolicyFresh, nil, workflowID)
			if err != nil {
				return err
			}

			for _, d := range diagnostics {
				fmt.Fprintf(os.Stderr, "%s: %s\n", d.Level, d.Message)
			}

			resolution, err := trigger.NewResolver(registry, logger).Resolve(state, trigger.Mode(command.String("mode")))
			if err != nil {
				return err
			}

			start := state.Blocks[resolution.StartBlockID]

			fmt.Printf("valid: %d blocks, %d edges, start %q (%s)\n",
				len(state.Blocks), len(state.Edges), start.Name, start.Type)

			return nil
		},
	}
}
