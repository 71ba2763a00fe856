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
)

func ExportCommand() *cli.Command {
	return &cli.Command{
		Name:    "export",
		Aliases: []string{"e"},
		Usage:   "Normalize a workflow document through an import/export round trip",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the workflow YAML document",
				Required: true,
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

			state, diagnostics, err := importer.Import(data, document.PolicyFresh, nil, workflowIDFromPath(command.String("file")))
			if err != nil {
				return err
			}

			for _, d := range diagnostics {
				fmt.Fprintf(os.Stderr, "%s: %s\n", d.Level, d.Message)
			}

			out, err := document.Export(state)
			if err != nil {
				return err
			}

			_, err = os.Stdout.Write(out)

			return err
		},
	}
}
