package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "fhirload",
		Usage:   "Load public FHIR datasets into a FHIR server via bulk import",
		Version: "0.1.0",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List datasets available in the object store",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Usage: "path to configuration yaml file",
						Value: "fhirload_config.yaml",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runList(ctx, cmd.String("config"))
				},
			},
			{
				Name:  "import",
				Usage: "Import datasets into the FHIR server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Usage: "path to configuration yaml file",
						Value: "fhirload_config.yaml",
					},
					&cli.StringFlag{
						Name:  "only",
						Usage: "Import only datasets whose name contains this keyword",
					},
					&cli.BoolFlag{
						Name:  "include-legacy",
						Usage: "Also import superseded legacy datasets",
					},
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Concurrent dataset imports (overrides config)",
					},
					&cli.IntFlag{
						Name:  "max-attempts",
						Usage: "Attempts per dataset before giving up (overrides config)",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Print the import plan without submitting anything",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runImport(ctx, importArgs{
						configPath:    cmd.String("config"),
						only:          cmd.String("only"),
						includeLegacy: cmd.Bool("include-legacy"),
						concurrency:   int(cmd.Int("concurrency")),
						maxAttempts:   int(cmd.Int("max-attempts")),
						dryRun:        cmd.Bool("dry-run"),
					})
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		if ctx.Err() == context.Canceled {
			fmt.Fprintln(os.Stderr, "\n⚠ Import interrupted by user")
			os.Exit(130)
		}
		slog.Error("CLI error", "error", err)
		os.Exit(1)
	}
}
