package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fhirload/internal/catalog"
	"fhirload/internal/config"
	"fhirload/internal/importer"
	"fhirload/internal/plan"
)

type importArgs struct {
	configPath    string
	only          string
	includeLegacy bool
	concurrency   int
	maxAttempts   int
	dryRun        bool
}

func runImport(ctx context.Context, args importArgs) error {
	cfg, err := config.Load(args.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logFile, err := setupLogging(cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFile.Close()

	concurrency := cfg.Concurrency()
	if args.concurrency > 0 {
		concurrency = args.concurrency
	}
	maxAttempts := cfg.MaxAttempts()
	if args.maxAttempts > 0 {
		maxAttempts = args.maxAttempts
	}

	slog.Info("Import starting", "server", cfg.Server.URL, "bucket", cfg.Store.Bucket,
		"only", args.only, "includeLegacy", args.includeLegacy)

	lister, err := newLister(ctx, cfg)
	if err != nil {
		return err
	}

	datasets, err := catalog.Discover(ctx, lister)
	if err != nil {
		return err
	}

	planned := plan.Build(datasets, plan.Options{
		Filter:        args.only,
		IncludeLegacy: args.includeLegacy,
	})
	if len(planned) == 0 {
		slog.Info("Nothing to import", "discovered", len(datasets), "only", args.only)
		return nil
	}

	names := make([]string, 0, len(planned))
	for _, ds := range planned {
		names = append(names, ds.Name)
	}
	slog.Info("Import plan ready", "datasets", strings.Join(names, ", "))

	if args.dryRun {
		return printPlan(planned)
	}

	inputSource := cfg.Store.BaseURL
	if inputSource == "" {
		inputSource = "https://storage.googleapis.com/" + cfg.Store.Bucket
	}

	runner := &importer.Runner{
		Policy: &importer.Policy{
			Client: importer.NewClient(importer.ClientOptions{
				ServerURL:   cfg.Server.URL,
				InputSource: inputSource,
				Timeout:     cfg.RequestTimeout(),
				RetryCount:  cfg.ServerRetryCount(),
			}),
			Tracker: importer.NewTracker(importer.TrackerOptions{
				InitialInterval: cfg.PollInitialInterval(),
				MaxInterval:     cfg.PollMaxInterval(),
				MaxElapsed:      cfg.PollMaxDuration(),
				MaxPollErrors:   cfg.PollMaxErrors(),
				Timeout:         cfg.RequestTimeout(),
			}),
			MaxAttempts: maxAttempts,
		},
		Concurrency: concurrency,
	}

	report, runErr := runner.Run(ctx, planned)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	return runErr
}

func printPlan(planned []catalog.Dataset) error {
	type plannedDataset struct {
		Name      string `json:"name"`
		SizeBytes int64  `json:"size_bytes"`
		Objects   int    `json:"objects"`
	}

	out := make([]plannedDataset, 0, len(planned))
	for _, ds := range planned {
		out = append(out, plannedDataset{Name: ds.Name, SizeBytes: ds.SizeBytes, Objects: len(ds.Objects)})
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
