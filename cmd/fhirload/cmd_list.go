package main

import (
	"context"
	"fmt"

	"fhirload/internal/config"
	"fhirload/internal/list"
)

func runList(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logFile, err := setupLogging(cfg.BaseDir)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFile.Close()

	lister, err := newLister(ctx, cfg)
	if err != nil {
		return err
	}

	return list.Run(ctx, lister)
}
