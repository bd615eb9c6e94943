package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"fhirload/internal/catalog"
	"fhirload/internal/config"
	"fhirload/internal/logging"
)

func newLister(ctx context.Context, cfg *config.Config) (catalog.Lister, error) {
	switch cfg.StoreProvider() {
	case "s3":
		lister, err := catalog.NewS3Lister(ctx, cfg.Store.Bucket, cfg.Store.S3.Region,
			cfg.Store.S3.Prefix, cfg.Store.S3.Endpoint, cfg.Store.BaseURL,
			cfg.S3RetryAttempts())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 lister: %w", err)
		}
		if err := lister.VerifyCredentials(ctx); err != nil {
			return nil, fmt.Errorf("AWS credentials verification failed: %w", err)
		}
		return lister, nil
	default:
		lister, err := catalog.NewGCSLister(ctx, cfg.Store.Bucket, cfg.Store.BaseURL, cfg.StorePublic())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize GCS lister: %w", err)
		}
		return lister, nil
	}
}

func setupLogging(baseDir string) (*os.File, error) {
	logDir := filepath.Join(baseDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("fhirload-%s.log", time.Now().Format("2006-01-02")))
	logger, logFile, err := logging.NewLogger(logPath, slog.LevelInfo)
	if err != nil {
		return nil, err
	}

	slog.SetDefault(logger)
	return logFile, nil
}
