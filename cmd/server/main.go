// IPDRLens - IP Data Record Enrichment and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ipdrlens

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/ipdrlens/internal/api"
	"github.com/tomtom215/ipdrlens/internal/config"
	"github.com/tomtom215/ipdrlens/internal/database"
	"github.com/tomtom215/ipdrlens/internal/detection"
	"github.com/tomtom215/ipdrlens/internal/enrich"
	"github.com/tomtom215/ipdrlens/internal/ingest"
	"github.com/tomtom215/ipdrlens/internal/logging"
	"github.com/tomtom215/ipdrlens/internal/supervisor"
	"github.com/tomtom215/ipdrlens/internal/supervisor/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("IPDRLens stopped with an error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("version", version).
		Str("db_path", cfg.Database.Path).
		Str("provider", cfg.Enrichment.Provider).
		Bool("reverse_dns", cfg.Enrichment.ReverseDNS).
		Msg("Starting IPDRLens with supervisor tree")

	db, err := database.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	enricher, err := enrich.NewServiceFromConfig(&cfg.Enrichment)
	if err != nil {
		return fmt.Errorf("failed to initialize enrichment: %w", err)
	}
	defer func() {
		if err := enricher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing enrichment cache")
		}
	}()

	ingester := ingest.NewService(enricher, db, cfg.Ingest)
	detector := detection.NewService(db, detection.ConfigFromSettings(cfg.Detection))

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}
	for _, origin := range cfg.Security.CORSOrigins {
		if origin == "*" && cfg.IsProduction() {
			logging.Warn().Msg("CORS allows any origin in production; set CORS_ORIGINS")
			break
		}
	}

	handler := api.NewHandler(db, ingester, detector, api.Options{
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes,
		Version:        version,
	})
	router := api.NewRouter(handler, api.NewChiMiddlewareFromConfig(cfg.Security))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		// Uploads and detection runs hold the connection for the whole
		// pipeline, so reads and writes share the server timeout.
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Server.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	tree.AddMaintenanceService(services.NewPeriodicService("duckdb-checkpoint", cfg.Database.CheckpointInterval, db.Checkpoint))
	if enricher.HasPersistentCache() {
		tree.AddMaintenanceService(services.NewPeriodicService("geo-cache-gc", cfg.Enrichment.CacheGCInterval, enricher.CompactCache))
		logging.Info().Str("path", cfg.Enrichment.BadgerPath).Msg("Persistent geolocation cache enabled")
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.Timeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Application stopped gracefully")
	return nil
}
