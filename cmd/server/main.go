// Package main is the entry point for the quantfolio optimization service:
// a QAOA-based mean-variance portfolio optimizer driving a pluggable quantum
// execution backend behind an HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/clients/qbackend"
	"github.com/quantfolio/quantfolio/internal/config"
	"github.com/quantfolio/quantfolio/internal/database"
	"github.com/quantfolio/quantfolio/internal/events"
	"github.com/quantfolio/quantfolio/internal/modules/mitigation"
	"github.com/quantfolio/quantfolio/internal/modules/optimization"
	"github.com/quantfolio/quantfolio/internal/modules/search"
	"github.com/quantfolio/quantfolio/internal/scheduler"
	"github.com/quantfolio/quantfolio/internal/server"
	"github.com/quantfolio/quantfolio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database")
	}

	backend := buildBackend(cfg, log)
	log.Info().Str("backend", backend.Name()).Msg("Execution backend configured")

	bus := events.NewBus()
	mitigator := mitigation.NewMitigator(backend, cfg.CalibrationShots, cfg.ErrorMitigation, log)
	runs := database.NewRunRepository(db)

	service, err := optimization.NewService(
		optimization.Config{
			RiskTolerance:       cfg.RiskTolerance,
			MaxPositionSize:     cfg.MaxPositionSize,
			MinPositionSize:     cfg.MinPositionSize,
			TransactionCostRate: cfg.TransactionCostRate,
			ErrorMitigation:     cfg.ErrorMitigation,
			Shots:               cfg.Shots,
			MaxIterations:       cfg.MaxIterations,
			DefaultLayers:       cfg.DefaultLayers,
		},
		backend,
		search.NewSPSA(cfg.Seed),
		mitigator,
		runs,
		bus,
		log,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create optimizer service")
	}

	sched := scheduler.New(log)
	if cfg.ErrorMitigation && cfg.RecalibrationSchedule != "" {
		job := mitigation.NewRecalibrationJob(mitigator, bus, log)
		if err := sched.AddJob(cfg.RecalibrationSchedule, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register recalibration job")
		}
	}
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Log:     log,
		Service: service,
		Runs:    runs,
		Bus:     bus,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func buildBackend(cfg *config.Config, log zerolog.Logger) qbackend.Backend {
	if cfg.BackendMode == "http" {
		return qbackend.NewHTTPBackend(cfg.BackendURL, log)
	}

	var noise *qbackend.NoiseModel
	if len(cfg.NoiseP01) > 0 {
		noise = &qbackend.NoiseModel{
			Flip01: cfg.NoiseP01,
			Flip10: cfg.NoiseP10,
		}
	}
	return qbackend.NewSamplerBackend(cfg.Seed, noise, log)
}
