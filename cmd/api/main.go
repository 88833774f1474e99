// Package main provides the entrypoint for the tempcast API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tempcast/tempcast/internal/api"
	"github.com/tempcast/tempcast/internal/api/handler"
	"github.com/tempcast/tempcast/internal/api/middleware"
	"github.com/tempcast/tempcast/internal/bootstrap"
	"github.com/tempcast/tempcast/internal/config"
	"github.com/tempcast/tempcast/internal/forecast"
	"github.com/tempcast/tempcast/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "tempcast-api"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := bootstrap.NewLogger(os.Stdout, cfg, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Str("queue_backend", cfg.QueueBackend).
		Msg("starting tempcast API")

	if err := run(cfg, serviceName, log); err != nil {
		log.Error().Err(err).Msg("api exited with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func run(cfg config.Config, serviceName string, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.AppEnv,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	metrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}

	store, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	archive, closeArchive, err := bootstrap.OpenArchive(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeArchive()

	q, err := bootstrap.OpenQueue(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer q.Close()

	components, err := bootstrap.NewComponents(cfg, store, archive, log)
	if err != nil {
		return err
	}
	defer components.Close()

	// The memory queue only exists in this process, so it gets an embedded worker.
	if cfg.QueueBackend == config.QueueMemory {
		processor, err := bootstrap.NewProcessor(cfg, components, log.With().Str("component", "worker").Logger())
		if err != nil {
			return err
		}
		go func() {
			if err := processor.Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("embedded worker stopped")
			}
		}()
		log.Warn().Msg("memory queue selected, running embedded worker")
	}

	coordinator := forecast.NewCoordinator(forecast.CoordinatorConfig{
		Results:     components.Results,
		Publisher:   q,
		HorizonDays: cfg.ForecastHorizonDays,
		Logger:      log,
	})

	deps := map[string]handler.Pinger{}
	if p, ok := store.(handler.Pinger); ok {
		deps["cache"] = p
	}
	if p, ok := q.(handler.Pinger); ok {
		deps["queue"] = p
	}

	router := api.NewRouter(api.RouterConfig{
		Version:      Version,
		BuildTime:    BuildTime,
		Logger:       log,
		ServiceName:  serviceName,
		Metrics:      metrics,
		Forecasts:    coordinator,
		Weather:      components.Weather,
		Dependencies: deps,
		Providers:    components.Providers,
	})

	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}
