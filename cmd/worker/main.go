// Package main provides the entrypoint for the tempcast forecast worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tempcast/tempcast/internal/bootstrap"
	"github.com/tempcast/tempcast/internal/config"
	"github.com/tempcast/tempcast/internal/telemetry"
	"github.com/tempcast/tempcast/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "tempcast-worker"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := bootstrap.NewLogger(os.Stdout, cfg, serviceName, Version)
	log.Info().
		Str("build_time", BuildTime).
		Str("queue_backend", cfg.QueueBackend).
		Str("model_strategy", string(cfg.ModelStrategy)).
		Msg("starting tempcast worker")

	if cfg.QueueBackend == config.QueueMemory {
		log.Warn().Msg("memory queue is process-local, this worker will only see its own messages")
	}

	if err := run(cfg, serviceName, log); err != nil {
		log.Error().Err(err).Msg("worker exited with error")
		os.Exit(1)
	}
	log.Info().Msg("worker stopped")
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

	processor, err := bootstrap.NewProcessor(cfg, components, log)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      healthHandler(processor),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := processor.Run(gctx, q)
		stop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// healthHandler serves GET /health with the processor's counters.
func healthHandler(p *worker.Processor) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]interface{}{
			"status":  "healthy",
			"version": Version,
			"stats":   p.StatsSnapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	})
	return mux
}
