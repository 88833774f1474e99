// Package bootstrap builds tempcast components from configuration. The API
// and worker binaries share it so both processes agree on cache keys, queue
// topology and result storage.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tempcast/tempcast/internal/cache"
	"github.com/tempcast/tempcast/internal/config"
	"github.com/tempcast/tempcast/internal/database"
	"github.com/tempcast/tempcast/internal/forecast"
	"github.com/tempcast/tempcast/internal/model"
	"github.com/tempcast/tempcast/internal/provider/resilience"
	"github.com/tempcast/tempcast/internal/queue"
	"github.com/tempcast/tempcast/internal/weather"
	"github.com/tempcast/tempcast/internal/weather/openmeteo"
	"github.com/tempcast/tempcast/internal/worker"
)

// MemoryStoreURL selects the in-process cache store instead of Redis.
const MemoryStoreURL = "memory://"

// NewLogger returns the process logger writing JSON to w (os.Stdout if nil).
func NewLogger(w io.Writer, cfg config.Config, service, version string) zerolog.Logger {
	if w == nil {
		w = os.Stdout
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("env", cfg.AppEnv).
		Logger()
}

// Closer releases a resource opened by this package.
type Closer func() error

func noopCloser() error { return nil }

// OpenStore connects the shared cache store.
func OpenStore(ctx context.Context, cfg config.Config) (cache.Store, Closer, error) {
	if cfg.RedisURL == MemoryStoreURL {
		return cache.NewMemoryStore(), noopCloser, nil
	}

	client, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return cache.NewRedisStore(client), client.Close, nil
}

// OpenQueue connects the configured queue backend. A memory queue is only
// shared within one process.
func OpenQueue(ctx context.Context, cfg config.Config, logger zerolog.Logger) (queue.Queue, error) {
	logger = logger.With().Str("queue_backend", cfg.QueueBackend).Logger()

	switch cfg.QueueBackend {
	case config.QueueRabbitMQ:
		q, err := queue.NewRabbitMQ(queue.RabbitMQConfig{
			URL:       cfg.RabbitMQURL,
			QueueName: cfg.QueueName,
			Prefetch:  cfg.WorkerPrefetch,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.QueuePubSub:
		q, err := queue.NewPubSub(ctx, queue.PubSubConfig{
			ProjectID:       cfg.PubSubProjectID,
			Topic:           cfg.PubSubTopic,
			Subscription:    cfg.PubSubSubscription,
			DeadLetterTopic: cfg.PubSubDeadLetterTopic,
			MaxOutstanding:  cfg.WorkerPrefetch,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
		return q, nil
	case config.QueueMemory:
		return queue.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

// OpenArchive connects the Postgres result archive when DATABASE_URL is
// set. It returns a nil Archive otherwise.
func OpenArchive(ctx context.Context, cfg config.Config, logger zerolog.Logger) (forecast.Archive, Closer, error) {
	if cfg.DatabaseURL == "" {
		return nil, noopCloser, nil
	}

	pool, err := database.Connect(ctx, database.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		return nil, nil, err
	}

	archive := forecast.NewPostgresArchive(pool)
	if err := archive.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure archive schema: %w", err)
	}

	logger.Info().Msg("result archive connected")
	return archive, func() error { pool.Close(); return nil }, nil
}

// Components are the domain services both binaries build on the shared store.
type Components struct {
	Dispatcher *cache.Dispatcher
	Providers  *resilience.Registry
	Weather    *weather.Service
	Results    *forecast.ResultStore
}

// Close stops background cache population.
func (c *Components) Close() {
	c.Dispatcher.Close()
}

// NewComponents wires the weather cache and result store over store.
// archive may be nil.
func NewComponents(cfg config.Config, store cache.Store, archive forecast.Archive, logger zerolog.Logger) (*Components, error) {
	metrics, err := cache.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("init cache metrics: %w", err)
	}

	dispatcher := cache.NewDispatcher(cache.DispatcherConfig{Logger: logger})
	registry := resilience.NewRegistry()

	httpClient := resilience.NewClient(resilience.ClientConfig{
		Name:     openmeteo.ProviderName,
		Timeout:  cfg.WeatherTimeout,
		Registry: registry,
		Logger:   logger,
	})
	provider := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL:    cfg.WeatherBaseURL,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	return &Components{
		Dispatcher: dispatcher,
		Providers:  registry,
		Weather: weather.NewService(weather.ServiceConfig{
			Provider:         provider,
			Store:            store,
			Dispatcher:       dispatcher,
			CacheTTL:         cfg.WeatherCacheTTL,
			FetchConcurrency: cfg.WorkerFetchConcurrency,
			Logger:           logger,
			Metrics:          metrics,
		}),
		Results: forecast.NewStore(forecast.StoreConfig{
			Store:      store,
			Dispatcher: dispatcher,
			TTL:        cfg.ResultTTL,
			Archive:    archive,
			Logger:     logger,
			Metrics:    metrics,
		}),
	}, nil
}

// NewProcessor builds the forecast worker over c.
func NewProcessor(cfg config.Config, c *Components, logger zerolog.Logger) (*worker.Processor, error) {
	pipeline, err := model.NewPipeline(cfg.ModelStrategy)
	if err != nil {
		return nil, err
	}

	metrics, err := worker.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("init worker metrics: %w", err)
	}

	wcfg := worker.DefaultConfig()
	wcfg.HistoryDays = cfg.HistoryDays

	return worker.NewProcessor(worker.ProcessorConfig{
		Config:     wcfg,
		History:    c.Weather,
		Forecaster: pipeline,
		Results:    c.Results,
		Logger:     logger,
		Metrics:    metrics,
	}), nil
}
