// Package weather provides cached daily weather observations.
package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tempcast/tempcast/internal/cache"
	"github.com/tempcast/tempcast/internal/location"
	"github.com/tempcast/tempcast/internal/task"
)

// Provider defines the interface for historical weather sources.
type Provider interface {
	// GetDaily fetches the observation for one calendar day. It returns
	// ErrNoData when the source has no complete record for that day.
	GetDaily(ctx context.Context, loc location.Location, date time.Time) (*DailyObservation, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the weather service.
type ServiceConfig struct {
	// Provider is the upstream weather source.
	Provider Provider

	// Store backs the cache. Required.
	Store cache.Store

	// Dispatcher runs background cache population.
	Dispatcher *cache.Dispatcher

	// CacheTTL is how long observations are cached (default: 24 hours).
	CacheTTL time.Duration

	// FetchConcurrency bounds parallel lookups in GetDays (default: 4).
	FetchConcurrency int

	Logger  zerolog.Logger
	Metrics *cache.Metrics
}

// Service is the cache-aside weather lookup shared by the API and workers.
type Service struct {
	provider    Provider
	cache       *cache.Aside[*DailyObservation]
	logger      zerolog.Logger
	concurrency int
}

// NewService creates a new weather service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	concurrency := cfg.FetchConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	return &Service{
		provider: cfg.Provider,
		cache: cache.NewAside[*DailyObservation](cache.AsideConfig{
			Name:       "weather",
			Store:      cfg.Store,
			Dispatcher: cfg.Dispatcher,
			TTL:        ttl,
			Logger:     cfg.Logger,
			Metrics:    cfg.Metrics,
		}),
		logger:      cfg.Logger,
		concurrency: concurrency,
	}
}

// CacheKey returns the cache key for a location and day.
func CacheKey(loc location.Location, date time.Time) string {
	return "weather:" + string(loc) + ":" + task.FormatDate(date)
}

// GetDaily returns the observation for loc on date, from cache when present.
func (s *Service) GetDaily(ctx context.Context, loc location.Location, date time.Time) (*DailyObservation, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	day := task.Day(date)

	return s.cache.GetOrFetch(ctx, CacheKey(loc, day), func(ctx context.Context) (*DailyObservation, error) {
		s.logger.Debug().
			Str("location", string(loc)).
			Str("date", task.FormatDate(day)).
			Str("provider", s.provider.Name()).
			Msg("fetching weather from provider")

		obs, err := s.provider.GetDaily(ctx, loc, day)
		if err != nil {
			if errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
		}
		return obs, nil
	})
}

// GetDays looks up every day in days concurrently. The result is aligned
// with days; entries that could not be fetched are nil and logged.
func (s *Service) GetDays(ctx context.Context, loc location.Location, days []time.Time) []*DailyObservation {
	out := make([]*DailyObservation, len(days))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, day := range days {
		g.Go(func() error {
			obs, err := s.GetDaily(gctx, loc, day)
			if err != nil {
				s.logger.Warn().Err(err).
					Str("location", string(loc)).
					Str("date", task.FormatDate(day)).
					Msg("failed to get weather for day")
				return nil
			}
			out[i] = obs
			return nil
		})
	}
	_ = g.Wait()

	return out
}
