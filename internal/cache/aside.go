package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AsideConfig holds configuration for an Aside cache.
type AsideConfig struct {
	// Name labels log lines and metrics, e.g. "weather".
	Name string

	Store Store

	// Dispatcher runs background population writes. If nil, writes happen
	// inline but failures are still only logged.
	Dispatcher *Dispatcher

	// TTL applied to populated entries. Zero means no expiry.
	TTL time.Duration

	Logger  zerolog.Logger
	Metrics *Metrics
}

// Aside is a typed cache-aside wrapper over a Store. Values are stored as JSON.
type Aside[V any] struct {
	name       string
	store      Store
	dispatcher *Dispatcher
	ttl        time.Duration
	logger     zerolog.Logger
	metrics    *Metrics
}

// NewAside creates a cache-aside wrapper.
func NewAside[V any](cfg AsideConfig) *Aside[V] {
	return &Aside[V]{
		name:       cfg.Name,
		store:      cfg.Store,
		dispatcher: cfg.Dispatcher,
		ttl:        cfg.TTL,
		logger:     cfg.Logger.With().Str("cache", cfg.Name).Logger(),
		metrics:    cfg.Metrics,
	}
}

// Get reads key directly. ok is false on a miss.
func (a *Aside[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V

	raw, ok, err := a.store.Get(ctx, key)
	if err != nil {
		a.metrics.storeError(a.name)
		return zero, false, err
	}
	if !ok {
		return zero, false, nil
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return v, true, nil
}

// Set writes v under key synchronously.
func (a *Aside[V]) Set(ctx context.Context, key string, v V) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return a.store.Set(ctx, key, raw, a.ttl)
}

// GetOrFetch returns the cached value for key, or calls fetch on a miss.
//
// A hit has no side effects. On a miss a successful fetch result is written
// back in the background and returned immediately; a write failure is logged
// only. A fetch error is returned as-is and nothing is cached. Store read
// errors and undecodable entries are treated as misses.
func (a *Aside[V]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (V, error) {
	v, ok, err := a.Get(ctx, key)
	switch {
	case err != nil:
		a.logger.Warn().Err(err).Str("key", key).Msg("cache read failed, falling back to source")
	case ok:
		a.metrics.hit(a.name)
		return v, nil
	}
	a.metrics.miss(a.name)

	v, err = fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	a.Populate(key, v)
	return v, nil
}

// Populate writes v under key in the background. Failures are logged only.
func (a *Aside[V]) Populate(key string, v V) {
	raw, err := json.Marshal(v)
	if err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("cannot encode value for cache")
		return
	}

	write := func(ctx context.Context) error {
		return a.store.Set(ctx, key, raw, a.ttl)
	}

	if a.dispatcher == nil {
		if err := write(context.Background()); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("cache population failed")
		}
		return
	}

	a.dispatcher.Submit(Job{Name: a.name + " populate " + key, Run: write})
}
