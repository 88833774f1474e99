package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tempcast/tempcast/internal/cache"
	"github.com/tempcast/tempcast/internal/task"
)

// Archive is durable storage behind the result cache.
type Archive interface {
	// Save upserts r.
	Save(ctx context.Context, r *Result) error

	// Load returns ErrNotFound when no result exists for id.
	Load(ctx context.Context, id task.ID) (*Result, error)
}

// StoreConfig holds configuration for a ResultStore.
type StoreConfig struct {
	// Store is the cache backend. Required.
	Store cache.Store

	// Dispatcher runs background cache population on archive reads.
	Dispatcher *cache.Dispatcher

	// TTL is the result retention in the cache. Zero keeps results forever.
	TTL time.Duration

	// Archive is optional durable storage consulted on cache misses.
	Archive Archive

	Logger  zerolog.Logger
	Metrics *cache.Metrics
}

// ResultStore reads and writes forecast results keyed by task id.
type ResultStore struct {
	cache   *cache.Aside[*Result]
	archive Archive
}

// NewStore creates a result store.
func NewStore(cfg StoreConfig) *ResultStore {
	return &ResultStore{
		cache: cache.NewAside[*Result](cache.AsideConfig{
			Name:       "forecast",
			Store:      cfg.Store,
			Dispatcher: cfg.Dispatcher,
			TTL:        cfg.TTL,
			Logger:     cfg.Logger,
			Metrics:    cfg.Metrics,
		}),
		archive: cfg.Archive,
	}
}

// Key returns the store key for id.
func Key(id task.ID) string {
	return "forecast:" + id.String()
}

// Get returns the result for id or ErrNotFound. A cache read error fails the
// call even when an archive is configured. An archive hit is written back to
// the cache in the background.
func (s *ResultStore) Get(ctx context.Context, id task.ID) (*Result, error) {
	key := Key(id)

	r, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read forecast %s: %w", id, err)
	}
	if ok && r != nil {
		return r, nil
	}
	if s.archive == nil {
		return nil, ErrNotFound
	}

	r, err = s.archive.Load(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load forecast %s: %w", id, err)
	}
	s.cache.Populate(key, r)
	return r, nil
}

// Put writes r, overwriting any previous value for the same task. It returns
// only after every backend has accepted the write.
func (s *ResultStore) Put(ctx context.Context, r *Result) error {
	if err := s.cache.Set(ctx, Key(r.TaskID), r); err != nil {
		return fmt.Errorf("store forecast %s: %w", r.TaskID, err)
	}
	if s.archive != nil {
		if err := s.archive.Save(ctx, r); err != nil {
			return fmt.Errorf("archive forecast %s: %w", r.TaskID, err)
		}
	}
	return nil
}
