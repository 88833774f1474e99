// Package cache provides the string-keyed key/value stores and the
// cache-aside helper shared by the weather and result caches.
package cache

import (
	"context"
	"time"
)

// Store is a string-keyed byte store with per-key expiry.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent or expired.
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)

	// Set stores val under key. A ttl of zero means the key never expires.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Pinger is implemented by stores that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
