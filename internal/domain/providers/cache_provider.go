package providers

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned (possibly wrapped) by Get when the key is absent
var ErrCacheMiss = errors.New("cache miss")

// CacheProvider defines the interface for caching operations
type CacheProvider interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) ([]byte, error)

	// GetMulti retrieves several values at once; missing keys are absent from the result
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)

	// Set stores a value in cache with expiration
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Incr atomically increments the integer counter at key and returns the new value.
	// An absent key counts from zero. Get on a counter returns its decimal text.
	Incr(ctx context.Context, key string) (int64, error)
}
