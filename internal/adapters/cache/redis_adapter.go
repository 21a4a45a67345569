package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/coursefeedback/backend/internal/infrastructure/clients/redis"
)

// mgetChunk bounds the number of keys sent in one MGET
const mgetChunk = 500

// ErrCacheMiss is returned by Get when the key is absent
var ErrCacheMiss = providers.ErrCacheMiss

// RedisAdapter is the shared cache used for directory lookups, public
// feedback views and submission rate limits.
type RedisAdapter struct {
	rdb *redis.Client
}

// NewRedisAdapter creates a new Redis cache adapter
func NewRedisAdapter(client *redisclient.Client) providers.CacheProvider {
	return &RedisAdapter{rdb: client.Client()}
}

// Get returns ErrCacheMiss (wrapped) for absent keys
func (a *RedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := a.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("%w: %s", ErrCacheMiss, key)
	case err != nil:
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return value, nil
}

// GetMulti reads keys with MGET in chunks. Absent keys are left out of the result.
func (a *RedisAdapter) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	found := make(map[string][]byte, len(keys))

	for start := 0; start < len(keys); start += mgetChunk {
		end := start + mgetChunk
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		values, err := a.rdb.MGet(ctx, chunk...).Result()
		if err != nil {
			return nil, fmt.Errorf("cache mget (%d keys): %w", len(chunk), err)
		}
		for i, v := range values {
			if s, ok := v.(string); ok {
				found[chunk[i]] = []byte(s)
			}
		}
	}

	return found, nil
}

// Set stores value for expirationSeconds; zero or less keeps it until deleted
func (a *RedisAdapter) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	var ttl time.Duration
	if expirationSeconds > 0 {
		ttl = time.Duration(expirationSeconds) * time.Second
	}
	if err := a.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes key; deleting an absent key succeeds
func (a *RedisAdapter) Delete(ctx context.Context, key string) error {
	if err := a.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Incr increments the counter at key with INCR; counters never expire
func (a *RedisAdapter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache incr %s: %w", key, err)
	}
	return n, nil
}
