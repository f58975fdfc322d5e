// Package cache provides the cache abstraction used for problem metadata.
package cache

import (
	"context"
	"time"
)

// Cache defines the key-value operations the judge core relies on.
// The abstraction allows swapping Redis for an in-memory implementation
// in tests without changing business logic.
type Cache interface {
	// Get retrieves the value for the given key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair with optional TTL (0 means no expiry)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Del deletes one or more keys
	Del(ctx context.Context, keys ...string) error

	// Ping verifies the cache connection is alive
	Ping(ctx context.Context) error

	// Close closes the cache connection
	Close() error
}

// NullCacheValue is a sentinel representing cached absence of data.
// Caching misses prevents repeated lookups for unknown problems.
const NullCacheValue = "$NULL$"

// GetWithCached implements the cache-aside pattern with null value caching.
// On cache miss it calls fn, stores the result (or the null sentinel when
// isEmpty reports an empty result) and returns it.
func GetWithCached[T any](
	ctx context.Context,
	cache Cache,
	key string,
	ttl time.Duration,
	emptyTTL time.Duration,
	isEmpty func(T) bool,
	marshal func(T) string,
	unmarshal func(string) (T, error),
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T

	if cached, err := cache.Get(ctx, key); err == nil && cached != "" {
		if cached == NullCacheValue {
			return zero, nil
		}
		if result, err := unmarshal(cached); err == nil {
			return result, nil
		}
	}

	data, err := fn(ctx)
	if err != nil {
		return zero, err
	}
	if isEmpty(data) {
		_ = cache.Set(ctx, key, NullCacheValue, emptyTTL)
		return zero, nil
	}
	_ = cache.Set(ctx, key, marshal(data), ttl)
	return data, nil
}
