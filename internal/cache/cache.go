// Package cache implements the per-module cache capability the host ABI
// exposes: a bounded LRU by default, or a Redis-backed store shared across
// Plaid processes when the deployment's cache backend is set to "redis".
package cache

import "context"

// Cache is the minimal contract the cache_insert/cache_get host functions
// need. Implementations are namespaced per module by the caller.
type Cache interface {
	Get(ctx context.Context, namespace, key string) ([]byte, bool)
	Set(ctx context.Context, namespace, key string, value []byte)
	Delete(ctx context.Context, namespace, key string)
}

// Disabled is a Cache that always misses and stores nothing. The cache_get
// host function reports a miss on a Disabled cache as hostabi.CacheDisabled
// rather than as a normal cache miss.
type Disabled struct{}

func (Disabled) Get(context.Context, string, string) ([]byte, bool) { return nil, false }
func (Disabled) Set(context.Context, string, string, []byte)        {}
func (Disabled) Delete(context.Context, string, string)             {}
