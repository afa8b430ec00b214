package cache

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"
)

// LRU is an in-process Cache keyed by "namespace\x00key", bounded to a
// fixed entry count shared across all modules using this instance.
type LRU struct {
	mu    sync.Mutex
	inner *lru.Cache
}

// NewLRU returns an LRU cache capped at maxEntries. maxEntries <= 0 means
// unbounded, matching groupcache/lru's own convention.
func NewLRU(maxEntries int) *LRU {
	return &LRU{inner: lru.New(maxEntries)}
}

func cacheKey(namespace, key string) string {
	return namespace + "\x00" + key
}

func (c *LRU) Get(_ context.Context, namespace, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.inner.Get(cacheKey(namespace, key))
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (c *LRU) Set(_ context.Context, namespace, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	c.inner.Add(cacheKey(namespace, key), stored)
}

func (c *LRU) Delete(_ context.Context, namespace, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(cacheKey(namespace, key))
}
