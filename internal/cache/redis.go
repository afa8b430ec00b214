package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a shared Cache backed by a Redis instance. When the cache backend
// is set to "redis" it replaces the in-process LRU for every module, so
// multiple Plaid processes observe each other's writes. Grounded on internal/fabric's
// RedisHubStore: inject the client behind this package's own Cache
// interface rather than leaking *redis.Client into the host ABI.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis dials addr/db with the given password and returns a Redis cache.
// ttl of 0 means entries never expire.
func NewRedis(addr, password string, db int, ttl time.Duration) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
	}
}

func redisKey(namespace, key string) string {
	return namespace + "\x00" + key
}

func (r *Redis) Get(ctx context.Context, namespace, key string) ([]byte, bool) {
	v, err := r.client.Get(ctx, redisKey(namespace, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return nil, false
		}
		return nil, false
	}
	return v, true
}

func (r *Redis) Set(ctx context.Context, namespace, key string, value []byte) {
	r.client.Set(ctx, redisKey(namespace, key), value, r.ttl)
}

func (r *Redis) Delete(ctx context.Context, namespace, key string) {
	r.client.Del(ctx, redisKey(namespace, key))
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
