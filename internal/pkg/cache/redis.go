package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds short-lived JSON snapshots of configuration singletons (fee
// settings, WhatsApp settings) so that hot paths do not hit the database on
// every job.
type Cache interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	// GetJSON unmarshals the cached value into dest. The boolean reports
	// whether the key was present.
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	Key(kind, id string) string
}

type redisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(addr, prefix string) Cache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (r *redisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal %s: %w", key, err)
	}
	return r.client.Set(ctx, key, raw, ttl).Err()
}

func (r *redisCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache: unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (r *redisCache) Key(kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, kind, id)
}

// Noop returns a Cache that stores nothing. Used when no Redis address is
// configured; callers fall through to the database on every read.
func Noop() Cache { return noopCache{} }

type noopCache struct{}

func (noopCache) SetJSON(context.Context, string, any, time.Duration) error { return nil }
func (noopCache) GetJSON(context.Context, string, any) (bool, error)        { return false, nil }
func (noopCache) Key(kind, id string) string                                { return kind + ":" + id }
