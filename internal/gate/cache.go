package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redislib "github.com/redis/go-redis/v9"
)

// PrincipalCache persists the last classified admin principal across restarts.
type PrincipalCache interface {
	Load(ctx context.Context) (*AdminPrincipal, error)
	Save(ctx context.Context, principal *AdminPrincipal) error
	Clear(ctx context.Context) error
}

type cacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	PrincipalCacheKey() string
}

// RedisCache keeps the principal as JSON under a single Redis key.
type RedisCache struct {
	store cacheStore
	ttl   time.Duration
}

// NewRedisCache builds a cache over the redis client; ttl of zero never expires.
func NewRedisCache(store cacheStore, ttl time.Duration) (*RedisCache, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store is required")
	}
	return &RedisCache{store: store, ttl: ttl}, nil
}

// Load returns nil without error when nothing is cached.
func (c *RedisCache) Load(ctx context.Context) (*AdminPrincipal, error) {
	raw, err := c.store.Get(ctx, c.store.PrincipalCacheKey())
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var principal AdminPrincipal
	if err := json.Unmarshal([]byte(raw), &principal); err != nil {
		return nil, fmt.Errorf("decode cached principal: %w", err)
	}
	return &principal, nil
}

func (c *RedisCache) Save(ctx context.Context, principal *AdminPrincipal) error {
	if principal == nil {
		return c.Clear(ctx)
	}
	payload, err := json.Marshal(principal)
	if err != nil {
		return fmt.Errorf("encode principal: %w", err)
	}
	return c.store.Set(ctx, c.store.PrincipalCacheKey(), string(payload), c.ttl)
}

func (c *RedisCache) Clear(ctx context.Context) error {
	return c.store.Del(ctx, c.store.PrincipalCacheKey())
}
