package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedisViewCache(client *redis.Client, namespace string) *RedisViewCache {
	return &RedisViewCache{
		client:    client,
		namespace: namespace,
		baseTTL:   5 * time.Minute,
	}
}

type RedisViewCache struct {
	client    *redis.Client
	namespace string
	baseTTL   time.Duration
}

func (r RedisViewCache) Get(ctx context.Context, view View) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(view)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (r RedisViewCache) Set(ctx context.Context, view View, data []byte) error {
	jitter := time.Duration(rand.Intn(60)) * time.Second
	ttl := r.baseTTL + jitter
	if err := r.client.Set(ctx, r.key(view), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r RedisViewCache) Invalidate(ctx context.Context, views ...View) error {
	if len(views) == 0 {
		return nil
	}
	keys := make([]string, 0, len(views))
	for _, v := range views {
		keys = append(keys, r.key(v))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r RedisViewCache) key(view View) string {
	return fmt.Sprintf("storefront:%s:view:%s", r.namespace, view)
}
