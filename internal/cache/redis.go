package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisProvider backs Provider with a Redis server.
type RedisProvider struct {
	client *redis.Client
}

// NewRedisProvider connects to Redis and verifies the connection.
func NewRedisProvider(ctx context.Context, addr, password string, db int) (*RedisProvider, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisProvider{client: client}, nil
}

func (p *RedisProvider) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (p *RedisProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := p.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (p *RedisProvider) Delete(ctx context.Context, key string) error {
	if err := p.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (p *RedisProvider) Close() error {
	return p.client.Close()
}
