package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// RedisBackend stores entries in Redis with native key expiry.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend connects and pings the server.
func NewRedisBackend(ctx context.Context, opts *redis.Options) (*RedisBackend, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisBackend{client: client}, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

func (r *RedisBackend) SetWithTTL(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	ctx, span := tracer.Start(ctx, "redis.set")
	defer span.End()
	span.SetAttributes(attribute.String("key", key), attribute.Int64("ttl_seconds", int64(ttl.Seconds())))

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "redis.get")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("hit", false))
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	span.SetAttributes(attribute.Bool("hit", true))
	return val, nil
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "redis.del")
	defer span.End()
	span.SetAttributes(attribute.String("key", key))

	if err := r.client.Del(ctx, key).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
