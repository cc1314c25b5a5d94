package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisOptions configure the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Timeout bounds every read and write.
	Timeout time.Duration
}

// Redis is a Cache backed by a Redis server.
type Redis struct {
	client *redis.Client
}

// NewRedis connects lazily; the first command dials the server.
func NewRedis(opts RedisOptions) *Redis {
	o := &redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.Timeout > 0 {
		o.DialTimeout = opts.Timeout
		o.ReadTimeout = opts.Timeout
		o.WriteTimeout = opts.Timeout
	}
	return &Redis{client: redis.NewClient(o)}
}

// Get is part of Cache.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return raw, true, nil
}

// Set is part of Cache.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close is part of Cache.
func (r *Redis) Close() error {
	return r.client.Close()
}
