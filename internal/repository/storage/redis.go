package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type RedisStorage struct {
	Connection *redis.Client
}

type Option func(*redis.Options)

// WithPoolSize caps the number of connections the client keeps open.
func WithPoolSize(size int) Option {
	return func(opts *redis.Options) {
		opts.PoolSize = size
	}
}

// NewRedisStorage connects to Redis and checks the connection with a PING.
func NewRedisStorage(ctx context.Context, addr, password string, db int, opts ...Option) (*RedisStorage, error) {
	options := &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}

	for _, opt := range opts {
		opt(options)
	}

	conn := redis.NewClient(options)

	if _, err := conn.Ping(ctx).Result(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStorage{Connection: conn}, nil
}

func (that *RedisStorage) Close() error {
	if err := that.Connection.Close(); err != nil {
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}
	return nil
}
