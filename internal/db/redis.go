package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"beacon-admission-service/internal/config"
)

// NewRedisClient returns a client for the shared counter store, or nil when
// no address is configured. A failed ping is reported so the caller can start
// on local counters.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.RedisDialTimeout,
		ReadTimeout:  cfg.RedisOpTimeout,
		WriteTimeout: cfg.RedisOpTimeout,
		MaxRetries:   1,
	})

	ctx, cancel := context.WithTimeout(ctx, cfg.RedisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return client, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
