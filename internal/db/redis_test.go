package db

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"beacon-admission-service/internal/config"
)

func redisConfig(addr string) *config.Config {
	cfg := &config.Config{}
	cfg.RedisAddr = addr
	cfg.RedisDialTimeout = 200 * time.Millisecond
	cfg.RedisOpTimeout = 200 * time.Millisecond
	return cfg
}

func TestNewRedisClient_Disabled(t *testing.T) {
	client, err := NewRedisClient(context.Background(), redisConfig(""))
	require.NoError(t, err)
	require.Nil(t, client)
}

func TestNewRedisClient_Connects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), redisConfig(mr.Addr()))
	require.NoError(t, err)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })
}

func TestNewRedisClient_UnreachableStillReturnsClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client, err := NewRedisClient(context.Background(), redisConfig(addr))
	require.Error(t, err)
	require.NotNil(t, client)
	_ = client.Close()
}
