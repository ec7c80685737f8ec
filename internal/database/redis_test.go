package database

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/irfndi/gatekeeper/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func redisConfigFor(t *testing.T, server *miniredis.Miniredis) config.RedisConfig {
	t.Helper()
	port, err := strconv.Atoi(server.Port())
	require.NoError(t, err)
	return config.RedisConfig{Enabled: true, Host: server.Host(), Port: port}
}

func TestNewRedisConnection(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := NewRedisConnection(redisConfigFor(t, server), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	assert.NoError(t, client.HealthCheck(ctx))

	require.NoError(t, client.Client.Set(ctx, "k", "v", time.Minute).Err())
	got, err := server.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisConnection_Unreachable(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	cfg := redisConfigFor(t, server)
	server.Close()

	client, err := NewRedisConnection(cfg, nil)
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestRedisClient_HealthCheckAfterServerStops(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	client, err := NewRedisConnection(redisConfigFor(t, server), nil)
	require.NoError(t, err)
	defer client.Close()

	server.Close()
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestRedisClient_NilSafe(t *testing.T) {
	var client *RedisClient
	assert.NotPanics(t, client.Close)
	assert.Error(t, client.HealthCheck(context.Background()))
}

func TestRedisSentryHook_PassesThrough(t *testing.T) {
	server := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: server.Addr()})
	rdb.AddHook(&RedisSentryHook{})
	defer rdb.Close()
	ctx := context.Background()

	err := rdb.Get(ctx, "missing").Err()
	assert.ErrorIs(t, err, redis.Nil)

	pipe := rdb.Pipeline()
	pipe.Incr(ctx, "n")
	pipe.Incr(ctx, "n")
	_, err = pipe.Exec(ctx)
	require.NoError(t, err)

	n, err := rdb.Get(ctx, "n").Int()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
