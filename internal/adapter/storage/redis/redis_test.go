package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"rfid-fare-gateway/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func miniredisConfig(t *testing.T, mr *miniredis.Miniredis) config.RedisConfig {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port}
}

func TestNewClient_Connects(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(context.Background(), miniredisConfig(t, mr), zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	hc := NewHealthCheck(client)
	assert.Equal(t, "redis", hc.Name())
	assert.NoError(t, hc.Ping(context.Background()))
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := miniredisConfig(t, mr)
	mr.Close()

	_, err := NewClient(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pinging redis")
}

func TestHealthCheck_ReportsOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), miniredisConfig(t, mr), zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	assert.Error(t, NewHealthCheck(client).Ping(context.Background()))
}

func TestNewClient_ServerErrorFailsStartup(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := miniredisConfig(t, mr)
	cfg.ConnectTimeout = 500 * time.Millisecond
	mr.SetError("LOADING Redis is loading the dataset in memory")

	_, err := NewClient(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), mr.Addr())
}

func TestNewStores_ShareClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), miniredisConfig(t, mr), zerolog.Nop())
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	stores := NewStores(client)

	ok, err := stores.Nonces.CheckAndSet(ctx, "payment", "pay_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	result, err := stores.RateLimiter.Allow(ctx, "10.0.0.1:api", 5, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)

	assert.NoError(t, stores.Health.Ping(ctx))
	assert.True(t, mr.Exists("nonce:payment:pay_1"))
}
