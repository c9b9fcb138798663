package redis

import (
	"context"
	"fmt"

	"rfid-fare-gateway/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// NewClient creates a Redis client and verifies connectivity. The startup
// ping is bounded by cfg.ConnectTimeout.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	opts := &goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.ConnectTimeout
	}
	client := goredis.NewClient(opts)

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr(), err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("redis connected, recharge orders and shared rate limits enabled")

	return client, nil
}

// Stores groups the Redis-backed collaborators that share one client.
type Stores struct {
	Orders      *OrderStore
	Nonces      *NonceStore
	RateLimiter *RateLimitStore
	Health      *HealthCheck
}

// NewStores builds every Redis-backed store on client.
func NewStores(client *goredis.Client) Stores {
	return Stores{
		Orders:      NewOrderStore(client),
		Nonces:      NewNonceStore(client),
		RateLimiter: NewRateLimitStore(client),
		Health:      NewHealthCheck(client),
	}
}
