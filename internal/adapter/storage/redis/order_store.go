package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rfid-fare-gateway/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// OrderStore implements ports.OrderStore using Redis. Orders expire on their own.
type OrderStore struct {
	client *goredis.Client
	prefix string
}

// NewOrderStore creates a new Redis-backed recharge order store.
func NewOrderStore(client *goredis.Client) *OrderStore {
	return &OrderStore{
		client: client,
		prefix: "recharge:order:",
	}
}

// Save stores an order with TTL.
func (s *OrderStore) Save(ctx context.Context, order *domain.RechargeOrder, ttl time.Duration) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal recharge order: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+order.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis order set: %w", err)
	}
	return nil
}

// Get retrieves an order by ID.
// Returns nil, nil if the order does not exist or has expired.
func (s *OrderStore) Get(ctx context.Context, orderID string) (*domain.RechargeOrder, error) {
	val, err := s.client.Get(ctx, s.prefix+orderID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis order get: %w", err)
	}

	var order domain.RechargeOrder
	if err := json.Unmarshal(val, &order); err != nil {
		return nil, fmt.Errorf("unmarshal recharge order: %w", err)
	}
	return &order, nil
}

// Delete removes an order. Deleting a missing order is not an error.
func (s *OrderStore) Delete(ctx context.Context, orderID string) error {
	if err := s.client.Del(ctx, s.prefix+orderID).Err(); err != nil {
		return fmt.Errorf("redis order del: %w", err)
	}
	return nil
}
