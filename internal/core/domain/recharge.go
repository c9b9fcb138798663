package domain

import (
	"time"

	"github.com/google/uuid"
)

// RechargeOrder is a pending wallet top-up awaiting payment confirmation.
type RechargeOrder struct {
	ID        string    `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
