package domain

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds the authoritative stored-value balance of one user.
type Wallet struct {
	UserID    uuid.UUID `json:"user_id"`
	Balance   int64     `json:"balance"` // Smallest currency unit, never negative
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanDebit reports whether amount fits in the current balance.
func (w *Wallet) CanDebit(amount int64) bool {
	return amount > 0 && w.Balance >= amount
}
