package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionKind is the direction of a ledger entry.
type TransactionKind string

const (
	TransactionKindCredit TransactionKind = "CREDIT"
	TransactionKindDebit  TransactionKind = "DEBIT"
)

const (
	// FareDescription tags debits produced by fare settlement.
	FareDescription = "Fare collection (RFID)"
	// FareDescriptionPrefix is what daily statistics match on.
	FareDescriptionPrefix = "Fare collection"
	// RechargeDescription tags credits produced by a verified payment.
	RechargeDescription = "Wallet recharge"
)

// Transaction is an append-only ledger entry. It is never updated or deleted.
type Transaction struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	Kind           TransactionKind `json:"kind"`
	Amount         int64           `json:"amount"`
	Description    string          `json:"description"`
	ExternalRefEnc *string         `json:"-"`
	BalanceAfter   int64           `json:"balance_after"`
	CreatedAt      time.Time       `json:"created_at"`
}

// IsFare returns true for debits created by fare settlement.
func (t *Transaction) IsFare() bool {
	return t.Kind == TransactionKindDebit && strings.HasPrefix(t.Description, FareDescriptionPrefix)
}

// FareStats aggregates fare debits since a point in time.
type FareStats struct {
	Count         int64 `json:"scans_today"`
	TotalAmount   int64 `json:"total_collected"`
	DistinctUsers int64 `json:"active_passengers"`
}
