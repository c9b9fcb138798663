package ports

import (
	"context"
	"time"

	"rfid-fare-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository defines persistence operations for identity records.
// Lookups return (nil, nil) when the record does not exist.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByCardDigest(ctx context.Context, digest string) (*domain.User, error)
	// LinkCard stores the card fields only if the user has none yet and no other
	// user holds the digest. Returns domain.ErrCardDigestTaken,
	// domain.ErrCardAlreadyLinked or domain.ErrUserNotFound otherwise.
	LinkCard(ctx context.Context, id uuid.UUID, cardUIDEnc, cardDigest string) error
	UpdateWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error
}

// WalletRepository defines persistence operations for wallets.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type WalletRepository interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	// GetForUpdate creates the wallet if absent and locks its row until tx ends.
	GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	UpdateBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, balance int64) error
}

// TransactionRepository defines persistence operations for the append-only transaction log.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	// GetFareStats aggregates fare debits created at or after since.
	GetFareStats(ctx context.Context, since time.Time) (*domain.FareStats, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	UserID   uuid.UUID
	Kind     *domain.TransactionKind
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
