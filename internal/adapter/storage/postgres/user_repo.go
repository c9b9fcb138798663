package postgres

import (
	"context"
	"errors"
	"fmt"

	"rfid-fare-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation = "23505"

	userColumns = `id, name, role, email_enc, phone_enc, card_uid_enc, card_uid_digest,
		wallet_balance, is_blocked, created_at, updated_at`
)

// UserRepo implements ports.UserRepository.
type UserRepo struct {
	pool Pool
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(pool Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

// Create inserts a new user.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.pool.Exec(ctx, query,
		u.ID, u.Name, string(u.Role), u.EmailEnc, u.PhoneEnc, u.CardUIDEnc, u.CardUIDDigest,
		u.WalletBalance, u.IsBlocked, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert user: %w", domain.ErrCardDigestTaken)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID fetches a user by UUID. Returns nil if absent.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

// GetByCardDigest fetches the user holding a card. Returns nil if no user does.
func (r *UserRepo) GetByCardDigest(ctx context.Context, digest string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE card_uid_digest = $1`
	u, err := scanUser(r.pool.QueryRow(ctx, query, digest))
	if err != nil {
		return nil, fmt.Errorf("get user by card digest: %w", err)
	}
	return u, nil
}

// LinkCard sets the card fields if the user has none. The unique index on
// card_uid_digest decides races between users linking the same card.
func (r *UserRepo) LinkCard(ctx context.Context, id uuid.UUID, cardUIDEnc, cardDigest string) error {
	query := `UPDATE users SET card_uid_enc = $1, card_uid_digest = $2, updated_at = NOW()
		WHERE id = $3 AND card_uid_digest IS NULL`

	tag, err := r.pool.Exec(ctx, query, cardUIDEnc, cardDigest, id)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCardDigestTaken
		}
		return fmt.Errorf("link card: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: find out why
	var holder *uuid.UUID
	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT (SELECT id FROM users WHERE card_uid_digest = $1),
		        EXISTS(SELECT 1 FROM users WHERE id = $2)`,
		cardDigest, id,
	).Scan(&holder, &exists)
	if err != nil {
		return fmt.Errorf("link card lookup: %w", err)
	}
	switch {
	case holder != nil && *holder != id:
		return domain.ErrCardDigestTaken
	case exists:
		return domain.ErrCardAlreadyLinked
	default:
		return domain.ErrUserNotFound
	}
}

// UpdateWalletBalance writes the mirror balance inside the ledger transaction.
func (r *UserRepo) UpdateWalletBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	tag, err := tx.Exec(ctx, `UPDATE users SET wallet_balance = $1, updated_at = NOW() WHERE id = $2`, balance, id)
	if err != nil {
		return fmt.Errorf("update mirror balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update mirror balance: %w", domain.ErrUserNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	u := &domain.User{}
	var role string
	err := row.Scan(
		&u.ID, &u.Name, &role, &u.EmailEnc, &u.PhoneEnc, &u.CardUIDEnc, &u.CardUIDDigest,
		&u.WalletBalance, &u.IsBlocked, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = domain.Role(role)
	return u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
