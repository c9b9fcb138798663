package memory

import (
	"context"
	"fmt"
	"time"

	"rfid-fare-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type userRow struct {
	domain.User
}

// UserRepo implements ports.UserRepository.
type UserRepo struct {
	store *Store
}

// Create inserts a new user.
func (r *UserRepo) Create(_ context.Context, u *domain.User) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.users[u.ID]; ok {
		return fmt.Errorf("insert user: duplicate id %s", u.ID)
	}
	if u.CardUIDDigest != nil {
		if _, taken := r.store.digests[*u.CardUIDDigest]; taken {
			return fmt.Errorf("insert user: %w", domain.ErrCardDigestTaken)
		}
		r.store.digests[*u.CardUIDDigest] = u.ID
	}

	row := &userRow{User: *u}
	now := r.store.now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	r.store.users[u.ID] = row
	return nil
}

// GetByID returns the user or nil.
func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	row, ok := r.store.users[id]
	if !ok {
		return nil, nil
	}
	u := row.User
	return &u, nil
}

// GetByCardDigest looks the user up through the digest index.
func (r *UserRepo) GetByCardDigest(_ context.Context, digest string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	id, ok := r.store.digests[digest]
	if !ok {
		return nil, nil
	}
	u := r.store.users[id].User
	return &u, nil
}

// LinkCard writes the card fields once, enforcing digest uniqueness.
func (r *UserRepo) LinkCard(_ context.Context, id uuid.UUID, cardUIDEnc, cardDigest string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	row, ok := r.store.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	if holder, taken := r.store.digests[cardDigest]; taken && holder != id {
		return domain.ErrCardDigestTaken
	}
	if row.HasCard() {
		return domain.ErrCardAlreadyLinked
	}

	row.CardUIDEnc = &cardUIDEnc
	row.CardUIDDigest = &cardDigest
	row.UpdatedAt = r.store.now()
	r.store.digests[cardDigest] = id
	return nil
}

// UpdateWalletBalance sets the mirror balance when tx commits.
func (r *UserRepo) UpdateWalletBalance(_ context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error {
	mtx, err := asTx(tx)
	if err != nil {
		return err
	}
	r.store.mu.RLock()
	_, ok := r.store.users[id]
	r.store.mu.RUnlock()
	if !ok {
		return fmt.Errorf("update mirror balance: %w", domain.ErrUserNotFound)
	}

	return mtx.enqueue(func() {
		if row, ok := r.store.users[id]; ok {
			row.WalletBalance = balance
			row.UpdatedAt = time.Now().UTC()
		}
	})
}
