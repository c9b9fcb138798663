package memory

import (
	"context"
	"fmt"

	"rfid-fare-gateway/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type walletRow struct {
	domain.Wallet
}

// WalletRepo implements ports.WalletRepository.
type WalletRepo struct {
	store *Store
}

// GetOrCreate returns the wallet, inserting a zero-balance one if missing.
func (r *WalletRepo) GetOrCreate(_ context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	row, ok := r.store.wallets[userID]
	if !ok {
		now := r.store.now()
		row = &walletRow{Wallet: domain.Wallet{UserID: userID, CreatedAt: now, UpdatedAt: now}}
		r.store.wallets[userID] = row
	}
	w := row.Wallet
	return &w, nil
}

// GetForUpdate locks the user's wallet until tx ends and returns its committed state.
func (r *WalletRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	mtx, err := asTx(tx)
	if err != nil {
		return nil, err
	}
	if err := mtx.lock(ctx, userID); err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return r.GetOrCreate(ctx, userID)
}

// UpdateBalance sets the balance when tx commits.
func (r *WalletRepo) UpdateBalance(_ context.Context, tx pgx.Tx, userID uuid.UUID, balance int64) error {
	mtx, err := asTx(tx)
	if err != nil {
		return err
	}
	if balance < 0 {
		return fmt.Errorf("update wallet %s: balance would be negative", userID)
	}
	return mtx.enqueue(func() {
		now := r.store.now()
		row, ok := r.store.wallets[userID]
		if !ok {
			row = &walletRow{Wallet: domain.Wallet{UserID: userID, CreatedAt: now}}
			r.store.wallets[userID] = row
		}
		row.Balance = balance
		row.UpdatedAt = now
	})
}
