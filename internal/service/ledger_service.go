package service

import (
	"context"
	"fmt"
	"time"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// LedgerService implements ports.Ledger. Every mutation runs in one database
// transaction holding the wallet row lock, so concurrent mutations of the same
// wallet serialize and mutations of different wallets do not contend.
type LedgerService struct {
	walletRepo ports.WalletRepository
	userRepo   ports.UserRepository
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	encSvc     ports.EncryptionService
	loc        *time.Location
	now        func() time.Time
	log        zerolog.Logger
}

// NewLedgerService creates a new LedgerService. loc decides where "today" starts.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	userRepo ports.UserRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	encSvc ports.EncryptionService,
	loc *time.Location,
	log zerolog.Logger,
) *LedgerService {
	if loc == nil {
		loc = time.Local
	}
	return &LedgerService{
		walletRepo: walletRepo,
		userRepo:   userRepo,
		txRepo:     txRepo,
		transactor: transactor,
		encSvc:     encSvc,
		loc:        loc,
		now:        time.Now,
		log:        log,
	}
}

// GetOrCreate returns the user's wallet, creating it with a zero balance if absent.
func (s *LedgerService) GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, storageError(fmt.Errorf("get or create wallet: %w", err))
	}
	return wallet, nil
}

// Credit adds amount to the wallet and returns the new balance.
func (s *LedgerService) Credit(ctx context.Context, entry ports.LedgerEntry) (int64, error) {
	return s.apply(ctx, domain.TransactionKindCredit, entry)
}

// Debit removes amount from the wallet and returns the new balance.
// Fails with INSUFFICIENT_FUNDS, leaving everything untouched, if the balance is too low.
func (s *LedgerService) Debit(ctx context.Context, entry ports.LedgerEntry) (int64, error) {
	return s.apply(ctx, domain.TransactionKindDebit, entry)
}

func (s *LedgerService) apply(ctx context.Context, kind domain.TransactionKind, entry ports.LedgerEntry) (int64, error) {
	if entry.Amount <= 0 {
		return 0, apperror.ErrInvalidAmount()
	}
	if entry.UserID == uuid.Nil {
		return 0, apperror.Validation("User ID is required")
	}

	var refEnc *string
	if entry.ExternalRef != "" {
		enc, err := s.encSvc.Encrypt(entry.ExternalRef)
		if err != nil {
			return 0, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt external ref: %w", err))
		}
		refEnc = &enc
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return 0, storageError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Lock & get wallet
	wallet, err := s.walletRepo.GetForUpdate(ctx, dbTx, entry.UserID)
	if err != nil {
		return 0, storageError(fmt.Errorf("lock wallet: %w", err))
	}

	newBalance := wallet.Balance + entry.Amount
	if kind == domain.TransactionKindDebit {
		if !wallet.CanDebit(entry.Amount) {
			return 0, apperror.ErrInsufficientFunds(wallet.Balance)
		}
		newBalance = wallet.Balance - entry.Amount
	}

	if err := s.walletRepo.UpdateBalance(ctx, dbTx, entry.UserID, newBalance); err != nil {
		return 0, storageError(fmt.Errorf("update balance: %w", err))
	}

	txn := &domain.Transaction{
		ID:             uuid.New(),
		UserID:         entry.UserID,
		Kind:           kind,
		Amount:         entry.Amount,
		Description:    entry.Description,
		ExternalRefEnc: refEnc,
		BalanceAfter:   newBalance,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return 0, storageError(fmt.Errorf("create transaction: %w", err))
	}

	// Mirror on the identity record, same transaction
	if err := s.userRepo.UpdateWalletBalance(ctx, dbTx, entry.UserID, newBalance); err != nil {
		return 0, storageError(fmt.Errorf("update mirror balance: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return 0, storageError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("tx_id", txn.ID.String()).
		Str("user_id", entry.UserID.String()).
		Str("kind", string(kind)).
		Int64("amount", entry.Amount).
		Int64("balance", newBalance).
		Msg("wallet updated")

	return newBalance, nil
}

// DailyStats aggregates fare debits since local midnight.
func (s *LedgerService) DailyStats(ctx context.Context) (*domain.FareStats, error) {
	stats, err := s.txRepo.GetFareStats(ctx, StartOfDay(s.now(), s.loc))
	if err != nil {
		return nil, storageError(fmt.Errorf("fare stats: %w", err))
	}
	return stats, nil
}

// StartOfDay returns midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
