package service

import (
	"context"
	"fmt"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/pkg/apperror"

	"github.com/google/uuid"
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	ledger   ports.Ledger
	userRepo ports.UserRepository
	txRepo   ports.TransactionRepository
	identity ports.IdentityIndex
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	ledger ports.Ledger,
	userRepo ports.UserRepository,
	txRepo ports.TransactionRepository,
	identity ports.IdentityIndex,
) ports.ReportingService {
	return &reportingService{
		ledger:   ledger,
		userRepo: userRepo,
		txRepo:   txRepo,
		identity: identity,
	}
}

// GetWallet returns the authoritative balance plus card link status.
func (s *reportingService) GetWallet(ctx context.Context, userID uuid.UUID) (*ports.WalletView, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, storageError(fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		return nil, apperror.ErrNotFound("User")
	}

	wallet, err := s.ledger.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	view := &ports.WalletView{
		Balance:    wallet.Balance,
		UpdatedAt:  wallet.UpdatedAt,
		CardLinked: user.HasCard(),
	}
	if user.HasCard() && user.CardUIDEnc != nil {
		// Undecryptable card values are hidden here rather than shown raw.
		view.CardUIDMasked = MaskUID(s.identity.Reveal(*user.CardUIDEnc).Or(""))
	}
	return view, nil
}

// ListTransactions returns a paginated list of transactions, newest first.
func (s *reportingService) ListTransactions(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, 0, apperror.Validation("from must be before to")
	}
	txns, total, err := s.txRepo.List(ctx, params)
	if err != nil {
		return nil, 0, storageError(fmt.Errorf("list transactions: %w", err))
	}
	return txns, total, nil
}
