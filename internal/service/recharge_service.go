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

const paymentReplayScope = "payment"

// RechargeConfig holds the payment collaborator settings.
type RechargeConfig struct {
	GatewaySecret string
	OrderTTL      time.Duration
	ReplayTTL     time.Duration
	MaxAmount     int64
}

// RechargeService implements ports.RechargeService. Orders live in Redis until
// the gateway callback arrives; a verified payment credits the wallet once.
type RechargeService struct {
	ledger     ports.Ledger
	orders     ports.OrderStore
	nonceStore ports.NonceStore
	sigSvc     ports.SignatureService
	cfg        RechargeConfig
	now        func() time.Time
	log        zerolog.Logger
}

// NewRechargeService creates a new RechargeService.
func NewRechargeService(
	ledger ports.Ledger,
	orders ports.OrderStore,
	nonceStore ports.NonceStore,
	sigSvc ports.SignatureService,
	cfg RechargeConfig,
	log zerolog.Logger,
) *RechargeService {
	return &RechargeService{
		ledger:     ledger,
		orders:     orders,
		nonceStore: nonceStore,
		sigSvc:     sigSvc,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

// CreateOrder records a pending top-up for the user.
func (s *RechargeService) CreateOrder(ctx context.Context, userID uuid.UUID, amount int64) (*domain.RechargeOrder, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if s.cfg.MaxAmount > 0 && amount > s.cfg.MaxAmount {
		return nil, apperror.Validation(fmt.Sprintf("Recharge amount must not exceed %d", s.cfg.MaxAmount))
	}

	now := s.now().UTC()
	order := &domain.RechargeOrder{
		ID:        "order_" + uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.OrderTTL),
	}
	if err := s.orders.Save(ctx, order, s.cfg.OrderTTL); err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("save order: %w", err))
	}

	s.log.Info().Str("order_id", order.ID).Str("user_id", userID.String()).Int64("amount", amount).Msg("recharge order created")
	return order, nil
}

// Verify checks the gateway signature over "order_id|payment_id" and credits the order amount.
func (s *RechargeService) Verify(ctx context.Context, req ports.RechargeVerifyRequest) (*ports.RechargeResult, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, apperror.Validation("order_id, payment_id and signature are required")
	}
	if !s.sigSvc.Verify(s.cfg.GatewaySecret, req.OrderID+"|"+req.PaymentID, req.Signature) {
		s.log.Warn().Str("order_id", req.OrderID).Str("user_id", req.UserID.String()).Msg("payment signature mismatch")
		return nil, apperror.ErrInvalidSignature()
	}

	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("load order: %w", err))
	}
	if order == nil || order.UserID != req.UserID {
		return nil, apperror.ErrNotFound("Order")
	}

	fresh, err := s.nonceStore.CheckAndSet(ctx, paymentReplayScope, req.PaymentID, s.cfg.ReplayTTL)
	if err != nil {
		return nil, apperror.ErrTransient(fmt.Errorf("payment replay check: %w", err))
	}
	if !fresh {
		return nil, apperror.ErrDuplicatePayment()
	}

	newBalance, err := s.ledger.Credit(ctx, ports.LedgerEntry{
		UserID:      order.UserID,
		Amount:      order.Amount,
		Description: domain.RechargeDescription,
		ExternalRef: req.PaymentID,
	})
	if err != nil {
		// The credit rolled back, so the gateway may retry with the same payment id.
		s.log.Error().Err(err).Str("payment_id", req.PaymentID).Str("order_id", order.ID).Msg("credit after verified payment failed")
		if relErr := s.nonceStore.Release(context.WithoutCancel(ctx), paymentReplayScope, req.PaymentID); relErr != nil {
			s.log.Error().Err(relErr).Str("payment_id", req.PaymentID).Msg("failed to release payment replay mark")
		}
		return nil, err
	}

	if err := s.orders.Delete(ctx, order.ID); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID).Msg("failed to delete settled order")
	}

	return &ports.RechargeResult{
		OrderID:    order.ID,
		PaymentID:  req.PaymentID,
		Amount:     order.Amount,
		NewBalance: newBalance,
	}, nil
}
