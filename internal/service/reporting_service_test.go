package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/internal/core/ports/mocks"
	"rfid-fare-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reportingTestDeps struct {
	svc      ports.ReportingService
	ledger   *mocks.MockLedger
	userRepo *mocks.MockUserRepository
	txRepo   *mocks.MockTransactionRepository
	identity *mocks.MockIdentityIndex
}

func setupReportingService(t *testing.T) *reportingTestDeps {
	ctrl := gomock.NewController(t)
	d := &reportingTestDeps{
		ledger:   mocks.NewMockLedger(ctrl),
		userRepo: mocks.NewMockUserRepository(ctrl),
		txRepo:   mocks.NewMockTransactionRepository(ctrl),
		identity: mocks.NewMockIdentityIndex(ctrl),
	}
	d.svc = NewReportingService(d.ledger, d.userRepo, d.txRepo, d.identity)
	return d
}

func TestReportingService_GetWallet_WithCard(t *testing.T) {
	d := setupReportingService(t)
	ctx := context.Background()
	userID := uuid.New()
	enc, digest := "enc_card", "digest"
	updated := time.Now().UTC()

	d.userRepo.EXPECT().GetByID(ctx, userID).Return(&domain.User{ID: userID, CardUIDEnc: &enc, CardUIDDigest: &digest}, nil)
	d.ledger.EXPECT().GetOrCreate(ctx, userID).Return(&domain.Wallet{UserID: userID, Balance: 250, UpdatedAt: updated}, nil)
	d.identity.EXPECT().Reveal("enc_card").Return(domain.Decrypted("04A1B2C3"))

	view, err := d.svc.GetWallet(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(250), view.Balance)
	assert.Equal(t, updated, view.UpdatedAt)
	assert.True(t, view.CardLinked)
	assert.Equal(t, "****B2C3", view.CardUIDMasked)
}

func TestReportingService_GetWallet_FallbackCardHidden(t *testing.T) {
	d := setupReportingService(t)
	ctx := context.Background()
	userID := uuid.New()
	raw, digest := "04A1B2C3", "digest"

	d.userRepo.EXPECT().GetByID(ctx, userID).Return(&domain.User{ID: userID, CardUIDEnc: &raw, CardUIDDigest: &digest}, nil)
	d.ledger.EXPECT().GetOrCreate(ctx, userID).Return(&domain.Wallet{UserID: userID}, nil)
	d.identity.EXPECT().Reveal(raw).Return(domain.Fallback(raw))

	view, err := d.svc.GetWallet(ctx, userID)
	require.NoError(t, err)
	assert.True(t, view.CardLinked)
	assert.Empty(t, view.CardUIDMasked)
}

func TestReportingService_GetWallet_NoCard(t *testing.T) {
	d := setupReportingService(t)
	ctx := context.Background()
	userID := uuid.New()

	d.userRepo.EXPECT().GetByID(ctx, userID).Return(&domain.User{ID: userID}, nil)
	d.ledger.EXPECT().GetOrCreate(ctx, userID).Return(&domain.Wallet{UserID: userID, Balance: 0}, nil)

	view, err := d.svc.GetWallet(ctx, userID)
	require.NoError(t, err)
	assert.False(t, view.CardLinked)
	assert.Zero(t, view.Balance)
}

func TestReportingService_GetWallet_UnknownUser(t *testing.T) {
	d := setupReportingService(t)
	ctx := context.Background()
	userID := uuid.New()

	d.userRepo.EXPECT().GetByID(ctx, userID).Return(nil, nil)

	_, err := d.svc.GetWallet(ctx, userID)
	assertAppError(t, err, apperror.CodeNotFound)
}

func TestReportingService_ListTransactions(t *testing.T) {
	d := setupReportingService(t)
	ctx := context.Background()
	params := ports.TransactionListParams{UserID: uuid.New(), Page: 1, PageSize: 20}
	expected := []domain.Transaction{{ID: uuid.New(), Amount: 20}}

	d.txRepo.EXPECT().List(ctx, params).Return(expected, int64(1), nil)

	txns, total, err := d.svc.ListTransactions(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, expected, txns)
}

func TestReportingService_ListTransactions_InvalidRange(t *testing.T) {
	d := setupReportingService(t)
	from := time.Now()
	to := from.Add(-time.Hour)

	_, _, err := d.svc.ListTransactions(context.Background(), ports.TransactionListParams{UserID: uuid.New(), From: &from, To: &to})
	assertAppError(t, err, apperror.CodeValidation)
}

func TestReportingService_ListTransactions_RepoError(t *testing.T) {
	d := setupReportingService(t)
	d.txRepo.EXPECT().List(gomock.Any(), gomock.Any()).Return(nil, int64(0), errors.New("db error"))

	_, _, err := d.svc.ListTransactions(context.Background(), ports.TransactionListParams{UserID: uuid.New()})
	assertAppError(t, err, apperror.CodeInternal)
}
