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

type fareTestDeps struct {
	svc         *FareService
	identity    *mocks.MockIdentityIndex
	ledger      *mocks.MockLedger
	broadcaster *mocks.MockBroadcaster
	conductor   domain.Identity
}

func setupFareService(t *testing.T, window time.Duration) *fareTestDeps {
	ctrl := gomock.NewController(t)
	d := &fareTestDeps{
		identity:    mocks.NewMockIdentityIndex(ctrl),
		ledger:      mocks.NewMockLedger(ctrl),
		broadcaster: mocks.NewMockBroadcaster(ctrl),
		conductor:   domain.Identity{UserID: uuid.New(), Role: domain.RoleConductor},
	}
	d.svc = NewFareService(d.identity, d.ledger, d.broadcaster, window, newTestLogger())
	t.Cleanup(d.svc.Close)
	return d
}

func (d *fareTestDeps) startScanning(t *testing.T) {
	t.Helper()
	d.broadcaster.EXPECT().SetScanMode(gomock.Any(), true).Return(nil)
	snap, err := d.svc.StartScanning(context.Background(), d.conductor)
	require.NoError(t, err)
	require.Equal(t, domain.FareStateScanning, snap.State)
}

func TestFareService_RequiresConductor(t *testing.T) {
	d := setupFareService(t, time.Second)
	ctx := context.Background()
	passenger := domain.Identity{UserID: uuid.New(), Role: domain.RolePassenger}

	_, err := d.svc.StartScanning(ctx, passenger)
	assertAppError(t, err, apperror.CodeForbidden)
	_, err = d.svc.StopScanning(ctx, domain.Identity{})
	assertAppError(t, err, apperror.CodeUnauthorized)
	_, err = d.svc.Reset(ctx, passenger)
	assertAppError(t, err, apperror.CodeForbidden)
	_, err = d.svc.Settle(ctx, passenger, ports.SettleRequest{UID: "A", Fare: 20})
	assertAppError(t, err, apperror.CodeForbidden)

	assert.Equal(t, domain.FareStateIdle, d.svc.State().State)
}

func TestFareService_StartStop(t *testing.T) {
	d := setupFareService(t, time.Second)
	d.startScanning(t)
	assert.True(t, d.svc.State().Scanning)

	d.broadcaster.EXPECT().SetScanMode(gomock.Any(), false).Return(nil)
	snap, err := d.svc.StopScanning(context.Background(), d.conductor)
	require.NoError(t, err)
	assert.Equal(t, domain.FareStateIdle, snap.State)
	assert.False(t, snap.Scanning)
}

func TestFareService_StartScanning_BroadcastFailure(t *testing.T) {
	d := setupFareService(t, time.Second)
	d.broadcaster.EXPECT().SetScanMode(gomock.Any(), true).Return(errors.New("broker closed"))

	_, err := d.svc.StartScanning(context.Background(), d.conductor)
	assertAppError(t, err, apperror.CodeTransientIO)

	snap := d.svc.State()
	assert.Equal(t, domain.FareStateIdle, snap.State)
	assert.False(t, snap.Scanning)
}

func TestFareService_StopScanning_BroadcastFailureKeepsWindowOpen(t *testing.T) {
	d := setupFareService(t, time.Second)
	d.startScanning(t)

	d.broadcaster.EXPECT().SetScanMode(gomock.Any(), false).Return(errors.New("broker closed"))
	_, err := d.svc.StopScanning(context.Background(), d.conductor)
	assertAppError(t, err, apperror.CodeTransientIO)

	snap := d.svc.State()
	assert.Equal(t, domain.FareStateScanning, snap.State)
	assert.True(t, snap.Scanning)

	d.broadcaster.EXPECT().SetScanMode(gomock.Any(), false).Return(nil)
	snap, err = d.svc.StopScanning(context.Background(), d.conductor)
	require.NoError(t, err)
	assert.Equal(t, domain.FareStateIdle, snap.State)
	assert.False(t, snap.Scanning)
}

func TestFareService_ResolveTap(t *testing.T) {
	ctx := context.Background()
	user := &domain.User{ID: uuid.New(), Name: "Rider", WalletBalance: 100}

	t.Run("found while scanning", func(t *testing.T) {
		d := setupFareService(t, time.Second)
		d.startScanning(t)
		d.identity.EXPECT().ResolveByCard(ctx, "04a1").Return(user, nil)

		event, err := d.svc.ResolveTap(ctx, "04a1")
		require.NoError(t, err)
		assert.True(t, event.Found())
		assert.Equal(t, "04A1", event.UID)

		snap := d.svc.State()
		assert.Equal(t, domain.FareStateFound, snap.State)
		assert.Equal(t, "04A1", snap.PendingUID)
		assert.Equal(t, "Rider", snap.PendingName)
		assert.True(t, snap.PendingFound)
	})

	t.Run("unknown card", func(t *testing.T) {
		d := setupFareService(t, time.Second)
		d.startScanning(t)
		d.identity.EXPECT().ResolveByCard(ctx, "FFFF").Return(nil, apperror.ErrNotFound("Card"))

		event, err := d.svc.ResolveTap(ctx, "FFFF")
		require.NoError(t, err)
		assert.False(t, event.Found())
		assert.Equal(t, domain.FareStateNotFound, d.svc.State().State)
	})

	t.Run("outside scanning window", func(t *testing.T) {
		d := setupFareService(t, time.Second)
		d.identity.EXPECT().ResolveByCard(ctx, "04A1").Return(user, nil)

		event, err := d.svc.ResolveTap(ctx, "04A1")
		require.NoError(t, err)
		assert.True(t, event.Found())
		assert.Equal(t, domain.FareStateIdle, d.svc.State().State)
	})

	t.Run("storage failure", func(t *testing.T) {
		d := setupFareService(t, time.Second)
		d.identity.EXPECT().ResolveByCard(ctx, "04A1").Return(nil, apperror.ErrTransient(context.DeadlineExceeded))

		_, err := d.svc.ResolveTap(ctx, "04A1")
		assertAppError(t, err, apperror.CodeTransientIO)
	})
}

func TestFareService_Settle_Success(t *testing.T) {
	d := setupFareService(t, 30*time.Millisecond)
	ctx := context.Background()
	d.startScanning(t)

	user := &domain.User{ID: uuid.New(), Name: "Rider", WalletBalance: 100}
	stats := &domain.FareStats{Count: 1, TotalAmount: 20, DistinctUsers: 1}

	d.identity.EXPECT().ResolveByCard(ctx, "04a1").Return(user, nil)
	d.ledger.EXPECT().Debit(ctx, ports.LedgerEntry{UserID: user.ID, Amount: 20, Description: domain.FareDescription}).Return(int64(80), nil)
	d.ledger.EXPECT().DailyStats(ctx).Return(stats, nil)
	d.broadcaster.EXPECT().BroadcastSettlement(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, s *domain.Settlement) error {
			assert.Equal(t, int64(80), s.NewBalance)
			return nil
		})

	settlement, err := d.svc.Settle(ctx, d.conductor, ports.SettleRequest{UID: "04a1", Fare: 20})
	require.NoError(t, err)
	assert.Equal(t, "04A1", settlement.UID)
	assert.Equal(t, "Rider", settlement.PassengerName)
	assert.Equal(t, int64(20), settlement.FareDeducted)
	assert.Equal(t, int64(80), settlement.NewBalance)
	assert.Equal(t, stats, settlement.Stats)

	snap := d.svc.State()
	assert.Equal(t, domain.FareStateSettled, snap.State)
	assert.Equal(t, settlement, snap.LastSettled)

	assert.Eventually(t, func() bool {
		return d.svc.State().State == domain.FareStateScanning
	}, time.Second, 5*time.Millisecond, "display window should return to scanning")
}

func TestFareService_Settle_InsufficientFunds(t *testing.T) {
	d := setupFareService(t, 0)
	ctx := context.Background()
	user := &domain.User{ID: uuid.New(), Name: "Rider"}

	d.identity.EXPECT().ResolveByCard(ctx, "04A1").Return(user, nil)
	d.ledger.EXPECT().Debit(ctx, gomock.Any()).Return(int64(0), apperror.ErrInsufficientFunds(10))

	_, err := d.svc.Settle(ctx, d.conductor, ports.SettleRequest{UID: "04A1", Fare: 20})
	assertAppError(t, err, apperror.CodeInsufficientFunds)

	// Zero display window returns straight to Idle
	assert.Equal(t, domain.FareStateIdle, d.svc.State().State)
	assert.Nil(t, d.svc.State().LastSettled)
}

func TestFareService_Settle_RejectedStateVisible(t *testing.T) {
	d := setupFareService(t, time.Hour)
	ctx := context.Background()
	user := &domain.User{ID: uuid.New(), Name: "Rider"}

	d.identity.EXPECT().ResolveByCard(ctx, "04A1").Return(user, nil)
	d.ledger.EXPECT().Debit(ctx, gomock.Any()).Return(int64(0), apperror.ErrInsufficientFunds(0))

	_, err := d.svc.Settle(ctx, d.conductor, ports.SettleRequest{UID: "04A1", Fare: 20})
	require.Error(t, err)
	assert.Equal(t, domain.FareStateRejected, d.svc.State().State)

	snap, err := d.svc.Reset(ctx, d.conductor)
	require.NoError(t, err)
	assert.Equal(t, domain.FareStateIdle, snap.State)
}

func TestFareService_Settle_Blocked(t *testing.T) {
	d := setupFareService(t, time.Second)
	ctx := context.Background()

	d.identity.EXPECT().ResolveByCard(ctx, "04A1").Return(&domain.User{ID: uuid.New(), IsBlocked: true}, nil)

	_, err := d.svc.Settle(ctx, d.conductor, ports.SettleRequest{UID: "04A1", Fare: 20})
	assertAppError(t, err, apperror.CodeForbidden)
}

func TestFareService_Settle_InvalidInput(t *testing.T) {
	d := setupFareService(t, time.Second)
	ctx := context.Background()

	_, err := d.svc.Settle(ctx, d.conductor, ports.SettleRequest{UID: "04A1", Fare: 0})
	assertAppError(t, err, apperror.CodeValidation)

	d.identity.EXPECT().ResolveByCard(ctx, "UNKNOWN").Return(nil, apperror.ErrNotFound("Card"))
	_, err = d.svc.Settle(ctx, d.conductor, ports.SettleRequest{UID: "UNKNOWN", Fare: 20})
	assertAppError(t, err, apperror.CodeNotFound)
}

func TestFareService_Settle_BestEffortExtras(t *testing.T) {
	d := setupFareService(t, time.Second)
	ctx := context.Background()
	user := &domain.User{ID: uuid.New(), Name: "Rider"}

	d.identity.EXPECT().ResolveByCard(ctx, "04A1").Return(user, nil)
	d.ledger.EXPECT().Debit(ctx, gomock.Any()).Return(int64(5), nil)
	d.ledger.EXPECT().DailyStats(ctx).Return(nil, errors.New("stats down"))
	d.broadcaster.EXPECT().BroadcastSettlement(ctx, gomock.Any()).Return(errors.New("no dashboards"))

	settlement, err := d.svc.Settle(ctx, d.conductor, ports.SettleRequest{UID: "04A1", Fare: 15})
	require.NoError(t, err)
	assert.Nil(t, settlement.Stats)
	assert.Equal(t, int64(5), settlement.NewBalance)
}

func TestFareService_TapDuringDisplayWindow(t *testing.T) {
	d := setupFareService(t, 40*time.Millisecond)
	ctx := context.Background()
	d.startScanning(t)

	rider := &domain.User{ID: uuid.New(), Name: "Rider"}
	next := &domain.User{ID: uuid.New(), Name: "Next"}

	d.identity.EXPECT().ResolveByCard(ctx, "A1").Return(rider, nil)
	d.ledger.EXPECT().Debit(ctx, gomock.Any()).Return(int64(80), nil)
	d.ledger.EXPECT().DailyStats(ctx).Return(&domain.FareStats{}, nil)
	d.broadcaster.EXPECT().BroadcastSettlement(ctx, gomock.Any()).Return(nil)
	_, err := d.svc.Settle(ctx, d.conductor, ports.SettleRequest{UID: "A1", Fare: 20})
	require.NoError(t, err)

	d.identity.EXPECT().ResolveByCard(ctx, "B2").Return(next, nil)
	_, err = d.svc.ResolveTap(ctx, "B2")
	require.NoError(t, err)
	assert.Equal(t, domain.FareStateFound, d.svc.State().State)

	// The stale display timer must not clear the new tap
	time.Sleep(80 * time.Millisecond)
	snap := d.svc.State()
	assert.Equal(t, domain.FareStateFound, snap.State)
	assert.Equal(t, "Next", snap.PendingName)
}
