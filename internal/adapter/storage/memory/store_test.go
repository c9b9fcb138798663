package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.UserRepository        = (*UserRepo)(nil)
	_ ports.WalletRepository      = (*WalletRepo)(nil)
	_ ports.TransactionRepository = (*TransactionRepo)(nil)
	_ ports.AuditRepository       = (*AuditRepo)(nil)
	_ ports.DBTransactor          = (*Transactor)(nil)
)

func newUser(t *testing.T, s *Store) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Name: "Rider", Role: domain.RolePassenger}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func TestTx_CommitAppliesBufferedWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s)

	tx, err := s.Transactor().Begin(ctx)
	require.NoError(t, err)

	w, err := s.Wallets().GetForUpdate(ctx, tx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Balance)

	require.NoError(t, s.Wallets().UpdateBalance(ctx, tx, u.ID, 500))
	require.NoError(t, s.Users().UpdateWalletBalance(ctx, tx, u.ID, 500))

	// Not visible before commit
	w, err = s.Wallets().GetOrCreate(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Balance)

	require.NoError(t, tx.Commit(ctx))
	assert.ErrorIs(t, tx.Rollback(ctx), pgx.ErrTxClosed)

	w, err = s.Wallets().GetOrCreate(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), w.Balance)

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got.WalletBalance)
}

func TestTx_RollbackDiscardsWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s)

	tx, err := s.Transactor().Begin(ctx)
	require.NoError(t, err)
	_, err = s.Wallets().GetForUpdate(ctx, tx, u.ID)
	require.NoError(t, err)
	require.NoError(t, s.Wallets().UpdateBalance(ctx, tx, u.ID, 900))
	require.NoError(t, s.Transactions().Create(ctx, tx, &domain.Transaction{
		ID: uuid.New(), UserID: u.ID, Kind: domain.TransactionKindCredit, Amount: 900,
	}))
	require.NoError(t, tx.Rollback(ctx))

	w, err := s.Wallets().GetOrCreate(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), w.Balance)

	txns, total, err := s.Transactions().List(ctx, ports.TransactionListParams{UserID: u.ID, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, txns)
}

func TestTx_GetForUpdateBlocksSecondLocker(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s)

	tx1, err := s.Transactor().Begin(ctx)
	require.NoError(t, err)
	_, err = s.Wallets().GetForUpdate(ctx, tx1, u.ID)
	require.NoError(t, err)

	tx2, err := s.Transactor().Begin(ctx)
	require.NoError(t, err)
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = s.Wallets().GetForUpdate(short, tx2, u.ID)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx1.Commit(ctx))

	_, err = s.Wallets().GetForUpdate(ctx, tx2, u.ID)
	require.NoError(t, err)
	require.NoError(t, tx2.Rollback(ctx))
}

func TestWalletRepo_RejectsNegativeBalance(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s)

	tx, err := s.Transactor().Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx) //nolint:errcheck

	assert.Error(t, s.Wallets().UpdateBalance(ctx, tx, u.ID, -1))
}

func TestWalletRepo_ForeignTx(t *testing.T) {
	s := New()
	_, err := s.Wallets().GetForUpdate(context.Background(), nil, uuid.New())
	assert.ErrorIs(t, err, errForeignTx)
}

func TestUserRepo_LinkCard(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := newUser(t, s)
	bob := newUser(t, s)

	require.NoError(t, s.Users().LinkCard(ctx, alice.ID, "enc-a", "digest-a"))

	got, err := s.Users().GetByCardDigest(ctx, "digest-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "enc-a", *got.CardUIDEnc)

	assert.ErrorIs(t, s.Users().LinkCard(ctx, bob.ID, "enc-b", "digest-a"), domain.ErrCardDigestTaken)
	assert.ErrorIs(t, s.Users().LinkCard(ctx, alice.ID, "enc-c", "digest-c"), domain.ErrCardAlreadyLinked)
	assert.ErrorIs(t, s.Users().LinkCard(ctx, alice.ID, "enc-a", "digest-a"), domain.ErrCardAlreadyLinked)
	assert.ErrorIs(t, s.Users().LinkCard(ctx, uuid.New(), "enc-x", "digest-x"), domain.ErrUserNotFound)

	missing, err := s.Users().GetByCardDigest(ctx, "digest-c")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserRepo_LinkCard_ConcurrentSameDigest(t *testing.T) {
	s := New()
	ctx := context.Background()

	const n = 20
	users := make([]*domain.User, n)
	for i := range users {
		users[i] = newUser(t, s)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for _, u := range users {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			if err := s.Users().LinkCard(ctx, id, "enc", "shared"); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(u.ID)
	}
	wg.Wait()
	assert.Equal(t, 1, success)
}

func TestUserRepo_GetByID_ReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := newUser(t, s)

	got, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	got.Name = "changed"

	again, err := s.Users().GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Rider", again.Name)

	none, err := s.Users().GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestTransactionRepo_ListAndStats(t *testing.T) {
	s := New()
	ctx := context.Background()
	alice := newUser(t, s)
	bob := newUser(t, s)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []domain.Transaction{
		{UserID: alice.ID, Kind: domain.TransactionKindCredit, Amount: 1000, Description: domain.RechargeDescription, CreatedAt: base},
		{UserID: alice.ID, Kind: domain.TransactionKindDebit, Amount: 20, Description: domain.FareDescription, CreatedAt: base.Add(time.Minute)},
		{UserID: alice.ID, Kind: domain.TransactionKindDebit, Amount: 20, Description: domain.FareDescription, CreatedAt: base.Add(2 * time.Minute)},
		{UserID: bob.ID, Kind: domain.TransactionKindDebit, Amount: 15, Description: domain.FareDescription, CreatedAt: base.Add(3 * time.Minute)},
		{UserID: bob.ID, Kind: domain.TransactionKindDebit, Amount: 99, Description: domain.FareDescription, CreatedAt: base.Add(-24 * time.Hour)},
		{UserID: bob.ID, Kind: domain.TransactionKindDebit, Amount: 5, Description: "Adjustment", CreatedAt: base},
	}
	tx, err := s.Transactor().Begin(ctx)
	require.NoError(t, err)
	for i := range entries {
		entries[i].ID = uuid.New()
		require.NoError(t, s.Transactions().Create(ctx, tx, &entries[i]))
	}
	require.NoError(t, tx.Commit(ctx))

	t.Run("newest first with paging", func(t *testing.T) {
		txns, total, err := s.Transactions().List(ctx, ports.TransactionListParams{UserID: alice.ID, Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, txns, 2)
		assert.Equal(t, entries[2].ID, txns[0].ID)
		assert.Equal(t, entries[1].ID, txns[1].ID)

		txns, _, err = s.Transactions().List(ctx, ports.TransactionListParams{UserID: alice.ID, Page: 2, PageSize: 2})
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, entries[0].ID, txns[0].ID)
	})

	t.Run("kind filter", func(t *testing.T) {
		kind := domain.TransactionKindCredit
		txns, total, err := s.Transactions().List(ctx, ports.TransactionListParams{UserID: alice.ID, Kind: &kind, Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, domain.TransactionKindCredit, txns[0].Kind)
	})

	t.Run("date range", func(t *testing.T) {
		from := base.Add(30 * time.Second)
		to := base.Add(90 * time.Second)
		txns, total, err := s.Transactions().List(ctx, ports.TransactionListParams{UserID: alice.ID, From: &from, To: &to, Page: 1, PageSize: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		assert.Equal(t, entries[1].ID, txns[0].ID)
	})

	t.Run("fare stats since midnight", func(t *testing.T) {
		stats, err := s.Transactions().GetFareStats(ctx, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats.Count)
		assert.Equal(t, int64(55), stats.TotalAmount)
		assert.Equal(t, int64(2), stats.DistinctUsers)
	})
}

func TestAuditRepo_Create(t *testing.T) {
	s := New()
	uid := uuid.New()
	require.NoError(t, s.Audit().Create(context.Background(), &domain.AuditLog{
		ID: uuid.New(), UserID: &uid, Action: domain.AuditActionLinkCard,
	}))
	entries := s.Audit().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditActionLinkCard, entries[0].Action)
}
