package postgres

import (
	"context"
	"testing"
	"time"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransaction(userID uuid.UUID) *domain.Transaction {
	return &domain.Transaction{
		ID:             uuid.New(),
		UserID:         userID,
		Kind:           domain.TransactionKindDebit,
		Amount:         20,
		Description:    domain.FareDescription,
		ExternalRefEnc: nil,
		BalanceAfter:   80,
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func txColumns() []string {
	return []string{"id", "user_id", "kind", "amount", "description", "external_ref_enc", "balance_after", "created_at"}
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.UserID, "DEBIT", txn.Amount, txn.Description,
			txn.ExternalRefEnc, txn.BalanceAfter, txn.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.Create(context.Background(), tx, txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	userID := uuid.New()
	txn := newTestTransaction(userID)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM transactions WHERE user_id .+ ORDER BY created_at DESC").
		WithArgs(userID, 20, 0).
		WillReturnRows(pgxmock.NewRows(txColumns()).AddRow(
			txn.ID, txn.UserID, "DEBIT", txn.Amount, txn.Description,
			txn.ExternalRefEnc, txn.BalanceAfter, txn.CreatedAt,
		))

	txns, total, err := repo.List(context.Background(), ports.TransactionListParams{UserID: userID, Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TransactionKindDebit, txns[0].Kind)
	assert.Equal(t, int64(80), txns[0].BalanceAfter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_List_WithFilters(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	userID := uuid.New()
	kind := domain.TransactionKindCredit
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT COUNT.+kind = \\$2 AND created_at >= \\$3 AND created_at <= \\$4").
		WithArgs(userID, "CREDIT", from, to).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	mock.ExpectQuery("SELECT .+ LIMIT \\$5 OFFSET \\$6").
		WithArgs(userID, "CREDIT", from, to, 10, 10).
		WillReturnRows(pgxmock.NewRows(txColumns()))

	txns, total, err := repo.List(context.Background(), ports.TransactionListParams{
		UserID: userID, Kind: &kind, From: &from, To: &to, Page: 2, PageSize: 10,
	})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, txns)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetFareStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+COUNT\\(DISTINCT user_id\\).+FROM transactions").
		WithArgs("Fare collection%", since).
		WillReturnRows(pgxmock.NewRows([]string{"scans", "collected", "passengers"}).AddRow(int64(12), int64(240), int64(9)))

	stats, err := repo.GetFareStats(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.Count)
	assert.Equal(t, int64(240), stats.TotalAmount)
	assert.Equal(t, int64(9), stats.DistinctUsers)
	assert.NoError(t, mock.ExpectationsWereMet())
}
