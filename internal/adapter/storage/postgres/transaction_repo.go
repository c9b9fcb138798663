package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const transactionColumns = `id, user_id, kind, amount, description, external_ref_enc, balance_after, created_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create appends a transaction within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.UserID, string(t.Kind), t.Amount, t.Description,
		t.ExternalRefEnc, t.BalanceAfter, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// List fetches a user's transactions with filtering and pagination, newest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
	args = append(args, params.UserID)
	argIdx++

	if params.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, string(*params.Kind))
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		transactionColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := make([]domain.Transaction, 0, params.PageSize)
	for rows.Next() {
		t := domain.Transaction{}
		var kind string
		err := rows.Scan(
			&t.ID, &t.UserID, &kind, &t.Amount, &t.Description,
			&t.ExternalRefEnc, &t.BalanceAfter, &t.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		t.Kind = domain.TransactionKind(kind)
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// GetFareStats aggregates fare debits created at or after since.
func (r *TransactionRepo) GetFareStats(ctx context.Context, since time.Time) (*domain.FareStats, error) {
	query := `SELECT
		COUNT(*) AS scans,
		COALESCE(SUM(amount), 0) AS collected,
		COUNT(DISTINCT user_id) AS passengers
		FROM transactions
		WHERE kind = 'DEBIT' AND description LIKE $1 AND created_at >= $2`

	stats := &domain.FareStats{}
	err := r.pool.QueryRow(ctx, query, domain.FareDescriptionPrefix+"%", since).
		Scan(&stats.Count, &stats.TotalAmount, &stats.DistinctUsers)
	if err != nil {
		return nil, fmt.Errorf("get fare stats: %w", err)
	}
	return stats, nil
}
