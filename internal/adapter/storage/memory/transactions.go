package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type txnRow struct {
	domain.Transaction
}

type auditRow struct {
	domain.AuditLog
}

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	store *Store
}

// Create appends the transaction when tx commits.
func (r *TransactionRepo) Create(_ context.Context, tx pgx.Tx, t *domain.Transaction) error {
	mtx, err := asTx(tx)
	if err != nil {
		return err
	}
	if t.Amount <= 0 {
		return fmt.Errorf("insert transaction: amount must be positive")
	}
	row := txnRow{Transaction: *t}
	return mtx.enqueue(func() {
		r.store.txns = append(r.store.txns, row)
	})
}

// List returns the user's transactions, newest first.
func (r *TransactionRepo) List(_ context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []domain.Transaction
	for i := len(r.store.txns) - 1; i >= 0; i-- {
		t := r.store.txns[i].Transaction
		if t.UserID != params.UserID {
			continue
		}
		if params.Kind != nil && t.Kind != *params.Kind {
			continue
		}
		if params.From != nil && t.CreatedAt.Before(*params.From) {
			continue
		}
		if params.To != nil && t.CreatedAt.After(*params.To) {
			continue
		}
		result = append(result, t)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start < 0 || start >= len(result) {
		return []domain.Transaction{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

// GetFareStats aggregates fare debits created at or after since.
func (r *TransactionRepo) GetFareStats(_ context.Context, since time.Time) (*domain.FareStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stats := &domain.FareStats{}
	users := make(map[uuid.UUID]struct{})
	for _, row := range r.store.txns {
		t := row.Transaction
		if !t.IsFare() || t.CreatedAt.Before(since) {
			continue
		}
		stats.Count++
		stats.TotalAmount += t.Amount
		users[t.UserID] = struct{}{}
	}
	stats.DistinctUsers = int64(len(users))
	return stats, nil
}

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	store *Store
}

// Create appends an audit entry.
func (r *AuditRepo) Create(_ context.Context, entry *domain.AuditLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.audits = append(r.store.audits, auditRow{AuditLog: *entry})
	return nil
}

// Entries returns a copy of all audit entries.
func (r *AuditRepo) Entries() []domain.AuditLog {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	out := make([]domain.AuditLog, 0, len(r.store.audits))
	for _, row := range r.store.audits {
		out = append(out, row.AuditLog)
	}
	return out
}
