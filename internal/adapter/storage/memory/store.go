// Package memory is an in-process implementation of the repository ports.
// It backs the "memory" database driver used for local runs and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store holds all tables. Writes made inside a Tx are buffered and applied
// atomically on Commit; GetForUpdate takes a per-user lock held until the Tx ends.
type Store struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]*userRow
	digests map[string]uuid.UUID
	wallets map[uuid.UUID]*walletRow
	txns    []txnRow
	audits  []auditRow

	locksMu sync.Mutex
	locks   map[uuid.UUID]chan struct{}

	now func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:   make(map[uuid.UUID]*userRow),
		digests: make(map[string]uuid.UUID),
		wallets: make(map[uuid.UUID]*walletRow),
		locks:   make(map[uuid.UUID]chan struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Transactor returns a ports.DBTransactor backed by the store.
func (s *Store) Transactor() *Transactor { return &Transactor{store: s} }

// Users returns a ports.UserRepository backed by the store.
func (s *Store) Users() *UserRepo { return &UserRepo{store: s} }

// Wallets returns a ports.WalletRepository backed by the store.
func (s *Store) Wallets() *WalletRepo { return &WalletRepo{store: s} }

// Transactions returns a ports.TransactionRepository backed by the store.
func (s *Store) Transactions() *TransactionRepo { return &TransactionRepo{store: s} }

// Audit returns a ports.AuditRepository backed by the store.
func (s *Store) Audit() *AuditRepo { return &AuditRepo{store: s} }

func (s *Store) userLock(id uuid.UUID) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[id] = l
	}
	return l
}

// --- Transactions ---

var errForeignTx = errors.New("memory: transaction was not started by this store")

// Transactor begins buffered transactions.
type Transactor struct {
	store *Store
}

// Begin starts a new transaction.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{store: t.store, held: make(map[uuid.UUID]chan struct{})}, nil
}

// Tx is a pgx.Tx whose writes are applied on Commit. Only Commit and Rollback
// are meaningful; the embedded interface is nil.
type Tx struct {
	pgx.Tx

	store *Store
	mu    sync.Mutex
	ops   []func()
	held  map[uuid.UUID]chan struct{}
	done  bool
}

// Commit applies buffered writes and releases row locks.
func (t *Tx) Commit(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.store.mu.Lock()
	for _, op := range t.ops {
		op()
	}
	t.store.mu.Unlock()
	t.finishLocked()
	return nil
}

// Rollback discards buffered writes and releases row locks.
func (t *Tx) Rollback(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.finishLocked()
	return nil
}

func (t *Tx) finishLocked() {
	t.ops = nil
	for id, l := range t.held {
		<-l
		delete(t.held, id)
	}
	t.done = true
}

func (t *Tx) lock(ctx context.Context, id uuid.UUID) error {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return pgx.ErrTxClosed
	}
	if _, ok := t.held[id]; ok {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	l := t.store.userLock(id)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	t.mu.Lock()
	t.held[id] = l
	t.mu.Unlock()
	return nil
}

func (t *Tx) enqueue(op func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return pgx.ErrTxClosed
	}
	t.ops = append(t.ops, op)
	return nil
}

func asTx(tx pgx.Tx) (*Tx, error) {
	mtx, ok := tx.(*Tx)
	if !ok {
		return nil, errForeignTx
	}
	return mtx, nil
}
