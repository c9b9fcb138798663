package ports

import (
	"context"
	"time"

	"rfid-fare-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// DigestService computes the deterministic search digest of a value.
type DigestService interface {
	Digest(value string) string
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService handles JWT token operations for the auth collaborator boundary.
type TokenService interface {
	Generate(userID uuid.UUID, role domain.Role) (string, time.Time, error)
	Validate(tokenString string) (*domain.Identity, error)
}

// NonceStore manages one-time values for replay prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists in scope, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
	// Release forgets a nonce so the operation it guarded can be retried.
	Release(ctx context.Context, scope string, nonce string) error
}

// OrderStore keeps pending recharge orders until they are verified or expire.
type OrderStore interface {
	Save(ctx context.Context, order *domain.RechargeOrder, ttl time.Duration) error
	Get(ctx context.Context, orderID string) (*domain.RechargeOrder, error) // nil if absent
	Delete(ctx context.Context, orderID string) error
}

// Broadcaster pushes workflow events to connected terminals and devices.
type Broadcaster interface {
	SetScanMode(ctx context.Context, enabled bool) error
	BroadcastSettlement(ctx context.Context, settlement *domain.Settlement) error
}

// --- Service Ports (Business Logic) ---

// IdentityIndex resolves cards to users without storing card UIDs in clear.
type IdentityIndex interface {
	Hash(value string) string
	Encrypt(value string) (string, error)
	Reveal(ciphertext string) domain.Revealed
	LinkCard(ctx context.Context, userID uuid.UUID, rawUID string) error
	ResolveByCard(ctx context.Context, rawUID string) (*domain.User, error)
	Profile(ctx context.Context, userID uuid.UUID) (*UserProfile, error)
}

// UserProfile is the display form of an identity record.
type UserProfile struct {
	ID            uuid.UUID
	Name          string
	Role          domain.Role
	Email         string
	Phone         string
	CardLinked    bool
	CardUIDMasked string
	WalletBalance int64
	IsBlocked     bool
}

// Ledger owns wallet balances and the transaction log.
type Ledger interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	Credit(ctx context.Context, entry LedgerEntry) (int64, error)
	Debit(ctx context.Context, entry LedgerEntry) (int64, error)
	DailyStats(ctx context.Context) (*domain.FareStats, error)
}

// LedgerEntry holds validated input for one balance mutation.
type LedgerEntry struct {
	UserID      uuid.UUID
	Amount      int64
	Description string
	ExternalRef string // optional, stored encrypted
}

// FareService drives the tap-to-settlement workflow.
type FareService interface {
	StartScanning(ctx context.Context, actor domain.Identity) (FareSnapshot, error)
	StopScanning(ctx context.Context, actor domain.Identity) (FareSnapshot, error)
	Reset(ctx context.Context, actor domain.Identity) (FareSnapshot, error)
	ResolveTap(ctx context.Context, rawUID string) (*domain.ScanEvent, error)
	Settle(ctx context.Context, actor domain.Identity, req SettleRequest) (*domain.Settlement, error)
	State() FareSnapshot
}

// SettleRequest holds input for a fare settlement.
type SettleRequest struct {
	UID  string
	Fare int64
}

// FareSnapshot is a point-in-time view of the workflow.
type FareSnapshot struct {
	State        domain.FareState
	Scanning     bool
	PendingUID   string
	PendingName  string
	PendingFound bool
	LastSettled  *domain.Settlement
	UpdatedAt    time.Time
}

// ReportingService serves read-only wallet views.
type ReportingService interface {
	GetWallet(ctx context.Context, userID uuid.UUID) (*WalletView, error)
	ListTransactions(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
}

// WalletView combines the wallet with the card link status of its owner.
type WalletView struct {
	Balance       int64
	UpdatedAt     time.Time
	CardLinked    bool
	CardUIDMasked string
}

// RechargeService is the payment collaborator boundary for wallet top-ups.
type RechargeService interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, amount int64) (*domain.RechargeOrder, error)
	Verify(ctx context.Context, req RechargeVerifyRequest) (*RechargeResult, error)
}

// RechargeVerifyRequest carries the gateway callback fields.
type RechargeVerifyRequest struct {
	UserID    uuid.UUID
	OrderID   string
	PaymentID string
	Signature string
}

// RechargeResult is returned after a verified payment has been credited.
type RechargeResult struct {
	OrderID    string
	PaymentID  string
	Amount     int64
	NewBalance int64
}

// AuditService records security-relevant actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
