package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes passengers from conductors.
type Role string

const (
	RolePassenger Role = "passenger"
	RoleConductor Role = "conductor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePassenger || r == RoleConductor
}

// User is an identity record. Personal fields are stored encrypted; the card
// digest is the only searchable form of the card UID.
type User struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Role          Role      `json:"role"`
	EmailEnc      *string   `json:"-"`
	PhoneEnc      *string   `json:"-"`
	CardUIDEnc    *string   `json:"-"`
	CardUIDDigest *string   `json:"-"`
	WalletBalance int64     `json:"wallet_balance"` // Mirror of wallets.balance
	IsBlocked     bool      `json:"is_blocked"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasCard returns true once a card has been linked.
func (u *User) HasCard() bool {
	return u.CardUIDDigest != nil && *u.CardUIDDigest != ""
}

// IsConductor returns true for conductor accounts.
func (u *User) IsConductor() bool {
	return u.Role == RoleConductor
}

// Identity is the authenticated caller attached by the auth collaborator.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

// IsConductor returns true if the caller may operate a fare terminal.
func (i Identity) IsConductor() bool {
	return i.Role == RoleConductor
}
