package domain

import (
	"time"

	"github.com/google/uuid"
)

// FareState is a step of the settlement workflow.
type FareState string

const (
	FareStateIdle     FareState = "IDLE"
	FareStateScanning FareState = "SCANNING"
	FareStateFound    FareState = "FOUND"
	FareStateNotFound FareState = "NOT_FOUND"
	FareStateSettling FareState = "SETTLING"
	FareStateSettled  FareState = "SETTLED"
	FareStateRejected FareState = "REJECTED"
)

var fareTransitions = map[FareState][]FareState{
	FareStateIdle:     {FareStateScanning, FareStateSettling},
	FareStateScanning: {FareStateIdle, FareStateFound, FareStateNotFound, FareStateSettling},
	FareStateFound:    {FareStateIdle, FareStateScanning, FareStateFound, FareStateNotFound, FareStateSettling},
	FareStateNotFound: {FareStateIdle, FareStateScanning, FareStateFound, FareStateNotFound, FareStateSettling},
	FareStateSettling: {FareStateIdle, FareStateSettling, FareStateSettled, FareStateRejected},
	FareStateSettled:  {FareStateIdle, FareStateScanning, FareStateFound, FareStateNotFound, FareStateSettling, FareStateSettled, FareStateRejected},
	FareStateRejected: {FareStateIdle, FareStateScanning, FareStateFound, FareStateNotFound, FareStateSettling, FareStateSettled, FareStateRejected},
}

// CanTransition reports whether the workflow may move from s to next.
func (s FareState) CanTransition(next FareState) bool {
	for _, allowed := range fareTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsActive is true while the terminal is accepting or showing taps.
func (s FareState) IsActive() bool {
	return s != FareStateIdle
}

// TapStatus is the terse reply a scanner device gets for a tap.
type TapStatus string

const (
	TapStatusFound       TapStatus = "FOUND"
	TapStatusNotFound    TapStatus = "USER_NOT_FOUND"
	TapStatusInvalidCard TapStatus = "INVALID_CARD"
	TapStatusError       TapStatus = "ERROR"

	TapStatusDeviceUnauthorized TapStatus = "DEVICE_UNAUTHORIZED"
)

// ScanEvent is one resolved tap. User is nil when the card is unknown.
type ScanEvent struct {
	UID       string
	User      *User
	Timestamp time.Time
}

// Found reports whether the tap resolved to a user.
func (e *ScanEvent) Found() bool {
	return e.User != nil
}

// Settlement is the outcome of a successful fare debit.
type Settlement struct {
	UID           string     `json:"uid"`
	UserID        uuid.UUID  `json:"-"`
	PassengerName string     `json:"passenger_name"`
	FareDeducted  int64      `json:"fare_deducted"`
	NewBalance    int64      `json:"new_balance"`
	Stats         *FareStats `json:"stats,omitempty"`
	SettledAt     time.Time  `json:"settled_at"`
}
