package dto

import "time"

// LinkCardRequest is the request body for linking an RFID card to the caller.
type LinkCardRequest struct {
	UID string `json:"uid" binding:"required,rfid_uid"`
}

// DeviceScanRequest is the body a scanner posts for a tap. The uid is checked
// by the tap resolver so devices always get a status token back.
type DeviceScanRequest struct {
	UID string `json:"uid"`
}

// ScanningRequest turns the scanning window on or off.
type ScanningRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SettleRequest is the request body for a fare settlement.
type SettleRequest struct {
	UID  string `json:"uid" binding:"required,rfid_uid"`
	Fare int64  `json:"fare" binding:"required,gt=0"`
}

// RechargeOrderRequest is the request body for creating a recharge order.
type RechargeOrderRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// RechargeVerifyRequest carries the payment gateway callback fields.
type RechargeVerifyRequest struct {
	OrderID   string `json:"order_id" binding:"required,max=100,safe_id"`
	PaymentID string `json:"payment_id" binding:"required,max=100,safe_id"`
	Signature string `json:"signature" binding:"required,hexadecimal,max=128"`
}

// TransactionListQuery holds filter + pagination query parameters.
type TransactionListQuery struct {
	Page     int        `form:"page" binding:"omitempty,gte=1"`
	PageSize int        `form:"page_size" binding:"omitempty,gte=1,lte=100"`
	Kind     string     `form:"kind" binding:"omitempty,oneof=CREDIT DEBIT"`
	From     *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To       *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize fills in pagination defaults.
func (q *TransactionListQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		q.PageSize = DefaultPageSize
	}
}

// ProfileResponse is the response body for GET /me.
type ProfileResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	RFIDLinked    bool   `json:"rfid_linked"`
	RFIDUID       string `json:"rfid_uid,omitempty"` // masked
	WalletBalance int64  `json:"wallet_balance"`
	IsBlocked     bool   `json:"is_blocked"`
}

// LinkCardResponse confirms a linked card.
type LinkCardResponse struct {
	RFIDLinked bool   `json:"rfid_linked"`
	RFIDUID    string `json:"rfid_uid"` // masked
}

// WalletResponse is the passenger wallet view.
type WalletResponse struct {
	Balance    int64  `json:"balance"`
	UpdatedAt  string `json:"updated_at"`
	RFIDLinked bool   `json:"rfid_linked"`
	RFIDUID    string `json:"rfid_uid,omitempty"` // masked
}

// TransactionResponse is one ledger entry as shown to the passenger.
type TransactionResponse struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	Amount       int64  `json:"amount"`
	Description  string `json:"description"`
	BalanceAfter int64  `json:"balance_after"`
	CreatedAt    string `json:"created_at"`
}

// TransactionListResponse wraps paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

// FareStateResponse is the workflow snapshot shown on a conductor terminal.
type FareStateResponse struct {
	State       string              `json:"state"`
	Scanning    bool                `json:"scanning"`
	PendingUID  string              `json:"pending_uid,omitempty"`
	PendingName string              `json:"pending_name,omitempty"`
	Found       bool                `json:"found"`
	LastSettled *SettlementResponse `json:"last_settled,omitempty"`
	UpdatedAt   string              `json:"updated_at"`
}

// SettlementResponse is the result of a successful fare debit.
type SettlementResponse struct {
	UID           string `json:"uid"`
	PassengerName string `json:"passenger_name"`
	FareDeducted  int64  `json:"fare_deducted"`
	NewBalance    int64  `json:"new_balance"`
}

// FareStatsResponse is the daily conductor summary.
type FareStatsResponse struct {
	ScansToday       int64 `json:"scans_today"`
	TotalCollected   int64 `json:"total_collected"`
	ActivePassengers int64 `json:"active_passengers"`
}

// RechargeOrderResponse is returned when a recharge order is created.
type RechargeOrderResponse struct {
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	ExpiresAt string `json:"expires_at"`
}

// RechargeResultResponse is returned after a verified recharge.
type RechargeResultResponse struct {
	OrderID    string `json:"order_id"`
	PaymentID  string `json:"payment_id"`
	Amount     int64  `json:"amount"`
	NewBalance int64  `json:"new_balance"`
}
