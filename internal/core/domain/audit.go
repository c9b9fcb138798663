package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionLinkCard      AuditAction = "LINK_CARD"
	AuditActionSettleFare    AuditAction = "SETTLE_FARE"
	AuditActionScanMode      AuditAction = "SCAN_MODE"
	AuditActionResetWorkflow AuditAction = "RESET_WORKFLOW"
	AuditActionRechargeOrder AuditAction = "RECHARGE_ORDER"
	AuditActionRecharge      AuditAction = "RECHARGE"
)

// AuditLog records a single audited action in the system.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	UserID       *uuid.UUID  `json:"user_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
