package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that logs successful write operations.
// Actions are keyed by the matched route, not the raw path.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		var userID *uuid.UUID
		if identity, ok := IdentityFrom(c); ok {
			id := identity.UserID
			userID = &id
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			UserID:       userID,
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxAuditResourceID),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

// CtxAuditResourceID lets a handler name the resource it touched.
const CtxAuditResourceID = "audit_resource_id"

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	if method != http.MethodPost {
		return "", ""
	}
	switch route {
	case "/api/v1/cards/link":
		return domain.AuditActionLinkCard, "user"
	case "/api/v1/fare/settle":
		return domain.AuditActionSettleFare, "wallet"
	case "/api/v1/fare/scanning":
		return domain.AuditActionScanMode, "fare_workflow"
	case "/api/v1/fare/reset":
		return domain.AuditActionResetWorkflow, "fare_workflow"
	case "/api/v1/wallet/recharge/orders":
		return domain.AuditActionRechargeOrder, "recharge_order"
	case "/api/v1/wallet/recharge/verify":
		return domain.AuditActionRecharge, "wallet"
	}
	return "", ""
}
