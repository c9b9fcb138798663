package handler

import (
	"net/http"

	"rfid-fare-gateway/internal/adapter/http/middleware"
	"rfid-fare-gateway/internal/core/domain"

	"github.com/gin-gonic/gin"
)

// SessionUpgrader turns an HTTP request into a broker session.
type SessionUpgrader interface {
	ServeWS(w http.ResponseWriter, r *http.Request, identity *domain.Identity)
}

// WebSocket handles GET /ws. The identity is optional; devices connect without one.
func WebSocket(upgrader SessionUpgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		var identity *domain.Identity
		if id, ok := middleware.IdentityFrom(c); ok {
			identity = &id
		}
		upgrader.ServeWS(c.Writer, c.Request, identity)
	}
}
