package middleware

import (
	"crypto/subtle"
	"net/http"

	"rfid-fare-gateway/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HeaderDeviceKey carries the shared scanner key on plain HTTP device routes.
const HeaderDeviceKey = "X-Device-Key"

// DeviceKey admits requests carrying the configured device key. Devices read
// the body, so a rejection is the plain-text DEVICE_UNAUTHORIZED token.
// An empty configured key rejects every request.
func DeviceKey(key string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader(HeaderDeviceKey)
		if key == "" || presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			log.Warn().Str("client_ip", c.ClientIP()).Bool("key_present", presented != "").Msg("device key rejected")
			c.String(http.StatusUnauthorized, string(domain.TapStatusDeviceUnauthorized))
			c.Abort()
			return
		}
		c.Next()
	}
}
