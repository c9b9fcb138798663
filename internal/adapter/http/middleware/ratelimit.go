package middleware

import (
	"fmt"
	"strconv"
	"time"

	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/pkg/apperror"
	"rfid-fare-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RateLimitRule defines a rate limit for an endpoint group.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// DefaultRateLimitRules returns the rate limits per endpoint group.
func DefaultRateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		"api":         {Limit: 120, Window: time.Minute},
		"cards_link":  {Limit: 5, Window: time.Minute},
		"recharge":    {Limit: 10, Window: time.Minute},
		"fare":        {Limit: 300, Window: time.Minute},
		"ws_connect":  {Limit: 30, Window: time.Minute},
		"device_scan": {Limit: 120, Window: time.Minute},
	}
}

// RateLimiter creates a rate-limiting middleware for a given endpoint group.
// Limiter failures degrade to allowing the request.
func RateLimiter(limiter ports.RateLimiter, group string, rule RateLimitRule, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("%s:%s", extractIdentifier(c), group)

		result, err := limiter.Allow(c.Request.Context(), key, rule.Limit, rule.Window)
		if err != nil {
			log.Warn().Err(err).Str("group", group).Msg("rate limit check failed, allowing request (degraded mode)")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(result.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))

		if !result.Allowed {
			retryAfter := result.ResetAt - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.Error(c, apperror.ErrRateLimitExceeded())
			c.Abort()
			return
		}

		c.Next()
	}
}

// extractIdentifier keys authenticated callers by user id and everyone else by client IP.
func extractIdentifier(c *gin.Context) string {
	if identity, ok := IdentityFrom(c); ok {
		return "user:" + identity.UserID.String()
	}
	return "ip:" + c.ClientIP()
}
