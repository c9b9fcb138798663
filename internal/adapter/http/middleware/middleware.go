package middleware

import (
	"net/http"
	"strings"
	"time"

	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/pkg/apperror"
	"rfid-fare-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	HeaderRequestID = "X-Request-ID"

	// Query parameter carrying the token on websocket upgrades, where browsers cannot set headers.
	QueryToken = "token"

	// Context keys
	CtxRequestID = "request_id"
	CtxUserID    = "user_id"
	CtxIdentity  = "identity"
)

// RequestID attaches a request id to the context and echoes it in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// JWTAuth creates a middleware that requires a valid bearer token.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}

		identity, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("token rejected")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		setIdentity(c, *identity)
		c.Next()
	}
}

// OptionalJWT attaches an identity when a valid token is presented in the
// Authorization header or the token query parameter, and never rejects.
// Devices connect without a token; dashboards need one to register.
func OptionalJWT(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c.GetHeader("Authorization"))
		if tokenStr == "" {
			tokenStr = c.Query(QueryToken)
		}
		if tokenStr != "" {
			identity, err := tokenSvc.Validate(tokenStr)
			if err != nil {
				log.Debug().Err(err).Msg("ignoring invalid token on upgrade")
			} else {
				setIdentity(c, *identity)
			}
		}
		c.Next()
	}
}

// RequireRole rejects callers whose identity does not carry role. It must run after JWTAuth.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			response.Error(c, apperror.ErrUnauthorized())
			c.Abort()
			return
		}
		if identity.Role != role {
			response.Error(c, apperror.ErrForbidden("This action requires the "+string(role)+" role"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity attached by JWTAuth or OptionalJWT.
func IdentityFrom(c *gin.Context) (domain.Identity, bool) {
	v, exists := c.Get(CtxIdentity)
	if !exists {
		return domain.Identity{}, false
	}
	identity, ok := v.(domain.Identity)
	return identity, ok
}

func setIdentity(c *gin.Context, identity domain.Identity) {
	c.Set(CtxIdentity, identity)
	c.Set(CtxUserID, identity.UserID)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("request_id", c.GetString(CtxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				response.Error(c, apperror.InternalError(nil))
				c.Abort()
			}
		}()
		c.Next()
	}
}
