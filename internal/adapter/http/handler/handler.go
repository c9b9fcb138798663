package handler

import (
	"rfid-fare-gateway/internal/adapter/http/dto"
	"rfid-fare-gateway/internal/adapter/http/middleware"
	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/pkg/apperror"
	"rfid-fare-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// callerIdentity returns the identity attached by JWTAuth, writing a 401 if absent.
func callerIdentity(c *gin.Context) (domain.Identity, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		response.Error(c, apperror.ErrUnauthorized())
		return domain.Identity{}, false
	}
	return identity, true
}

// bindJSON binds, validates and sanitizes a JSON body, writing the error response on failure.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if middleware.IsBodyTooLarge(err) {
			response.Error(c, apperror.ErrPayloadTooLarge())
		} else {
			response.Error(c, apperror.Validation(err.Error()))
		}
		return false
	}
	dto.SanitizeStruct(req)
	return true
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
