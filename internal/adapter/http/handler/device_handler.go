package handler

import (
	"context"
	"net/http"

	"rfid-fare-gateway/internal/adapter/http/dto"
	"rfid-fare-gateway/internal/core/domain"

	"github.com/gin-gonic/gin"
)

// TapResolver resolves a tap and notifies dashboards, returning the device status.
type TapResolver interface {
	ResolveTap(ctx context.Context, uid string) (domain.TapStatus, error)
}

// DeviceHandler serves scanners that report taps over plain HTTP.
type DeviceHandler struct {
	taps TapResolver
}

// NewDeviceHandler creates a new DeviceHandler.
func NewDeviceHandler(taps TapResolver) *DeviceHandler {
	return &DeviceHandler{taps: taps}
}

// Scan handles POST /api/v1/rfid/scan. The reply is a plain-text status token.
func (h *DeviceHandler) Scan(c *gin.Context) {
	var req dto.DeviceScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusOK, string(domain.TapStatusInvalidCard))
		return
	}

	// A failed lookup is already logged and reported as the ERROR token.
	status, _ := h.taps.ResolveTap(c.Request.Context(), req.UID)
	c.String(http.StatusOK, string(status))
}
