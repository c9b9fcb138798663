package handler

import (
	"rfid-fare-gateway/internal/adapter/http/dto"
	"rfid-fare-gateway/internal/adapter/http/middleware"
	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// FareHandler exposes the settlement workflow to conductor terminals.
type FareHandler struct {
	fareSvc ports.FareService
	ledger  ports.Ledger
}

// NewFareHandler creates a new FareHandler.
func NewFareHandler(fareSvc ports.FareService, ledger ports.Ledger) *FareHandler {
	return &FareHandler{fareSvc: fareSvc, ledger: ledger}
}

// SetScanning handles POST /api/v1/fare/scanning.
func (h *FareHandler) SetScanning(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req dto.ScanningRequest
	if !bindJSON(c, &req) {
		return
	}

	var (
		snap ports.FareSnapshot
		err  error
	)
	if *req.Enabled {
		snap, err = h.fareSvc.StartScanning(c.Request.Context(), caller)
	} else {
		snap, err = h.fareSvc.StopScanning(c.Request.Context(), caller)
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toFareStateResponse(snap))
}

// Reset handles POST /api/v1/fare/reset.
func (h *FareHandler) Reset(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	snap, err := h.fareSvc.Reset(c.Request.Context(), caller)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toFareStateResponse(snap))
}

// State handles GET /api/v1/fare/state.
func (h *FareHandler) State(c *gin.Context) {
	response.OK(c, toFareStateResponse(h.fareSvc.State()))
}

// Settle handles POST /api/v1/fare/settle.
func (h *FareHandler) Settle(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req dto.SettleRequest
	if !bindJSON(c, &req) {
		return
	}

	settlement, err := h.fareSvc.Settle(c.Request.Context(), caller, ports.SettleRequest{
		UID:  req.UID,
		Fare: req.Fare,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxAuditResourceID, settlement.UserID.String())

	response.OK(c, toSettlementResponse(settlement))
}

// Stats handles GET /api/v1/fare/stats.
func (h *FareHandler) Stats(c *gin.Context) {
	stats, err := h.ledger.DailyStats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FareStatsResponse{
		ScansToday:       stats.Count,
		TotalCollected:   stats.TotalAmount,
		ActivePassengers: stats.DistinctUsers,
	})
}

func toFareStateResponse(snap ports.FareSnapshot) dto.FareStateResponse {
	resp := dto.FareStateResponse{
		State:       string(snap.State),
		Scanning:    snap.Scanning,
		PendingUID:  snap.PendingUID,
		PendingName: snap.PendingName,
		Found:       snap.PendingFound,
		UpdatedAt:   snap.UpdatedAt.UTC().Format(timeLayout),
	}
	if snap.LastSettled != nil {
		settled := toSettlementResponse(snap.LastSettled)
		resp.LastSettled = &settled
	}
	return resp
}

func toSettlementResponse(s *domain.Settlement) dto.SettlementResponse {
	return dto.SettlementResponse{
		UID:           s.UID,
		PassengerName: s.PassengerName,
		FareDeducted:  s.FareDeducted,
		NewBalance:    s.NewBalance,
	}
}
