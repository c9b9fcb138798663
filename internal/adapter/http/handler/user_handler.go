package handler

import (
	"rfid-fare-gateway/internal/adapter/http/dto"
	"rfid-fare-gateway/internal/adapter/http/middleware"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UserHandler serves the caller's own identity record.
type UserHandler struct {
	identity ports.IdentityIndex
	log      zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(identity ports.IdentityIndex, log zerolog.Logger) *UserHandler {
	return &UserHandler{identity: identity, log: log}
}

// Me handles GET /api/v1/me.
func (h *UserHandler) Me(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	profile, err := h.identity.Profile(c.Request.Context(), caller.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toProfileResponse(profile))
}

// LinkCard handles POST /api/v1/cards/link.
func (h *UserHandler) LinkCard(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req dto.LinkCardRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.identity.LinkCard(c.Request.Context(), caller.UserID, req.UID); err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxAuditResourceID, caller.UserID.String())

	resp := dto.LinkCardResponse{RFIDLinked: true}
	if profile, err := h.identity.Profile(c.Request.Context(), caller.UserID); err != nil {
		h.log.Warn().Err(err).Str("user_id", caller.UserID.String()).Msg("profile reload after card link failed")
	} else {
		resp.RFIDUID = profile.CardUIDMasked
	}
	response.Created(c, resp)
}

func toProfileResponse(p *ports.UserProfile) dto.ProfileResponse {
	return dto.ProfileResponse{
		ID:            p.ID.String(),
		Name:          p.Name,
		Role:          string(p.Role),
		Email:         p.Email,
		Phone:         p.Phone,
		RFIDLinked:    p.CardLinked,
		RFIDUID:       p.CardUIDMasked,
		WalletBalance: p.WalletBalance,
		IsBlocked:     p.IsBlocked,
	}
}
