package handler

import (
	"math"

	"rfid-fare-gateway/internal/adapter/http/dto"
	"rfid-fare-gateway/internal/adapter/http/middleware"
	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/pkg/apperror"
	"rfid-fare-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet view and recharge endpoints.
type WalletHandler struct {
	reportingSvc ports.ReportingService
	rechargeSvc  ports.RechargeService // nil = recharge disabled
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(reportingSvc ports.ReportingService, rechargeSvc ports.RechargeService) *WalletHandler {
	return &WalletHandler{
		reportingSvc: reportingSvc,
		rechargeSvc:  rechargeSvc,
	}
}

// GetWallet handles GET /api/v1/wallet.
func (h *WalletHandler) GetWallet(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	view, err := h.reportingSvc.GetWallet(c.Request.Context(), caller.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WalletResponse{
		Balance:    view.Balance,
		UpdatedAt:  view.UpdatedAt.UTC().Format(timeLayout),
		RFIDLinked: view.CardLinked,
		RFIDUID:    view.CardUIDMasked,
	})
}

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var q dto.TransactionListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	q.Normalize()

	params := ports.TransactionListParams{
		UserID:   caller.UserID,
		From:     q.From,
		To:       q.To,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Kind != "" {
		kind := domain.TransactionKind(q.Kind)
		params.Kind = &kind
	}

	txns, total, err := h.reportingSvc.ListTransactions(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.TransactionResponse, 0, len(txns))
	for i := range txns {
		items = append(items, toTransactionResponse(&txns[i]))
	}

	response.OK(c, dto.TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		PageSize:   q.PageSize,
		TotalPages: int(math.Ceil(float64(total) / float64(q.PageSize))),
	})
}

// CreateRechargeOrder handles POST /api/v1/wallet/recharge/orders.
func (h *WalletHandler) CreateRechargeOrder(c *gin.Context) {
	if h.rechargeSvc == nil {
		response.Error(c, apperror.ErrFeatureDisabled("Recharge"))
		return
	}
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req dto.RechargeOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.rechargeSvc.CreateOrder(c.Request.Context(), caller.UserID, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxAuditResourceID, order.ID)

	response.Created(c, dto.RechargeOrderResponse{
		OrderID:   order.ID,
		Amount:    order.Amount,
		ExpiresAt: order.ExpiresAt.UTC().Format(timeLayout),
	})
}

// VerifyRecharge handles POST /api/v1/wallet/recharge/verify.
func (h *WalletHandler) VerifyRecharge(c *gin.Context) {
	if h.rechargeSvc == nil {
		response.Error(c, apperror.ErrFeatureDisabled("Recharge"))
		return
	}
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req dto.RechargeVerifyRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.rechargeSvc.Verify(c.Request.Context(), ports.RechargeVerifyRequest{
		UserID:    caller.UserID,
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxAuditResourceID, result.OrderID)

	response.OK(c, dto.RechargeResultResponse{
		OrderID:    result.OrderID,
		PaymentID:  result.PaymentID,
		Amount:     result.Amount,
		NewBalance: result.NewBalance,
	})
}

func toTransactionResponse(tx *domain.Transaction) dto.TransactionResponse {
	return dto.TransactionResponse{
		ID:           tx.ID.String(),
		Kind:         string(tx.Kind),
		Amount:       tx.Amount,
		Description:  tx.Description,
		BalanceAfter: tx.BalanceAfter,
		CreatedAt:    tx.CreatedAt.UTC().Format(timeLayout),
	}
}
