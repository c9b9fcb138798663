package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rfid-fare-gateway/internal/adapter/http/middleware"
	"rfid-fare-gateway/internal/adapter/storage/memory"
	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/internal/core/ports/mocks"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

type fakeSessions struct {
	identity *domain.Identity
	called   bool
}

func (f *fakeSessions) ServeWS(w http.ResponseWriter, _ *http.Request, identity *domain.Identity) {
	f.called = true
	f.identity = identity
	w.WriteHeader(http.StatusSwitchingProtocols)
}

type routerMocks struct {
	token     *mocks.MockTokenService
	fare      *mocks.MockFareService
	ledger    *mocks.MockLedger
	reporting *mocks.MockReportingService
	identity  *mocks.MockIdentityIndex
	audit     *mocks.MockAuditService
}

func newTestRouter(t *testing.T, sessions SessionUpgrader, limiter ports.RateLimiter) (*gin.Engine, routerMocks) {
	ctrl := gomock.NewController(t)
	m := routerMocks{
		token:     mocks.NewMockTokenService(ctrl),
		fare:      mocks.NewMockFareService(ctrl),
		ledger:    mocks.NewMockLedger(ctrl),
		reporting: mocks.NewMockReportingService(ctrl),
		identity:  mocks.NewMockIdentityIndex(ctrl),
		audit:     mocks.NewMockAuditService(ctrl),
	}
	m.token.EXPECT().Validate("passenger-token").Return(&passenger, nil).AnyTimes()
	m.token.EXPECT().Validate("conductor-token").Return(&conductor, nil).AnyTimes()

	r := SetupRouter(RouterDeps{
		Mode:           gin.TestMode,
		IdentitySvc:    m.identity,
		Ledger:         m.ledger,
		FareSvc:        m.fare,
		ReportingSvc:   m.reporting,
		TokenSvc:       m.token,
		RateLimiter:    limiter,
		Sessions:       sessions,
		AuditSvc:       m.audit,
		AllowedOrigins: []string{"https://dash.example.com"},
		Logger:         zerolog.Nop(),
	})
	return r, m
}

func serve(r *gin.Engine, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_RequiresToken(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	for _, target := range []string{"/api/v1/me", "/api/v1/wallet", "/api/v1/fare/state"} {
		w := serve(r, http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
}

func TestRouter_FareRoutesAreConductorOnly(t *testing.T) {
	r, m := newTestRouter(t, nil, nil)

	w := serve(r, http.MethodGet, "/api/v1/fare/state", "passenger-token", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	m.fare.EXPECT().State().Return(ports.FareSnapshot{State: domain.FareStateIdle})
	w = serve(r, http.MethodGet, "/api/v1/fare/state", "conductor-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_SettleIsAudited(t *testing.T) {
	r, m := newTestRouter(t, nil, nil)

	m.fare.EXPECT().Settle(gomock.Any(), conductor, ports.SettleRequest{UID: "A1B2", Fare: 25}).
		Return(&domain.Settlement{UID: "A1B2", PassengerName: "Asha", FareDeducted: 25, NewBalance: 75}, nil)
	m.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Do(func(_ context.Context, entry *domain.AuditLog) {
		assert.Equal(t, domain.AuditActionSettleFare, entry.Action)
		assert.Equal(t, conductor.UserID, *entry.UserID)
	})

	w := serve(r, http.MethodPost, "/api/v1/fare/settle", "conductor-token", `{"uid":"A1B2","fare":25}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_RechargeDisabled(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	w := serve(r, http.MethodPost, "/api/v1/wallet/recharge/orders", "passenger-token", `{"amount":100}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "FEATURE_DISABLED")
}

func TestRouter_RateLimitsCardLinking(t *testing.T) {
	r, m := newTestRouter(t, nil, memory.NewRateLimiter())

	m.identity.EXPECT().LinkCard(gomock.Any(), passenger.UserID, "A1B2").Return(nil).Times(1)
	m.identity.EXPECT().Profile(gomock.Any(), passenger.UserID).Return(&ports.UserProfile{CardLinked: true}, nil).Times(1)
	m.audit.EXPECT().Log(gomock.Any(), gomock.Any()).Times(1)

	w := serve(r, http.MethodPost, "/api/v1/cards/link", "passenger-token", `{"uid":"A1B2"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	// Invalid bodies still count towards the limit
	limit := 5
	for i := 1; i < limit; i++ {
		w = serve(r, http.MethodPost, "/api/v1/cards/link", "passenger-token", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	w = serve(r, http.MethodPost, "/api/v1/cards/link", "passenger-token", `{}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRouter_WebSocketOptionalIdentity(t *testing.T) {
	sessions := &fakeSessions{}
	r, _ := newTestRouter(t, sessions, nil)

	serve(r, http.MethodGet, "/ws", "", "")
	assert.True(t, sessions.called)
	assert.Nil(t, sessions.identity)

	serve(r, http.MethodGet, "/ws?token=conductor-token", "", "")
	if assert.NotNil(t, sessions.identity) {
		assert.Equal(t, conductor.UserID, sessions.identity.UserID)
	}
}

func TestRouter_NoWebSocketWithoutBroker(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	w := serve(r, http.MethodGet, "/ws", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/wallet", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "https://dash.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_DeviceScanRequiresDeviceKey(t *testing.T) {
	taps := &stubTapResolver{status: domain.TapStatusFound}
	r := SetupRouter(RouterDeps{
		Mode:      gin.TestMode,
		TokenSvc:  mocks.NewMockTokenService(gomock.NewController(t)),
		Taps:      taps,
		DeviceKey: "dev-key",
		Logger:    zerolog.Nop(),
	})

	w := serve(r, http.MethodPost, "/api/v1/rfid/scan", "", `{"uid":"04A1B2C3"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "DEVICE_UNAUTHORIZED", w.Body.String())
	assert.Empty(t, taps.uids)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rfid/scan", strings.NewReader(`{"uid":"04A1B2C3"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderDeviceKey, "dev-key")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "FOUND", w.Body.String())
	assert.Equal(t, []string{"04A1B2C3"}, taps.uids)
}

func TestRouter_NoDeviceScanWithoutResolver(t *testing.T) {
	r, _ := newTestRouter(t, nil, nil)

	w := serve(r, http.MethodPost, "/api/v1/rfid/scan", "", `{"uid":"04A1B2C3"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
