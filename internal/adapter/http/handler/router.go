package handler

import (
	"time"

	"rfid-fare-gateway/internal/adapter/http/middleware"
	"rfid-fare-gateway/internal/core/domain"
	"rfid-fare-gateway/internal/core/ports"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Mode           string // gin mode, defaults to release
	IdentitySvc    ports.IdentityIndex
	Ledger         ports.Ledger
	FareSvc        ports.FareService
	ReportingSvc   ports.ReportingService
	RechargeSvc    ports.RechargeService // nil = recharge disabled
	TokenSvc       ports.TokenService
	RateLimiter    ports.RateLimiter // nil = rate limiting disabled
	Sessions       SessionUpgrader
	Taps           TapResolver // nil = HTTP scan route disabled
	DeviceKey      string
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	AllowedOrigins []string           // CORS; empty = no cross-origin access
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", middleware.HeaderRequestID},
			ExposeHeaders:    []string{middleware.HeaderRequestID, "X-RateLimit-Remaining", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep, verifies storage + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if a limiter is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	// --- Realtime sessions (devices + dashboards) ---
	if deps.Sessions != nil {
		r.GET("/ws", rl("ws_connect"), middleware.OptionalJWT(deps.TokenSvc, deps.Logger), WebSocket(deps.Sessions))
	}

	// --- Scanner devices over plain HTTP ---
	if deps.Taps != nil {
		deviceHandler := NewDeviceHandler(deps.Taps)
		r.POST("/api/v1/rfid/scan", rl("device_scan"), middleware.DeviceKey(deps.DeviceKey, deps.Logger), deviceHandler.Scan)
	}

	// --- JWT-authenticated routes ---
	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	userHandler := NewUserHandler(deps.IdentitySvc, deps.Logger)
	v1.GET("/me", rl("api"), userHandler.Me)
	v1.POST("/cards/link", rl("cards_link"), userHandler.LinkCard)

	walletHandler := NewWalletHandler(deps.ReportingSvc, deps.RechargeSvc)
	wallet := v1.Group("/wallet")
	{
		wallet.GET("", rl("api"), walletHandler.GetWallet)
		wallet.GET("/transactions", rl("api"), walletHandler.ListTransactions)
		wallet.POST("/recharge/orders", rl("recharge"), walletHandler.CreateRechargeOrder)
		wallet.POST("/recharge/verify", rl("recharge"), walletHandler.VerifyRecharge)
	}

	// --- Conductor routes ---
	fareHandler := NewFareHandler(deps.FareSvc, deps.Ledger)
	fare := v1.Group("/fare", middleware.RequireRole(domain.RoleConductor), rl("fare"))
	{
		fare.POST("/scanning", fareHandler.SetScanning)
		fare.POST("/reset", fareHandler.Reset)
		fare.GET("/state", fareHandler.State)
		fare.POST("/settle", fareHandler.Settle)
		fare.GET("/stats", fareHandler.Stats)
	}

	return r
}
