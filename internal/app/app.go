// Package app wires the fare gateway components together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"rfid-fare-gateway/config"
	httpHandler "rfid-fare-gateway/internal/adapter/http/handler"
	"rfid-fare-gateway/internal/adapter/realtime"
	"rfid-fare-gateway/internal/adapter/storage/memory"
	pgStorage "rfid-fare-gateway/internal/adapter/storage/postgres"
	redisStorage "rfid-fare-gateway/internal/adapter/storage/redis"
	"rfid-fare-gateway/internal/core/ports"
	"rfid-fare-gateway/internal/service"
	"rfid-fare-gateway/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// App holds the wired services and the HTTP handler.
type App struct {
	Config *config.Config
	Log    zerolog.Logger

	Users    ports.UserRepository
	Identity *service.IdentityService
	Ledger   *service.LedgerService
	Fare     *service.FareService
	Tokens   *service.JWTTokenService
	Audit    *service.AuditService
	Broker   *realtime.Broker
	Router   http.Handler

	pool  *pgxpool.Pool
	redis *goredis.Client
}

type storage struct {
	users      ports.UserRepository
	wallets    ports.WalletRepository
	txns       ports.TransactionRepository
	audit      ports.AuditRepository
	transactor ports.DBTransactor
	checkers   []ports.HealthChecker
}

// New connects to the configured stores and builds every component.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	store, err := a.openStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var (
		limiter ports.RateLimiter = memory.NewRateLimiter()
		orders  ports.OrderStore
		nonces  ports.NonceStore
	)
	if cfg.Redis.Enabled {
		a.redis, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		stores := redisStorage.NewStores(a.redis)
		limiter = stores.RateLimiter
		orders = stores.Orders
		nonces = stores.Nonces
		store.checkers = append(store.checkers, stores.Health)
	}

	keys, err := service.DeriveKeys(cfg.Crypto.Secret)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("deriving keys: %w", err)
	}
	encSvc, err := service.NewAESEncryptionService(keys.EncryptionKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}
	digestSvc, err := service.NewBlake3DigestService(keys.DigestKey)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing digest: %w", err)
	}
	loc, err := cfg.Fare.Location()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("loading fare timezone: %w", err)
	}

	a.Users = store.users
	a.Identity = service.NewIdentityService(store.users, encSvc, digestSvc, logger.Component(log, "identity"))
	a.Ledger = service.NewLedgerService(store.wallets, store.users, store.txns, store.transactor, encSvc, loc, logger.Component(log, "ledger"))
	a.Broker = realtime.NewBroker(logger.Component(log, "broker"))
	a.Fare = service.NewFareService(a.Identity, a.Ledger, a.Broker, cfg.Fare.DisplayWindow, logger.Component(log, "fare"))
	a.Tokens = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	a.Audit = service.NewAuditService(store.audit, logger.Component(log, "audit"))

	var recharge ports.RechargeService
	if cfg.RechargeEnabled() {
		recharge = service.NewRechargeService(a.Ledger, orders, nonces, service.NewHMACSignatureService(), service.RechargeConfig{
			GatewaySecret: cfg.Payment.GatewaySecret,
			OrderTTL:      cfg.Payment.OrderTTL,
			ReplayTTL:     cfg.Payment.ReplayTTL,
			MaxAmount:     cfg.Payment.MaxAmount,
		}, logger.Component(log, "recharge"))
	} else {
		log.Info().Msg("wallet recharge disabled: redis or payment.gateway_secret not configured")
	}

	sessions := realtime.NewServer(a.Broker, a.Fare, realtime.Config{
		DeviceKey:        cfg.Device.Key,
		AllowedOrigins:   cfg.WS.AllowedOrigins,
		SendBuffer:       cfg.WS.SendBuffer,
		MaxMessageSize:   cfg.WS.MaxMessageSize,
		WriteWait:        cfg.WS.WriteWait,
		PongWait:         cfg.WS.PongWait,
		PingPeriod:       cfg.WS.PingPeriod(),
		OperationTimeout: cfg.WS.OperationTimeout,
	}, logger.Component(log, "realtime"))

	a.Router = httpHandler.SetupRouter(httpHandler.RouterDeps{
		Mode:           cfg.Server.Mode,
		IdentitySvc:    a.Identity,
		Ledger:         a.Ledger,
		FareSvc:        a.Fare,
		ReportingSvc:   service.NewReportingService(a.Ledger, store.users, store.txns, a.Identity),
		RechargeSvc:    recharge,
		TokenSvc:       a.Tokens,
		RateLimiter:    limiter,
		Sessions:       sessions,
		Taps:           sessions,
		DeviceKey:      cfg.Device.Key,
		HealthCheckers: store.checkers,
		AuditSvc:       a.Audit,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger.Component(log, "http"),
	})

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (*storage, error) {
	if a.Config.Database.Driver == config.DriverMemory {
		a.Log.Warn().Msg("using in-memory storage, data is lost on exit")
		mem := memory.New()
		return &storage{
			users:      mem.Users(),
			wallets:    mem.Wallets(),
			txns:       mem.Transactions(),
			audit:      mem.Audit(),
			transactor: mem.Transactor(),
		}, nil
	}

	pool, err := pgStorage.NewPool(ctx, a.Config.Database, a.Log)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.pool = pool

	return &storage{
		users:      pgStorage.NewUserRepo(pool),
		wallets:    pgStorage.NewWalletRepo(pool),
		txns:       pgStorage.NewTransactionRepo(pool),
		audit:      pgStorage.NewAuditRepo(pool),
		transactor: pgStorage.NewTransactor(pool, a.Config.Database.LockTimeout),
		checkers:   []ports.HealthChecker{pgStorage.NewHealthCheck(pool)},
	}, nil
}

// Migrate applies pending schema migrations. It is a no-op for the memory driver.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	if a.pool == nil {
		return nil, nil
	}
	return pgStorage.Migrate(ctx, a.pool, a.Log)
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the session broker and the HTTP server on ln. When ctx is
// cancelled the server drains within server.shutdown_timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Broker.Run(gctx)
	})
	g.Go(func() error {
		a.Log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Log.Info().Msg("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	a.Fare.Close()
	a.Audit.Wait()
	a.Log.Info().Msg("server exited")
	return err
}

// Close releases store connections.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Log.Warn().Err(err).Msg("closing redis client")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
