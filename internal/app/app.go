package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/api"
	"github.com/ayo6706/logistics-wallet/internal/api/middleware"
	"github.com/ayo6706/logistics-wallet/internal/config"
	"github.com/ayo6706/logistics-wallet/internal/db"
	"github.com/ayo6706/logistics-wallet/internal/events"
	"github.com/ayo6706/logistics-wallet/internal/gateway"
	"github.com/ayo6706/logistics-wallet/internal/idempotency"
	"github.com/ayo6706/logistics-wallet/internal/notify"
	"github.com/ayo6706/logistics-wallet/internal/observability"
	"github.com/ayo6706/logistics-wallet/internal/repository"
	"github.com/ayo6706/logistics-wallet/internal/service"
	"github.com/ayo6706/logistics-wallet/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// backend is the storage surface the services and health checks need.
type backend interface {
	service.LedgerStore
	Directory() repository.Directory
	Ping(ctx context.Context) error
}

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		store backend
		keys  idempotency.Keys
	)
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		logger.Warn("using in-memory ledger store; balances are lost on restart")
		store = repository.NewMemoryStore()
		keys = repository.NewMemoryIdempotencyKeys()
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		pgStore := repository.NewStore(pool)
		store = pgStore
		keys = pgStore.Queries()
	}

	var redisClient redis.Cmdable
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		redisClient = client
	}
	idemStore := idempotency.NewStore(redisClient, keys, cfg.IdempotencyTTL)

	var partner gateway.Gateway
	if cfg.Partner.BaseURL != "" {
		partner = gateway.NewClient(gateway.Config{
			BaseURL:           cfg.Partner.BaseURL,
			Token:             cfg.Partner.Token,
			Signature:         cfg.Partner.Signature,
			SourcePartnerCode: cfg.Partner.SourcePartnerCode,
			Timeout:           cfg.Partner.Timeout,
		})
	} else {
		logger.Warn("PARTNER_BASE_URL not set; using simulated banking partner")
		partner = gateway.NewMockGateway()
	}

	var notifier notify.Notifier = notify.NewLogNotifier(logger)
	if cfg.NotificationURL != "" {
		notifier = notify.NewHTTPNotifier(cfg.NotificationURL, cfg.NotificationTimeout)
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	}
	defer publisher.Close()

	routes := service.NewFeeRoutes(cfg.FeeRoutes, cfg.RoleWallets)
	walletSvc := service.NewWalletService(store, store.Directory(), partner, cfg.PaidPlanOpeningDebt, service.WithPublisher(publisher))
	paymentSvc := service.NewPaymentService(store, routes, publisher)
	payoutSvc := service.NewPayoutService(store, partner, publisher)
	webhookSvc := service.NewWebhookService(store, cfg.WebhookSharedKey, notifier, publisher)

	payoutWorker := worker.NewPayoutWorker(payoutSvc).
		WithPollInterval(cfg.PayoutReconcileInterval).
		WithBatchSize(cfg.PayoutReconcileBatchSize).
		WithMinAge(cfg.PayoutReconcileMinAge)
	stopPayouts := payoutWorker.Run(ctx)
	logger.Info("payout reconciliation worker started",
		zap.Duration("interval", cfg.PayoutReconcileInterval),
		zap.Int32("batch", cfg.PayoutReconcileBatchSize),
		zap.Duration("min_age", cfg.PayoutReconcileMinAge))

	reconWorker := worker.NewReconciliationWorker(service.NewReconciliationService(store)).
		WithInterval(cfg.ReconciliationInterval)
	stopRecon := reconWorker.Run(ctx)

	router := api.NewRouter(cfg, logger, store, idemStore, redisClient, api.Services{
		Wallets:  walletSvc,
		Payments: paymentSvc,
		Payouts:  payoutSvc,
		Webhooks: webhookSvc,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.String("storage", cfg.StorageDriver))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopPayouts()
	stopRecon()

	// In-flight payouts may still be waiting on the partner.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTPWriteTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
