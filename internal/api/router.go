package api

import (
	"net/http"

	"github.com/ayo6706/logistics-wallet/internal/api/handler"
	"github.com/ayo6706/logistics-wallet/internal/api/middleware"
	"github.com/ayo6706/logistics-wallet/internal/api/spec"
	"github.com/ayo6706/logistics-wallet/internal/config"
	"github.com/ayo6706/logistics-wallet/internal/idempotency"
	"github.com/ayo6706/logistics-wallet/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services are the domain services the HTTP surface delegates to.
type Services struct {
	Wallets  *service.WalletService
	Payments *service.PaymentService
	Payouts  *service.PayoutService
	Webhooks *service.WebhookService
}

type Router struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    handler.Pinger
	idem     *idempotency.Store
	redis    redis.Cmdable
	services Services
}

func NewRouter(cfg *config.Config, logger *zap.Logger, store handler.Pinger, idem *idempotency.Store, redisClient redis.Cmdable, services Services) *Router {
	return &Router{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		idem:     idem,
		redis:    redisClient,
		services: services,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   api.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Trace-ID"},
		ExposedHeaders:   []string{"X-Trace-ID", "X-Idempotent-Replay"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.store, api.redis)
	walletHandler := handler.NewWalletHandler(api.services.Wallets)
	paymentHandler := handler.NewPaymentHandler(api.services.Payments, api.services.Wallets)
	payoutHandler := handler.NewPayoutHandler(api.services.Payouts, api.services.Wallets)
	webhookHandler := handler.NewWebhookHandler(api.services.Webhooks, api.cfg.WebhookSecretHeader)
	idempotent := middleware.IdempotencyMiddleware(api.idem, api.logger)

	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/webhooks/bank-transfer", webhookHandler.HandleBankTransfer)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Post("/v1/wallets", walletHandler.CreateWallet)
		r.Get("/v1/wallets/{id}", walletHandler.GetWallet)
		r.Get("/v1/wallets/{id}/balance", walletHandler.GetBalance)
		r.Get("/v1/wallets/{id}/transactions", walletHandler.ListTransactions)
		r.Get("/v1/businesses/{businessID}/wallets", walletHandler.ListBusinessWallets)

		r.With(idempotent).Post("/v1/payments", paymentHandler.CreatePayment)
		r.With(idempotent).Post("/v1/payouts", payoutHandler.CreatePayout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleAdmin))
			r.Get("/v1/admin/wallets", walletHandler.ListAllWallets)
			r.Get("/v1/admin/transactions", walletHandler.ListAllTransactions)
			r.Get("/v1/admin/transactions/{txID}", walletHandler.GetTransactionLegs)
		})
	})

	return r
}
