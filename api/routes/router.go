package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/walletcore-backend/api/controllers"
	"github.com/angelmondragon/walletcore-backend/api/middleware"
	"github.com/angelmondragon/walletcore-backend/internal/accounts"
	"github.com/angelmondragon/walletcore-backend/internal/ledger"
	gatewaywebhook "github.com/angelmondragon/walletcore-backend/internal/webhooks/gateway"
	"github.com/angelmondragon/walletcore-backend/pkg/config"
	"github.com/angelmondragon/walletcore-backend/pkg/db"
	"github.com/angelmondragon/walletcore-backend/pkg/logger"
	"github.com/angelmondragon/walletcore-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	accountsService accounts.Service,
	engine *ledger.Engine,
	gatewayService *gatewaywebhook.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(&cfg.App))
		r.Get("/ready", controllers.HealthReady(&cfg.App, logg,
			controllers.Dependency("postgres", dbP),
			controllers.Dependency("redis", redisClient),
		))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	webhookPolicy := middleware.NewRateLimitPolicy(
		"webhook_gateway",
		cfg.RateLimit.WebhookWindow,
		cfg.RateLimit.WebhookLimit,
	)
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, redisClient, logg)).
			Post("/gateway", controllers.GatewayWebhook(gatewayService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(
			middleware.Auth(cfg.Auth, logg),
			middleware.Idempotency(redisClient, logg),
		)

		r.Post("/credit", controllers.Credit(engine, logg))

		r.Post("/accounts", controllers.CreateAccount(accountsService, logg))

		r.Route("/accounts/{accountId}", func(r chi.Router) {
			r.Get("/balance", controllers.GetBalance(engine, logg))
			r.Get("/transactions", controllers.ListAccountTransactions(engine, logg))
			r.Get("/entitlements/{purpose}", controllers.GetEntitlement(engine, logg))

			r.Post("/debit", controllers.Debit(engine, logg))
			r.Post("/freeze", controllers.Freeze(engine, logg))
			r.Post("/release", controllers.Release(engine, logg))
			r.Post("/settle-frozen", controllers.SettleFrozen(engine, logg))
		})

		r.Route("/transactions/{transactionId}", func(r chi.Router) {
			r.Post("/refund", controllers.Refund(engine, logg))
			r.Post("/cancel", controllers.Cancel(engine, logg))
			r.Post("/expire", controllers.Expire(engine, logg))
			r.Post("/outstanding", controllers.FlagOutstanding(engine, logg))
			r.Post("/consume", controllers.Consume(engine, logg))
		})
	})

	return r
}
