package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/yieldvault-backend/api/controllers"
	"github.com/angelmondragon/yieldvault-backend/api/middleware"
	"github.com/angelmondragon/yieldvault-backend/internal/accounts"
	"github.com/angelmondragon/yieldvault-backend/internal/deposits"
	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/internal/withdrawals"
	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/yieldvault-backend/pkg/redis"
)

// RedisStore is the redis surface shared by rate limiting and idempotency.
type RedisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisStore RedisStore,
	gatherer prometheus.Gatherer,
	accountsService accounts.Service,
	ledgerService ledger.Service,
	depositService deposits.Service,
	withdrawalService withdrawals.Service,
	jobs controllers.JobTrigger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	proxies, err := cfg.RateLimit.TrustedProxyPrefixes()
	if err != nil {
		logg.Warn(logg.WithField(context.Background(), "error", err.Error()), "ignoring trusted proxies")
		proxies = nil
	}
	defaultPolicy := middleware.NewRateLimitPolicy("api", cfg.RateLimit.Window, cfg.RateLimit.DefaultLimit).TrustingProxies(proxies)
	withdrawalPolicy := middleware.NewRateLimitPolicy("withdrawals", cfg.RateLimit.Window, cfg.RateLimit.WithdrawalLimit).TrustingProxies(proxies)
	depositPolicy := middleware.NewRateLimitPolicy("deposits", cfg.RateLimit.Window, cfg.RateLimit.DepositLimit).TrustingProxies(proxies)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisStore,
		}, logg))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(defaultPolicy, redisStore, logg))
		r.Use(middleware.Idempotency(redisStore, logg))

		r.Post("/accounts", controllers.AccountOnboard(accountsService, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAccount(accountsService, logg))

			r.Get("/accounts/me", controllers.AccountMe(accountsService, logg))
			r.Get("/accounts/me/referrals", controllers.AccountReferrals(accountsService, logg))

			r.Get("/balance", controllers.BalanceBreakdown(ledgerService, logg))
			r.Get("/balance/history", controllers.BalanceHistory(ledgerService, cfg.Ledger.Location(), logg))
			r.Get("/entries", controllers.LedgerEntries(ledgerService, logg))

			r.With(middleware.RateLimit(depositPolicy, redisStore, logg)).
				Post("/deposits", controllers.DepositConfirm(depositService, logg))

			r.Route("/withdrawals", func(r chi.Router) {
				r.Get("/window", controllers.WithdrawalWindow(withdrawalService, logg))
				r.With(middleware.RateLimit(withdrawalPolicy, redisStore, logg)).
					Post("/earnings", controllers.WithdrawEarnings(withdrawalService, logg))
				r.With(middleware.RateLimit(withdrawalPolicy, redisStore, logg)).
					Post("/principal", controllers.WithdrawPrincipal(withdrawalService, logg))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.RoleAdmin), logg))

			r.Get("/withdrawals/pending", controllers.AdminPendingWithdrawals(withdrawalService, logg))
			r.Post("/withdrawals/{id}/approve", controllers.AdminApproveWithdrawal(withdrawalService, logg))
			r.Post("/withdrawals/{id}/reject", controllers.AdminRejectWithdrawal(withdrawalService, logg))
			r.Post("/withdrawals/{id}/resolve", controllers.AdminResolveWithdrawal(withdrawalService, logg))
			r.Put("/withdrawal-window", controllers.AdminSetWithdrawalWindow(withdrawalService, logg))
			r.Delete("/withdrawal-window", controllers.AdminClearWithdrawalWindow(withdrawalService, logg))
			r.Post("/jobs/{name}/run", controllers.AdminRunJob(jobs, logg))
			r.Patch("/accounts/{id}/status", controllers.AdminSetAccountStatus(accountsService, logg))
			r.Get("/accounts/{id}/reconcile", controllers.AdminReconcileAccount(ledgerService, logg))
		})
	})

	return r
}
