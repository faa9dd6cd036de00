// Package app wires the ledger services shared by the API and the cron worker.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/yieldvault-backend/internal/accounts"
	"github.com/angelmondragon/yieldvault-backend/internal/cron"
	"github.com/angelmondragon/yieldvault-backend/internal/deposits"
	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/internal/referrals"
	"github.com/angelmondragon/yieldvault-backend/internal/roi"
	"github.com/angelmondragon/yieldvault-backend/internal/withdrawals"
	"github.com/angelmondragon/yieldvault-backend/pkg/chain"
	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/angelmondragon/yieldvault-backend/pkg/db"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/metrics"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox"
	"github.com/angelmondragon/yieldvault-backend/pkg/pricefeed"
	"github.com/angelmondragon/yieldvault-backend/pkg/redis"
)

const lockKeyFormat = "yv:cron-worker:lock:%s"

// Params are the bootstrapped clients every binary shares.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// Services is the wired service graph.
type Services struct {
	LedgerRepo  ledger.Repository
	Ledger      ledger.Service
	Accounts    accounts.Service
	Referrals   *referrals.Engine
	Accruer     *roi.Accruer
	Deposits    deposits.Service
	Withdrawals withdrawals.Service
	OutboxRepo  *outbox.Repository
	Chain       *chain.Client
	CronMetrics *metrics.CronJobMetrics
}

// Close releases the chain connection.
func (s *Services) Close() {
	if s != nil && s.Chain != nil {
		s.Chain.Close()
	}
}

// NewServices dials the chain node and builds every domain service.
func NewServices(ctx context.Context, params Params) (*Services, error) {
	cfg := params.Config
	if cfg == nil || params.Logger == nil || params.DB == nil {
		return nil, fmt.Errorf("config, logger and database are required")
	}

	tokens, err := cfg.Chain.ParsedTokens()
	if err != nil {
		return nil, fmt.Errorf("parse chain tokens: %w", err)
	}

	chainClient, err := chain.New(ctx, cfg.Chain)
	if err != nil {
		return nil, fmt.Errorf("dial chain: %w", err)
	}

	prices := pricefeed.New(cfg.PriceFeed, tokens)
	ledgerMetrics := metrics.NewLedgerMetrics(params.Registerer)
	outboxRepo := outbox.NewRepository(params.DB.DB())
	emitter := outbox.NewService(outboxRepo, params.Logger)

	ledgerRepo := ledger.NewRepository(params.DB.DB())
	ledgerService, err := ledger.NewService(ledgerRepo, cfg.Ledger)
	if err != nil {
		chainClient.Close()
		return nil, err
	}

	accountRepo := accounts.NewRepository(params.DB.DB())
	accountService, err := accounts.NewService(accounts.ServiceParams{
		DB:     params.DB,
		Repo:   accountRepo,
		Outbox: emitter,
		Logger: params.Logger,
	})
	if err != nil {
		chainClient.Close()
		return nil, err
	}

	engine, err := referrals.NewEngine(referrals.EngineParams{
		DB:       params.DB,
		Ledger:   ledgerRepo,
		Accounts: accountRepo,
		Outbox:   emitter,
		Logger:   params.Logger,
		Metrics:  ledgerMetrics,
		Config:   cfg.Ledger,
	})
	if err != nil {
		chainClient.Close()
		return nil, err
	}

	accruer, err := roi.NewAccruer(roi.AccruerParams{
		DB:      params.DB,
		Ledger:  ledgerRepo,
		Outbox:  emitter,
		Logger:  params.Logger,
		Metrics: ledgerMetrics,
		Config:  cfg.Ledger,
	})
	if err != nil {
		chainClient.Close()
		return nil, err
	}

	depositService, err := deposits.NewService(deposits.ServiceParams{
		DB:          params.DB,
		Ledger:      ledgerRepo,
		Verifier:    chainClient,
		Prices:      prices,
		Commissions: engine,
		Outbox:      emitter,
		Logger:      params.Logger,
		Metrics:     ledgerMetrics,
		Config:      cfg.Ledger,
	})
	if err != nil {
		chainClient.Close()
		return nil, err
	}

	withdrawalService, err := withdrawals.NewService(withdrawals.ServiceParams{
		DB:          params.DB,
		Ledger:      ledgerRepo,
		Locks:       ledgerService,
		Windows:     withdrawals.NewWindowRepository(params.DB.DB()),
		Broadcaster: chainClient,
		Prices:      prices,
		Tokens:      tokens,
		Outbox:      emitter,
		Logger:      params.Logger,
		Metrics:     ledgerMetrics,
		Config:      cfg.Ledger,
	})
	if err != nil {
		chainClient.Close()
		return nil, err
	}

	return &Services{
		LedgerRepo:  ledgerRepo,
		Ledger:      ledgerService,
		Accounts:    accountService,
		Referrals:   engine,
		Accruer:     accruer,
		Deposits:    depositService,
		Withdrawals: withdrawalService,
		OutboxRepo:  outboxRepo,
		Chain:       chainClient,
		CronMetrics: metrics.NewCronJobMetrics(params.Registerer),
	}, nil
}

// NewJobRegistry registers the ledger jobs. The outbox retention job only
// runs in the cron worker; the API exposes the ledger jobs for manual runs.
func NewJobRegistry(params Params, services *Services, withRetention bool) (*cron.Registry, error) {
	roiJob, err := cron.NewRoiAccrualJob(cron.RoiAccrualJobParams{
		Logger:  params.Logger,
		Accruer: services.Accruer,
		Metrics: services.CronMetrics,
	})
	if err != nil {
		return nil, err
	}
	commissionJob, err := cron.NewMonthlyCommissionJob(cron.MonthlyCommissionJobParams{
		Logger:  params.Logger,
		Engine:  services.Referrals,
		Metrics: services.CronMetrics,
	})
	if err != nil {
		return nil, err
	}
	reconcileJob, err := cron.NewReconcileJob(cron.ReconcileJobParams{
		Logger:     params.Logger,
		Repository: services.LedgerRepo,
		Reconciler: services.Ledger,
		Metrics:    services.CronMetrics,
	})
	if err != nil {
		return nil, err
	}

	registry, err := cron.NewRegistry(roiJob, commissionJob, reconcileJob)
	if err != nil {
		return nil, err
	}
	if withRetention {
		retentionJob, err := cron.NewEventRetentionJob(cron.EventRetentionJobParams{
			Logger:        params.Logger,
			DB:            params.DB,
			Repository:    services.OutboxRepo,
			Metrics:       services.CronMetrics,
			RetentionDays: params.Config.Outbox.RetentionDays,
			MaxAttempts:   params.Config.Outbox.MaxAttempts,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(retentionJob); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// NewCronService builds the job runner guarded by the shared redis lock.
func NewCronService(params Params, services *Services, registry *cron.Registry) (*cron.Service, error) {
	if params.Redis == nil {
		return nil, fmt.Errorf("redis client required")
	}
	lock, err := cron.NewRedisLock(params.Redis, LockKey(params.Config.App.Env), params.Config.Cron.LockTTL)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   params.Logger,
		Registry: registry,
		Lock:     lock,
		Metrics:  services.CronMetrics,
		Interval: params.Config.Cron.Interval,
	})
}

// LockKey is the redis key that serializes job runs across the API and the
// cron worker.
func LockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
