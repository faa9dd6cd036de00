package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/metrics"
)

const (
	ReconcileJobName     = "reconcile"
	defaultStaleClaimAge = time.Hour
)

type reconcileRepo interface {
	ListAccountIDs(ctx context.Context) ([]uuid.UUID, error)
	ListStaleClaims(ctx context.Context, claimedBefore time.Time) ([]ledger.StaleClaim, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, accountID uuid.UUID) (*ledger.Reconciliation, error)
}

type ReconcileJobParams struct {
	Logger        *logger.Logger
	Repository    reconcileRepo
	Reconciler    reconciler
	Metrics       *metrics.CronJobMetrics
	StaleClaimAge time.Duration
	Clock         func() time.Time
}

// NewReconcileJob builds the job that reports balance drift and withdrawals
// stuck in a claimed state. It never mutates balances or entries.
func NewReconcileJob(params ReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	age := params.StaleClaimAge
	if age <= 0 {
		age = defaultStaleClaimAge
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &reconcileJob{
		logg:       params.Logger,
		repo:       params.Repository,
		reconciler: params.Reconciler,
		metrics:    params.Metrics,
		staleAge:   age,
		now:        clock,
	}, nil
}

type reconcileJob struct {
	logg       *logger.Logger
	repo       reconcileRepo
	reconciler reconciler
	metrics    *metrics.CronJobMetrics
	staleAge   time.Duration
	now        func() time.Time
}

func (j *reconcileJob) Name() string { return ReconcileJobName }

func (j *reconcileJob) Run(ctx context.Context) error {
	var errs error

	claims, err := j.repo.ListStaleClaims(ctx, j.now().UTC().Add(-j.staleAge))
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("list stale claims: %w", err))
	}
	for _, claim := range claims {
		fields := map[string]any{
			"entry_id":   claim.EntryID.String(),
			"account_id": claim.AccountID.String(),
			"claimed_at": claim.ClaimedAt,
		}
		if claim.ClaimedBy != nil {
			fields["claimed_by"] = claim.ClaimedBy.String()
		}
		j.logg.Warn(j.logg.WithFields(ctx, fields), "withdrawal claimed but never resolved; verify the transfer on chain")
	}
	j.metrics.AddItems(ReconcileJobName, "stale_claim", len(claims))

	ids, err := j.repo.ListAccountIDs(ctx)
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("list accounts: %w", err))
	}
	balanced, drifted := 0, 0
	for _, id := range ids {
		result, err := j.reconciler.Reconcile(ctx, id)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", id, err))
			continue
		}
		if result.Balanced {
			balanced++
			continue
		}
		drifted++
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{
			"account_id":      id.String(),
			"drift_total":     result.Drift.Total.String(),
			"drift_available": result.Drift.Available.String(),
			"drift_invested":  result.Drift.Invested.String(),
			"drift_roi":       result.Drift.Roi.String(),
		}), "balance drift detected")
	}
	j.metrics.AddItems(ReconcileJobName, "balanced", balanced)
	j.metrics.AddItems(ReconcileJobName, "drift", drifted)

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"accounts":     len(ids),
		"balanced":     balanced,
		"drifted":      drifted,
		"stale_claims": len(claims),
	}), "reconciliation summary")

	if drifted > 0 {
		errs = multierr.Append(errs, fmt.Errorf("%d accounts drifted from their ledger", drifted))
	}
	return errs
}
