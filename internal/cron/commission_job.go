package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/yieldvault-backend/internal/referrals"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/metrics"
)

const MonthlyCommissionJobName = "monthly-commission"

type monthlyRunner interface {
	RunMonthly(ctx context.Context, now time.Time) (referrals.Report, error)
}

type MonthlyCommissionJobParams struct {
	Logger  *logger.Logger
	Engine  monthlyRunner
	Metrics *metrics.CronJobMetrics
	Clock   func() time.Time
}

// NewMonthlyCommissionJob wraps the monthly commission run. The job is safe to
// run on every cycle: each edge is paid at most once per month.
func NewMonthlyCommissionJob(params MonthlyCommissionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Engine == nil {
		return nil, fmt.Errorf("commission engine required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &monthlyCommissionJob{
		logg:    params.Logger,
		engine:  params.Engine,
		metrics: params.Metrics,
		now:     clock,
	}, nil
}

type monthlyCommissionJob struct {
	logg    *logger.Logger
	engine  monthlyRunner
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *monthlyCommissionJob) Name() string { return MonthlyCommissionJobName }

func (j *monthlyCommissionJob) Run(ctx context.Context) error {
	report, err := j.engine.RunMonthly(ctx, j.now().UTC())
	if j.metrics != nil {
		j.metrics.AddItems(MonthlyCommissionJobName, referrals.OutcomePaid, report.Paid)
		j.metrics.AddItems(MonthlyCommissionJobName, referrals.OutcomeSkipped, report.Skipped)
		j.metrics.AddItems(MonthlyCommissionJobName, referrals.OutcomeError, report.Failed)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"month":   report.Month,
		"paid":    report.Paid,
		"skipped": report.Skipped,
		"failed":  report.Failed,
		"total":   report.Total.String(),
	})
	j.logg.Info(logCtx, "monthly commission summary")
	if err != nil {
		return fmt.Errorf("monthly commission: %w", err)
	}
	return nil
}
