package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/yieldvault-backend/internal/roi"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/metrics"
)

const RoiAccrualJobName = "roi-accrual"

type accrualRunner interface {
	Run(ctx context.Context, now time.Time) (roi.Report, error)
}

type RoiAccrualJobParams struct {
	Logger  *logger.Logger
	Accruer accrualRunner
	Metrics *metrics.CronJobMetrics
	Clock   func() time.Time
}

func NewRoiAccrualJob(params RoiAccrualJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Accruer == nil {
		return nil, fmt.Errorf("accruer required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &roiAccrualJob{
		logg:    params.Logger,
		accruer: params.Accruer,
		metrics: params.Metrics,
		now:     clock,
	}, nil
}

type roiAccrualJob struct {
	logg    *logger.Logger
	accruer accrualRunner
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *roiAccrualJob) Name() string { return RoiAccrualJobName }

func (j *roiAccrualJob) Run(ctx context.Context) error {
	report, err := j.accruer.Run(ctx, j.now().UTC())
	j.record(roi.OutcomeCredited, report.Credited)
	j.record(roi.OutcomeSkipped, report.Skipped)
	j.record(roi.OutcomeError, report.Failed)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"day":      report.Day,
		"weekend":  report.Weekend,
		"credited": report.Credited,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
		"total":    report.Total.String(),
	})
	j.logg.Info(logCtx, "yield accrual summary")
	if err != nil {
		return fmt.Errorf("yield accrual: %w", err)
	}
	return nil
}

func (j *roiAccrualJob) record(outcome string, count int) {
	if j.metrics == nil || count == 0 {
		return
	}
	j.metrics.AddItems(RoiAccrualJobName, outcome, count)
}
