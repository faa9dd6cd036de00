package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/metrics"
)

const (
	EventRetentionJobName = "event-retention"

	// A published event stays replayable for a full closed commission month
	// plus the reconciliation that follows it.
	defaultEventRetention = 90 * 24 * time.Hour
	defaultParkedAttempts = 10
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
	CountParked(ctx context.Context, tx *gorm.DB, maxAttempts int) (int64, error)
}

type EventRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository eventRetentionRepo
	Metrics    *metrics.CronJobMetrics
	// RetentionDays bounds how long a published ledger event is kept in the
	// outbox after delivery.
	RetentionDays int
	// MaxAttempts is the publisher's give-up threshold; rows at it are parked.
	MaxAttempts int
}

// NewEventRetentionJob prunes delivered ledger events from the outbox. Ledger
// entries themselves are never touched. Parked events were never delivered, so
// they are kept and reported until an operator replays or discards them.
func NewEventRetentionJob(params EventRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := defaultEventRetention
	if params.RetentionDays > 0 {
		retention = time.Duration(params.RetentionDays) * 24 * time.Hour
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultParkedAttempts
	}
	return &eventRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		metrics:     params.Metrics,
		retention:   retention,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

type eventRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        eventRetentionRepo
	metrics     *metrics.CronJobMetrics
	retention   time.Duration
	maxAttempts int
	now         func() time.Time
}

func (j *eventRetentionJob) Name() string { return EventRetentionJobName }

func (j *eventRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted, parked int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var errs error
		rows, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff)
		if err != nil {
			return fmt.Errorf("delete published events: %w", err)
		}
		deleted = rows
		parked, err = j.repo.CountParked(ctx, tx, j.maxAttempts)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("count parked events: %w", err))
		}
		return errs
	})
	if err != nil {
		return fmt.Errorf("event retention: %w", err)
	}
	j.metrics.AddItems(EventRetentionJobName, "deleted", int(deleted))
	j.metrics.AddItems(EventRetentionJobName, "parked", int(parked))

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": int(j.retention / (24 * time.Hour)),
		"rows_deleted":   deleted,
		"rows_parked":    parked,
	})
	if parked > 0 {
		j.logg.Warn(logCtx, "undelivered ledger events are parked in the outbox; replay or discard them")
	}
	j.logg.Info(logCtx, "ledger event retention complete")
	return nil
}
