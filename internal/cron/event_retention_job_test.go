package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
)

func TestEventRetentionJobUsesConfiguredPolicy(t *testing.T) {
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	repo := &fakeEventRetentionRepo{parked: 3}
	job := newEventRetentionJob(t, repo, EventRetentionJobParams{RetentionDays: 30, MaxAttempts: 7})
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.AddDate(0, 0, -30); !repo.lastCutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, repo.lastCutoff)
	}
	if repo.maxAttempts != 7 {
		t.Fatalf("expected parked threshold 7, got %d", repo.maxAttempts)
	}
	if repo.deletes != 1 {
		t.Fatalf("expected one delete, got %d", repo.deletes)
	}
}

func TestEventRetentionJobDefaults(t *testing.T) {
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	repo := &fakeEventRetentionRepo{}
	job := newEventRetentionJob(t, repo, EventRetentionJobParams{})
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.AddDate(0, 0, -90); !repo.lastCutoff.Equal(want) {
		t.Fatalf("expected 90 day cutoff %s, got %s", want, repo.lastCutoff)
	}
	if repo.maxAttempts != defaultParkedAttempts {
		t.Fatalf("expected parked threshold %d, got %d", defaultParkedAttempts, repo.maxAttempts)
	}
}

func TestEventRetentionJobPropagatesError(t *testing.T) {
	for name, repo := range map[string]*fakeEventRetentionRepo{
		"delete": {deleteErr: errors.New("boom")},
		"count":  {countErr: errors.New("boom")},
	} {
		t.Run(name, func(t *testing.T) {
			job := newEventRetentionJob(t, repo, EventRetentionJobParams{})
			if err := job.Run(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func newEventRetentionJob(t *testing.T, repo *fakeEventRetentionRepo, params EventRetentionJobParams) *eventRetentionJob {
	t.Helper()
	params.Logger = logger.New(logger.Options{ServiceName: "test"})
	params.DB = retentionTxRunner{}
	params.Repository = repo
	jobIface, err := NewEventRetentionJob(params)
	if err != nil {
		t.Fatalf("NewEventRetentionJob: %v", err)
	}
	job, ok := jobIface.(*eventRetentionJob)
	if !ok {
		t.Fatalf("expected eventRetentionJob, got %T", jobIface)
	}
	return job
}

type fakeEventRetentionRepo struct {
	lastCutoff  time.Time
	maxAttempts int
	deletes     int
	parked      int64
	deleteErr   error
	countErr    error
}

func (f *fakeEventRetentionRepo) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.deletes++
	f.lastCutoff = cutoff
	if f.deleteErr != nil {
		return 0, f.deleteErr
	}
	return 7, nil
}

func (f *fakeEventRetentionRepo) CountParked(_ context.Context, _ *gorm.DB, maxAttempts int) (int64, error) {
	f.maxAttempts = maxAttempts
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.parked, nil
}

type retentionTxRunner struct{}

func (retentionTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
