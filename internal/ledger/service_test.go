package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/pagination"
)

func newTestService(t *testing.T, f *fixture) Service {
	t.Helper()
	svc, err := NewService(f.repo, config.LedgerConfig{BusinessTimeZone: "UTC"})
	require.NoError(t, err)
	return svc
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil, config.LedgerConfig{})
	require.Error(t, err)
}

func TestBreakdownCombinesColumnsAndLockState(t *testing.T) {
	f := newFixture(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	account := f.account("1050", "1050", "1000", "50")
	unlock := LockedUntil(t0, 4)
	f.entry(account.ID, enums.EntryKindDeposit, enums.EntryStatusCompleted, "1000", t0, &models.DepositAnnotation{TxHash: "0x01", LockedUntil: &unlock})
	f.entry(account.ID, enums.EntryKindYield, enums.EntryStatusCompleted, "50", t0.AddDate(0, 0, 1), &models.YieldAnnotation{})

	got, err := svc.Breakdown(ctx, account.ID, t0.AddDate(0, 0, 2))
	require.NoError(t, err)
	requireDecimal(t, "1050", got.TotalBalance)
	requireDecimal(t, "1000", got.LockedPrincipal)
	requireDecimal(t, "0", got.UnlockedPrincipal)
	requireDecimal(t, "50", got.EarnedIncome)
	requireDecimal(t, "50", got.AvailableWithdrawal)
	require.NotNil(t, got.NextUnlockAt)
	require.True(t, got.NextUnlockAt.Equal(unlock))

	later, err := svc.Breakdown(ctx, account.ID, unlock)
	require.NoError(t, err)
	requireDecimal(t, "0", later.LockedPrincipal)
	requireDecimal(t, "1050", later.AvailableWithdrawal)
	require.Nil(t, later.NextUnlockAt)

	_, err = svc.Breakdown(ctx, uuid.New(), t0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = svc.Breakdown(ctx, uuid.Nil, t0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListEntriesValidatesFilters(t *testing.T) {
	f := newFixture(t)
	svc := newTestService(t, f)
	account := f.account()

	kind := enums.EntryKind("refund")
	_, err := svc.ListEntries(context.Background(), account.ID, EntryFilters{Kind: &kind}, pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	status := enums.EntryStatus("void")
	_, err = svc.ListEntries(context.Background(), account.ID, EntryFilters{Status: &status}, pagination.Params{})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestHistoryReplaysDailyClosingBalances(t *testing.T) {
	f := newFixture(t)
	svc := newTestService(t, f)
	ctx := context.Background()
	account := f.account()

	day := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)
	f.entry(account.ID, enums.EntryKindDeposit, enums.EntryStatusCompleted, "1000", day.Add(9*time.Hour), &models.DepositAnnotation{})
	f.entry(account.ID, enums.EntryKindYield, enums.EntryStatusCompleted, "5", day.AddDate(0, 0, 1).Add(time.Hour), &models.YieldAnnotation{})
	f.entry(account.ID, enums.EntryKindWithdrawal, enums.EntryStatusPending, "100", day.AddDate(0, 0, 2).Add(time.Hour), &models.WithdrawalAnnotation{})
	f.entry(account.ID, enums.EntryKindWithdrawal, enums.EntryStatusFailed, "200", day.AddDate(0, 0, 2).Add(2*time.Hour), &models.WithdrawalAnnotation{})
	f.entry(account.ID, enums.EntryKindDeposit, enums.EntryStatusPending, "300", day.AddDate(0, 0, 3), &models.DepositAnnotation{})

	points, err := svc.History(ctx, account.ID, day.AddDate(0, 0, -1), day.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Len(t, points, 5)

	want := []struct {
		day     string
		balance string
	}{
		{"2026-10-11", "0"},
		{"2026-10-12", "1000"},
		{"2026-10-13", "1005"},
		{"2026-10-14", "905"},
		{"2026-10-15", "905"},
	}
	for i, w := range want {
		require.Equal(t, w.day, points[i].Day)
		requireDecimal(t, w.balance, points[i].Balance, w.day)
	}
}

func TestHistoryRejectsBadRanges(t *testing.T) {
	f := newFixture(t)
	svc := newTestService(t, f)
	ctx := context.Background()
	account := f.account()

	_, err := svc.History(ctx, account.ID, t0, t0.AddDate(0, 0, -1))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.History(ctx, account.ID, t0.AddDate(-2, 0, 0), t0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.History(ctx, uuid.New(), t0, t0)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReconcileDetectsDrift(t *testing.T) {
	f := newFixture(t)
	svc := newTestService(t, f)
	ctx := context.Background()

	account := f.account("950", "950", "960", "-10")
	f.entry(account.ID, enums.EntryKindDeposit, enums.EntryStatusCompleted, "1000", t0, &models.DepositAnnotation{})
	f.entry(account.ID, enums.EntryKindYield, enums.EntryStatusCompleted, "10", t0, &models.YieldAnnotation{})
	f.entry(account.ID, enums.EntryKindWithdrawal, enums.EntryStatusPending, "50", t0, &models.WithdrawalAnnotation{
		RoiDeduction:       decimal.NewFromInt(10),
		PrincipalDeduction: decimal.NewFromInt(40),
	})
	f.entry(account.ID, enums.EntryKindWithdrawal, enums.EntryStatusFailed, "70", t0, &models.WithdrawalAnnotation{
		RoiDeduction: decimal.NewFromInt(70),
	})

	report, err := svc.Reconcile(ctx, account.ID)
	require.NoError(t, err)
	require.False(t, report.Balanced)
	requireDecimal(t, "960", report.Derived.Total)
	requireDecimal(t, "960", report.Derived.Invested)
	requireDecimal(t, "0", report.Derived.Roi)
	requireDecimal(t, "-10", report.Drift.Total)
	requireDecimal(t, "-10", report.Drift.Roi)
	require.True(t, report.Drift.Invested.IsZero())

	require.NoError(t, f.repo.ApplyDelta(ctx, account.ID, EarningCredit(decimal.NewFromInt(10))))
	report, err = svc.Reconcile(ctx, account.ID)
	require.NoError(t, err)
	require.True(t, report.Balanced, "drift %+v", report.Drift)
}
