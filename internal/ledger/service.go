package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/pagination"
)

// maxHistoryDays bounds a single History request.
const maxHistoryDays = 366

// Service exposes the read side of the ledger.
type Service interface {
	Breakdown(ctx context.Context, accountID uuid.UUID, now time.Time) (*BalanceBreakdown, error)
	LockState(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, now time.Time) (LockState, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, filters EntryFilters, params pagination.Params) (*EntryList, error)
	History(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]HistoryPoint, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*Reconciliation, error)
}

type service struct {
	repo Repository
	loc  *time.Location
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, cfg config.LedgerConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, loc: cfg.Location()}, nil
}

func (s *service) LockState(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, now time.Time) (LockState, error) {
	repo := s.repo.WithTx(tx)
	deposits, err := repo.ListCompletedDeposits(ctx, accountID)
	if err != nil {
		return LockState{}, err
	}
	withdrawals, err := repo.ListOpenWithdrawals(ctx, accountID)
	if err != nil {
		return LockState{}, err
	}
	earned, err := repo.SumCompleted(ctx, accountID, enums.EntryKindYield, enums.EntryKindCommission)
	if err != nil {
		return LockState{}, err
	}
	return ComputeLockState(deposits, withdrawals, earned, now), nil
}

func (s *service) Breakdown(ctx context.Context, accountID uuid.UUID, now time.Time) (*BalanceBreakdown, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	account, err := s.repo.FindAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	state, err := s.LockState(ctx, nil, accountID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "compute lock state")
	}
	return &BalanceBreakdown{
		AccountID:           account.ID,
		TotalBalance:        account.TotalBalance,
		AvailableBalance:    account.AvailableBalance,
		TotalInvested:       account.TotalInvested,
		RoiBalance:          account.RoiBalance,
		LockedPrincipal:     state.LockedPrincipal,
		UnlockedPrincipal:   state.UnlockedPrincipal,
		PrincipalWithdrawn:  state.PrincipalWithdrawn,
		TotalWithdrawn:      state.TotalWithdrawn,
		EarnedIncome:        state.EarnedIncome,
		AvailableWithdrawal: state.AvailableWithdrawal,
		NextUnlockAt:        state.NextUnlockAt,
	}, nil
}

func (s *service) ListEntries(ctx context.Context, accountID uuid.UUID, filters EntryFilters, params pagination.Params) (*EntryList, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if filters.Kind != nil && !filters.Kind.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid entry kind %q", *filters.Kind)
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid entry status %q", *filters.Status)
	}
	return s.repo.ListEntries(ctx, accountID, filters, params)
}

// History re-derives daily closing balances from the entries. Credits count
// once completed; withdrawals count as debits while pending or completed, so a
// failed withdrawal nets to zero.
func (s *service) History(ctx context.Context, accountID uuid.UUID, from, to time.Time) ([]HistoryPoint, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	start := startOfDay(from, s.loc)
	end := startOfDay(to, s.loc)
	if end.Before(start) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must not be after to")
	}
	days := int(end.Sub(start).Hours()/24) + 1
	if days > maxHistoryDays {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "history range is limited to %d days", maxHistoryDays)
	}
	if _, err := s.repo.FindAccount(ctx, accountID); err != nil {
		return nil, err
	}

	entries, err := s.repo.ListEntriesBefore(ctx, accountID, end.AddDate(0, 0, 1).UTC())
	if err != nil {
		return nil, err
	}

	points := make([]HistoryPoint, 0, days)
	balance := decimal.Zero
	idx := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		closeAt := day.AddDate(0, 0, 1)
		for idx < len(entries) && entries[idx].CreatedAt.Before(closeAt) {
			balance = balance.Add(balanceEffect(entries[idx]))
			idx++
		}
		points = append(points, HistoryPoint{Day: day.Format(DayLayout), Balance: balance})
	}
	return points, nil
}

func balanceEffect(entry models.LedgerEntry) decimal.Decimal {
	switch {
	case entry.Kind.IsCredit() && entry.Status == enums.EntryStatusCompleted:
		return entry.Amount
	case entry.Kind == enums.EntryKindWithdrawal && entry.Status != enums.EntryStatusFailed:
		return entry.Amount.Neg()
	default:
		return decimal.Zero
	}
}

func (s *service) Reconcile(ctx context.Context, accountID uuid.UUID) (*Reconciliation, error) {
	account, err := s.repo.FindAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	deposits, err := s.repo.SumCompleted(ctx, accountID, enums.EntryKindDeposit)
	if err != nil {
		return nil, err
	}
	earned, err := s.repo.SumCompleted(ctx, accountID, enums.EntryKindYield, enums.EntryKindCommission)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.repo.ListOpenWithdrawals(ctx, accountID)
	if err != nil {
		return nil, err
	}

	withdrawn, roiTaken, principalTaken := decimal.Zero, decimal.Zero, decimal.Zero
	for _, w := range withdrawals {
		withdrawn = withdrawn.Add(w.Amount)
		if meta, ok := w.Withdrawal(); ok {
			roiTaken = roiTaken.Add(meta.RoiDeduction)
			principalTaken = principalTaken.Add(meta.PrincipalDeduction)
		}
	}

	total := deposits.Add(earned).Sub(withdrawn)
	derived := BalanceDelta{
		Total:     total,
		Available: total,
		Invested:  deposits.Sub(principalTaken),
		Roi:       earned.Sub(roiTaken),
	}
	stored := BalanceDelta{
		Total:     account.TotalBalance,
		Available: account.AvailableBalance,
		Invested:  account.TotalInvested,
		Roi:       account.RoiBalance,
	}
	drift := BalanceDelta{
		Total:     stored.Total.Sub(derived.Total),
		Available: stored.Available.Sub(derived.Available),
		Invested:  stored.Invested.Sub(derived.Invested),
		Roi:       stored.Roi.Sub(derived.Roi),
	}
	return &Reconciliation{
		AccountID: accountID,
		Stored:    stored,
		Derived:   derived,
		Drift:     drift,
		Balanced:  drift.IsZero(),
	}, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DayBounds returns [start, end) of the business day containing t, in UTC.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	start := startOfDay(t, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}
