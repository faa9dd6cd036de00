package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
)

// LockState splits deposited principal into locked and unlocked parts and
// derives how much may still be withdrawn.
type LockState struct {
	LockedPrincipal     decimal.Decimal
	UnlockedPrincipal   decimal.Decimal
	PrincipalWithdrawn  decimal.Decimal
	TotalWithdrawn      decimal.Decimal
	EarnedIncome        decimal.Decimal
	AvailableWithdrawal decimal.Decimal
	NextUnlockAt        *time.Time
}

// WithdrawablePrincipal is unlocked principal not yet taken by a pending or
// completed withdrawal.
func (s LockState) WithdrawablePrincipal() decimal.Decimal {
	return decimal.Max(decimal.Zero, s.UnlockedPrincipal.Sub(s.PrincipalWithdrawn))
}

// LockedUntil is the unlock instant for a deposit made at depositedAt.
func LockedUntil(depositedAt time.Time, lockMonths int) time.Time {
	return depositedAt.AddDate(0, lockMonths, 0)
}

// ComputeLockState is a pure read over completed deposits and withdrawals.
// earned is the gross completed yield and commission. Deposits without lock
// metadata count as unlocked; withdrawals that failed are ignored.
func ComputeLockState(deposits, withdrawals []models.LedgerEntry, earned decimal.Decimal, now time.Time) LockState {
	state := LockState{
		LockedPrincipal:    decimal.Zero,
		UnlockedPrincipal:  decimal.Zero,
		PrincipalWithdrawn: decimal.Zero,
		TotalWithdrawn:     decimal.Zero,
		EarnedIncome:       earned,
	}

	for _, deposit := range deposits {
		if deposit.Kind != enums.EntryKindDeposit || deposit.Status != enums.EntryStatusCompleted {
			continue
		}
		meta, ok := deposit.Deposit()
		if !ok || meta.LockedUntil == nil || !meta.LockedUntil.After(now) {
			state.UnlockedPrincipal = state.UnlockedPrincipal.Add(deposit.Amount)
			continue
		}
		state.LockedPrincipal = state.LockedPrincipal.Add(deposit.Amount)
		if state.NextUnlockAt == nil || meta.LockedUntil.Before(*state.NextUnlockAt) {
			unlock := *meta.LockedUntil
			state.NextUnlockAt = &unlock
		}
	}

	for _, withdrawal := range withdrawals {
		if withdrawal.Kind != enums.EntryKindWithdrawal || withdrawal.Status == enums.EntryStatusFailed {
			continue
		}
		state.TotalWithdrawn = state.TotalWithdrawn.Add(withdrawal.Amount)
		if meta, ok := withdrawal.Withdrawal(); ok {
			state.PrincipalWithdrawn = state.PrincipalWithdrawn.Add(meta.PrincipalDeduction)
		}
	}

	available := earned.Add(state.UnlockedPrincipal).Sub(state.TotalWithdrawn)
	state.AvailableWithdrawal = decimal.Max(decimal.Zero, available)
	return state
}
