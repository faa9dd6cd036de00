package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
)

// BalanceDelta is applied as column increments. Negative values decrement.
type BalanceDelta struct {
	Total     decimal.Decimal `json:"total"`
	Available decimal.Decimal `json:"available"`
	Invested  decimal.Decimal `json:"invested"`
	Roi       decimal.Decimal `json:"roi"`
}

// IsZero reports whether the delta changes nothing.
func (d BalanceDelta) IsZero() bool {
	return d.Total.IsZero() && d.Available.IsZero() && d.Invested.IsZero() && d.Roi.IsZero()
}

// EarningCredit is the delta for yield and commission entries.
func EarningCredit(amount decimal.Decimal) BalanceDelta {
	return BalanceDelta{Total: amount, Available: amount, Roi: amount}
}

// DepositCredit is the delta for a confirmed deposit.
func DepositCredit(amount decimal.Decimal) BalanceDelta {
	return BalanceDelta{Total: amount, Available: amount, Invested: amount}
}

// Reservation removes a pending withdrawal from the balance. Amount must equal
// RoiDeduction + PrincipalDeduction.
type Reservation struct {
	Amount             decimal.Decimal
	RoiDeduction       decimal.Decimal
	PrincipalDeduction decimal.Decimal
}

// Refund is the delta that reverses r.
func (r Reservation) Refund() BalanceDelta {
	return BalanceDelta{
		Total:     r.Amount,
		Available: r.Amount,
		Invested:  r.PrincipalDeduction,
		Roi:       r.RoiDeduction,
	}
}

// EntryFilters narrows ListEntries.
type EntryFilters struct {
	Kind   *enums.EntryKind
	Status *enums.EntryStatus
}

// EntryList is one page of ledger entries.
type EntryList struct {
	Entries    []models.LedgerEntry `json:"entries"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

// BalanceBreakdown is the read model shown to account holders.
type BalanceBreakdown struct {
	AccountID           uuid.UUID       `json:"account_id"`
	TotalBalance        decimal.Decimal `json:"total_balance"`
	AvailableBalance    decimal.Decimal `json:"available_balance"`
	TotalInvested       decimal.Decimal `json:"total_invested"`
	RoiBalance          decimal.Decimal `json:"roi_balance"`
	LockedPrincipal     decimal.Decimal `json:"locked_principal"`
	UnlockedPrincipal   decimal.Decimal `json:"unlocked_principal"`
	PrincipalWithdrawn  decimal.Decimal `json:"principal_withdrawn"`
	TotalWithdrawn      decimal.Decimal `json:"total_withdrawn"`
	EarnedIncome        decimal.Decimal `json:"earned_income"`
	AvailableWithdrawal decimal.Decimal `json:"available_withdrawal"`
	NextUnlockAt        *time.Time      `json:"next_unlock_at,omitempty"`
}

// HistoryPoint is the closing balance of one business day.
type HistoryPoint struct {
	Day     string          `json:"day"`
	Balance decimal.Decimal `json:"balance"`
}

// Reconciliation compares the stored balance columns with the values the
// entries imply.
type Reconciliation struct {
	AccountID uuid.UUID    `json:"account_id"`
	Stored    BalanceDelta `json:"stored"`
	Derived   BalanceDelta `json:"derived"`
	Drift     BalanceDelta `json:"drift"`
	Balanced  bool         `json:"balanced"`
}

// StaleClaim is a withdrawal claimed for approval that never resolved.
type StaleClaim struct {
	EntryID   uuid.UUID  `json:"entry_id"`
	AccountID uuid.UUID  `json:"account_id"`
	ClaimedBy *uuid.UUID `json:"claimed_by,omitempty"`
	ClaimedAt time.Time  `json:"claimed_at"`
}
