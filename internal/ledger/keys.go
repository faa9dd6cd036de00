package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Idempotency keys. Each money movement has exactly one natural key.

func DepositKey(txHash string) string {
	return "deposit:" + strings.ToLower(strings.TrimSpace(txHash))
}

func YieldKey(day time.Time, accountID uuid.UUID) string {
	return fmt.Sprintf("yield:%s:%s", day.Format(DayLayout), accountID)
}

func InstantCommissionKey(depositEntryID, referrerID uuid.UUID) string {
	return fmt.Sprintf("commission:instant:%s:%s", depositEntryID, referrerID)
}

func MonthlyCommissionKey(month time.Time, referrerID, refereeID uuid.UUID) string {
	return fmt.Sprintf("commission:monthly:%s:%s:%s", month.Format(MonthLayout), referrerID, refereeID)
}

func WithdrawalKey(entryID uuid.UUID) string {
	return "withdrawal:" + entryID.String()
}

const (
	DayLayout   = "2006-01-02"
	MonthLayout = "2006-01"
)
