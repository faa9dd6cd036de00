package enums

import "fmt"

// EntryKind maps to the ledger_entry_kind enum in Postgres.
type EntryKind string

const (
	EntryKindDeposit    EntryKind = "deposit"
	EntryKindWithdrawal EntryKind = "withdrawal"
	EntryKindYield      EntryKind = "yield"
	EntryKindCommission EntryKind = "commission"
)

var validEntryKinds = []EntryKind{
	EntryKindDeposit,
	EntryKindWithdrawal,
	EntryKindYield,
	EntryKindCommission,
}

// IsValid reports whether the value matches the canonical entry kind enum.
func (k EntryKind) IsValid() bool {
	for _, candidate := range validEntryKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsCredit reports whether completed entries of this kind add to the balance.
func (k EntryKind) IsCredit() bool {
	return k == EntryKindDeposit || k == EntryKindYield || k == EntryKindCommission
}

// IsEarning reports whether the kind counts as earned income.
func (k EntryKind) IsEarning() bool {
	return k == EntryKindYield || k == EntryKindCommission
}

// ParseEntryKind converts raw input into EntryKind.
func ParseEntryKind(value string) (EntryKind, error) {
	for _, candidate := range validEntryKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entry kind %q", value)
}
