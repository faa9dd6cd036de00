package enums

import "fmt"

// EntryStatus maps to the ledger_entry_status enum in Postgres.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "pending"
	EntryStatusCompleted EntryStatus = "completed"
	EntryStatusFailed    EntryStatus = "failed"
)

var validEntryStatuses = []EntryStatus{
	EntryStatusPending,
	EntryStatusCompleted,
	EntryStatusFailed,
}

// IsValid reports whether the value matches the canonical entry status enum.
func (s EntryStatus) IsValid() bool {
	for _, candidate := range validEntryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the entry can no longer change.
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusCompleted || s == EntryStatusFailed
}

// CanTransitionTo only admits pending -> completed and pending -> failed.
func (s EntryStatus) CanTransitionTo(next EntryStatus) bool {
	return s == EntryStatusPending && next.IsTerminal()
}

// ParseEntryStatus converts raw input into EntryStatus.
func ParseEntryStatus(value string) (EntryStatus, error) {
	for _, candidate := range validEntryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entry status %q", value)
}
