package enums

import "fmt"

// WithdrawalMode distinguishes earnings payouts from principal payouts.
type WithdrawalMode string

const (
	WithdrawalModeEarnings  WithdrawalMode = "earnings"
	WithdrawalModePrincipal WithdrawalMode = "principal"
)

func (m WithdrawalMode) IsValid() bool {
	return m == WithdrawalModeEarnings || m == WithdrawalModePrincipal
}

func ParseWithdrawalMode(value string) (WithdrawalMode, error) {
	mode := WithdrawalMode(value)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid withdrawal mode %q", value)
	}
	return mode, nil
}
