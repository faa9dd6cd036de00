package enums

import "fmt"

// ReferralLevel is the distance between referrer and referee. Depth is fixed at 2.
type ReferralLevel int

const (
	ReferralLevelDirect   ReferralLevel = 1
	ReferralLevelIndirect ReferralLevel = 2
)

func (l ReferralLevel) IsValid() bool {
	return l == ReferralLevelDirect || l == ReferralLevelIndirect
}

func ParseReferralLevel(value int) (ReferralLevel, error) {
	level := ReferralLevel(value)
	if !level.IsValid() {
		return 0, fmt.Errorf("invalid referral level %d", value)
	}
	return level, nil
}

// CommissionTrigger records why a commission was paid.
type CommissionTrigger string

const (
	CommissionTriggerInstant CommissionTrigger = "instant"
	CommissionTriggerMonthly CommissionTrigger = "monthly"
)

func (t CommissionTrigger) IsValid() bool {
	return t == CommissionTriggerInstant || t == CommissionTriggerMonthly
}
