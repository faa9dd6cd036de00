package payloads

import (
	"time"

	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountOnboardedEvent is emitted once per account creation.
type AccountOnboardedEvent struct {
	AccountID   uuid.UUID  `json:"account_id"`
	Level1ID    *uuid.UUID `json:"level1_referrer_id,omitempty"`
	Level2ID    *uuid.UUID `json:"level2_referrer_id,omitempty"`
	OnboardedAt time.Time  `json:"onboarded_at"`
}

// DepositConfirmedEvent carries a verified deposit and its lock expiry.
type DepositConfirmedEvent struct {
	EntryID      uuid.UUID       `json:"entry_id"`
	AccountID    uuid.UUID       `json:"account_id"`
	Amount       decimal.Decimal `json:"amount"`
	CryptoAmount decimal.Decimal `json:"crypto_amount"`
	Token        string          `json:"token"`
	TxHash       string          `json:"tx_hash"`
	LockedUntil  time.Time       `json:"locked_until"`
	FirstDeposit bool            `json:"first_deposit"`
}

// YieldCreditedEvent is emitted per account per accrual day.
type YieldCreditedEvent struct {
	EntryID   uuid.UUID       `json:"entry_id"`
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Day       string          `json:"day"`
}

// CommissionPaidEvent covers both the instant and the monthly tier.
type CommissionPaidEvent struct {
	EntryID    uuid.UUID               `json:"entry_id"`
	ReferrerID uuid.UUID               `json:"referrer_id"`
	RefereeID  uuid.UUID               `json:"referee_id"`
	Level      enums.ReferralLevel     `json:"level"`
	Trigger    enums.CommissionTrigger `json:"trigger"`
	Amount     decimal.Decimal         `json:"amount"`
}

// WithdrawalRequestedEvent is emitted when funds are reserved.
type WithdrawalRequestedEvent struct {
	EntryID     uuid.UUID            `json:"entry_id"`
	AccountID   uuid.UUID            `json:"account_id"`
	Mode        enums.WithdrawalMode `json:"mode"`
	Amount      decimal.Decimal      `json:"amount"`
	Destination string               `json:"destination"`
	Token       string               `json:"token"`
}

// WithdrawalResolvedEvent is emitted for completed and failed withdrawals.
type WithdrawalResolvedEvent struct {
	EntryID     uuid.UUID         `json:"entry_id"`
	AccountID   uuid.UUID         `json:"account_id"`
	Status      enums.EntryStatus `json:"status"`
	Amount      decimal.Decimal   `json:"amount"`
	TransferRef string            `json:"transfer_ref,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Refunded    bool              `json:"refunded"`
}
