package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
)

// SettlementToken is the token label used for entries denominated directly in
// the settlement currency (yield and commission).
const SettlementToken = "USD"

// LedgerEntry is one append-only money movement.
type LedgerEntry struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	AccountID      uuid.UUID         `gorm:"column:account_id;type:uuid;not null;index" json:"account_id"`
	Kind           enums.EntryKind   `gorm:"column:kind;type:ledger_entry_kind;not null" json:"kind"`
	Status         enums.EntryStatus `gorm:"column:status;type:ledger_entry_status;not null" json:"status"`
	Amount         decimal.Decimal   `gorm:"column:amount;type:numeric(20,8);not null" json:"amount"`
	CryptoAmount   decimal.Decimal   `gorm:"column:crypto_amount;type:numeric(38,18);not null" json:"crypto_amount"`
	Token          string            `gorm:"column:token;not null" json:"token"`
	ExchangeRate   decimal.Decimal   `gorm:"column:exchange_rate;type:numeric(20,8);not null" json:"exchange_rate"`
	IdempotencyKey string            `gorm:"column:idempotency_key;not null;uniqueIndex" json:"idempotency_key"`
	Annotation     Annotation        `gorm:"column:annotation;type:jsonb" json:"annotation"`
	ClaimedBy      *uuid.UUID        `gorm:"column:claimed_by;type:uuid" json:"claimed_by,omitempty"`
	ClaimedAt      *time.Time        `gorm:"column:claimed_at" json:"claimed_at,omitempty"`
	CompletedAt    *time.Time        `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// Withdrawal returns the withdrawal annotation when the entry carries one.
func (e LedgerEntry) Withdrawal() (*WithdrawalAnnotation, bool) {
	payload, ok := e.Annotation.Payload.(*WithdrawalAnnotation)
	return payload, ok && payload != nil
}

// Deposit returns the deposit annotation when the entry carries one.
func (e LedgerEntry) Deposit() (*DepositAnnotation, bool) {
	payload, ok := e.Annotation.Payload.(*DepositAnnotation)
	return payload, ok && payload != nil
}

// Commission returns the commission annotation when the entry carries one.
func (e LedgerEntry) Commission() (*CommissionAnnotation, bool) {
	payload, ok := e.Annotation.Payload.(*CommissionAnnotation)
	return payload, ok && payload != nil
}

// IsClaimed reports whether an admin already reserved the entry for processing.
func (e LedgerEntry) IsClaimed() bool {
	return e.ClaimedAt != nil
}
