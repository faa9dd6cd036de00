package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
)

// Account is the per-participant balance record. Balance columns only move
// through atomic increments issued alongside a ledger entry.
type Account struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	IdentityID       string              `gorm:"column:identity_id;not null;uniqueIndex" json:"-"`
	WalletAddress    string              `gorm:"column:wallet_address;not null;default:''" json:"wallet_address"`
	ReferralCode     string              `gorm:"column:referral_code;not null;uniqueIndex" json:"referral_code"`
	Status           enums.AccountStatus `gorm:"column:status;type:account_status;not null" json:"status"`
	TotalBalance     decimal.Decimal     `gorm:"column:total_balance;type:numeric(20,8);not null;default:0" json:"total_balance"`
	AvailableBalance decimal.Decimal     `gorm:"column:available_balance;type:numeric(20,8);not null;default:0" json:"available_balance"`
	TotalInvested    decimal.Decimal     `gorm:"column:total_invested;type:numeric(20,8);not null;default:0" json:"total_invested"`
	RoiBalance       decimal.Decimal     `gorm:"column:roi_balance;type:numeric(20,8);not null;default:0" json:"roi_balance"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

func (a *Account) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = enums.AccountStatusActive
	}
	return nil
}

// IsActive reports whether the account accrues yield.
func (a Account) IsActive() bool {
	return a.Status == enums.AccountStatusActive
}
