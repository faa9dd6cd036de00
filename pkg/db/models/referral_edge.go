package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
)

// ReferralEdge links a referrer to a referee. Edges are written once at
// referee onboarding and only TotalEarnings changes afterwards.
type ReferralEdge struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ReferrerID    uuid.UUID           `gorm:"column:referrer_id;type:uuid;not null" json:"referrer_id"`
	RefereeID     uuid.UUID           `gorm:"column:referee_id;type:uuid;not null" json:"referee_id"`
	Level         enums.ReferralLevel `gorm:"column:level;not null" json:"level"`
	TotalEarnings decimal.Decimal     `gorm:"column:total_earnings;type:numeric(20,8);not null;default:0" json:"total_earnings"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ReferralEdge) TableName() string { return "referral_edges" }

func (e *ReferralEdge) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
