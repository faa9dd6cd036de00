package models

import (
	"time"

	"github.com/google/uuid"
)

// WithdrawalWindowID is the primary key of the singleton window row.
const WithdrawalWindowID = 1

// WithdrawalWindow bounds when new withdrawal requests are accepted.
type WithdrawalWindow struct {
	ID        int        `gorm:"column:id;primaryKey" json:"-"`
	OpensAt   *time.Time `gorm:"column:opens_at" json:"opens_at"`
	ClosesAt  *time.Time `gorm:"column:closes_at" json:"closes_at"`
	UpdatedBy *uuid.UUID `gorm:"column:updated_by;type:uuid" json:"updated_by,omitempty"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (WithdrawalWindow) TableName() string { return "withdrawal_window" }
