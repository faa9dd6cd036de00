package withdrawals

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubmitInput is a withdrawal request in the settlement currency.
type SubmitInput struct {
	AccountID   uuid.UUID
	Amount      decimal.Decimal
	Destination string
	Token       string
}
