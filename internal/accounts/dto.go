package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
)

// OnboardInput identifies the caller and the optional referral code they signed up with.
type OnboardInput struct {
	IdentityID    string
	WalletAddress string
	ReferralCode  string
}

// OnboardResult reports whether the call created the account.
type OnboardResult struct {
	Account *models.Account
	Created bool
}

// AccountView is the account as shown to its holder.
type AccountView struct {
	ID            uuid.UUID           `json:"id"`
	WalletAddress string              `json:"wallet_address,omitempty"`
	ReferralCode  string              `json:"referral_code"`
	Status        enums.AccountStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewAccountView maps the stored account.
func NewAccountView(account *models.Account) AccountView {
	return AccountView{
		ID:            account.ID,
		WalletAddress: account.WalletAddress,
		ReferralCode:  account.ReferralCode,
		Status:        account.Status,
		CreatedAt:     account.CreatedAt,
	}
}

// ReferralView is one referee seen from the referrer side.
type ReferralView struct {
	RefereeID     uuid.UUID           `json:"referee_id"`
	Level         enums.ReferralLevel `json:"level"`
	TotalEarnings decimal.Decimal     `json:"total_earnings"`
	CreatedAt     time.Time           `json:"created_at"`
}
