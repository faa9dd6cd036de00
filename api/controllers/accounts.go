package controllers

import (
	"net/http"

	"github.com/angelmondragon/yieldvault-backend/api/middleware"
	"github.com/angelmondragon/yieldvault-backend/api/responses"
	"github.com/angelmondragon/yieldvault-backend/api/validators"
	"github.com/angelmondragon/yieldvault-backend/internal/accounts"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
)

type onboardRequest struct {
	WalletAddress string `json:"wallet_address" validate:"omitempty,max=64"`
	ReferralCode  string `json:"referral_code" validate:"omitempty,max=32"`
}

// AccountOnboard creates the caller's ledger account. Repeating the call
// returns the existing account with 200.
func AccountOnboard(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "accounts service unavailable"))
			return
		}

		identity := middleware.IdentityIDFromContext(r.Context())
		if identity == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity context missing"))
			return
		}

		var payload onboardRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Onboard(r.Context(), accounts.OnboardInput{
			IdentityID:    identity,
			WalletAddress: validators.SanitizeString(payload.WalletAddress, 64),
			ReferralCode:  validators.SanitizeString(payload.ReferralCode, 32),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, accounts.NewAccountView(result.Account))
	}
}

// AccountMe returns the caller's account.
func AccountMe(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		account, err := svc.Get(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, accounts.NewAccountView(account))
	}
}

// AccountReferrals lists the caller's downline with commission totals.
func AccountReferrals(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		referrals, err := svc.ListReferrals(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, referrals)
	}
}
