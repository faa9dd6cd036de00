package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/yieldvault-backend/api/responses"
	"github.com/angelmondragon/yieldvault-backend/api/validators"
	"github.com/angelmondragon/yieldvault-backend/internal/deposits"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
)

type depositRequest struct {
	TxHash string `json:"tx_hash" validate:"required,max=80"`
	Token  string `json:"token" validate:"required,max=16"`
}

// DepositConfirm records an on-chain transfer to the treasury once the
// chain confirms it. Replaying a recorded hash returns the existing entry.
func DepositConfirm(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposit service unavailable"))
			return
		}

		accountID, err := accountFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload depositRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Confirm(r.Context(), deposits.ConfirmInput{
			AccountID: accountID,
			TxHash:    strings.TrimSpace(payload.TxHash),
			Token:     strings.TrimSpace(payload.Token),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result.Entry)
	}
}
