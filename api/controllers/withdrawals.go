package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/yieldvault-backend/api/responses"
	"github.com/angelmondragon/yieldvault-backend/api/validators"
	"github.com/angelmondragon/yieldvault-backend/internal/withdrawals"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
)

type withdrawalRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Destination string `json:"destination" validate:"required,max=64"`
	Token       string `json:"token" validate:"required,max=16"`
}

type submitFunc func(ctx context.Context, input withdrawals.SubmitInput) (*models.LedgerEntry, error)

// WithdrawEarnings requests a payout drawn from earned income first.
func WithdrawEarnings(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("withdrawal service unavailable", logg)
	}
	return withdraw(svc.SubmitEarnings, logg)
}

// WithdrawPrincipal requests a payout of unlocked principal.
func WithdrawPrincipal(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	if svc == nil {
		return unavailable("withdrawal service unavailable", logg)
	}
	return withdraw(svc.SubmitPrincipal, logg)
}

func withdraw(submit submitFunc, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload withdrawalRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := validators.ParseDecimal("amount", payload.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := submit(r.Context(), withdrawals.SubmitInput{
			AccountID:   accountID,
			Amount:      amount,
			Destination: strings.TrimSpace(payload.Destination),
			Token:       strings.TrimSpace(payload.Token),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, entry)
	}
}

// WithdrawalWindow returns the current window and whether it is open.
func WithdrawalWindow(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window, err := svc.GetWindow(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWindowView(window))
	}
}

func unavailable(message string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, message))
	}
}

type windowView struct {
	withdrawals.Window
	Open bool `json:"open"`
}

func newWindowView(window withdrawals.Window) windowView {
	return windowView{Window: window, Open: window.IsOpen(time.Now().UTC())}
}
