package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/yieldvault-backend/api/responses"
	"github.com/angelmondragon/yieldvault-backend/api/validators"
	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
)

const defaultHistoryDays = 30

// BalanceBreakdown returns the caller's balances with the principal lock state.
func BalanceBreakdown(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		breakdown, err := svc.Breakdown(r.Context(), accountID, time.Now().UTC())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, breakdown)
	}
}

// BalanceHistory returns daily closing balances between from and to, which
// default to the last 30 business days.
func BalanceHistory(svc ledger.Service, loc *time.Location, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		to, err := validators.ParseQueryDate(r, "to", loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		from, err := validators.ParseQueryDate(r, "from", loc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end := time.Now().UTC()
		if to != nil {
			end = *to
		}
		start := end.AddDate(0, 0, -(defaultHistoryDays - 1))
		if from != nil {
			start = *from
		}

		points, err := svc.History(r.Context(), accountID, start, end)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, points)
	}
}

// LedgerEntries pages through the caller's entries, newest first.
func LedgerEntries(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := accountFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var filters ledger.EntryFilters
		if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
			kind, err := enums.ParseEntryKind(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind"))
				return
			}
			filters.Kind = &kind
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseEntryStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			filters.Status = &status
		}

		list, err := svc.ListEntries(r.Context(), accountID, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, list.Entries, list.NextCursor)
	}
}
