package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/yieldvault-backend/api/responses"
	"github.com/angelmondragon/yieldvault-backend/api/validators"
	"github.com/angelmondragon/yieldvault-backend/internal/accounts"
	"github.com/angelmondragon/yieldvault-backend/internal/cron"
	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/internal/withdrawals"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
)

// JobTrigger runs a registered background job on demand.
type JobTrigger interface {
	Trigger(ctx context.Context, name string) error
	Jobs() []string
}

// AdminPendingWithdrawals pages through the approval queue, oldest first.
func AdminPendingWithdrawals(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageFromQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListPending(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, list.Entries, list.NextCursor)
	}
}

// AdminApproveWithdrawal broadcasts a pending withdrawal. A failed broadcast
// marks the entry failed and restores the balance before the error returns.
func AdminApproveWithdrawal(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := adminFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entryID, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.Approve(r.Context(), entryID, adminID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func AdminRejectWithdrawal(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := adminFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entryID, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload rejectRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.Reject(r.Context(), entryID, adminID, payload.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

type resolveRequest struct {
	TransferRef string `json:"transfer_ref" validate:"omitempty,max=200"`
	Reason      string `json:"reason" validate:"omitempty,max=500"`
}

// AdminResolveWithdrawal settles a withdrawal whose approval claimed it but
// never recorded an outcome. A transfer_ref completes it, a reason refunds it.
func AdminResolveWithdrawal(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := adminFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entryID, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload resolveRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := svc.ResolveClaim(r.Context(), withdrawals.ResolveInput{
			EntryID:     entryID,
			AdminID:     adminID,
			TransferRef: payload.TransferRef,
			Reason:      payload.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entry)
	}
}

type windowRequest struct {
	OpensAt  *time.Time `json:"opens_at"`
	ClosesAt *time.Time `json:"closes_at"`
}

func AdminSetWithdrawalWindow(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := adminFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload windowRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		window, err := svc.SetWindow(r.Context(), adminID, payload.OpensAt, payload.ClosesAt)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWindowView(window))
	}
}

func AdminClearWithdrawalWindow(svc withdrawals.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := adminFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ClearWindow(r.Context(), adminID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"cleared": true})
	}
}

// AdminRunJob runs one background job inline under the shared cron lock.
func AdminRunJob(jobs JobTrigger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jobs == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "job runner unavailable"))
			return
		}

		name := validators.SanitizeString(chi.URLParam(r, "name"), 64)
		started := time.Now()
		err := jobs.Trigger(r.Context(), name)
		switch {
		case errors.Is(err, cron.ErrUnknownJob):
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unknown job").WithDetails(map[string]any{"jobs": jobs.Jobs()}))
			return
		case errors.Is(err, cron.ErrBusy):
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConflict, "another job run holds the lock"))
			return
		case err != nil:
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"job":         name,
			"duration_ms": time.Since(started).Milliseconds(),
		})
	}
}

type accountStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended"`
}

func AdminSetAccountStatus(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload accountStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseAccountStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		if err := svc.SetStatus(r.Context(), accountID, status); err != nil {
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

// AdminReconcileAccount compares stored balances with the entry-derived ones.
func AdminReconcileAccount(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, err := validators.ParsePathUUID(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		report, err := svc.Reconcile(r.Context(), accountID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
