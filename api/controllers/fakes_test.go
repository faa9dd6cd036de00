package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/api/middleware"
	"github.com/angelmondragon/yieldvault-backend/internal/accounts"
	"github.com/angelmondragon/yieldvault-backend/internal/deposits"
	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/internal/withdrawals"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/pagination"
)

type fakeWithdrawals struct {
	submitEarningsFn   func(ctx context.Context, input withdrawals.SubmitInput) (*models.LedgerEntry, error)
	submitPrincipalFn  func(ctx context.Context, input withdrawals.SubmitInput) (*models.LedgerEntry, error)
	approveFn          func(ctx context.Context, entryID, adminID uuid.UUID) (*models.LedgerEntry, error)
	rejectFn           func(ctx context.Context, entryID, adminID uuid.UUID, reason string) (*models.LedgerEntry, error)
	resolveFn          func(ctx context.Context, input withdrawals.ResolveInput) (*models.LedgerEntry, error)
	listPendingFn      func(ctx context.Context, params pagination.Params) (*ledger.EntryList, error)
	window             withdrawals.Window
	setWindowFn        func(ctx context.Context, adminID uuid.UUID, opensAt, closesAt *time.Time) (withdrawals.Window, error)
	clearWindowAdminID uuid.UUID
}

func (f *fakeWithdrawals) SubmitEarnings(ctx context.Context, input withdrawals.SubmitInput) (*models.LedgerEntry, error) {
	return f.submitEarningsFn(ctx, input)
}

func (f *fakeWithdrawals) SubmitPrincipal(ctx context.Context, input withdrawals.SubmitInput) (*models.LedgerEntry, error) {
	return f.submitPrincipalFn(ctx, input)
}

func (f *fakeWithdrawals) Approve(ctx context.Context, entryID, adminID uuid.UUID) (*models.LedgerEntry, error) {
	return f.approveFn(ctx, entryID, adminID)
}

func (f *fakeWithdrawals) Reject(ctx context.Context, entryID, adminID uuid.UUID, reason string) (*models.LedgerEntry, error) {
	return f.rejectFn(ctx, entryID, adminID, reason)
}

func (f *fakeWithdrawals) ResolveClaim(ctx context.Context, input withdrawals.ResolveInput) (*models.LedgerEntry, error) {
	return f.resolveFn(ctx, input)
}

func (f *fakeWithdrawals) ListPending(ctx context.Context, params pagination.Params) (*ledger.EntryList, error) {
	return f.listPendingFn(ctx, params)
}

func (f *fakeWithdrawals) GetWindow(context.Context) (withdrawals.Window, error) {
	return f.window, nil
}

func (f *fakeWithdrawals) SetWindow(ctx context.Context, adminID uuid.UUID, opensAt, closesAt *time.Time) (withdrawals.Window, error) {
	return f.setWindowFn(ctx, adminID, opensAt, closesAt)
}

func (f *fakeWithdrawals) ClearWindow(_ context.Context, adminID uuid.UUID) error {
	f.clearWindowAdminID = adminID
	return nil
}

type fakeAccounts struct {
	onboardFn func(ctx context.Context, input accounts.OnboardInput) (*accounts.OnboardResult, error)
	account   *models.Account
	status    enums.AccountStatus
	referrals []accounts.ReferralView
	getErr    error
}

func (f *fakeAccounts) Onboard(ctx context.Context, input accounts.OnboardInput) (*accounts.OnboardResult, error) {
	return f.onboardFn(ctx, input)
}

func (f *fakeAccounts) ResolveIdentity(context.Context, string) (uuid.UUID, error) {
	return f.account.ID, nil
}

func (f *fakeAccounts) Get(context.Context, uuid.UUID) (*models.Account, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.account, nil
}

func (f *fakeAccounts) SetStatus(_ context.Context, _ uuid.UUID, status enums.AccountStatus) error {
	f.status = status
	f.account.Status = status
	return nil
}

func (f *fakeAccounts) ListReferrals(context.Context, uuid.UUID) ([]accounts.ReferralView, error) {
	return f.referrals, nil
}

type fakeLedger struct {
	breakdown   *ledger.BalanceBreakdown
	historyFrom time.Time
	historyTo   time.Time
	filters     ledger.EntryFilters
	params      pagination.Params
	list        *ledger.EntryList
	reconcile   *ledger.Reconciliation
}

func (f *fakeLedger) Breakdown(context.Context, uuid.UUID, time.Time) (*ledger.BalanceBreakdown, error) {
	return f.breakdown, nil
}

func (f *fakeLedger) LockState(context.Context, *gorm.DB, uuid.UUID, time.Time) (ledger.LockState, error) {
	return ledger.LockState{}, nil
}

func (f *fakeLedger) ListEntries(_ context.Context, _ uuid.UUID, filters ledger.EntryFilters, params pagination.Params) (*ledger.EntryList, error) {
	f.filters = filters
	f.params = params
	return f.list, nil
}

func (f *fakeLedger) History(_ context.Context, _ uuid.UUID, from, to time.Time) ([]ledger.HistoryPoint, error) {
	f.historyFrom = from
	f.historyTo = to
	return []ledger.HistoryPoint{{Day: to.Format(ledger.DayLayout)}}, nil
}

func (f *fakeLedger) Reconcile(context.Context, uuid.UUID) (*ledger.Reconciliation, error) {
	return f.reconcile, nil
}

type fakeDeposits struct {
	input  deposits.ConfirmInput
	result *deposits.ConfirmResult
	err    error
}

func (f *fakeDeposits) Confirm(_ context.Context, input deposits.ConfirmInput) (*deposits.ConfirmResult, error) {
	f.input = input
	return f.result, f.err
}

func testLogger() *logger.Logger {
	return logger.Nop()
}

// accountRequest builds a request as seen after Auth and RequireAccount.
func accountRequest(method, target, body string, accountID uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	ctx := middleware.WithIdentity(req.Context(), "idp|user", string(enums.RoleUser))
	ctx = middleware.WithAccountID(ctx, accountID)
	return req.WithContext(ctx)
}

func adminRequest(method, target, body string, adminID uuid.UUID, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rc := chi.NewRouteContext()
	for k, v := range params {
		rc.URLParams.Add(k, v)
	}
	ctx := middleware.WithIdentity(req.Context(), adminID.String(), string(enums.RoleAdmin))
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	return req.WithContext(ctx)
}

type envelope struct {
	Data       json.RawMessage `json:"data"`
	NextCursor string          `json:"next_cursor"`
	Error      struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(resp.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response: %v (%s)", err, resp.Body.String())
	}
	return env
}
