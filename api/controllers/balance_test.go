package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
)

func TestBalanceBreakdown(t *testing.T) {
	accountID := uuid.New()
	svc := &fakeLedger{breakdown: &ledger.BalanceBreakdown{AccountID: accountID, TotalBalance: decimal.RequireFromString("1100")}}

	resp := httptest.NewRecorder()
	BalanceBreakdown(svc, testLogger())(resp, accountRequest(http.MethodGet, "/api/v1/balance", "", accountID))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"total_balance":"1100"`)
}

func TestBalanceHistoryRange(t *testing.T) {
	svc := &fakeLedger{}

	resp := httptest.NewRecorder()
	BalanceHistory(svc, time.UTC, testLogger())(resp, accountRequest(http.MethodGet, "/api/v1/balance/history?from=2026-09-01&to=2026-09-30", "", uuid.New()))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), svc.historyFrom)
	assert.Equal(t, time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), svc.historyTo)

	resp = httptest.NewRecorder()
	BalanceHistory(svc, time.UTC, testLogger())(resp, accountRequest(http.MethodGet, "/api/v1/balance/history?to=2026-09-30", "", uuid.New()))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), svc.historyFrom)

	resp = httptest.NewRecorder()
	BalanceHistory(svc, time.UTC, testLogger())(resp, accountRequest(http.MethodGet, "/api/v1/balance/history?from=yesterday", "", uuid.New()))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestLedgerEntriesFilters(t *testing.T) {
	svc := &fakeLedger{list: &ledger.EntryList{Entries: []models.LedgerEntry{{ID: uuid.New()}}, NextCursor: "cur"}}

	resp := httptest.NewRecorder()
	LedgerEntries(svc, testLogger())(resp, accountRequest(http.MethodGet, "/api/v1/entries?kind=withdrawal&status=pending&limit=5", "", uuid.New()))

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.NotNil(t, svc.filters.Kind)
	require.NotNil(t, svc.filters.Status)
	assert.Equal(t, enums.EntryKindWithdrawal, *svc.filters.Kind)
	assert.Equal(t, enums.EntryStatusPending, *svc.filters.Status)
	assert.Equal(t, 5, svc.params.Limit)
	assert.Equal(t, "cur", decodeEnvelope(t, resp).NextCursor)
}

func TestLedgerEntriesRejectsUnknownKind(t *testing.T) {
	resp := httptest.NewRecorder()
	LedgerEntries(&fakeLedger{}, testLogger())(resp, accountRequest(http.MethodGet, "/api/v1/entries?kind=bonus", "", uuid.New()))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	LedgerEntries(&fakeLedger{}, testLogger())(resp, accountRequest(http.MethodGet, "/api/v1/entries?limit=500", "", uuid.New()))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
