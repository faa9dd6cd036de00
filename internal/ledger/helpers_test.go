package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/yieldvault-backend/pkg/db"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/dbtest"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
)

type fixture struct {
	t      *testing.T
	client *db.Client
	repo   Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Open(t)
	return &fixture{t: t, client: client, repo: NewRepository(client.DB())}
}

func (f *fixture) account(balances ...string) *models.Account {
	f.t.Helper()
	account := &models.Account{
		IdentityID:   "idp|" + uuid.NewString(),
		ReferralCode: strings.ToUpper(uuid.NewString()[:8]),
		Status:       enums.AccountStatusActive,
	}
	values := []*decimal.Decimal{&account.TotalBalance, &account.AvailableBalance, &account.TotalInvested, &account.RoiBalance}
	for i := range values {
		*values[i] = decimal.Zero
		if i < len(balances) {
			*values[i] = decimal.RequireFromString(balances[i])
		}
	}
	require.NoError(f.t, f.client.DB().Create(account).Error)
	return account
}

func (f *fixture) entry(accountID uuid.UUID, kind enums.EntryKind, status enums.EntryStatus, amount string, at time.Time, payload models.AnnotationPayload) *models.LedgerEntry {
	f.t.Helper()
	entry := &models.LedgerEntry{
		ID:             uuid.New(),
		AccountID:      accountID,
		Kind:           kind,
		Status:         status,
		Amount:         decimal.RequireFromString(amount),
		CryptoAmount:   decimal.RequireFromString(amount),
		Token:          models.SettlementToken,
		ExchangeRate:   decimal.NewFromInt(1),
		IdempotencyKey: string(kind) + ":" + uuid.NewString(),
		CreatedAt:      at,
	}
	if payload != nil {
		entry.Annotation = models.NewAnnotation(payload)
	}
	created, ok, err := f.repo.CreateEntryIfAbsent(context.Background(), entry)
	require.NoError(f.t, err)
	require.True(f.t, ok)
	return created
}

func (f *fixture) reload(accountID uuid.UUID) *models.Account {
	f.t.Helper()
	account, err := f.repo.FindAccount(context.Background(), accountID)
	require.NoError(f.t, err)
	return account
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s got %s %v", want, got, msgAndArgs)
}
