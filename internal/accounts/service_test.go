package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/yieldvault-backend/pkg/db/dbtest"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox"
)

var onboardedAt = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	svc    Service
	repo   Repository
	outbox *outbox.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	outboxRepo := outbox.NewRepository(client.DB())
	svc, err := NewService(ServiceParams{
		DB:     client,
		Repo:   repo,
		Outbox: outbox.NewService(outboxRepo, logger.Nop()),
		Logger: logger.Nop(),
		Clock:  func() time.Time { return onboardedAt },
	})
	require.NoError(t, err)
	return &harness{svc: svc, repo: repo, outbox: outboxRepo}
}

func (h *harness) onboard(t *testing.T, identity, code string) *models.Account {
	t.Helper()
	result, err := h.svc.Onboard(context.Background(), OnboardInput{IdentityID: identity, ReferralCode: code})
	require.NoError(t, err)
	require.True(t, result.Created)
	return result.Account
}

func (h *harness) referrers(t *testing.T, refereeID uuid.UUID) map[enums.ReferralLevel]uuid.UUID {
	t.Helper()
	edges, err := h.repo.ListEdgesByReferee(context.Background(), refereeID)
	require.NoError(t, err)
	out := make(map[enums.ReferralLevel]uuid.UUID, len(edges))
	for _, edge := range edges {
		out[edge.Level] = edge.ReferrerID
	}
	return out
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestOnboardIsCreateOrFetch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wallet := "0x000000000000000000000000000000000000dEaD"

	first, err := h.svc.Onboard(ctx, OnboardInput{IdentityID: "idp|alice", WalletAddress: wallet})
	require.NoError(t, err)
	require.True(t, first.Created)
	require.Len(t, first.Account.ReferralCode, referralCodeLength)
	require.Equal(t, enums.AccountStatusActive, first.Account.Status)

	second, err := h.svc.Onboard(ctx, OnboardInput{IdentityID: "idp|alice", WalletAddress: "0x1111111111111111111111111111111111111111"})
	require.NoError(t, err)
	require.False(t, second.Created)
	require.Equal(t, first.Account.ID, second.Account.ID)
	require.Equal(t, wallet, second.Account.WalletAddress)

	events, err := h.outbox.ListByAggregate(ctx, enums.AggregateAccount, first.Account.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, enums.EventAccountOnboarded, events[0].EventType)
}

func TestOnboardBuildsTwoLevelTree(t *testing.T) {
	h := newHarness(t)

	a := h.onboard(t, "idp|a", "")
	b := h.onboard(t, "idp|b", a.ReferralCode)
	c := h.onboard(t, "idp|c", " "+b.ReferralCode+" ")
	d := h.onboard(t, "idp|d", c.ReferralCode)

	require.Empty(t, h.referrers(t, a.ID))
	require.Equal(t, map[enums.ReferralLevel]uuid.UUID{enums.ReferralLevelDirect: a.ID}, h.referrers(t, b.ID))
	require.Equal(t, map[enums.ReferralLevel]uuid.UUID{
		enums.ReferralLevelDirect:   b.ID,
		enums.ReferralLevelIndirect: a.ID,
	}, h.referrers(t, c.ID))
	// depth stops at two: a earns nothing from d
	require.Equal(t, map[enums.ReferralLevel]uuid.UUID{
		enums.ReferralLevelDirect:   c.ID,
		enums.ReferralLevelIndirect: b.ID,
	}, h.referrers(t, d.ID))
}

func TestReferralEdgesAreFrozenAtOnboarding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a := h.onboard(t, "idp|a", "")
	other := h.onboard(t, "idp|other", "")
	b := h.onboard(t, "idp|b", a.ReferralCode)
	c := h.onboard(t, "idp|c", b.ReferralCode)
	before := h.referrers(t, c.ID)

	// re-onboarding b with a different code changes nothing
	again, err := h.svc.Onboard(ctx, OnboardInput{IdentityID: "idp|b", ReferralCode: other.ReferralCode})
	require.NoError(t, err)
	require.False(t, again.Created)
	require.Equal(t, map[enums.ReferralLevel]uuid.UUID{enums.ReferralLevelDirect: a.ID}, h.referrers(t, b.ID))

	require.NoError(t, h.svc.SetStatus(ctx, a.ID, enums.AccountStatusSuspended))
	require.Equal(t, before, h.referrers(t, c.ID))
}

func TestOnboardRejectsBadReferrals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.onboard(t, "idp|a", "")

	_, err := h.svc.Onboard(ctx, OnboardInput{IdentityID: "idp|b", ReferralCode: "NOPE2345"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "unknown code: %v", err)

	_, err = h.svc.Onboard(ctx, OnboardInput{IdentityID: "idp|a", ReferralCode: a.ReferralCode})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "self referral: %v", err)

	_, err = h.svc.Onboard(ctx, OnboardInput{IdentityID: "idp|c", WalletAddress: "not-an-address"})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.Onboard(ctx, OnboardInput{IdentityID: "  "})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.repo.FindByIdentity(ctx, "idp|b")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound), "failed onboarding must not leave an account")
}

func TestResolveIdentityAndGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.onboard(t, "idp|a", "")

	id, err := h.svc.ResolveIdentity(ctx, "idp|a")
	require.NoError(t, err)
	require.Equal(t, a.ID, id)

	_, err = h.svc.ResolveIdentity(ctx, "idp|ghost")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = h.svc.ResolveIdentity(ctx, "")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	got, err := h.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, a.ReferralCode, got.ReferralCode)
}

func TestSetStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.onboard(t, "idp|a", "")

	require.NoError(t, h.svc.SetStatus(ctx, a.ID, enums.AccountStatusSuspended))
	got, err := h.svc.Get(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, enums.AccountStatusSuspended, got.Status)

	err = h.svc.SetStatus(ctx, a.ID, enums.AccountStatus("closed"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = h.svc.SetStatus(ctx, uuid.New(), enums.AccountStatusActive)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListReferralsShowsEarnings(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.onboard(t, "idp|a", "")
	b := h.onboard(t, "idp|b", a.ReferralCode)
	c := h.onboard(t, "idp|c", b.ReferralCode)

	edge, err := h.repo.FindEdge(ctx, b.ID, enums.ReferralLevelDirect)
	require.NoError(t, err)
	require.NoError(t, h.repo.AddEdgeEarnings(ctx, edge.ID, decimal.NewFromInt(30)))

	views, err := h.svc.ListReferrals(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, views, 2)
	require.Equal(t, b.ID, views[0].RefereeID)
	require.True(t, views[0].TotalEarnings.Equal(decimal.NewFromInt(30)))
	require.Equal(t, c.ID, views[1].RefereeID)
	require.Equal(t, enums.ReferralLevelIndirect, views[1].Level)
}
