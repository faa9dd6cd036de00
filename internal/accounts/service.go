package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/pkg/chain"
	"github.com/angelmondragon/yieldvault-backend/pkg/db"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox/payloads"
)

const maxCodeAttempts = 5

// Service manages account lifecycle and the referral tree.
type Service interface {
	Onboard(ctx context.Context, input OnboardInput) (*OnboardResult, error)
	ResolveIdentity(ctx context.Context, identityID string) (uuid.UUID, error)
	Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	SetStatus(ctx context.Context, accountID uuid.UUID, status enums.AccountStatus) error
	ListReferrals(ctx context.Context, accountID uuid.UUID) ([]ReferralView, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups the account service dependencies.
type ServiceParams struct {
	DB     txRunner
	Repo   Repository
	Outbox outbox.Emitter
	Logger *logger.Logger
	Clock  func() time.Time
}

type service struct {
	db     txRunner
	repo   Repository
	outbox outbox.Emitter
	logg   *logger.Logger
	now    func() time.Time
}

// NewService validates params and returns the account service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("account repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		db:     params.DB,
		repo:   params.Repo,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    clock,
	}, nil
}

// Onboard creates the account for identityID or returns the existing one.
// Referral edges are resolved once here and never recomputed.
func (s *service) Onboard(ctx context.Context, input OnboardInput) (*OnboardResult, error) {
	identityID := strings.TrimSpace(input.IdentityID)
	if identityID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "identity is required")
	}
	wallet := strings.TrimSpace(input.WalletAddress)
	if wallet != "" && !chain.IsAddress(wallet) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet address is not a valid EVM address")
	}

	if existing, err := s.repo.FindByIdentity(ctx, identityID); err == nil {
		if NormalizeReferralCode(input.ReferralCode) == existing.ReferralCode {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "self-referral is not allowed")
		}
		return &OnboardResult{Account: existing}, nil
	} else if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup account")
	}

	var created *models.Account
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		level1, level2, err := s.resolveReferrers(ctx, repo, identityID, input.ReferralCode)
		if err != nil {
			return err
		}
		code, err := s.uniqueCode(ctx, repo)
		if err != nil {
			return err
		}

		now := s.now()
		account := &models.Account{
			ID:            uuid.New(),
			IdentityID:    identityID,
			WalletAddress: wallet,
			ReferralCode:  code,
			Status:        enums.AccountStatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := repo.Create(ctx, account); err != nil {
			return err
		}

		var edges []models.ReferralEdge
		event := payloads.AccountOnboardedEvent{AccountID: account.ID, OnboardedAt: now}
		if level1 != nil {
			edges = append(edges, models.ReferralEdge{
				ReferrerID: level1.ID,
				RefereeID:  account.ID,
				Level:      enums.ReferralLevelDirect,
				CreatedAt:  now,
			})
			event.Level1ID = &level1.ID
		}
		if level2 != nil {
			edges = append(edges, models.ReferralEdge{
				ReferrerID: *level2,
				RefereeID:  account.ID,
				Level:      enums.ReferralLevelIndirect,
				CreatedAt:  now,
			})
			event.Level2ID = level2
		}
		if err := repo.CreateEdges(ctx, edges); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create referral edges")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventAccountOnboarded,
			AggregateType: enums.AggregateAccount,
			AggregateID:   account.ID,
			Actor:         &outbox.ActorRef{AccountID: &account.ID, Role: enums.RoleUser},
			Data:          event,
			OccurredAt:    now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit account onboarded")
		}
		created = account
		return nil
	})
	if err != nil {
		// a concurrent onboarding for the same identity won the insert
		if db.IsUniqueViolation(err, "") {
			if existing, findErr := s.repo.FindByIdentity(ctx, identityID); findErr == nil {
				return &OnboardResult{Account: existing}, nil
			}
		}
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "onboard account")
	}

	logCtx := s.logg.WithAccountID(ctx, created.ID.String())
	s.logg.Info(logCtx, "account onboarded")
	return &OnboardResult{Account: created, Created: true}, nil
}

func (s *service) resolveReferrers(ctx context.Context, repo Repository, identityID, rawCode string) (*models.Account, *uuid.UUID, error) {
	code := NormalizeReferralCode(rawCode)
	if code == "" {
		return nil, nil, nil
	}
	referrer, err := repo.FindByReferralCode(ctx, code)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown referral code")
		}
		return nil, nil, err
	}
	if referrer.IdentityID == identityID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "self-referral is not allowed")
	}

	parent, err := repo.FindEdge(ctx, referrer.ID, enums.ReferralLevelDirect)
	if err != nil {
		return nil, nil, err
	}
	if parent == nil {
		return referrer, nil, nil
	}
	level2 := parent.ReferrerID
	return referrer, &level2, nil
}

func (s *service) uniqueCode(ctx context.Context, repo Repository) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := NewReferralCode()
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate referral code")
		}
		_, err = repo.FindByReferralCode(ctx, code)
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeInternal, "could not allocate a referral code")
}

func (s *service) ResolveIdentity(ctx context.Context, identityID string) (uuid.UUID, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "identity required")
	}
	account, err := s.repo.FindByIdentity(ctx, identityID)
	if err != nil {
		return uuid.Nil, err
	}
	return account.ID, nil
}

func (s *service) Get(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	return s.repo.FindByID(ctx, accountID)
}

func (s *service) SetStatus(ctx context.Context, accountID uuid.UUID, status enums.AccountStatus) error {
	if !status.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "invalid account status %q", status)
	}
	if err := s.repo.UpdateStatus(ctx, accountID, status); err != nil {
		return err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"account_id": accountID.String(),
		"status":     status,
	})
	s.logg.Info(logCtx, "account status changed")
	return nil
}

func (s *service) ListReferrals(ctx context.Context, accountID uuid.UUID) ([]ReferralView, error) {
	if _, err := s.repo.FindByID(ctx, accountID); err != nil {
		return nil, err
	}
	edges, err := s.repo.ListEdgesByReferrer(ctx, accountID)
	if err != nil {
		return nil, err
	}
	views := make([]ReferralView, 0, len(edges))
	for _, edge := range edges {
		views = append(views, ReferralView{
			RefereeID:     edge.RefereeID,
			Level:         edge.Level,
			TotalEarnings: edge.TotalEarnings,
			CreatedAt:     edge.CreatedAt,
		})
	}
	return views, nil
}
