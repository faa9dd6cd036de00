package deposits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/internal/referrals"
	"github.com/angelmondragon/yieldvault-backend/pkg/chain"
	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/metrics"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/yieldvault-backend/pkg/pricefeed"
)

const amountScale = 8

// Verifier confirms an on-chain transfer into the treasury.
type Verifier interface {
	VerifyTransfer(ctx context.Context, txHash, symbol string) (chain.VerifiedTransfer, error)
}

// PriceOracle returns the current token rate in the settlement currency.
type PriceOracle interface {
	Quote(ctx context.Context, symbol string) (pricefeed.Quote, error)
}

// CommissionPayer pays first-deposit referral commission inside the deposit transaction.
type CommissionPayer interface {
	PayInstant(ctx context.Context, tx *gorm.DB, deposit *models.LedgerEntry) ([]referrals.Payout, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ConfirmInput is a deposit claim made by an account holder.
type ConfirmInput struct {
	AccountID uuid.UUID
	TxHash    string
	Token     string
}

// ConfirmResult is the recorded deposit. Created is false on a replay.
type ConfirmResult struct {
	Entry   *models.LedgerEntry
	Created bool
	Payouts []referrals.Payout
}

// Service records verified deposits.
type Service interface {
	Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
}

// ServiceParams groups the deposit service dependencies.
type ServiceParams struct {
	DB          txRunner
	Ledger      ledger.Repository
	Verifier    Verifier
	Prices      PriceOracle
	Commissions CommissionPayer
	Outbox      outbox.Emitter
	Logger      *logger.Logger
	Metrics     *metrics.LedgerMetrics
	Config      config.LedgerConfig
	Clock       func() time.Time
}

type service struct {
	db          txRunner
	ledger      ledger.Repository
	verifier    Verifier
	prices      PriceOracle
	commissions CommissionPayer
	outbox      outbox.Emitter
	logg        *logger.Logger
	metrics     *metrics.LedgerMetrics
	lockMonths  int
	now         func() time.Time
}

// NewService validates params and builds the deposit service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case params.Verifier == nil:
		return nil, fmt.Errorf("deposit verifier required")
	case params.Prices == nil:
		return nil, fmt.Errorf("price oracle required")
	case params.Commissions == nil:
		return nil, fmt.Errorf("commission payer required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		db:          params.DB,
		ledger:      params.Ledger,
		verifier:    params.Verifier,
		prices:      params.Prices,
		commissions: params.Commissions,
		outbox:      params.Outbox,
		logg:        params.Logger,
		metrics:     params.Metrics,
		lockMonths:  params.Config.LockMonths,
		now:         clock,
	}, nil
}

// Confirm verifies txHash on chain and credits it once. Replaying the same
// hash for the same account returns the recorded entry.
func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	symbol := strings.ToUpper(strings.TrimSpace(input.Token))
	if symbol == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "token is required")
	}
	key := ledger.DepositKey(input.TxHash)
	if key == ledger.DepositKey("") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tx_hash is required")
	}

	existing, err := s.ledger.FindEntryByKey(ctx, key)
	switch {
	case err == nil:
		return replay(existing, input.AccountID)
	case !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup deposit")
	}

	account, err := s.ledger.FindAccount(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}

	verified, err := s.verifier.VerifyTransfer(ctx, input.TxHash, symbol)
	if err != nil {
		return nil, mapVerifyError(err)
	}
	if account.WalletAddress != "" && !chain.SameAddress(account.WalletAddress, verified.Sender) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit was not sent from the account wallet").
			WithDetails(map[string]any{"sender": verified.Sender})
	}

	quote, err := s.prices.Quote(ctx, verified.Token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "price feed unavailable")
	}
	amount := verified.Amount.Mul(quote.Rate).Round(amountScale)
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "deposit value rounds to zero")
	}

	now := s.now()
	lockedUntil := ledger.LockedUntil(now, s.lockMonths)
	var result *ConfirmResult
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ledger.WithTx(tx)
		entry, created, err := repo.CreateEntryIfAbsent(ctx, &models.LedgerEntry{
			AccountID:      account.ID,
			Kind:           enums.EntryKindDeposit,
			Status:         enums.EntryStatusCompleted,
			Amount:         amount,
			CryptoAmount:   verified.Amount,
			Token:          verified.Token,
			ExchangeRate:   quote.Rate,
			IdempotencyKey: key,
			Annotation: models.NewAnnotation(&models.DepositAnnotation{
				TxHash:      verified.TxHash,
				Sender:      verified.Sender,
				Recipient:   verified.Recipient,
				LockedUntil: &lockedUntil,
			}),
			CompletedAt: &now,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		if !created {
			result, err = replay(entry, account.ID)
			return err
		}

		if err := repo.ApplyDelta(ctx, account.ID, ledger.DepositCredit(amount)); err != nil {
			return err
		}
		prior, err := repo.HasCompletedDeposit(ctx, account.ID, entry.ID)
		if err != nil {
			return err
		}
		payouts, err := s.commissions.PayInstant(ctx, tx, entry)
		if err != nil {
			return fmt.Errorf("instant commission: %w", err)
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDepositConfirmed,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entry.ID,
			Actor:         &outbox.ActorRef{AccountID: &account.ID, Role: enums.RoleUser},
			Data: payloads.DepositConfirmedEvent{
				EntryID:      entry.ID,
				AccountID:    account.ID,
				Amount:       amount,
				CryptoAmount: verified.Amount,
				Token:        verified.Token,
				TxHash:       verified.TxHash,
				LockedUntil:  lockedUntil,
				FirstDeposit: !prior,
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}
		result = &ConfirmResult{Entry: entry, Created: true, Payouts: payouts}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record deposit")
	}

	if result.Created {
		s.metrics.RecordEntry(string(enums.EntryKindDeposit), string(enums.EntryStatusCompleted), amount)
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"account_id": account.ID.String(),
			"entry_id":   result.Entry.ID.String(),
			"amount":     amount.String(),
			"token":      verified.Token,
			"payouts":    len(result.Payouts),
		})
		s.logg.Info(logCtx, "deposit confirmed")
	}
	return result, nil
}

func replay(entry *models.LedgerEntry, accountID uuid.UUID) (*ConfirmResult, error) {
	if entry.Kind != enums.EntryKindDeposit || entry.AccountID != accountID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "transaction already credited to another account")
	}
	return &ConfirmResult{Entry: entry}, nil
}

func mapVerifyError(err error) error {
	switch {
	case errors.Is(err, chain.ErrInvalidTxHash),
		errors.Is(err, chain.ErrUnsupportedToken),
		errors.Is(err, chain.ErrTransferReverted),
		errors.Is(err, chain.ErrNoMatchingTransfer):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	case errors.Is(err, chain.ErrTransferNotFound),
		errors.Is(err, chain.ErrNotConfirmed):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "transaction is not confirmed yet, retry later")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deposit verification unavailable")
	}
}
