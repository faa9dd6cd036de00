package withdrawals

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/pkg/chain"
	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/metrics"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/yieldvault-backend/pkg/pagination"
	"github.com/angelmondragon/yieldvault-backend/pkg/pricefeed"
)

const (
	amountScale = 8
	cryptoScale = 18
	maxReason   = 500
)

// Broadcaster sends an on-chain payout and returns its transaction reference.
type Broadcaster interface {
	Transfer(ctx context.Context, req chain.TransferRequest) (string, error)
}

// PriceOracle returns the current token rate in the settlement currency.
type PriceOracle interface {
	Quote(ctx context.Context, symbol string) (pricefeed.Quote, error)
}

// LockStater computes the principal lock state inside a transaction.
type LockStater interface {
	LockState(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, now time.Time) (ledger.LockState, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithSerializableTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service runs the withdrawal lifecycle: submission, approval and rejection.
type Service interface {
	SubmitEarnings(ctx context.Context, input SubmitInput) (*models.LedgerEntry, error)
	SubmitPrincipal(ctx context.Context, input SubmitInput) (*models.LedgerEntry, error)
	Approve(ctx context.Context, entryID, adminID uuid.UUID) (*models.LedgerEntry, error)
	Reject(ctx context.Context, entryID, adminID uuid.UUID, reason string) (*models.LedgerEntry, error)
	ResolveClaim(ctx context.Context, input ResolveInput) (*models.LedgerEntry, error)
	ListPending(ctx context.Context, params pagination.Params) (*ledger.EntryList, error)
	GetWindow(ctx context.Context) (Window, error)
	SetWindow(ctx context.Context, adminID uuid.UUID, opensAt, closesAt *time.Time) (Window, error)
	ClearWindow(ctx context.Context, adminID uuid.UUID) error
}

// ServiceParams groups the withdrawal service dependencies.
type ServiceParams struct {
	DB          txRunner
	Ledger      ledger.Repository
	Locks       LockStater
	Windows     WindowRepository
	Broadcaster Broadcaster
	Prices      PriceOracle
	Tokens      map[string]config.Token
	Outbox      outbox.Emitter
	Logger      *logger.Logger
	Metrics     *metrics.LedgerMetrics
	Config      config.LedgerConfig
	Clock       func() time.Time
}

type service struct {
	db               txRunner
	ledger           ledger.Repository
	locks            LockStater
	windows          WindowRepository
	broadcaster      Broadcaster
	prices           PriceOracle
	tokens           map[string]config.Token
	outbox           outbox.Emitter
	logg             *logger.Logger
	metrics          *metrics.LedgerMetrics
	feeRate          decimal.Decimal
	minWithdrawal    decimal.Decimal
	broadcastTimeout time.Duration
	now              func() time.Time
}

// NewService validates params and builds the withdrawal service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.DB == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Ledger == nil:
		return nil, fmt.Errorf("ledger repository required")
	case params.Locks == nil:
		return nil, fmt.Errorf("lock state calculator required")
	case params.Windows == nil:
		return nil, fmt.Errorf("window repository required")
	case params.Broadcaster == nil:
		return nil, fmt.Errorf("transfer broadcaster required")
	case params.Prices == nil:
		return nil, fmt.Errorf("price oracle required")
	case len(params.Tokens) == 0:
		return nil, fmt.Errorf("at least one payout token required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.Config.BroadcastTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		db:               params.DB,
		ledger:           params.Ledger,
		locks:            params.Locks,
		windows:          params.Windows,
		broadcaster:      params.Broadcaster,
		prices:           params.Prices,
		tokens:           params.Tokens,
		outbox:           params.Outbox,
		logg:             params.Logger,
		metrics:          params.Metrics,
		feeRate:          params.Config.WithdrawalFeeRate,
		minWithdrawal:    params.Config.MinWithdrawal,
		broadcastTimeout: timeout,
		now:              clock,
	}, nil
}

// SubmitEarnings reserves an earnings withdrawal. ROI is consumed first and
// any remainder comes out of unlocked principal. A platform fee is recorded
// and deducted from the payout.
func (s *service) SubmitEarnings(ctx context.Context, input SubmitInput) (*models.LedgerEntry, error) {
	return s.submit(ctx, input, enums.WithdrawalModeEarnings)
}

// SubmitPrincipal reserves a fee-free withdrawal of unlocked principal.
func (s *service) SubmitPrincipal(ctx context.Context, input SubmitInput) (*models.LedgerEntry, error) {
	return s.submit(ctx, input, enums.WithdrawalModePrincipal)
}

func (s *service) submit(ctx context.Context, input SubmitInput, mode enums.WithdrawalMode) (*models.LedgerEntry, error) {
	token, err := s.validate(input, mode)
	if err != nil {
		return nil, err
	}
	now := s.now()

	window, err := s.windows.Get(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load withdrawal window")
	}
	if !window.IsOpen(now) {
		return nil, pkgerrors.New(pkgerrors.CodeWindowClosed, "withdrawals are not accepted right now").
			WithDetails(map[string]any{"opens_at": window.OpensAt, "closes_at": window.ClosesAt})
	}

	quote, err := s.prices.Quote(ctx, token.Symbol)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "price feed unavailable, retry later")
	}
	if !quote.Rate.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "price feed returned an unusable rate")
	}

	entryID := uuid.New()
	var created *models.LedgerEntry
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ledger.WithTx(tx)
		account, err := repo.FindAccountForUpdate(ctx, input.AccountID)
		if err != nil {
			return err
		}
		state, err := s.locks.LockState(ctx, tx, input.AccountID, now)
		if err != nil {
			return err
		}
		split, err := s.split(mode, input.Amount, account, state)
		if err != nil {
			return err
		}
		if err := repo.ReserveFunds(ctx, account.ID, ledger.Reservation{
			Amount:             input.Amount,
			RoiDeduction:       split.RoiDeduction,
			PrincipalDeduction: split.PrincipalDeduction,
		}); err != nil {
			return err
		}

		feeRate := decimal.Zero
		if mode == enums.WithdrawalModeEarnings {
			feeRate = s.feeRate
		}
		crypto := input.Amount.DivRound(quote.Rate, cryptoScale)
		net := crypto.Mul(decimal.NewFromInt(1).Sub(feeRate)).Round(cryptoScale)

		entry, _, err := repo.CreateEntryIfAbsent(ctx, &models.LedgerEntry{
			ID:             entryID,
			AccountID:      account.ID,
			Kind:           enums.EntryKindWithdrawal,
			Status:         enums.EntryStatusPending,
			Amount:         input.Amount,
			CryptoAmount:   crypto,
			Token:          token.Symbol,
			ExchangeRate:   quote.Rate,
			IdempotencyKey: ledger.WithdrawalKey(entryID),
			Annotation: models.NewAnnotation(&models.WithdrawalAnnotation{
				Mode:               mode,
				Destination:        strings.TrimSpace(input.Destination),
				RoiDeduction:       split.RoiDeduction,
				PrincipalDeduction: split.PrincipalDeduction,
				FeeRate:            feeRate,
				FeeAmount:          input.Amount.Mul(feeRate).Round(amountScale),
				NetCryptoAmount:    net,
			}),
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if err := verifyReservation(ctx, repo, account.ID, now); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalRequested,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entry.ID,
			Actor:         &outbox.ActorRef{AccountID: &account.ID, Role: enums.RoleUser},
			Data: payloads.WithdrawalRequestedEvent{
				EntryID:     entry.ID,
				AccountID:   account.ID,
				Mode:        mode,
				Amount:      entry.Amount,
				Destination: strings.TrimSpace(input.Destination),
				Token:       token.Symbol,
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}
		created = entry
		return nil
	})
	if err != nil {
		return nil, asLedgerError(err, "submit withdrawal")
	}

	s.metrics.RecordEntry(string(enums.EntryKindWithdrawal), string(enums.EntryStatusPending), created.Amount)
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"account_id": created.AccountID.String(),
		"entry_id":   created.ID.String(),
		"mode":       mode,
		"amount":     created.Amount.String(),
	})
	s.logg.Info(logCtx, "withdrawal requested")
	return created, nil
}

// verifyReservation re-derives the lock state from the rows written in this
// transaction, new withdrawal included. Open withdrawals may not take more
// principal than has unlocked, nor more in total than earnings plus unlocked
// principal.
func verifyReservation(ctx context.Context, repo ledger.Repository, accountID uuid.UUID, now time.Time) error {
	deposits, err := repo.ListCompletedDeposits(ctx, accountID)
	if err != nil {
		return err
	}
	withdrawals, err := repo.ListOpenWithdrawals(ctx, accountID)
	if err != nil {
		return err
	}
	earned, err := repo.SumCompleted(ctx, accountID, enums.EntryKindYield, enums.EntryKindCommission)
	if err != nil {
		return err
	}
	state := ledger.ComputeLockState(deposits, withdrawals, earned, now)
	details := map[string]any{
		"unlocked_principal":  state.UnlockedPrincipal.String(),
		"principal_withdrawn": state.PrincipalWithdrawn.String(),
		"total_withdrawn":     state.TotalWithdrawn.String(),
	}
	if state.PrincipalWithdrawn.GreaterThan(state.UnlockedPrincipal) {
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "withdrawal would take locked principal").
			WithDetails(details)
	}
	if state.TotalWithdrawn.GreaterThan(state.EarnedIncome.Add(state.UnlockedPrincipal)) {
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "withdrawal exceeds earnings and unlocked principal").
			WithDetails(details)
	}
	return nil
}

func (s *service) validate(input SubmitInput, mode enums.WithdrawalMode) (config.Token, error) {
	if input.AccountID == uuid.Nil {
		return config.Token{}, pkgerrors.New(pkgerrors.CodeValidation, "account id required")
	}
	if !input.Amount.IsPositive() {
		return config.Token{}, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if !input.Amount.Equal(input.Amount.Round(amountScale)) {
		return config.Token{}, pkgerrors.Newf(pkgerrors.CodeValidation, "amount supports at most %d decimal places", amountScale)
	}
	if mode == enums.WithdrawalModeEarnings && input.Amount.LessThan(s.minWithdrawal) {
		return config.Token{}, pkgerrors.Newf(pkgerrors.CodeValidation, "minimum withdrawal is %s", s.minWithdrawal)
	}
	if !chain.IsAddress(input.Destination) {
		return config.Token{}, pkgerrors.New(pkgerrors.CodeValidation, "destination is not a valid EVM address")
	}
	token, ok := s.tokens[strings.ToUpper(strings.TrimSpace(input.Token))]
	if !ok {
		return config.Token{}, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported token %q", input.Token)
	}
	return token, nil
}

// split decides how much of amount comes out of ROI and how much out of
// unlocked principal.
func (s *service) split(mode enums.WithdrawalMode, amount decimal.Decimal, account *models.Account, state ledger.LockState) (ledger.Reservation, error) {
	principalRoom := state.WithdrawablePrincipal()
	details := map[string]any{
		"requested":              amount.String(),
		"available_withdrawal":   state.AvailableWithdrawal.String(),
		"withdrawable_principal": principalRoom.String(),
		"locked_principal":       state.LockedPrincipal.String(),
	}

	if mode == enums.WithdrawalModePrincipal {
		if amount.GreaterThan(principalRoom) {
			return ledger.Reservation{}, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "amount exceeds unlocked principal").
				WithDetails(details)
		}
		if amount.GreaterThan(state.AvailableWithdrawal) {
			return ledger.Reservation{}, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "amount exceeds available withdrawal").
				WithDetails(details)
		}
		return ledger.Reservation{Amount: amount, RoiDeduction: decimal.Zero, PrincipalDeduction: amount}, nil
	}

	if amount.GreaterThan(state.AvailableWithdrawal) {
		return ledger.Reservation{}, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "amount exceeds available withdrawal").
			WithDetails(details)
	}
	roi := decimal.Max(decimal.Zero, decimal.Min(amount, account.RoiBalance))
	principal := amount.Sub(roi)
	if principal.GreaterThan(principalRoom) {
		return ledger.Reservation{}, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "amount exceeds earnings and unlocked principal").
			WithDetails(details)
	}
	return ledger.Reservation{Amount: amount, RoiDeduction: roi, PrincipalDeduction: principal}, nil
}

// Approve claims the entry, broadcasts the payout outside any transaction and
// records the outcome. A failed broadcast marks the entry failed and refunds
// the reservation in one transaction.
func (s *service) Approve(ctx context.Context, entryID, adminID uuid.UUID) (*models.LedgerEntry, error) {
	if entryID == uuid.Nil || adminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry id and admin id required")
	}
	entry, err := s.ledger.FindEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	meta, err := withdrawalMeta(entry)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.ClaimEntry(ctx, entryID, adminID, s.now()); err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"entry_id":   entryID.String(),
		"account_id": entry.AccountID.String(),
		"admin_id":   adminID.String(),
	})
	s.logg.Info(logCtx, "withdrawal claimed")

	sendCtx, cancel := context.WithTimeout(ctx, s.broadcastTimeout)
	ref, sendErr := s.broadcaster.Transfer(sendCtx, chain.TransferRequest{
		Token:       entry.Token,
		Destination: meta.Destination,
		Amount:      meta.NetCryptoAmount,
	})
	cancel()

	// the outcome must be recorded even if the caller went away mid-broadcast
	resolveCtx := context.WithoutCancel(ctx)
	if sendErr == nil {
		if err := s.complete(resolveCtx, entry, *meta, adminID, ref); err != nil {
			s.logg.Error(s.logg.WithField(logCtx, "transfer_ref", ref), "withdrawal broadcast but not recorded", err)
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transfer was broadcast but the withdrawal could not be marked completed").
				WithDetails(map[string]any{"entry_id": entryID.String(), "transfer_ref": ref})
		}
		s.metrics.RecordResolution("completed")
		s.logg.Info(s.logg.WithField(logCtx, "transfer_ref", ref), "withdrawal completed")
		return s.ledger.FindEntry(resolveCtx, entryID)
	}

	s.logg.Warn(s.logg.WithField(logCtx, "error", sendErr.Error()), "withdrawal broadcast failed, refunding")
	if err := s.fail(resolveCtx, s.db.WithTx, entry, *meta, adminID, "broadcast failed: "+sendErr.Error(), false); err != nil {
		s.logg.Error(logCtx, "withdrawal refund failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "transfer failed and the refund could not be recorded").
			WithDetails(map[string]any{"entry_id": entryID.String()})
	}
	s.metrics.RecordResolution("failed")
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, sendErr, "transfer could not be broadcast; the withdrawal was marked failed and the balance was restored").
		WithDetails(map[string]any{"entry_id": entryID.String(), "status": enums.EntryStatusFailed, "refunded": true})
}

func (s *service) complete(ctx context.Context, entry *models.LedgerEntry, meta models.WithdrawalAnnotation, adminID uuid.UUID, ref string) error {
	now := s.now()
	meta.TransferRef = ref
	meta.ResolvedBy = &adminID
	annotation := models.NewAnnotation(&meta)
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.ledger.WithTx(tx).TransitionEntry(ctx, entry.ID, enums.EntryStatusPending, enums.EntryStatusCompleted, &annotation, now); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalCompleted,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entry.ID,
			Actor:         &outbox.ActorRef{AccountID: &adminID, Role: enums.RoleAdmin},
			Data: payloads.WithdrawalResolvedEvent{
				EntryID:     entry.ID,
				AccountID:   entry.AccountID,
				Status:      enums.EntryStatusCompleted,
				Amount:      entry.Amount,
				TransferRef: ref,
			},
			OccurredAt: now,
		})
	})
}

type txFunc func(ctx context.Context, fn func(tx *gorm.DB) error) error

// fail marks the entry failed and reverses its reservation. When lock is set
// the entry is re-read under a row lock and must still be pending and unclaimed.
func (s *service) fail(ctx context.Context, run txFunc, entry *models.LedgerEntry, meta models.WithdrawalAnnotation, adminID uuid.UUID, reason string, lock bool) error {
	now := s.now()
	return run(ctx, func(tx *gorm.DB) error {
		repo := s.ledger.WithTx(tx)
		if lock {
			current, err := repo.FindEntryForUpdate(ctx, entry.ID)
			if err != nil {
				return err
			}
			if current.Status != enums.EntryStatusPending {
				return conflict(current, fmt.Sprintf("withdrawal is already %s", current.Status))
			}
			if current.IsClaimed() {
				return conflict(current, "withdrawal is being processed by an approval")
			}
		}

		meta.FailureReason = reason
		meta.ResolvedBy = &adminID
		annotation := models.NewAnnotation(&meta)
		if err := repo.TransitionEntry(ctx, entry.ID, enums.EntryStatusPending, enums.EntryStatusFailed, &annotation, now); err != nil {
			return err
		}
		reservation := ledger.Reservation{
			Amount:             entry.Amount,
			RoiDeduction:       meta.RoiDeduction,
			PrincipalDeduction: meta.PrincipalDeduction,
		}
		if err := repo.ApplyDelta(ctx, entry.AccountID, reservation.Refund()); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWithdrawalFailed,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entry.ID,
			Actor:         &outbox.ActorRef{AccountID: &adminID, Role: enums.RoleAdmin},
			Data: payloads.WithdrawalResolvedEvent{
				EntryID:   entry.ID,
				AccountID: entry.AccountID,
				Status:    enums.EntryStatusFailed,
				Amount:    entry.Amount,
				Reason:    reason,
				Refunded:  true,
			},
			OccurredAt: now,
		})
	})
}

// Reject fails a pending, unclaimed withdrawal and refunds it at serializable
// isolation.
func (s *service) Reject(ctx context.Context, entryID, adminID uuid.UUID, reason string) (*models.LedgerEntry, error) {
	if entryID == uuid.Nil || adminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry id and admin id required")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason is required")
	}
	if len(reason) > maxReason {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "reason must be at most %d characters", maxReason)
	}

	entry, err := s.ledger.FindEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	meta, err := withdrawalMeta(entry)
	if err != nil {
		return nil, err
	}
	if err := s.fail(ctx, s.db.WithSerializableTx, entry, *meta, adminID, reason, true); err != nil {
		return nil, asLedgerError(err, "reject withdrawal")
	}

	s.metrics.RecordResolution("rejected")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"entry_id":   entryID.String(),
		"account_id": entry.AccountID.String(),
		"admin_id":   adminID.String(),
		"reason":     reason,
	})
	s.logg.Info(logCtx, "withdrawal rejected and refunded")
	return s.ledger.FindEntry(ctx, entryID)
}

// ResolveInput settles a stale claim. TransferRef records a payout verified on
// chain; Reason fails and refunds the withdrawal. Exactly one is set.
type ResolveInput struct {
	EntryID     uuid.UUID
	AdminID     uuid.UUID
	TransferRef string
	Reason      string
}

// ResolveClaim settles a withdrawal left pending and claimed after an approval
// lost track of its broadcast. The claim must be older than the broadcast
// timeout so an approval still in flight is never overtaken.
func (s *service) ResolveClaim(ctx context.Context, input ResolveInput) (*models.LedgerEntry, error) {
	if input.EntryID == uuid.Nil || input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry id and admin id required")
	}
	ref := strings.TrimSpace(input.TransferRef)
	reason := strings.TrimSpace(input.Reason)
	if (ref == "") == (reason == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exactly one of transfer_ref or reason is required")
	}
	if len(reason) > maxReason {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "reason must be at most %d characters", maxReason)
	}

	entry, err := s.ledger.FindEntry(ctx, input.EntryID)
	if err != nil {
		return nil, err
	}
	meta, err := withdrawalMeta(entry)
	if err != nil {
		return nil, err
	}
	if entry.Status != enums.EntryStatusPending {
		return nil, conflict(entry, fmt.Sprintf("withdrawal is already %s", entry.Status))
	}
	if !entry.IsClaimed() {
		return nil, conflict(entry, "withdrawal is not claimed; approve or reject it instead")
	}
	if s.now().Sub(*entry.ClaimedAt) < s.broadcastTimeout {
		return nil, conflict(entry, "approval may still be broadcasting; retry after the broadcast timeout")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"entry_id":   entry.ID.String(),
		"account_id": entry.AccountID.String(),
		"admin_id":   input.AdminID.String(),
	})
	if ref != "" {
		if err := s.complete(ctx, entry, *meta, input.AdminID, ref); err != nil {
			return nil, asLedgerError(err, "resolve withdrawal")
		}
		s.metrics.RecordResolution("completed")
		s.logg.Info(s.logg.WithField(logCtx, "transfer_ref", ref), "stale withdrawal claim resolved as completed")
		return s.ledger.FindEntry(ctx, entry.ID)
	}

	if err := s.fail(ctx, s.db.WithSerializableTx, entry, *meta, input.AdminID, reason, false); err != nil {
		return nil, asLedgerError(err, "resolve withdrawal")
	}
	s.metrics.RecordResolution("failed")
	s.logg.Info(s.logg.WithField(logCtx, "reason", reason), "stale withdrawal claim resolved as failed and refunded")
	return s.ledger.FindEntry(ctx, entry.ID)
}

func (s *service) ListPending(ctx context.Context, params pagination.Params) (*ledger.EntryList, error) {
	return s.ledger.ListPendingWithdrawals(ctx, params)
}

func (s *service) GetWindow(ctx context.Context) (Window, error) {
	return s.windows.Get(ctx)
}

// SetWindow stores new bounds. Either bound may be nil; when both are set
// opensAt must be before closesAt.
func (s *service) SetWindow(ctx context.Context, adminID uuid.UUID, opensAt, closesAt *time.Time) (Window, error) {
	if adminID == uuid.Nil {
		return Window{}, pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	if opensAt != nil && closesAt != nil && !opensAt.Before(*closesAt) {
		return Window{}, pkgerrors.New(pkgerrors.CodeValidation, "opens_at must be before closes_at")
	}
	if err := s.windows.Save(ctx, Window{OpensAt: opensAt, ClosesAt: closesAt}, adminID, s.now()); err != nil {
		return Window{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "save withdrawal window")
	}
	s.logg.Info(s.logg.WithField(ctx, "admin_id", adminID.String()), "withdrawal window updated")
	return s.windows.Get(ctx)
}

// ClearWindow removes both bounds, leaving withdrawals always open.
func (s *service) ClearWindow(ctx context.Context, adminID uuid.UUID) error {
	_, err := s.SetWindow(ctx, adminID, nil, nil)
	return err
}

func withdrawalMeta(entry *models.LedgerEntry) (*models.WithdrawalAnnotation, error) {
	if entry.Kind != enums.EntryKindWithdrawal {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "withdrawal not found")
	}
	meta, ok := entry.Withdrawal()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "withdrawal is missing its reservation metadata")
	}
	return meta, nil
}

func conflict(entry *models.LedgerEntry, message string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{
			"entry_id": entry.ID.String(),
			"status":   entry.Status,
			"claimed":  entry.IsClaimed(),
		})
}

func asLedgerError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}
