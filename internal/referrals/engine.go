package referrals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/internal/accounts"
	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/metrics"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox/payloads"
)

const (
	edgeBatchSize = 200
	amountScale   = 8
)

// Outcome of one edge in a monthly run.
const (
	OutcomePaid    = "paid"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Payout is one commission credited to a referrer.
type Payout struct {
	EntryID    uuid.UUID
	ReferrerID uuid.UUID
	Level      enums.ReferralLevel
	Amount     decimal.Decimal
}

// EdgeResult is the outcome of one edge in a monthly run.
type EdgeResult struct {
	EdgeID     uuid.UUID
	ReferrerID uuid.UUID
	RefereeID  uuid.UUID
	Level      enums.ReferralLevel
	Outcome    string
	Amount     decimal.Decimal
	Reason     string
	Err        error
}

// Report summarizes a monthly run.
type Report struct {
	Month   string
	Results []EdgeResult
	Paid    int
	Skipped int
	Failed  int
	Total   decimal.Decimal
}

func (r *Report) add(result EdgeResult) {
	r.Results = append(r.Results, result)
	switch result.Outcome {
	case OutcomePaid:
		r.Paid++
		r.Total = r.Total.Add(result.Amount)
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// EngineParams groups the commission engine dependencies.
type EngineParams struct {
	DB       txRunner
	Ledger   ledger.Repository
	Accounts accounts.Repository
	Outbox   outbox.Emitter
	Logger   *logger.Logger
	Metrics  *metrics.LedgerMetrics
	Config   config.LedgerConfig
	Clock    func() time.Time
}

// Engine pays instant and monthly referral commissions.
type Engine struct {
	db       txRunner
	ledger   ledger.Repository
	accounts accounts.Repository
	outbox   outbox.Emitter
	logg     *logger.Logger
	metrics  *metrics.LedgerMetrics
	rates    map[enums.ReferralLevel]decimal.Decimal
	loc      *time.Location
	now      func() time.Time
}

// NewEngine validates params and builds the engine.
func NewEngine(params EngineParams) (*Engine, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Accounts == nil {
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
	return &Engine{
		db:       params.DB,
		ledger:   params.Ledger,
		accounts: params.Accounts,
		outbox:   params.Outbox,
		logg:     params.Logger,
		metrics:  params.Metrics,
		rates: map[enums.ReferralLevel]decimal.Decimal{
			enums.ReferralLevelDirect:   params.Config.L1CommissionRate,
			enums.ReferralLevelIndirect: params.Config.L2CommissionRate,
		},
		loc: params.Config.Location(),
		now: clock,
	}, nil
}

// Rate returns the commission rate for level.
func (e *Engine) Rate(level enums.ReferralLevel) decimal.Decimal {
	return e.rates[level]
}

// PayInstant credits the depositor's referrers for their first completed
// deposit. It runs inside the deposit transaction tx.
func (e *Engine) PayInstant(ctx context.Context, tx *gorm.DB, deposit *models.LedgerEntry) ([]Payout, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if deposit == nil || deposit.Kind != enums.EntryKindDeposit || deposit.Status != enums.EntryStatusCompleted {
		return nil, fmt.Errorf("instant commission requires a completed deposit")
	}
	ledgerRepo := e.ledger.WithTx(tx)

	prior, err := ledgerRepo.HasCompletedDeposit(ctx, deposit.AccountID, deposit.ID)
	if err != nil {
		return nil, err
	}
	if prior {
		return nil, nil
	}

	edges, err := e.accounts.WithTx(tx).ListEdgesByReferee(ctx, deposit.AccountID)
	if err != nil {
		return nil, err
	}

	var payouts []Payout
	for _, edge := range edges {
		rate := e.rates[edge.Level]
		amount := deposit.Amount.Mul(rate).Round(amountScale)
		if !amount.IsPositive() {
			continue
		}
		entry := commissionEntry(edge, amount, ledger.InstantCommissionKey(deposit.ID, edge.ReferrerID), e.now(), models.CommissionAnnotation{
			SourceAccountID: deposit.AccountID,
			Level:           edge.Level,
			Trigger:         enums.CommissionTriggerInstant,
			Rate:            rate,
			Base:            deposit.Amount,
			SourceEntryID:   &deposit.ID,
		})
		paid, err := e.credit(ctx, tx, edge, entry, enums.CommissionTriggerInstant)
		if err != nil {
			return nil, err
		}
		if paid != nil {
			payouts = append(payouts, *paid)
		}
	}
	return payouts, nil
}

// RunMonthly pays every edge whose referee currently has invested principal.
// The month key makes re-runs within the same month no-ops per edge.
func (e *Engine) RunMonthly(ctx context.Context, now time.Time) (Report, error) {
	month := now.In(e.loc)
	report := Report{Month: month.Format(ledger.MonthLayout), Total: decimal.Zero}

	var errs error
	after := uuid.Nil
	for {
		edges, err := e.accounts.ListEdgesAfter(ctx, after, edgeBatchSize)
		if err != nil {
			return report, multierr.Append(errs, fmt.Errorf("list referral edges: %w", err))
		}
		for _, edge := range edges {
			result := e.payMonthly(ctx, edge, month)
			if result.Err != nil {
				errs = multierr.Append(errs, fmt.Errorf("edge %s: %w", edge.ID, result.Err))
			}
			report.add(result)
		}
		if len(edges) < edgeBatchSize {
			break
		}
		after = edges[len(edges)-1].ID
	}

	logCtx := e.logg.WithFields(ctx, map[string]any{
		"month":   report.Month,
		"paid":    report.Paid,
		"skipped": report.Skipped,
		"failed":  report.Failed,
		"total":   report.Total.String(),
	})
	e.logg.Info(logCtx, "monthly commission run finished")
	return report, errs
}

func (e *Engine) payMonthly(ctx context.Context, edge models.ReferralEdge, month time.Time) EdgeResult {
	result := EdgeResult{
		EdgeID:     edge.ID,
		ReferrerID: edge.ReferrerID,
		RefereeID:  edge.RefereeID,
		Level:      edge.Level,
		Outcome:    OutcomeSkipped,
		Amount:     decimal.Zero,
	}
	err := e.db.WithTx(ctx, func(tx *gorm.DB) error {
		referee, err := e.ledger.WithTx(tx).FindAccount(ctx, edge.RefereeID)
		if err != nil {
			return err
		}
		rate := e.rates[edge.Level]
		amount := referee.TotalInvested.Mul(rate).Round(amountScale)
		if !amount.IsPositive() {
			result.Reason = "no invested principal"
			return nil
		}
		entry := commissionEntry(edge, amount, ledger.MonthlyCommissionKey(month, edge.ReferrerID, edge.RefereeID), e.now(), models.CommissionAnnotation{
			SourceAccountID: edge.RefereeID,
			Level:           edge.Level,
			Trigger:         enums.CommissionTriggerMonthly,
			Rate:            rate,
			Base:            referee.TotalInvested,
			Period:          month.Format(ledger.MonthLayout),
		})
		paid, err := e.credit(ctx, tx, edge, entry, enums.CommissionTriggerMonthly)
		if err != nil {
			return err
		}
		if paid == nil {
			result.Reason = "already paid this month"
			return nil
		}
		result.Outcome = OutcomePaid
		result.Amount = paid.Amount
		return nil
	})
	if err != nil {
		result.Outcome = OutcomeError
		result.Amount = decimal.Zero
		result.Err = err
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"edge_id":     edge.ID.String(),
			"referrer_id": edge.ReferrerID.String(),
			"referee_id":  edge.RefereeID.String(),
		})
		e.logg.Error(logCtx, "monthly commission failed", err)
	}
	return result
}

// credit writes the commission entry and, when it is new, moves the balance
// and the edge total. A nil payout means the key was already used.
func (e *Engine) credit(ctx context.Context, tx *gorm.DB, edge models.ReferralEdge, entry *models.LedgerEntry, trigger enums.CommissionTrigger) (*Payout, error) {
	ledgerRepo := e.ledger.WithTx(tx)
	stored, created, err := ledgerRepo.CreateEntryIfAbsent(ctx, entry)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, nil
	}
	if err := ledgerRepo.ApplyDelta(ctx, edge.ReferrerID, ledger.EarningCredit(stored.Amount)); err != nil {
		return nil, err
	}
	if err := e.accounts.WithTx(tx).AddEdgeEarnings(ctx, edge.ID, stored.Amount); err != nil {
		return nil, err
	}
	if err := e.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCommissionPaid,
		AggregateType: enums.AggregateLedgerEntry,
		AggregateID:   stored.ID,
		Data: payloads.CommissionPaidEvent{
			EntryID:    stored.ID,
			ReferrerID: edge.ReferrerID,
			RefereeID:  edge.RefereeID,
			Level:      edge.Level,
			Trigger:    trigger,
			Amount:     stored.Amount,
		},
		OccurredAt: stored.CreatedAt,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit commission paid")
	}
	e.metrics.RecordEntry(string(enums.EntryKindCommission), string(enums.EntryStatusCompleted), stored.Amount)
	return &Payout{EntryID: stored.ID, ReferrerID: edge.ReferrerID, Level: edge.Level, Amount: stored.Amount}, nil
}

func commissionEntry(edge models.ReferralEdge, amount decimal.Decimal, key string, now time.Time, annotation models.CommissionAnnotation) *models.LedgerEntry {
	return &models.LedgerEntry{
		AccountID:      edge.ReferrerID,
		Kind:           enums.EntryKindCommission,
		Status:         enums.EntryStatusCompleted,
		Amount:         amount,
		CryptoAmount:   amount,
		Token:          models.SettlementToken,
		ExchangeRate:   decimal.NewFromInt(1),
		IdempotencyKey: key,
		Annotation:     models.NewAnnotation(&annotation),
		CompletedAt:    &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}
