package roi

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/internal/ledger"
	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	"github.com/angelmondragon/yieldvault-backend/pkg/logger"
	"github.com/angelmondragon/yieldvault-backend/pkg/metrics"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox"
	"github.com/angelmondragon/yieldvault-backend/pkg/outbox/payloads"
)

const amountScale = 8

// Outcome of one account in a run.
const (
	OutcomeCredited = "credited"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AccountResult is the outcome for one account.
type AccountResult struct {
	AccountID uuid.UUID
	Outcome   string
	Amount    decimal.Decimal
	Reason    string
	Err       error
}

// Report summarizes one accrual run.
type Report struct {
	Day      string
	Weekend  bool
	Results  []AccountResult
	Credited int
	Skipped  int
	Failed   int
	Total    decimal.Decimal
}

func (r *Report) add(result AccountResult) {
	r.Results = append(r.Results, result)
	switch result.Outcome {
	case OutcomeCredited:
		r.Credited++
		r.Total = r.Total.Add(result.Amount)
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// AccruerParams groups the accrual job dependencies.
type AccruerParams struct {
	DB      txRunner
	Ledger  ledger.Repository
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.LedgerMetrics
	Config  config.LedgerConfig
}

// Accruer credits daily yield on invested principal.
type Accruer struct {
	db      txRunner
	ledger  ledger.Repository
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	rate    decimal.Decimal
	loc     *time.Location
}

// NewAccruer validates params and builds the accrual job.
func NewAccruer(params AccruerParams) (*Accruer, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !params.Config.DailyRate.IsPositive() {
		return nil, fmt.Errorf("daily rate must be positive")
	}
	return &Accruer{
		db:      params.DB,
		ledger:  params.Ledger,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		rate:    params.Config.DailyRate,
		loc:     params.Config.Location(),
	}, nil
}

// Run credits one day of yield to every active invested account. Saturdays
// and Sundays in the business time zone are a no-op. Per-account failures are
// collected and returned together with the full report.
func (a *Accruer) Run(ctx context.Context, now time.Time) (Report, error) {
	local := now.In(a.loc)
	report := Report{Day: local.Format(ledger.DayLayout), Total: decimal.Zero}
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		report.Weekend = true
		a.logg.Info(a.logg.WithField(ctx, "day", report.Day), "yield accrual skipped on weekend")
		return report, nil
	}

	candidates, err := a.ledger.ListInvestedActiveAccounts(ctx)
	if err != nil {
		return report, fmt.Errorf("list invested accounts: %w", err)
	}

	var errs error
	for _, account := range candidates {
		result := a.accrue(ctx, account.ID, now)
		if result.Err != nil {
			errs = multierr.Append(errs, fmt.Errorf("account %s: %w", account.ID, result.Err))
		}
		report.add(result)
	}

	logCtx := a.logg.WithFields(ctx, map[string]any{
		"day":      report.Day,
		"credited": report.Credited,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
		"total":    report.Total.String(),
	})
	a.logg.Info(logCtx, "yield accrual finished")
	return report, errs
}

func (a *Accruer) accrue(ctx context.Context, accountID uuid.UUID, now time.Time) AccountResult {
	result := AccountResult{AccountID: accountID, Outcome: OutcomeSkipped, Amount: decimal.Zero}
	dayStart, dayEnd := ledger.DayBounds(now, a.loc)
	day := now.In(a.loc)

	err := a.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := a.ledger.WithTx(tx)
		account, err := repo.FindAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !account.IsActive() || !account.TotalInvested.IsPositive() {
			result.Reason = "not eligible"
			return nil
		}
		done, err := repo.HasCompletedEntryBetween(ctx, accountID, enums.EntryKindYield, dayStart, dayEnd)
		if err != nil {
			return err
		}
		if done {
			result.Reason = "already credited today"
			return nil
		}

		amount := account.TotalInvested.Mul(a.rate).Round(amountScale)
		if !amount.IsPositive() {
			result.Reason = "yield rounds to zero"
			return nil
		}
		createdAt := now.UTC()
		entry, created, err := repo.CreateEntryIfAbsent(ctx, &models.LedgerEntry{
			AccountID:      accountID,
			Kind:           enums.EntryKindYield,
			Status:         enums.EntryStatusCompleted,
			Amount:         amount,
			CryptoAmount:   amount,
			Token:          models.SettlementToken,
			ExchangeRate:   decimal.NewFromInt(1),
			IdempotencyKey: ledger.YieldKey(day, accountID),
			Annotation: models.NewAnnotation(&models.YieldAnnotation{
				Day:  day.Format(ledger.DayLayout),
				Rate: a.rate,
				Base: account.TotalInvested,
			}),
			CompletedAt: &createdAt,
			CreatedAt:   createdAt,
			UpdatedAt:   createdAt,
		})
		if err != nil {
			return err
		}
		if !created {
			result.Reason = "already credited today"
			return nil
		}
		if err := repo.ApplyDelta(ctx, accountID, ledger.EarningCredit(amount)); err != nil {
			return err
		}
		if err := a.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventYieldCredited,
			AggregateType: enums.AggregateLedgerEntry,
			AggregateID:   entry.ID,
			Data: payloads.YieldCreditedEvent{
				EntryID:   entry.ID,
				AccountID: accountID,
				Amount:    amount,
				Day:       day.Format(ledger.DayLayout),
			},
			OccurredAt: createdAt,
		}); err != nil {
			return err
		}
		result.Outcome = OutcomeCredited
		result.Amount = amount
		return nil
	})
	if err != nil {
		result.Outcome = OutcomeError
		result.Amount = decimal.Zero
		result.Err = err
		a.logg.Error(a.logg.WithAccountID(ctx, accountID.String()), "yield accrual failed", err)
		return result
	}
	if result.Outcome == OutcomeCredited {
		a.metrics.RecordEntry(string(enums.EntryKindYield), string(enums.EntryStatusCompleted), result.Amount)
	}
	return result
}
