package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
	"github.com/angelmondragon/yieldvault-backend/pkg/pagination"
)

// Repository is the ledger store. Balance columns only change through
// ApplyDelta and ReserveFunds, always inside the transaction that writes the
// matching entry.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	FindAccountForUpdate(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	ListInvestedActiveAccounts(ctx context.Context) ([]models.Account, error)
	ListAccountIDs(ctx context.Context) ([]uuid.UUID, error)
	ApplyDelta(ctx context.Context, accountID uuid.UUID, delta BalanceDelta) error
	ReserveFunds(ctx context.Context, accountID uuid.UUID, reservation Reservation) error

	CreateEntryIfAbsent(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, bool, error)
	FindEntry(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error)
	FindEntryForUpdate(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error)
	FindEntryByKey(ctx context.Context, key string) (*models.LedgerEntry, error)
	ClaimEntry(ctx context.Context, entryID, adminID uuid.UUID, now time.Time) error
	TransitionEntry(ctx context.Context, entryID uuid.UUID, from, to enums.EntryStatus, annotation *models.Annotation, now time.Time) error

	ListEntries(ctx context.Context, accountID uuid.UUID, filters EntryFilters, params pagination.Params) (*EntryList, error)
	ListEntriesBefore(ctx context.Context, accountID uuid.UUID, before time.Time) ([]models.LedgerEntry, error)
	ListCompletedDeposits(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error)
	ListOpenWithdrawals(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error)
	ListPendingWithdrawals(ctx context.Context, params pagination.Params) (*EntryList, error)
	ListStaleClaims(ctx context.Context, claimedBefore time.Time) ([]StaleClaim, error)
	SumCompleted(ctx context.Context, accountID uuid.UUID, kinds ...enums.EntryKind) (decimal.Decimal, error)
	HasCompletedEntryBetween(ctx context.Context, accountID uuid.UUID, kind enums.EntryKind, from, to time.Time) (bool, error)
	HasCompletedDeposit(ctx context.Context, accountID uuid.UUID, excluding uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return r.findAccount(r.db.WithContext(ctx), accountID)
}

// FindAccountForUpdate row-locks the account until the surrounding
// transaction ends. Writers that check ledger-derived limits take it first.
func (r *repository) FindAccountForUpdate(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	return r.findAccount(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), accountID)
}

func (r *repository) findAccount(query *gorm.DB, accountID uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := query.Where("id = ?", accountID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) ListInvestedActiveAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := r.db.WithContext(ctx).
		Where("status = ? AND total_invested > 0", enums.AccountStatusActive).
		Order("id ASC").
		Find(&accounts).Error
	return accounts, err
}

func (r *repository) ListAccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta BalanceDelta) error {
	if delta.IsZero() {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", accountID).
		Updates(map[string]any{
			"total_balance":     gorm.Expr("total_balance + ?", delta.Total),
			"available_balance": gorm.Expr("available_balance + ?", delta.Available),
			"total_invested":    gorm.Expr("total_invested + ?", delta.Invested),
			"roi_balance":       gorm.Expr("roi_balance + ?", delta.Roi),
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return nil
}

func (r *repository) ReserveFunds(ctx context.Context, accountID uuid.UUID, reservation Reservation) error {
	if !reservation.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "reservation amount must be positive")
	}
	if !reservation.RoiDeduction.Add(reservation.PrincipalDeduction).Equal(reservation.Amount) {
		return fmt.Errorf("reservation split %s + %s does not match amount %s",
			reservation.RoiDeduction, reservation.PrincipalDeduction, reservation.Amount)
	}

	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", accountID).
		Where("available_balance >= ? AND roi_balance >= ? AND total_invested >= ?",
			reservation.Amount, reservation.RoiDeduction, reservation.PrincipalDeduction).
		Updates(map[string]any{
			"total_balance":     gorm.Expr("total_balance - ?", reservation.Amount),
			"available_balance": gorm.Expr("available_balance - ?", reservation.Amount),
			"total_invested":    gorm.Expr("total_invested - ?", reservation.PrincipalDeduction),
			"roi_balance":       gorm.Expr("roi_balance - ?", reservation.RoiDeduction),
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.FindAccount(ctx, accountID); err != nil {
			return err
		}
		return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "balance changed before the reservation could be made").
			WithDetails(map[string]any{"amount": reservation.Amount.String()})
	}
	return nil
}

func (r *repository) CreateEntryIfAbsent(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, bool, error) {
	if entry == nil {
		return nil, false, errors.New("ledger entry required")
	}
	if entry.IdempotencyKey == "" {
		return nil, false, errors.New("idempotency key required")
	}
	if kind := entry.Annotation.Kind(); kind != "" && kind != entry.Kind {
		return nil, false, fmt.Errorf("annotation kind %q does not match entry kind %q", kind, entry.Kind)
	}
	if !entry.Amount.IsPositive() {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "entry amount must be positive")
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(entry)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		return entry, true, nil
	}

	existing, err := r.FindEntryByKey(ctx, entry.IdempotencyKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *repository) FindEntry(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error) {
	return r.findEntry(r.db.WithContext(ctx), "id = ?", entryID)
}

func (r *repository) FindEntryForUpdate(ctx context.Context, entryID uuid.UUID) (*models.LedgerEntry, error) {
	return r.findEntry(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), "id = ?", entryID)
}

func (r *repository) FindEntryByKey(ctx context.Context, key string) (*models.LedgerEntry, error) {
	return r.findEntry(r.db.WithContext(ctx), "idempotency_key = ?", key)
}

func (r *repository) findEntry(query *gorm.DB, where string, arg any) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := query.Where(where, arg).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ClaimEntry(ctx context.Context, entryID, adminID uuid.UUID, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ? AND status = ? AND claimed_at IS NULL", entryID, enums.EntryStatusPending).
		Updates(map[string]any{
			"claimed_by": adminID,
			"claimed_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	entry, err := r.FindEntry(ctx, entryID)
	if err != nil {
		return err
	}
	return stateConflict(entry, "withdrawal is already being processed or resolved")
}

func (r *repository) TransitionEntry(ctx context.Context, entryID uuid.UUID, from, to enums.EntryStatus, annotation *models.Annotation, now time.Time) error {
	if !from.CanTransitionTo(to) {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "transition %s -> %s is not allowed", from, to)
	}
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	if to == enums.EntryStatusCompleted {
		updates["completed_at"] = now
	}
	if annotation != nil {
		updates["annotation"] = *annotation
	}

	result := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ? AND status = ?", entryID, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	entry, err := r.FindEntry(ctx, entryID)
	if err != nil {
		return err
	}
	return stateConflict(entry, fmt.Sprintf("entry is %s, expected %s", entry.Status, from))
}

func stateConflict(entry *models.LedgerEntry, message string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{
			"entry_id": entry.ID.String(),
			"status":   entry.Status,
			"claimed":  entry.IsClaimed(),
		})
}

func (r *repository) ListEntries(ctx context.Context, accountID uuid.UUID, filters EntryFilters, params pagination.Params) (*EntryList, error) {
	query := r.db.WithContext(ctx).Where("account_id = ?", accountID)
	if filters.Kind != nil {
		query = query.Where("kind = ?", *filters.Kind)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	return r.page(query, params, true)
}

func (r *repository) ListPendingWithdrawals(ctx context.Context, params pagination.Params) (*EntryList, error) {
	query := r.db.WithContext(ctx).
		Where("kind = ? AND status = ?", enums.EntryKindWithdrawal, enums.EntryStatusPending)
	return r.page(query, params, false)
}

// page applies keyset pagination on (created_at, id).
func (r *repository) page(query *gorm.DB, params pagination.Params, newestFirst bool) (*EntryList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	cmp, dir := ">", "ASC"
	if newestFirst {
		cmp, dir = "<", "DESC"
	}
	if cursor != nil {
		query = query.Where(
			fmt.Sprintf("(created_at %s ?) OR (created_at = ? AND id %s ?)", cmp, cmp),
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.LedgerEntry
	if err := query.
		Order("created_at " + dir).
		Order("id " + dir).
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	page := pagination.BuildPage(rows, params.Limit, func(e models.LedgerEntry) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return &EntryList{Entries: page.Items, NextCursor: page.NextCursor}, nil
}

func (r *repository) ListEntriesBefore(ctx context.Context, accountID uuid.UUID, before time.Time) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND created_at < ?", accountID, before).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListCompletedDeposits(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND kind = ? AND status = ?", accountID, enums.EntryKindDeposit, enums.EntryStatusCompleted).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListOpenWithdrawals(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND kind = ? AND status IN ?", accountID, enums.EntryKindWithdrawal,
			[]enums.EntryStatus{enums.EntryStatusPending, enums.EntryStatusCompleted}).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListStaleClaims(ctx context.Context, claimedBefore time.Time) ([]StaleClaim, error) {
	var rows []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("kind = ? AND status = ? AND claimed_at IS NOT NULL AND claimed_at < ?",
			enums.EntryKindWithdrawal, enums.EntryStatusPending, claimedBefore).
		Order("claimed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	claims := make([]StaleClaim, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, StaleClaim{
			EntryID:   row.ID,
			AccountID: row.AccountID,
			ClaimedBy: row.ClaimedBy,
			ClaimedAt: *row.ClaimedAt,
		})
	}
	return claims, nil
}

func (r *repository) SumCompleted(ctx context.Context, accountID uuid.UUID, kinds ...enums.EntryKind) (decimal.Decimal, error) {
	if len(kinds) == 0 {
		return decimal.Zero, nil
	}
	var row sumRow
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("SUM(amount) AS total").
		Where("account_id = ? AND status = ? AND kind IN ?", accountID, enums.EntryStatusCompleted, kinds).
		Scan(&row).Error
	if err != nil {
		return decimal.Zero, err
	}
	if !row.Total.Valid {
		return decimal.Zero, nil
	}
	return row.Total.Decimal, nil
}

type sumRow struct {
	Total decimal.NullDecimal
}

func (r *repository) HasCompletedEntryBetween(ctx context.Context, accountID uuid.UUID, kind enums.EntryKind, from, to time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("account_id = ? AND kind = ? AND status = ? AND created_at >= ? AND created_at < ?",
			accountID, kind, enums.EntryStatusCompleted, from, to).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) HasCompletedDeposit(ctx context.Context, accountID uuid.UUID, excluding uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("account_id = ? AND kind = ? AND status = ? AND id <> ?",
			accountID, enums.EntryKindDeposit, enums.EntryStatusCompleted, excluding).
		Count(&count).Error
	return count > 0, err
}
