package withdrawals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
)

// Window bounds when withdrawal requests are accepted. A nil bound is unset.
type Window struct {
	OpensAt   *time.Time `json:"opens_at"`
	ClosesAt  *time.Time `json:"closes_at"`
	UpdatedBy *uuid.UUID `json:"updated_by,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// IsOpen reports whether now falls inside the bounds that are set. With no
// bounds the window is always open.
func (w Window) IsOpen(now time.Time) bool {
	if w.OpensAt != nil && now.Before(*w.OpensAt) {
		return false
	}
	if w.ClosesAt != nil && !now.Before(*w.ClosesAt) {
		return false
	}
	return true
}

// WindowRepository stores the singleton window row.
type WindowRepository interface {
	WithTx(tx *gorm.DB) WindowRepository
	Get(ctx context.Context) (Window, error)
	Save(ctx context.Context, window Window, updatedBy uuid.UUID, now time.Time) error
}

type windowRepository struct {
	db *gorm.DB
}

// NewWindowRepository returns a window repository bound to db.
func NewWindowRepository(db *gorm.DB) WindowRepository {
	return &windowRepository{db: db}
}

func (r *windowRepository) WithTx(tx *gorm.DB) WindowRepository {
	if tx == nil {
		return r
	}
	return &windowRepository{db: tx}
}

// Get returns the stored window, or an open window when none was ever set.
func (r *windowRepository) Get(ctx context.Context) (Window, error) {
	var row models.WithdrawalWindow
	err := r.db.WithContext(ctx).Where("id = ?", models.WithdrawalWindowID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Window{}, nil
		}
		return Window{}, err
	}
	updatedAt := row.UpdatedAt
	return Window{
		OpensAt:   row.OpensAt,
		ClosesAt:  row.ClosesAt,
		UpdatedBy: row.UpdatedBy,
		UpdatedAt: &updatedAt,
	}, nil
}

func (r *windowRepository) Save(ctx context.Context, window Window, updatedBy uuid.UUID, now time.Time) error {
	row := models.WithdrawalWindow{
		ID:        models.WithdrawalWindowID,
		OpensAt:   utcPtr(window.OpensAt),
		ClosesAt:  utcPtr(window.ClosesAt),
		UpdatedBy: &updatedBy,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"opens_at", "closes_at", "updated_by", "updated_at"}),
		}).
		Create(&row).Error
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
