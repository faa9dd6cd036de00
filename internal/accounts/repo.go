package accounts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/yieldvault-backend/pkg/db/models"
	"github.com/angelmondragon/yieldvault-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/yieldvault-backend/pkg/errors"
)

// Repository persists accounts and the referral edges written at onboarding.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByIdentity(ctx context.Context, identityID string) (*models.Account, error)
	FindByReferralCode(ctx context.Context, code string) (*models.Account, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.AccountStatus) error
	CreateEdges(ctx context.Context, edges []models.ReferralEdge) error
	FindEdge(ctx context.Context, refereeID uuid.UUID, level enums.ReferralLevel) (*models.ReferralEdge, error)
	ListEdgesByReferee(ctx context.Context, refereeID uuid.UUID) ([]models.ReferralEdge, error)
	ListEdgesByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEdge, error)
	ListEdgesAfter(ctx context.Context, after uuid.UUID, limit int) ([]models.ReferralEdge, error)
	AddEdgeEarnings(ctx context.Context, edgeID uuid.UUID, amount decimal.Decimal) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an account repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.find(ctx, "id = ?", id)
}

func (r *repository) FindByIdentity(ctx context.Context, identityID string) (*models.Account, error) {
	return r.find(ctx, "identity_id = ?", identityID)
}

func (r *repository) FindByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	return r.find(ctx, "referral_code = ?", code)
}

func (r *repository) find(ctx context.Context, where string, arg any) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where(where, arg).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.AccountStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	return nil
}

func (r *repository) CreateEdges(ctx context.Context, edges []models.ReferralEdge) error {
	if len(edges) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&edges).Error
}

func (r *repository) FindEdge(ctx context.Context, refereeID uuid.UUID, level enums.ReferralLevel) (*models.ReferralEdge, error) {
	var edge models.ReferralEdge
	err := r.db.WithContext(ctx).
		Where("referee_id = ? AND level = ?", refereeID, level).
		First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &edge, nil
}

func (r *repository) ListEdgesByReferee(ctx context.Context, refereeID uuid.UUID) ([]models.ReferralEdge, error) {
	var edges []models.ReferralEdge
	err := r.db.WithContext(ctx).
		Where("referee_id = ?", refereeID).
		Order("level ASC").
		Find(&edges).Error
	return edges, err
}

func (r *repository) ListEdgesByReferrer(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralEdge, error) {
	var edges []models.ReferralEdge
	err := r.db.WithContext(ctx).
		Where("referrer_id = ?", referrerID).
		Order("level ASC").
		Order("created_at ASC").
		Find(&edges).Error
	return edges, err
}

// ListEdgesAfter pages through every edge ordered by id.
func (r *repository) ListEdgesAfter(ctx context.Context, after uuid.UUID, limit int) ([]models.ReferralEdge, error) {
	var edges []models.ReferralEdge
	query := r.db.WithContext(ctx).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	err := query.Find(&edges).Error
	return edges, err
}

func (r *repository) AddEdgeEarnings(ctx context.Context, edgeID uuid.UUID, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).
		Model(&models.ReferralEdge{}).
		Where("id = ?", edgeID).
		Update("total_earnings", gorm.Expr("total_earnings + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "referral edge not found")
	}
	return nil
}
