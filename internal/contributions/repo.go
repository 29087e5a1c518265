package contributions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

// ProviderReferenceConstraint names the unique index guarding provider references.
const ProviderReferenceConstraint = "ux_contributions_provider_reference"

// Repository persists contributions. Amounts are written once at creation and
// status only moves out of pending through MarkSettled.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, contribution *models.Contribution) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Contribution, error)
	FindByProviderReference(ctx context.Context, providerReference string) (*models.Contribution, error)
	MarkSettled(ctx context.Context, input SettleInput) (bool, error)
	SumCompletedByTarget(ctx context.Context, targetID uuid.UUID) (CompletedTotals, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Contribution, error)
}

// SettleInput describes the single pending -> terminal move of a contribution.
type SettleInput struct {
	ProviderReference string
	Status            enums.ContributionStatus
	FailureReason     *string
	SettledAt         time.Time
}

// CompletedTotals is the authoritative aggregate over completed contributions.
type CompletedTotals struct {
	SumCents int64
	Count    int64
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a contributions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, contribution *models.Contribution) error {
	if contribution.ID == uuid.Nil {
		contribution.ID = uuid.New()
	}
	if contribution.Status == "" {
		contribution.Status = enums.ContributionStatusPending
	}
	return r.db.WithContext(ctx).Create(contribution).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Contribution, error) {
	var contribution models.Contribution
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&contribution).Error; err != nil {
		return nil, err
	}
	return &contribution, nil
}

// FindByProviderReference returns nil, nil when no contribution carries the reference.
func (r *repository) FindByProviderReference(ctx context.Context, providerReference string) (*models.Contribution, error) {
	var contribution models.Contribution
	if err := r.db.WithContext(ctx).
		Where("provider_reference = ?", providerReference).
		First(&contribution).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contribution, nil
}

// MarkSettled moves a pending contribution to a terminal status. It reports
// false when the row was no longer pending, meaning another delivery won.
func (r *repository) MarkSettled(ctx context.Context, input SettleInput) (bool, error) {
	updates := map[string]any{
		"status":     input.Status,
		"updated_at": input.SettledAt,
	}
	if input.Status == enums.ContributionStatusCompleted {
		updates["completed_at"] = input.SettledAt
	}
	if input.FailureReason != nil {
		updates["failure_reason"] = *input.FailureReason
	}
	res := r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Where("provider_reference = ? AND status = ?", input.ProviderReference, enums.ContributionStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SumCompletedByTarget(ctx context.Context, targetID uuid.UUID) (CompletedTotals, error) {
	var totals CompletedTotals
	err := r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Select("COALESCE(SUM(amount_cents), 0) AS sum_cents, COUNT(*) AS count").
		Where("target_id = ? AND status = ?", targetID, enums.ContributionStatusCompleted).
		Scan(&totals).Error
	if err != nil {
		return CompletedTotals{}, err
	}
	return totals, nil
}

func (r *repository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]models.Contribution, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Contribution
	if err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.ContributionStatusPending, olderThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
