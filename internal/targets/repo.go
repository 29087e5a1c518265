package targets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

// TransitionConstraint names the unique index allowing one transition per target.
const TransitionConstraint = "ux_funding_target_transitions_target"

// Repository persists funding targets and their transition log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, target *models.FundingTarget) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.FundingTarget, error)
	LockForUpdate(ctx context.Context, id uuid.UUID) (*models.FundingTarget, error)
	UpdateAggregate(ctx context.Context, input AggregateUpdate) (bool, error)
	InsertTransition(ctx context.Context, transition *models.FundingTargetTransition) error
	FindTransition(ctx context.Context, targetID uuid.UUID) (*models.FundingTargetTransition, error)
	SetHold(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ReleaseHold(ctx context.Context, id uuid.UUID) (bool, error)
	ListActive(ctx context.Context, after uuid.UUID, limit int) ([]models.FundingTarget, error)
}

// AggregateUpdate writes a recomputed projection. The write only lands when the
// stored version still equals ExpectedVersion.
type AggregateUpdate struct {
	ID                uuid.UUID
	ExpectedVersion   int64
	RaisedAmountCents int64
	ContributorCount  int64
	Status            enums.TargetStatus
	FundedAt          *time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a targets repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, target *models.FundingTarget) error {
	if target.ID == uuid.Nil {
		target.ID = uuid.New()
	}
	if target.Status == "" {
		target.Status = enums.TargetStatusActive
	}
	return r.db.WithContext(ctx).Create(target).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.FundingTarget, error) {
	var target models.FundingTarget
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&target).Error; err != nil {
		return nil, err
	}
	return &target, nil
}

// LockForUpdate reads the target with a row lock held until the surrounding
// transaction ends. SQLite ignores the locking clause; its single writer gives
// the same serialisation.
func (r *repository) LockForUpdate(ctx context.Context, id uuid.UUID) (*models.FundingTarget, error) {
	var target models.FundingTarget
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&target).Error; err != nil {
		return nil, err
	}
	return &target, nil
}

func (r *repository) UpdateAggregate(ctx context.Context, input AggregateUpdate) (bool, error) {
	updates := map[string]any{
		"raised_amount_cents": input.RaisedAmountCents,
		"contributor_count":   input.ContributorCount,
		"status":              input.Status,
		"version":             gorm.Expr("version + 1"),
		"updated_at":          time.Now().UTC(),
	}
	if input.FundedAt != nil {
		updates["funded_at"] = *input.FundedAt
	}
	res := r.db.WithContext(ctx).
		Model(&models.FundingTarget{}).
		Where("id = ? AND version = ?", input.ID, input.ExpectedVersion).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertTransition(ctx context.Context, transition *models.FundingTargetTransition) error {
	if transition.ID == uuid.Nil {
		transition.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(transition).Error
}

// FindTransition returns nil, nil when the target never transitioned.
func (r *repository) FindTransition(ctx context.Context, targetID uuid.UUID) (*models.FundingTargetTransition, error) {
	var transition models.FundingTargetTransition
	err := r.db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Limit(1).
		Find(&transition).Error
	if err != nil {
		return nil, err
	}
	if transition.ID == uuid.Nil {
		return nil, nil
	}
	return &transition, nil
}

// SetHold flags the target and reports whether this call placed the hold.
// An existing hold keeps its original reason.
func (r *repository) SetHold(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FundingTarget{}).
		Where("id = ? AND on_hold = ?", id, false).
		Updates(map[string]any{
			"on_hold":     true,
			"hold_reason": reason,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ReleaseHold clears the hold flag and reports whether the target was held.
func (r *repository) ReleaseHold(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.FundingTarget{}).
		Where("id = ? AND on_hold = ?", id, true).
		Updates(map[string]any{
			"on_hold":     false,
			"hold_reason": nil,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListActive pages active targets that are not on hold, by id, so batch jobs
// can walk the table. Held targets wait for an operator release.
func (r *repository) ListActive(ctx context.Context, after uuid.UUID, limit int) ([]models.FundingTarget, error) {
	if limit <= 0 {
		limit = 100
	}
	query := r.db.WithContext(ctx).
		Where("status = ? AND on_hold = ?", enums.TargetStatusActive, false)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	var rows []models.FundingTarget
	if err := query.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
