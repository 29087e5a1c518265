package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fundledger-backend/internal/webhooks/verifier"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

// DeferredRepository parks verified events that arrived before their contribution.
type DeferredRepository interface {
	WithTx(tx *gorm.DB) DeferredRepository
	Park(ctx context.Context, event verifier.NormalizedEvent) (bool, error)
	ListPending(ctx context.Context, limit int) ([]models.DeferredPaymentEvent, error)
	MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time, abandon bool) error
	CountPending(ctx context.Context) (int64, error)
}

type deferredRepository struct {
	db *gorm.DB
}

func NewDeferredRepository(db *gorm.DB) DeferredRepository {
	return &deferredRepository{db: db}
}

func (r *deferredRepository) WithTx(tx *gorm.DB) DeferredRepository {
	if tx == nil {
		return r
	}
	return &deferredRepository{db: tx}
}

// Park stores the event once per (provider, event id). It reports false when
// the event was already parked.
func (r *deferredRepository) Park(ctx context.Context, event verifier.NormalizedEvent) (bool, error) {
	row := models.DeferredPaymentEvent{
		ID:                uuid.New(),
		Provider:          event.Provider,
		EventID:           event.EventID,
		ProviderReference: event.ProviderReference,
		Outcome:           event.Outcome,
		RawAmountCents:    event.RawAmountCents,
		FailureReason:     event.FailureReasonPtr(),
		Status:            enums.DeferredEventStatusPending,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *deferredRepository) ListPending(ctx context.Context, limit int) ([]models.DeferredPaymentEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.DeferredPaymentEvent
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.DeferredEventStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *deferredRepository) MarkResolved(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DeferredPaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          enums.DeferredEventStatusResolved,
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": at,
			"resolved_at":     at,
		}).Error
}

func (r *deferredRepository) RecordAttempt(ctx context.Context, id uuid.UUID, at time.Time, abandon bool) error {
	updates := map[string]any{
		"attempts":        gorm.Expr("attempts + 1"),
		"last_attempt_at": at,
	}
	if abandon {
		updates["status"] = enums.DeferredEventStatusAbandoned
	}
	return r.db.WithContext(ctx).
		Model(&models.DeferredPaymentEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *deferredRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.DeferredPaymentEvent{}).
		Where("status = ?", enums.DeferredEventStatusPending).
		Count(&count).Error
	return count, err
}

func eventFromDeferred(row models.DeferredPaymentEvent) verifier.NormalizedEvent {
	event := verifier.NormalizedEvent{
		Provider:          row.Provider,
		EventID:           row.EventID,
		ProviderReference: row.ProviderReference,
		Outcome:           row.Outcome,
		RawAmountCents:    row.RawAmountCents,
	}
	if row.FailureReason != nil {
		event.FailureReason = *row.FailureReason
	}
	return event
}
