package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

// DeferredPaymentEvent parks a verified event whose contribution is not yet known.
type DeferredPaymentEvent struct {
	ID                uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	Provider          enums.PaymentProvider     `gorm:"column:provider;type:varchar(16);not null;uniqueIndex:ux_deferred_payment_events_provider_event,priority:1"`
	EventID           string                    `gorm:"column:event_id;not null;uniqueIndex:ux_deferred_payment_events_provider_event,priority:2"`
	ProviderReference string                    `gorm:"column:provider_reference;not null;index"`
	Outcome           enums.PaymentOutcome      `gorm:"column:outcome;type:varchar(16);not null"`
	RawAmountCents    int64                     `gorm:"column:raw_amount_cents;not null"`
	FailureReason     *string                   `gorm:"column:failure_reason"`
	Status            enums.DeferredEventStatus `gorm:"column:status;type:varchar(16);not null;default:'pending'"`
	Attempts          int                       `gorm:"column:attempts;not null;default:0"`
	LastAttemptAt     *time.Time                `gorm:"column:last_attempt_at"`
	ResolvedAt        *time.Time                `gorm:"column:resolved_at"`
	CreatedAt         time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
