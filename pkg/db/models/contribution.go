package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

// Contribution is a single attempted payment toward an optional funding target.
type Contribution struct {
	ID                uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	TargetID          *uuid.UUID               `gorm:"column:target_id;type:uuid;index:ix_contributions_target_status,priority:1"`
	AmountCents       int64                    `gorm:"column:amount_cents;not null;check:chk_contributions_amount_positive,amount_cents > 0"`
	Currency          enums.Currency           `gorm:"column:currency;type:varchar(3);not null"`
	Provider          enums.PaymentProvider    `gorm:"column:provider;type:varchar(16);not null"`
	ProviderReference string                   `gorm:"column:provider_reference;not null;uniqueIndex:ux_contributions_provider_reference"`
	Status            enums.ContributionStatus `gorm:"column:status;type:varchar(16);not null;default:'pending';index:ix_contributions_target_status,priority:2"`
	FailureReason     *string                  `gorm:"column:failure_reason"`
	Metadata          json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CompletedAt       *time.Time               `gorm:"column:completed_at"`
	CreatedAt         time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
