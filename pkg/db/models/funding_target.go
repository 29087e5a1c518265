package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

// FundingTarget holds the cached aggregate of completed contributions.
// RaisedAmountCents and ContributorCount are projections recomputed from contributions.
type FundingTarget struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Kind              enums.TargetKind   `gorm:"column:kind;type:varchar(32);not null"`
	Title             string             `gorm:"column:title;not null"`
	TargetAmountCents int64              `gorm:"column:target_amount_cents;not null;check:chk_funding_targets_target_positive,target_amount_cents > 0"`
	Currency          enums.Currency     `gorm:"column:currency;type:varchar(3);not null"`
	RaisedAmountCents int64              `gorm:"column:raised_amount_cents;not null;default:0;check:chk_funding_targets_raised_non_negative,raised_amount_cents >= 0"`
	ContributorCount  int64              `gorm:"column:contributor_count;not null;default:0;check:chk_funding_targets_count_non_negative,contributor_count >= 0"`
	Status            enums.TargetStatus `gorm:"column:status;type:varchar(16);not null;default:'active'"`
	Version           int64              `gorm:"column:version;not null;default:0"`
	OnHold            bool               `gorm:"column:on_hold;not null;default:false"`
	HoldReason        *string            `gorm:"column:hold_reason"`
	FundedAt          *time.Time         `gorm:"column:funded_at"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// FundingTargetTransition records the single lifecycle transition a target may take.
type FundingTargetTransition struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	TargetID          uuid.UUID          `gorm:"column:target_id;type:uuid;not null;uniqueIndex:ux_funding_target_transitions_target"`
	FromStatus        enums.TargetStatus `gorm:"column:from_status;type:varchar(16);not null"`
	ToStatus          enums.TargetStatus `gorm:"column:to_status;type:varchar(16);not null"`
	RaisedAmountCents int64              `gorm:"column:raised_amount_cents;not null"`
	TriggeredBy       *uuid.UUID         `gorm:"column:triggered_by;type:uuid"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
}
