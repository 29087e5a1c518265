package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

// ContributionInitiatedEvent is emitted when a pending contribution is persisted.
type ContributionInitiatedEvent struct {
	ContributionID    uuid.UUID             `json:"contribution_id"`
	TargetID          *uuid.UUID            `json:"target_id,omitempty"`
	Provider          enums.PaymentProvider `json:"provider"`
	ProviderReference string                `json:"provider_reference"`
	AmountCents       int64                 `json:"amount_cents"`
	Currency          enums.Currency        `json:"currency"`
}

// ContributionSettledEvent is emitted when a pending contribution reaches a terminal status.
type ContributionSettledEvent struct {
	ContributionID    uuid.UUID                `json:"contribution_id"`
	TargetID          *uuid.UUID               `json:"target_id,omitempty"`
	Provider          enums.PaymentProvider    `json:"provider"`
	ProviderReference string                   `json:"provider_reference"`
	Status            enums.ContributionStatus `json:"status"`
	AmountCents       int64                    `json:"amount_cents"`
	Currency          enums.Currency           `json:"currency"`
	FailureReason     *string                  `json:"failure_reason,omitempty"`
	SettledAt         time.Time                `json:"settled_at"`
}

// TargetStatusChangedEvent carries the single lifecycle transition of a funding target.
type TargetStatusChangedEvent struct {
	TargetID          uuid.UUID          `json:"target_id"`
	Kind              enums.TargetKind   `json:"kind"`
	FromStatus        enums.TargetStatus `json:"from_status"`
	ToStatus          enums.TargetStatus `json:"to_status"`
	RaisedAmountCents int64              `json:"raised_amount_cents"`
	TargetAmountCents int64              `json:"target_amount_cents"`
	ContributorCount  int64              `json:"contributor_count"`
	Currency          enums.Currency     `json:"currency"`
	TransitionedAt    time.Time          `json:"transitioned_at"`
}

// TargetPlacedOnHoldEvent alerts operators that automatic transitions are suspended.
type TargetPlacedOnHoldEvent struct {
	TargetID          uuid.UUID `json:"target_id"`
	Reason            string    `json:"reason"`
	CachedRaisedCents int64     `json:"cached_raised_cents"`
	ComputedSumCents  int64     `json:"computed_sum_cents"`
	DetectedAt        time.Time `json:"detected_at"`
}
