package contributions

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	"github.com/angelmondragon/fundledger-backend/pkg/money"
)

// InitiateInput is the contributor request to open a payment.
type InitiateInput struct {
	TargetID       *uuid.UUID      `json:"target_id,omitempty"`
	Amount         string          `json:"amount" validate:"required"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	Provider       string          `json:"provider" validate:"required,oneof=stripe square"`
	SourceID       string          `json:"source_id,omitempty" validate:"omitempty,max=255"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	IdempotencyKey string          `json:"-"`
}

// InitiateResult is returned once the pending contribution is durable.
type InitiateResult struct {
	Contribution ContributionDTO `json:"contribution"`
	ClientToken  string          `json:"client_token,omitempty"`
}

// ContributionDTO is the contributor-facing view of a contribution.
type ContributionDTO struct {
	ID                uuid.UUID                `json:"id"`
	TargetID          *uuid.UUID               `json:"target_id,omitempty"`
	AmountCents       int64                    `json:"amount_cents"`
	Amount            string                   `json:"amount"`
	Currency          enums.Currency           `json:"currency"`
	Provider          enums.PaymentProvider    `json:"provider"`
	ProviderReference string                   `json:"provider_reference"`
	Status            enums.ContributionStatus `json:"status"`
	FailureReason     *string                  `json:"failure_reason,omitempty"`
	CreatedAt         time.Time                `json:"created_at"`
	CompletedAt       *time.Time               `json:"completed_at,omitempty"`
}

func ToDTO(c *models.Contribution) ContributionDTO {
	return ContributionDTO{
		ID:                c.ID,
		TargetID:          c.TargetID,
		AmountCents:       c.AmountCents,
		Amount:            money.FormatCents(c.AmountCents),
		Currency:          c.Currency,
		Provider:          c.Provider,
		ProviderReference: c.ProviderReference,
		Status:            c.Status,
		FailureReason:     c.FailureReason,
		CreatedAt:         c.CreatedAt,
		CompletedAt:       c.CompletedAt,
	}
}
