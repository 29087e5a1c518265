package targets

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	"github.com/angelmondragon/fundledger-backend/pkg/money"
)

// CreateInput is the admin request to open a funding target.
type CreateInput struct {
	Kind         string `json:"kind" validate:"required,oneof=community_request investment_opportunity"`
	Title        string `json:"title" validate:"required,max=200"`
	TargetAmount string `json:"target_amount" validate:"required"`
	Currency     string `json:"currency" validate:"required,len=3"`
}

// PublicTargetDTO is the contributor-facing progress view.
type PublicTargetDTO struct {
	ID                uuid.UUID          `json:"id"`
	Kind              enums.TargetKind   `json:"kind"`
	Title             string             `json:"title"`
	Currency          enums.Currency     `json:"currency"`
	TargetAmountCents int64              `json:"target_amount_cents"`
	RaisedAmountCents int64              `json:"raised_amount_cents"`
	RaisedAmount      string             `json:"raised_amount"`
	ContributorCount  int64              `json:"contributor_count"`
	Status            enums.TargetStatus `json:"status"`
	FundedAt          *time.Time         `json:"funded_at,omitempty"`
}

// AdminTargetDTO adds the operational fields operators need.
type AdminTargetDTO struct {
	PublicTargetDTO
	Version    int64          `json:"version"`
	OnHold     bool           `json:"on_hold"`
	HoldReason *string        `json:"hold_reason,omitempty"`
	Transition *TransitionDTO `json:"transition,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type TransitionDTO struct {
	FromStatus        enums.TargetStatus `json:"from_status"`
	ToStatus          enums.TargetStatus `json:"to_status"`
	RaisedAmountCents int64              `json:"raised_amount_cents"`
	CreatedAt         time.Time          `json:"created_at"`
}

func ToPublicDTO(t *models.FundingTarget) PublicTargetDTO {
	return PublicTargetDTO{
		ID:                t.ID,
		Kind:              t.Kind,
		Title:             t.Title,
		Currency:          t.Currency,
		TargetAmountCents: t.TargetAmountCents,
		RaisedAmountCents: t.RaisedAmountCents,
		RaisedAmount:      money.FormatCents(t.RaisedAmountCents),
		ContributorCount:  t.ContributorCount,
		Status:            t.Status,
		FundedAt:          t.FundedAt,
	}
}

func ToAdminDTO(t *models.FundingTarget, transition *models.FundingTargetTransition) AdminTargetDTO {
	dto := AdminTargetDTO{
		PublicTargetDTO: ToPublicDTO(t),
		Version:         t.Version,
		OnHold:          t.OnHold,
		HoldReason:      t.HoldReason,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
	if transition != nil {
		dto.Transition = &TransitionDTO{
			FromStatus:        transition.FromStatus,
			ToStatus:          transition.ToStatus,
			RaisedAmountCents: transition.RaisedAmountCents,
			CreatedAt:         transition.CreatedAt,
		}
	}
	return dto
}
