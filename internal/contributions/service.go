package contributions

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fundledger-backend/pkg/db"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/money"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox/payloads"
)

// Service opens contributions and exposes their status to contributors.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*ContributionDTO, error)
}

type targetReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.FundingTarget, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	Repo              Repository
	Targets           targetReader
	Initiators        map[enums.PaymentProvider]PaymentInitiator
	Outbox            outboxEmitter
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type service struct {
	repo       Repository
	targets    targetReader
	initiators map[enums.PaymentProvider]PaymentInitiator
	outbox     outboxEmitter
	txRunner   txRunner
	logg       *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "contribution repo required")
	}
	if params.Targets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "target reader required")
	}
	if len(params.Initiators) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "at least one payment initiator required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{
		repo:       params.Repo,
		targets:    params.Targets,
		initiators: params.Initiators,
		outbox:     params.Outbox,
		txRunner:   params.TransactionRunner,
		logg:       params.Logger,
	}, nil
}

// Initiate opens the provider payment and persists the pending contribution
// before any client token is handed back, so a completion event always has a
// row to land on once the insert commits.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*InitiateResult, error) {
	amountCents, err := money.ParseCents(input.Amount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount")
	}
	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}
	provider, err := enums.ParsePaymentProvider(input.Provider)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider")
	}
	initiator, ok := s.initiators[provider]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider not enabled").
			WithDetails(map[string]any{"provider": provider})
	}

	if input.TargetID != nil {
		if err := s.checkTargetOpen(ctx, *input.TargetID, currency); err != nil {
			return nil, err
		}
	}

	contributionID := uuid.New()
	idempotencyKey := strings.TrimSpace(input.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = "contribution-" + contributionID.String()
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"contribution_id": contributionID.String(),
		"provider":        provider,
	})

	handle, err := initiator.Initiate(ctx, PaymentRequest{
		ContributionID: contributionID,
		TargetID:       input.TargetID,
		AmountCents:    amountCents,
		Currency:       currency,
		SourceID:       input.SourceID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		s.logg.Error(ctx, "payment initiation failed", err)
		return nil, err
	}
	ctx = s.logg.WithProviderReference(ctx, handle.ProviderReference)

	contribution := &models.Contribution{
		ID:                contributionID,
		TargetID:          input.TargetID,
		AmountCents:       amountCents,
		Currency:          currency,
		Provider:          provider,
		ProviderReference: handle.ProviderReference,
		Status:            enums.ContributionStatusPending,
		Metadata:          input.Metadata,
	}

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, contribution); err != nil {
			if db.IsUniqueViolation(err, ProviderReferenceConstraint) || db.IsUniqueViolation(err, "contributions.provider_reference") {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "provider reference already recorded")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist contribution")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventContributionInitiated,
			AggregateType: enums.AggregateContribution,
			AggregateID:   contribution.ID,
			Data: payloads.ContributionInitiatedEvent{
				ContributionID:    contribution.ID,
				TargetID:          contribution.TargetID,
				Provider:          contribution.Provider,
				ProviderReference: contribution.ProviderReference,
				AmountCents:       contribution.AmountCents,
				Currency:          contribution.Currency,
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "persist pending contribution failed", err)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist contribution")
	}

	s.logg.Info(ctx, "contribution initiated")
	return &InitiateResult{
		Contribution: ToDTO(contribution),
		ClientToken:  handle.ClientToken,
	}, nil
}

func (s *service) checkTargetOpen(ctx context.Context, targetID uuid.UUID, currency enums.Currency) error {
	target, err := s.targets.FindByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "funding target not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load funding target")
	}
	if target.Status != enums.TargetStatusActive {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "funding target is not accepting contributions").
			WithDetails(map[string]any{"status": target.Status})
	}
	if target.Currency != currency {
		return pkgerrors.New(pkgerrors.CodeValidation, "currency does not match funding target").
			WithDetails(map[string]any{"expected": target.Currency})
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*ContributionDTO, error) {
	contribution, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contribution not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load contribution")
	}
	dto := ToDTO(contribution)
	return &dto, nil
}
