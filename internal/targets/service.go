package targets

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/money"
)

// Service manages funding targets outside the reconciliation path.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*AdminTargetDTO, error)
	GetPublic(ctx context.Context, id uuid.UUID) (*PublicTargetDTO, error)
	GetAdmin(ctx context.Context, id uuid.UUID) (*AdminTargetDTO, error)
	ReleaseHold(ctx context.Context, id uuid.UUID) (*AdminTargetDTO, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "target repo required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*AdminTargetDTO, error) {
	kind, err := enums.ParseTargetKind(strings.TrimSpace(input.Kind))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid kind")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	amount, err := money.ParseCents(input.TargetAmount)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target amount")
	}
	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency")
	}

	target := &models.FundingTarget{
		ID:                uuid.New(),
		Kind:              kind,
		Title:             title,
		TargetAmountCents: amount,
		Currency:          currency,
		Status:            enums.TargetStatusActive,
	}
	if err := s.repo.Create(ctx, target); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create funding target")
	}
	s.logg.Info(s.logg.WithTargetID(ctx, target.ID.String()), "funding target created")

	dto := ToAdminDTO(target, nil)
	return &dto, nil
}

func (s *service) GetPublic(ctx context.Context, id uuid.UUID) (*PublicTargetDTO, error) {
	target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := ToPublicDTO(target)
	return &dto, nil
}

func (s *service) GetAdmin(ctx context.Context, id uuid.UUID) (*AdminTargetDTO, error) {
	target, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	transition, err := s.repo.FindTransition(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load target transition")
	}
	dto := ToAdminDTO(target, transition)
	return &dto, nil
}

// ReleaseHold re-enables automatic transitions once an operator has resolved
// the inconsistency that placed the hold.
func (s *service) ReleaseHold(ctx context.Context, id uuid.UUID) (*AdminTargetDTO, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	released, err := s.repo.ReleaseHold(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release hold")
	}
	if !released {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "funding target is not on hold")
	}
	s.logg.Warn(s.logg.WithTargetID(ctx, id.String()), "funding target hold released")
	return s.GetAdmin(ctx, id)
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.FundingTarget, error) {
	target, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "funding target not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load funding target")
	}
	return target, nil
}
