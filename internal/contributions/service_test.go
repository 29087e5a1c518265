package contributions

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fundledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fundledger-backend/pkg/errors"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox"
)

type stubInitiator struct {
	ref   string
	token string
	err   error
	calls []PaymentRequest
}

func (s *stubInitiator) Initiate(_ context.Context, req PaymentRequest) (*PaymentHandle, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	return &PaymentHandle{ProviderReference: s.ref, ClientToken: s.token}, nil
}

type gormTargets struct {
	db *gorm.DB
}

func (g gormTargets) FindByID(ctx context.Context, id uuid.UUID) (*models.FundingTarget, error) {
	var target models.FundingTarget
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&target).Error; err != nil {
		return nil, err
	}
	return &target, nil
}

type fixture struct {
	conn      *gorm.DB
	svc       Service
	initiator *stubInitiator
	outbox    *outbox.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	outboxRepo := outbox.NewRepository(conn)
	initiator := &stubInitiator{ref: "pi_123", token: "pi_123_secret"}
	svc, err := NewService(ServiceParams{
		Repo:              NewRepository(conn),
		Targets:           gormTargets{db: conn},
		Initiators:        map[enums.PaymentProvider]PaymentInitiator{enums.PaymentProviderStripe: initiator},
		Outbox:            outbox.NewService(outboxRepo, nil),
		TransactionRunner: dbtest.TxRunner{DB: conn},
		Logger:            logger.Nop(),
	})
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc, initiator: initiator, outbox: outboxRepo}
}

func createTarget(t *testing.T, conn *gorm.DB, status enums.TargetStatus) *models.FundingTarget {
	t.Helper()
	target := &models.FundingTarget{
		ID:                uuid.New(),
		Kind:              enums.TargetKindInvestmentOpportunity,
		Title:             "seed round",
		TargetAmountCents: 100000,
		Currency:          enums.CurrencyUSD,
		Status:            status,
	}
	require.NoError(t, conn.Create(target).Error)
	return target
}

func TestInitiatePersistsPendingContributionAndEvent(t *testing.T) {
	f := newFixture(t)
	target := createTarget(t, f.conn, enums.TargetStatusActive)

	res, err := f.svc.Initiate(context.Background(), InitiateInput{
		TargetID: &target.ID,
		Amount:   "25.50",
		Currency: "usd",
		Provider: "stripe",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123_secret", res.ClientToken)
	assert.Equal(t, enums.ContributionStatusPending, res.Contribution.Status)
	assert.EqualValues(t, 2550, res.Contribution.AmountCents)
	assert.Equal(t, "25.50", res.Contribution.Amount)
	assert.Equal(t, "pi_123", res.Contribution.ProviderReference)

	require.Len(t, f.initiator.calls, 1)
	assert.Equal(t, res.Contribution.ID, f.initiator.calls[0].ContributionID)
	assert.Equal(t, "contribution-"+res.Contribution.ID.String(), f.initiator.calls[0].IdempotencyKey)

	events, err := f.outbox.ListByAggregate(context.Background(), enums.AggregateContribution, res.Contribution.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventContributionInitiated, events[0].EventType)

	got, err := f.svc.Get(context.Background(), res.Contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Contribution.ID, got.ID)
}

func TestInitiateRejectsClosedTarget(t *testing.T) {
	f := newFixture(t)
	target := createTarget(t, f.conn, enums.TargetStatusFunded)

	_, err := f.svc.Initiate(context.Background(), InitiateInput{
		TargetID: &target.ID,
		Amount:   "10",
		Currency: "USD",
		Provider: "stripe",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, f.initiator.calls, "provider must not be called for a closed target")
}

func TestInitiateValidation(t *testing.T) {
	f := newFixture(t)
	target := createTarget(t, f.conn, enums.TargetStatusActive)
	missing := uuid.New()

	cases := []struct {
		name  string
		input InitiateInput
		code  pkgerrors.Code
	}{
		{"zero amount", InitiateInput{Amount: "0", Currency: "USD", Provider: "stripe"}, pkgerrors.CodeValidation},
		{"fractional cents", InitiateInput{Amount: "1.005", Currency: "USD", Provider: "stripe"}, pkgerrors.CodeValidation},
		{"unknown currency", InitiateInput{Amount: "1", Currency: "JPY", Provider: "stripe"}, pkgerrors.CodeValidation},
		{"disabled provider", InitiateInput{Amount: "1", Currency: "USD", Provider: "square"}, pkgerrors.CodeValidation},
		{"currency mismatch", InitiateInput{TargetID: &target.ID, Amount: "1", Currency: "EUR", Provider: "stripe"}, pkgerrors.CodeValidation},
		{"missing target", InitiateInput{TargetID: &missing, Amount: "1", Currency: "USD", Provider: "stripe"}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Initiate(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
}

func TestInitiateDuplicateProviderReferenceIsConflict(t *testing.T) {
	f := newFixture(t)
	input := InitiateInput{Amount: "5", Currency: "USD", Provider: "stripe"}

	_, err := f.svc.Initiate(context.Background(), input)
	require.NoError(t, err)

	_, err = f.svc.Initiate(context.Background(), input)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict), "got %v", err)
}

func TestInitiateProviderFailureLeavesNoRow(t *testing.T) {
	f := newFixture(t)
	f.initiator.err = pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("stripe down"), "create stripe payment intent")

	_, err := f.svc.Initiate(context.Background(), InitiateInput{Amount: "5", Currency: "USD", Provider: "stripe"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var count int64
	require.NoError(t, f.conn.Model(&models.Contribution{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetUnknownContribution(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}
