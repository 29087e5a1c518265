package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fundledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

type settledData struct {
	ContributionID uuid.UUID `json:"contribution_id"`
	AmountCents    int64     `json:"amount_cents"`
}

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	aggregateID := uuid.New()
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventContributionSettled,
			AggregateType: enums.AggregateContribution,
			AggregateID:   aggregateID,
			Actor:         &ActorRef{Subject: "system"},
			Data:          settledData{ContributionID: aggregateID, AmountCents: 500},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateContribution, aggregateID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, "system", envelope.Actor.Subject)

	var data settledData
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, int64(500), data.AmountCents)
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	aggregateID := uuid.New()
	boom := errors.New("state change failed")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventTargetStatusChanged,
			AggregateType: enums.AggregateFundingTarget,
			AggregateID:   aggregateID,
			Data:          map[string]string{"to_status": "funded"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateFundingTarget, aggregateID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitRejectsUnknownTypeAndMissingTx(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventContributionSettled}))

	conn := dbtest.Open(t)
	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.OutboxEventType("bogus"),
		AggregateType: enums.AggregateContribution,
		AggregateID:   uuid.New(),
		Data:          map[string]any{},
	})
	require.Error(t, err)
}

func TestEmitIfNotExistsSkipsDuplicates(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	targetID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventTargetPlacedOnHold,
		AggregateType: enums.AggregateFundingTarget,
		AggregateID:   targetID,
		Data:          map[string]string{"reason": "sum decreased"},
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, svc.EmitIfNotExists(context.Background(), conn, event))
	}

	rows, err := repo.ListByAggregate(context.Background(), enums.AggregateFundingTarget, targetID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)

	published := seedEvent(t, conn, repo, time.Now().Add(-40*24*time.Hour))
	failing := seedEvent(t, conn, repo, time.Now().Add(-39*24*time.Hour))
	fresh := seedEvent(t, conn, repo, time.Now())

	var batch []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, batch, 3)
	require.Equal(t, published, batch[0].ID, "oldest first")

	require.NoError(t, repo.MarkPublishedTx(conn, published))
	require.NoError(t, repo.MarkFailedTx(conn, failing, errors.New("pubsub unavailable")))
	require.NoError(t, repo.MarkTerminalTx(conn, failing, errors.New("gave up"), 3))

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, batch, 1)
	require.Equal(t, fresh, batch[0].ID)

	deleted, err := repo.DeletePublishedBefore(context.Background(), nil, time.Now().Add(-30*24*time.Hour), 3)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&remaining).Error)
	require.Equal(t, int64(1), remaining)
}

func seedEvent(t *testing.T, conn *gorm.DB, repo *Repository, createdAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, repo.Insert(conn, models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventContributionSettled,
		AggregateType: enums.AggregateContribution,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		CreatedAt:     createdAt,
	}))
	return id
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e-1","data":{"amount_cents":5}}`))
	require.NoError(t, err)
	require.Equal(t, EnvelopeVersion, env.Version)
	require.Equal(t, "e-1", env.EventID)

	for _, raw := range []string{`{"version":1}`, `{"version":1,"data":null}`, `{"version":`} {
		_, err := DecodeEnvelope([]byte(raw))
		require.Error(t, err, raw)
	}
}
