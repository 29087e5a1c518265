package outbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fundledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
)

func queuedEvent(createdAt time.Time) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventContributionSettled,
		AggregateType: enums.AggregateContribution,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1,"data":{}}`),
		CreatedAt:     createdAt,
	}
}

func TestFetchSkipsPublishedAndExhaustedRows(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	now := time.Now().UTC()

	oldest, newer, published, exhausted := queuedEvent(now.Add(-3*time.Minute)), queuedEvent(now.Add(-time.Minute)), queuedEvent(now), queuedEvent(now)
	for _, e := range []models.OutboxEvent{newer, oldest, published, exhausted} {
		require.NoError(t, repo.Insert(conn, e))
	}
	require.NoError(t, repo.MarkPublishedTx(conn, published.ID))
	require.NoError(t, repo.MarkTerminalTx(conn, exhausted.ID, errors.New("gave up"), 5))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, oldest.ID, rows[0].ID)
	assert.Equal(t, newer.ID, rows[1].ID)
}

func TestMarkFailedTruncatesAndCounts(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	event := queuedEvent(time.Now().UTC())
	require.NoError(t, repo.Insert(conn, event))

	require.NoError(t, repo.MarkFailedTx(conn, event.ID, errors.New(strings.Repeat("x", 4096))))
	require.NoError(t, repo.MarkFailedTx(conn, event.ID, errors.New("timeout")))

	var row models.OutboxEvent
	require.NoError(t, conn.First(&row, "id = ?", event.ID).Error)
	assert.Equal(t, 2, row.AttemptCount)
	require.NotNil(t, row.LastError)
	assert.Equal(t, "timeout", *row.LastError)

	assert.ErrorIs(t, repo.MarkFailedTx(nil, event.ID, nil), errNoTx)
}

func TestDLQRepositoryReadsNewestFirst(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()
	now := time.Now().UTC()

	long := strings.Repeat("e", 2*maxStoredErrorLen)
	older := models.OutboxDLQ{EventID: uuid.New(), EventType: enums.EventContributionSettled, AggregateType: enums.AggregateContribution,
		AggregateID: uuid.New(), Payload: []byte(`{}`), ErrorReason: enums.OutboxDLQReasonMaxAttempts, ErrorMessage: &long, FailedAt: now.Add(-48 * time.Hour)}
	recent := models.OutboxDLQ{EventID: uuid.New(), EventType: enums.EventTargetPlacedOnHold, AggregateType: enums.AggregateFundingTarget,
		AggregateID: uuid.New(), Payload: []byte(`{}`), ErrorReason: enums.OutboxDLQReasonNonRetryable, FailedAt: now}
	require.NoError(t, dlq.InsertTx(conn, older))
	require.NoError(t, dlq.InsertTx(conn, recent))

	rows, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, recent.EventID, rows[0].EventID)

	found, err := dlq.FindByEventID(ctx, older.EventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, *found.ErrorMessage, maxStoredErrorLen)

	missing, err := dlq.FindByEventID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	n, err := dlq.CountSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}
