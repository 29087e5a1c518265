package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fundledger-backend/pkg/config"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox/payloads"
)

const (
	reconTopic  = "reconciliation-topic"
	notifyTopic = "notification-topic"
)

func newTestRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{ReconciliationTopic: reconTopic, NotificationTopic: notifyTopic})
	require.NoError(t, err)
	return reg
}

func envelopeFor(t *testing.T, version int, data any) json.RawMessage {
	t.Helper()
	raw, ok := data.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(data)
		require.NoError(t, err)
	}
	out, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return out
}

func TestResolveDecodesTargetStatusChange(t *testing.T) {
	targetID := uuid.New()
	resolved, err := newTestRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.EventTargetStatusChanged,
		AggregateType: enums.AggregateFundingTarget,
		AggregateID:   targetID,
		Payload: envelopeFor(t, 1, payloads.TargetStatusChangedEvent{
			TargetID:          targetID,
			Kind:              enums.TargetKindInvestmentOpportunity,
			FromStatus:        enums.TargetStatusActive,
			ToStatus:          enums.TargetStatusFunded,
			RaisedAmountCents: 10000,
			TargetAmountCents: 10000,
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, notifyTopic, resolved.Descriptor.Topic)
	payload, ok := resolved.Payload.(*payloads.TargetStatusChangedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, targetID, payload.TargetID)
	assert.Equal(t, enums.TargetStatusFunded, payload.ToStatus)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestResolveRoutesContributionEventsToReconciliationTopic(t *testing.T) {
	resolved, err := newTestRegistry(t).Resolve(models.OutboxEvent{
		EventType:     enums.EventContributionSettled,
		AggregateType: enums.AggregateContribution,
		AggregateID:   uuid.New(),
		Payload: envelopeFor(t, 1, payloads.ContributionSettledEvent{
			ContributionID: uuid.New(),
			Status:         enums.ContributionStatusCompleted,
			AmountCents:    2500,
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, reconTopic, resolved.Descriptor.Topic)
	assert.IsType(t, &payloads.ContributionSettledEvent{}, resolved.Payload)
}

func TestResolveRejectsUnpublishableRows(t *testing.T) {
	tests := []struct {
		name  string
		event models.OutboxEvent
	}{
		{"unknown event type", models.OutboxEvent{
			EventType: "refund_issued", AggregateType: enums.AggregateContribution, AggregateID: uuid.New(),
			Payload: envelopeFor(t, 1, []byte(`{"reason":"none"}`)),
		}},
		{"aggregate mismatch", models.OutboxEvent{
			EventType: enums.EventContributionSettled, AggregateType: enums.AggregateFundingTarget, AggregateID: uuid.New(),
			Payload: envelopeFor(t, 1, []byte(`{}`)),
		}},
		{"missing aggregate id", models.OutboxEvent{
			EventType: enums.EventTargetPlacedOnHold, AggregateType: enums.AggregateFundingTarget,
			Payload: envelopeFor(t, 1, []byte(`{}`)),
		}},
		{"null payload", models.OutboxEvent{
			EventType: enums.EventContributionInitiated, AggregateType: enums.AggregateContribution, AggregateID: uuid.New(),
			Payload: envelopeFor(t, 1, []byte("null")),
		}},
		{"future envelope", models.OutboxEvent{
			EventType: enums.EventContributionInitiated, AggregateType: enums.AggregateContribution, AggregateID: uuid.New(),
			Payload: envelopeFor(t, outbox.EnvelopeVersion+1, []byte(`{}`)),
		}},
		{"corrupt envelope", models.OutboxEvent{
			EventType: enums.EventContributionInitiated, AggregateType: enums.AggregateContribution, AggregateID: uuid.New(),
			Payload: json.RawMessage(`{"version":`),
		}},
	}
	reg := newTestRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Resolve(tt.event)
			var nonRetry NonRetryableError
			assert.ErrorAs(t, err, &nonRetry)
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{NotificationTopic: "n"})
	assert.EqualError(t, err, "reconciliation topic is required")

	_, err = NewEventRegistry(config.PubSubConfig{ReconciliationTopic: "r"})
	assert.EqualError(t, err, "notification topic is required")
}
