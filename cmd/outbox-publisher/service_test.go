package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/fundledger-backend/pkg/config"
	"github.com/angelmondragon/fundledger-backend/pkg/db/models"
	"github.com/angelmondragon/fundledger-backend/pkg/enums"
	"github.com/angelmondragon/fundledger-backend/pkg/logger"
	"github.com/angelmondragon/fundledger-backend/pkg/metrics"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fundledger-backend/pkg/outbox/registry"
)

const (
	reconciliationTopic = "fl-reconciliation-events"
	notificationTopic   = "fl-notification-events"
)

func TestProcessBatchRoutesLedgerEventsByTopic(t *testing.T) {
	targetID := uuid.New()
	settled := outboxRow(t, enums.EventContributionSettled, enums.AggregateContribution, payloads.ContributionSettledEvent{
		ContributionID:    uuid.New(),
		TargetID:          &targetID,
		Provider:          enums.PaymentProviderStripe,
		ProviderReference: "pi_1",
		Status:            enums.ContributionStatusCompleted,
		AmountCents:       2500,
		Currency:          enums.CurrencyUSD,
	})
	held := outboxRow(t, enums.EventTargetPlacedOnHold, enums.AggregateFundingTarget, payloads.TargetPlacedOnHoldEvent{
		TargetID:          targetID,
		Reason:            "sum_below_cached",
		CachedRaisedCents: 9000,
		ComputedSumCents:  2500,
		DetectedAt:        time.Now().UTC(),
	})
	repo := &fakeRepo{events: []models.OutboxEvent{settled, held}}
	eventRegistry, err := registry.NewEventRegistry(config.PubSubConfig{
		ReconciliationTopic: reconciliationTopic,
		NotificationTopic:   notificationTopic,
	})
	require.NoError(t, err)

	pubs := map[string]*fakePublisher{
		reconciliationTopic: {results: []publishResult{fakePublishResult{}}},
		notificationTopic:   {results: []publishResult{fakePublishResult{}}},
	}
	service := newTestService(t, repo, nil, eventRegistry, &fakeDLQRepo{}, nil)
	service.publisherFactory = func(topic string) publisher {
		pub, ok := pubs[topic]
		require.True(t, ok, "unexpected topic %q", topic)
		return pub
	}

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{settled.ID, held.ID}, repo.published)

	require.Len(t, pubs[reconciliationTopic].sent, 1)
	msg := pubs[reconciliationTopic].sent[0]
	assert.Equal(t, string(enums.EventContributionSettled), msg.Attributes["event_type"])
	assert.Equal(t, settled.AggregateID.String(), msg.Attributes["aggregate_id"])
	require.Len(t, pubs[notificationTopic].sent, 1)
	assert.Equal(t, string(enums.EventTargetPlacedOnHold), pubs[notificationTopic].sent[0].Attributes["event_type"])
}

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			{ID: uuid.New(), EventType: enums.EventContributionInitiated, AggregateType: enums.AggregateContribution, AggregateID: uuid.New(), Payload: envelopePayload(t, json.RawMessage(`{}`))},
			{ID: uuid.New(), EventType: enums.EventContributionInitiated, AggregateType: enums.AggregateContribution, AggregateID: uuid.New(), Payload: envelopePayload(t, json.RawMessage(`{}`))},
		},
	}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: reconciliationTopic},
		Payload:    &payloads.ContributionInitiatedEvent{},
	}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolved}, &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
}

func TestProcessBatchDeadLettersUnknownEventType(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.OutboxEventType("order_created"),
		AggregateType: enums.AggregateContribution,
		AggregateID:   uuid.New(),
		Payload:       envelopePayload(t, json.RawMessage(`{}`)),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	eventRegistry, err := registry.NewEventRegistry(config.PubSubConfig{
		ReconciliationTopic: reconciliationTopic,
		NotificationTopic:   notificationTopic,
	})
	require.NoError(t, err)
	dlq := &fakeDLQRepo{}
	service := newTestService(t, repo, &fakePublisher{}, eventRegistry, dlq, nil)

	_, err = service.processBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	assert.JSONEq(t, string(event.Payload), string(entry.Payload))
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventTargetStatusChanged,
		AggregateType: enums.AggregateFundingTarget,
		AggregateID:   uuid.New(),
		Payload:       envelopePayload(t, json.RawMessage(`{}`)),
		AttemptCount:  1,
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("deadline exceeded")}}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: notificationTopic},
		Payload:    &payloads.TargetStatusChangedEvent{},
	}
	dlq := &fakeDLQRepo{}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: resolved}, dlq, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})
	reg := prometheus.NewRegistry()
	service.metrics = metrics.NewOutboxMetrics(reg)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq.entries[0].ErrorReason)
	require.NotNil(t, dlq.entries[0].ErrorMessage)
	assert.Contains(t, *dlq.entries[0].ErrorMessage, "deadline exceeded")
	assert.Empty(t, repo.failed)
	assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(mfs, "fundledger_outbox_dead_letters_total", "reason", "max_attempts"))
	assert.Equal(t, 1.0, counterValue(mfs, "fundledger_outbox_deliveries_total", "outcome", "dead_lettered"))
}

func TestProcessBatchReportsIdleWhenNothingClaimed(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{}, &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestProcessBatchDeadLettersWhenTopicHasNoPublisher(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		{ID: uuid.New(), EventType: enums.EventContributionInitiated, AggregateType: enums.AggregateContribution, AggregateID: uuid.New(), Payload: envelopePayload(t, json.RawMessage(`{}`))},
	}}
	resolved := &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{Topic: reconciliationTopic},
		Payload:    &payloads.ContributionInitiatedEvent{},
	}
	dlq := &fakeDLQRepo{}
	service := newTestService(t, repo, nil, &fakeRegistry{resolved: resolved}, dlq, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, dlq.entries[0].ErrorReason)
	assert.Empty(t, repo.published)
}

func counterValue(mfs []*dto.MetricFamily, name, label, value string) float64 {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestNextBackoffCaps(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(500*time.Millisecond, 500*time.Millisecond, 10*time.Second))
	assert.Equal(t, 10*time.Second, nextBackoff(8*time.Second, time.Second, 10*time.Second))
	assert.Equal(t, 2*time.Second, nextBackoff(0, time.Second, 10*time.Second))
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, resolver registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         resolver,
		PublisherFactory: func(string) publisher { return pub },
		DLQRepository:    dlq,
	})
	require.NoError(t, err)
	return service
}

func envelopePayload(tb testing.TB, data json.RawMessage) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(tb, err)
	return payload
}

func outboxRow(tb testing.TB, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, data any) models.OutboxEvent {
	tb.Helper()
	raw, err := json.Marshal(data)
	require.NoError(tb, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   uuid.New(),
		Payload:       envelopePayload(tb, raw),
		CreatedAt:     time.Now().UTC(),
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error { return nil }

func (f *fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	mu      sync.Mutex
	results []publishResult
	sent    []*gcppubsub.Message
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.EventType = event.EventType
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	resolved.Envelope.OccurredAt = time.Now()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
