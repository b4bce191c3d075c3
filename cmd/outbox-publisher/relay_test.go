package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func TestDrainSendsWholeBatchBeforeAwaitingAcks(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		outboxRow(t, enums.EventOrderCreated, "evt-1", "pending", 0),
		outboxRow(t, enums.EventOrderPaid, "evt-2", "paid", 0),
	}}
	pub := &fakePublisher{}
	pub.results = []*fakeResult{{pub: pub}, {pub: pub}}
	relay := newTestRelay(t, repo, pub, nil)

	claimed, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, []int{2, 2}, pub.sentAtGet)
	assert.Equal(t, []uuid.UUID{repo.events[0].ID, repo.events[1].ID}, repo.published)
}

func TestDrainAttachesRoutingAttributes(t *testing.T) {
	row := outboxRow(t, enums.EventOrderStatusChanged, "evt-status", "shipped", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{}
	pub.results = []*fakeResult{{pub: pub}}
	relay := newTestRelay(t, repo, pub, nil)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)
	attrs := pub.messages[0].Attributes
	assert.Equal(t, "evt-status", attrs["event_id"])
	assert.Equal(t, string(enums.EventOrderStatusChanged), attrs["event_type"])
	assert.Equal(t, row.AggregateID.String(), attrs["aggregate_id"])
	assert.Equal(t, "shipped", attrs["status"])
	assert.Equal(t, []byte(row.Payload), pub.messages[0].Data)
}

func TestDrainRetriesTransientFailureAndKeepsGoing(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		outboxRow(t, enums.EventOrderCreated, "evt-1", "pending", 0),
		outboxRow(t, enums.EventOrderPaid, "evt-2", "paid", 0),
	}}
	pub := &fakePublisher{}
	pub.results = []*fakeResult{{pub: pub, err: errors.New("unavailable")}, {pub: pub}}
	reg := prometheus.NewRegistry()
	relay := newTestRelay(t, repo, pub, nil)
	relay.metrics = metrics.NewOutboxMetrics(reg)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	assert.Empty(t, repo.terminal)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "storefront_outbox_published_total")
	assert.Contains(t, names, "storefront_outbox_publish_failures_total")
}

func TestDrainPinsUnknownEventTypes(t *testing.T) {
	row := outboxRow(t, enums.OutboxEventType("order_teleported"), "evt-unknown", "", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{}
	relay := newTestRelay(t, repo, pub, nil)

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
	assert.Empty(t, pub.messages)
}

func TestDrainPinsAfterMaxAttempts(t *testing.T) {
	row := outboxRow(t, enums.EventOrderCancelled, "evt-last", "cancelled", 1)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	pub := &fakePublisher{}
	pub.results = []*fakeResult{{pub: pub, err: errors.New("unavailable")}}
	relay := newTestRelay(t, repo, pub, &config.OutboxConfig{BatchSize: 1, PollIntervalMS: 100, MaxAttempts: 2})

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
	assert.Empty(t, repo.failed)
	assert.Equal(t, 2, repo.terminalAttempts)
}

func TestDrainWithoutPublisherIsTerminal(t *testing.T) {
	row := outboxRow(t, enums.EventOrderDeleted, "evt-nopub", "", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	relay := newTestRelay(t, repo, nil, nil)
	relay.newPub = func(string) publisher { return nil }

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{row.ID}, repo.terminal)
}

func TestDrainPropagatesBookkeepingErrors(t *testing.T) {
	row := outboxRow(t, enums.EventOrderPaid, "evt-db", "paid", 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}, publishErr: errors.New("db down")}
	pub := &fakePublisher{}
	pub.results = []*fakeResult{{pub: pub}}
	relay := newTestRelay(t, repo, pub, nil)

	_, err := relay.drain(context.Background())
	assert.Error(t, err)
}

func TestRelayCachesPublishersAndStopsThemOnClose(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		outboxRow(t, enums.EventOrderCreated, "evt-1", "pending", 0),
		outboxRow(t, enums.EventOrderPaid, "evt-2", "paid", 0),
	}}
	pub := &fakePublisher{}
	pub.results = []*fakeResult{{pub: pub}, {pub: pub}}
	relay := newTestRelay(t, repo, nil, nil)
	built := 0
	relay.newPub = func(string) publisher {
		built++
		return pub
	}

	_, err := relay.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, built)

	relay.Close()
	assert.True(t, pub.stopped)
	assert.Empty(t, relay.publishers)
}

func TestBackoffDoublesToMaxAndResets(t *testing.T) {
	b := backoff{base: time.Second, max: 5 * time.Second}
	within := func(d, want time.Duration) {
		t.Helper()
		assert.GreaterOrEqual(t, d, want)
		assert.Less(t, d, want+jitterWindow)
	}
	within(b.next(), time.Second)
	within(b.next(), 2*time.Second)
	within(b.next(), 4*time.Second)
	within(b.next(), 5*time.Second)
	within(b.next(), 5*time.Second)
	b.reset()
	within(b.next(), time.Second)
}

func TestNewRelayRequiresDependencies(t *testing.T) {
	_, err := NewRelay(RelayParams{})
	assert.Error(t, err)
	_, err = NewRelay(RelayParams{Config: &config.Config{}, Logger: logger.Nop()})
	assert.Error(t, err)
}

func newTestRelay(t *testing.T, repo outboxRepository, pub *fakePublisher, override *config.OutboxConfig) *Relay {
	t.Helper()
	cfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if override != nil {
		cfg = *override
	}
	registry, err := outbox.NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-topic"})
	require.NoError(t, err)
	relay, err := NewRelay(RelayParams{
		Config:     &config.Config{Outbox: cfg},
		Logger:     logger.New(logger.Options{ServiceName: "outbox-relay-test", Output: io.Discard}),
		DB:         fakeDB{},
		PubSub:     fakePubSub{},
		Repository: repo,
		Registry:   registry,
		PublisherFactory: func(string) publisher {
			if pub == nil {
				return nil
			}
			return pub
		},
	})
	require.NoError(t, err)
	return relay
}

func outboxRow(tb testing.TB, eventType enums.OutboxEventType, eventID, status string, attempts int) models.OutboxEvent {
	tb.Helper()
	orderID := uuid.New()
	data, err := json.Marshal(outbox.OrderEvent{OrderID: orderID, Status: status})
	if err != nil {
		tb.Fatalf("marshal order event: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:       data,
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeRepo struct {
	events           []models.OutboxEvent
	published        []uuid.UUID
	failed           []uuid.UUID
	terminal         []uuid.UUID
	terminalAttempts int
	publishErr       error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	f.terminalAttempts = terminalAttempts
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error { return nil }

func (fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results   []*fakeResult
	messages  []*gcppubsub.Message
	sentAtGet []int
	stopped   bool
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

func (f *fakePublisher) Stop() { f.stopped = true }

type fakeResult struct {
	pub *fakePublisher
	err error
}

func (r *fakeResult) Get(context.Context) (string, error) {
	r.pub.sentAtGet = append(r.pub.sentAtGet, len(r.pub.messages))
	return "server-id", r.err
}
