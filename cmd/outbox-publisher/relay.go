package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	ackTimeout         = 15 * time.Second
	maxIdleBackoff     = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*outbox.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
	Stop()
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type RelayParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	Metrics          *metrics.OutboxMetrics
	PublisherFactory publisherFactory
}

// Relay drains committed order events from the outbox table into Pub/Sub.
// Each claimed batch is handed to the publisher in full before any ack is
// awaited, so the client library can bundle the messages.
type Relay struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	pubsub      pubSubClient
	registry    registryResolver
	metrics     *metrics.OutboxMetrics
	newPub      publisherFactory
	publishers  map[string]publisher
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	newPub := params.PublisherFactory
	if newPub == nil {
		newPub = func(topic string) publisher {
			return wrapGCPPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	return &Relay{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		pubsub:      params.PubSub,
		registry:    params.Registry,
		metrics:     params.Metrics,
		newPub:      newPub,
		publishers:  make(map[string]publisher),
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		poll:        time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// another, an idle poll waits one interval, and failures back off.
func (r *Relay) Run(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{{"database", r.db.Ping}, {"pubsub", r.pubsub.Ping}}
	for _, c := range checks {
		if err := c.ping(ctx); err != nil {
			r.logg.Error(ctx, c.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", c.name, err)
		}
	}

	wait := backoff{base: r.poll, max: maxIdleBackoff}
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay context canceled")
			return err
		}

		claimed, err := r.drain(ctx)
		if err != nil {
			r.logg.Error(ctx, "outbox relay batch failed", err)
		} else {
			wait.reset()
			if claimed >= r.batchSize {
				continue
			}
		}
		if err := sleepCtx(ctx, wait.next()); err != nil {
			return err
		}
	}
}

// Close stops every cached topic publisher, flushing buffered messages.
func (r *Relay) Close() {
	for topic, pub := range r.publishers {
		pub.Stop()
		delete(r.publishers, topic)
	}
}

type inflight struct {
	event  models.OutboxEvent
	fields map[string]any
	result publishResult
	err    error
}

// drain claims one batch under a row lock, publishes it and records the
// outcome of every row in the same transaction. It returns the number of
// rows claimed; an error means the bookkeeping itself failed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		r.metrics.ObserveBatch(claimed)

		batch := make([]inflight, 0, len(events))
		for _, event := range events {
			batch = append(batch, r.send(ctx, event))
		}

		ackCtx, cancel := context.WithTimeout(ctx, ackTimeout)
		defer cancel()
		for _, item := range batch {
			if item.err == nil {
				_, item.err = item.result.Get(ackCtx)
			}
			if err := r.settle(ctx, tx, item); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// send resolves the row and hands it to its topic publisher without waiting.
func (r *Relay) send(ctx context.Context, event models.OutboxEvent) inflight {
	item := inflight{event: event, fields: logFields(event)}
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		item.err = err
		return item
	}
	topic := resolved.Descriptor.Topic
	item.fields["topic"] = topic
	item.fields["event_id"] = resolved.Envelope.EventID

	pub := r.publisherFor(topic)
	if pub == nil {
		item.err = outbox.NonRetryableError{Err: fmt.Errorf("no publisher for topic %s", topic)}
		return item
	}
	item.result = pub.Publish(ctx, buildMessage(event, resolved.Envelope))
	if item.result == nil {
		item.err = outbox.NonRetryableError{Err: fmt.Errorf("publisher for topic %s returned no result", topic)}
	}
	return item
}

func (r *Relay) publisherFor(topic string) publisher {
	if pub, ok := r.publishers[topic]; ok {
		return pub
	}
	pub := r.newPub(topic)
	if pub != nil {
		r.publishers[topic] = pub
	}
	return pub
}

// settle writes the delivery outcome for one row.
func (r *Relay) settle(ctx context.Context, tx *gorm.DB, item inflight) error {
	eventType := string(item.event.EventType)
	if item.err == nil {
		if err := r.repo.MarkPublishedTx(tx, item.event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", item.event.ID, err)
		}
		r.metrics.IncPublished(eventType)
		r.logg.Info(r.logg.WithFields(ctx, item.fields), "outbox event published")
		return nil
	}

	attempt := item.event.AttemptCount + 1
	item.fields["attempt_count"] = attempt
	logCtx := r.logg.WithField(r.logg.WithFields(ctx, item.fields), "error", item.err.Error())

	var nonRetry outbox.NonRetryableError
	terminal := errors.As(item.err, &nonRetry) || attempt >= r.maxAttempts
	r.metrics.IncFailed(eventType, terminal)
	if !terminal {
		r.logg.Warn(logCtx, "outbox publish failed; will retry")
		if err := r.repo.MarkFailedTx(tx, item.event.ID, item.err); err != nil {
			return fmt.Errorf("mark failed %s: %w", item.event.ID, err)
		}
		return nil
	}

	r.logg.Warn(logCtx, "outbox event abandoned")
	if err := r.repo.MarkTerminalTx(tx, item.event.ID, item.err, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", item.event.ID, err)
	}
	return nil
}

// buildMessage attaches routing attributes so subscribers can filter on the
// event type and the order status without decoding the body.
func buildMessage(event models.OutboxEvent, env outbox.PayloadEnvelope) *gcppubsub.Message {
	attrs := map[string]string{
		"event_id":       env.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"occurred_at":    env.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	var body outbox.OrderEvent
	if len(env.Data) > 0 && json.Unmarshal(env.Data, &body) == nil && body.Status != "" {
		attrs["status"] = body.Status
	}
	return &gcppubsub.Message{Data: event.Payload, Attributes: attrs}
}

func logFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"order_id":      event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

// backoff doubles from base up to max; every delay carries a little jitter so
// several relays do not poll in lockstep.
type backoff struct {
	base, max, cur time.Duration
}

func (b *backoff) reset() { b.cur = 0 }

func (b *backoff) next() time.Duration {
	switch {
	case b.cur <= 0:
		b.cur = b.base
	case b.cur*2 > b.max:
		b.cur = b.max
	default:
		b.cur *= 2
	}
	return b.cur + rand.N(jitterWindow)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func wrapGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return gcpPublisher{p}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}

func (g gcpPublisher) Stop() { g.p.Stop() }
