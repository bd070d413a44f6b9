// Package relay moves committed outbox rows onto Pub/Sub. Each batch runs in
// one transaction: rows are claimed, published, and marked before commit, so a
// crash mid-batch only causes redelivery, never loss.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/metrics"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Repository is the outbox table surface used by the relay.
type Repository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

// DLQ stores rows the relay gave up on.
type DLQ interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

// Resolver validates a row and decodes its payload.
type Resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(context.Context, *gcppubsub.Message) PublishResult
}

// PublishResult resolves to the server-assigned message id.
type PublishResult interface {
	Get(context.Context) (string, error)
}

// PublisherFactory returns the publisher for a topic, or nil when the topic
// is not configured.
type PublisherFactory func(topic string) Publisher

// Params wires a Relay.
type Params struct {
	DB          txRunner
	Repository  Repository
	DLQ         DLQ
	Resolver    Resolver
	Publishers  PublisherFactory
	Metrics     *metrics.OutboxMetrics
	Logger      *logger.Logger
	BatchSize   int
	MaxAttempts int
}

// Relay publishes pending outbox rows in batches.
type Relay struct {
	db          txRunner
	repo        Repository
	dlq         DLQ
	resolver    Resolver
	publishers  PublisherFactory
	metrics     *metrics.OutboxMetrics
	logg        *logger.Logger
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

// New validates params and applies batch defaults.
func New(params Params) (*Relay, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.DLQ == nil {
		return nil, errors.New("dlq repository is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("event registry is required")
	}
	if params.Publishers == nil {
		return nil, errors.New("publisher factory is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Relay{
		db:          params.DB,
		repo:        params.Repository,
		dlq:         params.DLQ,
		resolver:    params.Resolver,
		publishers:  params.Publishers,
		metrics:     params.Metrics,
		logg:        params.Logger,
		batchSize:   batch,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

// Drain relays one batch and reports how many rows it handled. A row that
// fails to publish does not stop the rest of the batch.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	started := r.now()
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.repo.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return err
		}
		for _, event := range events {
			if err := r.relayOne(ctx, tx, event); err != nil {
				return err
			}
			handled++
		}
		return nil
	})
	if handled > 0 {
		r.metrics.ObserveBatch(r.now().Sub(started))
	}
	return handled, err
}

// relayOne only returns bookkeeping errors; publish failures are recorded on
// the row.
func (r *Relay) relayOne(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := r.resolver.Resolve(event)
	if err != nil {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, nil)
	}

	fields := eventFields(event, resolved)
	pubErr := r.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := r.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.metrics.Published(string(event.EventType))
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr, fields)
	}

	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= r.maxAttempts {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", pubErr), fields)
	}

	logCtx := r.logg.WithField(r.logg.WithFields(ctx, fields), "error", pubErr.Error())
	r.logg.Warn(logCtx, "outbox publish failed")
	if err := r.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	r.metrics.Failed(string(event.EventType))
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	if fields == nil {
		fields = eventFields(event, nil)
	}
	fields["error_reason"] = reason
	logCtx := r.logg.WithField(r.logg.WithFields(ctx, fields), "error", cause.Error())
	r.logg.Warn(logCtx, "outbox event moved to dlq")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.repo.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	r.metrics.DeadLettered(string(event.EventType), string(reason))
	return nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	pending := pub.Publish(ctx, message(event, resolved.Envelope))
	if pending == nil {
		return registry.NewNonRetryableError(fmt.Errorf("topic %s: publish returned no result", topic))
	}
	_, err := pending.Get(ctx)
	return err
}

// message gives every event of one aggregate the same ordering key so an
// order's events arrive in sequence.
func message(event models.OutboxEvent, envelope outbox.PayloadEnvelope) *gcppubsub.Message {
	aggregate := event.AggregateID.String()
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: string(event.AggregateType) + ":" + aggregate,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   aggregate,
			"schema_version": strconv.Itoa(envelope.Version),
			"occurred_at":    envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func eventFields(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate":     string(event.AggregateType) + ":" + event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	}
	if resolved != nil {
		fields["event_id"], fields["topic"] = resolved.Envelope.EventID, resolved.Descriptor.Topic
	}
	if last := event.LastError; last != nil {
		fields["last_error"] = *last
	}
	return fields
}

// GCPPublishers adapts Pub/Sub publishers looked up by topic name.
func GCPPublishers(lookup func(topic string) *gcppubsub.Publisher) PublisherFactory {
	return func(topic string) Publisher {
		p := lookup(topic)
		if p == nil {
			return nil
		}
		return gcpPublisher{p}
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) PublishResult {
	return gcpResult{res: g.p.Publish(ctx, msg), p: g.p, key: msg.OrderingKey}
}

// gcpResult resumes a paused ordering key after a failed publish so the next
// batch can retry it.
type gcpResult struct {
	res *gcppubsub.PublishResult
	p   *gcppubsub.Publisher
	key string
}

func (r gcpResult) Get(ctx context.Context) (string, error) {
	id, err := r.res.Get(ctx)
	if err != nil && r.key != "" {
		r.p.ResumePublish(r.key)
	}
	return id, err
}
