package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox/payloads"
)

// MaxSchemaVersion is the newest envelope version this build can decode.
const MaxSchemaVersion = 1

// EventDescriptor ties an event type to its aggregate, topic and payload type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is a validated outbox row with its decoded payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks rows that will never publish no matter how often
// they are retried. The relay dead-letters them right away.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

// EventRegistry knows every payment event the outbox may carry.
type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

func event[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		newPayload:    func() any { return new(T) },
	}
}

// NewEventRegistry routes every event to the domain topic. Subscribers filter
// on the event_type attribute.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	descriptors := []EventDescriptor{
		event[payloads.PaymentConfirmedEvent](enums.EventPaymentConfirmed, enums.AggregatePaymentIntent),
		event[payloads.PaymentCanceledEvent](enums.EventPaymentCanceled, enums.AggregatePaymentIntent),
		event[payloads.PaymentCompensatedEvent](enums.EventPaymentCompensated, enums.AggregatePaymentIntent),
		event[payloads.IntentExpiredEvent](enums.EventIntentExpired, enums.AggregatePaymentIntent),
		event[payloads.PaymentRefundedEvent](enums.EventPaymentRefunded, enums.AggregatePaymentTransaction),
		event[payloads.PayoutCompletedEvent](enums.EventPayoutCompleted, enums.AggregatePayoutTransaction),
		event[payloads.PayoutFailedEvent](enums.EventPayoutFailed, enums.AggregatePayoutTransaction),
	}
	reg := &EventRegistry{byType: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, d := range descriptors {
		d.Topic = cfg.DomainTopic
		reg.byType[d.EventType] = d
	}
	return reg, nil
}

// Resolve validates an outbox row and decodes its payload. Every failure is
// a NonRetryableError.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[row.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", row.EventType)
	case desc.AggregateType != row.AggregateType:
		return nil, nonRetryable("aggregate mismatch for %s: expected %s got %s", row.EventType, desc.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, nonRetryable("missing aggregate_id on %s", row.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	payload, err := r.decode(desc, envelope)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

// DecodeData decodes a received envelope into the payload type registered for
// eventType.
func (r *EventRegistry) DecodeData(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (any, error) {
	desc, ok := r.byType[eventType]
	if !ok {
		return nil, fmt.Errorf("unsupported event type %s", eventType)
	}
	return r.decode(desc, envelope)
}

func (r *EventRegistry) decode(desc EventDescriptor, envelope outbox.PayloadEnvelope) (any, error) {
	if envelope.Version > MaxSchemaVersion {
		return nil, fmt.Errorf("%s schema version %d is newer than %d", desc.EventType, envelope.Version, MaxSchemaVersion)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("payload missing for %s", desc.EventType)
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", desc.EventType, err)
	}
	return payload, nil
}
