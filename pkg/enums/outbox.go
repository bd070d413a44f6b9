package enums

import "slices"

// OutboxAggregateType identifies the row an outbox event describes.
type OutboxAggregateType string

const (
	AggregatePaymentIntent      OutboxAggregateType = "payment_intent"
	AggregatePaymentTransaction OutboxAggregateType = "payment_transaction"
	AggregatePayoutTransaction  OutboxAggregateType = "payout_transaction"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePaymentIntent,
	AggregatePaymentTransaction,
	AggregatePayoutTransaction,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType names a domain event relayed through the outbox.
type OutboxEventType string

const (
	EventPaymentConfirmed   OutboxEventType = "payment_confirmed"
	EventPaymentCanceled    OutboxEventType = "payment_canceled"
	EventPaymentCompensated OutboxEventType = "payment_compensated"
	EventPaymentRefunded    OutboxEventType = "payment_refunded"
	EventIntentExpired      OutboxEventType = "intent_expired"
	EventPayoutCompleted    OutboxEventType = "payout_completed"
	EventPayoutFailed       OutboxEventType = "payout_failed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPaymentConfirmed,
	EventPaymentCanceled,
	EventPaymentCompensated,
	EventPaymentRefunded,
	EventIntentExpired,
	EventPayoutCompleted,
	EventPayoutFailed,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, value, "event type")
}
