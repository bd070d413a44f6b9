package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/pkg/db"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox/payloads"
)

const paymentNotificationConsumer = "payment-notifications"

// Recipients of a notification produced from one event.
const (
	recipientBuyer  = "buyer"
	recipientSeller = "seller"
)

type repository interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type onceRunner interface {
	Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error)
}

type payloadDecoder interface {
	DecodeData(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (interface{}, error)
}

// ConsumerParams wires the payment notification consumer.
type ConsumerParams struct {
	Repo         repository
	Subscription *pubsub.Subscriber
	Idempotency  onceRunner
	Decoder      payloadDecoder
	Logger       *logger.Logger
}

// Consumer turns payment domain events into in-app notifications for buyers
// and sellers.
type Consumer struct {
	repo         repository
	subscription *pubsub.Subscriber
	idempotency  onceRunner
	decoder      payloadDecoder
	logg         *logger.Logger
}

// NewConsumer builds a payment notification consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency guard required")
	}
	if params.Decoder == nil {
		return nil, fmt.Errorf("event registry required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         params.Repo,
		subscription: params.Subscription,
		idempotency:  params.Idempotency,
		decoder:      params.Decoder,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.Handle(ctx, msg.ID, msg.Attributes["event_type"], msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// Handle processes one delivery and reports whether it should be acked.
// Malformed messages are acked so they do not redeliver forever.
func (c *Consumer) Handle(ctx context.Context, messageID, rawEventType string, data []byte) bool {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": rawEventType,
	})

	eventType, err := enums.ParseOutboxEventType(rawEventType)
	if err != nil {
		c.logg.Info(logCtx, "skipping unknown event")
		return true
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return true
	}
	payload, err := c.decoder.DecodeData(eventType, envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return true
	}

	notes := build(payload)
	if len(notes) == 0 {
		return true
	}
	ran, err := c.idempotency.Once(ctx, paymentNotificationConsumer, eventID, func(ctx context.Context) error {
		for i := range notes {
			notes[i].EventID = envelope.EventID
			if err := c.repo.Create(ctx, &notes[i]); err != nil && !db.IsUniqueViolation(err, "") {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		return false
	}
	if !ran {
		c.logg.Info(logCtx, "event already processed")
		return true
	}
	c.logg.Info(c.logg.WithField(logCtx, "notifications", len(notes)), "payment notifications created")
	return true
}

func build(payload interface{}) []models.Notification {
	switch p := payload.(type) {
	case *payloads.PaymentConfirmedEvent:
		return []models.Notification{
			note(p.BuyerID, recipientBuyer, enums.NotificationTypePaymentConfirmed, "Ticket purchased",
				fmt.Sprintf("Your payment of %s for order %s is confirmed.", money(p.Amount, p.Currency), p.OrderID),
				"/orders/"+p.OrderID),
			note(p.SellerID, recipientSeller, enums.NotificationTypePaymentConfirmed, "New ticket sale",
				fmt.Sprintf("Order %s was paid: %s.", p.OrderID, money(p.Amount, p.Currency)),
				"/parties/"+p.PartyID.String()+"/applications"),
		}
	case *payloads.PaymentCanceledEvent:
		return []models.Notification{
			note(p.BuyerID, recipientBuyer, enums.NotificationTypePaymentCanceled, "Payment canceled",
				fmt.Sprintf("Order %s was canceled.", p.OrderID), "/orders/"+p.OrderID),
		}
	case *payloads.PaymentCompensatedEvent:
		message := fmt.Sprintf("We could not complete order %s.", p.OrderID)
		if p.Status == enums.IntentStatusCanceled {
			message = fmt.Sprintf("We could not complete order %s and reversed the charge of %d.", p.OrderID, p.Amount)
		}
		return []models.Notification{
			note(p.BuyerID, recipientBuyer, enums.NotificationTypePaymentCanceled, "Payment reversed", message, "/orders/"+p.OrderID),
		}
	case *payloads.PaymentRefundedEvent:
		buyerMsg := fmt.Sprintf("Order %s was refunded in full: %d.", p.OrderID, p.RefundAmount)
		if p.CancelFee > 0 {
			buyerMsg = fmt.Sprintf("Order %s was refunded %d after a cancellation fee of %d.", p.OrderID, p.RefundAmount, p.CancelFee)
		}
		return []models.Notification{
			note(p.BuyerID, recipientBuyer, enums.NotificationTypePaymentRefunded, "Refund issued", buyerMsg, "/orders/"+p.OrderID),
			note(p.SellerID, recipientSeller, enums.NotificationTypePaymentRefunded, "Ticket sale canceled",
				fmt.Sprintf("Order %s was canceled by %s.", p.OrderID, p.Reason), ""),
		}
	case *payloads.IntentExpiredEvent:
		return []models.Notification{
			note(p.BuyerID, recipientBuyer, enums.NotificationTypeIntentExpired, "Checkout expired",
				fmt.Sprintf("Checkout for order %s expired before payment completed.", p.OrderID),
				"/parties/"+p.PartyID.String()),
		}
	case *payloads.PayoutCompletedEvent:
		return []models.Notification{
			note(p.SellerID, recipientSeller, enums.NotificationTypePayoutCompleted, "Payout sent",
				fmt.Sprintf("%s is on its way to your account.", money(p.Amount, p.Currency)), "/payouts/"+p.PayoutID.String()),
		}
	case *payloads.PayoutFailedEvent:
		return []models.Notification{
			note(p.SellerID, recipientSeller, enums.NotificationTypePayoutAlert, "Payout delayed",
				fmt.Sprintf("We could not send your payout of %d. Our team has been alerted.", p.Amount), "/payouts/"+p.PayoutID.String()),
		}
	}
	return nil
}

func note(userID uuid.UUID, recipient string, kind enums.NotificationType, title, message, link string) models.Notification {
	n := models.Notification{
		UserID:    userID,
		Recipient: recipient,
		Type:      kind,
		Title:     title,
		Message:   message,
	}
	if link != "" {
		n.Link = &link
	}
	return n
}

func money(amount int64, currency string) string {
	if currency == "" {
		return fmt.Sprintf("%d", amount)
	}
	return fmt.Sprintf("%d %s", amount, currency)
}
