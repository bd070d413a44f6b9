package enums

import "slices"

// NotificationType maps to the notification_type column.
type NotificationType string

const (
	NotificationTypePaymentConfirmed NotificationType = "payment_confirmed"
	NotificationTypePaymentCanceled  NotificationType = "payment_canceled"
	NotificationTypePaymentRefunded  NotificationType = "payment_refunded"
	NotificationTypePayoutCompleted  NotificationType = "payout_completed"
	NotificationTypePayoutAlert      NotificationType = "payout_alert"
	NotificationTypeIntentExpired    NotificationType = "intent_expired"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePaymentConfirmed,
	NotificationTypePaymentCanceled,
	NotificationTypePaymentRefunded,
	NotificationTypePayoutCompleted,
	NotificationTypePayoutAlert,
	NotificationTypeIntentExpired,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, n)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse(validNotificationTypes, value, "notification type")
}
