package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// Notification stores an in-app notification for a single user.
// EventID ties the row to the outbox event that produced it.
type Notification struct {
	ID        uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index" json:"userId"`
	EventID   string                 `gorm:"column:event_id;not null;uniqueIndex:uq_notifications_event_user,priority:1" json:"-"`
	Recipient string                 `gorm:"column:recipient;not null;uniqueIndex:uq_notifications_event_user,priority:2" json:"recipient"`
	Type      enums.NotificationType `gorm:"column:type;type:text;not null" json:"type"`
	Title     string                 `gorm:"column:title;not null" json:"title"`
	Message   string                 `gorm:"column:message;not null" json:"message"`
	Link      *string                `gorm:"column:link" json:"link,omitempty"`
	ReadAt    *time.Time             `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt time.Time              `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
