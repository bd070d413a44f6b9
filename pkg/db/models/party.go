package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

// Party is a shared event-ticket listing hosted by a seller.
type Party struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	HostUserID  uuid.UUID         `gorm:"column:host_user_id;type:uuid;not null"`
	Title       string            `gorm:"column:title;not null"`
	Mode        enums.PartyMode   `gorm:"column:mode;type:text;not null"`
	Status      enums.PartyStatus `gorm:"column:status;type:text;not null"`
	TicketPrice int64             `gorm:"column:ticket_price;not null;default:0"`
	Price       int64             `gorm:"column:price;not null;default:0"`
	EventAt     *time.Time        `gorm:"column:event_at"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
