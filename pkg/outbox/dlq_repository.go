package outbox

import (
	"context"
	"unicode/utf8"

	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DLQ error text is capped so a stack-trace sized failure cannot bloat the row.
const maxDLQErrorLen = 1024

// DLQRepository stores outbox events that exhausted their publish attempts.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx writes entry inside tx so the outbox row and its dead letter move
// together.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errNoTx
	}
	if entry.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		entry.ID = id
	}
	if entry.ErrorMessage != nil {
		clipped := clipUTF8(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil when the event never reached the DLQ.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var rows []models.OutboxDLQ
	if err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// List pages dead letters newest failure first.
func (r *DLQRepository) List(ctx context.Context, cursor *pagination.Cursor, limit int) (pagination.Page[models.OutboxDLQ], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var rows []models.OutboxDLQ
	query := pagination.Keyset(r.db.WithContext(ctx).Model(&models.OutboxDLQ{}), "failed_at", cursor, limit)
	if err := query.Find(&rows).Error; err != nil {
		return pagination.Page[models.OutboxDLQ]{}, err
	}
	return pagination.Trim(rows, limit, func(row models.OutboxDLQ) pagination.Cursor {
		return pagination.Cursor{At: row.FailedAt, ID: row.ID}
	}), nil
}

// clipUTF8 cuts s to at most limit bytes without splitting a rune.
func clipUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
