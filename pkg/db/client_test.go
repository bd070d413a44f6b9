package db_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/dbtest"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
)

func notification(eventID, recipient string) *models.Notification {
	return &models.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		EventID:   eventID,
		Recipient: recipient,
		Type:      enums.NotificationTypePaymentConfirmed,
		Title:     "Ticket purchased",
		Message:   "Your payment is confirmed.",
	}
}

func countNotifications(t *testing.T, client *db.Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, client.DB().Model(&models.Notification{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsOrRollsBack(t *testing.T) {
	client := dbtest.Client(t)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(notification("evt-1", "buyer")).Error
	}))
	assert.EqualValues(t, 1, countNotifications(t, client))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(notification("evt-2", "buyer")).Error; err != nil {
			return err
		}
		return errors.New("ledger write failed")
	})
	require.EqualError(t, err, "ledger write failed")
	assert.EqualValues(t, 1, countNotifications(t, client))

	assert.Panics(t, func() {
		_ = client.WithTx(ctx, func(tx *gorm.DB) error {
			if err := tx.Create(notification("evt-3", "buyer")).Error; err != nil {
				return err
			}
			panic("gateway adapter crashed")
		})
	})
	assert.EqualValues(t, 1, countNotifications(t, client), "panic must roll back")
}

func TestPingOpenConnection(t *testing.T) {
	require.NoError(t, dbtest.Client(t).Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	client := dbtest.Client(t)
	require.NoError(t, client.DB().Create(notification("evt-dup", "seller")).Error)
	err := client.DB().Create(notification("evt-dup", "seller")).Error

	assert.True(t, db.IsUniqueViolation(err, ""))
	assert.False(t, db.IsUniqueViolation(errors.New("connection refused"), ""))
	assert.False(t, db.IsUniqueViolation(nil, ""))
	// same event for the other party is a separate row
	assert.NoError(t, client.DB().Create(notification("evt-dup", "buyer")).Error)
}

func TestNewValidatesConfig(t *testing.T) {
	cases := map[string]config.DBConfig{
		"missing dsn":    {},
		"unknown driver": {DSN: "x", Driver: "mysql"},
	}
	for name, cfg := range cases {
		_, err := db.New(context.Background(), cfg, nil)
		assert.Error(t, err, name)
	}
}
