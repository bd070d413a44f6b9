package ledger

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/dbtest"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/lock"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
)

func newTestService(t *testing.T, cfg config.PaymentConfig) (Service, *gorm.DB) {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "ledger-test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Config: cfg,
		Tx:     client,
		Repo:   NewRepository(conn),
		Locker: lock.NewMemoryLocker(),
		Outbox: outbox.NewService(outbox.NewRepository(conn), logg),
		Logger: logg,
	})
	require.NoError(t, err)
	return svc, conn
}

func confirmedIntent(amount int64) *models.PaymentIntent {
	key := "pk_" + uuid.NewString()
	return &models.PaymentIntent{
		ID:                uuid.New(),
		OrderID:           "ORD-" + uuid.NewString(),
		PartyID:           uuid.New(),
		ApplicantID:       uuid.New(),
		SellerID:          uuid.New(),
		ExpectedAmount:    amount,
		Currency:          "KRW",
		FlowType:          enums.FlowTypeFull,
		Status:            enums.IntentStatusConfirmed,
		GatewayPaymentKey: &key,
	}
}

func record(t *testing.T, svc Service, intent *models.PaymentIntent) *models.PaymentTransaction {
	t.Helper()
	txn, created, err := svc.CreateOnConfirm(context.Background(), CreateInput{
		Intent:        intent,
		ApplicationID: uuid.New(),
		PaymentKey:    *intent.GatewayPaymentKey,
	})
	require.NoError(t, err)
	require.True(t, created)
	return txn
}

func TestQuoteRefund(t *testing.T) {
	rate := decimal.RequireFromString("0.10")
	cases := []struct {
		name   string
		gross  int64
		reason enums.CancelReasonType
		want   RefundQuote
	}{
		{"buyer keeps fee", 35000, enums.CancelReasonBuyerChangedMind, RefundQuote{RefundAmount: 31500, CancelFee: 3500, Policy: enums.RefundPolicyPartialWithFee}},
		{"fee floors", 10005, enums.CancelReasonBuyerChangedMind, RefundQuote{RefundAmount: 9005, CancelFee: 1000, Policy: enums.RefundPolicyPartialWithFee}},
		{"seller cancels", 35000, enums.CancelReasonSellerChangedMind, RefundQuote{RefundAmount: 35000, Policy: enums.RefundPolicyFull}},
		{"event canceled", 35000, enums.CancelReasonEventCanceled, RefundQuote{RefundAmount: 35000, Policy: enums.RefundPolicyFull}},
		{"zero gross", 0, enums.CancelReasonBuyerChangedMind, RefundQuote{Policy: enums.RefundPolicyFull}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, QuoteRefund(tc.gross, tc.reason, rate))
		})
	}
}

func TestParseRate(t *testing.T) {
	rate, err := ParseRate("0.10")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.1")))

	rate, err = ParseRate("")
	require.NoError(t, err)
	assert.True(t, rate.IsZero())

	for _, raw := range []string{"1", "-0.1", "ten"} {
		_, err := ParseRate(raw)
		assert.Error(t, err, raw)
	}
}

func TestCreateOnConfirmIsIdempotent(t *testing.T) {
	svc, conn := newTestService(t, config.PaymentConfig{})
	intent := confirmedIntent(35000)

	txn := record(t, svc, intent)
	assert.Equal(t, int64(35000), txn.GrossAmount)
	assert.Equal(t, int64(35000), txn.NetAmount)
	assert.Equal(t, enums.SettlementStatusPending, txn.SettlementStatus)
	assert.Equal(t, enums.PaymentStatusPaid, txn.PaymentStatus)

	again, created, err := svc.CreateOnConfirm(context.Background(), CreateInput{
		Intent:        intent,
		ApplicationID: uuid.New(),
		PaymentKey:    *intent.GatewayPaymentKey,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, txn.ID, again.ID)

	var count int64
	require.NoError(t, conn.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateOnConfirmConcurrent(t *testing.T) {
	svc, conn := newTestService(t, config.PaymentConfig{})
	intent := confirmedIntent(35000)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txn, _, err := svc.CreateOnConfirm(context.Background(), CreateInput{
				Intent:        intent,
				ApplicationID: uuid.New(),
				PaymentKey:    *intent.GatewayPaymentKey,
			})
			if err == nil {
				ids[i] = txn.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	var count int64
	require.NoError(t, conn.Model(&models.PaymentTransaction{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateOnConfirmAppliesPlatformFee(t *testing.T) {
	svc, _ := newTestService(t, config.PaymentConfig{PlatformFee: "0.05"})
	txn := record(t, svc, confirmedIntent(35000))
	assert.Equal(t, int64(1750), txn.FeeAmount)
	assert.Equal(t, int64(33250), txn.NetAmount)
}

func TestCreateOnConfirmRequiresConfirmedIntent(t *testing.T) {
	svc, _ := newTestService(t, config.PaymentConfig{})
	intent := confirmedIntent(35000)
	intent.Status = enums.IntentStatusPrepared

	_, _, err := svc.CreateOnConfirm(context.Background(), CreateInput{Intent: intent, ApplicationID: uuid.New(), PaymentKey: "pk"})
	assert.Equal(t, ReasonIntentNotConfirmed, pkgerrors.ReasonOf(err))

	_, _, err = svc.CreateOnConfirm(context.Background(), CreateInput{Intent: confirmedIntent(1), PaymentKey: "pk"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRecordCancellationPartialRefund(t *testing.T) {
	svc, conn := newTestService(t, config.PaymentConfig{CancelFeeRate: "0.10"})
	txn := record(t, svc, confirmedIntent(35000))
	quote := svc.QuoteCancellation(txn, enums.CancelReasonBuyerChangedMind)

	updated, err := svc.RecordCancellation(context.Background(), CancellationInput{
		OrderID:      txn.OrderID,
		RefundAmount: quote.RefundAmount,
		Reason:       enums.CancelReasonBuyerChangedMind,
		Memo:         "schedule conflict",
		Policy:       quote.Policy,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(31500), updated.RefundAmount)
	assert.Equal(t, int64(3500), updated.NetAmount)
	assert.Equal(t, updated.GrossAmount-updated.FeeAmount-updated.RefundAmount, updated.NetAmount)
	assert.Equal(t, enums.PaymentStatusPartiallyCanceled, updated.PaymentStatus)
	assert.Equal(t, enums.SettlementStatusPending, updated.SettlementStatus)
	require.NotNil(t, updated.RefundPolicyApplied)
	assert.Equal(t, enums.RefundPolicyPartialWithFee, *updated.RefundPolicyApplied)

	replay, err := svc.RecordCancellation(context.Background(), CancellationInput{
		OrderID:      txn.OrderID,
		RefundAmount: quote.RefundAmount,
		Reason:       enums.CancelReasonBuyerChangedMind,
	})
	require.NoError(t, err)
	assert.Equal(t, updated.NetAmount, replay.NetAmount)

	_, err = svc.RecordCancellation(context.Background(), CancellationInput{
		OrderID:      txn.OrderID,
		RefundAmount: 35000,
		Reason:       enums.CancelReasonOther,
	})
	assert.Equal(t, ReasonAlreadyCanceled, pkgerrors.ReasonOf(err))

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentRefunded).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestRecordCancellationFullRefundSkipsSettlement(t *testing.T) {
	svc, _ := newTestService(t, config.PaymentConfig{PlatformFee: "0.05"})
	txn := record(t, svc, confirmedIntent(35000))

	updated, err := svc.RecordCancellation(context.Background(), CancellationInput{
		OrderID:      txn.OrderID,
		RefundAmount: 35000,
		Reason:       enums.CancelReasonEventCanceled,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.FeeAmount)
	assert.Equal(t, int64(0), updated.NetAmount)
	assert.Equal(t, enums.PaymentStatusCanceled, updated.PaymentStatus)
	assert.Equal(t, enums.SettlementStatusSkipped, updated.SettlementStatus)
	assert.Equal(t, enums.RefundPolicyFull, *updated.RefundPolicyApplied)
}

func TestRecordCancellationAfterSettlementFlagsClawback(t *testing.T) {
	svc, conn := newTestService(t, config.PaymentConfig{})
	txn := record(t, svc, confirmedIntent(35000))
	ctx := context.Background()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.UpdateSettlement(ctx, tx, txn.ID, enums.SettlementStatusRequested); err != nil {
			return err
		}
		_, err := svc.UpdateSettlement(ctx, tx, txn.ID, enums.SettlementStatusCompleted)
		return err
	}))

	updated, err := svc.RecordCancellation(ctx, CancellationInput{
		OrderID:      txn.OrderID,
		RefundAmount: 35000,
		Reason:       enums.CancelReasonEventCanceled,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementStatusRefundedAfterSettlement, updated.SettlementStatus)
}

func TestRecordCancellationValidatesAmount(t *testing.T) {
	svc, _ := newTestService(t, config.PaymentConfig{})
	txn := record(t, svc, confirmedIntent(35000))

	_, err := svc.RecordCancellation(context.Background(), CancellationInput{
		OrderID:      txn.OrderID,
		RefundAmount: 40000,
		Reason:       enums.CancelReasonOther,
	})
	assert.Equal(t, ReasonInvalidRefund, pkgerrors.ReasonOf(err))

	_, err = svc.RecordCancellation(context.Background(), CancellationInput{OrderID: "missing", Reason: enums.CancelReasonOther})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateSettlementRejectsIllegalTransition(t *testing.T) {
	svc, conn := newTestService(t, config.PaymentConfig{})
	txn := record(t, svc, confirmedIntent(35000))

	err := conn.Transaction(func(tx *gorm.DB) error {
		_, err := svc.UpdateSettlement(context.Background(), tx, txn.ID, enums.SettlementStatusCompleted)
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestListAwaitingSettlement(t *testing.T) {
	svc, conn := newTestService(t, config.PaymentConfig{})
	pending := record(t, svc, confirmedIntent(35000))
	paidOut := record(t, svc, confirmedIntent(20000))
	require.NoError(t, conn.Create(&models.PayoutTransaction{
		ID:                   uuid.New(),
		PaymentTransactionID: paidOut.ID,
		SellerID:             paidOut.SellerUserID,
		RequestedAmount:      paidOut.NetAmount,
		Status:               enums.PayoutStatusRequested,
	}).Error)

	rows, err := svc.ListAwaitingSettlement(context.Background(), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pending.ID, rows[0].ID)

	rows, err = svc.ListAwaitingSettlement(context.Background(), time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
