package intents

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/ticketpay-backend/internal/parties"
	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/db"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/dbtest"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/gateway"
	"github.com/angelmondragon/ticketpay-backend/pkg/lock"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/outbox"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	conn  *gorm.DB
	svc   Service
	sim   *gateway.Simulator
	clock *testClock
	party models.Party
	buyer uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()
	logg := logger.New(logger.Options{ServiceName: "intents-test", Output: io.Discard})

	party := models.Party{
		ID:         uuid.New(),
		HostUserID: uuid.New(),
		Title:      "Jazz night",
		Mode:       enums.PartyModeSelling,
		Status:     enums.PartyStatusOpen,
		Price:      35000,
	}
	require.NoError(t, conn.Create(&party).Error)

	listings, err := parties.NewService(parties.NewRepository(conn))
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	sim := gateway.NewSimulator()
	svc, err := NewService(ServiceParams{
		Config: config.PaymentConfig{
			IntentTTL:     30 * time.Minute,
			GraceWindow:   10 * time.Minute,
			DepositAmount: 10000,
			Currency:      "KRW",
		},
		Tx:       client,
		Repo:     NewRepository(conn),
		Listings: listings,
		Gateway:  sim,
		Locker:   lock.NewMemoryLocker(),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:   logg,
		Now:      clock.Now,
	})
	require.NoError(t, err)

	return &fixture{conn: conn, svc: svc, sim: sim, clock: clock, party: party, buyer: uuid.New()}
}

func (f *fixture) prepare(t *testing.T) *models.PaymentIntent {
	t.Helper()
	intent, err := f.svc.Prepare(context.Background(), PrepareInput{
		PartyID:     f.party.ID,
		ApplicantID: f.buyer,
		FlowType:    enums.FlowTypeFull,
	})
	require.NoError(t, err)
	return intent
}

func (f *fixture) reload(t *testing.T, orderID string) *models.PaymentIntent {
	t.Helper()
	intent, err := f.svc.Get(context.Background(), orderID)
	require.NoError(t, err)
	return intent
}

func (f *fixture) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

var _ txRunner = (*db.Client)(nil)

func TestPrepareSnapshotsListing(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)

	assert.Equal(t, int64(35000), intent.ExpectedAmount)
	assert.Equal(t, "KRW", intent.Currency)
	assert.Equal(t, "Jazz night ticket", intent.OrderName)
	assert.Equal(t, f.party.HostUserID, intent.SellerID)
	assert.Equal(t, enums.IntentStatusPrepared, intent.Status)
	assert.Equal(t, "CARD", intent.PaymentType)
	assert.Contains(t, intent.OrderID, "ORD-")
	assert.True(t, intent.ExpiresAt.Equal(f.clock.Now().Add(30*time.Minute)))
}

func TestPrepareRejectsSelfPurchase(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Prepare(context.Background(), PrepareInput{
		PartyID:     f.party.ID,
		ApplicantID: f.party.HostUserID,
		FlowType:    enums.FlowTypeFull,
	})
	assert.Equal(t, ReasonSelfPurchase, pkgerrors.ReasonOf(err))
}

func TestConfirmChargesExpectedAmountOnce(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	ctx := context.Background()

	confirmed, err := f.svc.ConfirmWithGateway(ctx, ConfirmInput{
		OrderID:     intent.OrderID,
		PaymentKey:  "pk_live_1",
		Amount:      35000,
		ApplicantID: f.buyer,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.GatewayPaymentKey)
	assert.Equal(t, "pk_live_1", *confirmed.GatewayPaymentKey)
	require.NotNil(t, confirmed.ConfirmedAt)

	replay, err := f.svc.ConfirmWithGateway(ctx, ConfirmInput{OrderID: intent.OrderID, PaymentKey: "pk_live_1", Amount: 35000})
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusConfirmed, replay.Status)
	assert.Equal(t, 1, f.sim.ConfirmCalls)

	_, err = f.svc.ConfirmWithGateway(ctx, ConfirmInput{OrderID: intent.OrderID, PaymentKey: "pk_other", Amount: 35000})
	assert.Equal(t, ReasonPaymentKeyMismatch, pkgerrors.ReasonOf(err))
	assert.Equal(t, 1, f.sim.ConfirmCalls)
}

func TestConfirmConcurrentRequestsHitGatewayOnce(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.ConfirmWithGateway(context.Background(), ConfirmInput{
				OrderID:    intent.OrderID,
				PaymentKey: "pk_live_1",
				Amount:     35000,
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.sim.ConfirmCalls)
	assert.Equal(t, enums.IntentStatusConfirmed, f.reload(t, intent.OrderID).Status)
}

func TestConfirmClientAmountMismatchAbortsIntent(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)

	_, err := f.svc.ConfirmWithGateway(context.Background(), ConfirmInput{
		OrderID:    intent.OrderID,
		PaymentKey: "pk_live_1",
		Amount:     30000,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountMismatch))
	assert.Equal(t, 0, f.sim.ConfirmCalls)
	assert.Equal(t, 1, f.sim.CancelCalls)

	current := f.reload(t, intent.OrderID)
	assert.Equal(t, enums.IntentStatusCanceled, current.Status)
	assert.Nil(t, current.GatewayPaymentKey)
}

func TestConfirmProviderAmountMismatchCompensates(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	f.sim.ConfirmHook = func(req gateway.ConfirmRequest) (gateway.Result, error) {
		return gateway.Result{PaymentKey: req.PaymentKey, OrderID: req.OrderID, Status: gateway.StatusDone, Amount: 30000}, nil
	}

	_, err := f.svc.ConfirmWithGateway(context.Background(), ConfirmInput{
		OrderID:    intent.OrderID,
		PaymentKey: "pk_live_1",
		Amount:     35000,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountMismatch))
	assert.Equal(t, 1, f.sim.CancelCalls)

	current := f.reload(t, intent.OrderID)
	assert.Equal(t, enums.IntentStatusCanceled, current.Status)
	require.NotNil(t, current.FailureCode)
	assert.Equal(t, ReasonAmountMismatch, *current.FailureCode)
	assert.Equal(t, int64(1), f.events(t, enums.EventPaymentCompensated))
}

func TestConfirmRejectedStaysPrepared(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	ctx := context.Background()

	_, err := f.svc.ConfirmWithGateway(ctx, ConfirmInput{OrderID: intent.OrderID, PaymentKey: "reject_card"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePaymentRejected))

	current := f.reload(t, intent.OrderID)
	assert.Equal(t, enums.IntentStatusPrepared, current.Status)
	require.NotNil(t, current.FailureCode)
	assert.Equal(t, "REJECT_CARD_PAYMENT", *current.FailureCode)
	assert.Nil(t, current.AttemptedKey)

	confirmed, err := f.svc.ConfirmWithGateway(ctx, ConfirmInput{OrderID: intent.OrderID, PaymentKey: "pk_retry"})
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusConfirmed, confirmed.Status)
	assert.Nil(t, confirmed.FailureCode)
}

func TestConfirmDetectsPriceChange(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	require.NoError(t, f.conn.Model(&models.Party{}).Where("id = ?", f.party.ID).Update("price", 40000).Error)

	_, err := f.svc.ConfirmWithGateway(context.Background(), ConfirmInput{OrderID: intent.OrderID, PaymentKey: "pk_live_1"})
	assert.Equal(t, ReasonPriceChanged, pkgerrors.ReasonOf(err))
	assert.Equal(t, 0, f.sim.ConfirmCalls)
}

func TestConfirmAfterExpiryExpiresIntent(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	f.clock.Advance(31 * time.Minute)

	_, err := f.svc.ConfirmWithGateway(context.Background(), ConfirmInput{OrderID: intent.OrderID, PaymentKey: "pk_live_1"})
	assert.Equal(t, ReasonIntentExpired, pkgerrors.ReasonOf(err))
	assert.Equal(t, 0, f.sim.ConfirmCalls)
	assert.Equal(t, enums.IntentStatusExpired, f.reload(t, intent.OrderID).Status)
	assert.Equal(t, int64(1), f.events(t, enums.EventIntentExpired))
}

func TestConfirmRejectsOtherApplicant(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)

	_, err := f.svc.ConfirmWithGateway(context.Background(), ConfirmInput{
		OrderID:     intent.OrderID,
		PaymentKey:  "pk_live_1",
		ApplicantID: uuid.New(),
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
}

func TestMarkApplicationCreatedEmitsOnce(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	ctx := context.Background()
	_, err := f.svc.ConfirmWithGateway(ctx, ConfirmInput{OrderID: intent.OrderID, PaymentKey: "pk_live_1"})
	require.NoError(t, err)

	input := CompletedInput{OrderID: intent.OrderID, ApplicationID: uuid.New(), PaymentTransactionID: uuid.New()}
	done, err := f.svc.MarkApplicationCreated(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusApplicationCreated, done.Status)

	_, err = f.svc.MarkApplicationCreated(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.events(t, enums.EventPaymentConfirmed))

	// A finished purchase is never compensated.
	after, err := f.svc.CompensateAfterFailure(ctx, intent.OrderID, "late failure")
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusApplicationCreated, after.Status)
	assert.Equal(t, 0, f.sim.CancelCalls)
}

func TestBuyerCompensationRejectsCompletedPurchase(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	ctx := context.Background()
	_, err := f.svc.ConfirmWithGateway(ctx, ConfirmInput{OrderID: intent.OrderID, PaymentKey: "pk_live_1"})
	require.NoError(t, err)
	_, err = f.svc.MarkApplicationCreated(ctx, CompletedInput{OrderID: intent.OrderID, ApplicationID: uuid.New(), PaymentTransactionID: uuid.New()})
	require.NoError(t, err)

	// RequestCancel read CONFIRMED before the purchase finished.
	_, err = f.svc.(*service).compensate(ctx, intent.OrderID, compensation{
		code:          string(enums.CancelReasonBuyerChangedMind),
		message:       "changed my mind",
		userInitiated: true,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, ReasonAlreadyTerminal, pkgerrors.ReasonOf(err))
	assert.Equal(t, enums.IntentStatusApplicationCreated, f.reload(t, intent.OrderID).Status)
	assert.Equal(t, 0, f.sim.CancelCalls)
}

func TestRequestCancelWithoutChargeSkipsGateway(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)

	canceled, err := f.svc.RequestCancel(context.Background(), intent.OrderID, f.buyer, "")
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusCanceled, canceled.Status)
	assert.NotNil(t, canceled.CanceledAt)
	assert.Equal(t, 0, f.sim.CancelCalls)
	assert.Equal(t, int64(1), f.events(t, enums.EventPaymentCanceled))
}

func TestRequestCancelConfirmedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	ctx := context.Background()
	_, err := f.svc.ConfirmWithGateway(ctx, ConfirmInput{OrderID: intent.OrderID, PaymentKey: "pk_live_1"})
	require.NoError(t, err)

	_, err = f.svc.RequestCancel(ctx, intent.OrderID, uuid.New(), "not mine")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	canceled, err := f.svc.RequestCancel(ctx, intent.OrderID, f.buyer, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusCanceled, canceled.Status)

	again, err := f.svc.RequestCancel(ctx, intent.OrderID, f.buyer, "changed my mind")
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusCanceled, again.Status)
	assert.Equal(t, 1, f.sim.CancelCalls)

	res, err := f.sim.Get(ctx, "pk_live_1")
	require.NoError(t, err)
	assert.Equal(t, gateway.StatusCanceled, res.Status)
}

func TestCompensationRetriesTransientCancelOnce(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	ctx := context.Background()
	_, err := f.svc.ConfirmWithGateway(ctx, ConfirmInput{OrderID: intent.OrderID, PaymentKey: "pk_live_1"})
	require.NoError(t, err)

	f.sim.CancelHook = func(gateway.CancelRequest) (gateway.CancelResult, error) {
		return gateway.CancelResult{}, &gateway.Error{Kind: gateway.KindTimeout, Message: "deadline"}
	}
	_, err = f.svc.CompensateAfterFailure(ctx, intent.OrderID, "application insert failed")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayTimeout))
	assert.Equal(t, enums.IntentStatusCancelRequested, f.reload(t, intent.OrderID).Status)

	_, err = f.svc.RequestCancel(ctx, intent.OrderID, f.buyer, "")
	assert.Equal(t, ReasonCancelInProgress, pkgerrors.ReasonOf(err))

	final, err := f.svc.ReconcilePrepared(ctx, intent.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusCancelFailed, final.Status)
	assert.Equal(t, 2, f.sim.CancelCalls)
}

func TestReconcileExpiresAbandonedIntent(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	ctx := context.Background()

	f.clock.Advance(41 * time.Minute)
	stale, err := f.svc.ListStale(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, intent.OrderID, stale[0].OrderID)

	expired, err := f.svc.ReconcilePrepared(ctx, intent.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusExpired, expired.Status)
	assert.Equal(t, int64(1), f.events(t, enums.EventIntentExpired))

	stale, err = f.svc.ListStale(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestDeferredIntentQueuesBehindNewerStaleRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.prepare(t)
	second := f.prepare(t)
	for i, orderID := range []string{first.OrderID, second.OrderID} {
		touched := f.clock.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, f.conn.Model(&models.PaymentIntent{}).
			Where("order_id = ?", orderID).
			UpdateColumn("updated_at", touched).Error)
	}
	f.clock.Advance(41 * time.Minute)

	stale, err := f.svc.ListStale(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, first.OrderID, stale[0].OrderID)

	// The gateway lookup for first failed transiently this tick.
	require.NoError(t, f.svc.Defer(ctx, first.OrderID))

	stale, err = f.svc.ListStale(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, second.OrderID, stale[0].OrderID)

	stale, err = f.svc.ListStale(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, []string{second.OrderID, first.OrderID}, []string{stale[0].OrderID, stale[1].OrderID})
}

func TestReconcileCompensatesChargeBehindTimeout(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	ctx := context.Background()

	_, err := f.svc.ConfirmWithGateway(ctx, ConfirmInput{OrderID: intent.OrderID, PaymentKey: "timeout_pk"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGatewayTimeout))
	current := f.reload(t, intent.OrderID)
	assert.Equal(t, enums.IntentStatusPrepared, current.Status)
	require.NotNil(t, current.AttemptedKey)

	// The provider charged the card even though the response never arrived.
	f.sim.Seed(gateway.Result{PaymentKey: "timeout_pk", OrderID: intent.OrderID, Status: gateway.StatusDone, Amount: 35000})
	f.clock.Advance(41 * time.Minute)

	result, err := f.svc.ReconcilePrepared(ctx, intent.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusCanceled, result.Status)
	assert.Equal(t, 1, f.sim.CancelCalls)
	assert.Equal(t, int64(1), f.events(t, enums.EventPaymentCompensated))
	assert.Equal(t, int64(0), f.events(t, enums.EventIntentExpired))
}

func TestReconcileLeavesConfirmedIntentsAlone(t *testing.T) {
	f := newFixture(t)
	intent := f.prepare(t)
	ctx := context.Background()
	_, err := f.svc.ConfirmWithGateway(ctx, ConfirmInput{OrderID: intent.OrderID, PaymentKey: "pk_live_1"})
	require.NoError(t, err)

	result, err := f.svc.ReconcilePrepared(ctx, intent.OrderID)
	require.NoError(t, err)
	assert.Equal(t, enums.IntentStatusConfirmed, result.Status)
	assert.Equal(t, 0, f.sim.CancelCalls)
}
