package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	internalpayments "github.com/angelmondragon/ticketpay-backend/internal/payments"
	"github.com/angelmondragon/ticketpay-backend/internal/payouts"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
	"github.com/angelmondragon/ticketpay-backend/pkg/pagination"
)

type stubPayoutOperator struct {
	requestFn func(ctx context.Context, txnID uuid.UUID) (*models.PayoutTransaction, error)
	outcomeFn func(ctx context.Context, payoutID uuid.UUID, outcome payouts.Outcome) (*models.PayoutTransaction, error)
}

func (s *stubPayoutOperator) RequestPayout(ctx context.Context, txnID uuid.UUID) (*models.PayoutTransaction, error) {
	return s.requestFn(ctx, txnID)
}

func (s *stubPayoutOperator) RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.PayoutTransaction, error) {
	return &models.PayoutTransaction{ID: payoutID, Status: enums.PayoutStatusRequested}, nil
}

func (s *stubPayoutOperator) ApplyOutcome(ctx context.Context, payoutID uuid.UUID, outcome payouts.Outcome) (*models.PayoutTransaction, error) {
	return s.outcomeFn(ctx, payoutID, outcome)
}

func (s *stubPayoutOperator) Get(ctx context.Context, payoutID uuid.UUID) (*models.PayoutTransaction, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
}

type stubOrderOperator struct {
	cancelFn func(ctx context.Context, input internalpayments.CancelInput) (*internalpayments.CancelResult, error)
}

func (s *stubOrderOperator) Cancel(ctx context.Context, input internalpayments.CancelInput) (*internalpayments.CancelResult, error) {
	return s.cancelFn(ctx, input)
}

func (s *stubOrderOperator) ReconcileIntent(ctx context.Context, orderID string) (*models.PaymentIntent, error) {
	return &models.PaymentIntent{OrderID: orderID, Status: enums.IntentStatusExpired}, nil
}

type stubDLQ struct {
	rows   []models.OutboxDLQ
	limit  int
	cursor *pagination.Cursor
	next   string
}

func (s *stubDLQ) List(ctx context.Context, cursor *pagination.Cursor, limit int) (pagination.Page[models.OutboxDLQ], error) {
	s.limit = limit
	s.cursor = cursor
	return pagination.Page[models.OutboxDLQ]{Items: s.rows, NextCursor: s.next}, nil
}

func addRouteParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(req.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.URLParams.Add(key, value)
	return req
}

func discardLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestAdminForcePayoutReturnsPayout(t *testing.T) {
	txnID := uuid.New()
	svc := &stubPayoutOperator{
		requestFn: func(ctx context.Context, id uuid.UUID) (*models.PayoutTransaction, error) {
			if id != txnID {
				t.Fatalf("unexpected transaction %s", id)
			}
			return &models.PayoutTransaction{ID: uuid.New(), PaymentTransactionID: id, RequestedAmount: 35000, Currency: "KRW", Status: enums.PayoutStatusCompleted}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/settlements/"+txnID.String()+"/payout", nil)
	req = addRouteParam(req, "paymentTransactionId", txnID.String())
	resp := httptest.NewRecorder()
	AdminForcePayout(svc, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data PayoutResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.RequestedAmount != 35000 || envelope.Data.Status != enums.PayoutStatusCompleted {
		t.Fatalf("unexpected payout %+v", envelope.Data)
	}
}

func TestAdminForcePayoutRejectsBadID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/internal/settlements/nope/payout", nil)
	req = addRouteParam(req, "paymentTransactionId", "nope")
	resp := httptest.NewRecorder()
	AdminForcePayout(&stubPayoutOperator{}, discardLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminRoutesWithoutServiceAnswer500(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"payout detail": AdminPayoutDetail(nil, discardLogger()),
		"cancel order":  AdminCancelOrder(nil, discardLogger()),
		"outbox dlq":    AdminOutboxDLQ(nil, discardLogger()),
	}
	for name, h := range handlers {
		resp := httptest.NewRecorder()
		h(resp, httptest.NewRequest(http.MethodGet, "/internal/x", nil))
		if resp.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500 got %d", name, resp.Code)
		}
	}
}

func TestAdminPayoutOutcomeValidatesKind(t *testing.T) {
	payoutID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/internal/payouts/"+payoutID.String()+"/outcome", bytes.NewBufferString(`{"kind":"MAYBE"}`))
	req = addRouteParam(req, "payoutId", payoutID.String())
	resp := httptest.NewRecorder()
	AdminPayoutOutcome(&stubPayoutOperator{}, discardLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminPayoutOutcomePassesProviderVerdict(t *testing.T) {
	payoutID := uuid.New()
	var got payouts.Outcome
	svc := &stubPayoutOperator{
		outcomeFn: func(ctx context.Context, id uuid.UUID, outcome payouts.Outcome) (*models.PayoutTransaction, error) {
			got = outcome
			return &models.PayoutTransaction{ID: id, Status: enums.PayoutStatusFailed}, nil
		},
	}
	body := `{"kind":"PERMANENT","code":"ACCOUNT_CLOSED","message":" closed "}`
	req := httptest.NewRequest(http.MethodPost, "/internal/payouts/"+payoutID.String()+"/outcome", bytes.NewBufferString(body))
	req = addRouteParam(req, "payoutId", payoutID.String())
	resp := httptest.NewRecorder()
	AdminPayoutOutcome(svc, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if got.Kind != payouts.OutcomePermanent || got.Code != "ACCOUNT_CLOSED" || got.Message != "closed" {
		t.Fatalf("unexpected outcome %+v", got)
	}
}

func TestAdminPayoutDetailNotFound(t *testing.T) {
	payoutID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/internal/payouts/"+payoutID.String(), nil)
	req = addRouteParam(req, "payoutId", payoutID.String())
	resp := httptest.NewRecorder()
	AdminPayoutDetail(&stubPayoutOperator{}, discardLogger())(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestAdminCancelOrderSkipsOwnership(t *testing.T) {
	svc := &stubOrderOperator{
		cancelFn: func(ctx context.Context, input internalpayments.CancelInput) (*internalpayments.CancelResult, error) {
			if input.BuyerID != uuid.Nil {
				t.Fatalf("operator cancel should not carry a buyer, got %s", input.BuyerID)
			}
			if input.ReasonType != enums.CancelReasonEventCanceled {
				t.Fatalf("unexpected reason %s", input.ReasonType)
			}
			return &internalpayments.CancelResult{
				Intent:       &models.PaymentIntent{OrderID: input.OrderID, Status: enums.IntentStatusCanceled},
				RefundAmount: 35000,
				Policy:       enums.RefundPolicyFull,
			}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ORD-9/cancel", bytes.NewBufferString(`{"reasonType":"EVENT_CANCELED","reason":"rain"}`))
	req = addRouteParam(req, "orderId", "ORD-9")
	resp := httptest.NewRecorder()
	AdminCancelOrder(svc, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data["refundAmount"] != float64(35000) {
		t.Fatalf("unexpected refund %v", envelope.Data["refundAmount"])
	}
}

func TestAdminReconcileOrder(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/internal/orders/ORD-3/reconcile", nil)
	req = addRouteParam(req, "orderId", "ORD-3")
	resp := httptest.NewRecorder()
	AdminReconcileOrder(&stubOrderOperator{}, discardLogger())(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestAdminOutboxDLQClampsLimit(t *testing.T) {
	repo := &stubDLQ{rows: []models.OutboxDLQ{{EventID: uuid.New(), EventType: enums.EventPayoutFailed, ErrorReason: enums.OutboxDLQReasonMaxAttempts, AttemptCount: 10}}}
	req := httptest.NewRequest(http.MethodGet, "/internal/outbox/dlq", nil)
	resp := httptest.NewRecorder()
	AdminOutboxDLQ(repo, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if repo.limit != defaultDLQLimit {
		t.Fatalf("expected default limit got %d", repo.limit)
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/outbox/dlq?limit=5000", nil)
	resp = httptest.NewRecorder()
	AdminOutboxDLQ(repo, discardLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminOutboxDLQPassesCursor(t *testing.T) {
	at := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	token := pagination.Cursor{At: at, ID: uuid.New()}.Encode()
	repo := &stubDLQ{next: "next-page"}

	req := httptest.NewRequest(http.MethodGet, "/internal/outbox/dlq?cursor="+token, nil)
	resp := httptest.NewRecorder()
	AdminOutboxDLQ(repo, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if repo.cursor == nil || !repo.cursor.At.Equal(at) {
		t.Fatalf("cursor not forwarded: %+v", repo.cursor)
	}
	if !strings.Contains(resp.Body.String(), `"cursor":"next-page"`) {
		t.Fatalf("missing next cursor in %s", resp.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/internal/outbox/dlq?cursor=!!", nil)
	resp = httptest.NewRecorder()
	AdminOutboxDLQ(repo, discardLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
