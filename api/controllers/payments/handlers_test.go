package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ticketpay-backend/api/middleware"
	"github.com/angelmondragon/ticketpay-backend/internal/intents"
	internalpayments "github.com/angelmondragon/ticketpay-backend/internal/payments"
	"github.com/angelmondragon/ticketpay-backend/pkg/db/models"
	"github.com/angelmondragon/ticketpay-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

type stubPaymentsService struct {
	prepareFn func(ctx context.Context, input intents.PrepareInput) (*models.PaymentIntent, error)
	confirmFn func(ctx context.Context, input internalpayments.ConfirmInput) (*internalpayments.ConfirmResult, error)
	cancelFn  func(ctx context.Context, input internalpayments.CancelInput) (*internalpayments.CancelResult, error)
}

func (s *stubPaymentsService) Prepare(ctx context.Context, input intents.PrepareInput) (*models.PaymentIntent, error) {
	if s.prepareFn != nil {
		return s.prepareFn(ctx, input)
	}
	panic("unexpected prepare")
}

func (s *stubPaymentsService) Confirm(ctx context.Context, input internalpayments.ConfirmInput) (*internalpayments.ConfirmResult, error) {
	if s.confirmFn != nil {
		return s.confirmFn(ctx, input)
	}
	panic("unexpected confirm")
}

func (s *stubPaymentsService) Cancel(ctx context.Context, input internalpayments.CancelInput) (*internalpayments.CancelResult, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, input)
	}
	panic("unexpected cancel")
}

func (s *stubPaymentsService) ReconcileIntent(context.Context, string) (*models.PaymentIntent, error) {
	panic("unexpected reconcile")
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "payments-controller-test", Output: io.Discard})
}

func buyerRequest(method, path, body string, buyerID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithUserID(req.Context(), buyerID.String()))
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return payload.Error.Code
}

func TestPrepareCreatesIntentForCaller(t *testing.T) {
	buyerID := uuid.New()
	partyID := uuid.New()
	expires := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	svc := &stubPaymentsService{
		prepareFn: func(ctx context.Context, input intents.PrepareInput) (*models.PaymentIntent, error) {
			if input.ApplicantID != buyerID {
				t.Fatalf("unexpected applicant %s", input.ApplicantID)
			}
			if input.PartyID != partyID || input.FlowType != enums.FlowTypeFull {
				t.Fatalf("unexpected input %+v", input)
			}
			return &models.PaymentIntent{
				ID:             uuid.New(),
				OrderID:        "ORD-1",
				PartyID:        partyID,
				ExpectedAmount: 35000,
				Currency:       "KRW",
				OrderName:      "Jazz night ticket",
				FlowType:       enums.FlowTypeFull,
				ExpiresAt:      expires,
			}, nil
		},
	}

	req := buyerRequest(http.MethodPost, "/payments/prepare", `{"partyId":"`+partyID.String()+`","flowType":"FULL"}`, buyerID)
	resp := httptest.NewRecorder()
	Prepare(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	var body PrepareResponse
	decodeData(t, resp, &body)
	if body.OrderID != "ORD-1" || body.Amount != 35000 || body.OrderName != "Jazz night ticket" {
		t.Fatalf("unexpected body %+v", body)
	}
	if !body.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected expiry %s", body.ExpiresAt)
	}
}

func TestPrepareRejectsUnknownFlow(t *testing.T) {
	svc := &stubPaymentsService{}
	req := buyerRequest(http.MethodPost, "/payments/prepare", `{"partyId":"`+uuid.NewString()+`","flowType":"LAYAWAY"}`, uuid.New())
	resp := httptest.NewRecorder()
	Prepare(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeValidation) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestPrepareRequiresCaller(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/payments/prepare", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	Prepare(&stubPaymentsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func confirmResult(created bool) *internalpayments.ConfirmResult {
	return &internalpayments.ConfirmResult{
		Intent: &models.PaymentIntent{OrderID: "ORD-1", Status: enums.IntentStatusApplicationCreated},
		Application: &models.PartyApplication{
			ID:      uuid.New(),
			OrderID: "ORD-1",
			Amount:  35000,
			Status:  enums.ApplicationStatusApplied,
		},
		Transaction: &models.PaymentTransaction{ID: uuid.New(), OrderID: "ORD-1"},
		Created:     created,
	}
}

func TestConfirmAnswersCreatedThenReplay(t *testing.T) {
	buyerID := uuid.New()
	intentID := uuid.New()
	calls := 0
	svc := &stubPaymentsService{
		confirmFn: func(ctx context.Context, input internalpayments.ConfirmInput) (*internalpayments.ConfirmResult, error) {
			calls++
			if input.BuyerID != buyerID || input.IntentID != intentID || input.Amount != 35000 {
				t.Fatalf("unexpected input %+v", input)
			}
			if input.PaymentKey != "pay_123" || input.Message != "see you there" {
				t.Fatalf("unexpected input %+v", input)
			}
			return confirmResult(calls == 1), nil
		},
	}
	body := `{"paymentKey":"pay_123","orderId":"ORD-1","intentId":"` + intentID.String() + `","amount":35000,"message":"see you there"}`

	first := httptest.NewRecorder()
	Confirm(svc, testLogger())(first, buyerRequest(http.MethodPost, "/payments/confirm", body, buyerID))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", first.Code, first.Body.String())
	}

	replay := httptest.NewRecorder()
	Confirm(svc, testLogger())(replay, buyerRequest(http.MethodPost, "/payments/confirm", body, buyerID))
	if replay.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", replay.Code)
	}
	var resp ConfirmResponse
	decodeData(t, replay, &resp)
	if !resp.Replayed || resp.Application.OrderID != "ORD-1" {
		t.Fatalf("unexpected replay body %+v", resp)
	}
}

func TestConfirmRejectsMissingAmount(t *testing.T) {
	req := buyerRequest(http.MethodPost, "/payments/confirm", `{"paymentKey":"pay_123","orderId":"ORD-1"}`, uuid.New())
	resp := httptest.NewRecorder()
	Confirm(&stubPaymentsService{}, testLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestConfirmSurfacesAmountMismatch(t *testing.T) {
	svc := &stubPaymentsService{
		confirmFn: func(ctx context.Context, input internalpayments.ConfirmInput) (*internalpayments.ConfirmResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeAmountMismatch, "amount does not match intent")
		},
	}
	req := buyerRequest(http.MethodPost, "/payments/confirm", `{"paymentKey":"pay_123","orderId":"ORD-1","amount":1}`, uuid.New())
	resp := httptest.NewRecorder()
	Confirm(svc, testLogger())(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeAmountMismatch) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestCancelReturnsRefundBreakdown(t *testing.T) {
	buyerID := uuid.New()
	svc := &stubPaymentsService{
		cancelFn: func(ctx context.Context, input internalpayments.CancelInput) (*internalpayments.CancelResult, error) {
			if input.BuyerID != buyerID || input.OrderID != "ORD-1" {
				t.Fatalf("unexpected input %+v", input)
			}
			if input.ReasonType != enums.CancelReasonBuyerChangedMind || input.Reason != "schedule clash" {
				t.Fatalf("unexpected reason %+v", input)
			}
			return &internalpayments.CancelResult{
				Intent:       &models.PaymentIntent{OrderID: "ORD-1", Status: enums.IntentStatusApplicationCreated},
				Application:  &models.PartyApplication{Status: enums.ApplicationStatusCanceled},
				RefundAmount: 31500,
				CancelFee:    3500,
				Policy:       enums.RefundPolicyPartialWithFee,
			}, nil
		},
	}
	body := `{"orderId":"ORD-1","reasonType":"BUYER_CHANGED_MIND","reason":"  schedule clash  "}`
	resp := httptest.NewRecorder()
	Cancel(svc, testLogger())(resp, buyerRequest(http.MethodPost, "/payments/cancel", body, buyerID))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var out CancelResponse
	decodeData(t, resp, &out)
	if out.RefundAmount != 31500 || out.CancelFee != 3500 || out.Policy != enums.RefundPolicyPartialWithFee {
		t.Fatalf("unexpected body %+v", out)
	}
	if out.ApplicationStatus == nil || *out.ApplicationStatus != enums.ApplicationStatusCanceled {
		t.Fatalf("expected canceled application, got %+v", out.ApplicationStatus)
	}
}
