package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

const squareProvider = "square"

var errAccessTokenRequired = errors.New("square access token is required")

// squareBaseURL maps the configured environment to its API host. An empty
// value selects the sandbox.
func squareBaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "sandbox":
		return "https://connect.squareupsandbox.com", nil
	case "production":
		return "https://connect.squareup.com", nil
	default:
		return "", fmt.Errorf("unknown square environment %q", env)
	}
}

// SquareClient captures delayed-capture Square payments. The client authorizes a
// payment with autocomplete disabled; Confirm completes it by payment id.
type SquareClient struct {
	sdk     *sqclient.Client
	timeout time.Duration
	logger  *logger.Logger
}

func NewSquareClient(ctx context.Context, gw config.GatewayConfig, cfg config.SquareConfig, logg *logger.Logger) (*SquareClient, error) {
	baseURL, err := squareBaseURL(cfg.Environment())
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(token),
	)
	if logg != nil {
		logg.Info(ctx, "square gateway initialized")
	}
	timeout := gw.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &SquareClient{sdk: sdk, timeout: timeout, logger: logg}, nil
}

// bounded applies the per-call deadline the SDK itself does not set.
func (c *SquareClient) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *SquareClient) Confirm(ctx context.Context, req ConfirmRequest) (Result, error) {
	logCall(ctx, c.logger, squareProvider, "request", "complete_payment", map[string]any{"order_id": req.OrderID, "amount": req.Amount})

	callCtx, cancel := c.bounded(ctx)
	defer cancel()
	resp, err := c.sdk.Payments.Complete(callCtx, &sq.CompletePaymentRequest{PaymentID: req.PaymentKey})
	if err != nil {
		logCall(ctx, c.logger, squareProvider, "error", "complete_payment", map[string]any{"error": err.Error()})
		return Result{}, mapSquareError(err, "complete payment")
	}

	result := squarePaymentResult(resp.GetPayment())
	logCall(ctx, c.logger, squareProvider, "response", "complete_payment", map[string]any{
		"payment_id": result.PaymentKey,
		"status":     result.Status,
		"amount":     result.Amount,
	})
	return result, nil
}

func (c *SquareClient) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	amount := req.Amount
	if amount <= 0 {
		current, err := c.Get(ctx, req.PaymentKey)
		if err != nil {
			return CancelResult{}, err
		}
		amount = current.Amount
	}
	idempotencyKey := req.IdempotencyKey
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = "refund-" + uuid.NewString()
	}

	refundReq := &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		AmountMoney:    squareMoney(amount, req.Currency),
		PaymentID:      optional(req.PaymentKey),
		Reason:         optional(req.Reason),
	}
	logCall(ctx, c.logger, squareProvider, "request", "refund_payment", map[string]any{"payment_id": req.PaymentKey, "amount": amount})

	callCtx, cancel := c.bounded(ctx)
	defer cancel()
	resp, err := c.sdk.Refunds.RefundPayment(callCtx, refundReq)
	if err != nil {
		logCall(ctx, c.logger, squareProvider, "error", "refund_payment", map[string]any{"error": err.Error()})
		return CancelResult{}, mapSquareError(err, "refund payment")
	}

	refund := resp.GetRefund()
	status := StatusCanceled
	if refund != nil && strings.EqualFold(deref(refund.GetStatus()), "FAILED") {
		return CancelResult{}, rejectedError(http.StatusConflict, "REFUND_FAILED", "square refund failed")
	}
	logCall(ctx, c.logger, squareProvider, "response", "refund_payment", map[string]any{"payment_id": req.PaymentKey, "status": status})
	return CancelResult{PaymentKey: req.PaymentKey, Status: status, CanceledAmount: amount}, nil
}

func (c *SquareClient) Get(ctx context.Context, paymentKey string) (Result, error) {
	callCtx, cancel := c.bounded(ctx)
	defer cancel()
	resp, err := c.sdk.Payments.Get(callCtx, &sq.GetPaymentsRequest{PaymentID: paymentKey})
	if err != nil {
		return Result{}, mapSquareError(err, "get payment")
	}
	return squarePaymentResult(resp.GetPayment()), nil
}

func squarePaymentResult(payment *sq.Payment) Result {
	if payment == nil {
		return Result{}
	}
	result := Result{
		PaymentKey: deref(payment.GetID()),
		OrderID:    deref(payment.GetReferenceID()),
		Status:     normalizeSquareStatus(deref(payment.GetStatus())),
	}
	if money := payment.GetAmountMoney(); money != nil && money.GetAmount() != nil {
		result.Amount = *money.GetAmount()
	}
	return result
}

func normalizeSquareStatus(status string) string {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return StatusDone
	case "CANCELED":
		return StatusCanceled
	case "FAILED":
		return StatusAborted
	default:
		return StatusPending
	}
}

func mapSquareError(err error, op string) error {
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return classifyTransportError(op, err)
	}
	code, message := firstSquareError(apiErr)
	if apiErr.StatusCode == http.StatusNotFound {
		code = CodeNotFound
	}
	return classifyStatus(op, apiErr.StatusCode, code, message)
}

// firstSquareError reads the leading entry of the "errors" array the SDK
// keeps as the wrapped cause of an APIError.
func firstSquareError(apiErr *sqcore.APIError) (code, detail string) {
	cause := apiErr.Unwrap()
	if cause == nil {
		return "", ""
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(cause.Error()), &body) != nil {
		return "", ""
	}
	for _, e := range body.Errors {
		if e != nil {
			return string(e.Code), deref(e.Detail)
		}
	}
	return "", ""
}

func squareMoney(amount int64, currency string) *sq.Money {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = "KRW"
	}
	cur := sq.Currency(code)
	return &sq.Money{Amount: &amount, Currency: &cur}
}

func optional(value string) *string {
	if value = strings.TrimSpace(value); value == "" {
		return nil
	}
	return &value
}

func deref(p *string) string {
	if p != nil {
		return *p
	}
	return ""
}
