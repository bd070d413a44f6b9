package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

const (
	tossProvider       = "toss"
	defaultCallTimeout = 15 * time.Second
	maxErrorBody       = 64 << 10
)

var errSecretKeyRequired = errors.New("gateway secret key is required")

// TossClient talks to the Toss Payments v1 REST API.
type TossClient struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	timeout    time.Duration
	logger     *logger.Logger
}

func NewTossClient(cfg config.GatewayConfig, logg *logger.Logger) (*TossClient, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errSecretKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &TossClient{
		httpClient: &http.Client{},
		baseURL:    baseURL,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(secret+":")),
		timeout:    timeout,
		logger:     logg,
	}, nil
}

type tossPayment struct {
	PaymentKey    string `json:"paymentKey"`
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	TotalAmount   int64  `json:"totalAmount"`
	BalanceAmount int64  `json:"balanceAmount"`
	Method        string `json:"method"`
	ApprovedAt    string `json:"approvedAt"`
}

type tossError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *TossClient) Confirm(ctx context.Context, req ConfirmRequest) (Result, error) {
	body := map[string]any{
		"paymentKey": req.PaymentKey,
		"orderId":    req.OrderID,
		"amount":     req.Amount,
	}
	logCall(ctx, c.logger, tossProvider, "request", "confirm", map[string]any{"order_id": req.OrderID, "amount": req.Amount})

	var payment tossPayment
	if err := c.do(ctx, "confirm", http.MethodPost, "/v1/payments/confirm", req.OrderID, body, &payment); err != nil {
		logCall(ctx, c.logger, tossProvider, "error", "confirm", map[string]any{"order_id": req.OrderID, "error": err.Error()})
		return Result{}, err
	}

	result := payment.toResult()
	logCall(ctx, c.logger, tossProvider, "response", "confirm", map[string]any{
		"order_id": result.OrderID,
		"status":   result.Status,
		"amount":   result.Amount,
	})
	return result, nil
}

func (c *TossClient) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	body := map[string]any{"cancelReason": req.Reason}
	if req.Amount > 0 {
		body["cancelAmount"] = req.Amount
	}
	path := "/v1/payments/" + url.PathEscape(req.PaymentKey) + "/cancel"
	logCall(ctx, c.logger, tossProvider, "request", "cancel", map[string]any{"amount": req.Amount, "reason": req.Reason})

	var payment tossPayment
	if err := c.do(ctx, "cancel", http.MethodPost, path, req.IdempotencyKey, body, &payment); err != nil {
		logCall(ctx, c.logger, tossProvider, "error", "cancel", map[string]any{"error": err.Error()})
		return CancelResult{}, err
	}

	result := CancelResult{
		PaymentKey:     payment.PaymentKey,
		Status:         payment.Status,
		CanceledAmount: payment.TotalAmount - payment.BalanceAmount,
	}
	logCall(ctx, c.logger, tossProvider, "response", "cancel", map[string]any{"status": result.Status, "canceled_amount": result.CanceledAmount})
	return result, nil
}

func (c *TossClient) Get(ctx context.Context, paymentKey string) (Result, error) {
	var payment tossPayment
	if err := c.do(ctx, "get", http.MethodGet, "/v1/payments/"+url.PathEscape(paymentKey), "", nil, &payment); err != nil {
		return Result{}, err
	}
	return payment.toResult(), nil
}

func (p tossPayment) toResult() Result {
	result := Result{
		PaymentKey: p.PaymentKey,
		OrderID:    p.OrderID,
		Status:     p.Status,
		Amount:     p.TotalAmount,
		Method:     p.Method,
	}
	if p.ApprovedAt != "" {
		if ts, err := time.Parse(time.RFC3339, p.ApprovedAt); err == nil {
			result.ApprovedAt = &ts
		}
	}
	return result
}

func (c *TossClient) do(ctx context.Context, op, method, path, idempotencyKey string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return unavailableError(op, resp.StatusCode, "", "decode response", err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var apiErr tossError
	_ = json.Unmarshal(raw, &apiErr)
	return classifyStatus(op, resp.StatusCode, apiErr.Code, apiErr.Message)
}

func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutError(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeoutError(op, err)
	}
	return unavailableError(op, 0, "", "", err)
}

func classifyStatus(op string, status int, code, message string) error {
	switch {
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return &Error{Kind: KindTimeout, Code: code, Message: message, Status: status}
	case status == http.StatusTooManyRequests || status >= 500:
		return unavailableError(op, status, code, message, nil)
	default:
		if code == "" && status == http.StatusNotFound {
			code = CodeNotFound
		}
		return rejectedError(status, code, message)
	}
}
