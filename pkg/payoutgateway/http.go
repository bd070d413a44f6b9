package payoutgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

const (
	defaultRequestPath = "/v2/payouts"
	defaultHTTPTimeout = 15 * time.Second
	securityModeNone   = "NONE"
)

// HTTPProvider calls a Toss-style payout REST endpoint.
type HTTPProvider struct {
	httpClient   *http.Client
	url          string
	secret       string
	securityMode string
	timeout      time.Duration
	logger       *logger.Logger
}

func NewHTTPProvider(cfg config.PayoutConfig, logg *logger.Logger) (*HTTPProvider, error) {
	secret := strings.TrimSpace(cfg.SecretKey)
	if secret == "" {
		return nil, errors.New("payout secret key is required")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("payout base url is required")
	}
	mode := strings.ToUpper(strings.TrimSpace(cfg.SecurityMode))
	if mode == "" {
		mode = securityModeNone
	}
	if mode != securityModeNone {
		return nil, fmt.Errorf("payout security mode %q is not supported", mode)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPProvider{
		httpClient:   &http.Client{},
		url:          base + defaultRequestPath,
		secret:       secret,
		securityMode: mode,
		timeout:      timeout,
		logger:       logg,
	}, nil
}

func (p *HTTPProvider) Name() string { return "http" }

func (p *HTTPProvider) RequestPayout(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, permanentError(CodeRequestFailed, fmt.Sprintf("encode payout request: %v", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, permanentError(CodeRequestFailed, fmt.Sprintf("build payout request: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("TossPayments-Api-Secret", p.secret)
	httpReq.Header.Set("TossPayments-api-security-mode", p.securityMode)
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return Result{}, transientError(CodeTimeout, "payout request timed out", err)
		}
		return Result{}, transientError(CodeRequestFailed, "payout request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, classifyHTTPFailure(resp.StatusCode, raw)
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return Result{}, transientError(CodeBadResponse, "decode payout response", err)
	}
	ref := extractProviderRef(body)
	if ref == "" {
		return Result{}, transientError(CodeNoProviderRef, "payout response carried no reference", nil)
	}
	status := StatusCompleted
	if s, ok := body["status"].(string); ok && s != "" {
		status = strings.ToUpper(s)
	}
	return Result{ProviderRef: ref, Status: status}, nil
}

func classifyHTTPFailure(status int, raw []byte) error {
	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(raw, &apiErr)
	code := apiErr.Code
	if code == "" {
		code = CodeRequestFailed
	}
	message := apiErr.Message
	if message == "" {
		message = fmt.Sprintf("payout provider returned %d", status)
	}
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
		return transientError(code, message, nil)
	}
	return permanentError(code, message)
}

func extractProviderRef(body map[string]any) string {
	for _, key := range []string{"payoutId", "id", "payoutKey", "providerRef"} {
		if v, ok := body[key]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
