package payoutgateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

const (
	StatusRequested = "REQUESTED"
	StatusCompleted = "COMPLETED"
)

// Failure codes produced locally rather than by the provider.
const (
	CodeRequestFailed = "PAYOUT_REQUEST_FAILED"
	CodeTimeout       = "PAYOUT_TIMEOUT"
	CodeNoProviderRef = "PAYOUT_NO_PROVIDER_REF"
	CodeBadResponse   = "PAYOUT_BAD_RESPONSE"
)

// Provider pushes seller proceeds to a payout service. IdempotencyKey is stable
// across retries of the same payout so a provider can deduplicate.
type Provider interface {
	Name() string
	RequestPayout(ctx context.Context, req Request) (Result, error)
}

type Request struct {
	IdempotencyKey       string `json:"payoutId"`
	ProviderSellerID     string `json:"sellerId"`
	Amount               int64  `json:"amount"`
	Currency             string `json:"currency"`
	OrderID              string `json:"orderId"`
	PaymentTransactionID string `json:"paymentTransactionId"`
}

type Result struct {
	ProviderRef string `json:"providerRef"`
	Status      string `json:"status"`
}

// Error reports a failed payout request. Transient failures may be retried
// with the same idempotency key.
type Error struct {
	Code      string
	Message   string
	Transient bool
	cause     error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("payout %s failure: %s: %s", kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func transientError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Transient: true, cause: cause}
}

func permanentError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// IsTransient reports whether err may succeed on retry. Errors that are not
// *Error leave the outcome unknown and count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var pErr *Error
	if errors.As(err, &pErr) {
		return pErr.Transient
	}
	return true
}

// CodeOf returns the failure code carried by err.
func CodeOf(err error) string {
	var pErr *Error
	if errors.As(err, &pErr) && pErr.Code != "" {
		return pErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeRequestFailed
}

// New builds the configured provider. The returned close func releases any
// connection the provider holds.
func New(ctx context.Context, cfg config.PayoutConfig, natsCfg config.NATSConfig, logg *logger.Logger) (Provider, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "sim":
		return NewSimulator(), noop, nil
	case "http", "toss":
		p, err := NewHTTPProvider(cfg, logg)
		return p, noop, err
	case "nats":
		p, err := DialNATSProvider(ctx, natsCfg, logg)
		if err != nil {
			return nil, noop, err
		}
		return p, p.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported payout provider %q", cfg.Provider)
	}
}
