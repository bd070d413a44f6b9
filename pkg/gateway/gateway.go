package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

// Payment states reported by providers, normalized.
const (
	StatusDone            = "DONE"
	StatusCanceled        = "CANCELED"
	StatusPartialCanceled = "PARTIAL_CANCELED"
	StatusAborted         = "ABORTED"
	StatusPending         = "PENDING"
)

// Provider rejection codes the saga reacts to.
const (
	CodeNotFound        = "NOT_FOUND_PAYMENT"
	CodeAlreadyCanceled = "ALREADY_CANCELED_PAYMENT"
)

// Client confirms and cancels charges at the payment provider. Implementations
// never retry; callers own the retry policy.
type Client interface {
	Confirm(ctx context.Context, req ConfirmRequest) (Result, error)
	Cancel(ctx context.Context, req CancelRequest) (CancelResult, error)
	Get(ctx context.Context, paymentKey string) (Result, error)
}

type ConfirmRequest struct {
	PaymentKey string
	OrderID    string
	Amount     int64
	Currency   string
}

type Result struct {
	PaymentKey string
	OrderID    string
	Status     string
	Amount     int64
	Method     string
	ApprovedAt *time.Time
}

// CancelRequest cancels Amount, or the whole remaining balance when Amount is zero.
type CancelRequest struct {
	PaymentKey     string
	Reason         string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

type CancelResult struct {
	PaymentKey     string
	Status         string
	CanceledAmount int64
}

// Kind classifies provider failures.
type Kind string

const (
	KindTimeout     Kind = "GATEWAY_TIMEOUT"
	KindRejected    Kind = "GATEWAY_REJECTED"
	KindUnavailable Kind = "GATEWAY_UNAVAILABLE"
)

// Error is the only error type returned by Client implementations.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func timeoutError(op string, cause error) *Error {
	return &Error{Kind: KindTimeout, Message: op + " timed out", cause: cause}
}

func unavailableError(op string, status int, code, message string, cause error) *Error {
	if message == "" {
		message = op + " failed"
	}
	return &Error{Kind: KindUnavailable, Code: code, Message: message, Status: status, cause: cause}
}

func rejectedError(status int, code, message string) *Error {
	return &Error{Kind: KindRejected, Code: code, Message: message, Status: status}
}

func asError(err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return nil
}

func IsTimeout(err error) bool {
	gwErr := asError(err)
	return gwErr != nil && gwErr.Kind == KindTimeout
}

func IsRejected(err error) bool {
	gwErr := asError(err)
	return gwErr != nil && gwErr.Kind == KindRejected
}

func IsUnavailable(err error) bool {
	gwErr := asError(err)
	return gwErr != nil && gwErr.Kind == KindUnavailable
}

// IsTransient reports whether the charge outcome is unknown and may be retried.
func IsTransient(err error) bool {
	return IsTimeout(err) || IsUnavailable(err)
}

// IsNotFound reports a rejection meaning the provider holds no such payment.
func IsNotFound(err error) bool {
	gwErr := asError(err)
	return gwErr != nil && gwErr.Kind == KindRejected && (gwErr.Code == CodeNotFound || gwErr.Status == 404)
}

func IsAlreadyCanceled(err error) bool {
	gwErr := asError(err)
	return gwErr != nil && gwErr.Code == CodeAlreadyCanceled
}

// ToDomain maps a gateway failure onto the API error taxonomy.
func ToDomain(err error, op string) error {
	if err == nil {
		return nil
	}
	gwErr := asError(err)
	if gwErr == nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" failed")
	}
	switch gwErr.Kind {
	case KindTimeout:
		return pkgerrors.Wrap(pkgerrors.CodeGatewayTimeout, err, op+" timed out")
	case KindRejected:
		return pkgerrors.Wrap(pkgerrors.CodePaymentRejected, err, op+" rejected").
			WithDetails(map[string]any{"provider_code": gwErr.Code, "provider_message": gwErr.Message})
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op+" unavailable").
			WithDetails(map[string]any{"provider_code": gwErr.Code})
	}
}

// New builds the configured provider client.
func New(ctx context.Context, cfg config.GatewayConfig, sq config.SquareConfig, logg *logger.Logger) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "toss":
		return NewTossClient(cfg, logg)
	case "square":
		return NewSquareClient(ctx, cfg, sq, logg)
	case "sim":
		return NewSimulator(), nil
	default:
		return nil, fmt.Errorf("unsupported gateway provider %q", cfg.Provider)
	}
}

// logCall writes one structured entry per provider call phase.
func logCall(ctx context.Context, logg *logger.Logger, provider, phase, op string, fields map[string]any) {
	if logg == nil {
		return
	}
	logFields := map[string]any{
		"provider":  provider,
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = logg.WithFields(ctx, logFields)
	switch phase {
	case "error":
		logg.Error(ctx, fmt.Sprintf("%s %s", provider, op), errors.New(fmt.Sprint(fields["error"])))
	default:
		logg.Info(ctx, fmt.Sprintf("%s %s", provider, phase))
	}
}
