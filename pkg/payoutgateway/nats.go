package payoutgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/angelmondragon/ticketpay-backend/pkg/config"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

// Requester is the request/reply slice of *nats.Conn.
type Requester interface {
	RequestWithContext(ctx context.Context, subject string, data []byte) (*nats.Msg, error)
}

// NATSProvider sends payout requests to a settlement service over NATS
// request/reply.
type NATSProvider struct {
	conn    Requester
	closer  func()
	subject string
	timeout time.Duration
	logger  *logger.Logger
}

type natsReply struct {
	ProviderRef string `json:"providerRef"`
	Status      string `json:"status"`
	Error       *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Transient bool   `json:"transient"`
	} `json:"error,omitempty"`
}

func DialNATSProvider(ctx context.Context, cfg config.NATSConfig, logg *logger.Logger) (*NATSProvider, error) {
	opts := []nats.Option{
		nats.Name("ticketpay-payouts"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if logg != nil && err != nil {
				logg.Warn(ctx, fmt.Sprintf("nats disconnected: %v", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			if logg != nil {
				logg.Info(ctx, "nats reconnected "+c.ConnectedUrl())
			}
		}),
	}
	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	if logg != nil {
		logg.Info(ctx, "nats payout provider connected "+conn.ConnectedUrl())
	}
	p := NewNATSProvider(conn, cfg, logg)
	p.closer = conn.Close
	return p, nil
}

func NewNATSProvider(conn Requester, cfg config.NATSConfig, logg *logger.Logger) *NATSProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	subject := cfg.PayoutSubject
	if subject == "" {
		subject = "payouts.request"
	}
	return &NATSProvider{conn: conn, subject: subject, timeout: timeout, logger: logg}
}

func (p *NATSProvider) Name() string { return "nats" }

func (p *NATSProvider) Close() {
	if p.closer != nil {
		p.closer()
	}
}

func (p *NATSProvider) RequestPayout(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	data, err := json.Marshal(req)
	if err != nil {
		return Result{}, permanentError(CodeRequestFailed, fmt.Sprintf("encode payout request: %v", err))
	}

	msg, err := p.conn.RequestWithContext(ctx, p.subject, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
			return Result{}, transientError(CodeTimeout, "payout request timed out", err)
		}
		return Result{}, transientError(CodeRequestFailed, "nats request failed", err)
	}

	var reply natsReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return Result{}, transientError(CodeBadResponse, "decode payout reply", err)
	}
	if reply.Error != nil {
		return Result{}, &Error{Code: reply.Error.Code, Message: reply.Error.Message, Transient: reply.Error.Transient}
	}
	if reply.ProviderRef == "" {
		return Result{}, transientError(CodeNoProviderRef, "payout reply carried no reference", nil)
	}
	status := reply.Status
	if status == "" {
		status = StatusCompleted
	}
	return Result{ProviderRef: reply.ProviderRef, Status: status}, nil
}
