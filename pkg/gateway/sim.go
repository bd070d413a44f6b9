package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Payment keys with these prefixes make the simulator fail on confirm.
const (
	SimRejectPrefix  = "reject_"
	SimTimeoutPrefix = "timeout_"
)

type simPayment struct {
	result  Result
	balance int64
}

// Simulator is an in-memory provider for local runs and tests. Confirming a key
// twice returns the first result.
type Simulator struct {
	mu       sync.Mutex
	payments map[string]*simPayment
	now      func() time.Time

	// ConfirmHook and CancelHook override the default behavior when set.
	ConfirmHook func(ConfirmRequest) (Result, error)
	CancelHook  func(CancelRequest) (CancelResult, error)

	ConfirmCalls int
	CancelCalls  int
}

func NewSimulator() *Simulator {
	return &Simulator{
		payments: map[string]*simPayment{},
		now:      time.Now,
	}
}

func (s *Simulator) Confirm(ctx context.Context, req ConfirmRequest) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, timeoutError("confirm", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ConfirmCalls++

	if s.ConfirmHook != nil {
		result, err := s.ConfirmHook(req)
		if err == nil {
			s.store(result)
		}
		return result, err
	}

	switch {
	case strings.HasPrefix(req.PaymentKey, SimRejectPrefix):
		return Result{}, rejectedError(http.StatusBadRequest, "REJECT_CARD_PAYMENT", "card declined")
	case strings.HasPrefix(req.PaymentKey, SimTimeoutPrefix):
		return Result{}, timeoutError("confirm", context.DeadlineExceeded)
	}

	if existing, ok := s.payments[req.PaymentKey]; ok {
		return existing.result, nil
	}
	approved := s.now().UTC()
	result := Result{
		PaymentKey: req.PaymentKey,
		OrderID:    req.OrderID,
		Status:     StatusDone,
		Amount:     req.Amount,
		Method:     "CARD",
		ApprovedAt: &approved,
	}
	s.store(result)
	return result, nil
}

func (s *Simulator) Cancel(ctx context.Context, req CancelRequest) (CancelResult, error) {
	if err := ctx.Err(); err != nil {
		return CancelResult{}, timeoutError("cancel", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CancelCalls++

	if s.CancelHook != nil {
		return s.CancelHook(req)
	}

	payment, ok := s.payments[req.PaymentKey]
	if !ok {
		return CancelResult{}, rejectedError(http.StatusNotFound, CodeNotFound, "payment not found")
	}
	if payment.balance == 0 {
		return CancelResult{}, rejectedError(http.StatusBadRequest, CodeAlreadyCanceled, "payment already canceled")
	}
	amount := req.Amount
	if amount <= 0 || amount > payment.balance {
		amount = payment.balance
	}
	payment.balance -= amount
	if payment.balance == 0 {
		payment.result.Status = StatusCanceled
	} else {
		payment.result.Status = StatusPartialCanceled
	}
	return CancelResult{
		PaymentKey:     req.PaymentKey,
		Status:         payment.result.Status,
		CanceledAmount: payment.result.Amount - payment.balance,
	}, nil
}

func (s *Simulator) Get(ctx context.Context, paymentKey string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, timeoutError("get", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[paymentKey]
	if !ok {
		return Result{}, rejectedError(http.StatusNotFound, CodeNotFound, "payment not found")
	}
	return payment.result, nil
}

// Seed registers a payment as if it had been confirmed out of band.
func (s *Simulator) Seed(result Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(result)
}

func (s *Simulator) store(result Result) {
	if result.PaymentKey == "" {
		return
	}
	s.payments[result.PaymentKey] = &simPayment{result: result, balance: result.Amount}
}
