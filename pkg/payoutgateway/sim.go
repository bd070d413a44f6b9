package payoutgateway

import (
	"context"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Seller ids with these prefixes make the simulator fail.
const (
	SimPermanentPrefix = "invalid_"
	SimTransientPrefix = "flaky_"
)

// Simulator completes payouts in memory. A repeated idempotency key returns the
// first reference.
type Simulator struct {
	mu    sync.Mutex
	refs  map[string]string
	Hook  func(Request) (Result, error)
	Calls []Request
}

func NewSimulator() *Simulator {
	return &Simulator{refs: map[string]string{}}
}

func (s *Simulator) Name() string { return "sim" }

func (s *Simulator) RequestPayout(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, transientError(CodeTimeout, "payout request canceled", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, req)

	if s.Hook != nil {
		return s.Hook(req)
	}
	switch {
	case strings.HasPrefix(req.ProviderSellerID, SimPermanentPrefix):
		return Result{}, permanentError("INVALID_DESTINATION", "seller payout destination is invalid")
	case strings.HasPrefix(req.ProviderSellerID, SimTransientPrefix):
		return Result{}, transientError(CodeRequestFailed, "simulated network failure", nil)
	}

	if ref, ok := s.refs[req.IdempotencyKey]; ok {
		return Result{ProviderRef: ref, Status: StatusCompleted}, nil
	}
	ref := "SIM-" + ulid.Make().String()
	s.refs[req.IdempotencyKey] = ref
	return Result{ProviderRef: ref, Status: StatusCompleted}, nil
}
