package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store is the Redis surface the guard needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	IdempotencyKey(scope, id string) string
}

// Guard makes event consumers effectively-once. Each handled event leaves a
// marker at tp:idempotency:evt:<consumer>:<event_id> holding a random token,
// and only the holder of that token may clear it.
type Guard struct {
	store Store
	ttl   time.Duration
	token func() string
}

// NewGuard builds a guard whose markers live for ttl. A zero ttl never expires.
func NewGuard(store Store, ttl time.Duration) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Guard{store: store, ttl: ttl, token: func() string { return uuid.NewString() }}, nil
}

// Once runs fn the first time consumer sees eventID and reports whether fn ran.
// When fn fails the marker is released so a redelivery can retry.
func (g *Guard) Once(ctx context.Context, consumer string, eventID uuid.UUID, fn func(context.Context) error) (bool, error) {
	if consumer == "" {
		return false, errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey("evt:"+consumer, eventID.String())
	token := g.token()
	claimed, err := g.store.SetNX(ctx, key, token, g.ttl)
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}

	runErr := fn(ctx)
	if runErr == nil {
		return true, nil
	}
	// Release on a fresh context: ctx may be the reason fn failed.
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if _, err := g.store.CompareAndDelete(releaseCtx, key, token); err != nil {
		return true, errors.Join(runErr, err)
	}
	return true, runErr
}
