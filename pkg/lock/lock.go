package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lock coordinates exclusive ownership of a single key.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Store is the redis surface leases need. CompareAndDelete must be atomic so
// a lease that expired and was re-taken is never freed by the old owner.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

// Lease is one Redis key owned through a random token. The key expires on
// its own after ttl, so a crashed owner blocks others for at most ttl.
type Lease struct {
	store Store
	key   string
	ttl   time.Duration

	mu    sync.Mutex
	token string
}

var _ Lock = (*Lease)(nil)

// NewLease validates the key and ttl up front; the cron cycle relies on a
// ttl shorter than its interval.
func NewLease(store Store, key string, ttl time.Duration) (*Lease, error) {
	switch {
	case store == nil:
		return nil, errors.New("lease store is required")
	case key == "":
		return nil, errors.New("lease key is required")
	case ttl <= 0:
		return nil, fmt.Errorf("lease %s: ttl must be positive", key)
	}
	return &Lease{store: store, key: key, ttl: ttl}, nil
}

// Acquire reports whether this lease now owns the key. Acquiring a lease that
// is already held is a no-op success.
func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.token != "" {
		return true, nil
	}
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

// Release gives the key back if this lease still owns it.
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}
	if _, err := l.store.CompareAndDelete(ctx, l.key, token); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}
