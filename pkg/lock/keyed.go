package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
)

const (
	defaultKeyTTL  = time.Minute
	defaultWait    = 45 * time.Second
	defaultPoll    = 50 * time.Millisecond
	defaultPrefix  = "tp:lock"
	releaseTimeout = 5 * time.Second
)

// Locker serializes work that shares a key. A context that already holds a key
// re-enters it without blocking, so nested managers can share one lock.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// OrderKey scopes a lock to a payment order id.
func OrderKey(orderID string) string {
	return "order:" + strings.TrimSpace(orderID)
}

// TransactionKey scopes a lock to a payment transaction id.
func TransactionKey(transactionID string) string {
	return "txn:" + strings.TrimSpace(transactionID)
}

// Busy reports whether err means the lock could not be obtained in time.
func Busy(err error) bool {
	return pkgerrors.ReasonOf(err) == "LOCK_BUSY"
}

type heldKeys struct{}

func holds(ctx context.Context, key string) bool {
	held, _ := ctx.Value(heldKeys{}).(map[string]struct{})
	_, ok := held[key]
	return ok
}

func withHeld(ctx context.Context, key string) context.Context {
	prev, _ := ctx.Value(heldKeys{}).(map[string]struct{})
	next := make(map[string]struct{}, len(prev)+1)
	for k := range prev {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	return context.WithValue(ctx, heldKeys{}, next)
}

func busyError(key string, cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeConflict, cause, fmt.Sprintf("resource %s is locked", key)).WithReason("LOCK_BUSY")
}

// RedisOptions tunes a RedisLocker.
type RedisOptions struct {
	Prefix string
	TTL    time.Duration
	Wait   time.Duration
	Poll   time.Duration
}

// RedisLocker is a distributed Locker that takes one Lease per key.
type RedisLocker struct {
	store  Store
	prefix string
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
}

// NewRedisLocker builds a Locker whose TTL must outlive the slowest guarded call.
func NewRedisLocker(store Store, opts RedisOptions) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis store required for locker")
	}
	l := &RedisLocker{
		store:  store,
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		wait:   opts.Wait,
		poll:   opts.Poll,
	}
	if l.prefix == "" {
		l.prefix = defaultPrefix
	}
	if l.ttl <= 0 {
		l.ttl = defaultKeyTTL
	}
	if l.wait <= 0 {
		l.wait = defaultWait
	}
	if l.poll <= 0 {
		l.poll = defaultPoll
	}
	return l, nil
}

// WithLock runs fn while holding key, waiting up to the configured duration.
func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if holds(ctx, key) {
		return fn(ctx)
	}
	lk, err := NewLease(l.store, l.prefix+":"+key, l.ttl)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := lk.Acquire(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire lock")
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return busyError(key, nil)
		}
		timer := time.NewTimer(l.poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return busyError(key, ctx.Err())
		case <-timer.C:
		}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		_ = lk.Release(releaseCtx)
	}()
	return fn(withHeld(ctx, key))
}

// MemoryLocker is an in-process Locker for single-instance runs and tests.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: map[string]chan struct{}{}}
}

func (l *MemoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if holds(ctx, key) {
		return fn(ctx)
	}
	if err := l.acquire(ctx, key); err != nil {
		return busyError(key, err)
	}
	defer l.release(key)
	return fn(withHeld(ctx, key))
}

func (l *MemoryLocker) acquire(ctx context.Context, key string) error {
	for {
		l.mu.Lock()
		slot, taken := l.slots[key]
		if !taken {
			l.slots[key] = make(chan struct{})
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-slot:
		}
	}
}

func (l *MemoryLocker) release(key string) {
	l.mu.Lock()
	slot := l.slots[key]
	delete(l.slots, key)
	l.mu.Unlock()
	if slot != nil {
		close(slot)
	}
}
