package redis

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestIncrWithTTLArmsExpiryOnFirstHit(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	for want := int64(1); want <= 3; want++ {
		got, err := client.IncrWithTTL(ctx, "rl:ip:payments:10.0.0.1", time.Minute)
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if got != want {
			t.Fatalf("expected count %d got %d", want, got)
		}
	}
	if len(mock.expiries) != 1 {
		t.Fatalf("expected one expiry, got %d", len(mock.expiries))
	}
	if mock.expiries["rl:ip:payments:10.0.0.1"] != time.Minute.Milliseconds() {
		t.Fatalf("unexpected ttl %v", mock.expiries)
	}
}

func TestCompareAndDeleteRespectsOwner(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	client := &Client{store: mock}

	ok, err := client.SetNX(ctx, "tp:lock:order:ORD-1", "owner-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected setnx to win, ok=%v err=%v", ok, err)
	}
	if ok, _ := client.SetNX(ctx, "tp:lock:order:ORD-1", "owner-b", time.Minute); ok {
		t.Fatal("second setnx must lose")
	}

	deleted, err := client.CompareAndDelete(ctx, "tp:lock:order:ORD-1", "owner-b")
	if err != nil || deleted {
		t.Fatalf("stranger must not release, deleted=%v err=%v", deleted, err)
	}
	deleted, err = client.CompareAndDelete(ctx, "tp:lock:order:ORD-1", "owner-a")
	if err != nil || !deleted {
		t.Fatalf("owner release failed, deleted=%v err=%v", deleted, err)
	}
	if _, err := client.Get(ctx, "tp:lock:order:ORD-1"); err != redis.Nil {
		t.Fatalf("expected redis.Nil after release, got %v", err)
	}
}

func TestUninitializedClientErrors(t *testing.T) {
	client := &Client{}
	if err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	if _, err := client.IncrWithTTL(context.Background(), "k", time.Second); err == nil {
		t.Fatal("expected incr error")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close on empty client should be a no-op: %v", err)
	}
}

func TestKeyNamespaces(t *testing.T) {
	client := &Client{}
	if got := client.IdempotencyKey("u1|POST|/payments/confirm", "k-1"); got != "tp:idempotency:u1|POST|/payments/confirm:k-1" {
		t.Fatalf("unexpected idempotency key %s", got)
	}
	if got := client.IdempotencyKey("scope", " "); got != "tp:idempotency:scope" {
		t.Fatalf("blank parts should be skipped, got %s", got)
	}
	if got := client.LockPrefix(); got != "tp:lock" {
		t.Fatalf("unexpected lock prefix %s", got)
	}
}

type mockCmdable struct {
	data     map[string]string
	expiries map[string]int64
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data:     make(map[string]string),
		expiries: make(map[string]int64),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *mockCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// Eval emulates the two scripts the client ships.
func (m *mockCmdable) Eval(_ context.Context, script string, keys []string, args ...any) *redis.Cmd {
	key := keys[0]
	switch {
	case strings.Contains(script, "INCR"):
		var n int64
		fmt.Sscan(m.data[key], &n)
		n++
		m.data[key] = fmt.Sprint(n)
		if ttl, _ := args[0].(int64); n == 1 && ttl > 0 {
			m.expiries[key] = ttl
		}
		return redis.NewCmdResult(n, nil)
	case strings.Contains(script, "DEL"):
		if v, ok := m.data[key]; ok && v == fmt.Sprint(args[0]) {
			delete(m.data, key)
			return redis.NewCmdResult(int64(1), nil)
		}
		return redis.NewCmdResult(int64(0), nil)
	}
	return redis.NewCmdResult(nil, fmt.Errorf("unexpected script"))
}
