package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
)

type memStore struct {
	data map[string]string
}

func newMemStore() *memStore { return &memStore{data: map[string]string{}} }

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key], _ = value.(string)
	return true, nil
}

func (m *memStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) IdempotencyKey(scope, id string) string { return "mem:" + scope + ":" + id }

type countingHandler struct {
	calls  int
	status int
	body   string
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	h.calls++
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(h.status)
	_, _ = w.Write([]byte(h.body))
}

func post(path, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return payload.Error.Code
}

func TestReplayWindow(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{http.MethodPost, "/payments/prepare", shortReplayWindow, true},
		{http.MethodPost, "/payments/cancel", longReplayWindow, true},
		{http.MethodPost, "/internal/orders/ORD-9/cancel", longReplayWindow, true},
		{http.MethodPost, "/internal/settlements/3f2a/payout", longReplayWindow, true},
		{http.MethodPost, "/internal/payouts/3f2a/retry", shortReplayWindow, true},
		{http.MethodPost, "/notifications/abc/read", shortReplayWindow, true},
		{http.MethodPost, "/payments/confirm", 0, false},
		{http.MethodPost, "/internal/orders/ORD-9/reconcile", 0, false},
		{http.MethodGet, "/payments/prepare", 0, false},
	}
	for _, tc := range cases {
		got, ok := replayWindow(tc.method, tc.path)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s %s: got (%v, %v) want (%v, %v)", tc.method, tc.path, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIdempotencyReplaysFirstResponse(t *testing.T) {
	store := newMemStore()
	h := &countingHandler{status: http.StatusCreated, body: `{"orderId":"ORD-1"}`}
	mw := Idempotency(store, nil)(h)

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, post("/payments/prepare", "k1", `{"slotId":"s"}`))
	second := httptest.NewRecorder()
	mw.ServeHTTP(second, post("/payments/prepare", "k1", `{"slotId":"s"}`))

	if h.calls != 1 {
		t.Fatalf("handler ran %d times", h.calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != `{"orderId":"ORD-1"}` {
		t.Fatalf("unexpected replay %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get(replayedHeader) != "true" || first.Header().Get(replayedHeader) != "" {
		t.Fatal("only the replay should carry the replayed header")
	}
	for k := range store.data {
		if strings.HasSuffix(k, ":claim") {
			t.Fatalf("claim %s was not released", k)
		}
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newMemStore()
	h := &countingHandler{status: http.StatusOK, body: `{}`}
	mw := Idempotency(store, nil)(h)

	mw.ServeHTTP(httptest.NewRecorder(), post("/payments/cancel", "k2", `{"orderId":"ORD-1"}`))
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, post("/payments/cancel", "k2", `{"orderId":"ORD-2"}`))

	if rec.Code != http.StatusConflict || errorCode(t, rec) != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency conflict, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newMemStore()
	store.data[store.IdempotencyKey("|/payments/prepare", "k3")+":claim"] = "in-flight"
	h := &countingHandler{status: http.StatusCreated, body: `{}`}

	rec := httptest.NewRecorder()
	Idempotency(store, nil)(h).ServeHTTP(rec, post("/payments/prepare", "k3", `{}`))

	if h.calls != 0 {
		t.Fatal("duplicate should not reach the handler")
	}
	if rec.Code != http.StatusConflict || errorCode(t, rec) != string(pkgerrors.CodeConflict) {
		t.Fatalf("expected in-progress conflict, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestIdempotencyDoesNotKeepServerErrors(t *testing.T) {
	store := newMemStore()
	h := &countingHandler{status: http.StatusGatewayTimeout, body: `{}`}
	mw := Idempotency(store, nil)(h)

	for i := 0; i < 2; i++ {
		mw.ServeHTTP(httptest.NewRecorder(), post("/payments/prepare", "k4", `{}`))
	}
	if h.calls != 2 {
		t.Fatalf("5xx should be retryable, handler ran %d times", h.calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected empty store, got %v", store.data)
	}
}

func TestIdempotencyScopesPerUserAndSkipsWithoutKey(t *testing.T) {
	store := newMemStore()
	h := &countingHandler{status: http.StatusOK, body: `{}`}
	mw := Idempotency(store, nil)(h)

	for _, user := range []string{"buyer-a", "buyer-b"} {
		req := post("/payments/cancel", "shared", `{"orderId":"ORD-1"}`)
		mw.ServeHTTP(httptest.NewRecorder(), req.WithContext(WithUserID(req.Context(), user)))
	}
	mw.ServeHTTP(httptest.NewRecorder(), post("/payments/cancel", "", `{}`))
	mw.ServeHTTP(httptest.NewRecorder(), post("/payments/cancel", "", `{}`))

	if h.calls != 4 {
		t.Fatalf("handler ran %d times, want 4", h.calls)
	}

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, post("/payments/cancel", strings.Repeat("x", maxIdempotencyKeyLen+1), `{}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized key, got %d", rec.Code)
	}
}
