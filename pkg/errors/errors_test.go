package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

var allCodes = []Code{
	CodeValidation, CodeUnauthorized, CodeForbidden, CodeNotFound, CodeConflict,
	CodeStateConflict, CodeIdempotency, CodeRateLimit, CodeInternal, CodeDependency,
	CodeAmountMismatch, CodePaymentRejected, CodeGatewayTimeout,
}

func TestEveryCodeHasMetadata(t *testing.T) {
	for _, code := range allCodes {
		meta, ok := metadataByCode[code]
		if !ok {
			t.Fatalf("%s has no metadata", code)
		}
		if meta.PublicMessage == "" || meta.HTTPStatus < 400 {
			t.Fatalf("%s: incomplete metadata %+v", code, meta)
		}
		// server-side failures never leak their internal message
		if meta.HTTPStatus >= 500 && meta.ExposeMessage {
			t.Fatalf("%s exposes its message on a %d", code, meta.HTTPStatus)
		}
	}
	if got := MetadataFor("NOPE"); got != metadataByCode[CodeInternal] {
		t.Fatalf("unknown codes should map to internal, got %+v", got)
	}
}

func TestPaymentOutcomeStatuses(t *testing.T) {
	want := map[Code]int{
		CodeAmountMismatch:  http.StatusConflict,
		CodePaymentRejected: http.StatusPaymentRequired,
		CodeGatewayTimeout:  http.StatusGatewayTimeout,
		CodeStateConflict:   http.StatusUnprocessableEntity,
		CodeIdempotency:     http.StatusConflict,
	}
	for code, status := range want {
		if got := MetadataFor(code).HTTPStatus; got != status {
			t.Fatalf("%s: want %d got %d", code, status, got)
		}
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{stdErrors.New("connection reset"), true},
		{fmt.Errorf("confirm: %w", New(CodeGatewayTimeout, "gateway timed out")), true},
		{Wrap(CodeDependency, stdErrors.New("redis"), "lock"), true},
		{New(CodePaymentRejected, "card declined"), false},
		{New(CodeAmountMismatch, "35000 != 30000"), false},
	}
	for _, tc := range cases {
		if got := Retryable(tc.err); got != tc.want {
			t.Fatalf("Retryable(%v) = %v", tc.err, got)
		}
	}
}

func TestWrapKeepsCauseInChainAndText(t *testing.T) {
	cause := stdErrors.New("deadlock detected")
	err := fmt.Errorf("ledger: %w", Wrap(CodeDependency, cause, "insert transaction"))

	if !stdErrors.Is(err, cause) {
		t.Fatal("cause lost from chain")
	}
	if !IsCode(err, CodeDependency) || IsCode(err, CodeInternal) {
		t.Fatal("IsCode mismatch")
	}
	if !strings.HasSuffix(err.Error(), "DEPENDENCY_ERROR: insert transaction: deadlock detected") {
		t.Fatalf("unexpected text %q", err.Error())
	}
	if New(CodeNotFound, "intent").Error() != "NOT_FOUND: intent" {
		t.Fatal("plain error text changed")
	}
	if Wrap(CodeInternal, nil, "x").Unwrap() != nil {
		t.Fatal("nil cause should stay nil")
	}
}

func TestNilErrorIsSafe(t *testing.T) {
	var e *Error
	if e.Code() != CodeInternal || e.Message() != "" || e.Details() != nil || e.Error() != "" {
		t.Fatal("nil receiver accessors should return zero values")
	}
	if e.WithDetails(1) != nil || e.WithReason("r") != nil {
		t.Fatal("nil receiver builders should return nil")
	}
	if As(nil) != nil || As(stdErrors.New("x")) != nil {
		t.Fatal("As should only match typed errors")
	}
}

func TestWithReasonMergesDetails(t *testing.T) {
	err := New(CodeStateConflict, "intent is terminal").
		WithDetails(map[string]any{"status": "CANCELED"}).
		WithReason("INTENT_ALREADY_TERMINAL")

	if got := ReasonOf(fmt.Errorf("outer: %w", err)); got != "INTENT_ALREADY_TERMINAL" {
		t.Fatalf("unexpected reason %q", got)
	}
	if details := err.Details().(map[string]any); details["status"] != "CANCELED" {
		t.Fatalf("existing details dropped: %v", details)
	}
	if ReasonOf(New(CodeConflict, "x").WithDetails("text")) != "" {
		t.Fatal("non-map details carry no reason")
	}
}

func TestWithBuildersDoNotMutateShared(t *testing.T) {
	shared := New(CodeNotFound, "payout not found")
	tagged := shared.WithReason("PAYOUT_NOT_FOUND")

	if ReasonOf(shared) != "" {
		t.Fatalf("shared error picked up a reason")
	}
	if ReasonOf(tagged) != "PAYOUT_NOT_FOUND" {
		t.Fatalf("tagged reason = %q", ReasonOf(tagged))
	}
	if got := Newf(CodeStateConflict, "payout is %s", "PAID").Message(); got != "payout is PAID" {
		t.Fatalf("Newf message = %q", got)
	}
}
