package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPaymentMetricsCountByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.Confirm(ResultSuccess)
	m.Confirm(ResultSuccess)
	m.Confirm(ResultRetry)
	m.Payout("")
	m.Refund("PARTIAL_REFUND_WITH_FEE")
	m.AmountMismatch()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "ticketpay_payment_confirm_total", "result", ResultSuccess); err != nil || got != 2 {
		t.Fatalf("expected success=2, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "ticketpay_payment_confirm_total", "result", ResultRetry); err != nil || got != 1 {
		t.Fatalf("expected retry=1, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "ticketpay_settlement_payout_total", "result", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected empty label to normalize, got %f err=%v", got, err)
	}
	mf := findMetricFamily(mfs, "ticketpay_payment_amount_mismatch_total")
	if mf == nil || mf.GetMetric()[0].GetCounter().GetValue() != 1 {
		t.Fatalf("expected amount mismatch counter to be 1")
	}
}

func TestNilPaymentMetricsAreNoops(t *testing.T) {
	var m *PaymentMetrics
	m.Confirm(ResultFail)
	m.Compensation("failed")
	m.IntentExpired()

	unregistered := NewPaymentMetrics(nil)
	unregistered.Payout(ResultSkip)
}
