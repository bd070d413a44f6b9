package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "ticketpay"

// Confirm results.
const (
	ResultSuccess = "success"
	ResultFail    = "fail"
	ResultRetry   = "retry"
	ResultSkip    = "skip"
)

// PaymentMetrics counts saga outcomes. A nil receiver is a no-op.
type PaymentMetrics struct {
	confirm        *prometheus.CounterVec
	compensation   *prometheus.CounterVec
	refund         *prometheus.CounterVec
	payout         *prometheus.CounterVec
	amountMismatch prometheus.Counter
	expired        prometheus.Counter
}

// NewPaymentMetrics registers the payment counters on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	m := &PaymentMetrics{
		confirm: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_confirm_total",
			Help:      "Payment confirm attempts by result.",
		}, []string{"result"}),
		compensation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_compensation_total",
			Help:      "Gateway compensations by outcome.",
		}, []string{"result"}),
		refund: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_refund_total",
			Help:      "Refunds by applied policy.",
		}, []string{"policy"}),
		payout: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlement_payout_total",
			Help:      "Seller payout attempts by result.",
		}, []string{"result"}),
		amountMismatch: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_amount_mismatch_total",
			Help:      "Confirms aborted because the charged amount differed from the intent.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_expired_total",
			Help:      "Intents expired by reconciliation.",
		}),
	}
	reg.MustRegister(m.confirm, m.compensation, m.refund, m.payout, m.amountMismatch, m.expired)
	return m
}

func (m *PaymentMetrics) Confirm(result string) {
	if m == nil || m.confirm == nil {
		return
	}
	m.confirm.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *PaymentMetrics) Compensation(result string) {
	if m == nil || m.compensation == nil {
		return
	}
	m.compensation.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *PaymentMetrics) Refund(policy string) {
	if m == nil || m.refund == nil {
		return
	}
	m.refund.WithLabelValues(normalizeLabel(policy)).Inc()
}

func (m *PaymentMetrics) Payout(result string) {
	if m == nil || m.payout == nil {
		return
	}
	m.payout.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *PaymentMetrics) AmountMismatch() {
	if m == nil || m.amountMismatch == nil {
		return
	}
	m.amountMismatch.Inc()
}

func (m *PaymentMetrics) IntentExpired() {
	if m == nil || m.expired == nil {
		return
	}
	m.expired.Inc()
}
