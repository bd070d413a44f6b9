package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCronJobMetricsRecordOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

	m.Record("reconcile-intents", finished, 250*time.Millisecond, nil)
	m.Record("reconcile-intents", finished.Add(time.Minute), time.Second, errors.New("gateway down"))
	m.Record("", finished, time.Millisecond, nil)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("reconcile-intents", OutcomeOK)); got != 1 {
		t.Fatalf("ok runs = %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("reconcile-intents", OutcomeFailed)); got != 1 {
		t.Fatalf("failed runs = %v", got)
	}
	// a failed run does not move the success timestamp
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("reconcile-intents")); got != float64(finished.Unix()) {
		t.Fatalf("last success = %v", got)
	}
	if got := testutil.ToFloat64(m.runs.WithLabelValues("unknown", OutcomeOK)); got != 1 {
		t.Fatalf("unnamed job should be labelled unknown, got %v", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if findMetricFamily(mfs, "ticketpay_cron_job_run_seconds") == nil {
		t.Fatal("expected run duration histogram")
	}
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	if m != nil {
		t.Fatalf("expected nil metrics without a registerer")
	}
	m.Record("noop", time.Now(), time.Second, nil)
}
