package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RecordCommandIncrementsCounterAndObservesDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordCommand("CreatePayment", "ok", 10*time.Millisecond)

	got := testutil.ToFloat64(m.CommandsTotal.WithLabelValues("CreatePayment", "ok"))
	if got != 1 {
		t.Fatalf("expected 1 command recorded, got %f", got)
	}
}

func TestMetrics_SetBreakerStateMapsKnownStates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetBreakerState("tbill-a", "open")
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("tbill-a")); got != 2 {
		t.Fatalf("expected open=2, got %f", got)
	}

	m.SetBreakerState("tbill-a", "half_open")
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("tbill-a")); got != 1 {
		t.Fatalf("expected half_open=1, got %f", got)
	}

	m.SetBreakerState("tbill-a", "closed")
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("tbill-a")); got != 0 {
		t.Fatalf("expected closed=0, got %f", got)
	}
}

func TestMetrics_RecordYieldAccruedIgnoresNonPositiveDeltas(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordYieldAccrued("USDC", 0)
	m.RecordYieldAccrued("USDC", -5)
	if got := testutil.ToFloat64(m.YieldAccruedTotal.WithLabelValues("USDC")); got != 0 {
		t.Fatalf("expected non-positive deltas to be ignored, got %f", got)
	}

	m.RecordYieldAccrued("USDC", 100)
	if got := testutil.ToFloat64(m.YieldAccruedTotal.WithLabelValues("USDC")); got != 100 {
		t.Fatalf("expected 100 accrued, got %f", got)
	}
}

func TestMetrics_RecordAbandonedIgnoresZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordAbandoned(0)
	if got := testutil.ToFloat64(m.AbandonedTotal); got != 0 {
		t.Fatalf("expected 0, got %f", got)
	}

	m.RecordAbandoned(3)
	if got := testutil.ToFloat64(m.AbandonedTotal); got != 3 {
		t.Fatalf("expected 3, got %f", got)
	}
}

func TestMetrics_RecordDoubleSpendSuspected(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordDoubleSpendSuspected()
	m.RecordDoubleSpendSuspected()
	if got := testutil.ToFloat64(m.DoubleSpendTotal); got != 2 {
		t.Fatalf("expected 2, got %f", got)
	}
}
