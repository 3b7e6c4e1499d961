// Package metrics collects Prometheus instrumentation for the engine:
// breaker state per strategy, accrual volume, and command latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's registered collectors.
type Metrics struct {
	CommandsTotal      *prometheus.CounterVec
	CommandDuration    *prometheus.HistogramVec
	BreakerState       *prometheus.GaugeVec
	YieldAccruedTotal  *prometheus.CounterVec
	BridgeStepsTotal   *prometheus.CounterVec
	AbandonedTotal     prometheus.Counter
	SettlementsTotal   *prometheus.CounterVec
	DoubleSpendTotal   prometheus.Counter
}

// New creates and registers the engine's metrics against registerer.
func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_commands_total",
				Help: "Total number of payment commands processed, by kind and outcome.",
			},
			[]string{"command", "outcome"},
		),
		CommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_command_duration_seconds",
				Help:    "Command handling latency in seconds.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"command"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "engine_strategy_breaker_state",
				Help: "Circuit breaker state per strategy adapter (0=closed, 1=half_open, 2=open).",
			},
			[]string{"strategy_id"},
		),
		YieldAccruedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_yield_accrued_total",
				Help: "Cumulative accrued yield recorded by snapshot, in micro-units, by currency.",
			},
			[]string{"currency"},
		),
		BridgeStepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_bridge_steps_total",
				Help: "Cross-chain bridge coordinator steps, by step and outcome.",
			},
			[]string{"step", "outcome"},
		),
		AbandonedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_abandoned_payments_total",
				Help: "Total payments force-failed by the abandonment sweep.",
			},
		),
		SettlementsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_settlements_total",
				Help: "Total settlements submitted and confirmed, by stage.",
			},
			[]string{"stage"},
		),
		DoubleSpendTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_double_spend_suspected_total",
				Help: "Total DoubleSpendSuspected reconciliation flags raised.",
			},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.CommandsTotal,
			m.CommandDuration,
			m.BreakerState,
			m.YieldAccruedTotal,
			m.BridgeStepsTotal,
			m.AbandonedTotal,
			m.SettlementsTotal,
			m.DoubleSpendTotal,
		)
	}
	return m
}

// breakerStateValue maps a breaker state name to the gauge's numeric code.
func breakerStateValue(state string) float64 {
	switch state {
	case "half_open", "half-open", "HalfOpen":
		return 1
	case "open", "Open":
		return 2
	default:
		return 0
	}
}

// RecordCommand records a command's outcome and latency.
func (m *Metrics) RecordCommand(command, outcome string, duration time.Duration) {
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// SetBreakerState publishes a strategy adapter's current breaker state.
func (m *Metrics) SetBreakerState(strategyID, state string) {
	m.BreakerState.WithLabelValues(strategyID).Set(breakerStateValue(state))
}

// RecordYieldAccrued records a yield snapshot's incremental accrual.
func (m *Metrics) RecordYieldAccrued(currency string, deltaMicros float64) {
	if deltaMicros <= 0 {
		return
	}
	m.YieldAccruedTotal.WithLabelValues(currency).Add(deltaMicros)
}

// RecordBridgeStep records a bridge coordinator step outcome.
func (m *Metrics) RecordBridgeStep(step, outcome string) {
	m.BridgeStepsTotal.WithLabelValues(step, outcome).Inc()
}

// RecordAbandoned increments the abandonment sweep counter.
func (m *Metrics) RecordAbandoned(count int) {
	if count <= 0 {
		return
	}
	m.AbandonedTotal.Add(float64(count))
}

// RecordSettlement records a settlement lifecycle stage transition.
func (m *Metrics) RecordSettlement(stage string) {
	m.SettlementsTotal.WithLabelValues(stage).Inc()
}

// RecordDoubleSpendSuspected increments the reconciliation flag counter.
func (m *Metrics) RecordDoubleSpendSuspected() {
	m.DoubleSpendTotal.Inc()
}
