package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yieldrails/engine/internal/domain/money"
	"github.com/yieldrails/engine/internal/enginerr"
	"github.com/yieldrails/engine/internal/logger"
	"github.com/yieldrails/engine/internal/resilience"
)

// GuardedAdapter fronts a StrategyAdapter with the per-adapter circuit
// breaker, retry-with-backoff, and last-known-good APY cache of spec §4.4.
// It is the only thing the engine's command surface and accrual loop ever
// call directly; the raw StrategyAdapter is never touched outside this
// wrapper.
type GuardedAdapter struct {
	inner    StrategyAdapter
	breaker  *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig
	log      *logger.Logger

	mu          sync.RWMutex
	cachedAPY   int64
	cachedAt    time.Time
	lastHealthy bool
	history     []ProbeRecord
}

// probeHistoryCap bounds the health-probe history kept per adapter; older
// entries are dropped as new probes arrive (spec §C "latency history, not
// just the latest probe").
const probeHistoryCap = 20

// NewGuardedAdapter wraps inner with the given breaker/retry configuration.
func NewGuardedAdapter(inner StrategyAdapter, cbCfg resilience.Config, retryCfg resilience.RetryConfig, log *logger.Logger) *GuardedAdapter {
	if log == nil {
		log = logger.NewDefault("strategy-adapter")
	}
	strategyID := inner.StrategyID()
	baseOnChange := cbCfg.OnStateChange
	cbCfg.OnStateChange = func(from, to resilience.State) {
		log.WithFields(map[string]interface{}{
			"strategy_id": strategyID,
			"from_state":  from.String(),
			"to_state":    to.String(),
		}).Warn("strategy adapter circuit breaker state changed")
		if baseOnChange != nil {
			baseOnChange(from, to)
		}
	}
	return &GuardedAdapter{
		inner:    inner,
		breaker:  resilience.New(cbCfg),
		retryCfg: retryCfg,
		log:      log,
	}
}

// StrategyID returns the wrapped adapter's identifier.
func (g *GuardedAdapter) StrategyID() string { return g.inner.StrategyID() }

// BreakerState exposes the current circuit breaker state for GetStrategyHealth.
func (g *GuardedAdapter) BreakerState() resilience.State { return g.breaker.State() }

// Allocate performs a retried, breaker-guarded allocation. There is no
// sensible cached fallback for a write operation, so an open breaker
// surfaces AdapterUnavailable.
func (g *GuardedAdapter) Allocate(ctx context.Context, externalOpID, paymentID string, amount money.Amount) AllocateResult {
	var res AllocateResult
	err := g.execute(ctx, func() error {
		res = g.inner.Allocate(ctx, externalOpID, paymentID, amount)
		return classify(res.Outcome, res.Err)
	})
	if err != nil && isBreakerErr(err) {
		return AllocateResult{Outcome: OutcomeUnhealthy, Err: unavailable(err)}
	}
	return res
}

// Withdraw performs a retried, breaker-guarded withdrawal.
func (g *GuardedAdapter) Withdraw(ctx context.Context, externalOpID, positionRef string, amount money.Amount) WithdrawResult {
	var res WithdrawResult
	err := g.execute(ctx, func() error {
		res = g.inner.Withdraw(ctx, externalOpID, positionRef, amount)
		return classify(res.Outcome, res.Err)
	})
	if err != nil && isBreakerErr(err) {
		return WithdrawResult{Outcome: OutcomeUnhealthy, Err: unavailable(err)}
	}
	return res
}

// CurrentAPY returns the adapter's reported APY, falling back to the last
// cached value when the breaker is open (spec §4.4 "falls back to the last
// cached value for read-only queries").
func (g *GuardedAdapter) CurrentAPY(ctx context.Context, externalOpID string) APYResult {
	var res APYResult
	err := g.execute(ctx, func() error {
		res = g.inner.CurrentAPY(ctx, externalOpID)
		return classify(res.Outcome, res.Err)
	})
	if err == nil {
		g.mu.Lock()
		g.cachedAPY = res.ApyBps
		g.cachedAt = time.Now()
		g.mu.Unlock()
		return res
	}
	if isBreakerErr(err) {
		g.mu.RLock()
		apy, at := g.cachedAPY, g.cachedAt
		g.mu.RUnlock()
		if at.IsZero() {
			return APYResult{Outcome: OutcomeUnhealthy, Err: unavailable(err)}
		}
		return APYResult{Outcome: OutcomeOK, ApyBps: apy, Err: fmt.Errorf("stale cached apy from %s: %w", at, unavailable(err))}
	}
	return res
}

// Health probes the adapter without going through the circuit breaker's
// failure accounting: health probes are advisory and must never themselves
// trip or reset the breaker (spec §4.4 "the engine must never block a
// state-machine transition on a health probe; health data is advisory").
func (g *GuardedAdapter) Health(ctx context.Context, externalOpID string) HealthResult {
	res := g.inner.Health(ctx, externalOpID)
	healthy := res.Outcome == OutcomeOK && res.Healthy

	g.mu.Lock()
	g.lastHealthy = healthy
	g.history = append(g.history, ProbeRecord{At: time.Now(), Healthy: healthy, LatencyMs: res.LatencyMs})
	if over := len(g.history) - probeHistoryCap; over > 0 {
		g.history = g.history[over:]
	}
	g.mu.Unlock()
	return res
}

// LastKnownHealthy reports the most recent health probe result.
func (g *GuardedAdapter) LastKnownHealthy() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastHealthy
}

// History returns a snapshot of the last probeHistoryCap health probes,
// oldest first.
func (g *GuardedAdapter) History() []ProbeRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]ProbeRecord, len(g.history))
	copy(out, g.history)
	return out
}

// LastCachedAPY exposes the cached APY and its age for GetStrategyHealth.
func (g *GuardedAdapter) LastCachedAPY() (apyBps int64, observedAt time.Time) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cachedAPY, g.cachedAt
}

func (g *GuardedAdapter) execute(ctx context.Context, fn func() error) error {
	return g.breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, g.retryCfg, fn)
	})
}

// classify turns an Outcome into the error shape cenkalti/backoff expects:
// a permanent error (backoff.Permanent) surfaces immediately with no
// retry, matching spec §4.4 "4xx classifications surface immediately";
// a plain error is retried up to RetryConfig.MaxAttempts.
func classify(outcome Outcome, cause error) error {
	switch outcome {
	case OutcomeOK:
		return nil
	case OutcomeTransient:
		if cause != nil {
			return cause
		}
		return errors.New("adapter: transient error")
	default:
		if cause != nil {
			return backoff.Permanent(cause)
		}
		return backoff.Permanent(fmt.Errorf("adapter: %s", outcome))
	}
}

func isBreakerErr(err error) bool {
	return errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests)
}

func unavailable(cause error) error {
	return enginerr.Wrap(enginerr.CodeAdapterUnavailable, cause, "strategy adapter unavailable")
}
