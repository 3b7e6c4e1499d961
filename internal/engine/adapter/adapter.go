// Package adapter defines the polymorphic capability set the engine
// consumes for every external yield strategy (spec §4.3), plus a registry
// that lets the engine treat T-bill, delta-neutral, and lending-market
// strategies interchangeably.
package adapter

import (
	"context"
	"time"

	"github.com/yieldrails/engine/internal/domain/money"
)

// Outcome discriminates every adapter call result (spec §6 "Strategy
// adapter (consumed)"). The engine only ever distinguishes Transient from
// Permanent for retry purposes; the precise classification rule for each
// underlying failure is left to the adapter author (spec §9 Open
// Questions).
type Outcome string

const (
	OutcomeOK        Outcome = "ok"
	OutcomeTransient Outcome = "transient_error"
	OutcomePermanent Outcome = "permanent_error"
	OutcomeUnhealthy Outcome = "unhealthy"
)

// Transient reports whether the outcome is eligible for retry inside the
// circuit breaker's Closed/HalfOpen states (spec §4.4).
func (o Outcome) Transient() bool { return o == OutcomeTransient }

// AllocateResult is the return of StrategyAdapter.Allocate.
type AllocateResult struct {
	Outcome     Outcome
	PositionRef string
	Err         error
}

// WithdrawResult is the return of StrategyAdapter.Withdraw.
type WithdrawResult struct {
	Outcome Outcome
	TxRef   string
	Amount  money.Amount
	Err     error
}

// APYResult is the return of StrategyAdapter.CurrentAPY.
type APYResult struct {
	Outcome Outcome
	ApyBps  int64
	Err     error
}

// HealthResult is the return of StrategyAdapter.Health.
type HealthResult struct {
	Outcome   Outcome
	Healthy   bool
	LatencyMs int64
	Err       error
}

// ProbeRecord is one entry in a GuardedAdapter's bounded health-probe
// history, surfaced through HealthSnapshot.History for the strategy health
// dashboard query (spec §4.7, SPEC_FULL.md §C).
type ProbeRecord struct {
	At        time.Time
	Healthy   bool
	LatencyMs int64
}

// StrategyAdapter is the uniform capability set the engine consumes per
// strategy (spec §4.3). Every method takes the deadline via ctx and an
// externalOpID the adapter must round-trip so the engine can correlate
// callbacks (spec §4.6). Implementations must be idempotent: calling
// Allocate twice with the same paymentID must not double-allocate.
type StrategyAdapter interface {
	StrategyID() string
	Allocate(ctx context.Context, externalOpID, paymentID string, amount money.Amount) AllocateResult
	Withdraw(ctx context.Context, externalOpID, positionRef string, amount money.Amount) WithdrawResult
	CurrentAPY(ctx context.Context, externalOpID string) APYResult
	Health(ctx context.Context, externalOpID string) HealthResult
}
