package payment

import (
	"fmt"

	"github.com/yieldrails/engine/internal/domain/ledger"
)

// Fold replays a payment's event log in Seq order and returns the resulting
// projection (spec §4.6 "the current Payment is the deterministic fold of
// its events"). It tolerates replay: calling Fold twice on the same log
// yields byte-for-byte identical results, and it never performs I/O.
//
// Fold enforces state-machine safety (spec §8): an event that would drive
// the projection through a transition outside the whitelist of state.go is
// rejected rather than silently applied, except for StaleEvent, which by
// definition records an event the engine chose to ignore.
func Fold(events []ledger.Event) (Payment, error) {
	var p Payment
	for i, e := range events {
		if i == 0 && e.Kind != ledger.KindAdmitted {
			return Payment{}, fmt.Errorf("fold: first event must be Admitted, got %s", e.Kind)
		}
		if e.Seq != int64(i)+1 {
			return Payment{}, fmt.Errorf("fold: expected seq %d, got %d", i+1, e.Seq)
		}
		next, err := apply(p, e)
		if err != nil {
			return Payment{}, fmt.Errorf("fold: event %d (%s): %w", e.Seq, e.Kind, err)
		}
		next.Seq = e.Seq
		p = next
	}
	return p, nil
}

func apply(p Payment, e ledger.Event) (Payment, error) {
	// A terminal payment rejects every further event except the
	// bookkeeping kinds that exist precisely to record a late arrival.
	if p.State.Terminal() && e.Kind != ledger.KindStaleEvent && e.Kind != ledger.KindDoubleSpendSuspected {
		return p, fmt.Errorf("payment %s is terminal (%s); event %s is not a recognized post-terminal record", p.ID, p.State, e.Kind)
	}

	switch e.Kind {
	case ledger.KindAdmitted:
		if p.ID != "" {
			return p, fmt.Errorf("payment already admitted")
		}
		if !CanTransition("", StatePending) {
			return p, fmt.Errorf("invalid transition to Pending")
		}
		p.ID = e.PaymentID
		p.User = e.Payload.User
		p.Merchant = e.Payload.Merchant
		p.Principal = e.Payload.Principal
		p.Currency = e.Payload.Currency
		p.SourceChain = e.Payload.SourceChain
		p.DestinationChain = e.Payload.DestinationChain
		p.StrategyID = e.Payload.StrategyID
		p.State = StatePending
		p.CreatedAt = e.At
		p.ClientTokens = map[string]bool{}
		if e.Payload.ClientToken != "" {
			p.ClientTokens["CreatePayment:"+e.Payload.ClientToken] = true
		}
		return p, nil

	case ledger.KindEscrowDeposited:
		to := StateActive
		if p.IsCrossChain() {
			to = StateBridging
		}
		if !CanTransition(p.State, to) {
			return p, fmt.Errorf("invalid transition %s -> %s", p.State, to)
		}
		p.EscrowRef = e.Payload.EscrowRef
		p.State = to
		if to == StateActive {
			p.ActivatedAt = e.At
		}
		return p, nil

	case ledger.KindYieldSnapshot:
		if p.State != StateActive && p.State != StateReleasing && p.State != StateBridging {
			return p, fmt.Errorf("yield snapshot not valid in state %s", p.State)
		}
		if e.Payload.AccruedYield.LessThan(p.AccruedYield) {
			return p, fmt.Errorf("accrued yield must be monotonically non-decreasing")
		}
		p.AccruedYield = e.Payload.AccruedYield
		p.LastApyBps = e.Payload.ApyBps
		p.LastApyStale = e.Payload.Stale
		p.LastSnapshotAt = e.At
		return p, nil

	case ledger.KindReleaseRequested:
		if !CanTransition(p.State, StateReleasing) {
			return p, fmt.Errorf("invalid transition %s -> Releasing", p.State)
		}
		p.State = StateReleasing
		if e.Payload.ClientToken != "" {
			p.ClientTokens["ReleasePayment:"+e.Payload.ClientToken] = true
		}
		return p, nil

	case ledger.KindDistributionComputed:
		if p.State != StateReleasing {
			return p, fmt.Errorf("distribution computed outside Releasing state (%s)", p.State)
		}
		d := Distribution{
			UserYield:     e.Payload.UserYield,
			MerchantYield: e.Payload.MerchantYield,
			ProtocolYield: e.Payload.ProtocolYield,
		}
		if d.Sum().Cmp(p.AccruedYield) != 0 {
			return p, fmt.Errorf("distribution %v does not conserve accrued yield %v", d, p.AccruedYield)
		}
		p.Distribution = &d
		return p, nil

	case ledger.KindSettlementSubmitted:
		if !CanTransition(p.State, StateReleased) {
			return p, fmt.Errorf("invalid transition %s -> Released", p.State)
		}
		if p.Distribution == nil {
			return p, fmt.Errorf("settlement submitted before distribution was computed")
		}
		p.State = StateReleased
		p.ReleasedAt = e.At
		return p, nil

	case ledger.KindSettlementConfirmed:
		if !CanTransition(p.State, StateCompleted) {
			return p, fmt.Errorf("invalid transition %s -> Completed", p.State)
		}
		p.State = StateCompleted
		p.TerminatedAt = e.At
		return p, nil

	case ledger.KindBridgeInitiated, ledger.KindBridgeAttested:
		if p.State != StateBridging {
			return p, fmt.Errorf("%s not valid in state %s", e.Kind, p.State)
		}
		p.BridgeRef = e.Payload.BridgeRef
		return p, nil

	case ledger.KindBridgeDelivered:
		if !CanTransition(p.State, StateActive) {
			return p, fmt.Errorf("invalid transition %s -> Active (bridge delivered)", p.State)
		}
		p.BridgeRef = e.Payload.BridgeRef
		p.SourceChain = p.DestinationChain
		p.State = StateActive
		p.ActivatedAt = e.At
		if e.Payload.StrategyID != "" {
			p.StrategyID = e.Payload.StrategyID
		}
		return p, nil

	case ledger.KindFailed:
		to := StateFailed
		if p.State == StateActive || p.State == StateBridging {
			to = StateFailing
		}
		if !CanTransition(p.State, to) {
			return p, fmt.Errorf("invalid transition %s -> %s", p.State, to)
		}
		p.State = to
		p.FailureReason = e.Payload.Reason
		if to == StateFailed {
			p.TerminatedAt = e.At
		}
		return p, nil

	case ledger.KindRefundRequested:
		if p.State != StateFailing {
			return p, fmt.Errorf("refund requested outside Failing state (%s)", p.State)
		}
		return p, nil

	case ledger.KindRefundConfirmed:
		if !CanTransition(p.State, StateRefunded) {
			return p, fmt.Errorf("invalid transition %s -> Refunded", p.State)
		}
		p.State = StateRefunded
		p.TerminatedAt = e.At
		p.FailureReason = e.Payload.Reason
		return p, nil

	case ledger.KindStaleEvent, ledger.KindDoubleSpendSuspected:
		// Recorded for operator visibility; never changes State (spec §4.1
		// "recorded as StaleEvent and ignored for state purposes", §4.5
		// "raise a reconciliation flag ... the engine must never silently
		// lose funds").
		return p, nil

	default:
		return p, fmt.Errorf("unknown event kind %q", e.Kind)
	}
}
