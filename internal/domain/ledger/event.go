// Package ledger defines the append-only event log that is the source of
// truth for every Payment (spec §3, §4.6). A Payment's current state is the
// deterministic fold of its events.
package ledger

import (
	"time"

	"github.com/yieldrails/engine/internal/domain/money"
)

// Kind discriminates the events recorded against a payment.
type Kind string

const (
	KindAdmitted             Kind = "Admitted"
	KindEscrowDeposited      Kind = "EscrowDeposited"
	KindYieldSnapshot        Kind = "YieldSnapshot"
	KindReleaseRequested     Kind = "ReleaseRequested"
	KindDistributionComputed Kind = "DistributionComputed"
	KindSettlementSubmitted  Kind = "SettlementSubmitted"
	KindSettlementConfirmed  Kind = "SettlementConfirmed"
	KindBridgeInitiated      Kind = "BridgeInitiated"
	KindBridgeAttested       Kind = "BridgeAttested"
	KindBridgeDelivered      Kind = "BridgeDelivered"
	KindRefundRequested      Kind = "RefundRequested"
	KindRefundConfirmed      Kind = "RefundConfirmed"
	KindFailed               Kind = "Failed"
	KindStaleEvent           Kind = "StaleEvent"
	KindDoubleSpendSuspected Kind = "DoubleSpendSuspected"
)

// Event is a single immutable entry in a payment's append-only log.
// (seq, paymentId) is globally unique; seq is a per-payment monotonic
// sequence number starting at 1.
type Event struct {
	Seq       int64
	PaymentID string
	Kind      Kind
	At        time.Time
	Payload   Payload
}

// Payload carries the kind-specific fields folded into the Payment
// projection. Only the fields relevant to Kind are populated; the zero
// value of every other field is ignored by Fold.
type Payload struct {
	// Admitted
	User              string
	Merchant          string
	Principal         money.Amount
	Currency          string
	SourceChain       string
	DestinationChain  string
	StrategyID        string
	ClientToken       string

	// EscrowDeposited
	EscrowRef string

	// YieldSnapshot: AccruedYield is the absolute accrued total as of At,
	// computed by the yield engine and persisted so Fold never needs to
	// re-derive it from wall-clock at replay time.
	ApyBps       int64
	Stale        bool
	AccruedYield money.Amount

	// ReleaseRequested
	ReleaseCaller string

	// DistributionComputed
	UserYield      money.Amount
	MerchantYield  money.Amount
	ProtocolYield  money.Amount

	// SettlementSubmitted / SettlementConfirmed / RefundRequested / RefundConfirmed
	TxRef string

	// BridgeInitiated / BridgeAttested / BridgeDelivered
	BridgeRef       string
	BridgeChain     string
	AttestationSig  string

	// Failed / StaleEvent / DoubleSpendSuspected
	Reason string

	// ExternalOpID correlates an outbound adapter/chain call to the event
	// that produced its request, per spec §4.6.
	ExternalOpID string
}

// StrategySnapshot is the append-only periodic record of an adapter's
// reported APY and health (spec §3). It is owned by the strategy-adapter
// layer and read-only to the accrual engine.
type StrategySnapshot struct {
	StrategyID string
	ObservedAt time.Time
	ApyBps     int64
	Healthy    bool
}
