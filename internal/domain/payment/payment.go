package payment

import (
	"time"

	"github.com/yieldrails/engine/internal/domain/money"
)

// Distribution is the frozen three-way split of accrued yield recorded at
// release (spec §4.2). It is present only once a Payment reaches Released
// or Completed.
type Distribution struct {
	UserYield     money.Amount
	MerchantYield money.Amount
	ProtocolYield money.Amount
}

// Sum returns the three shares added back together, which must equal the
// accruedYield frozen at release (spec §3 invariant).
func (d Distribution) Sum() money.Amount {
	return d.UserYield.Add(d.MerchantYield).Add(d.ProtocolYield)
}

// Payment is the primary aggregate (spec §3). It is mutated only by
// replaying its ledger.Event stream through Fold; there is no external
// writer.
type Payment struct {
	ID     string
	User   string
	Merchant string

	Principal money.Amount
	Currency  string

	SourceChain      string
	DestinationChain string

	StrategyID string

	State State

	CreatedAt    time.Time
	ActivatedAt  time.Time
	ReleasedAt   time.Time
	TerminatedAt time.Time

	AccruedYield money.Amount

	Distribution *Distribution

	EscrowRef string
	BridgeRef string

	LastSnapshotAt time.Time
	LastApyBps     int64
	LastApyStale   bool

	FailureReason string

	// ClientTokens records accepted (commandKind, clientToken) pairs for
	// idempotency (spec §4.1 "Commands are idempotent").
	ClientTokens map[string]bool

	// Seq is the highest event sequence number folded into this
	// projection; the next appended event must carry Seq+1.
	Seq int64
}

// IsCrossChain reports whether this payment moves between two distinct
// chains and therefore routes through the bridge coordinator (spec §4.5).
func (p Payment) IsCrossChain() bool {
	return p.SourceChain != "" && p.DestinationChain != "" && p.SourceChain != p.DestinationChain
}

// PrincipalInvariantHolds checks the invariant that principal > 0 whenever the
// payment is in one of the principal-bearing states (spec §3 invariant).
func (p Payment) PrincipalInvariantHolds() bool {
	switch p.State {
	case StateActive, StateReleasing, StateReleased, StateBridging, StateCompleted:
		return p.Principal.IsPositive()
	default:
		return true
	}
}
