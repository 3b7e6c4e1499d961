// Package chainclient names the on-chain escrow and bridge collaborator the
// engine consumes (spec §6 "Escrow contract (consumed)"). The smart
// contracts themselves are out of scope; only the interface the engine
// calls against is defined here.
package chainclient

import (
	"context"
	"errors"
)

// DepositResult is the outcome of an escrow deposit request.
type DepositResult struct {
	EscrowRef string
	Err       error
}

// ReleaseResult is the outcome of an escrow release request.
type ReleaseResult struct {
	TxRef string
	Err   error
}

// RefundResult is the outcome of an escrow refund request.
type RefundResult struct {
	TxRef string
	Err   error
}

// BurnResult is the outcome of a bridge burn-on-source request.
type BurnResult struct {
	BurnTxHash string
	Err        error
}

// MintResult is the outcome of a bridge mint-on-destination request.
type MintResult struct {
	TxRef string
	Err   error
}

// Client is the escrow contract and bridge chain surface the engine
// consumes (spec §6, §4.5). Every method takes a deadline via ctx and an
// externalOpID the implementation must be prepared to deduplicate on.
type Client interface {
	Deposit(ctx context.Context, externalOpID, user, merchant, chain string, amount string, strategyTag string) DepositResult
	Release(ctx context.Context, externalOpID, escrowRef string, userAmt, merchantAmt, protocolAmt string) ReleaseResult
	Refund(ctx context.Context, externalOpID, escrowRef string) RefundResult

	BurnOnSource(ctx context.Context, externalOpID, escrowRef, destinationChain string) BurnResult
	MintOnDestination(ctx context.Context, externalOpID, burnTxHash, destinationChain string) MintResult
}

// AttestationResult is the outcome of a GetAttestation poll (spec §6
// "Bridge attestation service (consumed)").
type AttestationResult struct {
	Ready     bool
	Signature string
	Err       error
}

// AttestationClient polls the bridge's validator network for consensus on a
// burn transaction.
type AttestationClient interface {
	GetAttestation(ctx context.Context, burnTxHash string) AttestationResult
}

// errNotConfigured is returned by Noop, the placeholder wired in when an
// operator has not yet supplied a real chain integration.
var errNotConfigured = errors.New("chainclient: no chain integration configured")

// Noop is a safe default Client and AttestationClient that rejects every
// call. It lets cmd/engine start and serve queries against existing
// ledger state before a real on-chain integration is wired in.
type Noop struct{}

func (Noop) Deposit(context.Context, string, string, string, string, string, string) DepositResult {
	return DepositResult{Err: errNotConfigured}
}

func (Noop) Release(context.Context, string, string, string, string, string) ReleaseResult {
	return ReleaseResult{Err: errNotConfigured}
}

func (Noop) Refund(context.Context, string, string) RefundResult {
	return RefundResult{Err: errNotConfigured}
}

func (Noop) BurnOnSource(context.Context, string, string, string) BurnResult {
	return BurnResult{Err: errNotConfigured}
}

func (Noop) MintOnDestination(context.Context, string, string, string) MintResult {
	return MintResult{Err: errNotConfigured}
}

func (Noop) GetAttestation(context.Context, string) AttestationResult {
	return AttestationResult{Err: errNotConfigured}
}
