package paymentsvc

import (
	"context"
	"testing"
	"time"

	"github.com/yieldrails/engine/internal/chainclient"
	"github.com/yieldrails/engine/internal/compliance"
	"github.com/yieldrails/engine/internal/config"
	"github.com/yieldrails/engine/internal/domain/money"
	"github.com/yieldrails/engine/internal/engine/adapter"
	"github.com/yieldrails/engine/internal/resilience"
	"github.com/yieldrails/engine/internal/storage/memory"
)

// stubStrategy is a deterministic StrategyAdapter used across paymentsvc
// tests; every method returns OK unless a test overrides a field.
type stubStrategy struct {
	id     string
	apyBps int64
}

func (s *stubStrategy) StrategyID() string { return s.id }

func (s *stubStrategy) Allocate(ctx context.Context, externalOpID, paymentID string, amount money.Amount) adapter.AllocateResult {
	return adapter.AllocateResult{Outcome: adapter.OutcomeOK, PositionRef: "pos-" + paymentID}
}

func (s *stubStrategy) Withdraw(ctx context.Context, externalOpID, positionRef string, amount money.Amount) adapter.WithdrawResult {
	return adapter.WithdrawResult{Outcome: adapter.OutcomeOK, TxRef: "wd-" + positionRef, Amount: amount}
}

func (s *stubStrategy) CurrentAPY(ctx context.Context, externalOpID string) adapter.APYResult {
	return adapter.APYResult{Outcome: adapter.OutcomeOK, ApyBps: s.apyBps}
}

func (s *stubStrategy) Health(ctx context.Context, externalOpID string) adapter.HealthResult {
	return adapter.HealthResult{Outcome: adapter.OutcomeOK, Healthy: true}
}

// stubChain is a scriptable chainclient.Client/AttestationClient used to
// drive the admission, release, bridge, and abandonment flows without a
// real on-chain integration.
type stubChain struct {
	depositErr error
	releaseErr error
	refundErr  error
	burnErr    error
	mintErr    error

	attestReady bool
	attestErr   error
}

func (c *stubChain) Deposit(ctx context.Context, externalOpID, user, merchant, chain, amount, strategyTag string) chainclient.DepositResult {
	return chainclient.DepositResult{EscrowRef: "escrow-" + externalOpID, Err: c.depositErr}
}

func (c *stubChain) Release(ctx context.Context, externalOpID, escrowRef string, userAmt, merchantAmt, protocolAmt string) chainclient.ReleaseResult {
	return chainclient.ReleaseResult{TxRef: "tx-" + externalOpID, Err: c.releaseErr}
}

func (c *stubChain) Refund(ctx context.Context, externalOpID, escrowRef string) chainclient.RefundResult {
	return chainclient.RefundResult{TxRef: "refund-" + externalOpID, Err: c.refundErr}
}

func (c *stubChain) BurnOnSource(ctx context.Context, externalOpID, escrowRef, destinationChain string) chainclient.BurnResult {
	return chainclient.BurnResult{BurnTxHash: "burn-" + externalOpID, Err: c.burnErr}
}

func (c *stubChain) MintOnDestination(ctx context.Context, externalOpID, burnTxHash, destinationChain string) chainclient.MintResult {
	return chainclient.MintResult{TxRef: "mint-" + externalOpID, Err: c.mintErr}
}

func (c *stubChain) GetAttestation(ctx context.Context, burnTxHash string) chainclient.AttestationResult {
	return chainclient.AttestationResult{Ready: c.attestReady, Signature: "sig-" + burnTxHash, Err: c.attestErr}
}

func testConfig() *config.EngineConfig {
	return &config.EngineConfig{
		Env:                config.Testing,
		MaxStaleInterval:   10 * time.Minute,
		AbandonmentHorizon: 24 * time.Hour,
		DistributionPolicy: config.DistributionPolicy{UserPct: 70, MerchantPct: 20},
		BridgeAttestDeadline: 15 * time.Minute,
		BridgeDeliverDeadline: 5 * time.Minute,
		CommandQueueDepth:  1024,
	}
}

// newTestService wires a Service over an in-memory store with a single
// registered strategy ("tbill-a") and a scriptable chain client, ready for
// CreatePayment to drive through admission immediately.
func newTestService(t *testing.T, chain *stubChain) *Service {
	t.Helper()
	registry := adapter.NewRegistry()
	registry.Register(&stubStrategy{id: "tbill-a", apyBps: 500}, resilience.DefaultConfig(), resilience.DefaultRetryConfig(), nil)

	if chain == nil {
		chain = &stubChain{}
	}
	svc := New(memory.New(), registry, chain, chain, compliance.AllowAll{}, testConfig(), nil)
	return svc
}

func createActivePayment(t *testing.T, svc *Service, clientToken string) string {
	t.Helper()
	principal, err := money.FromDecimalString("1000.00")
	if err != nil {
		t.Fatalf("parse principal: %v", err)
	}
	id, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		User:             "user-1",
		Merchant:         "merchant-1",
		Principal:        principal,
		Currency:         "USDC",
		SourceChain:      "ethereum",
		DestinationChain: "ethereum",
		StrategyID:       "tbill-a",
		ClientToken:      clientToken,
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	return id
}

func createBridgingPayment(t *testing.T, svc *Service, clientToken string) string {
	t.Helper()
	principal, err := money.FromDecimalString("500.00")
	if err != nil {
		t.Fatalf("parse principal: %v", err)
	}
	id, err := svc.CreatePayment(context.Background(), CreatePaymentInput{
		User:             "user-2",
		Merchant:         "merchant-2",
		Principal:        principal,
		Currency:         "USDC",
		SourceChain:      "ethereum",
		DestinationChain: "polygon",
		StrategyID:       "tbill-a",
		ClientToken:      clientToken,
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	return id
}
