package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yieldrails/engine/internal/chainclient"
	"github.com/yieldrails/engine/internal/compliance"
	"github.com/yieldrails/engine/internal/config"
	"github.com/yieldrails/engine/internal/domain/money"
	"github.com/yieldrails/engine/internal/engine/adapter"
	"github.com/yieldrails/engine/internal/engine/paymentsvc"
	"github.com/yieldrails/engine/internal/resilience"
	"github.com/yieldrails/engine/internal/storage/memory"
)

type stubStrategy struct{ id string }

func (s *stubStrategy) StrategyID() string { return s.id }
func (s *stubStrategy) Allocate(ctx context.Context, externalOpID, paymentID string, amount money.Amount) adapter.AllocateResult {
	return adapter.AllocateResult{Outcome: adapter.OutcomeOK}
}
func (s *stubStrategy) Withdraw(ctx context.Context, externalOpID, positionRef string, amount money.Amount) adapter.WithdrawResult {
	return adapter.WithdrawResult{Outcome: adapter.OutcomeOK}
}
func (s *stubStrategy) CurrentAPY(ctx context.Context, externalOpID string) adapter.APYResult {
	return adapter.APYResult{Outcome: adapter.OutcomeOK, ApyBps: 500}
}
func (s *stubStrategy) Health(ctx context.Context, externalOpID string) adapter.HealthResult {
	return adapter.HealthResult{Outcome: adapter.OutcomeOK, Healthy: true}
}

// stubChain is a Client and AttestationClient that succeeds every call, so
// CreatePayment can escrow and activate a payment in these tests.
type stubChain struct{}

func (stubChain) Deposit(ctx context.Context, externalOpID, user, merchant, chain, amount, strategyTag string) chainclient.DepositResult {
	return chainclient.DepositResult{EscrowRef: "escrow-" + externalOpID}
}
func (stubChain) Release(ctx context.Context, externalOpID, escrowRef string, userAmt, merchantAmt, protocolAmt string) chainclient.ReleaseResult {
	return chainclient.ReleaseResult{TxRef: "tx-" + externalOpID}
}
func (stubChain) Refund(ctx context.Context, externalOpID, escrowRef string) chainclient.RefundResult {
	return chainclient.RefundResult{TxRef: "refund-" + externalOpID}
}
func (stubChain) BurnOnSource(ctx context.Context, externalOpID, escrowRef, destinationChain string) chainclient.BurnResult {
	return chainclient.BurnResult{BurnTxHash: "burn-" + externalOpID}
}
func (stubChain) MintOnDestination(ctx context.Context, externalOpID, burnTxHash, destinationChain string) chainclient.MintResult {
	return chainclient.MintResult{TxRef: "mint-" + externalOpID}
}
func (stubChain) GetAttestation(ctx context.Context, burnTxHash string) chainclient.AttestationResult {
	return chainclient.AttestationResult{Ready: true, Signature: "sig-" + burnTxHash}
}

func newTestServer(t *testing.T) (http.Handler, *paymentsvc.Service) {
	t.Helper()
	registry := adapter.NewRegistry()
	registry.Register(&stubStrategy{id: "tbill-a"}, resilience.DefaultConfig(), resilience.DefaultRetryConfig(), nil)
	cfg := &config.EngineConfig{
		MaxStaleInterval:   10 * time.Minute,
		AbandonmentHorizon: time.Hour,
		DistributionPolicy: config.DistributionPolicy{UserPct: 70, MerchantPct: 20},
		CommandQueueDepth:  1024,
	}
	svc := paymentsvc.New(memory.New(), registry, stubChain{}, stubChain{}, compliance.AllowAll{}, cfg, nil)
	return New(svc, nil), svc
}

func TestHandleHealthz(t *testing.T) {
	h, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleCreatePayment_Success(t *testing.T) {
	h, _ := newTestServer(t)
	body, _ := json.Marshal(createPaymentRequest{
		User: "user-1", Merchant: "merchant-1", Principal: "100.00", Currency: "USDC",
		SourceChain: "ethereum", DestinationChain: "ethereum", StrategyID: "tbill-a",
		ClientToken: "token-1",
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/", bytes.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["paymentId"] == "" {
		t.Fatalf("expected a paymentId in the response")
	}
}

func TestHandleCreatePayment_InvalidPrincipalReturnsBadRequest(t *testing.T) {
	h, _ := newTestServer(t)
	body, _ := json.Marshal(createPaymentRequest{
		User: "user-1", Merchant: "merchant-1", Principal: "not-a-number", Currency: "USDC",
		SourceChain: "ethereum", DestinationChain: "ethereum", StrategyID: "tbill-a",
		ClientToken: "token-1",
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/", bytes.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetPayment_UnknownIDReturnsBadRequest(t *testing.T) {
	h, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/does-not-exist", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 (invalid_parameters classification for not-found), got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleReleasePayment_UnauthorizedCallerReturnsForbidden(t *testing.T) {
	h, svc := newTestServer(t)
	principal, _ := money.FromDecimalString("100.00")
	id, err := svc.CreatePayment(context.Background(), paymentsvc.CreatePaymentInput{
		User: "user-1", Merchant: "merchant-1", Principal: principal, Currency: "USDC",
		SourceChain: "ethereum", DestinationChain: "ethereum", StrategyID: "tbill-a",
		ClientToken: "token-1",
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	body, _ := json.Marshal(releaseRequest{Caller: "not-the-merchant"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/payments/"+id+"/release", bytes.NewReader(body)))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleListPayments_FiltersByState(t *testing.T) {
	h, svc := newTestServer(t)
	principal, _ := money.FromDecimalString("50.00")
	if _, err := svc.CreatePayment(context.Background(), paymentsvc.CreatePaymentInput{
		User: "user-1", Merchant: "merchant-1", Principal: principal, Currency: "USDC",
		SourceChain: "ethereum", DestinationChain: "ethereum", StrategyID: "tbill-a",
		ClientToken: "token-1",
	}); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/payments/?state=Active", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var page paymentsvc.ListPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Payments) != 1 {
		t.Fatalf("expected 1 active payment, got %d", len(page.Payments))
	}
}

func TestHandleStrategyHealth_UnknownStrategyReturnsNotFound(t *testing.T) {
	h, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/strategies/nope/health", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
