package yield

import (
	"context"
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
	return adapter.AllocateResult{Outcome: adapter.OutcomeOK, PositionRef: "pos-1"}
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

func newTestSvc(t *testing.T) *paymentsvc.Service {
	t.Helper()
	registry := adapter.NewRegistry()
	registry.Register(&stubStrategy{id: "tbill-a"}, resilience.DefaultConfig(), resilience.DefaultRetryConfig(), nil)
	cfg := &config.EngineConfig{
		MaxStaleInterval:   10 * time.Minute,
		AbandonmentHorizon: 24 * time.Hour,
		DistributionPolicy: config.DistributionPolicy{UserPct: 70, MerchantPct: 20},
		CommandQueueDepth:  1024,
	}
	return paymentsvc.New(memory.New(), registry, chainclient.Noop{}, chainclient.Noop{}, compliance.AllowAll{}, cfg, nil)
}

func TestLoop_StartTickStop(t *testing.T) {
	svc := newTestSvc(t)
	l := New(svc, 2*time.Millisecond, nil)
	if l.Name() != "yield-accrual-loop" {
		t.Fatalf("unexpected name %q", l.Name())
	}

	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := l.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
