package paymentsvc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yieldrails/engine/internal/domain/ledger"
	"github.com/yieldrails/engine/internal/domain/money"
	"github.com/yieldrails/engine/internal/domain/payment"
)

func mustMoney(t *testing.T, decimal string) money.Amount {
	t.Helper()
	m, err := money.FromDecimalString(decimal)
	if err != nil {
		t.Fatalf("parse amount %q: %v", decimal, err)
	}
	return m
}

func TestProbeAllStrategies_DoesNotPanicAndUpdatesHealth(t *testing.T) {
	svc := newTestService(t, nil)
	svc.ProbeAllStrategies(context.Background())

	snap, err := svc.GetStrategyHealth(context.Background(), "tbill-a")
	if err != nil {
		t.Fatalf("GetStrategyHealth: %v", err)
	}
	if !snap.LastHealthy {
		t.Fatalf("expected the probed strategy to report healthy")
	}
}

func TestSweepAbandoned_PendingPaymentFailsWithoutRefund(t *testing.T) {
	svc := newTestService(t, nil)
	svc.cfg.AbandonmentHorizon = time.Millisecond

	id := "pending-only-1"
	principal := mustMoney(t, "100.00")
	ev := ledger.Event{
		PaymentID: id,
		Kind:      ledger.KindAdmitted,
		At:        time.Now().UTC().Add(-time.Hour),
		Payload: ledger.Payload{
			User: "user-3", Merchant: "merchant-3", Principal: principal, Currency: "USDC",
			SourceChain: "ethereum", DestinationChain: "ethereum", StrategyID: "tbill-a",
		},
	}
	if err := svc.store.Append(context.Background(), 0, ev); err != nil {
		t.Fatalf("append Admitted: %v", err)
	}

	swept, err := svc.SweepAbandoned(context.Background())
	if err != nil {
		t.Fatalf("SweepAbandoned: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 payment swept, got %d", swept)
	}

	view, err := svc.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if view.Payment.State != payment.StateFailed {
		t.Fatalf("expected Failed, got %s", view.Payment.State)
	}
}

func TestSweepAbandoned_ActivePaymentWithEscrowIsRefunded(t *testing.T) {
	svc := newTestService(t, nil)
	id := createActivePayment(t, svc, "token-1")
	svc.cfg.AbandonmentHorizon = time.Millisecond
	time.Sleep(5 * time.Millisecond)

	swept, err := svc.SweepAbandoned(context.Background())
	if err != nil {
		t.Fatalf("SweepAbandoned: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 payment swept, got %d", swept)
	}

	view, err := svc.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if view.Payment.State != payment.StateRefunded {
		t.Fatalf("expected Refunded, got %s", view.Payment.State)
	}
}

func TestSweepAbandoned_RefundFailureLeavesPaymentFailed(t *testing.T) {
	chain := &stubChain{refundErr: errors.New("refund exhausted retries")}
	svc := newTestService(t, chain)
	id := createActivePayment(t, svc, "token-1")
	svc.cfg.AbandonmentHorizon = time.Millisecond
	time.Sleep(5 * time.Millisecond)

	if _, err := svc.SweepAbandoned(context.Background()); err != nil {
		t.Fatalf("SweepAbandoned: %v", err)
	}

	view, err := svc.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if view.Payment.State != payment.StateFailed {
		t.Fatalf("expected Failed after refund failure, got %s", view.Payment.State)
	}
}

func TestSweepAbandoned_FreshPaymentIsNotSwept(t *testing.T) {
	svc := newTestService(t, nil)
	id := createActivePayment(t, svc, "token-1")

	swept, err := svc.SweepAbandoned(context.Background())
	if err != nil {
		t.Fatalf("SweepAbandoned: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected no payments swept before the horizon elapses, got %d", swept)
	}
	view, err := svc.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if view.Payment.State != payment.StateActive {
		t.Fatalf("expected Active, got %s", view.Payment.State)
	}
}

func TestAdvanceBridge_ProgressesBurnAttestDeliver(t *testing.T) {
	chain := &stubChain{}
	svc := newTestService(t, chain)
	id := createBridgingPayment(t, svc, "token-1")

	if err := svc.AdvanceBridge(context.Background(), id); err != nil {
		t.Fatalf("initiate step: %v", err)
	}
	view, err := svc.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if view.Payment.State != payment.StateBridging {
		t.Fatalf("expected still Bridging after burn, got %s", view.Payment.State)
	}

	// Not yet attested: no-op.
	if err := svc.AdvanceBridge(context.Background(), id); err != nil {
		t.Fatalf("poll step (not ready): %v", err)
	}

	chain.attestReady = true
	if err := svc.AdvanceBridge(context.Background(), id); err != nil {
		t.Fatalf("poll step (ready): %v", err)
	}

	if err := svc.AdvanceBridge(context.Background(), id); err != nil {
		t.Fatalf("deliver step: %v", err)
	}

	view, err = svc.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if view.Payment.State != payment.StateActive {
		t.Fatalf("expected Active once delivered, got %s", view.Payment.State)
	}
	if view.Payment.SourceChain != "polygon" {
		t.Fatalf("expected source chain to become the destination chain, got %s", view.Payment.SourceChain)
	}
}

func TestAdvanceBridge_AttestationDeadlineRefundsOnSource(t *testing.T) {
	chain := &stubChain{}
	svc := newTestService(t, chain)
	id := createBridgingPayment(t, svc, "token-1")
	svc.cfg.BridgeAttestDeadline = time.Millisecond

	if err := svc.AdvanceBridge(context.Background(), id); err != nil {
		t.Fatalf("initiate step: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if err := svc.AdvanceBridge(context.Background(), id); err != nil {
		t.Fatalf("deadline step: %v", err)
	}

	view, err := svc.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if view.Payment.State != payment.StateRefunded {
		t.Fatalf("expected Refunded after attestation deadline, got %s", view.Payment.State)
	}
}

func TestReportDoubleSpend_RecordsReconciliationFlag(t *testing.T) {
	svc := newTestService(t, nil)
	id := createActivePayment(t, svc, "token-1")

	if err := svc.ReportDoubleSpend(context.Background(), id, "refund and delivery both observed"); err != nil {
		t.Fatalf("ReportDoubleSpend: %v", err)
	}
	// A DoubleSpendSuspected event never changes state, so the payment must
	// still be usable afterward.
	view, err := svc.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment after double-spend flag: %v", err)
	}
	if view.Payment.State != payment.StateActive {
		t.Fatalf("expected State unchanged (Active), got %s", view.Payment.State)
	}
}

func TestPollSettlements_ConfirmsReleasedPayments(t *testing.T) {
	svc := newTestService(t, nil)
	id := createActivePayment(t, svc, "token-1")
	if err := svc.ReleasePayment(context.Background(), id, "merchant-1", "release-1"); err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}

	confirmed, err := svc.PollSettlements(context.Background(), func(ctx context.Context, txRef string) (bool, error) {
		return true, nil
	})
	if err != nil {
		t.Fatalf("PollSettlements: %v", err)
	}
	if confirmed != 1 {
		t.Fatalf("expected 1 payment confirmed, got %d", confirmed)
	}

	view, err := svc.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if view.Payment.State != payment.StateCompleted {
		t.Fatalf("expected Completed, got %s", view.Payment.State)
	}
}

func TestPollSettlements_LeavesUnconfirmedPaymentsReleased(t *testing.T) {
	svc := newTestService(t, nil)
	id := createActivePayment(t, svc, "token-1")
	if err := svc.ReleasePayment(context.Background(), id, "merchant-1", "release-1"); err != nil {
		t.Fatalf("ReleasePayment: %v", err)
	}

	confirmed, err := svc.PollSettlements(context.Background(), func(ctx context.Context, txRef string) (bool, error) {
		return false, nil
	})
	if err != nil {
		t.Fatalf("PollSettlements: %v", err)
	}
	if confirmed != 0 {
		t.Fatalf("expected no payments confirmed, got %d", confirmed)
	}

	view, err := svc.GetPayment(context.Background(), id)
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if view.Payment.State != payment.StateReleased {
		t.Fatalf("expected Released, got %s", view.Payment.State)
	}
}
