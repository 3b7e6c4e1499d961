package chainclient

import (
	"context"
	"testing"
)

func TestNoop_EveryMethodReportsNotConfigured(t *testing.T) {
	var c Client = Noop{}
	var a AttestationClient = Noop{}
	ctx := context.Background()

	if res := c.Deposit(ctx, "op-1", "user", "merchant", "ethereum", "10.00", "tbill-a"); res.Err == nil {
		t.Fatalf("expected Deposit to report not-configured")
	}
	if res := c.Release(ctx, "op-1", "escrow-1", "1", "2", "3"); res.Err == nil {
		t.Fatalf("expected Release to report not-configured")
	}
	if res := c.Refund(ctx, "op-1", "escrow-1"); res.Err == nil {
		t.Fatalf("expected Refund to report not-configured")
	}
	if res := c.BurnOnSource(ctx, "op-1", "escrow-1", "polygon"); res.Err == nil {
		t.Fatalf("expected BurnOnSource to report not-configured")
	}
	if res := c.MintOnDestination(ctx, "op-1", "burn-1", "polygon"); res.Err == nil {
		t.Fatalf("expected MintOnDestination to report not-configured")
	}
	if res := a.GetAttestation(ctx, "burn-1"); res.Err == nil {
		t.Fatalf("expected GetAttestation to report not-configured")
	}
}
