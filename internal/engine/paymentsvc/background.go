package paymentsvc

import (
	"context"
	"time"

	"github.com/yieldrails/engine/internal/domain/ledger"
	"github.com/yieldrails/engine/internal/domain/money"
	"github.com/yieldrails/engine/internal/domain/payment"
	"github.com/yieldrails/engine/internal/engine/adapter"
)

// ActivePaymentIDs returns every payment currently in Active or Bridging
// state, the set the yield accrual loop must snapshot (spec §4.2).
func (s *Service) ActivePaymentIDs(ctx context.Context) ([]string, error) {
	ids, err := s.store.ListPaymentIDs(ctx)
	if err != nil {
		return nil, err
	}
	var active []string
	for _, id := range ids {
		view, err := s.GetPayment(ctx, id)
		if err != nil {
			continue
		}
		if view.Payment.State == payment.StateActive || view.Payment.State == payment.StateBridging {
			active = append(active, id)
		}
	}
	return active, nil
}

// SnapshotPayment records a YieldSnapshot for paymentID, consulting its
// strategy adapter for the current APY and falling back to the last known
// healthy rate when the adapter reports unhealthy or transient failure
// (spec §4.2).
func (s *Service) SnapshotPayment(ctx context.Context, paymentID string) error {
	lock := s.lockFor(paymentID)
	lock.Lock()
	defer lock.Unlock()

	p, _, err := s.loadLocked(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.State != payment.StateActive && p.State != payment.StateBridging {
		return nil
	}

	strategy, err := s.registry.Get(p.StrategyID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	opID := externalOpID(paymentID, p.Seq)
	apyRes := strategy.CurrentAPY(ctx, opID)

	apyBps := p.LastApyBps
	stale := true
	if apyRes.Outcome == adapter.OutcomeOK {
		apyBps = apyRes.ApyBps
		stale = apyRes.Err != nil // cached-fallback success still carries a staleness warning
	}

	elapsed := int64(0)
	if !p.LastSnapshotAt.IsZero() && now.After(p.LastSnapshotAt) {
		elapsed = int64(now.Sub(p.LastSnapshotAt).Seconds())
	}
	delta := money.AccrueDelta(p.Principal, apyBps, elapsed)
	newAccrued := p.AccruedYield.Add(delta)

	ev := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindYieldSnapshot,
		At:        now,
		Payload:   ledger.Payload{ApyBps: apyBps, Stale: stale, AccruedYield: newAccrued},
	}
	if err := s.appendLocked(ctx, p.Seq, ev); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordYieldAccrued(p.Currency, float64(delta.Micros()))
	}
	return nil
}

// ProbeAllStrategies runs a health probe against every registered adapter
// (spec §4.4 "a background health loop probes every adapter every
// healthInterval"). Probe failures are advisory and never block a
// state-machine transition.
func (s *Service) ProbeAllStrategies(ctx context.Context) {
	for _, id := range s.registry.StrategyIDs() {
		a, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		opID := externalOpID("health-probe", time.Now().UnixNano())
		a.Health(ctx, opID)
		if s.metrics != nil {
			s.metrics.SetBreakerState(id, a.BreakerState().String())
		}
	}
}

// SweepAbandoned force-fails every Pending, Active or Bridging payment
// whose activation time (or creation time, if never activated) is older
// than the configured abandonment horizon, attempting a refund (spec §3
// "Lifecycle"). Releasing and Released payments are not swept.
func (s *Service) SweepAbandoned(ctx context.Context) (int, error) {
	ids, err := s.store.ListPaymentIDs(ctx)
	if err != nil {
		return 0, err
	}
	horizon := s.cfg.AbandonmentHorizon
	now := time.Now().UTC()
	swept := 0
	for _, id := range ids {
		if s.sweepOne(ctx, id, now, horizon) {
			swept++
		}
	}
	if s.metrics != nil {
		s.metrics.RecordAbandoned(swept)
	}
	return swept, nil
}

func (s *Service) sweepOne(ctx context.Context, paymentID string, now time.Time, horizon time.Duration) bool {
	lock := s.lockFor(paymentID)
	lock.Lock()
	defer lock.Unlock()

	p, _, err := s.loadLocked(ctx, paymentID)
	if err != nil || p.State.Terminal() {
		return false
	}
	if p.State != payment.StatePending && p.State != payment.StateActive && p.State != payment.StateBridging {
		// Releasing/Released payments are already progressing toward
		// settlement; the abandonment sweep only reclaims payments that
		// never moved past admission or have sat idle mid-lifecycle.
		return false
	}
	referenceAt := p.CreatedAt
	if !p.ActivatedAt.IsZero() {
		referenceAt = p.ActivatedAt
	}
	if referenceAt.IsZero() || now.Sub(referenceAt) < horizon {
		return false
	}

	hadEscrow := p.EscrowRef != ""
	ev := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindFailed,
		At:        now,
		Payload:   ledger.Payload{Reason: "abandonment horizon elapsed"},
	}
	if err := s.appendLocked(ctx, p.Seq, ev); err != nil {
		return false
	}
	p.Seq++

	if !hadEscrow {
		return true
	}

	opID := externalOpID(paymentID, p.Seq)
	reqEv := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindRefundRequested,
		At:        now,
		Payload:   ledger.Payload{ExternalOpID: opID},
	}
	if err := s.appendLocked(ctx, p.Seq, reqEv); err != nil {
		return false
	}
	p.Seq++

	res := s.chain.Refund(ctx, opID, p.EscrowRef)
	kind := ledger.KindRefundConfirmed
	reason := "abandonment horizon elapsed"
	if res.Err != nil {
		kind = ledger.KindFailed
		reason = "refund exhausted: " + res.Err.Error()
	}
	finalEv := ledger.Event{
		PaymentID: paymentID,
		Kind:      kind,
		At:        now,
		Payload:   ledger.Payload{TxRef: res.TxRef, Reason: reason},
	}
	_ = s.appendLocked(ctx, p.Seq, finalEv)
	return true
}

// AdvanceBridge runs one polling step of the cross-chain coordinator for a
// Bridging payment (spec §4.5): it checks whether the burn has been
// attested and, once attested, submits the destination mint.
func (s *Service) AdvanceBridge(ctx context.Context, paymentID string) error {
	lock := s.lockFor(paymentID)
	lock.Lock()
	defer lock.Unlock()

	p, events, err := s.loadLocked(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.State != payment.StateBridging {
		return nil
	}

	initiatedAt, attestedAt, burnTxHash, attested := bridgeProgress(events)
	now := time.Now().UTC()

	if burnTxHash == "" {
		return s.initiateBridge(ctx, &p, now)
	}
	if now.Sub(initiatedAt) > s.cfg.BridgeAttestDeadline && !attested {
		return s.failBridge(ctx, &p, now, "attestation deadline exceeded")
	}
	if !attested {
		return s.pollAttestation(ctx, &p, burnTxHash, now)
	}
	if now.Sub(attestedAt) > s.cfg.BridgeDeliverDeadline {
		return s.failBridge(ctx, &p, now, "destination delivery deadline exceeded")
	}
	return s.deliverBridge(ctx, &p, now)
}

func bridgeProgress(events []ledger.Event) (initiatedAt, attestedAt time.Time, burnTxHash string, attested bool) {
	for _, e := range events {
		switch e.Kind {
		case ledger.KindBridgeInitiated:
			initiatedAt = e.At
			burnTxHash = e.Payload.BridgeRef
		case ledger.KindBridgeAttested:
			attested = true
			attestedAt = e.At
		}
	}
	return
}

func (s *Service) initiateBridge(ctx context.Context, p *payment.Payment, now time.Time) error {
	opID := externalOpID(p.ID, p.Seq)
	res := s.chain.BurnOnSource(ctx, opID, p.EscrowRef, p.DestinationChain)
	if res.Err != nil {
		s.recordBridgeStep("burn", "error")
		return s.failBridge(ctx, p, now, "burn on source failed: "+res.Err.Error())
	}
	ev := ledger.Event{
		PaymentID: p.ID,
		Kind:      ledger.KindBridgeInitiated,
		At:        now,
		Payload:   ledger.Payload{BridgeRef: res.BurnTxHash, ExternalOpID: opID},
	}
	if err := s.appendLocked(ctx, p.Seq, ev); err != nil {
		return err
	}
	s.recordBridgeStep("burn", "ok")
	return nil
}

func (s *Service) recordBridgeStep(step, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordBridgeStep(step, outcome)
	}
}

func (s *Service) pollAttestation(ctx context.Context, p *payment.Payment, burnTxHash string, now time.Time) error {
	res := s.attest.GetAttestation(ctx, burnTxHash)
	if res.Err != nil || !res.Ready {
		return nil
	}
	ev := ledger.Event{
		PaymentID: p.ID,
		Kind:      ledger.KindBridgeAttested,
		At:        now,
		Payload:   ledger.Payload{BridgeRef: burnTxHash, AttestationSig: res.Signature},
	}
	if err := s.appendLocked(ctx, p.Seq, ev); err != nil {
		return err
	}
	s.recordBridgeStep("attest", "ok")
	return nil
}

func (s *Service) deliverBridge(ctx context.Context, p *payment.Payment, now time.Time) error {
	opID := externalOpID(p.ID, p.Seq)
	res := s.chain.MintOnDestination(ctx, opID, p.BridgeRef, p.DestinationChain)
	if res.Err != nil {
		s.recordBridgeStep("deliver", "error")
		return s.failBridge(ctx, p, now, "mint on destination failed: "+res.Err.Error())
	}
	ev := ledger.Event{
		PaymentID: p.ID,
		Kind:      ledger.KindBridgeDelivered,
		At:        now,
		Payload:   ledger.Payload{BridgeRef: p.BridgeRef, ExternalOpID: opID},
	}
	if err := s.appendLocked(ctx, p.Seq, ev); err != nil {
		return err
	}
	s.recordBridgeStep("deliver", "ok")
	return nil
}

// failBridge transitions a stuck bridge payment into Failing, submits a
// source-chain refund, records RefundRequested, and records RefundConfirmed
// only when the refund call succeeded. It does not check for, or react to,
// a destination delivery that lands after the refund was submitted; that
// case is recorded only when ReportDoubleSpend is called.
func (s *Service) failBridge(ctx context.Context, p *payment.Payment, now time.Time, reason string) error {
	ev := ledger.Event{
		PaymentID: p.ID,
		Kind:      ledger.KindFailed,
		At:        now,
		Payload:   ledger.Payload{Reason: reason},
	}
	if err := s.appendLocked(ctx, p.Seq, ev); err != nil {
		return err
	}
	p.Seq++

	opID := externalOpID(p.ID, p.Seq)
	res := s.chain.Refund(ctx, opID, p.EscrowRef)
	refundEv := ledger.Event{
		PaymentID: p.ID,
		Kind:      ledger.KindRefundRequested,
		At:        now,
		Payload:   ledger.Payload{TxRef: res.TxRef},
	}
	if err := s.appendLocked(ctx, p.Seq, refundEv); err != nil {
		return err
	}
	p.Seq++
	if res.Err != nil {
		return nil
	}
	confirmEv := ledger.Event{
		PaymentID: p.ID,
		Kind:      ledger.KindRefundConfirmed,
		At:        now,
		Payload:   ledger.Payload{TxRef: res.TxRef, Reason: reason},
	}
	return s.appendLocked(ctx, p.Seq, confirmEv)
}

// ReportDoubleSpend raises an operator-visible reconciliation flag when
// destination delivery arrives after a refund has already been submitted
// (spec §4.5 "record both events and raise a reconciliation flag").
func (s *Service) ReportDoubleSpend(ctx context.Context, paymentID, reason string) error {
	lock := s.lockFor(paymentID)
	lock.Lock()
	defer lock.Unlock()

	p, _, err := s.loadLocked(ctx, paymentID)
	if err != nil {
		return err
	}
	ev := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindDoubleSpendSuspected,
		At:        time.Now().UTC(),
		Payload:   ledger.Payload{Reason: reason},
	}
	if err := s.appendLocked(ctx, p.Seq, ev); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordDoubleSpendSuspected()
	}
	return nil
}

// PollSettlements confirms Released payments whose settlement transaction
// has finalized on-chain, transitioning them to Completed (spec §4.1).
// Grounded on the same "submitted -> poll -> confirmed" pattern the escrow
// release flow uses.
func (s *Service) PollSettlements(ctx context.Context, confirm func(ctx context.Context, txRef string) (bool, error)) (int, error) {
	ids, err := s.store.ListPaymentIDs(ctx)
	if err != nil {
		return 0, err
	}
	confirmed := 0
	for _, id := range ids {
		if s.pollOneSettlement(ctx, id, confirm) {
			confirmed++
		}
	}
	return confirmed, nil
}

func (s *Service) pollOneSettlement(ctx context.Context, paymentID string, confirm func(ctx context.Context, txRef string) (bool, error)) bool {
	lock := s.lockFor(paymentID)
	lock.Lock()
	defer lock.Unlock()

	p, events, err := s.loadLocked(ctx, paymentID)
	if err != nil || p.State != payment.StateReleased {
		return false
	}
	txRef := lastSettlementTxRef(events)
	if txRef == "" {
		return false
	}
	ok, err := confirm(ctx, txRef)
	if err != nil || !ok {
		return false
	}
	ev := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindSettlementConfirmed,
		At:        time.Now().UTC(),
		Payload:   ledger.Payload{TxRef: txRef},
	}
	if err := s.appendLocked(ctx, p.Seq, ev); err != nil {
		return false
	}
	if s.metrics != nil {
		s.metrics.RecordSettlement("confirmed")
	}
	return true
}

func lastSettlementTxRef(events []ledger.Event) string {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Kind == ledger.KindSettlementSubmitted {
			return events[i].Payload.TxRef
		}
	}
	return ""
}
