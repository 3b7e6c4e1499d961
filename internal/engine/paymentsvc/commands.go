package paymentsvc

import (
	"context"
	"time"

	"github.com/yieldrails/engine/internal/domain/ledger"
	"github.com/yieldrails/engine/internal/domain/money"
	"github.com/yieldrails/engine/internal/domain/payment"
	"github.com/yieldrails/engine/internal/engine/adapter"
	"github.com/yieldrails/engine/internal/enginerr"
)

// CreatePaymentInput is the parameter set for CreatePayment (spec §4.7).
type CreatePaymentInput struct {
	User             string
	Merchant         string
	Principal        money.Amount
	Currency         string
	SourceChain      string
	DestinationChain string
	StrategyID       string
	ClientToken      string
}

func (in CreatePaymentInput) validate() error {
	switch {
	case in.User == "" || in.Merchant == "":
		return enginerr.New(enginerr.CodeInvalidParameters, "user and merchant are required")
	case !in.Principal.IsPositive():
		return enginerr.New(enginerr.CodeInvalidParameters, "principal must be positive")
	case in.Currency == "":
		return enginerr.New(enginerr.CodeInvalidParameters, "currency is required")
	case in.SourceChain == "" || in.DestinationChain == "":
		return enginerr.New(enginerr.CodeInvalidParameters, "sourceChain and destinationChain are required")
	case in.StrategyID == "":
		return enginerr.New(enginerr.CodeInvalidParameters, "strategyId is required")
	case in.ClientToken == "":
		return enginerr.New(enginerr.CodeInvalidParameters, "clientToken is required")
	}
	return nil
}

// CreatePayment admits a new payment, screens it, deposits escrow, and
// allocates its principal to the chosen strategy (spec §2, §4.7).
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (string, error) {
	start := time.Now()
	paymentID, err := s.createPayment(ctx, in)
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.RecordCommand("CreatePayment", outcome, time.Since(start))
	}
	return paymentID, err
}

func (s *Service) createPayment(ctx context.Context, in CreatePaymentInput) (string, error) {
	if !s.limiter.Allow() {
		return "", enginerr.New(enginerr.CodeOverloaded, "command queue is at capacity")
	}
	if err := in.validate(); err != nil {
		return "", err
	}

	s.createdMu.Lock()
	if existing, ok := s.createdTokens[in.ClientToken]; ok {
		s.createdMu.Unlock()
		return "", enginerr.New(enginerr.CodeDuplicate, "clientToken already admitted payment %s", existing)
	}
	s.createdMu.Unlock()

	screen := s.compliance.Screen(ctx, in.User, in.Merchant, in.Principal.String(), in.Currency)
	if screen.Err != nil {
		return "", enginerr.Wrap(enginerr.CodeInternal, screen.Err, "compliance screen failed")
	}
	if !screen.Allow {
		return "", enginerr.New(enginerr.CodeComplianceRejected, "compliance screen denied: %s", screen.Reason)
	}

	if _, err := s.registry.Get(in.StrategyID); err != nil {
		return "", err
	}

	paymentID := NewPaymentID()
	lock := s.lockFor(paymentID)
	lock.Lock()
	defer lock.Unlock()

	admitted := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindAdmitted,
		At:        time.Now().UTC(),
		Payload: ledger.Payload{
			User:             in.User,
			Merchant:         in.Merchant,
			Principal:        in.Principal,
			Currency:         in.Currency,
			SourceChain:      in.SourceChain,
			DestinationChain: in.DestinationChain,
			StrategyID:       in.StrategyID,
			ClientToken:      in.ClientToken,
		},
	}
	if err := s.appendLocked(ctx, 0, admitted); err != nil {
		return "", enginerr.Wrap(enginerr.CodeInternal, err, "persist Admitted event")
	}

	s.createdMu.Lock()
	s.createdTokens[in.ClientToken] = paymentID
	s.createdMu.Unlock()

	if err := s.admitDeposit(ctx, paymentID, in); err != nil {
		s.log.WithField("payment_id", paymentID).WithField("error", err).Warn("admission follow-up failed")
		return paymentID, err
	}
	return paymentID, nil
}

// admitDeposit performs the escrow deposit and initial strategy allocation
// that follow admission (spec §2 control flow), recording EscrowDeposited
// on success or Failed on either step's failure. Callers must already hold
// the payment's lock.
func (s *Service) admitDeposit(ctx context.Context, paymentID string, in CreatePaymentInput) error {
	p, _, err := s.loadLocked(ctx, paymentID)
	if err != nil {
		return enginerr.Wrap(enginerr.CodeInternal, err, "reload payment %s", paymentID)
	}
	seq := p.Seq
	opID := externalOpID(paymentID, seq)

	deposit := s.chain.Deposit(ctx, opID, in.User, in.Merchant, in.SourceChain, in.Principal.String(), in.StrategyID)
	if deposit.Err != nil {
		return s.failLocked(ctx, paymentID, seq, "escrow deposit rejected: "+deposit.Err.Error())
	}

	strategy, err := s.registry.Get(in.StrategyID)
	if err != nil {
		return s.failLocked(ctx, paymentID, seq, "strategy no longer registered: "+err.Error())
	}
	alloc := strategy.Allocate(ctx, opID, paymentID, in.Principal)
	if alloc.Outcome != adapter.OutcomeOK {
		reason := "strategy allocation failed"
		if alloc.Err != nil {
			reason += ": " + alloc.Err.Error()
		}
		return s.failLocked(ctx, paymentID, seq, reason)
	}

	ev := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindEscrowDeposited,
		At:        time.Now().UTC(),
		Payload:   ledger.Payload{EscrowRef: deposit.EscrowRef, ExternalOpID: opID},
	}
	return s.appendLocked(ctx, seq, ev)
}

// failLocked appends a Failed event. Callers must hold the payment's lock.
func (s *Service) failLocked(ctx context.Context, paymentID string, seq int64, reason string) error {
	ev := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindFailed,
		At:        time.Now().UTC(),
		Payload:   ledger.Payload{Reason: reason},
	}
	if err := s.appendLocked(ctx, seq, ev); err != nil {
		return enginerr.Wrap(enginerr.CodeInternal, err, "persist Failed event")
	}
	return enginerr.New(enginerr.CodeInternal, "%s", reason)
}

// ReleasePayment accepts a release request from the merchant of record,
// freezes accrued yield, computes the distribution split, and submits
// settlement (spec §4.1, §4.2, §4.7).
func (s *Service) ReleasePayment(ctx context.Context, paymentID, caller, clientToken string) error {
	start := time.Now()
	err := s.releasePayment(ctx, paymentID, caller, clientToken)
	if s.metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.RecordCommand("ReleasePayment", outcome, time.Since(start))
	}
	return err
}

func (s *Service) releasePayment(ctx context.Context, paymentID, caller, clientToken string) error {
	if !s.limiter.Allow() {
		return enginerr.New(enginerr.CodeOverloaded, "command queue is at capacity")
	}
	lock := s.lockFor(paymentID)
	lock.Lock()
	defer lock.Unlock()

	p, _, err := s.loadLocked(ctx, paymentID)
	if err != nil {
		return err
	}

	if clientToken != "" && p.ClientTokens["ReleasePayment:"+clientToken] {
		return nil
	}
	if p.State != payment.StateActive {
		return enginerr.New(enginerr.CodeInvalidTransition, "cannot release payment in state %s", p.State)
	}
	if caller != p.Merchant {
		return enginerr.New(enginerr.CodeUnauthorized, "caller is not the merchant of record")
	}

	if p.LastApyStale && time.Since(p.LastSnapshotAt) > s.cfg.MaxStaleInterval {
		return enginerr.New(enginerr.CodeAdapterUnavailable, "strategy snapshot stale beyond maxStaleInterval; release deferred")
	}

	now := time.Now().UTC()
	finalAccrued := CurrentAccrued(p, now)
	seq := p.Seq
	if finalAccrued.Cmp(p.AccruedYield) != 0 {
		snap := ledger.Event{
			PaymentID: paymentID,
			Kind:      ledger.KindYieldSnapshot,
			At:        now,
			Payload:   ledger.Payload{ApyBps: p.LastApyBps, Stale: p.LastApyStale, AccruedYield: finalAccrued},
		}
		if err := s.appendLocked(ctx, seq, snap); err != nil {
			return enginerr.Wrap(enginerr.CodeInternal, err, "persist final YieldSnapshot")
		}
		seq++
	}

	release := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindReleaseRequested,
		At:        now,
		Payload:   ledger.Payload{ReleaseCaller: caller, ClientToken: clientToken},
	}
	if err := s.appendLocked(ctx, seq, release); err != nil {
		return enginerr.Wrap(enginerr.CodeInternal, err, "persist ReleaseRequested")
	}
	seq++

	userYield, merchantYield, protocolYield := money.Split(finalAccrued, s.cfg.DistributionPolicy.UserPct, s.cfg.DistributionPolicy.MerchantPct)
	dist := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindDistributionComputed,
		At:        time.Now().UTC(),
		Payload: ledger.Payload{
			UserYield:     userYield,
			MerchantYield: merchantYield,
			ProtocolYield: protocolYield,
		},
	}
	if err := s.appendLocked(ctx, seq, dist); err != nil {
		return enginerr.Wrap(enginerr.CodeInternal, err, "persist DistributionComputed")
	}
	seq++

	opID := externalOpID(paymentID, seq)
	res := s.chain.Release(ctx, opID, p.EscrowRef, userYield.String(), merchantYield.String(), protocolYield.String())
	if res.Err != nil {
		return enginerr.Wrap(enginerr.CodeInternal, res.Err, "settlement submission failed")
	}
	settle := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindSettlementSubmitted,
		At:        time.Now().UTC(),
		Payload:   ledger.Payload{TxRef: res.TxRef, ExternalOpID: opID},
	}
	if err := s.appendLocked(ctx, seq, settle); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordSettlement("submitted")
		s.metrics.RecordYieldAccrued(p.Currency, float64(finalAccrued.Sub(p.AccruedYield).Micros()))
	}
	return nil
}

// CancelPayment withdraws a payment still in Pending (spec §4.7).
func (s *Service) CancelPayment(ctx context.Context, paymentID, caller, clientToken string) error {
	lock := s.lockFor(paymentID)
	lock.Lock()
	defer lock.Unlock()

	p, _, err := s.loadLocked(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.State != payment.StatePending {
		return enginerr.New(enginerr.CodeInvalidTransition, "cannot cancel payment in state %s", p.State)
	}
	if caller != p.User && caller != p.Merchant {
		return enginerr.New(enginerr.CodeUnauthorized, "caller is not a party to this payment")
	}
	ev := ledger.Event{
		PaymentID: paymentID,
		Kind:      ledger.KindFailed,
		At:        time.Now().UTC(),
		Payload:   ledger.Payload{Reason: "cancelled by " + caller},
	}
	return s.appendLocked(ctx, p.Seq, ev)
}
