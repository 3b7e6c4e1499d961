// Package paymentsvc implements the command/query surface of spec §4.7: the
// only entry point external callers use to drive a Payment through its
// lifecycle. It owns per-payment serialization (spec §5) and is the single
// writer of the ledger.
package paymentsvc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/yieldrails/engine/internal/chainclient"
	"github.com/yieldrails/engine/internal/compliance"
	"github.com/yieldrails/engine/internal/config"
	"github.com/yieldrails/engine/internal/domain/ledger"
	"github.com/yieldrails/engine/internal/domain/money"
	"github.com/yieldrails/engine/internal/domain/payment"
	"github.com/yieldrails/engine/internal/engine/adapter"
	"github.com/yieldrails/engine/internal/enginerr"
	"github.com/yieldrails/engine/internal/logger"
	"github.com/yieldrails/engine/internal/metrics"
	"github.com/yieldrails/engine/internal/storage"
)

// Service is the engine's single writer: every state transition for every
// payment flows through one of its exported methods.
type Service struct {
	store      storage.LedgerStore
	registry   *adapter.Registry
	chain      chainclient.Client
	attest     chainclient.AttestationClient
	compliance compliance.Checker
	cfg        *config.EngineConfig
	log        *logger.Logger
	metrics    *metrics.Metrics

	limiter *rate.Limiter

	locksMu sync.Mutex
	locks   map[string]*sync.RWMutex

	createdMu     sync.Mutex
	createdTokens map[string]string // clientToken -> paymentId
}

// New wires a Service from its collaborators.
func New(
	store storage.LedgerStore,
	registry *adapter.Registry,
	chain chainclient.Client,
	attest chainclient.AttestationClient,
	checker compliance.Checker,
	cfg *config.EngineConfig,
	log *logger.Logger,
) *Service {
	if checker == nil {
		checker = compliance.AllowAll{}
	}
	if log == nil {
		log = logger.NewDefault("payment-service")
	}
	depth := cfg.CommandQueueDepth
	if depth <= 0 {
		depth = 1024
	}
	return &Service{
		store:         store,
		registry:      registry,
		chain:         chain,
		attest:        attest,
		compliance:    checker,
		cfg:           cfg,
		log:           log,
		limiter:       rate.NewLimiter(rate.Limit(depth), depth),
		locks:         make(map[string]*sync.RWMutex),
		createdTokens: make(map[string]string),
	}
}

// SetMetrics attaches a Metrics recorder. Safe to call once during wiring;
// every instrumentation call sites nil-checks so metrics remain optional.
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// lockFor returns the per-payment RWMutex guarding paymentID. Commands take
// the write lock and may hold it across outbound adapter/chain I/O and
// retry backoff; queries take no lock and fold the committed event log, so
// they never block behind a slow writer (spec §4.7 "Queries... must not
// block writers").
func (s *Service) lockFor(paymentID string) *sync.RWMutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[paymentID]
	if !ok {
		l = &sync.RWMutex{}
		s.locks[paymentID] = l
	}
	return l
}

// loadLocked loads and folds a payment's event log. Commands and background
// steps call it under the payment's write lock; GetPayment calls it without
// the lock and sees only events already committed to the store.
func (s *Service) loadLocked(ctx context.Context, paymentID string) (payment.Payment, []ledger.Event, error) {
	events, err := s.store.Load(ctx, paymentID)
	if errors.Is(err, storage.ErrNotFound) {
		return payment.Payment{}, nil, enginerr.Wrap(enginerr.CodeInvalidParameters, err, "payment %s not found", paymentID)
	}
	if err != nil {
		return payment.Payment{}, nil, err
	}
	p, err := payment.Fold(events)
	if err != nil {
		return payment.Payment{}, nil, enginerr.Wrap(enginerr.CodeInternal, err, "fold payment %s", paymentID)
	}
	return p, events, nil
}

// appendLocked durably appends event as the next sequence number for its
// payment. Callers must hold the payment's lock.
func (s *Service) appendLocked(ctx context.Context, currentSeq int64, event ledger.Event) error {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	return s.store.Append(ctx, currentSeq, event)
}

// CurrentAccrued extrapolates a payment's accrued yield from its last
// recorded snapshot to now, without writing an event (spec §4.7 "Queries...
// never suspend on I/O in the critical path").
func CurrentAccrued(p payment.Payment, now time.Time) money.Amount {
	if p.State != payment.StateActive && p.State != payment.StateBridging && p.State != payment.StateReleasing {
		return p.AccruedYield
	}
	if p.LastSnapshotAt.IsZero() || !now.After(p.LastSnapshotAt) {
		return p.AccruedYield
	}
	elapsed := int64(now.Sub(p.LastSnapshotAt).Seconds())
	delta := money.AccrueDelta(p.Principal, p.LastApyBps, elapsed)
	return p.AccruedYield.Add(delta)
}

// GenerateExternalOpID is exposed so background services (yield, health,
// bridge, settlement) can round-trip the same deterministic tag the
// command surface uses.
func GenerateExternalOpID(paymentID string, seq int64) string {
	return externalOpID(paymentID, seq)
}

// NewPaymentID mints an opaque platform-wide unique identifier.
func NewPaymentID() string {
	return uuid.NewString()
}
