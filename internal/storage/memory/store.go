// Package memory provides an in-process LedgerStore, suitable for tests and
// single-instance deployments without a PostgreSQL dependency.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/yieldrails/engine/internal/domain/ledger"
	"github.com/yieldrails/engine/internal/storage"
)

// Store is a mutex-guarded, process-local LedgerStore.
type Store struct {
	mu     sync.Mutex
	events map[string][]ledger.Event
}

var _ storage.LedgerStore = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{events: make(map[string][]ledger.Event)}
}

// Append implements storage.LedgerStore.
func (s *Store) Append(ctx context.Context, expectedSeq int64, event ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.events[event.PaymentID]
	if int64(len(existing)) != expectedSeq {
		return storage.ErrConcurrentAppend
	}
	event.Seq = expectedSeq + 1
	s.events[event.PaymentID] = append(existing, event)
	return nil
}

// Load implements storage.LedgerStore.
func (s *Store) Load(ctx context.Context, paymentID string) ([]ledger.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, ok := s.events[paymentID]
	if !ok || len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	out := make([]ledger.Event, len(events))
	copy(out, events)
	return out, nil
}

// CurrentSeq implements storage.LedgerStore.
func (s *Store) CurrentSeq(ctx context.Context, paymentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.events[paymentID])), nil
}

// ListPaymentIDs implements storage.LedgerStore.
func (s *Store) ListPaymentIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.events))
	for id, events := range s.events {
		if len(events) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
