// Package storage defines the ledger persistence contract (spec §4.6) and
// its in-memory and PostgreSQL implementations.
package storage

import (
	"context"
	"errors"

	"github.com/yieldrails/engine/internal/domain/ledger"
)

// ErrConcurrentAppend is returned when an Append call's expectedSeq no
// longer matches the store's current sequence for the payment, signaling
// that another writer (or another engine instance, per spec §5 "a
// storage-level conditional append on (paymentId, expectedSeq) prevents
// lost updates if multiple engine instances are run") appended first.
var ErrConcurrentAppend = errors.New("storage: concurrent append, expected sequence mismatch")

// ErrNotFound is returned when a payment has no events.
var ErrNotFound = errors.New("storage: payment not found")

// LedgerStore is the append-only event store backing every Payment
// aggregate. Append is conditional: it succeeds only if the store's
// current highest sequence for paymentId equals expectedSeq, giving
// optimistic concurrency across engine instances.
type LedgerStore interface {
	// Append durably persists event, assigning it seq = expectedSeq + 1.
	// If the store's current sequence for event.PaymentID is not exactly
	// expectedSeq, it returns ErrConcurrentAppend and appends nothing.
	Append(ctx context.Context, expectedSeq int64, event ledger.Event) error

	// Load returns every event for paymentId in seq order. Returns
	// ErrNotFound if no events exist.
	Load(ctx context.Context, paymentID string) ([]ledger.Event, error)

	// CurrentSeq returns the highest persisted sequence number for
	// paymentId, or 0 if no events exist yet.
	CurrentSeq(ctx context.Context, paymentID string) (int64, error)

	// ListPaymentIDs returns every distinct paymentId known to the store,
	// used for cold-start fold and for ListPayments without a dedicated
	// projection table.
	ListPaymentIDs(ctx context.Context) ([]string, error)
}
