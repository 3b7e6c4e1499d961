// Package postgres persists the ledger event log to PostgreSQL, following
// the same database/sql + lib/pq + google/uuid pattern used throughout the
// rest of the engine's storage layer.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/yieldrails/engine/internal/domain/ledger"
	"github.com/yieldrails/engine/internal/domain/money"
	"github.com/yieldrails/engine/internal/storage"
)

// Store implements storage.LedgerStore backed by a ledger_events table.
//
//	CREATE TABLE ledger_events (
//		id          UUID PRIMARY KEY,
//		payment_id  TEXT NOT NULL,
//		seq         BIGINT NOT NULL,
//		kind        TEXT NOT NULL,
//		occurred_at TIMESTAMPTZ NOT NULL,
//		payload     JSONB NOT NULL,
//		UNIQUE (payment_id, seq)
//	);
type Store struct {
	db *sql.DB
}

var _ storage.LedgerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens a PostgreSQL connection using lib/pq and wraps it in a Store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

type walPayload struct {
	User             string `json:"user,omitempty"`
	Merchant         string `json:"merchant,omitempty"`
	Principal        string `json:"principal,omitempty"`
	Currency         string `json:"currency,omitempty"`
	SourceChain      string `json:"source_chain,omitempty"`
	DestinationChain string `json:"destination_chain,omitempty"`
	StrategyID       string `json:"strategy_id,omitempty"`
	ClientToken      string `json:"client_token,omitempty"`
	EscrowRef        string `json:"escrow_ref,omitempty"`
	ApyBps           int64  `json:"apy_bps,omitempty"`
	Stale            bool   `json:"stale,omitempty"`
	AccruedYield     string `json:"accrued_yield,omitempty"`
	ReleaseCaller    string `json:"release_caller,omitempty"`
	UserYield        string `json:"user_yield,omitempty"`
	MerchantYield    string `json:"merchant_yield,omitempty"`
	ProtocolYield    string `json:"protocol_yield,omitempty"`
	TxRef            string `json:"tx_ref,omitempty"`
	BridgeRef        string `json:"bridge_ref,omitempty"`
	BridgeChain      string `json:"bridge_chain,omitempty"`
	AttestationSig   string `json:"attestation_sig,omitempty"`
	Reason           string `json:"reason,omitempty"`
	ExternalOpID     string `json:"external_op_id,omitempty"`
}

func toWAL(p ledger.Payload) walPayload {
	return walPayload{
		User:             p.User,
		Merchant:         p.Merchant,
		Principal:        amountOrEmpty(p.Principal),
		Currency:         p.Currency,
		SourceChain:      p.SourceChain,
		DestinationChain: p.DestinationChain,
		StrategyID:       p.StrategyID,
		ClientToken:      p.ClientToken,
		EscrowRef:        p.EscrowRef,
		ApyBps:           p.ApyBps,
		Stale:            p.Stale,
		AccruedYield:     amountOrEmpty(p.AccruedYield),
		ReleaseCaller:    p.ReleaseCaller,
		UserYield:        amountOrEmpty(p.UserYield),
		MerchantYield:    amountOrEmpty(p.MerchantYield),
		ProtocolYield:    amountOrEmpty(p.ProtocolYield),
		TxRef:            p.TxRef,
		BridgeRef:        p.BridgeRef,
		BridgeChain:      p.BridgeChain,
		AttestationSig:   p.AttestationSig,
		Reason:           p.Reason,
		ExternalOpID:     p.ExternalOpID,
	}
}

func amountOrEmpty(a money.Amount) string {
	if a.IsZero() {
		return ""
	}
	return a.String()
}

func fromWAL(w walPayload) (ledger.Payload, error) {
	p := ledger.Payload{
		User:             w.User,
		Merchant:         w.Merchant,
		Currency:         w.Currency,
		SourceChain:      w.SourceChain,
		DestinationChain: w.DestinationChain,
		StrategyID:       w.StrategyID,
		ClientToken:      w.ClientToken,
		EscrowRef:        w.EscrowRef,
		ApyBps:           w.ApyBps,
		Stale:            w.Stale,
		ReleaseCaller:    w.ReleaseCaller,
		TxRef:            w.TxRef,
		BridgeRef:        w.BridgeRef,
		BridgeChain:      w.BridgeChain,
		AttestationSig:   w.AttestationSig,
		Reason:           w.Reason,
		ExternalOpID:     w.ExternalOpID,
	}
	var err error
	if p.Principal, err = parseAmount(w.Principal); err != nil {
		return p, err
	}
	if p.AccruedYield, err = parseAmount(w.AccruedYield); err != nil {
		return p, err
	}
	if p.UserYield, err = parseAmount(w.UserYield); err != nil {
		return p, err
	}
	if p.MerchantYield, err = parseAmount(w.MerchantYield); err != nil {
		return p, err
	}
	if p.ProtocolYield, err = parseAmount(w.ProtocolYield); err != nil {
		return p, err
	}
	return p, nil
}

func parseAmount(s string) (money.Amount, error) {
	if s == "" {
		return money.Zero, nil
	}
	return money.FromDecimalString(s)
}

// Append implements storage.LedgerStore using a conditional insert guarded
// by the (payment_id, seq) unique constraint: the caller supplies
// expectedSeq, and a concurrent writer racing to insert the same seq loses
// with a unique-violation, which is mapped to ErrConcurrentAppend.
func (s *Store) Append(ctx context.Context, expectedSeq int64, event ledger.Event) error {
	payloadJSON, err := json.Marshal(toWAL(event.Payload))
	if err != nil {
		return err
	}

	seq := expectedSeq + 1
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_events (id, payment_id, seq, kind, occurred_at, payload)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE (SELECT COUNT(*) FROM ledger_events WHERE payment_id = $2) = $7
	`, uuid.NewString(), event.PaymentID, seq, string(event.Kind), event.At, payloadJSON, expectedSeq)
	if err != nil {
		return mapUniqueViolation(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return storage.ErrConcurrentAppend
	}
	return nil
}

func mapUniqueViolation(err error) error {
	if err == nil {
		return nil
	}
	// lib/pq reports unique_violation as SQLSTATE 23505.
	var pqErr *pq.Error
	if ok := errorsAsPQ(err, &pqErr); ok && pqErr.Code == "23505" {
		return storage.ErrConcurrentAppend
	}
	return err
}

func errorsAsPQ(err error, target **pq.Error) bool {
	if pe, ok := err.(*pq.Error); ok {
		*target = pe
		return true
	}
	return false
}

// Load implements storage.LedgerStore.
func (s *Store) Load(ctx context.Context, paymentID string) ([]ledger.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, occurred_at, payload
		FROM ledger_events
		WHERE payment_id = $1
		ORDER BY seq ASC
	`, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []ledger.Event
	for rows.Next() {
		var (
			seq        int64
			kind       string
			occurredAt time.Time
			raw        []byte
		)
		if err := rows.Scan(&seq, &kind, &occurredAt, &raw); err != nil {
			return nil, err
		}
		var w walPayload
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		payload, err := fromWAL(w)
		if err != nil {
			return nil, err
		}
		events = append(events, ledger.Event{
			Seq:       seq,
			PaymentID: paymentID,
			Kind:      ledger.Kind(kind),
			At:        occurredAt,
			Payload:   payload,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, storage.ErrNotFound
	}
	return events, nil
}

// CurrentSeq implements storage.LedgerStore.
func (s *Store) CurrentSeq(ctx context.Context, paymentID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM ledger_events WHERE payment_id = $1
	`, paymentID).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// ListPaymentIDs implements storage.LedgerStore.
func (s *Store) ListPaymentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT payment_id FROM ledger_events ORDER BY payment_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
