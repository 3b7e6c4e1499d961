package paymentsvc

import (
	"context"
	"sort"
	"time"

	"github.com/yieldrails/engine/internal/core/service"
	"github.com/yieldrails/engine/internal/domain/money"
	"github.com/yieldrails/engine/internal/domain/payment"
	"github.com/yieldrails/engine/internal/engine/adapter"
	"github.com/yieldrails/engine/internal/enginerr"
)

// PaymentView is the read-only projection returned by GetPayment: the
// committed aggregate plus a live-extrapolated accrued yield figure that is
// never itself persisted (spec §4.7).
type PaymentView struct {
	Payment             payment.Payment
	CurrentAccruedYield money.Amount
}

// GetPayment returns a payment's committed projection and its
// currently-extrapolated accrued yield. Queries never suspend on I/O beyond
// the store read (spec §4.7, §5).
func (s *Service) GetPayment(ctx context.Context, paymentID string) (PaymentView, error) {
	p, _, err := s.loadLocked(ctx, paymentID)
	if err != nil {
		return PaymentView{}, err
	}
	return PaymentView{Payment: p, CurrentAccruedYield: CurrentAccrued(p, time.Now().UTC())}, nil
}

// ListFilter narrows ListPayments results.
type ListFilter struct {
	User     string
	Merchant string
	State    payment.State
}

// ListPage is a cursor-paginated slice of PaymentView.
type ListPage struct {
	Payments   []PaymentView
	NextCursor string
}

// ListPayments folds every known payment and returns those matching filter,
// paginated by an opaque numeric offset cursor.
func (s *Service) ListPayments(ctx context.Context, filter ListFilter, cursor string, pageSize int) (ListPage, error) {
	pageSize = service.ClampLimit(pageSize, 50, 500)
	ids, err := s.store.ListPaymentIDs(ctx)
	if err != nil {
		return ListPage{}, enginerr.Wrap(enginerr.CodeInternal, err, "list payment ids")
	}
	sort.Strings(ids)

	offset := decodeCursor(cursor)
	var matched []PaymentView
	for _, id := range ids {
		view, err := s.GetPayment(ctx, id)
		if err != nil {
			continue
		}
		if filter.User != "" && view.Payment.User != filter.User {
			continue
		}
		if filter.Merchant != "" && view.Payment.Merchant != filter.Merchant {
			continue
		}
		if filter.State != "" && view.Payment.State != filter.State {
			continue
		}
		matched = append(matched, view)
	}

	if offset >= len(matched) {
		return ListPage{}, nil
	}
	end := offset + pageSize
	next := ""
	if end < len(matched) {
		next = encodeCursor(end)
	} else {
		end = len(matched)
	}
	return ListPage{Payments: matched[offset:end], NextCursor: next}, nil
}

// GetStrategyHealth reports an adapter's breaker state and cached APY
// (spec §4.7).
func (s *Service) GetStrategyHealth(ctx context.Context, strategyID string) (adapter.HealthSnapshot, error) {
	a, err := s.registry.Get(strategyID)
	if err != nil {
		return adapter.HealthSnapshot{}, err
	}
	apy, at := a.LastCachedAPY()
	return adapter.HealthSnapshot{
		StrategyID:    a.StrategyID(),
		BreakerState:  a.BreakerState().String(),
		LastHealthy:   a.LastKnownHealthy(),
		CachedApyBps:  apy,
		CachedApyAtOK: !at.IsZero(),
		History:       a.History(),
	}, nil
}
