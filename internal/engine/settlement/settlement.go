// Package settlement implements the Released-payment confirmation poller
// (spec §4.1): it watches payments awaiting on-chain settlement
// finality and transitions them to Completed once confirmed.
package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/yieldrails/engine/internal/core/service"
	"github.com/yieldrails/engine/internal/engine/paymentsvc"
	"github.com/yieldrails/engine/internal/logger"
)

// Confirmer checks whether a submitted settlement transaction has reached
// finality on-chain.
type Confirmer func(ctx context.Context, txRef string) (bool, error)

// Loop periodically polls Released payments for settlement finality.
type Loop struct {
	svc      *paymentsvc.Service
	confirm  Confirmer
	interval time.Duration
	log      *logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// New builds a settlement confirmation Loop.
func New(svc *paymentsvc.Service, confirm Confirmer, interval time.Duration, log *logger.Logger) *Loop {
	if log == nil {
		log = logger.NewDefault("settlement-loop")
	}
	return &Loop{
		svc:      svc,
		confirm:  confirm,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name identifies the loop in logs and lifecycle registries.
func (l *Loop) Name() string { return "settlement-confirmation-loop" }

// Start launches the ticker goroutine. Calls after the first are no-ops.
func (l *Loop) Start(ctx context.Context) error {
	l.startOnce.Do(func() {
		go func() {
			defer close(l.done)
			service.RunTicker(ctx, l.stopCh, l.interval, l.Name(), l.log, l.tick)
		}()
	})
	return nil
}

// Stop signals the loop to exit and waits for it, bounded by ctx.
func (l *Loop) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) tick(ctx context.Context) error {
	confirmed, err := l.svc.PollSettlements(ctx, l.confirm)
	if err != nil {
		return err
	}
	if confirmed > 0 {
		l.log.WithField("count", confirmed).Info("confirmed settlements")
	}
	return nil
}
