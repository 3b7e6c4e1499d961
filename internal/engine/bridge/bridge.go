// Package bridge implements the cross-chain coordinator loop (spec
// §4.5): it periodically drives every Bridging payment through
// burn -> attest -> mint, refunding on a missed deadline. The step logic
// and event persistence live in paymentsvc; this loop only supplies
// scheduling and per-payment ID enumeration.
package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/yieldrails/engine/internal/core/service"
	"github.com/yieldrails/engine/internal/domain/payment"
	"github.com/yieldrails/engine/internal/engine/paymentsvc"
	"github.com/yieldrails/engine/internal/logger"
)

// Loop periodically advances every Bridging payment one step.
type Loop struct {
	svc      *paymentsvc.Service
	interval time.Duration
	log      *logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// New builds a bridge coordinator Loop.
func New(svc *paymentsvc.Service, interval time.Duration, log *logger.Logger) *Loop {
	if log == nil {
		log = logger.NewDefault("bridge-loop")
	}
	return &Loop{
		svc:      svc,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Name identifies the loop in logs and lifecycle registries.
func (l *Loop) Name() string { return "bridge-coordinator-loop" }

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
	ids, err := l.svc.ListPayments(ctx, paymentsvc.ListFilter{State: payment.StateBridging}, "", 1000)
	if err != nil {
		return err
	}
	for _, view := range ids.Payments {
		if err := l.svc.AdvanceBridge(ctx, view.Payment.ID); err != nil {
			l.log.WithField("payment_id", view.Payment.ID).WithField("error", err).Warn("bridge advance failed")
		}
	}
	return nil
}
