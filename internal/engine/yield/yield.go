// Package yield implements the background accrual loop: a ticker that
// periodically snapshots every Active and Bridging payment's accrued
// yield (spec §3, §4.2). It is advisory scheduling only; the actual
// accrual math and event persistence live in paymentsvc.
package yield

import (
	"context"
	"sync"
	"time"

	"github.com/yieldrails/engine/internal/core/service"
	"github.com/yieldrails/engine/internal/engine/paymentsvc"
	"github.com/yieldrails/engine/internal/logger"
)

// Loop periodically snapshots every active payment's accrued yield.
type Loop struct {
	svc      *paymentsvc.Service
	interval time.Duration
	log      *logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// New builds a yield accrual Loop. interval should match the engine's
// configured snapshot interval.
func New(svc *paymentsvc.Service, interval time.Duration, log *logger.Logger) *Loop {
	if log == nil {
		log = logger.NewDefault("yield-loop")
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
func (l *Loop) Name() string { return "yield-accrual-loop" }

// Start launches the ticker goroutine. It returns immediately; calls after
// the first are no-ops.
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
	ids, err := l.svc.ActivePaymentIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := l.svc.SnapshotPayment(ctx, id); err != nil {
			l.log.WithField("payment_id", id).WithField("error", err).Warn("yield snapshot failed")
		}
	}
	return nil
}
