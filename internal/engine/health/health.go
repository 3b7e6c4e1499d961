// Package health implements the advisory strategy-adapter health probe
// loop (spec §4.4): it periodically calls Health on every registered
// adapter so GetStrategyHealth has a recent data point, without ever
// tripping or resetting the breaker itself. The release-time staleness
// check does not read these probes; it uses the yield snapshots.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/yieldrails/engine/internal/core/service"
	"github.com/yieldrails/engine/internal/engine/paymentsvc"
	"github.com/yieldrails/engine/internal/logger"
)

// Loop periodically probes every registered strategy adapter.
type Loop struct {
	svc      *paymentsvc.Service
	interval time.Duration
	log      *logger.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	done      chan struct{}
}

// New builds a health probe Loop.
func New(svc *paymentsvc.Service, interval time.Duration, log *logger.Logger) *Loop {
	if log == nil {
		log = logger.NewDefault("health-loop")
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
func (l *Loop) Name() string { return "strategy-health-loop" }

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
	l.svc.ProbeAllStrategies(ctx)
	return nil
}
