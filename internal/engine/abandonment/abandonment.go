// Package abandonment implements the abandonment-horizon sweep (spec §3):
// a periodic scan that force-fails and refunds every Pending, Active or
// Bridging payment activated (or, if never activated, created) longer ago
// than the configured horizon.
package abandonment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/yieldrails/engine/internal/engine/paymentsvc"
	"github.com/yieldrails/engine/internal/logger"
)

// Loop periodically sweeps for abandoned payments on a cron schedule.
type Loop struct {
	svc      *paymentsvc.Service
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// New builds an abandonment sweep Loop. A sensible default interval is a
// fraction of the configured abandonment horizon, e.g. one hour.
func New(svc *paymentsvc.Service, interval time.Duration, log *logger.Logger) *Loop {
	if log == nil {
		log = logger.NewDefault("abandonment-loop")
	}
	if interval < time.Second {
		interval = time.Second
	}
	return &Loop{svc: svc, interval: interval, log: log}
}

// Name identifies the loop in logs and lifecycle registries.
func (l *Loop) Name() string { return "abandonment-sweep-loop" }

// Start schedules the sweep on a "@every interval" cron spec.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}
	c := cron.New()
	spec := fmt.Sprintf("@every %s", l.interval)
	if _, err := c.AddFunc(spec, func() { l.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule abandonment sweep: %w", err)
	}
	c.Start()
	l.cron = c
	l.running = true
	return nil
}

// Stop halts the cron scheduler, waiting for any in-flight run to finish
// or ctx to expire.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	c := l.cron
	l.running = false
	l.cron = nil
	l.mu.Unlock()
	if c == nil {
		return nil
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) tick(ctx context.Context) {
	swept, err := l.svc.SweepAbandoned(ctx)
	if err != nil {
		l.log.WithField("error", err).Warn("abandonment sweep failed")
		return
	}
	if swept > 0 {
		l.log.WithField("count", swept).Info("swept abandoned payments")
	}
}
