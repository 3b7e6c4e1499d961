package service

import (
	"context"
	"time"

	"github.com/yieldrails/engine/internal/logger"
)

// RunTicker runs fn every interval until ctx is cancelled or stop is
// closed, logging (but not propagating) any error fn returns. Mirrors the
// teacher's AddTickerWorker loop shape.
func RunTicker(ctx context.Context, stop <-chan struct{}, interval time.Duration, name string, log *logger.Logger, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.WithField("worker", name).WithField("error", err).Warn("background loop iteration failed")
			}
		}
	}
}
