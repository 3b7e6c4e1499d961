package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yieldrails/engine/internal/logger"
)

func TestRunTicker_InvokesFnOnEveryTickUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	done := make(chan struct{})
	go func() {
		RunTicker(ctx, nil, 2*time.Millisecond, "test-loop", logger.NewDefault("test"), func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunTicker did not return after context cancellation")
	}

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatalf("expected at least one tick to have fired")
	}
}

func TestRunTicker_StopsOnStopChannel(t *testing.T) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		RunTicker(context.Background(), stop, time.Millisecond, "test-loop", logger.NewDefault("test"), func(context.Context) error {
			return nil
		})
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunTicker did not return after stop channel closed")
	}
}

func TestRunTicker_LogsButDoesNotPropagateErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan struct{}, 1)
	go RunTicker(ctx, nil, time.Millisecond, "test-loop", logger.NewDefault("test"), func(context.Context) error {
		select {
		case errCh <- struct{}{}:
		default:
		}
		return errors.New("boom")
	})

	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatalf("expected fn to be invoked despite returning an error")
	}
}
