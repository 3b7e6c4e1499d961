package service

import "context"

// Lifecycle is implemented by every background loop the engine runs
// (yield snapshotting, health probing, bridge polling, abandonment
// sweeping). It mirrors the teacher's system.Service contract: Start must
// be idempotent and non-blocking, Stop must wait for the loop's goroutine
// to exit or the provided context to expire.
type Lifecycle interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
