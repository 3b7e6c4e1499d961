// Package compliance names the KYC/AML screening collaborator the engine
// consumes during payment admission (spec §6 "Compliance checker
// (consumed)"). Screening policy itself is out of scope.
package compliance

import "context"

// ScreenResult is the advisory verdict of a pre-admission screen.
type ScreenResult struct {
	Allow  bool
	Reason string
	Err    error
}

// Checker screens a prospective payment's parties before the engine writes
// any Payment event. A deny causes CreatePayment to return
// ComplianceRejected without persisting anything (spec §6).
type Checker interface {
	Screen(ctx context.Context, user, merchant, principal, currency string) ScreenResult
}

// AllowAll is a permissive Checker used where no screening collaborator is
// configured (e.g. local development, tests).
type AllowAll struct{}

// Screen always allows.
func (AllowAll) Screen(ctx context.Context, user, merchant, principal, currency string) ScreenResult {
	return ScreenResult{Allow: true}
}
