// Package enginerr defines the error taxonomy surfaced by the payment
// orchestration engine to its command/query callers (spec §7).
package enginerr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error classification.
type Code string

const (
	CodeInvalidParameters    Code = "invalid_parameters"
	CodeComplianceRejected   Code = "compliance_rejected"
	CodeDuplicate            Code = "duplicate"
	CodeInvalidTransition    Code = "invalid_transition"
	CodeUnauthorized         Code = "unauthorized"
	CodeAdapterUnavailable   Code = "adapter_unavailable"
	CodeStrategyNotFound     Code = "strategy_not_found"
	CodeBridgeTimeout        Code = "bridge_timeout"
	CodeDoubleSpendSuspected Code = "double_spend_suspected"
	CodeOverloaded           Code = "overloaded"
	CodeInternal             Code = "internal"
)

// EngineError is the typed error every engine entry point returns for
// classifiable conditions. Internal/unclassified failures are wrapped as
// CodeInternal so the taxonomy is exhaustive for callers.
type EngineError struct {
	Code    Code
	Message string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *EngineError) Unwrap() error { return e.Err }

// New builds an EngineError with the given code and message.
func New(code Code, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an EngineError that preserves the underlying cause for
// errors.Is/errors.As while still carrying a caller-facing classification.
func Wrap(code Code, err error, format string, args ...any) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the Code from err, defaulting to CodeInternal for any
// error the engine did not classify itself — per §7, Internal is never
// returned for a condition the engine can classify, so an unclassified
// error reaching here is itself the defect the taxonomy exists to surface.
func CodeOf(err error) Code {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given Code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
