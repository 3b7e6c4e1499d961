// Package money implements fixed-point arithmetic over the smallest
// representable stable-unit ("micro-unit", 1e-6 of a stablecoin). No
// binary floating point is used anywhere on the accrual or distribution
// path; every Amount is backed by an arbitrary-precision decimal so that
// intermediate products cannot overflow for the ranges named in the spec
// (principal up to 10^12 stable-units, intervals up to 10 years).
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FractionalDigits is the number of fractional digits a stable-unit
// represents (yieldPrecision default).
const FractionalDigits = 6

// SecondsPerYear is the Y constant used by the accrual formula.
const SecondsPerYear = int64(365 * 86400)

// Amount is a non-negative quantity of micro-units. The zero value is 0.
type Amount struct {
	d decimal.Decimal
}

// Zero is the additive identity.
var Zero = Amount{d: decimal.Zero}

// FromMicros constructs an Amount from a raw integer count of micro-units.
func FromMicros(micros int64) Amount {
	return Amount{d: decimal.NewFromInt(micros)}
}

// FromDecimalString parses a human-readable stable-unit string (e.g. "1.5")
// and converts it to an integer micro-unit Amount, rejecting values with
// more precision than FractionalDigits supports.
func FromDecimalString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return Amount{}, fmt.Errorf("money: amount %q must not be negative", s)
	}
	micros := d.Shift(FractionalDigits)
	if !micros.Equal(micros.Truncate(0)) {
		return Amount{}, fmt.Errorf("money: amount %q exceeds %d fractional digits", s, FractionalDigits)
	}
	return Amount{d: micros.Truncate(0)}, nil
}

// Micros returns the raw integer count of micro-units. It does not panic
// when the value does not fit in an int64; the result is then undefined,
// so callers operating near the 10^12 stable-unit ceiling should prefer
// Decimal() for display.
func (a Amount) Micros() int64 {
	return a.d.IntPart()
}

// Decimal exposes the underlying arbitrary-precision value, in micro-units.
func (a Amount) Decimal() decimal.Decimal {
	return a.d
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool { return a.d.IsZero() }

// IsNegative reports whether the amount is strictly negative. A valid
// Payment must never carry a negative Amount in accruedYield or principal.
func (a Amount) IsNegative() bool { return a.d.IsNegative() }

// IsPositive reports whether the amount is strictly greater than zero.
func (a Amount) IsPositive() bool { return a.d.IsPositive() }

// Add returns a+b.
func (a Amount) Add(b Amount) Amount { return Amount{d: a.d.Add(b.d)} }

// Sub returns a-b. Callers must ensure a >= b for non-negative invariants.
func (a Amount) Sub(b Amount) Amount { return Amount{d: a.d.Sub(b.d)} }

// Cmp compares a to b: -1, 0, or 1.
func (a Amount) Cmp(b Amount) int { return a.d.Cmp(b.d) }

// GreaterThan reports a > b.
func (a Amount) GreaterThan(b Amount) bool { return a.d.GreaterThan(b.d) }

// GreaterThanOrEqual reports a >= b.
func (a Amount) GreaterThanOrEqual(b Amount) bool { return a.d.GreaterThanOrEqual(b.d) }

// LessThan reports a < b.
func (a Amount) LessThan(b Amount) bool { return a.d.LessThan(b.d) }

// MulFracFloor multiplies the amount by numerator/denominator and floors the
// result to the nearest whole micro-unit, using an arbitrary-precision
// intermediate so the product never overflows.
func (a Amount) MulFracFloor(numerator, denominator int64) Amount {
	if denominator == 0 {
		panic("money: MulFracFloor: denominator must not be zero")
	}
	scaled := a.d.Mul(decimal.NewFromInt(numerator)).DivRound(decimal.NewFromInt(denominator), int32(FractionalDigits)+4)
	return Amount{d: scaled.Truncate(0)}
}

// AccrueDelta computes principal*apyBps*seconds/(10000*SecondsPerYear),
// the closed-form increment of the piecewise-linear accrual function
// between two snapshots holding apyBps constant, floored to the nearest
// micro-unit.
func AccrueDelta(principal Amount, apyBps int64, seconds int64) Amount {
	if apyBps == 0 || seconds <= 0 || principal.IsZero() {
		return Zero
	}
	numerator := principal.d.Mul(decimal.NewFromInt(apyBps)).Mul(decimal.NewFromInt(seconds))
	denominator := decimal.NewFromInt(10_000 * SecondsPerYear)
	scaled := numerator.DivRound(denominator, int32(FractionalDigits)+4)
	return Amount{d: scaled.Truncate(0)}
}

// Split divides accrued into three non-negative shares according to
// userPct/merchantPct (out of 100), assigning the rounding residual to the
// protocol share so the three terms always sum exactly to accrued.
func Split(accrued Amount, userPct, merchantPct int64) (user, merchant, protocol Amount) {
	user = accrued.MulFracFloor(userPct, 100)
	merchant = accrued.MulFracFloor(merchantPct, 100)
	protocol = accrued.Sub(user).Sub(merchant)
	return user, merchant, protocol
}

// String renders the amount as a human-readable stable-unit decimal.
func (a Amount) String() string {
	return a.d.Shift(-FractionalDigits).StringFixed(FractionalDigits)
}
