package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places kept for a currency amount (kobo for NGN).
const MinorUnitExponent = 2

// MaxAmount bounds any single amount in minor units: one trillion NGN. Sums of a
// handful of bounded amounts stay far below math.MaxInt64.
const MaxAmount int64 = 100_000_000_000_000

var maxMinorUnits = decimal.NewFromInt(MaxAmount)

// ToDecimal converts minor units to a major-unit decimal.
func ToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -MinorUnitExponent)
}

// FromDecimal converts a major-unit decimal to minor units. Amounts finer than one
// minor unit are rejected rather than rounded.
func FromDecimal(d decimal.Decimal) (int64, error) {
	scaled := d.Shift(MinorUnitExponent)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %s has more than %d decimal places", ErrValidation, d.String(), MinorUnitExponent)
	}
	if scaled.Abs().GreaterThan(maxMinorUnits) {
		return 0, fmt.Errorf("%w: amount %s is out of range", ErrValidation, d.String())
	}
	return scaled.IntPart(), nil
}

// ParseAmount parses a decimal string such as "1500.50" into minor units.
func ParseAmount(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: amount is required", ErrValidation)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", ErrValidation, raw)
	}
	return FromDecimal(d)
}
