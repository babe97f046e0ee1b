package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	coreerrors "gravitywell/core/errors"
)

// precisionDigits is the number of decimal places carried by every amount.
const precisionDigits = 12

// ParseAmount converts a human decimal such as "0.001" into a
// PRECISION-scaled integer. Negative values and digits beyond the twelfth
// decimal place are rejected. The empty string is zero.
func ParseAmount(raw string) (*uint256.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return new(uint256.Int), nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", raw, coreerrors.ErrValidation)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q is negative: %w", raw, coreerrors.ErrValidation)
	}
	scaled := d.Shift(precisionDigits)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %q exceeds %d decimal places: %w", raw, precisionDigits, coreerrors.ErrValidation)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %q: %w", raw, coreerrors.ErrOverflow)
	}
	return v, nil
}

// FormatAmount renders a PRECISION-scaled integer as a human decimal.
func FormatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -precisionDigits).String()
}
