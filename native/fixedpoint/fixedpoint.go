// Package fixedpoint implements the scaled-integer arithmetic shared by every
// settlement component. Amounts are 256-bit unsigned integers scaled by
// Precision; ratios are plain integers scaled by PPM.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
)

const (
	// PrecisionUint64 is the scale applied to every monetary amount.
	PrecisionUint64 uint64 = 1_000_000_000_000
	// PPM is the scale applied to every ratio.
	PPM uint64 = 1_000_000
)

var (
	errDivideByZero = fmt.Errorf("fixedpoint: division by zero: %w", coreerrors.ErrOverflow)
	errMulOverflow  = fmt.Errorf("fixedpoint: multiplication exceeds 256 bits: %w", coreerrors.ErrOverflow)
	errAddOverflow  = fmt.Errorf("fixedpoint: addition exceeds 256 bits: %w", coreerrors.ErrOverflow)
	errSubUnderflow = fmt.Errorf("fixedpoint: subtraction below zero: %w", coreerrors.ErrInsufficientAmount)
	errNarrow       = fmt.Errorf("fixedpoint: value exceeds 256 bits: %w", coreerrors.ErrOverflow)
)

// Precision returns a fresh copy of the amount scale.
func Precision() *uint256.Int { return uint256.NewInt(PrecisionUint64) }

// PPMInt returns a fresh copy of the ratio scale.
func PPMInt() *uint256.Int { return uint256.NewInt(PPM) }

// Zero returns a fresh zero amount.
func Zero() *uint256.Int { return new(uint256.Int) }

// Units returns whole*Precision, e.g. Units(100) is one hundred tokens.
func Units(whole uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(whole), Precision())
}

// Clone copies v, treating nil as zero.
func Clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// IsZero treats nil as zero.
func IsZero(v *uint256.Int) bool { return v == nil || v.IsZero() }

// Add returns a+b or ErrOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(Clone(a), Clone(b))
	if overflow {
		return nil, errAddOverflow
	}
	return sum, nil
}

// Sub returns a-b; a negative result fails with ErrInsufficientAmount.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, underflow := new(uint256.Int).SubOverflow(Clone(a), Clone(b))
	if underflow {
		return nil, errSubUnderflow
	}
	return diff, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(Clone(a), Clone(b))
	if overflow {
		return nil, errMulOverflow
	}
	return product, nil
}

// MulDiv computes floor(a*b/c). The product is formed at 512 bits so only a
// quotient that itself exceeds 256 bits overflows.
func MulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	if IsZero(c) {
		return nil, errDivideByZero
	}
	if IsZero(a) || IsZero(b) {
		return new(uint256.Int), nil
	}
	quotient, overflow := new(uint256.Int).MulDivOverflow(a, b, c)
	if overflow {
		return nil, errMulOverflow
	}
	return quotient, nil
}

// MulDivCeil computes ceil(a*b/c).
func MulDivCeil(a, b, c *uint256.Int) (*uint256.Int, error) {
	floor, err := MulDiv(a, b, c)
	if err != nil {
		return nil, err
	}
	if IsZero(a) || IsZero(b) {
		return floor, nil
	}
	// floor*c == a*b exactly when there is no remainder; compare at full width.
	product := new(big.Int).Mul(a.ToBig(), b.ToBig())
	back := new(big.Int).Mul(floor.ToBig(), c.ToBig())
	if product.Cmp(back) == 0 {
		return floor, nil
	}
	return Add(floor, uint256.NewInt(1))
}

// MulDivPPM computes floor(a*ratio/PPM).
func MulDivPPM(a *uint256.Int, ratio uint64) (*uint256.Int, error) {
	return MulDiv(a, uint256.NewInt(ratio), PPMInt())
}

// ISqrt returns floor(sqrt(n)). uint256 seeds Newton's method from the bit
// length of n and iterates until the estimate stops decreasing.
func ISqrt(n *uint256.Int) *uint256.Int {
	if IsZero(n) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sqrt(n)
}

// Min returns the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if Clone(a).Cmp(Clone(b)) <= 0 {
		return Clone(a)
	}
	return Clone(b)
}

// Max returns the larger of a and b.
func Max(a, b *uint256.Int) *uint256.Int {
	if Clone(a).Cmp(Clone(b)) >= 0 {
		return Clone(a)
	}
	return Clone(b)
}

// AbsDiff returns |a-b|.
func AbsDiff(a, b *uint256.Int) *uint256.Int {
	x, y := Clone(a), Clone(b)
	if x.Cmp(y) >= 0 {
		return new(uint256.Int).Sub(x, y)
	}
	return new(uint256.Int).Sub(y, x)
}

// FromBig narrows a non-negative big integer into the amount range.
func FromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, errSubUnderflow
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errNarrow
	}
	return out, nil
}

// BigSqrtCeil returns ceil(sqrt(n)) for a non-negative big integer.
func BigSqrtCeil(n *big.Int) *big.Int {
	if n == nil || n.Sign() <= 0 {
		return new(big.Int)
	}
	root := new(big.Int).Sqrt(n)
	if new(big.Int).Mul(root, root).Cmp(n) != 0 {
		root.Add(root, big.NewInt(1))
	}
	return root
}

// Parse reads a decimal integer amount already expressed in scaled units.
func Parse(raw string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("fixedpoint: parse %q: %w", raw, coreerrors.ErrValidation)
	}
	return v, nil
}

// MustParse is Parse for constants in tests and defaults.
func MustParse(raw string) *uint256.Int {
	v, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders v as a decimal integer, treating nil as zero.
func String(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
