// Package errors declares the sentinel errors shared by every settlement
// component. Callers match them with errors.Is.
package errors

import stderrors "errors"

// Taxonomy shared by every engine component. Module errors wrap one of these
// so callers can classify failures with errors.Is.
var (
	// ErrValidation marks bad construction parameters. Fatal at start-up.
	ErrValidation = stderrors.New("validation error")
	// ErrInsufficientAmount marks inputs below a configured threshold.
	ErrInsufficientAmount = stderrors.New("insufficient amount")
	// ErrInsufficientLiquidity marks a pool without reserves for the route.
	ErrInsufficientLiquidity = stderrors.New("insufficient liquidity")
	// ErrSlippageExceeded marks realized output below the caller's minimum.
	ErrSlippageExceeded = stderrors.New("slippage exceeded")
	// ErrOverflow marks arithmetic outside the 256-bit amount range.
	ErrOverflow = stderrors.New("arithmetic overflow")
	// ErrConservationViolation marks a failed internal accounting invariant.
	ErrConservationViolation = stderrors.New("conservation violation")
)

var (
	ErrInsufficientSupply = stderrors.New("insufficient supply")
	ErrUnauthorized       = stderrors.New("unauthorized")
	ErrBucketLocked       = stderrors.New("bucket locked")
	ErrUnknownBucket      = stderrors.New("unknown bucket")
)

// Is reports whether err matches target. It exists so packages importing this
// one under its short name do not also need the standard errors package.
func Is(err, target error) bool { return stderrors.Is(err, target) }
