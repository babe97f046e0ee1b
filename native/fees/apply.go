package fees

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	fp "gravitywell/native/fixedpoint"
)

var errFeeRatio = fmt.Errorf("fees: fee ratio must be below 100%%: %w", coreerrors.ErrValidation)

// ApplyResult splits a gross amount into the fee and the net remainder.
type ApplyResult struct {
	Gross *uint256.Int
	Fee   *uint256.Int
	Net   *uint256.Int
}

// Apply deducts floor(gross*feePPM/PPM) from gross. Router paths call it
// exactly once per request so the fee is never charged twice or skipped.
func Apply(feePPM uint64, gross *uint256.Int) (ApplyResult, error) {
	if feePPM >= fp.PPM {
		return ApplyResult{}, errFeeRatio
	}
	result := ApplyResult{Gross: fp.Clone(gross), Fee: fp.Zero(), Net: fp.Clone(gross)}
	if result.Gross.IsZero() || feePPM == 0 {
		return result, nil
	}
	fee, err := fp.MulDivPPM(result.Gross, feePPM)
	if err != nil {
		return ApplyResult{}, err
	}
	result.Fee = fee
	result.Net = new(uint256.Int).Sub(result.Gross, fee)
	return result, nil
}
