package treasury

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	nativecommon "gravitywell/native/common"
	fp "gravitywell/native/fixedpoint"
)

var (
	errUnauthorized  = fmt.Errorf("treasury: caller may not unwind bucket: %w", coreerrors.ErrUnauthorized)
	errPrimaryLocked = fmt.Errorf("treasury: primary bucket cannot be unwound: %w", coreerrors.ErrBucketLocked)
	errUnknownBucket = fmt.Errorf("treasury: %w", coreerrors.ErrUnknownBucket)
	errZeroUnwind    = fmt.Errorf("treasury: unwind amount must be positive: %w", coreerrors.ErrInsufficientAmount)
	errUnwindExceeds = fmt.Errorf("treasury: unwind exceeds bucket lp: %w", coreerrors.ErrInsufficientLiquidity)
)

// UnwindResult is the pool payout for an unwound bucket share.
type UnwindResult struct {
	Bucket  string
	LP      *uint256.Int
	Native  *uint256.Int
	Foreign *uint256.Int
}

// Unwind withdraws lp of bucketID's share from p. The caller must be
// authorized by auth and the primary bucket never unwinds. The payout leaves
// the allocator; crediting it is the caller's job.
func (a *Allocator) Unwind(auth Authority, caller, bucketID string, lp *uint256.Int, p LiquidityPool) (*UnwindResult, error) {
	if err := nativecommon.Guard(a.pauses, ModuleName); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errNilPool
	}
	id := normalizeBucketID(bucketID)
	i, ok := a.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownBucket, bucketID)
	}
	if auth == nil || !auth.CanUnwind(caller, id) {
		return nil, errUnauthorized
	}
	if i == a.primary {
		return nil, errPrimaryLocked
	}
	if fp.IsZero(lp) {
		return nil, errZeroUnwind
	}
	bucket := a.buckets[i]
	if lp.Gt(bucket.LPTokens) {
		return nil, errUnwindExceeds
	}
	native, foreign, err := p.RemoveLiquidity(lp)
	if err != nil {
		return nil, err
	}
	bucket.LPTokens = new(uint256.Int).Sub(bucket.LPTokens, lp)
	return &UnwindResult{Bucket: id, LP: fp.Clone(lp), Native: native, Foreign: foreign}, nil
}
