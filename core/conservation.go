package core

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	fp "gravitywell/native/fixedpoint"
)

// checkConservation verifies that no value was created or lost:
//
//	supply               == circulating + pool native + treasury native + fee native
//	foreignIn-foreignOut == pool foreign + treasury foreign + fee foreign
//
// Pool reserves include LP fees, which stay in the pool. Every LP token the
// pool has issued must be held by a treasury bucket.
func (e *Engine) checkConservation() error {
	reserveNative, reserveForeign := e.pool.Reserves()
	tolNative, tolForeign := e.allocator.Buffers()
	feeNative, feeForeign := e.fees.Buffers()

	held, err := sum(e.circulating, reserveNative, tolNative, feeNative)
	if err != nil {
		return err
	}
	if supply := e.curve.Supply(); !supply.Eq(held) {
		return fmt.Errorf("%w: native supply %s, accounted %s", coreerrors.ErrConservationViolation, supply.Dec(), held.Dec())
	}

	inside, err := sum(reserveForeign, tolForeign, feeForeign)
	if err != nil {
		return err
	}
	if e.foreignIn.Lt(e.foreignOut) {
		return fmt.Errorf("%w: foreign out %s exceeds in %s", coreerrors.ErrConservationViolation, e.foreignOut.Dec(), e.foreignIn.Dec())
	}
	net := new(uint256.Int).Sub(e.foreignIn, e.foreignOut)
	if !net.Eq(inside) {
		return fmt.Errorf("%w: foreign net %s, accounted %s", coreerrors.ErrConservationViolation, net.Dec(), inside.Dec())
	}

	bucketLP, err := e.allocator.TotalLP()
	if err != nil {
		return err
	}
	if supplyLP := e.pool.SupplyLP(); !supplyLP.Eq(bucketLP) {
		return fmt.Errorf("%w: pool lp supply %s, bucket lp %s", coreerrors.ErrConservationViolation, supplyLP.Dec(), bucketLP.Dec())
	}
	return nil
}

func sum(values ...*uint256.Int) (*uint256.Int, error) {
	total := fp.Zero()
	for _, v := range values {
		next, err := fp.Add(total, v)
		if err != nil {
			return nil, err
		}
		total = next
	}
	return total, nil
}
