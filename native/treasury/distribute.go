package treasury

import (
	"sort"

	"github.com/holiman/uint256"

	fp "gravitywell/native/fixedpoint"
)

// allocate splits amount across weights (summing to PPM) by the largest
// remainder method. Each share starts at floor(amount*w/PPM); the units lost to
// flooring go one at a time to the largest fractional remainders. Equal
// remainders are ordered starting from cursor so repeated ties rotate.
func allocate(amount *uint256.Int, weights []uint64, cursor int) ([]*uint256.Int, error) {
	n := len(weights)
	shares := make([]*uint256.Int, n)
	remainders := make([]uint64, n)
	assigned := fp.Zero()
	amountModPPM := new(uint256.Int).Mod(fp.Clone(amount), fp.PPMInt()).Uint64()
	for i, w := range weights {
		share, err := fp.MulDivPPM(amount, w)
		if err != nil {
			return nil, err
		}
		shares[i] = share
		// amount*w mod PPM == (amount mod PPM)*w mod PPM, and both factors are
		// below 1e6 so the product fits in 64 bits.
		remainders[i] = (amountModPPM * w) % fp.PPM
		if assigned, err = fp.Add(assigned, share); err != nil {
			return nil, err
		}
	}
	shortfall, err := fp.Sub(amount, assigned)
	if err != nil {
		return nil, err
	}
	if shortfall.IsZero() || n == 0 {
		return shares, nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rotated := func(i int) int { return ((i-cursor)%n + n) % n }
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if remainders[ia] != remainders[ib] {
			return remainders[ia] > remainders[ib]
		}
		return rotated(ia) < rotated(ib)
	})
	// shortfall < n since each floor loses less than one unit.
	for k := uint64(0); k < shortfall.Uint64(); k++ {
		idx := order[k]
		shares[idx] = new(uint256.Int).AddUint64(shares[idx], 1)
	}
	return shares, nil
}
