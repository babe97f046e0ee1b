package curve

import (
	"math/big"

	"github.com/holiman/uint256"

	fp "gravitywell/native/fixedpoint"
)

var bigPrecision = new(big.Int).SetUint64(fp.PrecisionUint64)

// basePrice returns price(supply)*Precision exactly:
// priceInitial*P + slope*supply.
func basePrice(priceInitial, slope, supply *uint256.Int) *big.Int {
	b := new(big.Int).Mul(priceInitial.ToBig(), bigPrecision)
	return b.Add(b, new(big.Int).Mul(slope.ToBig(), supply.ToBig()))
}

// solveMint returns the largest m (floor) whose cost does not exceed foreign.
//
// The cost of minting m at supply s is the area under the linear price:
//
//	2*P^2*F = 2*B*m + slope*m^2,   B = priceInitial*P + slope*s
//
// Solved in the rationalised form
//
//	m = 2*P^2*F / (B + sqrt(B^2 + 2*slope*P^2*F))
//
// which has no division by slope, so slope = 0 reduces to m = P^2*F/B. The
// square root is rounded up and the quotient down, so the result never
// exceeds the exact root and minting never costs more than was paid.
func solveMint(priceInitial, slope, supply, foreign *uint256.Int) *big.Int {
	b := basePrice(priceInitial, slope, supply)
	p2 := new(big.Int).Mul(bigPrecision, bigPrecision)
	twoP2F := new(big.Int).Mul(p2, foreign.ToBig())
	twoP2F.Lsh(twoP2F, 1)

	disc := new(big.Int).Mul(b, b)
	disc.Add(disc, new(big.Int).Mul(slope.ToBig(), twoP2F))
	denominator := new(big.Int).Add(b, fp.BigSqrtCeil(disc))
	if denominator.Sign() == 0 {
		return new(big.Int)
	}
	return twoP2F.Quo(twoP2F, denominator)
}

// costOf returns ceil(foreign cost) of minting m at supply s:
// (2*B*m + slope*m^2) / (2*P^2).
func costOf(priceInitial, slope, supply, minted *uint256.Int) *big.Int {
	b := basePrice(priceInitial, slope, supply)
	m := minted.ToBig()
	num := new(big.Int).Mul(b, m)
	num.Lsh(num, 1)
	num.Add(num, new(big.Int).Mul(slope.ToBig(), new(big.Int).Mul(m, m)))
	den := new(big.Int).Mul(bigPrecision, bigPrecision)
	den.Lsh(den, 1)
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}
