package treasury

import (
	"math/big"

	"github.com/holiman/uint256"

	fp "gravitywell/native/fixedpoint"
)

// ZapResult is the aggregate of one zap: LP minted across every deposit step
// and the amounts those deposits added to the pool. Per-bucket detail lives in
// bucket state.
type ZapResult struct {
	LPMinted     *uint256.Int
	NativeAdded  *uint256.Int
	ForeignAdded *uint256.Int
}

func emptyZapResult() *ZapResult {
	return &ZapResult{LPMinted: fp.Zero(), NativeAdded: fp.Zero(), ForeignAdded: fp.Zero()}
}

// Deposited reports whether the zap added any liquidity.
func (r *ZapResult) Deposited() bool {
	return r != nil && !fp.IsZero(r.LPMinted)
}

// Zap drains as much of the buffer into p as the pool ratio allows.
//
// An empty pool is seeded with the whole buffer when both sides are present.
// Otherwise the ratio-matched part is deposited, the optimal fraction of the
// remaining excess is swapped through the pool, and the newly matched pair is
// deposited too. Whatever cannot be paired stays buffered. LP minted across
// the steps is split across buckets once, at the end.
func (a *Allocator) Zap(p LiquidityPool) (*ZapResult, error) {
	if p == nil {
		return nil, errNilPool
	}
	res := emptyZapResult()
	if a.paused() {
		return res, nil
	}
	if p.IsEmpty() {
		if err := a.seed(p, res); err != nil {
			return nil, err
		}
	} else {
		if err := a.depositMatched(p, res); err != nil {
			return nil, err
		}
		if err := a.rebalanceExcess(p, res); err != nil {
			return nil, err
		}
	}
	if res.LPMinted.IsZero() {
		return res, nil
	}
	if err := a.distribute(res.LPMinted, res.NativeAdded, res.ForeignAdded); err != nil {
		return nil, err
	}
	return res, nil
}

// Pending reports whether a zap against p would make progress. It does not
// mutate anything.
func (a *Allocator) Pending(p LiquidityPool) bool {
	if p == nil || a.paused() {
		return false
	}
	if a.bufferNative.IsZero() && a.bufferForeign.IsZero() {
		return false
	}
	if p.IsEmpty() {
		if a.bufferNative.IsZero() || a.bufferForeign.IsZero() {
			return false
		}
		minted, err := p.QuoteLiquidity(a.bufferNative, a.bufferForeign)
		return err == nil && !minted.IsZero()
	}
	if !a.bufferNative.IsZero() && !a.bufferForeign.IsZero() {
		n, f := matchedPair(p, a.bufferNative, a.bufferForeign)
		if !n.IsZero() && !f.IsZero() {
			if minted, err := p.QuoteLiquidity(n, f); err == nil && !minted.IsZero() {
				return true
			}
		}
	}
	x, foreignExcess := a.excessSwap(p)
	if x.IsZero() {
		return false
	}
	var out *uint256.Int
	var err error
	if foreignExcess {
		out, err = p.QuoteForeignForNative(x)
	} else {
		out, err = p.QuoteNativeForForeign(x)
	}
	return err == nil && !out.IsZero()
}

func (a *Allocator) seed(p LiquidityPool, res *ZapResult) error {
	if a.bufferNative.IsZero() || a.bufferForeign.IsZero() {
		return nil
	}
	minted, err := p.QuoteLiquidity(a.bufferNative, a.bufferForeign)
	if err != nil || minted.IsZero() {
		return nil
	}
	return a.deposit(p, a.bufferNative, a.bufferForeign, res)
}

func (a *Allocator) deposit(p LiquidityPool, native, foreign *uint256.Int, res *ZapResult) error {
	native, foreign = fp.Clone(native), fp.Clone(foreign)
	lp, err := p.AddLiquidity(native, foreign)
	if err != nil {
		return err
	}
	if a.bufferNative, err = fp.Sub(a.bufferNative, native); err != nil {
		return err
	}
	if a.bufferForeign, err = fp.Sub(a.bufferForeign, foreign); err != nil {
		return err
	}
	res.LPMinted = new(uint256.Int).Add(res.LPMinted, lp)
	res.NativeAdded = new(uint256.Int).Add(res.NativeAdded, native)
	res.ForeignAdded = new(uint256.Int).Add(res.ForeignAdded, foreign)
	return nil
}

// depositMatched deposits the largest buffered pair matching the pool ratio.
func (a *Allocator) depositMatched(p LiquidityPool, res *ZapResult) error {
	if a.bufferNative.IsZero() || a.bufferForeign.IsZero() {
		return nil
	}
	n, f := matchedPair(p, a.bufferNative, a.bufferForeign)
	if n.IsZero() || f.IsZero() {
		return nil
	}
	minted, err := p.QuoteLiquidity(n, f)
	if err != nil || minted.IsZero() {
		return nil
	}
	return a.deposit(p, n, f, res)
}

// rebalanceExcess swaps part of a one-sided buffer so the remainder and the
// swap output form a matched pair, then deposits it.
func (a *Allocator) rebalanceExcess(p LiquidityPool, res *ZapResult) error {
	x, foreignExcess := a.excessSwap(p)
	if x.IsZero() {
		return nil
	}
	if foreignExcess {
		out, err := p.QuoteForeignForNative(x)
		if err != nil || out.IsZero() {
			return nil
		}
		swap, err := p.SwapForeignForNative(x)
		if err != nil {
			return err
		}
		a.bufferForeign = new(uint256.Int).Sub(a.bufferForeign, x)
		if a.bufferNative, err = fp.Add(a.bufferNative, swap.AmountOut); err != nil {
			return err
		}
	} else {
		out, err := p.QuoteNativeForForeign(x)
		if err != nil || out.IsZero() {
			return nil
		}
		swap, err := p.SwapNativeForForeign(x)
		if err != nil {
			return err
		}
		a.bufferNative = new(uint256.Int).Sub(a.bufferNative, x)
		if a.bufferForeign, err = fp.Add(a.bufferForeign, swap.AmountOut); err != nil {
			return err
		}
	}
	return a.depositMatched(p, res)
}

// excessSwap returns how much of the unmatched buffer to swap, and which
// side it is on. Zero means nothing is worth swapping.
func (a *Allocator) excessSwap(p LiquidityPool) (*uint256.Int, bool) {
	n, f := matchedPair(p, a.bufferNative, a.bufferForeign)
	leftoverNative := new(uint256.Int).Sub(a.bufferNative, n)
	leftoverForeign := new(uint256.Int).Sub(a.bufferForeign, f)
	var excess *uint256.Int
	foreignExcess := false
	switch {
	case !leftoverForeign.IsZero():
		excess, foreignExcess = leftoverForeign, true
	case !leftoverNative.IsZero():
		excess = leftoverNative
	default:
		return fp.Zero(), false
	}
	if excess.IsZero() || excess.Lt(fp.Clone(a.minZapSwap)) {
		return fp.Zero(), false
	}
	reserveNative, reserveForeign := p.Reserves()
	reserve := reserveNative
	if foreignExcess {
		reserve = reserveForeign
	}
	x, err := fp.FromBig(optimalSwap(reserve, excess, p.FeePPM()))
	if err != nil {
		return fp.Zero(), false
	}
	return fp.Min(x, excess), foreignExcess
}

// matchedPair returns the largest (native, foreign) within the buffers that
// matches the pool ratio. The dependent side is rounded up, capped at its
// buffer, so LP minted is governed by the limiting side.
func matchedPair(p LiquidityPool, bufNative, bufForeign *uint256.Int) (native, foreign *uint256.Int) {
	reserveNative, reserveForeign := p.Reserves()
	if reserveNative.IsZero() || reserveForeign.IsZero() {
		return fp.Zero(), fp.Zero()
	}
	lhs := new(big.Int).Mul(bufNative.ToBig(), reserveForeign.ToBig())
	rhs := new(big.Int).Mul(bufForeign.ToBig(), reserveNative.ToBig())
	if lhs.Cmp(rhs) <= 0 {
		f, err := fp.MulDivCeil(bufNative, reserveForeign, reserveNative)
		if err != nil {
			return fp.Zero(), fp.Zero()
		}
		return fp.Clone(bufNative), fp.Min(f, bufForeign)
	}
	n, err := fp.MulDivCeil(bufForeign, reserveNative, reserveForeign)
	if err != nil {
		return fp.Zero(), fp.Zero()
	}
	return fp.Min(n, bufNative), fp.Clone(bufForeign)
}

// optimalSwap returns the portion x of a one-sided amount e to swap into a
// reserve r so that the swap output and e-x match the post-swap ratio:
//
//	x = (sqrt(r^2*(P+g)^2 + 4*g*P*r*e) - r*(P+g)) / (2*g),   g = PPM - fee
//
// The root is floored, so x never overshoots.
func optimalSwap(reserve, excess *uint256.Int, feePPM uint64) *big.Int {
	if feePPM >= fp.PPM {
		return new(big.Int)
	}
	p := new(big.Int).SetUint64(fp.PPM)
	g := new(big.Int).SetUint64(fp.PPM - feePPM)
	r := reserve.ToBig()

	a := new(big.Int).Mul(r, new(big.Int).Add(p, g))
	disc := new(big.Int).Mul(a, a)
	term := new(big.Int).Mul(g, p)
	term.Mul(term, r)
	term.Mul(term, excess.ToBig())
	term.Lsh(term, 2)
	disc.Add(disc, term)

	x := new(big.Int).Sqrt(disc)
	x.Sub(x, a)
	if x.Sign() <= 0 {
		return new(big.Int)
	}
	return x.Quo(x, new(big.Int).Lsh(g, 1))
}
