// Package pool implements the constant-product market between native and
// foreign. Swaps charge the fee on input and the fee stays in the reserves, so
// reserve_native*reserve_foreign never decreases across swaps. Quotes and
// swaps share one pricing function. LP tokens are minted as the geometric mean
// on the first deposit and pro rata afterwards.
package pool

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	fp "gravitywell/native/fixedpoint"
)

var (
	errInvalidFee     = fmt.Errorf("pool: fee must be below 100%%: %w", coreerrors.ErrValidation)
	errEmpty          = fmt.Errorf("pool: reserves empty: %w", coreerrors.ErrInsufficientLiquidity)
	errZeroInput      = fmt.Errorf("pool: amount must be positive: %w", coreerrors.ErrInsufficientAmount)
	errZeroOutput     = fmt.Errorf("pool: output rounds to zero: %w", coreerrors.ErrInsufficientAmount)
	errZeroLiquidity  = fmt.Errorf("pool: liquidity minted rounds to zero: %w", coreerrors.ErrInsufficientAmount)
	errFirstDeposit   = fmt.Errorf("pool: first deposit requires both assets: %w", coreerrors.ErrInsufficientAmount)
	errLPExceedsTotal = fmt.Errorf("pool: lp amount exceeds supply: %w", coreerrors.ErrInsufficientLiquidity)
)

// Pool is a constant-product market between the native token and the
// foreign asset. It is not safe for concurrent use; the owning engine
// serialises access.
type Pool struct {
	reserveNative  *uint256.Int
	reserveForeign *uint256.Int
	supplyLP       *uint256.Int
	feePPM         uint64
}

// State is the persisted form of a pool.
type State struct {
	ReserveNative  *uint256.Int
	ReserveForeign *uint256.Int
	SupplyLP       *uint256.Int
	FeePPM         uint64
}

// SwapResult summarises an executed swap.
type SwapResult struct {
	AmountIn    *uint256.Int
	AmountOut   *uint256.Int
	LPFee       *uint256.Int
	PriceBefore *uint256.Int
	PriceAfter  *uint256.Int
}

// New constructs an empty pool charging feePPM on every swap input.
func New(feePPM uint64) (*Pool, error) {
	if feePPM >= fp.PPM {
		return nil, errInvalidFee
	}
	return &Pool{
		reserveNative:  fp.Zero(),
		reserveForeign: fp.Zero(),
		supplyLP:       fp.Zero(),
		feePPM:         feePPM,
	}, nil
}

// FromState rebuilds a pool from a snapshot.
func FromState(state State) (*Pool, error) {
	p, err := New(state.FeePPM)
	if err != nil {
		return nil, err
	}
	p.reserveNative = fp.Clone(state.ReserveNative)
	p.reserveForeign = fp.Clone(state.ReserveForeign)
	p.supplyLP = fp.Clone(state.SupplyLP)
	return p, nil
}

// State returns a copy of the pool state.
func (p *Pool) State() State {
	return State{
		ReserveNative:  fp.Clone(p.reserveNative),
		ReserveForeign: fp.Clone(p.reserveForeign),
		SupplyLP:       fp.Clone(p.supplyLP),
		FeePPM:         p.feePPM,
	}
}

// Clone returns an independent copy used for checkpoints.
func (p *Pool) Clone() *Pool {
	clone, _ := FromState(p.State())
	return clone
}

// FeePPM returns the swap fee ratio.
func (p *Pool) FeePPM() uint64 { return p.feePPM }

// Reserves returns copies of the native and foreign reserves.
func (p *Pool) Reserves() (native, foreign *uint256.Int) {
	return fp.Clone(p.reserveNative), fp.Clone(p.reserveForeign)
}

// SupplyLP returns the outstanding LP token supply.
func (p *Pool) SupplyLP() *uint256.Int { return fp.Clone(p.supplyLP) }

// IsEmpty reports whether either reserve is zero.
func (p *Pool) IsEmpty() bool {
	return p.reserveNative.IsZero() || p.reserveForeign.IsZero()
}

// K returns reserve_native*reserve_foreign at full width.
func (p *Pool) K() *big.Int {
	return new(big.Int).Mul(p.reserveNative.ToBig(), p.reserveForeign.ToBig())
}

// SpotPrice returns the foreign price of one native token, scaled by Precision.
func (p *Pool) SpotPrice() (*uint256.Int, error) {
	if p.reserveNative.IsZero() {
		return nil, errEmpty
	}
	return fp.MulDiv(p.reserveForeign, fp.Precision(), p.reserveNative)
}

// QuoteOut is the single fee-on-input formula used by every quote and every
// executed swap:
//
//	effective = amountIn*(PPM-fee)/PPM
//	out       = reserveOut*effective/(reserveIn+effective)
func QuoteOut(amountIn, reserveIn, reserveOut *uint256.Int, feePPM uint64) (*uint256.Int, error) {
	if fp.IsZero(reserveIn) || fp.IsZero(reserveOut) {
		return nil, errEmpty
	}
	if fp.IsZero(amountIn) {
		return nil, errZeroInput
	}
	if feePPM >= fp.PPM {
		return nil, errInvalidFee
	}
	effective, err := fp.MulDivPPM(amountIn, fp.PPM-feePPM)
	if err != nil {
		return nil, err
	}
	denominator, err := fp.Add(reserveIn, effective)
	if err != nil {
		return nil, err
	}
	return fp.MulDiv(reserveOut, effective, denominator)
}

// QuoteForeignForNative returns the native output for foreignIn.
func (p *Pool) QuoteForeignForNative(foreignIn *uint256.Int) (*uint256.Int, error) {
	return QuoteOut(foreignIn, p.reserveForeign, p.reserveNative, p.feePPM)
}

// QuoteNativeForForeign returns the foreign output for nativeIn.
func (p *Pool) QuoteNativeForForeign(nativeIn *uint256.Int) (*uint256.Int, error) {
	return QuoteOut(nativeIn, p.reserveNative, p.reserveForeign, p.feePPM)
}

// SwapForeignForNative moves foreignIn into the pool and returns native.
func (p *Pool) SwapForeignForNative(foreignIn *uint256.Int) (*SwapResult, error) {
	return p.swap(foreignIn, true)
}

// SwapNativeForForeign moves nativeIn into the pool and returns foreign.
func (p *Pool) SwapNativeForForeign(nativeIn *uint256.Int) (*SwapResult, error) {
	return p.swap(nativeIn, false)
}

func (p *Pool) swap(amountIn *uint256.Int, foreignIn bool) (*SwapResult, error) {
	reserveIn, reserveOut := p.reserveNative, p.reserveForeign
	if foreignIn {
		reserveIn, reserveOut = p.reserveForeign, p.reserveNative
	}
	out, err := QuoteOut(amountIn, reserveIn, reserveOut, p.feePPM)
	if err != nil {
		return nil, err
	}
	if out.IsZero() {
		return nil, errZeroOutput
	}
	priceBefore, err := p.SpotPrice()
	if err != nil {
		return nil, err
	}
	nextIn, err := fp.Add(reserveIn, amountIn)
	if err != nil {
		return nil, err
	}
	nextOut, err := fp.Sub(reserveOut, out)
	if err != nil {
		return nil, err
	}
	effective, err := fp.MulDivPPM(amountIn, fp.PPM-p.feePPM)
	if err != nil {
		return nil, err
	}
	lpFee, err := fp.Sub(amountIn, effective)
	if err != nil {
		return nil, err
	}

	if foreignIn {
		p.reserveForeign, p.reserveNative = nextIn, nextOut
	} else {
		p.reserveNative, p.reserveForeign = nextIn, nextOut
	}
	priceAfter, err := p.SpotPrice()
	if err != nil {
		return nil, err
	}
	return &SwapResult{
		AmountIn:    fp.Clone(amountIn),
		AmountOut:   out,
		LPFee:       lpFee,
		PriceBefore: priceBefore,
		PriceAfter:  priceAfter,
	}, nil
}

// QuoteLiquidity returns the LP tokens AddLiquidity would mint.
func (p *Pool) QuoteLiquidity(native, foreign *uint256.Int) (*uint256.Int, error) {
	if fp.IsZero(native) || fp.IsZero(foreign) {
		if p.supplyLP.IsZero() {
			return nil, errFirstDeposit
		}
		return nil, errZeroInput
	}
	if p.supplyLP.IsZero() || p.IsEmpty() {
		product, err := fp.Mul(native, foreign)
		if err != nil {
			return nil, err
		}
		return fp.ISqrt(product), nil
	}
	byNative, err := fp.MulDiv(native, p.supplyLP, p.reserveNative)
	if err != nil {
		return nil, err
	}
	byForeign, err := fp.MulDiv(foreign, p.supplyLP, p.reserveForeign)
	if err != nil {
		return nil, err
	}
	return fp.Min(byNative, byForeign), nil
}

// AddLiquidity deposits both assets. The first deposit fixes the price ratio
// and mints isqrt(native*foreign); later deposits mint in proportion to the
// smaller relative contribution, so any excess accrues to existing holders.
// Matching the ratio beforehand is the caller's job.
func (p *Pool) AddLiquidity(native, foreign *uint256.Int) (*uint256.Int, error) {
	minted, err := p.QuoteLiquidity(native, foreign)
	if err != nil {
		return nil, err
	}
	if minted.IsZero() {
		return nil, errZeroLiquidity
	}
	nextNative, err := fp.Add(p.reserveNative, native)
	if err != nil {
		return nil, err
	}
	nextForeign, err := fp.Add(p.reserveForeign, foreign)
	if err != nil {
		return nil, err
	}
	nextSupply, err := fp.Add(p.supplyLP, minted)
	if err != nil {
		return nil, err
	}
	p.reserveNative, p.reserveForeign, p.supplyLP = nextNative, nextForeign, nextSupply
	return minted, nil
}

// RemoveLiquidity burns lp and returns the pro-rata share of both reserves.
func (p *Pool) RemoveLiquidity(lp *uint256.Int) (native, foreign *uint256.Int, err error) {
	if fp.IsZero(lp) {
		return nil, nil, errZeroInput
	}
	if lp.Gt(p.supplyLP) {
		return nil, nil, errLPExceedsTotal
	}
	native, err = fp.MulDiv(p.reserveNative, lp, p.supplyLP)
	if err != nil {
		return nil, nil, err
	}
	foreign, err = fp.MulDiv(p.reserveForeign, lp, p.supplyLP)
	if err != nil {
		return nil, nil, err
	}
	p.reserveNative = new(uint256.Int).Sub(p.reserveNative, native)
	p.reserveForeign = new(uint256.Int).Sub(p.reserveForeign, foreign)
	p.supplyLP = new(uint256.Int).Sub(p.supplyLP, lp)
	return native, foreign, nil
}
