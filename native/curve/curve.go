// Package curve implements the linear token minting curve. Native tokens are
// issued against foreign payment at price(s) = priceInitial + slope*s/P; the
// curve has no redemption path.
package curve

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	fp "gravitywell/native/fixedpoint"
)

var (
	errSharesSum         = fmt.Errorf("curve: user and treasury shares must sum to 1e6 ppm: %w", coreerrors.ErrValidation)
	errZeroPrice         = fmt.Errorf("curve: initial price and slope cannot both be zero: %w", coreerrors.ErrValidation)
	errZeroPayment       = fmt.Errorf("curve: foreign payment must be positive: %w", coreerrors.ErrInsufficientAmount)
	errZeroMint          = fmt.Errorf("curve: payment mints nothing: %w", coreerrors.ErrInsufficientAmount)
	errZeroBurn          = fmt.Errorf("curve: burn amount must be positive: %w", coreerrors.ErrInsufficientAmount)
	errBurnExceedsSupply = fmt.Errorf("curve: burn exceeds supply: %w", coreerrors.ErrInsufficientSupply)
)

// Params are the immutable curve parameters.
type Params struct {
	PriceInitial *uint256.Int
	Slope        *uint256.Int
	UserPPM      uint64
	TreasuryPPM  uint64
}

// Validate checks the share split and price parameters.
func (p Params) Validate() error {
	if p.UserPPM+p.TreasuryPPM != fp.PPM || p.UserPPM > fp.PPM {
		return errSharesSum
	}
	if fp.IsZero(p.PriceInitial) && fp.IsZero(p.Slope) {
		return errZeroPrice
	}
	return nil
}

// TreasurySink receives the treasury share of every mint together with the
// foreign payment backing it.
type TreasurySink interface {
	ReceiveMintAllocation(native, foreign *uint256.Int) error
}

// MintResult is the aggregate outcome of a mint.
type MintResult struct {
	Foreign     *uint256.Int
	Minted      *uint256.Int
	User        *uint256.Int
	Treasury    *uint256.Int
	PriceBefore *uint256.Int
	PriceAfter  *uint256.Int
}

// BurnResult is the aggregate outcome of a burn.
type BurnResult struct {
	Amount      *uint256.Int
	PriceBefore *uint256.Int
	PriceAfter  *uint256.Int
}

// Curve tracks the issued supply. It is not safe for concurrent use.
type Curve struct {
	params Params
	supply *uint256.Int
}

// New validates params and constructs a curve at the given supply.
func New(params Params, supply *uint256.Int) (*Curve, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Curve{
		params: Params{
			PriceInitial: fp.Clone(params.PriceInitial),
			Slope:        fp.Clone(params.Slope),
			UserPPM:      params.UserPPM,
			TreasuryPPM:  params.TreasuryPPM,
		},
		supply: fp.Clone(supply),
	}, nil
}

// Clone returns an independent copy used for checkpoints.
func (c *Curve) Clone() *Curve {
	return &Curve{params: c.params, supply: fp.Clone(c.supply)}
}

// Params returns the curve parameters.
func (c *Curve) Params() Params { return c.params }

// Supply returns the issued native supply.
func (c *Curve) Supply() *uint256.Int { return fp.Clone(c.supply) }

// Price returns price(supply), floored to Precision.
func (c *Curve) Price(supply *uint256.Int) (*uint256.Int, error) {
	scaled := basePrice(c.params.PriceInitial, c.params.Slope, fp.Clone(supply))
	return fp.FromBig(scaled.Quo(scaled, bigPrecision))
}

// SpotPrice returns the price at the current supply.
func (c *Curve) SpotPrice() (*uint256.Int, error) { return c.Price(c.supply) }

// QuoteMint returns the total amount a foreign payment would mint.
func (c *Curve) QuoteMint(foreignIn *uint256.Int) (*uint256.Int, error) {
	if fp.IsZero(foreignIn) {
		return nil, errZeroPayment
	}
	minted, err := fp.FromBig(solveMint(c.params.PriceInitial, c.params.Slope, c.supply, foreignIn))
	if err != nil {
		return nil, err
	}
	if _, err := fp.Add(c.supply, minted); err != nil {
		return nil, err
	}
	return minted, nil
}

// Split divides a minted amount between the caller and the treasury. The
// treasury takes the rounding remainder so user+treasury == minted.
func (c *Curve) Split(minted *uint256.Int) (user, treasury *uint256.Int, err error) {
	user, err = fp.MulDivPPM(minted, c.params.UserPPM)
	if err != nil {
		return nil, nil, err
	}
	treasury, err = fp.Sub(minted, user)
	if err != nil {
		return nil, nil, err
	}
	return user, treasury, nil
}

// QuoteUserMint returns the portion of a mint that reaches the caller.
func (c *Curve) QuoteUserMint(foreignIn *uint256.Int) (*uint256.Int, error) {
	minted, err := c.QuoteMint(foreignIn)
	if err != nil {
		return nil, err
	}
	user, _, err := c.Split(minted)
	return user, err
}

// CostOf returns the foreign cost, rounded up, of minting amount at the
// current supply.
func (c *Curve) CostOf(amount *uint256.Int) (*uint256.Int, error) {
	return fp.FromBig(costOf(c.params.PriceInitial, c.params.Slope, c.supply, fp.Clone(amount)))
}

// Mint issues native tokens against foreignIn. The treasury share and the
// whole foreign payment go to sink before supply changes; a sink failure
// leaves the curve untouched.
func (c *Curve) Mint(foreignIn *uint256.Int, sink TreasurySink) (*MintResult, error) {
	minted, err := c.QuoteMint(foreignIn)
	if err != nil {
		return nil, err
	}
	if minted.IsZero() {
		return nil, errZeroMint
	}
	user, treasury, err := c.Split(minted)
	if err != nil {
		return nil, err
	}
	nextSupply, err := fp.Add(c.supply, minted)
	if err != nil {
		return nil, err
	}
	priceBefore, err := c.SpotPrice()
	if err != nil {
		return nil, err
	}
	if sink != nil {
		if err := sink.ReceiveMintAllocation(fp.Clone(treasury), fp.Clone(foreignIn)); err != nil {
			return nil, err
		}
	}
	c.supply = nextSupply
	priceAfter, err := c.SpotPrice()
	if err != nil {
		return nil, err
	}
	return &MintResult{
		Foreign:     fp.Clone(foreignIn),
		Minted:      minted,
		User:        user,
		Treasury:    treasury,
		PriceBefore: priceBefore,
		PriceAfter:  priceAfter,
	}, nil
}

// Burn destroys amount. PriceBefore is evaluated against the pre-burn supply.
func (c *Curve) Burn(amount *uint256.Int) (*BurnResult, error) {
	if fp.IsZero(amount) {
		return nil, errZeroBurn
	}
	if amount.Gt(c.supply) {
		return nil, errBurnExceedsSupply
	}
	priceBefore, err := c.SpotPrice()
	if err != nil {
		return nil, err
	}
	c.supply = new(uint256.Int).Sub(c.supply, amount)
	priceAfter, err := c.SpotPrice()
	if err != nil {
		return nil, err
	}
	return &BurnResult{Amount: fp.Clone(amount), PriceBefore: priceBefore, PriceAfter: priceAfter}, nil
}
