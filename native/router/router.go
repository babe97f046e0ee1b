// Package router is the single trading entry point. It deducts the fee once,
// picks the better of minting on the curve and swapping in the pool, enforces
// the caller's minimum output and forwards the fee for burning.
package router

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	nativecommon "gravitywell/native/common"
	"gravitywell/native/curve"
	"gravitywell/native/fees"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/pool"
)

// ModuleName identifies the router for pause checks.
const ModuleName = "router"

// Route names the venue that filled a request.
type Route string

const (
	RouteCurve Route = "curve"
	RoutePool  Route = "pool"
)

// Direction distinguishes buys from sells in quotes and outcomes.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

var (
	errFeeRatio       = fmt.Errorf("router: fee must be below 100%%: %w", coreerrors.ErrValidation)
	errBelowMinimum   = fmt.Errorf("router: amount below minimum swap: %w", coreerrors.ErrInsufficientAmount)
	errBelowInitial   = fmt.Errorf("router: first swap below minimum initial amount: %w", coreerrors.ErrInsufficientAmount)
	errZeroOutput     = fmt.Errorf("router: request yields no output: %w", coreerrors.ErrInsufficientAmount)
	errSlippage       = fmt.Errorf("router: output below requested minimum: %w", coreerrors.ErrSlippageExceeded)
	errNoRoute        = fmt.Errorf("router: no route available: %w", coreerrors.ErrInsufficientLiquidity)
	errMissingVenue   = fmt.Errorf("router: curve and pool required: %w", coreerrors.ErrValidation)
	errUnknownRequest = fmt.Errorf("router: unknown direction: %w", coreerrors.ErrValidation)
)

// Minter is the curve capability. *curve.Curve satisfies it.
type Minter interface {
	QuoteUserMint(foreignIn *uint256.Int) (*uint256.Int, error)
	Mint(foreignIn *uint256.Int, sink curve.TreasurySink) (*curve.MintResult, error)
	Burn(amount *uint256.Int) (*curve.BurnResult, error)
	SpotPrice() (*uint256.Int, error)
}

// Market is the pool capability. *pool.Pool satisfies it.
type Market interface {
	SpotPrice() (*uint256.Int, error)
	QuoteForeignForNative(foreignIn *uint256.Int) (*uint256.Int, error)
	QuoteNativeForForeign(nativeIn *uint256.Int) (*uint256.Int, error)
	SwapForeignForNative(foreignIn *uint256.Int) (*pool.SwapResult, error)
	SwapNativeForForeign(nativeIn *uint256.Int) (*pool.SwapResult, error)
}

// FeeSink receives the deducted fee. *fees.Manager satisfies it.
type FeeSink interface {
	ReceiveFeeForeign(amount *uint256.Int, market fees.Market, burner fees.Burner) (*fees.ConversionResult, error)
	ReceiveFeeNative(amount *uint256.Int, burner fees.Burner) (*uint256.Int, error)
}

// Venues bundles the collaborators a request touches. The owning engine
// assembles it per call.
type Venues struct {
	Curve    Minter
	Pool     Market
	Treasury curve.TreasurySink
	Fees     FeeSink
}

func (v Venues) validate() error {
	if v.Curve == nil || v.Pool == nil {
		return errMissingVenue
	}
	return nil
}

// Config carries the immutable router parameters.
type Config struct {
	FeePPM            uint64
	MinSwapForeign    *uint256.Int
	MinSwapNative     *uint256.Int
	MinInitialForeign *uint256.Int
}

// Validate checks the fee ratio.
func (c Config) Validate() error {
	if c.FeePPM >= fp.PPM {
		return errFeeRatio
	}
	return nil
}

// State is the persisted form of the router.
type State struct {
	Swaps uint64
}

// Router holds the routing parameters and the swap counter used to detect
// the first-ever swap. It is not safe for concurrent use.
type Router struct {
	cfg    Config
	swaps  uint64
	pauses nativecommon.PauseView
}

// New validates cfg.
func New(cfg Config) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Router{cfg: Config{
		FeePPM:            cfg.FeePPM,
		MinSwapForeign:    fp.Clone(cfg.MinSwapForeign),
		MinSwapNative:     fp.Clone(cfg.MinSwapNative),
		MinInitialForeign: fp.Clone(cfg.MinInitialForeign),
	}}, nil
}

// SetPauses wires the pause view consulted before every trade.
func (r *Router) SetPauses(p nativecommon.PauseView) {
	if r == nil {
		return
	}
	r.pauses = p
}

// Config returns the router parameters.
func (r *Router) Config() Config { return r.cfg }

// Swaps returns the number of filled requests.
func (r *Router) Swaps() uint64 { return r.swaps }

// State returns the mutable state.
func (r *Router) State() State { return State{Swaps: r.swaps} }

// Restore replaces the mutable state.
func (r *Router) Restore(state State) { r.swaps = state.Swaps }

// Clone returns an independent copy used for checkpoints.
func (r *Router) Clone() *Router {
	clone := *r
	return &clone
}
