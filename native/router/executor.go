package router

import (
	"github.com/holiman/uint256"

	nativecommon "gravitywell/native/common"
	"gravitywell/native/curve"
	"gravitywell/native/fees"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/pool"
)

// BuyRequest spends foreign for native. A nil MinNativeOut accepts any output.
type BuyRequest struct {
	ForeignIn    *uint256.Int
	MinNativeOut *uint256.Int
}

// SellRequest spends native for foreign. A nil MinForeignOut accepts any
// output.
type SellRequest struct {
	NativeIn      *uint256.Int
	MinForeignOut *uint256.Int
}

// Result is the outcome of a filled request. Exactly one of Mint and Swap is
// set, matching Route. Conversion is set when a foreign fee triggered a
// conversion attempt; NativeFeeBurned when a native fee was burned.
type Result struct {
	Direction       Direction
	Route           Route
	AmountIn        *uint256.Int
	Fee             *uint256.Int
	Net             *uint256.Int
	AmountOut       *uint256.Int
	PriceBefore     *uint256.Int
	PriceAfter      *uint256.Int
	Mint            *curve.MintResult
	Swap            *pool.SwapResult
	Conversion      *fees.ConversionResult
	NativeFeeBurned *uint256.Int
}

func checkMinOut(out, min *uint256.Int) error {
	if out.IsZero() {
		return errZeroOutput
	}
	if out.Lt(fp.Clone(min)) {
		return errSlippage
	}
	return nil
}

// Buy fills a foreign-for-native request on the better venue. The minimum
// output is checked against the quote before anything mutates and again
// against the realized output.
func (r *Router) Buy(req BuyRequest, v Venues) (*Result, error) {
	if err := nativecommon.Guard(r.pauses, ModuleName); err != nil {
		return nil, err
	}
	quote, err := r.Quote(QuoteRequest{Direction: DirectionBuy, AmountIn: req.ForeignIn}, v)
	if err != nil {
		return nil, err
	}
	if err := checkMinOut(quote.AmountOut, req.MinNativeOut); err != nil {
		return nil, err
	}

	res := &Result{
		Direction: DirectionBuy,
		Route:     quote.Route,
		AmountIn:  quote.AmountIn,
		Fee:       quote.Fee,
		Net:       quote.Net,
	}
	switch quote.Route {
	case RouteCurve:
		mint, err := v.Curve.Mint(quote.Net, v.Treasury)
		if err != nil {
			return nil, err
		}
		res.Mint = mint
		res.AmountOut = fp.Clone(mint.User)
		res.PriceBefore, res.PriceAfter = mint.PriceBefore, mint.PriceAfter
	default:
		swap, err := v.Pool.SwapForeignForNative(quote.Net)
		if err != nil {
			return nil, err
		}
		res.Swap = swap
		res.AmountOut = fp.Clone(swap.AmountOut)
		res.PriceBefore, res.PriceAfter = swap.PriceBefore, swap.PriceAfter
	}
	if err := checkMinOut(res.AmountOut, req.MinNativeOut); err != nil {
		return nil, err
	}

	if !quote.Fee.IsZero() && v.Fees != nil {
		conv, err := v.Fees.ReceiveFeeForeign(quote.Fee, v.Pool, v.Curve)
		if err != nil {
			return nil, err
		}
		res.Conversion = conv
	}
	r.swaps++
	return res, nil
}

// Sell fills a native-for-foreign request. The curve has no redemption path,
// so sells always use the pool; the native fee is burned.
func (r *Router) Sell(req SellRequest, v Venues) (*Result, error) {
	if err := nativecommon.Guard(r.pauses, ModuleName); err != nil {
		return nil, err
	}
	quote, err := r.Quote(QuoteRequest{Direction: DirectionSell, AmountIn: req.NativeIn}, v)
	if err != nil {
		return nil, err
	}
	if err := checkMinOut(quote.AmountOut, req.MinForeignOut); err != nil {
		return nil, err
	}
	swap, err := v.Pool.SwapNativeForForeign(quote.Net)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Direction:   DirectionSell,
		Route:       RoutePool,
		AmountIn:    quote.AmountIn,
		Fee:         quote.Fee,
		Net:         quote.Net,
		AmountOut:   fp.Clone(swap.AmountOut),
		PriceBefore: swap.PriceBefore,
		PriceAfter:  swap.PriceAfter,
		Swap:        swap,
	}
	if err := checkMinOut(res.AmountOut, req.MinForeignOut); err != nil {
		return nil, err
	}
	if !quote.Fee.IsZero() && v.Fees != nil {
		burned, err := v.Fees.ReceiveFeeNative(quote.Fee, v.Curve)
		if err != nil {
			return nil, err
		}
		res.NativeFeeBurned = burned
	}
	r.swaps++
	return res, nil
}
