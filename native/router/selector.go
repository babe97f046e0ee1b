package router

import (
	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	"gravitywell/native/fees"
	fp "gravitywell/native/fixedpoint"
)

// QuoteRequest asks what a trade would return without executing it.
type QuoteRequest struct {
	Direction Direction
	AmountIn  *uint256.Int
}

// Quote describes the route a request would take. CurveOut is nil when the
// curve cannot fill the request and PoolOut is nil when the pool cannot.
type Quote struct {
	Direction Direction
	Route     Route
	AmountIn  *uint256.Int
	Fee       *uint256.Int
	Net       *uint256.Int
	AmountOut *uint256.Int
	CurveOut  *uint256.Int
	PoolOut   *uint256.Int
}

// selectBuy compares what the caller would receive from each venue for net
// foreign. The curve figure is the caller's share after the treasury split.
// Equal outputs go to the curve.
func selectBuy(v Venues, net *uint256.Int) (Route, *uint256.Int, *uint256.Int, *uint256.Int, error) {
	curveOut, err := v.Curve.QuoteUserMint(net)
	if err != nil {
		if !coreerrors.Is(err, coreerrors.ErrInsufficientAmount) {
			return "", nil, nil, nil, err
		}
		curveOut = nil
	}
	poolOut, err := v.Pool.QuoteForeignForNative(net)
	if err != nil {
		if !coreerrors.Is(err, coreerrors.ErrInsufficientLiquidity) && !coreerrors.Is(err, coreerrors.ErrInsufficientAmount) {
			return "", nil, nil, nil, err
		}
		poolOut = nil
	}
	switch {
	case curveOut == nil && poolOut == nil:
		return "", nil, nil, nil, errNoRoute
	case poolOut == nil:
		return RouteCurve, curveOut, curveOut, nil, nil
	case curveOut == nil:
		return RoutePool, poolOut, nil, poolOut, nil
	case curveOut.Cmp(poolOut) >= 0:
		return RouteCurve, curveOut, curveOut, poolOut, nil
	default:
		return RoutePool, poolOut, curveOut, poolOut, nil
	}
}

// validateBuy applies the foreign thresholds.
func (r *Router) validateBuy(amount *uint256.Int) error {
	if fp.IsZero(amount) || amount.Lt(fp.Clone(r.cfg.MinSwapForeign)) {
		return errBelowMinimum
	}
	if r.swaps == 0 && amount.Lt(fp.Clone(r.cfg.MinInitialForeign)) {
		return errBelowInitial
	}
	return nil
}

// validateSell applies the native threshold.
func (r *Router) validateSell(amount *uint256.Int) error {
	if fp.IsZero(amount) || amount.Lt(fp.Clone(r.cfg.MinSwapNative)) {
		return errBelowMinimum
	}
	return nil
}

// Quote prices a request on the same path execution would take, without
// mutating anything.
func (r *Router) Quote(req QuoteRequest, v Venues) (*Quote, error) {
	if err := v.validate(); err != nil {
		return nil, err
	}
	switch req.Direction {
	case DirectionBuy:
		return r.quoteBuy(req.AmountIn, v)
	case DirectionSell:
		return r.quoteSell(req.AmountIn, v)
	default:
		return nil, errUnknownRequest
	}
}

func (r *Router) quoteBuy(amount *uint256.Int, v Venues) (*Quote, error) {
	if err := r.validateBuy(amount); err != nil {
		return nil, err
	}
	split, err := fees.Apply(r.cfg.FeePPM, amount)
	if err != nil {
		return nil, err
	}
	route, out, curveOut, poolOut, err := selectBuy(v, split.Net)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Direction: DirectionBuy,
		Route:     route,
		AmountIn:  split.Gross,
		Fee:       split.Fee,
		Net:       split.Net,
		AmountOut: out,
		CurveOut:  curveOut,
		PoolOut:   poolOut,
	}, nil
}

func (r *Router) quoteSell(amount *uint256.Int, v Venues) (*Quote, error) {
	if err := r.validateSell(amount); err != nil {
		return nil, err
	}
	split, err := fees.Apply(r.cfg.FeePPM, amount)
	if err != nil {
		return nil, err
	}
	out, err := v.Pool.QuoteNativeForForeign(split.Net)
	if err != nil {
		return nil, err
	}
	return &Quote{
		Direction: DirectionSell,
		Route:     RoutePool,
		AmountIn:  split.Gross,
		Fee:       split.Fee,
		Net:       split.Net,
		AmountOut: out,
		PoolOut:   out,
	}, nil
}
