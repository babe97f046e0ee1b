package router

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	nativecommon "gravitywell/native/common"
	"gravitywell/native/curve"
	"gravitywell/native/fees"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/pool"
	"gravitywell/native/treasury"
)

type harness struct {
	router    *Router
	curve     *curve.Curve
	pool      *pool.Pool
	allocator *treasury.Allocator
	fees      *fees.Manager
}

func (h *harness) venues() Venues {
	return Venues{Curve: h.curve, Pool: h.pool, Treasury: h.allocator.Sink(h.pool), Fees: h.fees}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	r, err := New(cfg)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	c, err := curve.New(curve.Params{
		PriceInitial: uint256.NewInt(1_000_000_000),
		Slope:        uint256.NewInt(1_000_000_000),
		UserPPM:      333_333,
		TreasuryPPM:  666_667,
	}, fp.Zero())
	if err != nil {
		t.Fatalf("new curve: %v", err)
	}
	p, err := pool.New(3_000)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	a, err := treasury.New(treasury.Config{
		Buckets:    []treasury.BucketConfig{{ID: "floor", WeightPPM: 700_000}, {ID: "growth", WeightPPM: 300_000}},
		MinZapSwap: fp.Units(1),
	})
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	m, err := fees.NewManager(fees.Config{MinSwapForeign: fp.Units(1)})
	if err != nil {
		t.Fatalf("new fee manager: %v", err)
	}
	return &harness{router: r, curve: c, pool: p, allocator: a, fees: m}
}

func defaultConfig() Config {
	return Config{
		FeePPM:            5_000,
		MinSwapForeign:    fp.Units(1),
		MinSwapNative:     fp.Units(1),
		MinInitialForeign: fp.Units(10),
	}
}

type fakeMinter struct {
	out *uint256.Int
}

func (f *fakeMinter) QuoteUserMint(*uint256.Int) (*uint256.Int, error) { return fp.Clone(f.out), nil }

func (f *fakeMinter) Mint(foreignIn *uint256.Int, _ curve.TreasurySink) (*curve.MintResult, error) {
	return &curve.MintResult{Foreign: foreignIn, Minted: f.out, User: f.out, Treasury: fp.Zero(),
		PriceBefore: fp.Zero(), PriceAfter: fp.Zero()}, nil
}

func (f *fakeMinter) Burn(amount *uint256.Int) (*curve.BurnResult, error) {
	return &curve.BurnResult{Amount: amount}, nil
}

func (f *fakeMinter) SpotPrice() (*uint256.Int, error) { return fp.Units(1), nil }

type fakeMarket struct {
	out *uint256.Int
	err error
}

func (f *fakeMarket) SpotPrice() (*uint256.Int, error) { return fp.Units(1), f.err }

func (f *fakeMarket) QuoteForeignForNative(*uint256.Int) (*uint256.Int, error) {
	return fp.Clone(f.out), f.err
}

func (f *fakeMarket) QuoteNativeForForeign(*uint256.Int) (*uint256.Int, error) {
	return fp.Clone(f.out), f.err
}

func (f *fakeMarket) SwapForeignForNative(in *uint256.Int) (*pool.SwapResult, error) {
	return &pool.SwapResult{AmountIn: in, AmountOut: fp.Clone(f.out)}, f.err
}

func (f *fakeMarket) SwapNativeForForeign(in *uint256.Int) (*pool.SwapResult, error) {
	return &pool.SwapResult{AmountIn: in, AmountOut: fp.Clone(f.out)}, f.err
}

func TestNewRejectsFullFee(t *testing.T) {
	if _, err := New(Config{FeePPM: fp.PPM}); !errors.Is(err, coreerrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEmptyPoolSellFailsBuyMints(t *testing.T) {
	h := newHarness(t, defaultConfig())
	_, err := h.router.Sell(SellRequest{NativeIn: fp.Units(5)}, h.venues())
	if !errors.Is(err, coreerrors.ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	res, err := h.router.Buy(BuyRequest{ForeignIn: fp.Units(100)}, h.venues())
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if res.Route != RouteCurve || res.Mint == nil {
		t.Fatalf("expected curve route, got %s", res.Route)
	}
	if !res.AmountOut.Eq(res.Mint.User) {
		t.Fatalf("caller should receive the user share")
	}
	if h.pool.IsEmpty() {
		t.Fatalf("treasury share should have seeded the pool")
	}
}

func TestFeeDeductedOnce(t *testing.T) {
	h := newHarness(t, defaultConfig())
	res, err := h.router.Buy(BuyRequest{ForeignIn: fp.Units(1_000)}, h.venues())
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !res.Fee.Eq(fp.Units(5)) || !res.Net.Eq(fp.Units(995)) {
		t.Fatalf("fee %s net %s", res.Fee.Dec(), res.Net.Dec())
	}
	if !res.Mint.Foreign.Eq(fp.Units(995)) {
		t.Fatalf("curve received %s, want net 995 units", res.Mint.Foreign.Dec())
	}
	_, buffered := h.fees.Buffers()
	received := new(uint256.Int).Add(buffered, h.fees.TotalForeignConverted())
	if !received.Eq(fp.Units(5)) {
		t.Fatalf("fee manager received %s, want 5 units", received.Dec())
	}
}

func TestRouteSelection(t *testing.T) {
	cases := []struct {
		name     string
		curveOut uint64
		poolOut  uint64
		poolErr  error
		want     Route
	}{
		{name: "tie prefers curve", curveOut: 50, poolOut: 50, want: RouteCurve},
		{name: "pool better", curveOut: 49, poolOut: 50, want: RoutePool},
		{name: "curve better", curveOut: 51, poolOut: 50, want: RouteCurve},
		{name: "pool empty", curveOut: 1, poolErr: coreerrors.ErrInsufficientLiquidity, want: RouteCurve},
	}
	for _, tc := range cases {
		r, _ := New(Config{FeePPM: 0})
		v := Venues{
			Curve: &fakeMinter{out: uint256.NewInt(tc.curveOut)},
			Pool:  &fakeMarket{out: uint256.NewInt(tc.poolOut), err: tc.poolErr},
		}
		q, err := r.Quote(QuoteRequest{Direction: DirectionBuy, AmountIn: fp.Units(1)}, v)
		if err != nil {
			t.Fatalf("%s: quote: %v", tc.name, err)
		}
		if q.Route != tc.want {
			t.Fatalf("%s: route %s, want %s", tc.name, q.Route, tc.want)
		}
		res, err := r.Buy(BuyRequest{ForeignIn: fp.Units(1)}, v)
		if err != nil {
			t.Fatalf("%s: buy: %v", tc.name, err)
		}
		if res.Route != tc.want || !res.AmountOut.Eq(q.AmountOut) {
			t.Fatalf("%s: executed %s/%s, quoted %s/%s", tc.name, res.Route, res.AmountOut.Dec(), q.Route, q.AmountOut.Dec())
		}
	}
}

func TestPoolRouteAfterTreasuryDeepensPool(t *testing.T) {
	h := newHarness(t, defaultConfig())
	// Treasury liquidity lands below the curve price, so the pool becomes
	// the cheaper venue for small buys.
	if _, err := h.router.Buy(BuyRequest{ForeignIn: fp.Units(100)}, h.venues()); err != nil {
		t.Fatalf("bootstrap buy: %v", err)
	}
	q, err := h.router.Quote(QuoteRequest{Direction: DirectionBuy, AmountIn: fp.Units(1)}, h.venues())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.CurveOut == nil || q.PoolOut == nil {
		t.Fatalf("both venues should quote")
	}
	want := RouteCurve
	if q.PoolOut.Gt(q.CurveOut) {
		want = RoutePool
	}
	if q.Route != want {
		t.Fatalf("route %s, want %s", q.Route, want)
	}
	res, err := h.router.Buy(BuyRequest{ForeignIn: fp.Units(1)}, h.venues())
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !res.AmountOut.Eq(q.AmountOut) {
		t.Fatalf("realized %s, quoted %s", res.AmountOut.Dec(), q.AmountOut.Dec())
	}
}

func TestSlippageLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, defaultConfig())
	q, err := h.router.Quote(QuoteRequest{Direction: DirectionBuy, AmountIn: fp.Units(50)}, h.venues())
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	tooHigh := new(uint256.Int).AddUint64(q.AmountOut, 1)
	_, err = h.router.Buy(BuyRequest{ForeignIn: fp.Units(50), MinNativeOut: tooHigh}, h.venues())
	if !errors.Is(err, coreerrors.ErrSlippageExceeded) {
		t.Fatalf("expected slippage exceeded, got %v", err)
	}
	if !h.curve.Supply().IsZero() || !h.pool.IsEmpty() || h.router.Swaps() != 0 {
		t.Fatalf("state changed on rejected buy")
	}
	_, buffered := h.fees.Buffers()
	if !buffered.IsZero() {
		t.Fatalf("fee charged on rejected buy")
	}
	if _, err := h.router.Buy(BuyRequest{ForeignIn: fp.Units(50), MinNativeOut: q.AmountOut}, h.venues()); err != nil {
		t.Fatalf("buy at exact minimum: %v", err)
	}
}

func TestThresholds(t *testing.T) {
	h := newHarness(t, defaultConfig())
	if _, err := h.router.Buy(BuyRequest{ForeignIn: fp.Units(5)}, h.venues()); !errors.Is(err, coreerrors.ErrInsufficientAmount) {
		t.Fatalf("expected first swap below initial minimum to fail, got %v", err)
	}
	if _, err := h.router.Buy(BuyRequest{ForeignIn: fp.Units(10)}, h.venues()); err != nil {
		t.Fatalf("initial buy: %v", err)
	}
	if _, err := h.router.Buy(BuyRequest{ForeignIn: fp.Units(5)}, h.venues()); err != nil {
		t.Fatalf("later buy above swap minimum: %v", err)
	}
	half := fp.MustParse("500000000000")
	if _, err := h.router.Buy(BuyRequest{ForeignIn: half}, h.venues()); !errors.Is(err, coreerrors.ErrInsufficientAmount) {
		t.Fatalf("expected buy below minimum to fail, got %v", err)
	}
	if _, err := h.router.Sell(SellRequest{NativeIn: half}, h.venues()); !errors.Is(err, coreerrors.ErrInsufficientAmount) {
		t.Fatalf("expected sell below minimum to fail, got %v", err)
	}
}

func TestSellBurnsNativeFee(t *testing.T) {
	h := newHarness(t, defaultConfig())
	if _, err := h.router.Buy(BuyRequest{ForeignIn: fp.Units(100)}, h.venues()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	supply := h.curve.Supply()
	res, err := h.router.Sell(SellRequest{NativeIn: fp.Units(10)}, h.venues())
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if res.Route != RoutePool || !res.Fee.Eq(fp.MustParse("50000000000")) {
		t.Fatalf("route %s fee %s", res.Route, res.Fee.Dec())
	}
	if !res.NativeFeeBurned.Eq(res.Fee) {
		t.Fatalf("burned %s, want fee %s", res.NativeFeeBurned.Dec(), res.Fee.Dec())
	}
	want := new(uint256.Int).Sub(supply, res.Fee)
	if !h.curve.Supply().Eq(want) {
		t.Fatalf("supply %s, want %s", h.curve.Supply().Dec(), want.Dec())
	}
}

func TestPausedRouterRejects(t *testing.T) {
	h := newHarness(t, defaultConfig())
	h.router.SetPauses(nativecommon.NewPauses(ModuleName))
	if _, err := h.router.Buy(BuyRequest{ForeignIn: fp.Units(100)}, h.venues()); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected module paused, got %v", err)
	}
}
