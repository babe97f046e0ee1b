package core

import (
	"github.com/holiman/uint256"

	"gravitywell/core/events"
	"gravitywell/core/types"
	"gravitywell/native/curve"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/router"
	"gravitywell/native/treasury"
)

// venues binds the router to the live components. The returned sink records
// the zap triggered by a curve mint.
func (e *Engine) venues() (router.Venues, *treasury.MintSink) {
	sink := e.allocator.Sink(e.pool)
	return router.Venues{
		Curve:    e.curve,
		Pool:     e.pool,
		Treasury: sink,
		Fees:     e.fees,
	}, sink
}

// Quote prices a buy or sell without mutating anything.
func (e *Engine) Quote(direction router.Direction, amountIn *uint256.Int) (*router.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, _ := e.venues()
	return e.router.Quote(router.QuoteRequest{Direction: direction, AmountIn: amountIn}, v)
}

// Buy spends account's foreign on native through the better venue.
func (e *Engine) Buy(account string, foreignIn, minNativeOut *uint256.Int) (*types.TradeOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account = types.NormalizeAccount(account)
	if err := e.requireBalance(account, types.AssetForeign, foreignIn); err != nil {
		return nil, err
	}
	cp := e.checkpoint()
	supplyBefore := e.curve.Supply()
	burnedBefore := e.fees.TotalNativeBurned()

	v, sink := e.venues()
	res, err := e.router.Buy(router.BuyRequest{ForeignIn: foreignIn, MinNativeOut: minNativeOut}, v)
	if err != nil {
		e.rollback(cp)
		return nil, err
	}
	if e.foreignIn, err = fp.Add(e.foreignIn, res.AmountIn); err != nil {
		e.rollback(cp)
		return nil, err
	}
	if e.circulating, err = fp.Add(e.circulating, res.AmountOut); err != nil {
		e.rollback(cp)
		return nil, err
	}
	out := e.tradeOutcome(account, res)
	if res.Mint != nil {
		out.Minted = fp.Clone(res.Mint.Minted)
		out.TreasuryShare = fp.Clone(res.Mint.Treasury)
		if zap := sink.Result(); zap != nil && zap.Deposited() {
			out.Zap = zapOutcome(zap)
			e.queueZap(zap)
		}
	}
	if res.Conversion != nil {
		out.FeeConversion = string(res.Conversion.Status)
		e.queueConversion(res.Conversion)
	}
	cycle, err := e.runCycle()
	if err != nil {
		e.rollback(cp)
		return nil, err
	}
	out.Retry = cycle
	e.queueSupply(supplyBefore, burnedBefore)
	e.queue(tradeEvent(out))

	debits := []transfer{{account: account, asset: types.AssetForeign, amount: res.AmountIn}}
	credits := []transfer{{account: account, asset: types.AssetNative, amount: res.AmountOut}}
	if err := e.commit(cp, debits, credits); err != nil {
		return nil, err
	}
	return out, nil
}

// Sell spends account's native on foreign through the pool. The native fee is
// burned.
func (e *Engine) Sell(account string, nativeIn, minForeignOut *uint256.Int) (*types.TradeOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	account = types.NormalizeAccount(account)
	if err := e.requireBalance(account, types.AssetNative, nativeIn); err != nil {
		return nil, err
	}
	cp := e.checkpoint()
	supplyBefore := e.curve.Supply()
	burnedBefore := e.fees.TotalNativeBurned()

	v, _ := e.venues()
	res, err := e.router.Sell(router.SellRequest{NativeIn: nativeIn, MinForeignOut: minForeignOut}, v)
	if err != nil {
		e.rollback(cp)
		return nil, err
	}
	if e.circulating, err = fp.Sub(e.circulating, res.AmountIn); err != nil {
		e.rollback(cp)
		return nil, err
	}
	if e.foreignOut, err = fp.Add(e.foreignOut, res.AmountOut); err != nil {
		e.rollback(cp)
		return nil, err
	}
	out := e.tradeOutcome(account, res)
	out.FeeBurned = fp.Clone(res.NativeFeeBurned)
	cycle, err := e.runCycle()
	if err != nil {
		e.rollback(cp)
		return nil, err
	}
	out.Retry = cycle
	e.queueSupply(supplyBefore, burnedBefore)
	e.queue(tradeEvent(out))

	debits := []transfer{{account: account, asset: types.AssetNative, amount: res.AmountIn}}
	credits := []transfer{{account: account, asset: types.AssetForeign, amount: res.AmountOut}}
	if err := e.commit(cp, debits, credits); err != nil {
		return nil, err
	}
	return out, nil
}

// Unwind withdraws lp from a non-primary bucket and pays the pool share to
// recipient. caller must be authorized by the configured authority.
func (e *Engine) Unwind(caller, bucket string, lp *uint256.Int, recipient string) (*types.UnwindOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	recipient = types.NormalizeAccount(recipient)
	if recipient == "" {
		recipient = types.NormalizeAccount(caller)
	}
	cp := e.checkpoint()
	supplyBefore := e.curve.Supply()
	burnedBefore := e.fees.TotalNativeBurned()

	res, err := e.allocator.Unwind(e.authority, caller, bucket, lp, e.pool)
	if err != nil {
		e.rollback(cp)
		return nil, err
	}
	if e.circulating, err = fp.Add(e.circulating, res.Native); err != nil {
		e.rollback(cp)
		return nil, err
	}
	if e.foreignOut, err = fp.Add(e.foreignOut, res.Foreign); err != nil {
		e.rollback(cp)
		return nil, err
	}
	out := &types.UnwindOutcome{
		Bucket:    res.Bucket,
		Recipient: recipient,
		LP:        res.LP,
		Native:    res.Native,
		Foreign:   res.Foreign,
	}
	cycle, err := e.runCycle()
	if err != nil {
		e.rollback(cp)
		return nil, err
	}
	out.Retry = cycle
	e.queueSupply(supplyBefore, burnedBefore)
	e.queue(events.BucketUnwound{
		Bucket:    out.Bucket,
		Recipient: out.Recipient,
		LP:        out.LP,
		Native:    out.Native,
		Foreign:   out.Foreign,
	})

	credits := []transfer{
		{account: recipient, asset: types.AssetNative, amount: res.Native},
		{account: recipient, asset: types.AssetForeign, amount: res.Foreign},
	}
	if err := e.commit(cp, nil, credits); err != nil {
		return nil, err
	}
	return out, nil
}

// Poke runs one deferred-work cycle.
func (e *Engine) Poke() (types.CycleOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp := e.checkpoint()
	supplyBefore := e.curve.Supply()
	burnedBefore := e.fees.TotalNativeBurned()
	cycle, err := e.runCycle()
	if err != nil {
		e.rollback(cp)
		return types.CycleOutcome{}, err
	}
	e.queueSupply(supplyBefore, burnedBefore)
	if err := e.commit(cp, nil, nil); err != nil {
		return types.CycleOutcome{}, err
	}
	return cycle, nil
}

func (e *Engine) tradeOutcome(account string, res *router.Result) *types.TradeOutcome {
	return &types.TradeOutcome{
		Account:     account,
		Direction:   string(res.Direction),
		Route:       string(res.Route),
		AmountIn:    fp.Clone(res.AmountIn),
		Fee:         fp.Clone(res.Fee),
		Net:         fp.Clone(res.Net),
		AmountOut:   fp.Clone(res.AmountOut),
		PriceBefore: fp.Clone(res.PriceBefore),
		PriceAfter:  fp.Clone(res.PriceAfter),
	}
}

func tradeEvent(out *types.TradeOutcome) events.TradeExecuted {
	return events.TradeExecuted{
		Account:     out.Account,
		Direction:   out.Direction,
		Route:       out.Route,
		AmountIn:    out.AmountIn,
		Fee:         out.Fee,
		AmountOut:   out.AmountOut,
		PriceBefore: out.PriceBefore,
		PriceAfter:  out.PriceAfter,
	}
}

func zapOutcome(zap *treasury.ZapResult) *types.ZapOutcome {
	return &types.ZapOutcome{
		LPMinted:     fp.Clone(zap.LPMinted),
		NativeAdded:  fp.Clone(zap.NativeAdded),
		ForeignAdded: fp.Clone(zap.ForeignAdded),
	}
}

// queueSupply records the mint and burn deltas of the current operation.
// Mints are derived from the net supply change plus what was burned.
func (e *Engine) queueSupply(supplyBefore, burnedBefore *uint256.Int) {
	supply := e.curve.Supply()
	burned := new(uint256.Int).Sub(e.fees.TotalNativeBurned(), burnedBefore)
	minted := new(uint256.Int).Add(supply, burned)
	minted.Sub(minted, supplyBefore)
	if !minted.IsZero() {
		e.queue(events.TokenSupply{Token: string(types.AssetNative), Total: supply, Delta: minted, Reason: events.SupplyReasonMint})
	}
	if !burned.IsZero() {
		e.queue(events.TokenSupply{Token: string(types.AssetNative), Total: supply, Delta: burned, Reason: events.SupplyReasonBurn})
	}
}

var _ curve.TreasurySink = (*treasury.MintSink)(nil)
