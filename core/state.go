package core

import (
	"gravitywell/core/types"
	fp "gravitywell/native/fixedpoint"
)

// State returns a read-only view of every component.
func (e *Engine) State() types.StateView {
	e.mu.Lock()
	defer e.mu.Unlock()

	reserveNative, reserveForeign := e.pool.Reserves()
	tolNative, tolForeign := e.allocator.Buffers()
	feeNative, feeForeign := e.fees.Buffers()
	view := types.StateView{
		Supply:                e.curve.Supply(),
		ReserveNative:         reserveNative,
		ReserveForeign:        reserveForeign,
		SupplyLP:              e.pool.SupplyLP(),
		TreasuryNative:        tolNative,
		TreasuryForeign:       tolForeign,
		FeeNative:             feeNative,
		FeeForeign:            feeForeign,
		TotalNativeBurned:     e.fees.TotalNativeBurned(),
		TotalForeignConverted: e.fees.TotalForeignConverted(),
		Circulating:           fp.Clone(e.circulating),
		ForeignIn:             fp.Clone(e.foreignIn),
		ForeignOut:            fp.Clone(e.foreignOut),
		Swaps:                 e.router.Swaps(),
		Pending:               e.pending(),
		Buckets:               e.buckets(),
	}
	if lp, err := e.allocator.TotalLP(); err == nil {
		view.TreasuryLP = lp
	}
	if price, err := e.curve.SpotPrice(); err == nil {
		view.CurvePrice = price
	}
	if price, err := e.pool.SpotPrice(); err == nil {
		view.PoolPrice = price
	}
	return view
}

// Buckets returns a copy of every treasury bucket in configuration order.
func (e *Engine) Buckets() []types.BucketView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buckets()
}

func (e *Engine) buckets() []types.BucketView {
	primary := e.allocator.PrimaryBucket()
	out := make([]types.BucketView, 0)
	for _, b := range e.allocator.Buckets() {
		out = append(out, types.BucketView{
			ID:                 b.ID,
			WeightPPM:          b.WeightPPM,
			Primary:            b.ID == primary,
			LPTokens:           b.LPTokens,
			ContributedNative:  b.ContributedNative,
			ContributedForeign: b.ContributedForeign,
		})
	}
	return out
}
