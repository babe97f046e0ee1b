package server

import (
	"github.com/holiman/uint256"

	"gravitywell/config"
	"gravitywell/core/types"
	"gravitywell/native/router"
)

// Responses render amounts as human decimals.

func amount(v *uint256.Int) string { return config.FormatAmount(v) }

func optionalAmount(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return config.FormatAmount(v)
}

type zapView struct {
	LPMinted     string `json:"lpMinted"`
	NativeAdded  string `json:"nativeAdded"`
	ForeignAdded string `json:"foreignAdded"`
}

type tradeView struct {
	Account       string             `json:"account"`
	Direction     string             `json:"direction"`
	Route         string             `json:"route"`
	AmountIn      string             `json:"amountIn"`
	Fee           string             `json:"fee"`
	Net           string             `json:"net"`
	AmountOut     string             `json:"amountOut"`
	PriceBefore   string             `json:"priceBefore"`
	PriceAfter    string             `json:"priceAfter"`
	Minted        string             `json:"minted,omitempty"`
	TreasuryShare string             `json:"treasuryShare,omitempty"`
	Zap           *zapView           `json:"zap,omitempty"`
	FeeConversion string             `json:"feeConversion,omitempty"`
	FeeBurned     string             `json:"feeBurned,omitempty"`
	Retry         types.CycleOutcome `json:"retry"`
}

func newTradeView(out *types.TradeOutcome) tradeView {
	view := tradeView{
		Account:       out.Account,
		Direction:     out.Direction,
		Route:         out.Route,
		AmountIn:      amount(out.AmountIn),
		Fee:           amount(out.Fee),
		Net:           amount(out.Net),
		AmountOut:     amount(out.AmountOut),
		PriceBefore:   amount(out.PriceBefore),
		PriceAfter:    amount(out.PriceAfter),
		Minted:        optionalAmount(out.Minted),
		TreasuryShare: optionalAmount(out.TreasuryShare),
		FeeConversion: out.FeeConversion,
		FeeBurned:     optionalAmount(out.FeeBurned),
		Retry:         out.Retry,
	}
	if out.Zap != nil {
		view.Zap = &zapView{
			LPMinted:     amount(out.Zap.LPMinted),
			NativeAdded:  amount(out.Zap.NativeAdded),
			ForeignAdded: amount(out.Zap.ForeignAdded),
		}
	}
	return view
}

type quoteView struct {
	Direction string `json:"direction"`
	Route     string `json:"route"`
	AmountIn  string `json:"amountIn"`
	Fee       string `json:"fee"`
	Net       string `json:"net"`
	AmountOut string `json:"amountOut"`
	CurveOut  string `json:"curveOut,omitempty"`
	PoolOut   string `json:"poolOut,omitempty"`
}

func newQuoteView(q *router.Quote) quoteView {
	return quoteView{
		Direction: string(q.Direction),
		Route:     string(q.Route),
		AmountIn:  amount(q.AmountIn),
		Fee:       amount(q.Fee),
		Net:       amount(q.Net),
		AmountOut: amount(q.AmountOut),
		CurveOut:  optionalAmount(q.CurveOut),
		PoolOut:   optionalAmount(q.PoolOut),
	}
}

type unwindView struct {
	Bucket    string             `json:"bucket"`
	Recipient string             `json:"recipient"`
	LP        string             `json:"lp"`
	Native    string             `json:"native"`
	Foreign   string             `json:"foreign"`
	Retry     types.CycleOutcome `json:"retry"`
}

func newUnwindView(out *types.UnwindOutcome) unwindView {
	return unwindView{
		Bucket:    out.Bucket,
		Recipient: out.Recipient,
		LP:        amount(out.LP),
		Native:    amount(out.Native),
		Foreign:   amount(out.Foreign),
		Retry:     out.Retry,
	}
}

type bucketView struct {
	ID                 string `json:"id"`
	WeightPPM          uint64 `json:"weightPpm"`
	Primary            bool   `json:"primary"`
	LPTokens           string `json:"lpTokens"`
	ContributedNative  string `json:"contributedNative"`
	ContributedForeign string `json:"contributedForeign"`
}

func newBucketViews(buckets []types.BucketView) []bucketView {
	out := make([]bucketView, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, bucketView{
			ID:                 b.ID,
			WeightPPM:          b.WeightPPM,
			Primary:            b.Primary,
			LPTokens:           amount(b.LPTokens),
			ContributedNative:  amount(b.ContributedNative),
			ContributedForeign: amount(b.ContributedForeign),
		})
	}
	return out
}

type stateView struct {
	Supply                string       `json:"supply"`
	Circulating           string       `json:"circulating"`
	CurvePrice            string       `json:"curvePrice"`
	PoolPrice             string       `json:"poolPrice,omitempty"`
	ReserveNative         string       `json:"reserveNative"`
	ReserveForeign        string       `json:"reserveForeign"`
	SupplyLP              string       `json:"supplyLp"`
	TreasuryLP            string       `json:"treasuryLp"`
	TreasuryNative        string       `json:"treasuryBufferNative"`
	TreasuryForeign       string       `json:"treasuryBufferForeign"`
	FeeNative             string       `json:"feeBufferNative"`
	FeeForeign            string       `json:"feeBufferForeign"`
	TotalNativeBurned     string       `json:"totalNativeBurned"`
	TotalForeignConverted string       `json:"totalForeignConverted"`
	ForeignIn             string       `json:"foreignIn"`
	ForeignOut            string       `json:"foreignOut"`
	Swaps                 uint64       `json:"swaps"`
	Pending               []string     `json:"pending,omitempty"`
	Paused                []string     `json:"paused,omitempty"`
	Buckets               []bucketView `json:"buckets"`
}

func newStateView(v types.StateView, paused []string) stateView {
	return stateView{
		Supply:                amount(v.Supply),
		Circulating:           amount(v.Circulating),
		CurvePrice:            amount(v.CurvePrice),
		PoolPrice:             optionalAmount(v.PoolPrice),
		ReserveNative:         amount(v.ReserveNative),
		ReserveForeign:        amount(v.ReserveForeign),
		SupplyLP:              amount(v.SupplyLP),
		TreasuryLP:            amount(v.TreasuryLP),
		TreasuryNative:        amount(v.TreasuryNative),
		TreasuryForeign:       amount(v.TreasuryForeign),
		FeeNative:             amount(v.FeeNative),
		FeeForeign:            amount(v.FeeForeign),
		TotalNativeBurned:     amount(v.TotalNativeBurned),
		TotalForeignConverted: amount(v.TotalForeignConverted),
		ForeignIn:             amount(v.ForeignIn),
		ForeignOut:            amount(v.ForeignOut),
		Swaps:                 v.Swaps,
		Pending:               v.Pending,
		Paused:                paused,
		Buckets:               newBucketViews(v.Buckets),
	}
}

type balanceView struct {
	Account string `json:"account"`
	Native  string `json:"native"`
	Foreign string `json:"foreign"`
}
