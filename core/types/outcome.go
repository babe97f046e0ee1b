// Package types holds the accounts, outcome records and read-only views
// returned by the engine.
package types

import "github.com/holiman/uint256"

// TradeOutcome is returned by every buy and sell. Amounts are PRECISION-scaled
// integers.
type TradeOutcome struct {
	Account     string       `json:"account"`
	Direction   string       `json:"direction"`
	Route       string       `json:"route"`
	AmountIn    *uint256.Int `json:"amountIn"`
	Fee         *uint256.Int `json:"fee"`
	Net         *uint256.Int `json:"net"`
	AmountOut   *uint256.Int `json:"amountOut"`
	PriceBefore *uint256.Int `json:"priceBefore"`
	PriceAfter  *uint256.Int `json:"priceAfter"`

	// Curve route only.
	Minted        *uint256.Int `json:"minted,omitempty"`
	TreasuryShare *uint256.Int `json:"treasuryShare,omitempty"`
	// Set when the treasury deposited liquidity during the call.
	Zap *ZapOutcome `json:"zap,omitempty"`

	FeeConversion string       `json:"feeConversion,omitempty"`
	FeeBurned     *uint256.Int `json:"feeBurned,omitempty"`

	Retry CycleOutcome `json:"retry"`
}

// ZapOutcome mirrors a treasury zap aggregate.
type ZapOutcome struct {
	LPMinted     *uint256.Int `json:"lpMinted"`
	NativeAdded  *uint256.Int `json:"nativeAdded"`
	ForeignAdded *uint256.Int `json:"foreignAdded"`
}

// UnwindOutcome is returned by an authorized bucket unwind.
type UnwindOutcome struct {
	Bucket    string       `json:"bucket"`
	Recipient string       `json:"recipient"`
	LP        *uint256.Int `json:"lp"`
	Native    *uint256.Int `json:"native"`
	Foreign   *uint256.Int `json:"foreign"`
	Retry     CycleOutcome `json:"retry"`
}

// CycleOutcome summarises one deferred-work cycle.
type CycleOutcome struct {
	Cycle           uint64   `json:"cycle"`
	Pending         []string `json:"pending,omitempty"`
	Executed        []string `json:"executed,omitempty"`
	Deferred        []string `json:"deferred,omitempty"`
	BudgetUsed      uint64   `json:"budgetUsed"`
	BudgetRemaining uint64   `json:"budgetRemaining"`
}

// BucketView is a read-only bucket snapshot.
type BucketView struct {
	ID                 string       `json:"id"`
	WeightPPM          uint64       `json:"weightPpm"`
	Primary            bool         `json:"primary"`
	LPTokens           *uint256.Int `json:"lpTokens"`
	ContributedNative  *uint256.Int `json:"contributedNative"`
	ContributedForeign *uint256.Int `json:"contributedForeign"`
}

// StateView is a read-only snapshot of every component.
type StateView struct {
	Supply                *uint256.Int `json:"supply"`
	CurvePrice            *uint256.Int `json:"curvePrice"`
	PoolPrice             *uint256.Int `json:"poolPrice,omitempty"`
	ReserveNative         *uint256.Int `json:"reserveNative"`
	ReserveForeign        *uint256.Int `json:"reserveForeign"`
	SupplyLP              *uint256.Int `json:"supplyLp"`
	TreasuryLP            *uint256.Int `json:"treasuryLp"`
	TreasuryNative        *uint256.Int `json:"treasuryBufferNative"`
	TreasuryForeign       *uint256.Int `json:"treasuryBufferForeign"`
	FeeNative             *uint256.Int `json:"feeBufferNative"`
	FeeForeign            *uint256.Int `json:"feeBufferForeign"`
	TotalNativeBurned     *uint256.Int `json:"totalNativeBurned"`
	TotalForeignConverted *uint256.Int `json:"totalForeignConverted"`
	Circulating           *uint256.Int `json:"circulating"`
	ForeignIn             *uint256.Int `json:"foreignIn"`
	ForeignOut            *uint256.Int `json:"foreignOut"`
	Swaps                 uint64       `json:"swaps"`
	Pending               []string     `json:"pending,omitempty"`
	Buckets               []BucketView `json:"buckets"`
}
