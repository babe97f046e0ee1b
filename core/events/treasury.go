package events

import (
	"strings"

	"github.com/holiman/uint256"

	"gravitywell/core/types"
)

const (
	// TypeZapDeposited is emitted when the treasury adds pool liquidity.
	TypeZapDeposited = "treasury.zap"
	// TypeBucketUnwound is emitted when governance draws down a bucket.
	TypeBucketUnwound = "treasury.unwind"
)

type ZapDeposited struct {
	LPMinted     *uint256.Int
	NativeAdded  *uint256.Int
	ForeignAdded *uint256.Int
}

func (ZapDeposited) EventType() string { return TypeZapDeposited }

func (e ZapDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeZapDeposited,
		Attributes: map[string]string{
			"lpMinted":     amount(e.LPMinted),
			"nativeAdded":  amount(e.NativeAdded),
			"foreignAdded": amount(e.ForeignAdded),
		},
	}
}

type BucketUnwound struct {
	Bucket    string
	Recipient string
	LP        *uint256.Int
	Native    *uint256.Int
	Foreign   *uint256.Int
}

func (BucketUnwound) EventType() string { return TypeBucketUnwound }

func (e BucketUnwound) Event() *types.Event {
	return &types.Event{
		Type: TypeBucketUnwound,
		Attributes: map[string]string{
			"bucket":    strings.TrimSpace(e.Bucket),
			"recipient": strings.TrimSpace(e.Recipient),
			"lp":        amount(e.LP),
			"native":    amount(e.Native),
			"foreign":   amount(e.Foreign),
		},
	}
}
