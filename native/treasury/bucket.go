package treasury

import (
	"strings"

	"github.com/holiman/uint256"

	fp "gravitywell/native/fixedpoint"
)

// BucketConfig names a bucket and its fixed share of every LP distribution.
type BucketConfig struct {
	ID        string
	WeightPPM uint64
}

// Bucket is a named share of the treasury's LP position. ContributedNative and
// ContributedForeign are a cost-basis record only and never feed payouts.
type Bucket struct {
	ID                 string
	WeightPPM          uint64
	LPTokens           *uint256.Int
	ContributedNative  *uint256.Int
	ContributedForeign *uint256.Int
}

// Clone returns a deep copy of the bucket.
func (b *Bucket) Clone() *Bucket {
	if b == nil {
		return nil
	}
	return &Bucket{
		ID:                 b.ID,
		WeightPPM:          b.WeightPPM,
		LPTokens:           fp.Clone(b.LPTokens),
		ContributedNative:  fp.Clone(b.ContributedNative),
		ContributedForeign: fp.Clone(b.ContributedForeign),
	}
}

func normalizeBucketID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func newBucket(cfg BucketConfig) *Bucket {
	return &Bucket{
		ID:                 normalizeBucketID(cfg.ID),
		WeightPPM:          cfg.WeightPPM,
		LPTokens:           fp.Zero(),
		ContributedNative:  fp.Zero(),
		ContributedForeign: fp.Zero(),
	}
}

// primaryIndex returns the bucket with the largest weight, first in
// configuration order on ties.
func primaryIndex(buckets []*Bucket) int {
	best := 0
	for i, b := range buckets {
		if b.WeightPPM > buckets[best].WeightPPM {
			best = i
		}
	}
	return best
}
