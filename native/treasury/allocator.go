// Package treasury implements the treasury-owned liquidity allocator. Mint
// proceeds are buffered, paired against the pool ratio by Zap, deposited, and
// the LP tokens split across weighted buckets.
package treasury

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	nativecommon "gravitywell/native/common"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/pool"
)

// ModuleName identifies the allocator for pause checks.
const ModuleName = "treasury"

var (
	errNoBuckets      = fmt.Errorf("treasury: at least one bucket required: %w", coreerrors.ErrValidation)
	errWeightsSum     = fmt.Errorf("treasury: bucket weights must sum to 1e6 ppm: %w", coreerrors.ErrValidation)
	errEmptyBucketID  = fmt.Errorf("treasury: bucket id required: %w", coreerrors.ErrValidation)
	errDuplicateID    = fmt.Errorf("treasury: duplicate bucket id: %w", coreerrors.ErrValidation)
	errNilPool        = fmt.Errorf("treasury: pool required: %w", coreerrors.ErrValidation)
	errBucketMismatch = fmt.Errorf("treasury: state buckets do not match configuration: %w", coreerrors.ErrValidation)
)

// LiquidityPool is the pool capability the allocator needs. *pool.Pool
// satisfies it.
type LiquidityPool interface {
	IsEmpty() bool
	FeePPM() uint64
	Reserves() (native, foreign *uint256.Int)
	QuoteLiquidity(native, foreign *uint256.Int) (*uint256.Int, error)
	AddLiquidity(native, foreign *uint256.Int) (*uint256.Int, error)
	RemoveLiquidity(lp *uint256.Int) (native, foreign *uint256.Int, err error)
	QuoteForeignForNative(foreignIn *uint256.Int) (*uint256.Int, error)
	QuoteNativeForForeign(nativeIn *uint256.Int) (*uint256.Int, error)
	SwapForeignForNative(foreignIn *uint256.Int) (*pool.SwapResult, error)
	SwapNativeForForeign(nativeIn *uint256.Int) (*pool.SwapResult, error)
}

// Authority decides whether caller may draw down bucket.
type Authority interface {
	CanUnwind(caller, bucket string) bool
}

// Config carries the immutable allocator parameters.
type Config struct {
	Buckets []BucketConfig
	// MinZapSwap is the smallest excess worth rebalancing through the pool.
	MinZapSwap *uint256.Int
}

// Validate checks bucket ids and weights.
func (c Config) Validate() error {
	if len(c.Buckets) == 0 {
		return errNoBuckets
	}
	seen := make(map[string]struct{}, len(c.Buckets))
	var total uint64
	for _, b := range c.Buckets {
		id := normalizeBucketID(b.ID)
		if id == "" {
			return errEmptyBucketID
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s", errDuplicateID, id)
		}
		seen[id] = struct{}{}
		if b.WeightPPM > fp.PPM {
			return errWeightsSum
		}
		total += b.WeightPPM
	}
	if total != fp.PPM {
		return errWeightsSum
	}
	return nil
}

// State is the persisted form of the allocator.
type State struct {
	Buckets       []*Bucket
	BufferNative  *uint256.Int
	BufferForeign *uint256.Int
	Cursor        int
}

// Allocator owns the bucket ledger and the zap buffer. It is not safe for
// concurrent use.
type Allocator struct {
	buckets       []*Bucket
	index         map[string]int
	primary       int
	bufferNative  *uint256.Int
	bufferForeign *uint256.Int
	cursor        int
	minZapSwap    *uint256.Int
	pauses        nativecommon.PauseView
}

// New validates cfg and returns an allocator with empty buckets.
func New(cfg Config) (*Allocator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Allocator{
		index:         make(map[string]int, len(cfg.Buckets)),
		bufferNative:  fp.Zero(),
		bufferForeign: fp.Zero(),
		minZapSwap:    fp.Clone(cfg.MinZapSwap),
	}
	for i, b := range cfg.Buckets {
		bucket := newBucket(b)
		a.buckets = append(a.buckets, bucket)
		a.index[bucket.ID] = i
	}
	a.primary = primaryIndex(a.buckets)
	return a, nil
}

// SetPauses wires the pause view consulted before zaps and unwinds.
func (a *Allocator) SetPauses(p nativecommon.PauseView) {
	if a == nil {
		return
	}
	a.pauses = p
}

// State returns a deep copy of the mutable allocator state.
func (a *Allocator) State() State {
	buckets := make([]*Bucket, len(a.buckets))
	for i, b := range a.buckets {
		buckets[i] = b.Clone()
	}
	return State{
		Buckets:       buckets,
		BufferNative:  fp.Clone(a.bufferNative),
		BufferForeign: fp.Clone(a.bufferForeign),
		Cursor:        a.cursor,
	}
}

// Restore replaces the mutable state. Bucket ids and weights must match the
// configuration the allocator was built with.
func (a *Allocator) Restore(state State) error {
	if len(state.Buckets) != len(a.buckets) {
		return errBucketMismatch
	}
	buckets := make([]*Bucket, len(state.Buckets))
	for i, b := range state.Buckets {
		if b == nil || normalizeBucketID(b.ID) != a.buckets[i].ID || b.WeightPPM != a.buckets[i].WeightPPM {
			return errBucketMismatch
		}
		buckets[i] = b.Clone()
		buckets[i].ID = a.buckets[i].ID
	}
	a.buckets = buckets
	a.bufferNative = fp.Clone(state.BufferNative)
	a.bufferForeign = fp.Clone(state.BufferForeign)
	a.cursor = state.Cursor
	if len(a.buckets) > 0 {
		a.cursor = ((a.cursor % len(a.buckets)) + len(a.buckets)) % len(a.buckets)
	}
	return nil
}

// Clone returns an independent copy used for checkpoints.
func (a *Allocator) Clone() *Allocator {
	state := a.State()
	return &Allocator{
		buckets:       state.Buckets,
		index:         a.index,
		primary:       a.primary,
		bufferNative:  state.BufferNative,
		bufferForeign: state.BufferForeign,
		cursor:        state.Cursor,
		minZapSwap:    fp.Clone(a.minZapSwap),
		pauses:        a.pauses,
	}
}

// Buffers returns the value awaiting a future zap.
func (a *Allocator) Buffers() (native, foreign *uint256.Int) {
	return fp.Clone(a.bufferNative), fp.Clone(a.bufferForeign)
}

// Bucket returns a copy of the named bucket.
func (a *Allocator) Bucket(id string) (*Bucket, bool) {
	i, ok := a.index[normalizeBucketID(id)]
	if !ok {
		return nil, false
	}
	return a.buckets[i].Clone(), true
}

// Buckets returns copies of every bucket in configuration order.
func (a *Allocator) Buckets() []*Bucket {
	out := make([]*Bucket, len(a.buckets))
	for i, b := range a.buckets {
		out[i] = b.Clone()
	}
	return out
}

// PrimaryBucket returns the id of the floor-protection bucket.
func (a *Allocator) PrimaryBucket() string { return a.buckets[a.primary].ID }

// TotalLP returns the LP tokens held across all buckets.
func (a *Allocator) TotalLP() (*uint256.Int, error) {
	total := fp.Zero()
	for _, b := range a.buckets {
		next, err := fp.Add(total, b.LPTokens)
		if err != nil {
			return nil, err
		}
		total = next
	}
	return total, nil
}

func (a *Allocator) paused() bool {
	return nativecommon.Guard(a.pauses, ModuleName) != nil
}

// Buffer adds value to the zap buffer without attempting a deposit.
func (a *Allocator) Buffer(native, foreign *uint256.Int) error {
	nextNative, err := fp.Add(a.bufferNative, native)
	if err != nil {
		return err
	}
	nextForeign, err := fp.Add(a.bufferForeign, foreign)
	if err != nil {
		return err
	}
	a.bufferNative, a.bufferForeign = nextNative, nextForeign
	return nil
}

// ReceiveMintAllocation buffers a mint's treasury share and its foreign
// backing, then zaps into p.
func (a *Allocator) ReceiveMintAllocation(p LiquidityPool, native, foreign *uint256.Int) (*ZapResult, error) {
	if p == nil {
		return nil, errNilPool
	}
	if err := a.Buffer(native, foreign); err != nil {
		return nil, err
	}
	return a.Zap(p)
}

// Sink binds the allocator to a pool so the curve can forward mint proceeds.
func (a *Allocator) Sink(p LiquidityPool) *MintSink {
	return &MintSink{allocator: a, pool: p}
}

// MintSink adapts the allocator to curve.TreasurySink for one pool.
type MintSink struct {
	allocator *Allocator
	pool      LiquidityPool
	last      *ZapResult
}

// ReceiveMintAllocation implements curve.TreasurySink.
func (s *MintSink) ReceiveMintAllocation(native, foreign *uint256.Int) error {
	res, err := s.allocator.ReceiveMintAllocation(s.pool, native, foreign)
	if err != nil {
		return err
	}
	s.last = res
	return nil
}

// Result returns the zap outcome of the last forwarded allocation.
func (s *MintSink) Result() *ZapResult { return s.last }

func (a *Allocator) distribute(lp, nativeAdded, foreignAdded *uint256.Int) error {
	weights := make([]uint64, len(a.buckets))
	for i, b := range a.buckets {
		weights[i] = b.WeightPPM
	}
	shares, err := allocate(lp, weights, a.cursor)
	if err != nil {
		return err
	}
	next := make([]*Bucket, len(a.buckets))
	for i, b := range a.buckets {
		updated := b.Clone()
		if updated.LPTokens, err = fp.Add(b.LPTokens, shares[i]); err != nil {
			return err
		}
		n, err := fp.MulDivPPM(nativeAdded, b.WeightPPM)
		if err != nil {
			return err
		}
		f, err := fp.MulDivPPM(foreignAdded, b.WeightPPM)
		if err != nil {
			return err
		}
		if updated.ContributedNative, err = fp.Add(b.ContributedNative, n); err != nil {
			return err
		}
		if updated.ContributedForeign, err = fp.Add(b.ContributedForeign, f); err != nil {
			return err
		}
		next[i] = updated
	}
	a.buckets = next
	a.cursor = (a.cursor + 1) % len(a.buckets)
	return nil
}
