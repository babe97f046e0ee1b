package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	coreerrors "gravitywell/core/errors"
	"gravitywell/core/types"
	"gravitywell/native/curve"
	"gravitywell/native/fees"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/pool"
	"gravitywell/native/router"
	"gravitywell/native/scheduler"
	"gravitywell/native/treasury"
)

// SnapshotVersion is bumped whenever the snapshot layout changes.
const SnapshotVersion = 1

var (
	errSnapshotVersion = fmt.Errorf("core: unsupported snapshot version: %w", coreerrors.ErrValidation)
	errSnapshotDigest  = fmt.Errorf("core: snapshot digest mismatch: %w", coreerrors.ErrValidation)
)

// Snapshot is the persisted engine state. Amounts are decimal strings of
// PRECISION-scaled integers so the encoding is stable across platforms.
type Snapshot struct {
	Version     int               `json:"version"`
	Supply      string            `json:"supply"`
	Circulating string            `json:"circulating"`
	ForeignIn   string            `json:"foreignIn"`
	ForeignOut  string            `json:"foreignOut"`
	Pool        PoolSnapshot      `json:"pool"`
	Treasury    TreasurySnapshot  `json:"treasury"`
	Fees        FeesSnapshot      `json:"fees"`
	Swaps       uint64            `json:"swaps"`
	Scheduler   scheduler.State   `json:"scheduler"`
	Accounts    []AccountSnapshot `json:"accounts,omitempty"`
	Digest      string            `json:"digest,omitempty"`
}

type PoolSnapshot struct {
	ReserveNative  string `json:"reserveNative"`
	ReserveForeign string `json:"reserveForeign"`
	SupplyLP       string `json:"supplyLp"`
}

type BucketSnapshot struct {
	ID                 string `json:"id"`
	WeightPPM          uint64 `json:"weightPpm"`
	LPTokens           string `json:"lpTokens"`
	ContributedNative  string `json:"contributedNative"`
	ContributedForeign string `json:"contributedForeign"`
}

type TreasurySnapshot struct {
	BufferNative  string           `json:"bufferNative"`
	BufferForeign string           `json:"bufferForeign"`
	Cursor        int              `json:"cursor"`
	Buckets       []BucketSnapshot `json:"buckets"`
}

type FeesSnapshot struct {
	BufferNative          string `json:"bufferNative"`
	BufferForeign         string `json:"bufferForeign"`
	TotalNativeBurned     string `json:"totalNativeBurned"`
	TotalForeignConverted string `json:"totalForeignConverted"`
}

type AccountSnapshot struct {
	ID      string `json:"id"`
	Native  string `json:"native"`
	Foreign string `json:"foreign"`
}

// ComputeDigest hashes the canonical JSON encoding of s with the digest field
// cleared.
func (s Snapshot) ComputeDigest() (string, error) {
	s.Digest = ""
	buf, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// Snapshot captures the engine and, when the ledger supports it, every
// account balance.
func (e *Engine) Snapshot() (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ps := e.pool.State()
	ts := e.allocator.State()
	fs := e.fees.State()
	snap := &Snapshot{
		Version:     SnapshotVersion,
		Supply:      fp.String(e.curve.Supply()),
		Circulating: fp.String(e.circulating),
		ForeignIn:   fp.String(e.foreignIn),
		ForeignOut:  fp.String(e.foreignOut),
		Pool: PoolSnapshot{
			ReserveNative:  fp.String(ps.ReserveNative),
			ReserveForeign: fp.String(ps.ReserveForeign),
			SupplyLP:       fp.String(ps.SupplyLP),
		},
		Treasury: TreasurySnapshot{
			BufferNative:  fp.String(ts.BufferNative),
			BufferForeign: fp.String(ts.BufferForeign),
			Cursor:        ts.Cursor,
		},
		Fees: FeesSnapshot{
			BufferNative:          fp.String(fs.BufferNative),
			BufferForeign:         fp.String(fs.BufferForeign),
			TotalNativeBurned:     fp.String(fs.TotalNativeBurned),
			TotalForeignConverted: fp.String(fs.TotalForeignConverted),
		},
		Swaps:     e.router.Swaps(),
		Scheduler: e.scheduler.State(),
	}
	for _, b := range ts.Buckets {
		snap.Treasury.Buckets = append(snap.Treasury.Buckets, BucketSnapshot{
			ID:                 b.ID,
			WeightPPM:          b.WeightPPM,
			LPTokens:           fp.String(b.LPTokens),
			ContributedNative:  fp.String(b.ContributedNative),
			ContributedForeign: fp.String(b.ContributedForeign),
		})
	}
	if lister, ok := e.ledger.(AccountLister); ok {
		for _, acc := range lister.Accounts() {
			snap.Accounts = append(snap.Accounts, AccountSnapshot{
				ID:      acc.ID,
				Native:  fp.String(acc.Native),
				Foreign: fp.String(acc.Foreign),
			})
		}
	}
	digest, err := snap.ComputeDigest()
	if err != nil {
		return nil, err
	}
	snap.Digest = digest
	return snap, nil
}

// Restore replaces the engine state with snap. The digest, when present, must
// match, and the restored state must conserve value. Nothing changes on
// error.
func (e *Engine) Restore(snap *Snapshot) error {
	if snap == nil || snap.Version != SnapshotVersion {
		return errSnapshotVersion
	}
	if snap.Digest != "" {
		digest, err := snap.ComputeDigest()
		if err != nil {
			return err
		}
		if digest != snap.Digest {
			return errSnapshotDigest
		}
	}
	p := &amountParser{}
	supply := p.parse(snap.Supply)
	circulating := p.parse(snap.Circulating)
	foreignIn := p.parse(snap.ForeignIn)
	foreignOut := p.parse(snap.ForeignOut)
	poolState := pool.State{
		ReserveNative:  p.parse(snap.Pool.ReserveNative),
		ReserveForeign: p.parse(snap.Pool.ReserveForeign),
		SupplyLP:       p.parse(snap.Pool.SupplyLP),
		FeePPM:         e.cfg.PoolFeePPM,
	}
	treasuryState := treasury.State{
		BufferNative:  p.parse(snap.Treasury.BufferNative),
		BufferForeign: p.parse(snap.Treasury.BufferForeign),
		Cursor:        snap.Treasury.Cursor,
	}
	for _, b := range snap.Treasury.Buckets {
		treasuryState.Buckets = append(treasuryState.Buckets, &treasury.Bucket{
			ID:                 b.ID,
			WeightPPM:          b.WeightPPM,
			LPTokens:           p.parse(b.LPTokens),
			ContributedNative:  p.parse(b.ContributedNative),
			ContributedForeign: p.parse(b.ContributedForeign),
		})
	}
	feesState := fees.State{
		BufferNative:          p.parse(snap.Fees.BufferNative),
		BufferForeign:         p.parse(snap.Fees.BufferForeign),
		TotalNativeBurned:     p.parse(snap.Fees.TotalNativeBurned),
		TotalForeignConverted: p.parse(snap.Fees.TotalForeignConverted),
	}
	accounts := make([]types.Account, 0, len(snap.Accounts))
	for _, acc := range snap.Accounts {
		accounts = append(accounts, types.Account{ID: acc.ID, Native: p.parse(acc.Native), Foreign: p.parse(acc.Foreign)})
	}
	if p.err != nil {
		return p.err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := curve.New(e.cfg.Curve, supply)
	if err != nil {
		return err
	}
	pl, err := pool.FromState(poolState)
	if err != nil {
		return err
	}
	alloc := e.allocator.Clone()
	if err := alloc.Restore(treasuryState); err != nil {
		return err
	}
	m := e.fees.Clone()
	m.Restore(feesState)
	r := e.router.Clone()
	r.Restore(router.State{Swaps: snap.Swaps})
	s := e.scheduler.Clone()
	s.Restore(snap.Scheduler)

	cp := e.checkpoint()
	e.curve, e.pool, e.allocator, e.fees, e.router, e.scheduler = c, pl, alloc, m, r, s
	e.circulating, e.foreignIn, e.foreignOut = circulating, foreignIn, foreignOut
	if err := e.checkConservation(); err != nil {
		e.rollback(cp)
		return err
	}
	if lister, ok := e.ledger.(AccountLister); ok && len(accounts) > 0 {
		if err := lister.Load(accounts); err != nil {
			e.rollback(cp)
			return err
		}
	}
	return nil
}

// amountParser keeps the first parse error so a snapshot decodes in one pass.
type amountParser struct{ err error }

func (p *amountParser) parse(raw string) *uint256.Int {
	if p.err != nil {
		return fp.Zero()
	}
	if raw == "" {
		return fp.Zero()
	}
	v, err := fp.Parse(raw)
	if err != nil {
		p.err = err
		return fp.Zero()
	}
	return v
}
