package core

import (
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	coreerrors "gravitywell/core/errors"
	"gravitywell/core/events"
	"gravitywell/core/types"
	"gravitywell/native/bank"
	nativecommon "gravitywell/native/common"
	"gravitywell/native/curve"
	"gravitywell/native/fees"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/router"
	"gravitywell/native/treasury"
)

type allowCaller string

func (a allowCaller) CanUnwind(caller, _ string) bool { return caller == string(a) }

func testConfig() Config {
	return Config{
		Curve: curve.Params{
			PriceInitial: uint256.NewInt(1_000_000_000),
			Slope:        uint256.NewInt(1_000_000_000),
			UserPPM:      333_333,
			TreasuryPPM:  666_667,
		},
		InitialSupply: fp.Zero(),
		PoolFeePPM:    3_000,
		Treasury: treasury.Config{
			Buckets:    []treasury.BucketConfig{{ID: "floor", WeightPPM: 700_000}, {ID: "growth", WeightPPM: 300_000}},
			MinZapSwap: fp.Units(1),
		},
		Fees: fees.Config{MinSwapForeign: fp.Units(1)},
		Router: router.Config{
			FeePPM:            5_000,
			MinSwapForeign:    fp.Units(1),
			MinSwapNative:     fp.Units(1),
			MinInitialForeign: fp.Units(10),
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, *bank.Ledger, *events.Recorder) {
	t.Helper()
	ledger := bank.NewLedger()
	e, err := New(testConfig(), ledger)
	require.NoError(t, err)
	rec := &events.Recorder{}
	e.SetEmitter(rec)
	e.SetAuthority(allowCaller("gov"))
	return e, ledger, rec
}

func fund(t *testing.T, e *Engine, account string, units uint64) {
	t.Helper()
	require.NoError(t, e.Credit(account, types.AssetForeign, fp.Units(units)))
}

func requireConserved(t *testing.T, e *Engine, ledger *bank.Ledger, credited *uint256.Int) {
	t.Helper()
	view := e.State()
	held := new(uint256.Int).Add(view.Circulating, view.ReserveNative)
	held.Add(held, view.TreasuryNative)
	held.Add(held, view.FeeNative)
	require.Equal(t, view.Supply.Dec(), held.Dec(), "native conservation")

	inside := new(uint256.Int).Add(view.ReserveForeign, view.TreasuryForeign)
	inside.Add(inside, view.FeeForeign)
	net := new(uint256.Int).Sub(view.ForeignIn, view.ForeignOut)
	require.Equal(t, net.Dec(), inside.Dec(), "foreign conservation")

	require.Equal(t, view.SupplyLP.Dec(), view.TreasuryLP.Dec(), "lp ownership")

	require.Equal(t, view.Circulating.Dec(), ledger.Total(types.AssetNative).Dec())
	outside := new(uint256.Int).Sub(credited, view.ForeignIn)
	outside.Add(outside, view.ForeignOut)
	require.Equal(t, outside.Dec(), ledger.Total(types.AssetForeign).Dec())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Curve.UserPPM = 500_000
	_, err := New(cfg, bank.NewLedger())
	require.ErrorIs(t, err, coreerrors.ErrValidation)

	_, err = New(testConfig(), nil)
	require.ErrorIs(t, err, coreerrors.ErrValidation)
}

func TestFirstBuyMintsAndSeedsPool(t *testing.T) {
	e, ledger, rec := newTestEngine(t)
	fund(t, e, "alice", 1_000)

	out, err := e.Buy("Alice", fp.Units(1_000), nil)
	require.NoError(t, err)
	require.Equal(t, string(router.RouteCurve), out.Route)
	require.Equal(t, fp.Units(5).Dec(), out.Fee.Dec())
	require.Equal(t, fp.Units(995).Dec(), out.Net.Dec())
	require.NotNil(t, out.Zap)
	require.False(t, out.Zap.LPMinted.IsZero())

	user, treasuryShare := out.AmountOut, out.TreasuryShare
	require.Equal(t, out.Minted.Dec(), new(uint256.Int).Add(user, treasuryShare).Dec())
	require.Equal(t, user.Dec(), ledger.Balance("alice", types.AssetNative).Dec())
	require.True(t, ledger.Balance("alice", types.AssetForeign).IsZero())

	view := e.State()
	require.False(t, view.ReserveForeign.IsZero())
	require.NotNil(t, view.PoolPrice)
	var lp uint256.Int
	for _, b := range view.Buckets {
		lp.Add(&lp, b.LPTokens)
	}
	require.Equal(t, view.SupplyLP.Dec(), lp.Dec())
	require.Contains(t, rec.Types(), events.TypeTradeExecuted)
	require.Contains(t, rec.Types(), events.TypeZapDeposited)
	require.Contains(t, rec.Types(), events.TypeTokenSupply)
	requireConserved(t, e, ledger, fp.Units(1_000))
}

func TestSlippageRollsBackEverything(t *testing.T) {
	e, ledger, rec := newTestEngine(t)
	fund(t, e, "alice", 1_000)
	before, err := e.Snapshot()
	require.NoError(t, err)

	_, err = e.Buy("alice", fp.Units(100), fp.Units(1_000_000))
	require.ErrorIs(t, err, coreerrors.ErrSlippageExceeded)

	after, err := e.Snapshot()
	require.NoError(t, err)
	require.Equal(t, before.Digest, after.Digest)
	require.Equal(t, fp.Units(1_000).Dec(), ledger.Balance("alice", types.AssetForeign).Dec())
	require.Empty(t, rec.Events)
}

func TestInsufficientBalanceRejectedBeforeMutation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	fund(t, e, "alice", 10)
	_, err := e.Buy("alice", fp.Units(11), nil)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientAmount)
	_, err = e.Sell("alice", fp.Units(1), nil)
	require.ErrorIs(t, err, coreerrors.ErrInsufficientAmount)
	require.Zero(t, e.State().Swaps)
}

func TestCreditOnlyAcceptsForeign(t *testing.T) {
	e, _, _ := newTestEngine(t)
	require.ErrorIs(t, e.Credit("alice", types.AssetNative, fp.Units(1)), coreerrors.ErrValidation)
	require.ErrorIs(t, e.Credit("alice", types.AssetForeign, fp.Zero()), coreerrors.ErrInsufficientAmount)
}

func TestSellBurnsNativeFee(t *testing.T) {
	e, ledger, _ := newTestEngine(t)
	fund(t, e, "alice", 1_000)
	_, err := e.Buy("alice", fp.Units(1_000), nil)
	require.NoError(t, err)

	burnedBefore := e.State().TotalNativeBurned
	out, err := e.Sell("alice", fp.Units(100), nil)
	require.NoError(t, err)
	require.Equal(t, string(router.RoutePool), out.Route)
	require.False(t, out.AmountOut.IsZero())
	require.Equal(t, out.Fee.Dec(), out.FeeBurned.Dec())

	burned := new(uint256.Int).Sub(e.State().TotalNativeBurned, burnedBefore)
	require.True(t, burned.Cmp(out.Fee) >= 0)
	requireConserved(t, e, ledger, fp.Units(1_000))
}

func TestConservationAcrossRandomTrading(t *testing.T) {
	e, ledger, _ := newTestEngine(t)
	accounts := []string{"alice", "bob", "carol"}
	credited := fp.Zero()
	for _, acc := range accounts {
		fund(t, e, acc, 50_000)
		credited.Add(credited, fp.Units(50_000))
	}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		acc := accounts[rng.Intn(len(accounts))]
		amount := fp.Units(uint64(1 + rng.Intn(400)))
		var err error
		if rng.Intn(3) == 0 {
			_, err = e.Sell(acc, amount, nil)
		} else {
			_, err = e.Buy(acc, amount, nil)
		}
		if err != nil {
			require.ErrorIs(t, err, coreerrors.ErrInsufficientAmount, "step %d", i)
		}
		requireConserved(t, e, ledger, credited)
	}
	require.NotZero(t, e.State().Swaps)
}

func TestUnwindPaysRecipient(t *testing.T) {
	e, ledger, rec := newTestEngine(t)
	fund(t, e, "alice", 1_000)
	_, err := e.Buy("alice", fp.Units(1_000), nil)
	require.NoError(t, err)

	var growth types.BucketView
	for _, b := range e.Buckets() {
		if b.ID == "growth" {
			growth = b
		}
	}
	require.False(t, growth.LPTokens.IsZero())
	half := new(uint256.Int).Rsh(growth.LPTokens, 1)

	_, err = e.Unwind("mallory", "growth", half, "mallory")
	require.ErrorIs(t, err, coreerrors.ErrUnauthorized)
	_, err = e.Unwind("gov", "floor", fp.Units(1), "ops")
	require.ErrorIs(t, err, coreerrors.ErrBucketLocked)
	_, err = e.Unwind("gov", "missing", fp.Units(1), "ops")
	require.ErrorIs(t, err, coreerrors.ErrUnknownBucket)

	out, err := e.Unwind("gov", "growth", half, "ops")
	require.NoError(t, err)
	require.Equal(t, out.Native.Dec(), ledger.Balance("ops", types.AssetNative).Dec())
	require.Equal(t, out.Foreign.Dec(), ledger.Balance("ops", types.AssetForeign).Dec())
	require.Contains(t, rec.Types(), events.TypeBucketUnwound)
	requireConserved(t, e, ledger, fp.Units(1_000))
}

func TestPausedRouterRejectsTrades(t *testing.T) {
	e, _, _ := newTestEngine(t)
	fund(t, e, "alice", 100)
	e.SetPauses(nativecommon.NewPauses(router.ModuleName))
	_, err := e.Buy("alice", fp.Units(50), nil)
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
}

func TestPokeDrainsBufferedTreasury(t *testing.T) {
	e, ledger, _ := newTestEngine(t)
	pauses := nativecommon.NewPauses(treasury.ModuleName)
	e.SetPauses(pauses)
	fund(t, e, "alice", 1_000)
	_, err := e.Buy("alice", fp.Units(1_000), nil)
	require.NoError(t, err)

	view := e.State()
	require.False(t, view.TreasuryNative.IsZero())
	require.False(t, view.TreasuryForeign.IsZero())
	require.True(t, view.ReserveNative.IsZero())

	pauses.Set(treasury.ModuleName, false)
	require.Contains(t, e.State().Pending, taskZap)
	cycle, err := e.Poke()
	require.NoError(t, err)
	require.Contains(t, cycle.Executed, taskZap)

	view = e.State()
	require.True(t, view.TreasuryNative.IsZero())
	require.True(t, view.TreasuryForeign.IsZero())
	require.False(t, view.ReserveNative.IsZero())
	requireConserved(t, e, ledger, fp.Units(1_000))
}

func TestSnapshotRoundTrip(t *testing.T) {
	e, _, _ := newTestEngine(t)
	fund(t, e, "alice", 5_000)
	fund(t, e, "bob", 5_000)
	_, err := e.Buy("alice", fp.Units(2_000), nil)
	require.NoError(t, err)
	_, err = e.Buy("bob", fp.Units(500), nil)
	require.NoError(t, err)

	snap, err := e.Snapshot()
	require.NoError(t, err)
	require.NotEmpty(t, snap.Digest)
	require.Len(t, snap.Accounts, 2)

	restored, err := New(testConfig(), bank.NewLedger())
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snap))
	again, err := restored.Snapshot()
	require.NoError(t, err)
	require.Equal(t, snap.Digest, again.Digest)
	require.Equal(t, e.State().Supply.Dec(), restored.State().Supply.Dec())

	tampered := *snap
	tampered.Circulating = "1"
	require.ErrorIs(t, restored.Restore(&tampered), coreerrors.ErrValidation)

	tampered.Digest = ""
	require.ErrorIs(t, restored.Restore(&tampered), coreerrors.ErrConservationViolation)
}

func TestRestoreRejectsUnbackedBucketLP(t *testing.T) {
	e, _, _ := newTestEngine(t)
	fund(t, e, "alice", 5_000)
	_, err := e.Buy("alice", fp.Units(2_000), nil)
	require.NoError(t, err)

	snap, err := e.Snapshot()
	require.NoError(t, err)
	require.NotEqual(t, "0", snap.Pool.SupplyLP)

	tampered := *snap
	tampered.Treasury.Buckets = append([]BucketSnapshot(nil), snap.Treasury.Buckets...)
	growth, err := fp.Parse(tampered.Treasury.Buckets[1].LPTokens)
	require.NoError(t, err)
	tampered.Treasury.Buckets[1].LPTokens = fp.String(new(uint256.Int).Add(growth, fp.Units(1)))
	tampered.Digest, err = tampered.ComputeDigest()
	require.NoError(t, err)

	restored, err := New(testConfig(), bank.NewLedger())
	require.NoError(t, err)
	require.ErrorIs(t, restored.Restore(&tampered), coreerrors.ErrConservationViolation)
	require.True(t, restored.State().SupplyLP.IsZero())

	require.NoError(t, restored.Restore(snap))
	require.Equal(t, snap.Pool.SupplyLP, fp.String(restored.State().TreasuryLP))
}
