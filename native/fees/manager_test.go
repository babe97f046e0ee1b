package fees

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	nativecommon "gravitywell/native/common"
	"gravitywell/native/curve"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/pool"
)

type recordingBurner struct {
	burned *uint256.Int
	calls  int
}

func newBurner() *recordingBurner { return &recordingBurner{burned: fp.Zero()} }

func (b *recordingBurner) Burn(amount *uint256.Int) (*curve.BurnResult, error) {
	b.calls++
	b.burned = new(uint256.Int).Add(b.burned, amount)
	return &curve.BurnResult{Amount: fp.Clone(amount)}, nil
}

func seededPool(t *testing.T, native, foreign uint64) *pool.Pool {
	t.Helper()
	p, err := pool.New(3000)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if _, err := p.AddLiquidity(fp.Units(native), fp.Units(foreign)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return p
}

func newManager(t *testing.T, minSwap uint64) *Manager {
	t.Helper()
	m, err := NewManager(Config{MinSwapForeign: fp.Units(minSwap)})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestApplyDeductsOnce(t *testing.T) {
	res, err := Apply(5_000, fp.Units(1_000))
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Fee.Eq(fp.Units(5)) {
		t.Fatalf("fee %s, want 5 units", res.Fee.Dec())
	}
	if !res.Net.Eq(fp.Units(995)) {
		t.Fatalf("net %s, want 995 units", res.Net.Dec())
	}
}

func TestApplyEdgeCases(t *testing.T) {
	cases := []struct {
		name    string
		fee     uint64
		gross   *uint256.Int
		wantFee uint64
	}{
		{name: "zero fee", fee: 0, gross: fp.Units(10), wantFee: 0},
		{name: "zero gross", fee: 5_000, gross: fp.Zero(), wantFee: 0},
		{name: "floored", fee: 3_000, gross: uint256.NewInt(333), wantFee: 0},
		{name: "exact", fee: 3_000, gross: uint256.NewInt(1_000), wantFee: 3},
	}
	for _, tc := range cases {
		res, err := Apply(tc.fee, tc.gross)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if res.Fee.Uint64() != tc.wantFee {
			t.Fatalf("%s: fee %d, want %d", tc.name, res.Fee.Uint64(), tc.wantFee)
		}
		sum := new(uint256.Int).Add(res.Fee, res.Net)
		if !sum.Eq(tc.gross) {
			t.Fatalf("%s: fee+net != gross", tc.name)
		}
	}
	if _, err := Apply(fp.PPM, fp.Units(1)); !errors.Is(err, coreerrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestNativeFeesBurnImmediately(t *testing.T) {
	m := newManager(t, 1)
	burner := newBurner()
	burned, err := m.ReceiveFeeNative(fp.Units(3), burner)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !burned.Eq(fp.Units(3)) || !burner.burned.Eq(fp.Units(3)) {
		t.Fatalf("burned %s", burned.Dec())
	}
	n, _ := m.Buffers()
	if !n.IsZero() || !m.TotalNativeBurned().Eq(fp.Units(3)) {
		t.Fatalf("native buffer %s, total %s", n.Dec(), m.TotalNativeBurned().Dec())
	}
}

func TestForeignBelowMinimumBuffers(t *testing.T) {
	m := newManager(t, 10)
	p := seededPool(t, 1_000, 1_000)
	burner := newBurner()
	res, err := m.ReceiveFeeForeign(fp.Units(10), p, burner)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	// The buffer must exceed the minimum, not just reach it.
	if res.Status != ConversionBelowMin {
		t.Fatalf("status %q", res.Status)
	}
	if m.PendingConversion() {
		t.Fatalf("buffer at minimum is not pending")
	}
	if burner.calls != 0 {
		t.Fatalf("burner called below minimum")
	}
}

func TestConversionDeferredThenDrained(t *testing.T) {
	m := newManager(t, 1)
	p := seededPool(t, 100, 100)
	burner := newBurner()

	res, err := m.ReceiveFeeForeign(fp.Units(20), p, burner)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if res.Status != ConversionDeferred || res.Reason != "slippage" {
		t.Fatalf("expected slippage deferral, got %q (%s)", res.Status, res.Reason)
	}
	if res.DeviationPPM <= DefaultSlippageTolerancePPM {
		t.Fatalf("deviation %d inside band", res.DeviationPPM)
	}
	_, f := m.Buffers()
	if !f.Eq(fp.Units(20)) {
		t.Fatalf("buffer %s, want 20 units", f.Dec())
	}
	if !m.TotalNativeBurned().IsZero() || burner.calls != 0 {
		t.Fatalf("deferred conversion burned")
	}
	if !m.PendingConversion() {
		t.Fatalf("deferred buffer must stay pending")
	}

	// Deepen the pool so the same buffer converts inside the band.
	if _, err := p.AddLiquidity(fp.Units(10_000), fp.Units(10_000)); err != nil {
		t.Fatalf("deepen: %v", err)
	}
	quoted, err := p.QuoteForeignForNative(fp.Units(21))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	res, err = m.ReceiveFeeForeign(fp.Units(1), p, burner)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if res.Status != ConversionConverted {
		t.Fatalf("expected conversion, got %q (%s)", res.Status, res.Reason)
	}
	if !res.NativeBurned.Eq(quoted) || !m.TotalNativeBurned().Eq(quoted) || !burner.burned.Eq(quoted) {
		t.Fatalf("burned %s, want %s", res.NativeBurned.Dec(), quoted.Dec())
	}
	if !m.TotalForeignConverted().Eq(fp.Units(21)) {
		t.Fatalf("converted %s", m.TotalForeignConverted().Dec())
	}
	_, f = m.Buffers()
	if !f.IsZero() {
		t.Fatalf("buffer not drained: %s", f.Dec())
	}
}

func TestConversionDeferredOnEmptyPool(t *testing.T) {
	m := newManager(t, 0)
	p, _ := pool.New(3000)
	res, err := m.ReceiveFeeForeign(fp.Units(5), p, newBurner())
	if err != nil {
		t.Fatalf("empty pool must defer, got %v", err)
	}
	if res.Status != ConversionDeferred {
		t.Fatalf("status %q", res.Status)
	}
}

func TestPausedManagerOnlyBuffers(t *testing.T) {
	m := newManager(t, 0)
	m.SetPauses(nativecommon.NewPauses(ModuleName))
	p := seededPool(t, 10_000, 10_000)
	burner := newBurner()
	if _, err := m.ReceiveFeeNative(fp.Units(1), burner); err != nil {
		t.Fatalf("native: %v", err)
	}
	res, err := m.ReceiveFeeForeign(fp.Units(1), p, burner)
	if err != nil {
		t.Fatalf("foreign: %v", err)
	}
	if res.Status != ConversionDeferred || burner.calls != 0 {
		t.Fatalf("paused manager acted: %q, %d burns", res.Status, burner.calls)
	}
	if m.PendingConversion() {
		t.Fatalf("paused manager reports pending work")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	m := newManager(t, 100)
	clone := m.Clone()
	if _, err := m.ReceiveFeeForeign(fp.Units(5), nil, nil); err != nil {
		t.Fatalf("receive: %v", err)
	}
	_, f := clone.Buffers()
	if !f.IsZero() {
		t.Fatalf("clone shares buffer")
	}
}
