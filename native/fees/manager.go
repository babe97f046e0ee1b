// Package fees accumulates router fees and destroys them. Native fees are
// burned immediately; foreign fees are converted to native through the pool
// under a slippage bound and the proceeds burned.
package fees

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "gravitywell/core/errors"
	nativecommon "gravitywell/native/common"
	"gravitywell/native/curve"
	fp "gravitywell/native/fixedpoint"
	"gravitywell/native/pool"
)

const (
	// ModuleName identifies the fee manager for pause checks.
	ModuleName = "fees"
	// DefaultSlippageTolerancePPM is the widest accepted gap between the
	// realized conversion price and pool spot (10%).
	DefaultSlippageTolerancePPM uint64 = 100_000
)

var errTolerance = fmt.Errorf("fees: slippage tolerance must be below 100%%: %w", coreerrors.ErrValidation)

// Market is the pool capability used for conversions. *pool.Pool satisfies it.
type Market interface {
	SpotPrice() (*uint256.Int, error)
	QuoteForeignForNative(foreignIn *uint256.Int) (*uint256.Int, error)
	SwapForeignForNative(foreignIn *uint256.Int) (*pool.SwapResult, error)
}

// Burner destroys native supply. *curve.Curve satisfies it.
type Burner interface {
	Burn(amount *uint256.Int) (*curve.BurnResult, error)
}

// Config carries the immutable fee manager parameters.
type Config struct {
	// MinSwapForeign is the foreign buffer size that must be exceeded before a
	// conversion is attempted.
	MinSwapForeign       *uint256.Int
	SlippageTolerancePPM uint64
}

// ConversionStatus describes how a conversion attempt ended.
type ConversionStatus string

const (
	ConversionNone      ConversionStatus = ""
	ConversionConverted ConversionStatus = "converted"
	ConversionDeferred  ConversionStatus = "deferred"
	ConversionBelowMin  ConversionStatus = "below_minimum"
)

// ConversionResult reports a conversion attempt. A deferral is not an error;
// the buffer is left for a later retry.
type ConversionResult struct {
	Status        ConversionStatus
	ForeignIn     *uint256.Int
	NativeBurned  *uint256.Int
	RealizedPrice *uint256.Int
	SpotPrice     *uint256.Int
	DeviationPPM  uint64
	Reason        string
}

// State is the persisted form of the fee manager.
type State struct {
	BufferNative          *uint256.Int
	BufferForeign         *uint256.Int
	TotalNativeBurned     *uint256.Int
	TotalForeignConverted *uint256.Int
}

// Manager buffers fees and burns them. It is not safe for concurrent use.
type Manager struct {
	minSwapForeign        *uint256.Int
	tolerancePPM          uint64
	bufferNative          *uint256.Int
	bufferForeign         *uint256.Int
	totalNativeBurned     *uint256.Int
	totalForeignConverted *uint256.Int
	pauses                nativecommon.PauseView
}

// NewManager validates cfg. A zero tolerance selects the 10% default.
func NewManager(cfg Config) (*Manager, error) {
	tolerance := cfg.SlippageTolerancePPM
	if tolerance == 0 {
		tolerance = DefaultSlippageTolerancePPM
	}
	if tolerance >= fp.PPM {
		return nil, errTolerance
	}
	return &Manager{
		minSwapForeign:        fp.Clone(cfg.MinSwapForeign),
		tolerancePPM:          tolerance,
		bufferNative:          fp.Zero(),
		bufferForeign:         fp.Zero(),
		totalNativeBurned:     fp.Zero(),
		totalForeignConverted: fp.Zero(),
	}, nil
}

// SetPauses wires the pause view. A paused manager only buffers.
func (m *Manager) SetPauses(p nativecommon.PauseView) {
	if m == nil {
		return
	}
	m.pauses = p
}

// State returns a copy of the mutable state.
func (m *Manager) State() State {
	return State{
		BufferNative:          fp.Clone(m.bufferNative),
		BufferForeign:         fp.Clone(m.bufferForeign),
		TotalNativeBurned:     fp.Clone(m.totalNativeBurned),
		TotalForeignConverted: fp.Clone(m.totalForeignConverted),
	}
}

// Restore replaces the mutable state.
func (m *Manager) Restore(state State) {
	m.bufferNative = fp.Clone(state.BufferNative)
	m.bufferForeign = fp.Clone(state.BufferForeign)
	m.totalNativeBurned = fp.Clone(state.TotalNativeBurned)
	m.totalForeignConverted = fp.Clone(state.TotalForeignConverted)
}

// Clone returns an independent copy used for checkpoints.
func (m *Manager) Clone() *Manager {
	clone := &Manager{
		minSwapForeign: fp.Clone(m.minSwapForeign),
		tolerancePPM:   m.tolerancePPM,
		pauses:         m.pauses,
	}
	clone.Restore(m.State())
	return clone
}

// Buffers returns the fees awaiting burn or conversion.
func (m *Manager) Buffers() (native, foreign *uint256.Int) {
	return fp.Clone(m.bufferNative), fp.Clone(m.bufferForeign)
}

// TotalNativeBurned returns the cumulative native destroyed.
func (m *Manager) TotalNativeBurned() *uint256.Int { return fp.Clone(m.totalNativeBurned) }

// TotalForeignConverted returns the cumulative foreign converted.
func (m *Manager) TotalForeignConverted() *uint256.Int { return fp.Clone(m.totalForeignConverted) }

// TolerancePPM returns the slippage band applied to conversions.
func (m *Manager) TolerancePPM() uint64 { return m.tolerancePPM }

func (m *Manager) paused() bool {
	return nativecommon.Guard(m.pauses, ModuleName) != nil
}

// ReceiveFeeNative buffers a native fee and burns the whole native buffer.
// It returns the amount burned, zero while paused.
func (m *Manager) ReceiveFeeNative(amount *uint256.Int, burner Burner) (*uint256.Int, error) {
	next, err := fp.Add(m.bufferNative, amount)
	if err != nil {
		return nil, err
	}
	m.bufferNative = next
	return m.BurnNative(burner)
}

// BurnNative destroys the native buffer.
func (m *Manager) BurnNative(burner Burner) (*uint256.Int, error) {
	if m.bufferNative.IsZero() || burner == nil || m.paused() {
		return fp.Zero(), nil
	}
	amount := fp.Clone(m.bufferNative)
	if _, err := burner.Burn(amount); err != nil {
		return nil, err
	}
	total, err := fp.Add(m.totalNativeBurned, amount)
	if err != nil {
		return nil, err
	}
	m.totalNativeBurned = total
	m.bufferNative = fp.Zero()
	return amount, nil
}

// ReceiveFeeForeign buffers a foreign fee and, once the buffer exceeds the
// minimum swap size, attempts a conversion.
func (m *Manager) ReceiveFeeForeign(amount *uint256.Int, market Market, burner Burner) (*ConversionResult, error) {
	next, err := fp.Add(m.bufferForeign, amount)
	if err != nil {
		return nil, err
	}
	m.bufferForeign = next
	if !m.bufferForeign.Gt(fp.Clone(m.minSwapForeign)) {
		return &ConversionResult{Status: ConversionBelowMin, ForeignIn: fp.Zero(), NativeBurned: fp.Zero()}, nil
	}
	return m.Convert(market, burner)
}

// PendingConversion reports whether the foreign buffer is large enough to
// retry a conversion. It does not mutate anything.
func (m *Manager) PendingConversion() bool {
	if m.paused() {
		return false
	}
	return m.bufferForeign.Gt(fp.Clone(m.minSwapForeign)) || !m.bufferNative.IsZero()
}

// Convert swaps the whole foreign buffer into native and burns the output,
// unless the realized price deviates from spot by more than the tolerance, in
// which case the buffer is left untouched.
func (m *Manager) Convert(market Market, burner Burner) (*ConversionResult, error) {
	res := &ConversionResult{Status: ConversionDeferred, ForeignIn: fp.Zero(), NativeBurned: fp.Zero()}
	if _, err := m.BurnNative(burner); err != nil {
		return nil, err
	}
	switch {
	case m.bufferForeign.IsZero():
		res.Status = ConversionNone
		return res, nil
	case m.paused():
		res.Reason = "paused"
		return res, nil
	case market == nil || burner == nil:
		res.Reason = "no market"
		return res, nil
	}
	spot, err := market.SpotPrice()
	if err != nil {
		if coreerrors.Is(err, coreerrors.ErrInsufficientLiquidity) {
			res.Reason = "pool empty"
			return res, nil
		}
		return nil, err
	}
	res.SpotPrice = spot
	foreignIn := fp.Clone(m.bufferForeign)
	out, err := market.QuoteForeignForNative(foreignIn)
	if err != nil {
		return nil, err
	}
	if out.IsZero() {
		res.Reason = "output rounds to zero"
		return res, nil
	}
	realized, err := fp.MulDiv(foreignIn, fp.Precision(), out)
	if err != nil {
		return nil, err
	}
	res.RealizedPrice = realized
	deviation, err := deviationPPM(realized, spot)
	if err != nil {
		return nil, err
	}
	res.DeviationPPM = deviation
	if deviation > m.tolerancePPM {
		res.Reason = "slippage"
		return res, nil
	}

	swap, err := market.SwapForeignForNative(foreignIn)
	if err != nil {
		return nil, err
	}
	if _, err := burner.Burn(swap.AmountOut); err != nil {
		return nil, err
	}
	if m.totalNativeBurned, err = fp.Add(m.totalNativeBurned, swap.AmountOut); err != nil {
		return nil, err
	}
	if m.totalForeignConverted, err = fp.Add(m.totalForeignConverted, foreignIn); err != nil {
		return nil, err
	}
	m.bufferForeign = fp.Zero()
	res.Status = ConversionConverted
	res.ForeignIn = foreignIn
	res.NativeBurned = fp.Clone(swap.AmountOut)
	return res, nil
}

// deviationPPM returns |realized-spot|*PPM/spot, saturating at MaxUint64.
func deviationPPM(realized, spot *uint256.Int) (uint64, error) {
	if spot.IsZero() {
		return ^uint64(0), nil
	}
	dev, err := fp.MulDiv(fp.AbsDiff(realized, spot), fp.PPMInt(), spot)
	if err != nil {
		return 0, err
	}
	if !dev.IsUint64() {
		return ^uint64(0), nil
	}
	return dev.Uint64(), nil
}
