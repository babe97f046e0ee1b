package events

import (
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"gravitywell/core/types"
)

const (
	// TypeFeeConversion marks a foreign fee conversion attempt, converted or
	// deferred.
	TypeFeeConversion = "fees.conversion"
)

// FeeConversion records the outcome of a conversion attempt for analytics
// pipelines.
type FeeConversion struct {
	Status        string
	Reason        string
	ForeignIn     *uint256.Int
	NativeBurned  *uint256.Int
	RealizedPrice *uint256.Int
	SpotPrice     *uint256.Int
	DeviationPPM  uint64
}

// EventType satisfies the events.Event interface.
func (FeeConversion) EventType() string { return TypeFeeConversion }

// Event converts the structured payload into a broadcastable event.
func (e FeeConversion) Event() *types.Event {
	attrs := map[string]string{
		"status":       strings.TrimSpace(e.Status),
		"foreignIn":    amount(e.ForeignIn),
		"nativeBurned": amount(e.NativeBurned),
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	if e.RealizedPrice != nil {
		attrs["realizedPrice"] = e.RealizedPrice.Dec()
	}
	if e.SpotPrice != nil {
		attrs["spotPrice"] = e.SpotPrice.Dec()
	}
	if e.DeviationPPM > 0 {
		attrs["deviationPpm"] = strconv.FormatUint(e.DeviationPPM, 10)
	}
	return &types.Event{Type: TypeFeeConversion, Attributes: attrs}
}
