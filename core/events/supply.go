package events

import (
	"strings"

	"github.com/holiman/uint256"

	"gravitywell/core/types"
)

const (
	// TypeTokenSupply is emitted whenever the native supply changes.
	TypeTokenSupply = "token.supply"

	// SupplyReasonMint identifies curve mints.
	SupplyReasonMint = "mint"
	// SupplyReasonBurn identifies fee burns.
	SupplyReasonBurn = "burn"
)

// TokenSupply captures a supply delta.
type TokenSupply struct {
	Token  string
	Total  *uint256.Int
	Delta  *uint256.Int
	Reason string
}

func (TokenSupply) EventType() string { return TypeTokenSupply }

// Event renders the structured supply change event for downstream consumers.
func (e TokenSupply) Event() *types.Event {
	attrs := map[string]string{}
	token := normalizeAsset(e.Token)
	if token == "" {
		token = "UNKNOWN"
	}
	attrs["token"] = token
	attrs["total"] = amount(e.Total)
	if e.Delta != nil {
		attrs["delta"] = e.Delta.Dec()
	}
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		attrs["reason"] = reason
	}
	return &types.Event{Type: TypeTokenSupply, Attributes: attrs}
}
