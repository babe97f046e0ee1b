package events

import (
	"strings"

	"github.com/holiman/uint256"

	"gravitywell/core/types"
)

const (
	// TypeTradeExecuted is emitted for every filled buy or sell.
	TypeTradeExecuted = "router.trade"
)

type TradeExecuted struct {
	Account     string
	Direction   string
	Route       string
	AmountIn    *uint256.Int
	Fee         *uint256.Int
	AmountOut   *uint256.Int
	PriceBefore *uint256.Int
	PriceAfter  *uint256.Int
}

func (TradeExecuted) EventType() string { return TypeTradeExecuted }

func (e TradeExecuted) Event() *types.Event {
	return &types.Event{
		Type: TypeTradeExecuted,
		Attributes: map[string]string{
			"account":     strings.TrimSpace(e.Account),
			"direction":   strings.TrimSpace(e.Direction),
			"route":       strings.TrimSpace(e.Route),
			"amountIn":    amount(e.AmountIn),
			"fee":         amount(e.Fee),
			"amountOut":   amount(e.AmountOut),
			"priceBefore": amount(e.PriceBefore),
			"priceAfter":  amount(e.PriceAfter),
		},
	}
}
