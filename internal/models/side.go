package models

import (
	"strings"

	"github.com/pkg/errors"
)

// MarketPosition is the tri-state position of an account on one instrument.
type MarketPosition string

const (
	Flat  MarketPosition = "FLAT"
	Long  MarketPosition = "LONG"
	Short MarketPosition = "SHORT"
)

// IsOpen reports whether the position is Long or Short. An unknown (zero)
// value counts as flat.
func (p MarketPosition) IsOpen() bool { return p == Long || p == Short }

// OrderAction is the market side of an order.
type OrderAction string

const (
	ActionBuy        OrderAction = "BUY"
	ActionSell       OrderAction = "SELL"
	ActionSellShort  OrderAction = "SELL_SHORT"
	ActionBuyToCover OrderAction = "BUY_TO_COVER"
)

// IsBuy reports whether the action adds to the signed position.
func (a OrderAction) IsBuy() bool { return a == ActionBuy || a == ActionBuyToCover }

// Opens reports whether the action opens exposure (Buy / SellShort) rather than reducing it.
func (a OrderAction) Opens() bool { return a == ActionBuy || a == ActionSellShort }

// ExitAction returns the action that closes a position opened with a.
func (a OrderAction) ExitAction() OrderAction {
	if a.IsBuy() {
		return ActionSell
	}
	return ActionBuyToCover
}

// Direction is the configured relation between primary and mirror.
type Direction string

const (
	DirectionSame     Direction = "same"
	DirectionOpposite Direction = "opposite"
)

func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "same":
		return DirectionSame, nil
	case "opposite", "inverse", "reverse":
		return DirectionOpposite, nil
	}
	return "", errors.Errorf("unknown mirror direction %q", raw)
}
