package models

import "time"

// Position is an authoritative platform read. Quantity is signed: negative for short.
type Position struct {
	Market   MarketPosition
	Quantity int
	AvgPrice float64
}

func FlatPosition() Position { return Position{Market: Flat} }

// PositionFromQuantity derives the market position from a signed quantity.
func PositionFromQuantity(qty int, avg float64) Position {
	switch {
	case qty > 0:
		return Position{Market: Long, Quantity: qty, AvgPrice: avg}
	case qty < 0:
		return Position{Market: Short, Quantity: qty, AvgPrice: avg}
	}
	return FlatPosition()
}

// AbsQuantity is the unsigned size of the position.
func (p Position) AbsQuantity() int {
	if p.Quantity < 0 {
		return -p.Quantity
	}
	return p.Quantity
}

// PositionKey identifies one account/instrument pair.
type PositionKey struct {
	Account    string
	Instrument string
}

// PositionSnapshot is the last observed state for a PositionKey.
type PositionSnapshot struct {
	Market   MarketPosition
	Quantity int
	At       time.Time
}
