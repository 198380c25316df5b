package models

import "time"

type Instrument struct {
	Name        string
	DisplayName string
	TickSize    float64
	PointValue  float64 // currency per 1.0 price move per contract
}

// TickValue is the currency value of one tick for one contract.
func (i Instrument) TickValue() float64 { return i.PointValue * i.TickSize }

type Account struct {
	Name string
	ID   string
}

// Tick is a last-price update for an instrument; it drives reconciler polls.
type Tick struct {
	Instrument string
	Price      float64
	Time       time.Time
}
