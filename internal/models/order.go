package models

type OrderType string

const (
	OrderMarket     OrderType = "MARKET"
	OrderLimit      OrderType = "LIMIT"
	OrderStopMarket OrderType = "STOP_MARKET"
)

// Order is a submission request. Orders submitted together with the same OCO id
// are linked: a fill on one cancels the rest.
type Order struct {
	ID         string
	Name       string
	Instrument string
	Action     OrderAction
	Type       OrderType
	Quantity   int
	LimitPrice float64
	StopPrice  float64
	OCO        string

	// Bracket, when set on a market entry, asks the platform to attach the
	// protective pair atomically with the entry.
	Bracket *Bracket
}

// Bracket is a take-profit/stop-loss pair sharing one OCO id. A zero tick count
// means the leg is not attached.
type Bracket struct {
	OCO             string
	TakeProfitTicks int
	StopLossTicks   int
	TakeProfitPrice float64
	StopLossPrice   float64
}

func (b *Bracket) Empty() bool {
	return b == nil || (b.TakeProfitTicks == 0 && b.StopLossTicks == 0)
}
