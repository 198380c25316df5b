package models

import "time"

// OrderState is the lifecycle state reported with an execution.
type OrderState string

const (
	OrderWorking    OrderState = "Working"
	OrderPartFilled OrderState = "PartFilled"
	OrderFilled     OrderState = "Filled"
	OrderCancelled  OrderState = "Cancelled"
	OrderRejected   OrderState = "Rejected"
)

// FillEvent is one execution reported by the platform for an account.
type FillEvent struct {
	Account    string
	Instrument string
	Direction  MarketPosition // Long/Short
	Quantity   int            // absolute filled quantity
	State      OrderState
	OrderID    string
	Price      float64
	Time       time.Time
}
