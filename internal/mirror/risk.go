package mirror

import (
	"github.com/shopspring/decimal"

	"trade_mirror/internal/models"
)

// PrimaryRisk is the stop-loss / take-profit configured on the primary trade,
// either in currency or in ticks of the primary instrument.
type PrimaryRisk struct {
	Mode       models.RiskMode
	StopLoss   float64
	TakeProfit float64
}

// Dollars returns the primary stop-loss and take-profit in currency. Tick
// values are converted with the primary instrument's tick value for the
// filled quantity.
func (r PrimaryRisk) Dollars(primary models.Instrument, quantity int) (stopLoss, takeProfit float64) {
	if r.Mode != models.RiskTicks {
		return r.StopLoss, r.TakeProfit
	}
	if quantity < 1 {
		quantity = 1
	}
	perTick := primary.TickValue() * float64(quantity)
	return r.StopLoss * perTick, r.TakeProfit * perTick
}

// FaceToFace maps the primary legs onto a mirror. An opposite mirror profits
// where the primary loses, so its take-profit is the primary's stop-loss and
// its stop-loss is the primary's take-profit.
func FaceToFace(primaryStopLoss, primaryTakeProfit float64, relation models.Direction) (takeProfit, stopLoss float64) {
	if relation == models.DirectionOpposite {
		return primaryStopLoss, primaryTakeProfit
	}
	return primaryTakeProfit, primaryStopLoss
}

// RiskTranslator turns the primary risk into a mirror bracket.
type RiskTranslator struct {
	Risk PrimaryRisk
}

// PlanInput describes one mirror action.
type PlanInput struct {
	Primary         models.Instrument
	PrimaryQuantity int
	Relation        models.Direction

	Mirror   models.Instrument
	Quantity int
	Side     models.OrderAction
	Entry    float64
}

// Plan computes the mirror's bracket. A leg configured at or below zero is left
// detached (zero ticks, zero price).
func (t RiskTranslator) Plan(in PlanInput) models.RiskPlan {
	sl, tp := t.Risk.Dollars(in.Primary, in.PrimaryQuantity)
	tpDollars, slDollars := FaceToFace(sl, tp, in.Relation)

	plan := models.RiskPlan{
		TakeProfitDollars: tpDollars,
		StopLossDollars:   slDollars,
	}

	tickValue := in.Mirror.TickValue()
	if tpDollars > 0 {
		plan.TakeProfitTicks = TicksFor(tpDollars, tickValue, in.Quantity)
	}
	if slDollars > 0 {
		plan.StopLossTicks = TicksFor(slDollars, tickValue, in.Quantity)
	}

	// long mirror: TP above entry, SL below; short mirror the reverse
	long := in.Side.IsBuy()
	if plan.TakeProfitTicks > 0 {
		plan.TakeProfitPrice = offsetPrice(in.Entry, plan.TakeProfitTicks, in.Mirror.TickSize, long)
	}
	if plan.StopLossTicks > 0 {
		plan.StopLossPrice = offsetPrice(in.Entry, plan.StopLossTicks, in.Mirror.TickSize, !long)
	}
	return plan
}

func offsetPrice(entry float64, ticks int, tickSize float64, up bool) float64 {
	dist := decimal.NewFromFloat(tickSize).Mul(decimal.NewFromInt(int64(ticks)))
	px := decimal.NewFromFloat(entry)
	if up {
		px = px.Add(dist)
	} else {
		px = px.Sub(dist)
	}
	f, _ := px.Float64()
	return f
}
