package mirror

import "math"

// TicksFor converts a currency amount into a tick distance for quantity
// contracts of an instrument whose one-tick value is tickValue.
//
// It fails closed: 0 is returned when tickValue or quantity is not positive.
// Otherwise the result is rounded half away from zero and never below 1, so a
// risk leg always keeps at least one tick of distance.
func TicksFor(dollars, tickValue float64, quantity int) int {
	if tickValue <= 0 || quantity <= 0 {
		return 0
	}
	ticks := int(math.Round(dollars / (tickValue * float64(quantity))))
	if ticks < 1 {
		return 1
	}
	return ticks
}
