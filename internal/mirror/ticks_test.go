package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTicksFor_DegenerateInputsFailClosed(t *testing.T) {
	for _, d := range []float64{-50, 0, 0.01, 100, 1e6} {
		assert.Zero(t, TicksFor(d, 0, 3), "zero tick value, d=%v", d)
		assert.Zero(t, TicksFor(d, -1.25, 3), "negative tick value, d=%v", d)
		assert.Zero(t, TicksFor(d, 1.25, 0), "zero quantity, d=%v", d)
		assert.Zero(t, TicksFor(d, 1.25, -2), "negative quantity, d=%v", d)
	}
}

func TestTicksFor_AtLeastOneTick(t *testing.T) {
	assert.Equal(t, 1, TicksFor(0.01, 12.5, 10))
	assert.Equal(t, 1, TicksFor(0.5, 0.5, 3))
	assert.Equal(t, 1, TicksFor(1e-9, 5, 1))
}

func TestTicksFor_ExactMultiples(t *testing.T) {
	cases := []struct {
		tickValue float64
		qty       int
		n         int
	}{
		{0.5, 1, 40},
		{1.25, 6, 27},
		{12.5, 2, 8},
		{5, 3, 1},
		{0.01, 100, 250},
	}
	for _, c := range cases {
		d := c.tickValue * float64(c.qty) * float64(c.n)
		assert.Equal(t, c.n, TicksFor(d, c.tickValue, c.qty), "d=%v tv=%v q=%v", d, c.tickValue, c.qty)
	}
}

func TestTicksFor_RoundsHalfAwayFromZero(t *testing.T) {
	// 2.5 ticks
	assert.Equal(t, 3, TicksFor(12.5, 5, 1))
	// 2.49 ticks
	assert.Equal(t, 2, TicksFor(12.45, 5, 1))
	// 26.67 ticks
	assert.Equal(t, 27, TicksFor(200, 1.25, 6))
}
