package mirror

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"trade_mirror/internal/models"
	"trade_mirror/internal/platform"
	"trade_mirror/internal/platform/paper"
)

func TestMirrorTarget_QuantityClampsMultiplier(t *testing.T) {
	cases := []struct {
		mult, fill, want int
	}{
		{3, 2, 6},
		{0, 2, 2},
		{-4, 3, 3},
		{2, -5, 10},
		{5, 0, 1},
	}
	for _, c := range cases {
		target := &MirrorTarget{Multiplier: c.mult}
		assert.Equal(t, c.want, target.Quantity(c.fill), "mult=%d fill=%d", c.mult, c.fill)
	}
}

func TestRegistry_ResolveDeactivatesUnresolvedTargets(t *testing.T) {
	p := paper.New(nil)
	p.AddInstrument(mnq)
	p.AddInstrument(mes)
	p.AddAccount("Primary")
	p.AddAccount("SimA")

	reg := NewRegistry("Primary", "MNQ", []TargetSpec{
		{Instrument: "MES", Account: "SimA"},
		{Instrument: "NQZ9", Account: "SimA"},
		{Instrument: "MES", Account: ""},
	}, zap.NewNop())

	assert.Empty(t, reg.Active(), "nothing is active before resolution")
	require.NoError(t, reg.Resolve(context.Background(), p))

	targets := reg.Targets()
	require.Len(t, targets, 3)
	assert.True(t, targets[0].Active())
	assert.Equal(t, models.DirectionSame, targets[0].Direction)
	assert.Equal(t, 1.25, targets[0].Instrument.TickValue())

	assert.False(t, targets[1].Active())
	assert.True(t, platform.IsNotFound(targets[1].LastError()))
	assert.False(t, targets[2].Active())

	require.Len(t, reg.Active(), 1)
	assert.Equal(t, 1, reg.Active()[0].Index)

	// resolution runs once; adding the account later does not revive the target
	p.AddInstrument(models.Instrument{Name: "NQZ9", TickSize: 0.25, PointValue: 20})
	require.NoError(t, reg.Resolve(context.Background(), p))
	assert.False(t, targets[1].Active())
}

func TestRegistry_PrimaryFailureIsConfigurationError(t *testing.T) {
	p := paper.New(nil)
	p.AddInstrument(mnq)

	reg := NewRegistry("Missing", "MNQ", nil, zap.NewNop())
	err := reg.Resolve(context.Background(), p)
	require.Error(t, err)

	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.True(t, platform.IsNotFound(err))
	assert.False(t, reg.Resolved())
}
