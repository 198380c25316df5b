package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_mirror/internal/models"
)

func TestMirrorSide_TruthTable(t *testing.T) {
	cases := []struct {
		primary  models.MarketPosition
		relation models.Direction
		want     models.OrderAction
	}{
		{models.Long, models.DirectionSame, models.ActionBuy},
		{models.Long, models.DirectionOpposite, models.ActionSellShort},
		{models.Short, models.DirectionSame, models.ActionSellShort},
		{models.Short, models.DirectionOpposite, models.ActionBuy},
	}
	for _, c := range cases {
		got, err := MirrorSide(c.primary, c.relation)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, "%s/%s", c.primary, c.relation)
	}
}

func TestMirrorSide_RejectsFlat(t *testing.T) {
	_, err := MirrorSide(models.Flat, models.DirectionSame)
	assert.Error(t, err)

	_, err = MirrorSide("", models.DirectionOpposite)
	assert.Error(t, err)
}

func TestCloseAction(t *testing.T) {
	assert.Equal(t, models.ActionSell, closeAction(models.Long))
	assert.Equal(t, models.ActionBuyToCover, closeAction(models.Short))
}
