package mirror

import (
	"github.com/pkg/errors"

	"trade_mirror/internal/models"
)

// MirrorSide resolves the entry action of a mirror from the primary fill
// direction and the configured relation.
//
//	primary  Same       Opposite
//	Long     Buy        SellShort
//	Short    SellShort  Buy
func MirrorSide(primary models.MarketPosition, relation models.Direction) (models.OrderAction, error) {
	var long bool
	switch primary {
	case models.Long:
		long = true
	case models.Short:
		long = false
	default:
		return "", errors.Errorf("cannot mirror a %q fill", primary)
	}
	if relation == models.DirectionOpposite {
		long = !long
	}
	if long {
		return models.ActionBuy, nil
	}
	return models.ActionSellShort, nil
}

// closeAction is the market action that flattens an open position.
func closeAction(p models.MarketPosition) models.OrderAction {
	if p == models.Short {
		return models.ActionBuyToCover
	}
	return models.ActionSell
}
