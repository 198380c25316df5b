package service

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// PlaceAlgo places an oco pair or a single conditional leg and returns the algoId.
// Leg prices of -1 execute at market once triggered.
func (c *Client) PlaceAlgo(ctx context.Context, req AlgoRequest) (string, error) {
	if req.TdMode == "" {
		req.TdMode = "cross"
	}
	switch req.OrdType {
	case "oco":
		if req.TpTriggerPx == "" || req.SlTriggerPx == "" {
			return "", errors.New("oco algo needs both tp and sl triggers")
		}
	case "conditional":
		if req.TpTriggerPx == "" && req.SlTriggerPx == "" {
			return "", errors.New("conditional algo needs a trigger")
		}
	default:
		return "", errors.Errorf("unsupported algo type %q", req.OrdType)
	}

	rows, err := call[itemResult](ctx, c, http.MethodPost, "/api/v5/trade/order-algo", nil, req, true)
	if r, ok := rejected(rows); ok {
		return "", errors.Errorf("algo %s rejected: sCode=%s sMsg=%s", req.InstID, r.SCode, r.SMsg)
	}
	if err != nil {
		return "", err
	}
	if len(rows) == 0 || rows[0].AlgoID == "" {
		return "", errors.Errorf("algo %s: empty algoId", req.InstID)
	}
	return rows[0].AlgoID, nil
}
