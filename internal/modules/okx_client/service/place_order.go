package service

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
)

// PlaceOrder sends one order and returns its OKX order id.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if req.TdMode == "" {
		req.TdMode = "cross"
	}
	rows, err := call[itemResult](ctx, c, http.MethodPost, "/api/v5/trade/order", nil, req, true)
	if r, ok := rejected(rows); ok {
		return "", errors.Errorf("order %s rejected: sCode=%s sMsg=%s", req.InstID, r.SCode, r.SMsg)
	}
	if err != nil {
		return "", err
	}
	if len(rows) == 0 || rows[0].OrdID == "" {
		return "", errors.Errorf("order %s: empty ordId", req.InstID)
	}
	return rows[0].OrdID, nil
}

func rejected(rows []itemResult) (itemResult, bool) {
	for _, r := range rows {
		if r.SCode != "" && r.SCode != "0" {
			return r, true
		}
	}
	return itemResult{}, false
}
