package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// PendingAlgos lists working oco and conditional orders, on every instrument
// when instID is empty.
func (c *Client) PendingAlgos(ctx context.Context, instID string) ([]PendingAlgo, error) {
	var out []PendingAlgo
	for _, typ := range []string{"oco", "conditional"} {
		q := url.Values{"ordType": {typ}}
		if instID != "" {
			q.Set("instId", instID)
		}
		rows, err := call[PendingAlgo](ctx, c, http.MethodGet, "/api/v5/trade/orders-algo-pending", q, nil, true)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// CancelAlgos cancels the given algo orders of instID.
func (c *Client) CancelAlgos(ctx context.Context, instID string, algoIDs ...string) error {
	if len(algoIDs) == 0 {
		return nil
	}
	body := make([]map[string]string, 0, len(algoIDs))
	for _, id := range algoIDs {
		body = append(body, map[string]string{"instId": instID, "algoId": id})
	}
	rows, err := call[itemResult](ctx, c, http.MethodPost, "/api/v5/trade/cancel-algos", nil, body, true)
	if r, ok := rejected(rows); ok {
		return errors.Errorf("cancel algo %s rejected: sCode=%s sMsg=%s", r.AlgoID, r.SCode, r.SMsg)
	}
	return err
}
