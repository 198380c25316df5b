package service

import (
	"context"
	"math"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"trade_mirror/internal/models"
)

// GetAccountUID checks the credentials and returns the account uid. Only
// net position mode is supported.
func (c *Client) GetAccountUID(ctx context.Context) (string, error) {
	rows, err := call[accountConfigRow](ctx, c, http.MethodGet, "/api/v5/account/config", nil, nil, true)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", errors.New("account config: empty")
	}
	if rows[0].PosMode != "" && rows[0].PosMode != "net_mode" {
		return "", errors.Errorf("account %s: position mode %s, want net_mode", rows[0].UID, rows[0].PosMode)
	}
	return rows[0].UID, nil
}

// GetPosition returns the signed net position of the account on instID.
func (c *Client) GetPosition(ctx context.Context, instID string) (models.Position, error) {
	q := url.Values{"instType": {"SWAP"}, "instId": {instID}}
	rows, err := call[positionRow](ctx, c, http.MethodGet, "/api/v5/account/positions", q, nil, true)
	if err != nil {
		return models.Position{}, err
	}

	var (
		qty int
		avg float64
	)
	for _, r := range rows {
		if r.InstID != instID {
			continue
		}
		pos, err := parseFloat("pos", r.Pos)
		if err != nil {
			return models.Position{}, err
		}
		if r.PosSide == "short" {
			pos = -math.Abs(pos)
		}
		qty += int(math.Round(pos))
		if avg, err = parseFloat("avgPx", r.AvgPx); err != nil {
			return models.Position{}, err
		}
	}
	return models.PositionFromQuantity(qty, avg), nil
}
