package service

import (
	"context"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"trade_mirror/internal/models"
	"trade_mirror/internal/platform"
)

// GetInstrumentMeta reads a live SWAP instrument. PointValue is ctVal*ctMult:
// the quote value of a 1.0 price move for one contract.
func (c *Client) GetInstrumentMeta(ctx context.Context, instID string) (models.Instrument, error) {
	q := url.Values{"instType": {"SWAP"}, "instId": {instID}}
	rows, err := call[instrumentRow](ctx, c, http.MethodGet, "/api/v5/public/instruments", q, nil, false)
	if err != nil {
		return models.Instrument{}, err
	}
	if len(rows) == 0 {
		return models.Instrument{}, errors.Wrapf(platform.ErrNotFound, "instrument %s", instID)
	}

	inst := rows[0]
	if inst.State != "" && inst.State != "live" {
		return models.Instrument{}, errors.Errorf("instrument %s not live: state=%s", instID, inst.State)
	}

	tickSz, err := parseFloat("tickSz", inst.TickSz)
	if err != nil {
		return models.Instrument{}, err
	}
	ctVal, err := parseFloat("ctVal", inst.CtVal)
	if err != nil {
		return models.Instrument{}, err
	}
	if tickSz <= 0 || ctVal <= 0 {
		return models.Instrument{}, errors.Errorf("instrument %s: tickSz=%q ctVal=%q", instID, inst.TickSz, inst.CtVal)
	}
	ctMult, _ := parseFloat("ctMult", inst.CtMult)
	if ctMult <= 0 {
		ctMult = 1
	}

	return models.Instrument{
		Name:        inst.InstID,
		DisplayName: inst.InstID,
		TickSize:    tickSz,
		PointValue:  ctVal * ctMult,
	}, nil
}

func (c *Client) GetLastPrice(ctx context.Context, instID string) (float64, error) {
	rows, err := call[tickerRow](ctx, c, http.MethodGet, "/api/v5/market/ticker", url.Values{"instId": {instID}}, nil, false)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, errors.Errorf("ticker %s: empty", instID)
	}
	px, err := parseFloat("last", rows[0].Last)
	if err != nil {
		return 0, err
	}
	if px <= 0 {
		return 0, errors.Errorf("ticker %s: last=%q", instID, rows[0].Last)
	}
	return px, nil
}
