package service

import (
	"math"
	"strconv"
	"time"

	"github.com/bytedance/sonic"

	"trade_mirror/internal/models"
)

type orderRow struct {
	InstID    string `json:"instId"`
	OrdID     string `json:"ordId"`
	Side      string `json:"side"`
	FillSz    string `json:"fillSz"`
	AccFillSz string `json:"accFillSz"`
	FillPx    string `json:"fillPx"`
	State     string `json:"state"`
	FillTime  string `json:"fillTime"`
}

type tickerRow struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
	Ts     string `json:"ts"`
}

type push[T any] struct {
	Arg  arg `json:"arg"`
	Data []T `json:"data"`
}

// parseOrders maps an orders-channel push to fill events. Updates without a
// fill (placement, cancel) are dropped.
func parseOrders(msg []byte, account string) []models.FillEvent {
	var p push[orderRow]
	if err := sonic.Unmarshal(msg, &p); err != nil || p.Arg.Channel != "orders" {
		return nil
	}
	out := make([]models.FillEvent, 0, len(p.Data))
	for _, r := range p.Data {
		sz, err := strconv.ParseFloat(r.FillSz, 64)
		if err != nil || sz <= 0 {
			continue
		}
		px, _ := strconv.ParseFloat(r.FillPx, 64)

		dir := models.Short
		if r.Side == "buy" {
			dir = models.Long
		}
		state := models.OrderPartFilled
		if r.State == "filled" {
			state = models.OrderFilled
			// a Filled event carries the whole order size, not the last chunk
			if acc, err := strconv.ParseFloat(r.AccFillSz, 64); err == nil && acc > sz {
				sz = acc
			}
		}
		out = append(out, models.FillEvent{
			Account:    account,
			Instrument: r.InstID,
			Direction:  dir,
			Quantity:   int(math.Round(sz)),
			State:      state,
			OrderID:    r.OrdID,
			Price:      px,
			Time:       unixMilli(r.FillTime),
		})
	}
	return out
}

func parseTickers(msg []byte) []models.Tick {
	var p push[tickerRow]
	if err := sonic.Unmarshal(msg, &p); err != nil || p.Arg.Channel != "tickers" {
		return nil
	}
	out := make([]models.Tick, 0, len(p.Data))
	for _, r := range p.Data {
		px, err := strconv.ParseFloat(r.Last, 64)
		if err != nil || px <= 0 {
			continue
		}
		out = append(out, models.Tick{Instrument: r.InstID, Price: px, Time: unixMilli(r.Ts)})
	}
	return out
}

func unixMilli(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
