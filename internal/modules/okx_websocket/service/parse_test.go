package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_mirror/internal/models"
)

func TestParseOrders(t *testing.T) {
	msg := []byte(`{"arg":{"channel":"orders","instType":"SWAP","uid":"77"},"data":[
		{"instId":"BTC-USDT-SWAP","ordId":"1","side":"buy","fillSz":"2","fillPx":"60000.5","state":"filled","fillTime":"1767225600000"},
		{"instId":"BTC-USDT-SWAP","ordId":"2","side":"sell","fillSz":"1","fillPx":"60010","state":"partially_filled","fillTime":"1767225601000"},
		{"instId":"BTC-USDT-SWAP","ordId":"3","side":"sell","fillSz":"0","state":"canceled"},
		{"instId":"BTC-USDT-SWAP","ordId":"4","side":"buy","fillSz":"","state":"live"}
	]}`)

	fills := parseOrders(msg, "main")
	require.Len(t, fills, 2)

	assert.Equal(t, models.FillEvent{
		Account:    "main",
		Instrument: "BTC-USDT-SWAP",
		Direction:  models.Long,
		Quantity:   2,
		State:      models.OrderFilled,
		OrderID:    "1",
		Price:      60000.5,
		Time:       time.UnixMilli(1767225600000),
	}, fills[0])
	assert.Equal(t, models.Short, fills[1].Direction)
	assert.Equal(t, models.OrderPartFilled, fills[1].State)
}

func TestParseOrders_FilledCarriesCumulativeSize(t *testing.T) {
	partial := []byte(`{"arg":{"channel":"orders","instType":"SWAP"},"data":[
		{"instId":"BTC-USDT-SWAP","ordId":"7","side":"sell","fillSz":"6","accFillSz":"6","fillPx":"60000","state":"partially_filled","fillTime":"1767225600000"}]}`)
	final := []byte(`{"arg":{"channel":"orders","instType":"SWAP"},"data":[
		{"instId":"BTC-USDT-SWAP","ordId":"7","side":"sell","fillSz":"4","accFillSz":"10","fillPx":"59999.5","state":"filled","fillTime":"1767225600100"}]}`)

	first := parseOrders(partial, "main")
	require.Len(t, first, 1)
	assert.Equal(t, models.OrderPartFilled, first[0].State)
	assert.Equal(t, 6, first[0].Quantity)

	last := parseOrders(final, "main")
	require.Len(t, last, 1)
	assert.Equal(t, models.OrderFilled, last[0].State)
	assert.Equal(t, 10, last[0].Quantity)
	assert.Equal(t, models.Short, last[0].Direction)
}

func TestParseOrders_IgnoresOtherFrames(t *testing.T) {
	assert.Empty(t, parseOrders([]byte(`{"event":"subscribe","arg":{"channel":"orders"}}`), "main"))
	assert.Empty(t, parseOrders([]byte(`{"arg":{"channel":"tickers"},"data":[{"fillSz":"1"}]}`), "main"))
	assert.Empty(t, parseOrders([]byte(`pong`), "main"))
}

func TestParseTickers(t *testing.T) {
	msg := []byte(`{"arg":{"channel":"tickers","instId":"ETH-USDT-SWAP"},"data":[{"instId":"ETH-USDT-SWAP","last":"2501.25","ts":"1767225600000"},{"instId":"ETH-USDT-SWAP","last":"0"}]}`)

	ticks := parseTickers(msg)
	require.Len(t, ticks, 1)
	assert.Equal(t, "ETH-USDT-SWAP", ticks[0].Instrument)
	assert.InDelta(t, 2501.25, ticks[0].Price, 1e-9)
	assert.Equal(t, time.UnixMilli(1767225600000), ticks[0].Time)
}
