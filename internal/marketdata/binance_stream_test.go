package marketdata

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dev0031/QuantTrader-sub000/internal/event"
)

func TestBinanceTicker_ToTick(t *testing.T) {
	raw := `{"stream":"btcusdt@ticker","data":{"s":"btcusdt","c":"50123.45","v":"1234.5","b":"50123.40","a":"50123.50","E":1700000000000}}`

	var env streamEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))

	tick, err := env.Data.toTick()
	require.NoError(t, err)

	assert.Equal(t, event.Tick{
		Symbol:       "BTCUSDT",
		Price:        50123.45,
		Volume:       1234.5,
		Bid:          50123.40,
		Ask:          50123.50,
		TsUnixMillis: 1700000000000,
	}, tick)
}

func TestBinanceTicker_InvalidPrice(t *testing.T) {
	ticker := binanceTicker{Symbol: "BTCUSDT", LastPrice: "not-a-number", Volume: "1", BidPrice: "1", AskPrice: "1"}
	_, err := ticker.toTick()
	assert.Error(t, err)
}

func TestBinanceTicker_MissingEventTimeDefaultsToNow(t *testing.T) {
	ticker := binanceTicker{Symbol: "ethusdt", LastPrice: "3000", Volume: "1", BidPrice: "2999", AskPrice: "3001"}
	tick, err := ticker.toTick()
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", tick.Symbol)
	assert.NotZero(t, tick.TsUnixMillis)
}
