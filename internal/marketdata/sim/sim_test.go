package sim

import (
	"testing"
	"time"

	"trading-profilev1/internal/marketdata/binance"
	"trading-profilev1/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(price, qty float64, ms int64) model.TradeEvent {
	return model.TradeEvent{Symbol: "BTCUSDT", Price: price, Quantity: qty, TradeTimeMs: ms}
}

func TestKlineBuilder_FoldsAndRolls(t *testing.T) {
	b, err := NewKlineBuilder("btcusdt", "1m")
	require.NoError(t, err)

	base := int64(1_700_000_040_000) // minute boundary
	out := b.Add(trade(100, 1, base+1000))
	require.Len(t, out, 1)
	assert.Equal(t, base, out[0].StartMs)
	assert.Equal(t, base+59_999, out[0].EndMs)
	assert.False(t, out[0].Closed)

	b.Add(trade(105, 2, base+2000))
	out = b.Add(trade(98, 0.5, base+3000))
	require.Len(t, out, 1)
	c := out[0]
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 105.0, c.High)
	assert.Equal(t, 98.0, c.Low)
	assert.Equal(t, 98.0, c.Close)
	assert.InDelta(t, 3.5, c.Volume, 1e-9)

	out = b.Add(trade(99, 1, base+60_000))
	require.Len(t, out, 2)
	assert.True(t, out[0].Closed)
	assert.Equal(t, base, out[0].StartMs)
	assert.False(t, out[1].Closed)
	assert.Equal(t, base+60_000, out[1].StartMs)
	assert.Equal(t, 99.0, out[1].Open)

	assert.Nil(t, b.Add(trade(97, 1, base+1000)), "trades from a finished interval are ignored")
}

func TestKlineBuilder_Flush(t *testing.T) {
	b, err := NewKlineBuilder("BTCUSDT", "1s")
	require.NoError(t, err)

	_, ok := b.Flush(10_000)
	assert.False(t, ok)

	b.Add(trade(100, 1, 10_500))
	_, ok = b.Flush(10_999)
	assert.False(t, ok, "interval still open")

	k, ok := b.Flush(11_000)
	require.True(t, ok)
	assert.True(t, k.Closed)
	assert.Equal(t, int64(10_000), k.StartMs)
}

func TestParseInterval(t *testing.T) {
	d, err := ParseInterval("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, d)

	_, err = NewKlineBuilder("BTCUSDT", "7m")
	assert.Error(t, err)
}

func TestWalker_Deterministic(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	a := NewWalker("btcusdt", 37000, 0.01, 7)
	b := NewWalker("btcusdt", 37000, 0.01, 7)
	for i := 0; i < 50; i++ {
		ta, tb := a.Next(now), b.Next(now)
		require.Equal(t, ta, tb)
		assert.Equal(t, "BTCUSDT", ta.Symbol)
		assert.Equal(t, int64(i+1), ta.TradeID)
		assert.Greater(t, ta.Quantity, 0.0)
		assert.InDelta(t, 37000, ta.Price, 37000*0.05)
	}
}

func TestFeed_MessagesDecode(t *testing.T) {
	f, err := NewFeed("btcusdt", "1s", 37000, 0.01, 1)
	require.NoError(t, err)

	start := time.UnixMilli(1_700_000_000_200)
	var candles, trades, closed int
	for i := 0; i < 30; i++ {
		msgs, err := f.Step(start.Add(time.Duration(i) * 100 * time.Millisecond))
		require.NoError(t, err)
		for _, raw := range msgs {
			ev, err := binance.Decode(raw)
			require.NoError(t, err, string(raw))
			switch ev.Kind {
			case binance.KindCandle:
				candles++
				if ev.Candle.Closed {
					closed++
				}
				assert.Equal(t, "1s", ev.Candle.Interval)
			case binance.KindTrade:
				trades++
				assert.Equal(t, "BTCUSDT", ev.Trade.Symbol)
			}
		}
	}
	assert.Equal(t, 30, trades)
	assert.Equal(t, 30+closed, candles)
	assert.Equal(t, 3, closed, "trades span four 1s klines")

	raw, ok, err := f.Close(start.Add(10 * time.Second))
	require.NoError(t, err)
	require.True(t, ok)
	ev, err := binance.Decode(raw)
	require.NoError(t, err)
	assert.True(t, ev.Candle.Closed)
}
