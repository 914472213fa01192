// Package sim generates a Binance-compatible trade and kline stream for
// running the engine without the exchange.
package sim

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"trading-profilev1/internal/model"

	"github.com/shopspring/decimal"
)

var intervals = map[string]time.Duration{
	"1s":  time.Second,
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
}

// ParseInterval maps a Binance kline interval label to its duration.
func ParseInterval(label string) (time.Duration, error) {
	d, ok := intervals[label]
	if !ok {
		return 0, fmt.Errorf("unsupported kline interval %q", label)
	}
	return d, nil
}

// Walker produces trades along a random walk snapped to a tick size.
type Walker struct {
	symbol string
	price  float64
	tick   float64
	rng    *rand.Rand
	nextID int64
}

// NewWalker starts a walk at start. A fixed seed gives a repeatable stream.
func NewWalker(symbol string, start, tick float64, seed int64) *Walker {
	if tick <= 0 {
		tick = 0.01
	}
	return &Walker{
		symbol: strings.ToUpper(symbol),
		price:  start,
		tick:   tick,
		rng:    rand.New(rand.NewSource(seed)),
		nextID: 1,
	}
}

// Next moves the price by up to ±0.05% and returns the trade at now.
func (w *Walker) Next(now time.Time) model.TradeEvent {
	pct := (w.rng.Float64()*0.1 - 0.05) / 100
	p := math.Round(w.price*(1+pct)/w.tick) * w.tick
	if p < w.tick {
		p = w.tick
	}
	w.price = p

	qty := math.Round((0.001+w.rng.Float64())*1000) / 1000
	ev := model.TradeEvent{
		Symbol:      w.symbol,
		TradeID:     w.nextID,
		Price:       p,
		Quantity:    qty,
		TradeTimeMs: now.UnixMilli(),
		BuyerMaker:  w.rng.Intn(2) == 0,
	}
	w.nextID++
	return ev
}

// KlineBuilder folds trades into interval klines.
type KlineBuilder struct {
	symbol   string
	label    string
	interval int64 // ms
	cur      *model.CandleEvent
}

// NewKlineBuilder creates a builder for the interval label ("1m").
func NewKlineBuilder(symbol, label string) (*KlineBuilder, error) {
	d, err := ParseInterval(label)
	if err != nil {
		return nil, err
	}
	return &KlineBuilder{
		symbol:   strings.ToUpper(symbol),
		label:    label,
		interval: d.Milliseconds(),
	}, nil
}

// Add folds a trade into the current kline. It returns the updates to
// publish in order: the previous kline marked closed when the trade starts
// a new interval, then the forming kline. Trades older than the current
// interval are ignored.
func (b *KlineBuilder) Add(tr model.TradeEvent) []model.CandleEvent {
	start := tr.TradeTimeMs - tr.TradeTimeMs%b.interval

	var out []model.CandleEvent
	if b.cur != nil {
		switch {
		case start < b.cur.StartMs:
			return nil
		case start > b.cur.StartMs:
			closed := *b.cur
			closed.Closed = true
			out = append(out, closed)
			b.cur = nil
		}
	}

	if b.cur == nil {
		b.cur = &model.CandleEvent{
			Symbol:   b.symbol,
			Interval: b.label,
			StartMs:  start,
			EndMs:    start + b.interval - 1,
			Open:     tr.Price,
			High:     tr.Price,
			Low:      tr.Price,
			Close:    tr.Price,
			Volume:   tr.Quantity,
		}
		return append(out, *b.cur)
	}

	c := b.cur
	c.High = math.Max(c.High, tr.Price)
	c.Low = math.Min(c.Low, tr.Price)
	c.Close = tr.Price
	c.Volume += tr.Quantity
	return append(out, *c)
}

// Flush closes the current kline when its interval ended before nowMs.
func (b *KlineBuilder) Flush(nowMs int64) (model.CandleEvent, bool) {
	if b.cur == nil || nowMs <= b.cur.EndMs {
		return model.CandleEvent{}, false
	}
	closed := *b.cur
	closed.Closed = true
	b.cur = nil
	return closed, true
}

type tradeWire struct {
	Event      string `json:"e"`
	EventTime  int64  `json:"E"`
	Symbol     string `json:"s"`
	TradeID    int64  `json:"t"`
	Price      string `json:"p"`
	Quantity   string `json:"q"`
	TradeTime  int64  `json:"T"`
	BuyerMaker bool   `json:"m"`
	Ignore     bool   `json:"M"`
}

type klineWire struct {
	Event     string      `json:"e"`
	EventTime int64       `json:"E"`
	Symbol    string      `json:"s"`
	K         klineFields `json:"k"`
}

type klineFields struct {
	Start    int64  `json:"t"`
	End      int64  `json:"T"`
	Symbol   string `json:"s"`
	Interval string `json:"i"`
	Open     string `json:"o"`
	Close    string `json:"c"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Volume   string `json:"v"`
	Closed   bool   `json:"x"`
}

func dec(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// EncodeTrade renders a trade as a Binance "trade" stream message.
func EncodeTrade(ev model.TradeEvent, eventTime int64) ([]byte, error) {
	return json.Marshal(tradeWire{
		Event:      "trade",
		EventTime:  eventTime,
		Symbol:     ev.Symbol,
		TradeID:    ev.TradeID,
		Price:      dec(ev.Price),
		Quantity:   dec(ev.Quantity),
		TradeTime:  ev.TradeTimeMs,
		BuyerMaker: ev.BuyerMaker,
		Ignore:     true,
	})
}

// EncodeKline renders a kline as a Binance "kline" stream message.
func EncodeKline(ev model.CandleEvent, eventTime int64) ([]byte, error) {
	return json.Marshal(klineWire{
		Event:     "kline",
		EventTime: eventTime,
		Symbol:    ev.Symbol,
		K: klineFields{
			Start:    ev.StartMs,
			End:      ev.EndMs,
			Symbol:   ev.Symbol,
			Interval: ev.Interval,
			Open:     dec(ev.Open),
			Close:    dec(ev.Close),
			High:     dec(ev.High),
			Low:      dec(ev.Low),
			Volume:   dec(ev.Volume),
			Closed:   ev.Closed,
		},
	})
}

// Feed pairs a Walker with a KlineBuilder and yields wire messages.
type Feed struct {
	walker  *Walker
	builder *KlineBuilder
}

// NewFeed creates a feed for symbol.
func NewFeed(symbol, interval string, start, tick float64, seed int64) (*Feed, error) {
	b, err := NewKlineBuilder(symbol, interval)
	if err != nil {
		return nil, err
	}
	return &Feed{walker: NewWalker(symbol, start, tick, seed), builder: b}, nil
}

// Step generates one trade at now and returns the messages to send:
// kline updates first, then the trade.
func (f *Feed) Step(now time.Time) ([][]byte, error) {
	tr := f.walker.Next(now)
	ms := now.UnixMilli()

	var msgs [][]byte
	for _, k := range f.builder.Add(tr) {
		raw, err := EncodeKline(k, ms)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, raw)
	}
	raw, err := EncodeTrade(tr, ms)
	if err != nil {
		return nil, err
	}
	return append(msgs, raw), nil
}

// Close returns the closing kline message when the current interval has
// ended by now.
func (f *Feed) Close(now time.Time) ([]byte, bool, error) {
	k, ok := f.builder.Flush(now.UnixMilli())
	if !ok {
		return nil, false, nil
	}
	raw, err := EncodeKline(k, now.UnixMilli())
	return raw, err == nil, err
}
