// Package binance connects to the Binance market stream and turns kline and
// trade messages into model events.
//
// Wire format (single raw stream or SUBSCRIBE-multiplexed connection):
//
//	{"e":"kline","E":1700000000000,"s":"BTCUSDT","k":{"t":...,"T":...,"o":"37000.10",...,"x":false}}
//	{"e":"trade","E":1700000000000,"s":"BTCUSDT","t":12345,"p":"37000.12","q":"0.004","T":...,"m":true}
//
// Combined-stream envelopes ({"stream":"...","data":{...}}) are unwrapped.
package binance

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trading-profilev1/internal/model"
)

var (
	// ErrMalformed marks a payload that cannot become an event. The
	// message is dropped.
	ErrMalformed = errors.New("binance: malformed event")

	// ErrIgnored marks a well-formed message that carries no market event
	// (subscription acks, other event types).
	ErrIgnored = errors.New("binance: ignored message")
)

// Kind identifies the decoded event.
type Kind int

const (
	KindCandle Kind = iota + 1
	KindTrade
)

func (k Kind) String() string {
	switch k {
	case KindCandle:
		return "candle"
	case KindTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// Event is one decoded market event. Exactly one of Candle and Trade is
// set, according to Kind.
type Event struct {
	Kind   Kind
	Candle model.CandleEvent
	Trade  model.TradeEvent
}

// Symbol returns the instrument the event belongs to.
func (e Event) Symbol() string {
	if e.Kind == KindCandle {
		return e.Candle.Symbol
	}
	return e.Trade.Symbol
}

// encoding/json falls back to case-insensitive key matching, so every key
// that differs from a sibling only by case ("t"/"T", "e"/"E", ...) is
// declared to keep the exact match.

type envelope struct {
	Event     string          `json:"e"`
	EventTime int64           `json:"E"`
	Symbol    string          `json:"s"`
	Stream    string          `json:"stream"`
	Data      json.RawMessage `json:"data"`
	Result    json.RawMessage `json:"result"`
	ID        *int64          `json:"id"`
}

type klineMsg struct {
	Event     string    `json:"e"`
	EventTime int64     `json:"E"`
	Symbol    string    `json:"s"`
	K         *klineRaw `json:"k"`
}

type klineRaw struct {
	Start      int64  `json:"t"`
	End        int64  `json:"T"`
	Symbol     string `json:"s"`
	Interval   string `json:"i"`
	FirstTrade int64  `json:"f"`
	LastTrade  int64  `json:"L"`
	Open       string `json:"o"`
	Close      string `json:"c"`
	High       string `json:"h"`
	Low        string `json:"l"`
	Volume     string `json:"v"`
	Trades     int64  `json:"n"`
	Closed     bool   `json:"x"`
	Quote      string `json:"q"`
	TakerBase  string `json:"V"`
	TakerQuote string `json:"Q"`
	Ignore     string `json:"B"`
}

type tradeMsg struct {
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

// Decode parses one WebSocket text message.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(env.Data) > 0 && env.Event == "" {
		return Decode(env.Data)
	}

	switch env.Event {
	case "kline":
		return decodeKline(raw)
	case "trade":
		return decodeTrade(raw)
	case "":
		if env.ID != nil {
			return Event{}, fmt.Errorf("%w: response to request %d", ErrIgnored, *env.ID)
		}
		return Event{}, fmt.Errorf("%w: no event type", ErrMalformed)
	default:
		return Event{}, fmt.Errorf("%w: event %q", ErrIgnored, env.Event)
	}
}

func decodeKline(raw []byte) (Event, error) {
	var msg klineMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Event{}, fmt.Errorf("%w: kline: %v", ErrMalformed, err)
	}
	if msg.K == nil {
		return Event{}, fmt.Errorf("%w: kline without k payload", ErrMalformed)
	}
	k := msg.K

	var p parser
	ev := model.CandleEvent{
		Symbol:   firstNonEmpty(k.Symbol, msg.Symbol),
		Interval: k.Interval,
		StartMs:  k.Start,
		EndMs:    k.End,
		Open:     p.float("o", k.Open),
		High:     p.float("h", k.High),
		Low:      p.float("l", k.Low),
		Close:    p.float("c", k.Close),
		Volume:   p.float("v", k.Volume),
		Closed:   k.Closed,
	}
	if p.err != nil {
		return Event{}, fmt.Errorf("%w: kline: %v", ErrMalformed, p.err)
	}
	return Event{Kind: KindCandle, Candle: ev}, nil
}

func decodeTrade(raw []byte) (Event, error) {
	var msg tradeMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Event{}, fmt.Errorf("%w: trade: %v", ErrMalformed, err)
	}

	var p parser
	ev := model.TradeEvent{
		Symbol:      msg.Symbol,
		TradeID:     msg.TradeID,
		Price:       p.float("p", msg.Price),
		Quantity:    p.float("q", msg.Quantity),
		TradeTimeMs: msg.TradeTime,
		BuyerMaker:  msg.BuyerMaker,
	}
	if p.err != nil {
		return Event{}, fmt.Errorf("%w: trade: %v", ErrMalformed, p.err)
	}
	return Event{Kind: KindTrade, Trade: ev}, nil
}

// parser converts decimal strings, keeping the first failure.
type parser struct{ err error }

func (p *parser) float(field, s string) float64 {
	if p.err != nil {
		return 0
	}
	if s == "" {
		p.err = fmt.Errorf("field %q missing", field)
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.err = fmt.Errorf("field %q: %w", field, err)
		return 0
	}
	return d.InexactFloat64()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
