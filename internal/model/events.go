package model

// CandleEvent is a decoded kline update from the exchange.
// Numeric fields arrive as decimal strings upstream and are parsed before
// the event is built.
type CandleEvent struct {
	Symbol   string  `json:"symbol"`
	Interval string  `json:"interval"`
	StartMs  int64   `json:"start_ms"`
	EndMs    int64   `json:"end_ms"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"` // base asset volume
	Closed   bool    `json:"closed"`
}

// Bar converts the event to the bar the engine stores.
func (c CandleEvent) Bar() Bar {
	return Bar{
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
		Timestamp: c.StartMs,
	}
}

// TradeEvent is a single decoded trade print.
type TradeEvent struct {
	Symbol      string  `json:"symbol"`
	TradeID     int64   `json:"trade_id"`
	Price       float64 `json:"price"`
	Quantity    float64 `json:"quantity"`
	TradeTimeMs int64   `json:"trade_time_ms"`
	BuyerMaker  bool    `json:"buyer_maker"`
}
