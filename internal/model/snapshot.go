package model

// ProfileRow is one bucket of the grouped volume profile.
type ProfileRow struct {
	Price       float64 `json:"price"`
	Volume      float64 `json:"volume"`
	POC         bool    `json:"poc,omitempty"`
	InValueArea bool    `json:"in_value_area,omitempty"`
	Current     bool    `json:"current,omitempty"` // bucket nearest the last trade price
}

// Snapshot is the analytic state emitted after every trade.
// Rows are sorted by price, highest first.
type Snapshot struct {
	Symbol    string  `json:"symbol"`
	Seq       uint64  `json:"seq"`
	TradeTime int64   `json:"trade_ts"`
	Price     float64 `json:"price"`

	PivotHigh *Pivot `json:"pivot_high,omitempty"`
	PivotLow  *Pivot `json:"pivot_low,omitempty"`
	LastPivot *Pivot `json:"last_pivot,omitempty"`

	Levels       int     `json:"levels"` // distinct prices in the live profile
	TotalVolume  float64 `json:"total_volume"`
	HasValueArea bool    `json:"has_value_area"`
	FairValue    float64 `json:"fair_value"`
	ValueAreaLow float64 `json:"va_low"`
	ValueAreaHi  float64 `json:"va_high"`

	PositionSum float64 `json:"position_sum"`
	NetPosition int64   `json:"net_position"`
	RealizedPnL float64 `json:"realized_pnl"`
	OpenPnL     float64 `json:"open_pnl"` // mark-to-market of the ledger at Price

	Rows []ProfileRow `json:"rows"`
}

// MaxVolume returns the largest bucket volume, or 0 for an empty profile.
func (s *Snapshot) MaxVolume() float64 {
	var max float64
	for _, r := range s.Rows {
		if r.Volume > max {
			max = r.Volume
		}
	}
	return max
}
