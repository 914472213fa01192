package model

// Bar is one OHLCV candle for the tracked instrument.
// Timestamp is the bar start time in epoch milliseconds.
//
// Bars are values: an unfinished candle is updated by replacing the whole
// bar, never by mutating fields in place.
type Bar struct {
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Timestamp int64   `json:"ts"` // bar start, epoch ms
}

// PivotKind distinguishes swing highs from swing lows.
type PivotKind string

const (
	PivotHigh PivotKind = "HIGH"
	PivotLow  PivotKind = "LOW"
)

// Pivot is a bar confirmed as a local extremum.
type Pivot struct {
	Kind PivotKind `json:"kind"`
	Bar  Bar       `json:"bar"`
}

// Price returns the extreme that made this bar a pivot: the high for a
// pivot high, the low for a pivot low.
func (p Pivot) Price() float64 {
	if p.Kind == PivotHigh {
		return p.Bar.High
	}
	return p.Bar.Low
}

// Timestamp returns the pivot bar's start time in epoch ms.
func (p Pivot) Timestamp() int64 {
	return p.Bar.Timestamp
}
