// Package position records the position increments produced by the signal
// policy.
//
// Each increment is a signed entry price: a long adds +price, a short adds
// -price. The ledger keeps the raw history, the running sum of entries and
// the net count (longs minus shorts).
package position

import "trading-profilev1/internal/model"

// Ledger is owned by the engine goroutine and is not goroutine-safe.
type Ledger struct {
	history  []float64
	sum      float64
	net      int64
	realized float64
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{history: make([]float64, 0, 64)}
}

// Long records a long increment at price.
func (l *Ledger) Long(price float64) {
	l.history = append(l.history, price)
	l.sum += price
	l.net++
}

// Short records a short increment at price.
func (l *Ledger) Short(price float64) {
	l.history = append(l.history, -price)
	l.sum -= price
	l.net--
}

// Apply records the increment for action. ActionNone is a no-op and
// returns false.
func (l *Ledger) Apply(action model.Action, price float64) bool {
	switch action {
	case model.ActionBuy:
		l.Long(price)
	case model.ActionSell:
		l.Short(price)
	default:
		return false
	}
	return true
}

// Sum returns the sum of all signed entries.
func (l *Ledger) Sum() float64 { return l.sum }

// Net returns longs minus shorts.
func (l *Ledger) Net() int64 { return l.net }

// Len returns the number of recorded increments.
func (l *Ledger) Len() int { return len(l.history) }

// History returns a copy of the signed entries, oldest first.
func (l *Ledger) History() []float64 {
	out := make([]float64, len(l.history))
	copy(out, l.history)
	return out
}

// RealizedPnL is always 0: positions are never closed out.
func (l *Ledger) RealizedPnL() float64 { return l.realized }

// MarkToMarket returns the open value of the book at price: every long is
// worth price-entry and every short entry-price.
func (l *Ledger) MarkToMarket(price float64) float64 {
	return float64(l.net)*price - l.sum
}
