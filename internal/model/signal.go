package model

// Action is the side of a position increment produced by a signal policy.
type Action string

const (
	ActionNone Action = ""
	ActionBuy  Action = "BUY"  // long increment, recorded as +price
	ActionSell Action = "SELL" // short increment, recorded as -price
)

// Signal records one position increment applied by the engine.
type Signal struct {
	Action  Action  `json:"action"`
	Price   float64 `json:"price"`
	BarTime int64   `json:"bar_ts"` // start of the bar whose append triggered the signal
	Net     int64   `json:"net"`    // net position after the increment
	Policy  string  `json:"policy"`
}

// Signed returns the price with the side encoded in its sign.
func (s Signal) Signed() float64 {
	if s.Action == ActionSell {
		return -s.Price
	}
	return s.Price
}
