package profile

// ValueArea is the band of prices around the point of control that holds
// the target share of volume. Prices is sorted highest first.
type ValueArea struct {
	POC       float64   `json:"poc"`
	POCVolume float64   `json:"poc_volume"`
	Volume    float64   `json:"volume"` // volume inside the value area
	Total     float64   `json:"total"`  // volume of the whole distribution
	Prices    []float64 `json:"prices"`
}

// Empty reports whether no value area could be computed.
func (va ValueArea) Empty() bool { return len(va.Prices) == 0 }

// Contains reports whether price is one of the value-area prices.
func (va ValueArea) Contains(price float64) bool {
	for _, p := range va.Prices {
		if p == price {
			return true
		}
	}
	return false
}

// High returns the highest value-area price.
func (va ValueArea) High() float64 {
	if va.Empty() {
		return 0
	}
	return va.Prices[0]
}

// Low returns the lowest value-area price.
func (va ValueArea) Low() float64 {
	if va.Empty() {
		return 0
	}
	return va.Prices[len(va.Prices)-1]
}

// ComputeValueArea finds the point of control and expands around it until
// target (a fraction in (0, 1]) of the total volume is covered.
//
// Entries are ordered by price, highest first. The POC is the first maximum
// in that order. Expansion compares the next unvisited entry above the
// current band with the next one below and takes the larger; on a tie the
// higher price wins. When one side is exhausted the other is taken.
//
// An empty distribution, non-positive total volume or a target outside
// (0, 1] yields an empty ValueArea.
func ComputeValueArea(d Distribution, target float64) ValueArea {
	if len(d) == 0 || target <= 0 || target > 1 {
		return ValueArea{}
	}
	entries := d.Entries()

	var total float64
	for _, e := range entries {
		total += e.Volume
	}
	if total <= 0 {
		return ValueArea{}
	}

	poc := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].Volume > entries[poc].Volume {
			poc = i
		}
	}

	goal := total * target
	acc := entries[poc].Volume
	lo, hi := poc, poc // inclusive band in entries

	for acc < goal && (hi-1 >= 0 || lo+1 < len(entries)) {
		up, down := hi-1, lo+1 // up = higher price side
		switch {
		case up >= 0 && down < len(entries):
			if entries[up].Volume >= entries[down].Volume {
				hi = up
				acc += entries[up].Volume
			} else {
				lo = down
				acc += entries[down].Volume
			}
		case up >= 0:
			hi = up
			acc += entries[up].Volume
		default:
			lo = down
			acc += entries[down].Volume
		}
	}

	prices := make([]float64, 0, lo-hi+1)
	for i := hi; i <= lo; i++ {
		prices = append(prices, entries[i].Price)
	}

	return ValueArea{
		POC:       entries[poc].Price,
		POCVolume: entries[poc].Volume,
		Volume:    acc,
		Total:     total,
		Prices:    prices,
	}
}
