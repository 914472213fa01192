// Package profile accumulates traded volume at price and derives the point
// of control and value area from it.
//
// Prices are exact float64 map keys: there is no tick-size rounding at
// ingestion. Bucketing only happens when a grouped view is requested.
package profile

import (
	"math"
	"sort"
)

// Level is the accumulated state of one exact price.
type Level struct {
	Volume    float64 `json:"volume"`
	LastTrade int64   `json:"last_trade"` // epoch ms of the latest trade at this price
}

// Distribution maps a price (exact or bucket centre) to volume.
// Grouped distributions carry no trade time.
type Distribution map[float64]float64

// Entry is one price/volume pair of a Distribution.
type Entry struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// Profile is a volume-at-price map. Not goroutine-safe: owned by the engine
// goroutine.
type Profile struct {
	levels map[float64]Level
}

// New creates an empty profile.
func New() *Profile {
	return &Profile{levels: make(map[float64]Level, 256)}
}

// Record adds qty at the exact price and stamps the level with tradeTime.
func (p *Profile) Record(price, qty float64, tradeTime int64) {
	lv := p.levels[price]
	lv.Volume += qty
	lv.LastTrade = tradeTime
	p.levels[price] = lv
}

// PruneOlderThan drops every price whose last trade is older than cutoff.
// Returns the number of prices removed.
func (p *Profile) PruneOlderThan(cutoff int64) int {
	removed := 0
	for price, lv := range p.levels {
		if lv.LastTrade < cutoff {
			delete(p.levels, price)
			removed++
		}
	}
	return removed
}

// Level returns the state recorded at an exact price.
func (p *Profile) Level(price float64) (Level, bool) {
	lv, ok := p.levels[price]
	return lv, ok
}

// Len returns the number of distinct prices.
func (p *Profile) Len() int { return len(p.levels) }

// Total returns the summed volume over all prices.
func (p *Profile) Total() float64 {
	var total float64
	for _, lv := range p.levels {
		total += lv.Volume
	}
	return total
}

// Bounds returns the lowest and highest recorded price.
func (p *Profile) Bounds() (min, max float64, ok bool) {
	if len(p.levels) == 0 {
		return 0, 0, false
	}
	min, max = math.Inf(1), math.Inf(-1)
	for price := range p.levels {
		if price < min {
			min = price
		}
		if price > max {
			max = price
		}
	}
	return min, max, true
}

// Volumes returns the ungrouped price→volume view.
func (p *Profile) Volumes() Distribution {
	d := make(Distribution, len(p.levels))
	for price, lv := range p.levels {
		d[price] = lv.Volume
	}
	return d
}

// Group reduces the profile to at most buckets equal-width price ranges.
//
// When there are no more distinct prices than buckets the ungrouped volumes
// are returned. Otherwise [min, max] is split into buckets ranges; a price
// falls into floor((price-min)/width), with the maximum price clamped into
// the last range, and each range is keyed by its centre. Volume is summed
// without loss.
func (p *Profile) Group(buckets int) Distribution {
	if buckets < 1 {
		buckets = 1
	}
	if len(p.levels) <= buckets {
		return p.Volumes()
	}

	min, max, _ := p.Bounds()
	width := (max - min) / float64(buckets)

	sums := make([]float64, buckets)
	used := make([]bool, buckets)
	for price, lv := range p.levels {
		idx := BucketIndex(price, min, width, buckets)
		sums[idx] += lv.Volume
		used[idx] = true
	}

	d := make(Distribution, buckets)
	for idx, vol := range sums {
		if !used[idx] {
			continue
		}
		d[BucketCentre(idx, min, width)] = vol
	}
	return d
}

// BucketIndex returns the bucket a price falls into, clamped to
// [0, buckets-1].
func BucketIndex(price, min, width float64, buckets int) int {
	if width <= 0 {
		return 0
	}
	idx := int(math.Floor((price - min) / width))
	if idx < 0 {
		return 0
	}
	if idx >= buckets {
		return buckets - 1
	}
	return idx
}

// BucketCentre returns the key of bucket idx.
func BucketCentre(idx int, min, width float64) float64 {
	return min + (float64(idx)+0.5)*width
}

// Entries returns the distribution sorted by price, highest first.
func (d Distribution) Entries() []Entry {
	out := make([]Entry, 0, len(d))
	for price, vol := range d {
		out = append(out, Entry{Price: price, Volume: vol})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price > out[j].Price })
	return out
}

// Total returns the summed volume.
func (d Distribution) Total() float64 {
	var total float64
	for _, vol := range d {
		total += vol
	}
	return total
}
