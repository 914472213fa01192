// Package pivot detects swing highs and lows over a newest-first bar series.
//
// Detection is streaming, not batch: each call evaluates exactly one
// candidate, the bar at offset `right`, which is the newest bar that has a
// full confirmation window on both sides. Older bars had their turn on
// earlier calls, so the detector is re-run once per appended bar.
package pivot

import "trading-profilev1/internal/model"

// Source is the read-only view of a newest-first bar series.
// *series.Buffer satisfies it.
type Source interface {
	Len() int
	At(i int) model.Bar
}

// Detector confirms pivots with a symmetric left/right window.
// Stateless apart from its parameters.
type Detector struct {
	src   Source
	left  int // older bars that must not reach the candidate
	right int // newer bars that must not reach the candidate
}

// New creates a Detector over src. Negative window lengths are treated as 0.
func New(src Source, left, right int) *Detector {
	if left < 0 {
		left = 0
	}
	if right < 0 {
		right = 0
	}
	return &Detector{src: src, left: left, right: right}
}

// Window returns the left and right confirmation lengths.
func (d *Detector) Window() (left, right int) {
	return d.left, d.right
}

// High returns the candidate bar as a pivot high when its high is strictly
// greater than the high of every bar in the window. A tie is not a pivot.
func (d *Detector) High() (model.Pivot, bool) {
	return d.eval(model.PivotHigh, func(candidate, other model.Bar) bool {
		return other.High >= candidate.High
	})
}

// Low returns the candidate bar as a pivot low when its low is strictly
// less than the low of every bar in the window.
func (d *Detector) Low() (model.Pivot, bool) {
	return d.eval(model.PivotLow, func(candidate, other model.Bar) bool {
		return other.Low <= candidate.Low
	})
}

// eval checks the candidate at offset d.right. rejects reports whether a
// neighbour invalidates the candidate.
func (d *Detector) eval(kind model.PivotKind, rejects func(candidate, other model.Bar) bool) (model.Pivot, bool) {
	if d.src.Len() < d.left+d.right+1 {
		return model.Pivot{}, false
	}

	idx := d.right
	candidate := d.src.At(idx)

	// Newer side (smaller offsets).
	for i := 1; i <= d.right; i++ {
		if rejects(candidate, d.src.At(idx-i)) {
			return model.Pivot{}, false
		}
	}
	// Older side (larger offsets).
	for i := 1; i <= d.left; i++ {
		if rejects(candidate, d.src.At(idx+i)) {
			return model.Pivot{}, false
		}
	}

	return model.Pivot{Kind: kind, Bar: candidate}, true
}
