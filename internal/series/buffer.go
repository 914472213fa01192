// Package series provides the fixed-capacity bar buffer the engine runs its
// pivot detection over. Bars are ordered newest-first: index 0 is the most
// recent bar. The storage is a circular array, so prepending a bar and
// evicting the oldest are both O(1).
package series

import (
	"errors"
	"fmt"

	"trading-profilev1/internal/model"
)

// ErrOutOfRange is returned (or wrapped in a panic by At) for an index
// outside [0, Len()).
var ErrOutOfRange = errors.New("series: index out of range")

// Buffer is a newest-first bar buffer with a fixed capacity.
// Not goroutine-safe: owned by the engine goroutine.
type Buffer struct {
	buf  []model.Bar
	head int // physical index of the newest bar
	n    int
}

// New creates a buffer holding at most capacity bars. Minimum capacity is 1.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{buf: make([]model.Bar, capacity)}
}

// PushOrReplace stores bar as the newest element.
//
// If the newest bar has the same timestamp, it is replaced in place and the
// length is unchanged (an unfinished candle being updated). Otherwise the bar
// is prepended and, when the buffer is full, the oldest bar is dropped.
// Reports whether the replace path was taken.
func (b *Buffer) PushOrReplace(bar model.Bar) (replaced bool) {
	if b.n > 0 && b.buf[b.head].Timestamp == bar.Timestamp {
		b.buf[b.head] = bar
		return true
	}

	// Step head back one slot. When full, that slot holds the oldest bar,
	// which is overwritten.
	b.head = (b.head - 1 + len(b.buf)) % len(b.buf)
	b.buf[b.head] = bar
	if b.n < len(b.buf) {
		b.n++
	}
	return false
}

// At returns the bar at offset i from the newest (0 = newest).
// Panics if i is out of range; callers are expected to check Len first.
func (b *Buffer) At(i int) model.Bar {
	bar, err := b.Get(i)
	if err != nil {
		panic(err)
	}
	return bar
}

// Get returns the bar at offset i from the newest, or ErrOutOfRange.
func (b *Buffer) Get(i int) (model.Bar, error) {
	if i < 0 || i >= b.n {
		return model.Bar{}, fmt.Errorf("%w: index %d, len %d", ErrOutOfRange, i, b.n)
	}
	return b.buf[b.phys(i)], nil
}

// Newest returns the most recent bar, if any.
func (b *Buffer) Newest() (model.Bar, bool) {
	if b.n == 0 {
		return model.Bar{}, false
	}
	return b.buf[b.head], true
}

// PruneOlderThan removes every bar with Timestamp < cutoff and keeps the
// relative order of the rest. Returns the number of bars removed.
func (b *Buffer) PruneOlderThan(cutoff int64) int {
	kept := 0
	for i := 0; i < b.n; i++ {
		bar := b.buf[b.phys(i)]
		if bar.Timestamp < cutoff {
			continue
		}
		// kept <= i, so the write never overtakes the read.
		b.buf[b.phys(kept)] = bar
		kept++
	}
	removed := b.n - kept
	for i := kept; i < b.n; i++ {
		b.buf[b.phys(i)] = model.Bar{}
	}
	b.n = kept
	return removed
}

// IndexOfTimestamp returns the offset of the bar with the given timestamp,
// or -1 if no such bar is buffered.
func (b *Buffer) IndexOfTimestamp(ts int64) int {
	for i := 0; i < b.n; i++ {
		if b.buf[b.phys(i)].Timestamp == ts {
			return i
		}
	}
	return -1
}

// Bars returns a newest-first copy of the buffered bars.
func (b *Buffer) Bars() []model.Bar {
	out := make([]model.Bar, b.n)
	for i := range out {
		out[i] = b.buf[b.phys(i)]
	}
	return out
}

// Len returns the number of buffered bars.
func (b *Buffer) Len() int { return b.n }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.buf) }

// IsEmpty reports whether no bars are buffered.
func (b *Buffer) IsEmpty() bool { return b.n == 0 }

// IsFull reports whether Len() == Cap().
func (b *Buffer) IsFull() bool { return b.n == len(b.buf) }

// phys converts a logical offset (0 = newest) to a physical slot.
func (b *Buffer) phys(i int) int {
	return (b.head + i) % len(b.buf)
}
