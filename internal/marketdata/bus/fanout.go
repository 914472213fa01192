// Package bus moves market events into the engine goroutine and snapshots
// out of it.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"trading-profilev1/internal/model"
)

// FanOut broadcasts snapshots from a single input channel to N output
// channels. If an output channel is full the snapshot is dropped for that
// consumer: sinks only care about the latest state, and a slow sink must
// not hold up the others.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Snapshot
	names   []string
	bufSize int

	// OnDrop is called when a snapshot is dropped for a subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	if outputBufferSize < 1 {
		outputBufferSize = 1
	}
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new named output channel.
func (f *FanOut) Subscribe(name string) <-chan model.Snapshot {
	ch := make(chan model.Snapshot, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, name)
	f.mu.Unlock()
	return ch
}

// Run reads from input and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed; closes every output on
// return.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Snapshot) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- snap:
				default:
					if f.OnDrop != nil {
						f.OnDrop(f.names[i])
					} else {
						slog.Debug("subscriber full, dropping snapshot",
							"component", "bus", "subscriber", f.names[i], "seq", snap.Seq)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the fill level of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats returns the fill level of each subscriber channel.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Name: f.names[i], Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
