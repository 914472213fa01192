package render

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"trading-profilev1/internal/model"
)

// Terminal redraws the whole screen for every snapshot.
// It is the only writer to its io.Writer.
type Terminal struct {
	mu   sync.Mutex
	w    io.Writer
	opts Options
}

var _ model.SnapshotSink = (*Terminal)(nil)

// NewTerminal creates a terminal sink writing to w.
func NewTerminal(w io.Writer, opts Options) *Terminal {
	return &Terminal{w: w, opts: opts}
}

// Write clears the screen and writes one rendered block.
func (t *Terminal) Write(s model.Snapshot) error {
	block := ClearScreen + Format(s, t.opts)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err := io.WriteString(t.w, block)
	return err
}

// Run renders snapshots until ctx is cancelled or snapCh is closed.
func (t *Terminal) Run(ctx context.Context, snapCh <-chan model.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-snapCh:
			if !ok {
				return
			}
			if err := t.Write(s); err != nil {
				slog.Warn("terminal write failed", "component", "render", "error", err)
			}
		}
	}
}
