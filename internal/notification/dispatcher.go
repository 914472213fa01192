package notification

import (
	"context"
	"log/slog"
	"time"
)

// Dispatcher decouples the engine goroutine from slow notifiers. Notify
// never blocks: when the queue is full the alert is dropped.
type Dispatcher struct {
	n       Notifier
	queue   chan Alert
	timeout time.Duration

	// OnResult is called with "sent", "failed" or "dropped".
	OnResult func(result string)
}

// NewDispatcher creates a dispatcher with a queue of size buf.
func NewDispatcher(n Notifier, buf int) *Dispatcher {
	if buf < 1 {
		buf = 1
	}
	return &Dispatcher{n: n, queue: make(chan Alert, buf), timeout: 10 * time.Second}
}

// Notify queues an alert. Returns false if it was dropped.
func (d *Dispatcher) Notify(a Alert) bool {
	select {
	case d.queue <- a:
		return true
	default:
		d.result("dropped")
		return false
	}
}

// Run delivers queued alerts until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case a := <-d.queue:
			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			err := d.n.Send(sendCtx, a)
			cancel()
			if err != nil {
				slog.Warn("alert delivery failed", "component", "notify", "title", a.Title, "error", err)
				d.result("failed")
				continue
			}
			d.result("sent")
		}
	}
}

func (d *Dispatcher) result(r string) {
	if d.OnResult != nil {
		d.OnResult(r)
	}
}
