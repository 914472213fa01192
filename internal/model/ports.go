package model

import "context"

// ── Sink Port Interfaces ──
// Snapshot consumers (terminal, Redis, WebSocket gateway) each run in their
// own goroutine and read from a bounded channel fed by the fan-out bus.

// SnapshotSink consumes emitted snapshots.
type SnapshotSink interface {
	// Run reads snapshots until ctx is cancelled or the channel is closed.
	Run(ctx context.Context, snapCh <-chan Snapshot)
}

// EventHandler accepts decoded market events from a transport.
// Implementations must not block the caller.
type EventHandler interface {
	SubmitCandle(ev CandleEvent)
	SubmitTrade(ev TradeEvent)
}
