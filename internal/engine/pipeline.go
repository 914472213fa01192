package engine

import (
	"context"
	"time"

	"trading-profilev1/internal/marketdata/bus"
	"trading-profilev1/internal/model"
)

// Pipeline funnels candle and trade events into a single goroutine that
// owns the Engine. Each event kind has its own unbounded queue, so
// submission never blocks the transport and arrival order is kept per kind.
//
// Snapshots are sent to out without blocking; when out is full the
// snapshot is dropped and the next trade produces a fresh one.
type Pipeline struct {
	engine  *Engine
	candles *bus.Queue[model.CandleEvent]
	trades  *bus.Queue[model.TradeEvent]
	out     chan<- model.Snapshot

	// Optional hooks, called on the pipeline goroutine.
	OnCandle       func(ev model.CandleEvent, res CandleResult)
	OnTrade        func(ev model.TradeEvent, took time.Duration)
	OnSnapshotDrop func()
	OnQueueDepth   func(candles, trades int)
}

var _ model.EventHandler = (*Pipeline)(nil)

// NewPipeline creates a pipeline driving e. Snapshots go to out.
func NewPipeline(e *Engine, out chan<- model.Snapshot) *Pipeline {
	return &Pipeline{
		engine:  e,
		candles: bus.NewQueue[model.CandleEvent](),
		trades:  bus.NewQueue[model.TradeEvent](),
		out:     out,
	}
}

// SubmitCandle queues a candle update. Safe from any goroutine.
func (p *Pipeline) SubmitCandle(ev model.CandleEvent) { p.candles.Push(ev) }

// SubmitTrade queues a trade. Safe from any goroutine.
func (p *Pipeline) SubmitTrade(ev model.TradeEvent) { p.trades.Push(ev) }

// Pending returns the queued candle and trade counts.
func (p *Pipeline) Pending() (candles, trades int) {
	return p.candles.Len(), p.trades.Len()
}

// Run applies queued events until ctx is cancelled, then closes out.
// It must be the only goroutine touching the engine.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.candles.Ready():
			p.reportDepth()
			p.drainCandles()
		case <-p.trades.Ready():
			p.reportDepth()
			p.drainTrades()
		}
	}
}

func (p *Pipeline) drainCandles() {
	for _, ev := range p.candles.Drain() {
		res := p.engine.OnCandle(ev.Bar())
		if p.OnCandle != nil {
			p.OnCandle(ev, res)
		}
	}
}

func (p *Pipeline) drainTrades() {
	for _, ev := range p.trades.Drain() {
		start := time.Now()
		snap := p.engine.OnTrade(ev)
		if p.OnTrade != nil {
			p.OnTrade(ev, time.Since(start))
		}
		select {
		case p.out <- snap:
		default:
			if p.OnSnapshotDrop != nil {
				p.OnSnapshotDrop()
			}
		}
	}
}

func (p *Pipeline) reportDepth() {
	if p.OnQueueDepth != nil {
		p.OnQueueDepth(p.Pending())
	}
}
