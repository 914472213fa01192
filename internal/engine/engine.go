// Package engine owns the analytics state: the bar buffer, the pivot
// detector, the volume profile and the position ledger.
//
// An Engine is driven by a single goroutine (see Pipeline). Nothing in it is
// locked; callers outside the pipeline only ever see Snapshot values.
package engine

import (
	"math"

	"trading-profilev1/internal/model"
	"trading-profilev1/internal/pivot"
	"trading-profilev1/internal/position"
	"trading-profilev1/internal/profile"
	"trading-profilev1/internal/series"
	"trading-profilev1/internal/strategy"
)

// CandleResult describes what a candle update did.
type CandleResult struct {
	Replaced bool          // same-timestamp update of the newest bar
	Pivots   []model.Pivot // pivots confirmed before the append
	Signal   *model.Signal
}

// State is a read-only copy of the engine's decision state.
type State struct {
	Price        float64
	HasPrice     bool
	FairValue    float64
	HasFairValue bool
	VALow        float64
	VAHigh       float64
	HasValueArea bool
	PivotHigh    *model.Pivot
	PivotLow     *model.Pivot
	Bars         int
	Levels       int
	PositionSum  float64
	NetPosition  int64
	History      []float64
	Seq          uint64
}

// Engine is the analytics state machine.
type Engine struct {
	cfg Config

	bars     *series.Buffer
	detector *pivot.Detector
	profile  *profile.Profile
	ledger   *position.Ledger

	price     float64
	hasPrice  bool
	tradeTime int64

	// written only by applySnapshot
	fairValue float64
	hasFair   bool
	vaLow     float64
	vaHigh    float64
	hasVA     bool

	pivotHigh *model.Pivot
	pivotLow  *model.Pivot
	lastPivot *model.Pivot

	seq uint64

	// Optional hooks, called synchronously on the engine goroutine.
	OnPivot  func(p model.Pivot)
	OnSignal func(s model.Signal)
	OnPrune  func(cutoff int64, bars, levels int)
}

// New creates an engine with empty buffer, profile and ledger.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bars := series.New(cfg.Capacity)
	return &Engine{
		cfg:      cfg,
		bars:     bars,
		detector: pivot.New(bars, cfg.PivotLeft, cfg.PivotRight),
		profile:  profile.New(),
		ledger:   position.NewLedger(),
	}, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config { return e.cfg }

// OnCandle applies a candle update.
//
// A bar with the newest bar's timestamp replaces it and nothing else runs.
// Otherwise, when the buffer already holds bars, pivots are evaluated on the
// buffer as it stands and every confirmed pivot prunes the buffer and the
// profile at its timestamp. The signal policy then runs against the current
// price and the fair value and value area of the last trade recompute, even
// for the first bar. The new bar is appended last.
func (e *Engine) OnCandle(bar model.Bar) CandleResult {
	if newest, ok := e.bars.Newest(); ok && newest.Timestamp == bar.Timestamp {
		e.bars.PushOrReplace(bar)
		return CandleResult{Replaced: true}
	}

	var res CandleResult
	if !e.bars.IsEmpty() {
		// Both pivots are read before either prune shrinks the window.
		high, okHigh := e.detector.High()
		low, okLow := e.detector.Low()
		if okHigh {
			e.confirm(high)
			res.Pivots = append(res.Pivots, high)
		}
		if okLow {
			e.confirm(low)
			res.Pivots = append(res.Pivots, low)
		}
	}

	res.Signal = e.evaluate(bar.Timestamp)

	e.bars.PushOrReplace(bar)
	return res
}

func (e *Engine) confirm(p model.Pivot) {
	cutoff := p.Timestamp()
	bars := e.bars.PruneOlderThan(cutoff)
	levels := e.profile.PruneOlderThan(cutoff)

	stored := p
	switch p.Kind {
	case model.PivotHigh:
		e.pivotHigh = &stored
	case model.PivotLow:
		e.pivotLow = &stored
	}
	e.lastPivot = &stored

	if e.OnPrune != nil {
		e.OnPrune(cutoff, bars, levels)
	}
	if e.OnPivot != nil {
		e.OnPivot(p)
	}
}

func (e *Engine) evaluate(barTime int64) *model.Signal {
	action := e.cfg.Policy.Evaluate(e.market())
	if !e.ledger.Apply(action, e.price) {
		return nil
	}
	sig := model.Signal{
		Action:  action,
		Price:   e.price,
		BarTime: barTime,
		Net:     e.ledger.Net(),
		Policy:  e.cfg.Policy.Name(),
	}
	if e.OnSignal != nil {
		e.OnSignal(sig)
	}
	return &sig
}

func (e *Engine) market() strategy.Market {
	return strategy.Market{
		Price:        e.price,
		FairValue:    e.fairValue,
		HasFairValue: e.hasFair && e.hasPrice,
		VALow:        e.vaLow,
		VAHigh:       e.vaHigh,
		HasValueArea: e.hasVA,
		PivotHigh:    e.pivotHigh,
		PivotLow:     e.pivotLow,
	}
}

// OnTrade records the trade in the profile, recomputes the snapshot, makes
// its fair value and value area the engine's decision state and returns it.
func (e *Engine) OnTrade(ev model.TradeEvent) model.Snapshot {
	e.profile.Record(ev.Price, ev.Quantity, ev.TradeTimeMs)
	e.price = ev.Price
	e.hasPrice = true
	e.tradeTime = ev.TradeTimeMs

	snap := e.ComputeSnapshot()
	e.applySnapshot(snap)
	return snap
}

// ComputeSnapshot derives the grouped profile, value area and header
// figures from the current state. It does not modify the engine.
func (e *Engine) ComputeSnapshot() model.Snapshot {
	dist := e.profile.Group(e.cfg.BucketCount)
	va := profile.ComputeValueArea(dist, e.cfg.ValueAreaFraction)

	snap := model.Snapshot{
		Symbol:      e.cfg.Symbol,
		Seq:         e.seq + 1,
		TradeTime:   e.tradeTime,
		Price:       e.price,
		PivotHigh:   clonePivot(e.pivotHigh),
		PivotLow:    clonePivot(e.pivotLow),
		LastPivot:   clonePivot(e.lastPivot),
		Levels:      e.profile.Len(),
		TotalVolume: dist.Total(),
		PositionSum: e.ledger.Sum(),
		NetPosition: e.ledger.Net(),
		RealizedPnL: e.ledger.RealizedPnL(),
		OpenPnL:     e.ledger.MarkToMarket(e.price),
	}
	if !va.Empty() {
		snap.HasValueArea = true
		snap.FairValue = va.POC
		snap.ValueAreaLow = va.Low()
		snap.ValueAreaHi = va.High()
	} else if e.hasFair {
		snap.FairValue = e.fairValue
	}

	entries := dist.Entries()
	snap.Rows = make([]model.ProfileRow, len(entries))
	current := -1
	if e.hasPrice {
		current = nearest(entries, e.price)
	}
	for i, en := range entries {
		snap.Rows[i] = model.ProfileRow{
			Price:       en.Price,
			Volume:      en.Volume,
			POC:         snap.HasValueArea && en.Price == va.POC,
			InValueArea: va.Contains(en.Price),
			Current:     i == current,
		}
	}
	return snap
}

// applySnapshot is the only writer of the fair value and value-area bounds.
// A snapshot without a value area clears the bounds but keeps the last
// fair value.
func (e *Engine) applySnapshot(s model.Snapshot) {
	e.seq = s.Seq
	if s.HasValueArea {
		e.fairValue = s.FairValue
		e.hasFair = true
		e.vaLow, e.vaHigh = s.ValueAreaLow, s.ValueAreaHi
		e.hasVA = true
		return
	}
	e.vaLow, e.vaHigh = 0, 0
	e.hasVA = false
}

// State returns a copy of the decision state.
func (e *Engine) State() State {
	return State{
		Price:        e.price,
		HasPrice:     e.hasPrice,
		FairValue:    e.fairValue,
		HasFairValue: e.hasFair,
		VALow:        e.vaLow,
		VAHigh:       e.vaHigh,
		HasValueArea: e.hasVA,
		PivotHigh:    clonePivot(e.pivotHigh),
		PivotLow:     clonePivot(e.pivotLow),
		Bars:         e.bars.Len(),
		Levels:       e.profile.Len(),
		PositionSum:  e.ledger.Sum(),
		NetPosition:  e.ledger.Net(),
		History:      e.ledger.History(),
		Seq:          e.seq,
	}
}

// Bars returns the buffered bars, newest first.
func (e *Engine) Bars() []model.Bar { return e.bars.Bars() }

// Volumes returns the ungrouped profile.
func (e *Engine) Volumes() profile.Distribution { return e.profile.Volumes() }

// nearest returns the index of the entry closest to price. Ties keep the
// earlier (higher-priced) entry.
func nearest(entries []profile.Entry, price float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, en := range entries {
		if d := math.Abs(en.Price - price); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func clonePivot(p *model.Pivot) *model.Pivot {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
