package strategy

import "trading-profilev1/internal/model"

const PivotBandName = "pivot_band"

// PivotBandReversion trades back towards fair value while the price is
// strictly between the latest pivot low's low and pivot high's high.
// Both pivots must be known.
type PivotBandReversion struct{}

func (PivotBandReversion) Name() string { return PivotBandName }

func (PivotBandReversion) Evaluate(m Market) model.Action {
	if !m.HasFairValue || m.PivotHigh == nil || m.PivotLow == nil {
		return model.ActionNone
	}
	lo, hi := m.PivotLow.Bar.Low, m.PivotHigh.Bar.High
	if m.Price <= lo || m.Price >= hi {
		return model.ActionNone
	}
	return revert(m.Price, m.FairValue)
}
