package strategy

import "trading-profilev1/internal/model"

const ValueAreaName = "value_area"

// ValueAreaReversion trades back towards fair value while the price is
// strictly inside the value area.
type ValueAreaReversion struct{}

func (ValueAreaReversion) Name() string { return ValueAreaName }

func (ValueAreaReversion) Evaluate(m Market) model.Action {
	if !m.HasFairValue || !m.HasValueArea {
		return model.ActionNone
	}
	if m.Price <= m.VALow || m.Price >= m.VAHigh {
		return model.ActionNone
	}
	return revert(m.Price, m.FairValue)
}
