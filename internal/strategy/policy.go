// Package strategy provides the signal policies evaluated by the engine.
//
// A Policy looks at the market state captured before a new bar is appended
// (current price, the fair value and value area from the last trade
// recompute, the latest confirmed pivots) and decides whether to add a long
// or a short increment.
package strategy

import (
	"errors"
	"fmt"
	"strings"

	"trading-profilev1/internal/model"
)

// ErrUnknownPolicy is returned by ByName for an unregistered policy name.
var ErrUnknownPolicy = errors.New("strategy: unknown policy")

// Market is the engine state a policy decides on.
type Market struct {
	Price float64

	FairValue    float64
	HasFairValue bool

	VALow        float64
	VAHigh       float64
	HasValueArea bool

	PivotHigh *model.Pivot
	PivotLow  *model.Pivot
}

// Policy is the interface every signal rule implements.
type Policy interface {
	// Name returns the registry name of the policy.
	Name() string

	// Evaluate returns ActionBuy, ActionSell or ActionNone.
	Evaluate(m Market) model.Action
}

// Names lists the registered policies.
var Names = []string{ValueAreaName, PivotBandName}

// ByName returns the policy registered as name (case-insensitive).
func ByName(name string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ValueAreaName:
		return ValueAreaReversion{}, nil
	case PivotBandName:
		return PivotBandReversion{}, nil
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownPolicy, name, strings.Join(Names, ", "))
	}
}

// revert fades the price back to fair value: above it sells, below it
// buys, on it does nothing.
func revert(price, fair float64) model.Action {
	switch {
	case price > fair:
		return model.ActionSell
	case price < fair:
		return model.ActionBuy
	default:
		return model.ActionNone
	}
}
