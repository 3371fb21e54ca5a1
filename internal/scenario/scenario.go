// Package scenario resolves named scenarios to immutable event schedules and
// composes the parameter overrides active at each step.
//
// Events never touch agent or book state. They only contribute multipliers,
// which the simulation manager folds into each step's market view.
package scenario

import (
	"sort"

	"github.com/enchere-labs/marketsim/internal/types"
	"github.com/enchere-labs/marketsim/pkg/errors"
)

// Schedule is a fixed list of events for one run.
type Schedule struct {
	name   string
	events []types.ScenarioEvent
}

// NewSchedule builds a schedule from explicit events, validating each one.
func NewSchedule(name string, events []types.ScenarioEvent) (*Schedule, error) {
	for _, e := range events {
		if e.Duration <= 0 {
			return nil, errors.Newf(errors.ErrCodeInvalidEvent,
				"event %q has non-positive duration %d", e.Name, e.Duration)
		}
		if e.TriggerStep < 0 {
			return nil, errors.Newf(errors.ErrCodeInvalidEvent,
				"event %q has negative trigger step %d", e.Name, e.TriggerStep)
		}
		for param, mult := range e.Overrides {
			if mult <= 0 {
				return nil, errors.Newf(errors.ErrCodeInvalidOverride,
					"event %q override %s must be positive, got %f", e.Name, param, mult)
			}
		}
	}

	copied := make([]types.ScenarioEvent, len(events))
	copy(copied, events)

	return &Schedule{name: name, events: copied}, nil
}

// Name returns the scenario name the schedule was built from.
func (s *Schedule) Name() string { return s.name }

// Events returns the schedule's events. Callers must not mutate them.
func (s *Schedule) Events() []types.ScenarioEvent { return s.events }

// OverridesAt composes the multipliers of every event active at the step.
// Overlapping events multiply on the same parameter. The result map is fresh
// on every call; an empty map means all parameters at their base values.
func (s *Schedule) OverridesAt(step int64) map[string]float64 {
	overrides := make(map[string]float64)

	for _, e := range s.events {
		if !e.ActiveAt(step) {
			continue
		}
		for param, mult := range e.Overrides {
			if current, ok := overrides[param]; ok {
				overrides[param] = current * mult
			} else {
				overrides[param] = mult
			}
		}
	}

	return overrides
}

// ActiveEvents returns the names of events active at the step, in definition
// order.
func (s *Schedule) ActiveEvents(step int64) []string {
	var names []string
	for _, e := range s.events {
		if e.ActiveAt(step) {
			names = append(names, e.Name)
		}
	}

	return names
}

// The built-in scenario catalog. Adding a scenario means adding an entry
// here; the engine itself never changes.
var catalog = map[string][]types.ScenarioEvent{
	"baseline": {},
	"demand_x2": {
		{
			Name:        "demand_surge",
			TriggerStep: 50,
			Duration:    30,
			Overrides:   map[string]float64{types.ParamBuyProbability: 2.0},
		},
	},
	"volatility_spike": {
		{
			Name:        "valuation_shock",
			TriggerStep: 75,
			Duration:    25,
			Overrides:   map[string]float64{types.ParamValuationNoise: 2.0},
		},
	},
	"market_crash": {
		{
			Name:        "panic_selling",
			TriggerStep: 60,
			Duration:    20,
			Overrides: map[string]float64{
				types.ParamSellProbability: 2.5,
				types.ParamProfitTarget:    0.8,
			},
		},
	},
	"liquidity_drain": {
		{
			Name:        "participation_collapse",
			TriggerStep: 40,
			Duration:    20,
			Overrides: map[string]float64{
				types.ParamBuyProbability:  0.3,
				types.ParamSellProbability: 0.3,
			},
		},
	},
}

// Lookup resolves a scenario name to its schedule.
func Lookup(name string) (*Schedule, error) {
	events, ok := catalog[name]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownScenario,
			"unknown scenario %q, known: %v", name, Names())
	}

	return NewSchedule(name, events)
}

// Names returns the known scenario names, sorted.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
