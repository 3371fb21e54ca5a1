package types

import (
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Override parameter names. Scenario events contribute multipliers keyed by
// these; the simulation manager folds them into each step's market view.
const (
	ParamBuyProbability  = "buy_probability"
	ParamSellProbability = "sell_probability"
	ParamValuationNoise  = "valuation_noise"
	ParamProfitTarget    = "profit_target"
)

// Quote is the visible top of book for one item. Sides may be empty.
type Quote struct {
	Bid  optional.Option[decimal.Decimal] `json:"bid"`
	Ask  optional.Option[decimal.Decimal] `json:"ask"`
	Last optional.Option[decimal.Decimal] `json:"last"`
}

// Spread returns ask minus bid when both sides exist.
func (q Quote) Spread() optional.Option[decimal.Decimal] {
	if q.Bid.IsNone() || q.Ask.IsNone() {
		return optional.None[decimal.Decimal]()
	}

	return optional.Some(q.Ask.Unwrap().Sub(q.Bid.Unwrap()))
}

// MarketView is the read-only snapshot an agent decides against. It carries
// public market state plus the deciding agent's own balance sheet; agents
// never see other agents' private state.
type MarketView struct {
	Step         int64
	Quotes       map[ItemID]Quote
	RecentPrices map[ItemID][]decimal.Decimal
	// Overrides are the composed scenario multipliers for this step,
	// keyed by Param* names. Missing key means multiplier 1.0.
	Overrides map[string]float64
	// Self is a copy of the deciding agent's own state.
	Self AgentState
}

// Multiplier returns the composed override for a parameter, 1.0 if absent.
func (v MarketView) Multiplier(name string) float64 {
	if m, ok := v.Overrides[name]; ok {
		return m
	}

	return 1.0
}

// QuoteFor returns the quote for an item, an empty quote if never traded.
func (v MarketView) QuoteFor(item ItemID) Quote {
	return v.Quotes[item]
}
