// Package agent implements the buyer and seller decision strategies. Agents
// are tagged variants sharing one capability: given a read-only market view
// and the run's seeded random stream, produce at most one order intent.
//
// All randomness flows through the stream passed into Decide. Agents hold no
// generator of their own, so replaying a run with the same seed and the same
// agent evaluation order reproduces every decision exactly.
package agent

import (
	"math/rand/v2"
	"sort"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/enchere-labs/marketsim/internal/types"
)

// Strategy parameter ranges, drawn once per agent at creation.
const (
	riskToleranceMin   = 0.1
	riskToleranceMax   = 0.9
	patienceMin        = 0.2
	patienceMax        = 0.8
	marketKnowledgeMin = 0.3
	marketKnowledgeMax = 0.9
	profitTargetMin    = 1.1
	profitTargetMax    = 1.5
	budgetFractionMin  = 0.05
	budgetFractionMax  = 0.2
)

// valuationNoiseSpan is the half-width of the relative noise band applied to
// every valuation, before scenario multipliers.
const valuationNoiseSpan = 0.05

// Agent produces at most one order intent per step.
type Agent interface {
	ID() types.AgentID
	Role() types.Role
	Decide(view types.MarketView, rng *rand.Rand) optional.Option[types.OrderIntent]
}

// DrawParams draws a fresh personality from the seeded stream. BudgetPerItem
// is a fraction of the agent's starting cash and only meaningful for buyers.
func DrawParams(role types.Role, startingCash decimal.Decimal, rng *rand.Rand) types.StrategyParams {
	params := types.StrategyParams{
		RiskTolerance:   uniform(rng, riskToleranceMin, riskToleranceMax),
		Patience:        uniform(rng, patienceMin, patienceMax),
		MarketKnowledge: uniform(rng, marketKnowledgeMin, marketKnowledgeMax),
	}

	if role == types.RoleSeller {
		params.ProfitTarget = uniform(rng, profitTargetMin, profitTargetMax)
	} else {
		params.BudgetPerItem = startingCash.Mul(
			decimal.NewFromFloat(uniform(rng, budgetFractionMin, budgetFractionMax))).Round(2)
	}

	return params
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// valuation computes the agent's perceived worth of an item: an anchor taken
// from the visible market, blended with the item's base value by how much the
// agent trusts the market, then skewed by risk appetite and a noise draw.
// The anchor prefers the recent trade window over the single last price, so a
// one-off outlier fill does not whipsaw every valuation.
func valuation(item types.Item, quote types.Quote, params types.StrategyParams, riskSpan float64, view types.MarketView, rng *rand.Rand) decimal.Decimal {
	anchor := item.BaseValue
	switch {
	case len(view.RecentPrices[item.ID]) > 0:
		anchor = meanPrice(view.RecentPrices[item.ID])
	case quote.Last.IsSome():
		anchor = quote.Last.Unwrap()
	case quote.Bid.IsSome() && quote.Ask.IsSome():
		anchor = quote.Bid.Unwrap().Add(quote.Ask.Unwrap()).Div(decimal.NewFromInt(2))
	}

	knowledge := decimal.NewFromFloat(params.MarketKnowledge)
	blended := anchor.Mul(knowledge).Add(item.BaseValue.Mul(decimal.NewFromInt(1).Sub(knowledge)))

	skew := 1 + (params.RiskTolerance-0.5)*riskSpan

	noiseSpan := valuationNoiseSpan * view.Multiplier(types.ParamValuationNoise)
	noise := 1 + (rng.Float64()*2-1)*noiseSpan

	return blended.Mul(decimal.NewFromFloat(skew * noise)).Round(2)
}

func meanPrice(prices []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range prices {
		sum = sum.Add(p)
	}

	return sum.Div(decimal.NewFromInt(int64(len(prices))))
}

// Buyer bids on catalog items it values above the visible ask.
type Buyer struct {
	id       types.AgentID
	catalog  []types.Item
	baseProb float64
}

// NewBuyer creates a buyer over the run's catalog. baseProb is the configured
// base probability of acting in a step, before patience and scenario scaling.
func NewBuyer(id types.AgentID, catalog []types.Item, baseProb float64) *Buyer {
	return &Buyer{id: id, catalog: catalog, baseProb: baseProb}
}

func (b *Buyer) ID() types.AgentID { return b.id }

func (b *Buyer) Role() types.Role { return types.RoleBuyer }

// Decide draws the act-or-wait gate, picks a target item, and bids when its
// valuation clears the best visible ask (or no ask exists). The emitted price
// sits between the ask and the valuation. Quantity is capped by the buyer's
// per-item budget and cash so the intent is always affordable at submission.
func (b *Buyer) Decide(view types.MarketView, rng *rand.Rand) optional.Option[types.OrderIntent] {
	params := view.Self.Params

	actProb := b.baseProb * (0.4 + 1.2*params.Patience) * view.Multiplier(types.ParamBuyProbability)
	if rng.Float64() >= actProb {
		return optional.None[types.OrderIntent]()
	}

	if len(b.catalog) == 0 {
		return optional.None[types.OrderIntent]()
	}

	item := b.catalog[rng.IntN(len(b.catalog))]
	quote := view.QuoteFor(item.ID)

	value := valuation(item, quote, params, 0.2, view, rng)
	if value.Sign() <= 0 {
		return optional.None[types.OrderIntent]()
	}

	price := value
	if quote.Ask.IsSome() {
		ask := quote.Ask.Unwrap()
		if value.LessThan(ask) {
			return optional.None[types.OrderIntent]()
		}
		span := value.Sub(ask)
		price = ask.Add(span.Mul(decimal.NewFromFloat(rng.Float64()))).Round(2)
	}

	budget := params.BudgetPerItem
	if view.Self.Cash.LessThan(budget) {
		budget = view.Self.Cash
	}

	maxQty := budget.Div(price).IntPart()
	if maxQty < 1 {
		return optional.None[types.OrderIntent]()
	}

	qty := rng.Int64N(maxQty) + 1

	return optional.Some(types.OrderIntent{
		AgentID:  b.id,
		ItemID:   item.ID,
		Side:     types.SideBid,
		Price:    price,
		Quantity: qty,
	})
}

// Seller lists held inventory when the market pays at or near its target.
type Seller struct {
	id       types.AgentID
	catalog  map[types.ItemID]types.Item
	baseProb float64
}

// NewSeller creates a seller. Candidate items come from the agent's own
// inventory; the catalog is only consulted for base values.
func NewSeller(id types.AgentID, catalog []types.Item, baseProb float64) *Seller {
	byID := make(map[types.ItemID]types.Item, len(catalog))
	for _, item := range catalog {
		byID[item.ID] = item
	}

	return &Seller{id: id, catalog: byID, baseProb: baseProb}
}

func (s *Seller) ID() types.AgentID { return s.id }

func (s *Seller) Role() types.Role { return types.RoleSeller }

// maxLotPerAsk bounds how much of a holding a seller lists in one order.
const maxLotPerAsk = 3

// askUndercut is the relative discount a seller applies when competing with a
// resting ask instead of queueing behind it.
const askUndercut = 0.01

// Decide draws the act-or-wait gate, picks one held item, and lists it at the
// seller's target price. Impatient sellers keep only a sliver of their profit
// target, so their listings sit near valuation; patient sellers hold out for
// the full markup. When a visible bid already meets the target, the ask is
// priced at the bid so the listing crosses immediately; when a cheaper ask is
// already resting, the seller undercuts it down to its own valuation.
func (s *Seller) Decide(view types.MarketView, rng *rand.Rand) optional.Option[types.OrderIntent] {
	params := view.Self.Params

	actProb := s.baseProb * (0.6 + 0.8*params.Patience) * view.Multiplier(types.ParamSellProbability)
	if rng.Float64() >= actProb {
		return optional.None[types.OrderIntent]()
	}

	held := heldItems(view.Self)
	if len(held) == 0 {
		return optional.None[types.OrderIntent]()
	}

	itemID := held[rng.IntN(len(held))]
	quote := view.QuoteFor(itemID)

	item, ok := s.catalog[itemID]
	if !ok {
		return optional.None[types.OrderIntent]()
	}

	// The target keeps a patience-weighted share of the profit markup over
	// the seller's valuation; the valuation itself is the reserve below
	// which the seller never lists.
	value := valuation(item, quote, params, 0.1, view, rng)
	effectiveTarget := params.ProfitTarget * view.Multiplier(types.ParamProfitTarget)
	markup := 1 + (effectiveTarget-1)*params.Patience
	target := value.Mul(decimal.NewFromFloat(markup)).Round(2)
	if target.Sign() <= 0 {
		return optional.None[types.OrderIntent]()
	}

	price := target
	switch {
	case quote.Bid.IsSome() && quote.Bid.Unwrap().GreaterThanOrEqual(target):
		price = quote.Bid.Unwrap()
	case quote.Ask.IsSome():
		undercut := quote.Ask.Unwrap().Mul(decimal.NewFromFloat(1 - askUndercut)).Round(2)
		if undercut.LessThan(price) {
			price = undercut
		}
		// A panic-driven target may already sit below valuation; the floor
		// is whichever of the two is lower.
		floor := value
		if target.LessThan(floor) {
			floor = target
		}
		if price.LessThan(floor) {
			price = floor
		}
	}

	holdings := view.Self.InventoryQty(itemID)
	maxQty := holdings
	if maxQty > maxLotPerAsk {
		maxQty = maxLotPerAsk
	}
	if maxQty < 1 {
		return optional.None[types.OrderIntent]()
	}

	qty := rng.Int64N(maxQty) + 1

	return optional.Some(types.OrderIntent{
		AgentID:  s.id,
		ItemID:   itemID,
		Side:     types.SideAsk,
		Price:    price,
		Quantity: qty,
	})
}

// SeedInventory stocks a fresh seller with random lots from the catalog.
// Lots may repeat an item; quantities accumulate.
func SeedInventory(state *types.AgentState, catalog []types.Item, lotsMin, lotsMax, lotQtyMax int64, rng *rand.Rand) {
	if len(catalog) == 0 || lotsMax < lotsMin || lotQtyMax < 1 {
		return
	}

	lots := lotsMin + rng.Int64N(lotsMax-lotsMin+1)
	for i := int64(0); i < lots; i++ {
		item := catalog[rng.IntN(len(catalog))]
		state.AddItem(item.ID, rng.Int64N(lotQtyMax)+1)
	}
}

// heldItems returns the inventory's item ids in ascending order, so the
// random pick consumes the stream identically on every replay.
func heldItems(state types.AgentState) []types.ItemID {
	ids := make([]types.ItemID, 0, len(state.Inventory))
	for id, qty := range state.Inventory {
		if qty > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}
