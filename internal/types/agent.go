package types

import (
	"github.com/shopspring/decimal"
)

// Role is the agent variant. Strategies are tagged variants with plain-data
// parameters, not an inheritance hierarchy.
type Role string

const (
	RoleBuyer  Role = "BUYER"
	RoleSeller Role = "SELLER"
)

// StrategyParams are the per-agent personality knobs drawn once at creation
// from the seeded stream.
type StrategyParams struct {
	// RiskTolerance in [0.1, 0.9] skews the agent's valuation up (bold) or
	// down (cautious) around the anchor price.
	RiskTolerance float64 `yaml:"risk_tolerance" json:"risk_tolerance"`
	// Patience in [0.2, 0.8] lowers the per-step probability of acting.
	Patience float64 `yaml:"patience" json:"patience"`
	// MarketKnowledge in [0.3, 0.9] weights how much the agent trusts the
	// visible quote versus the item's base value.
	MarketKnowledge float64 `yaml:"market_knowledge" json:"market_knowledge"`
	// ProfitTarget applies to sellers only: the markup over the anchor the
	// seller lists at when no bid is visible.
	ProfitTarget float64 `yaml:"profit_target" json:"profit_target"`
	// BudgetPerItem caps how much cash a buyer commits to a single order.
	BudgetPerItem decimal.Decimal `yaml:"budget_per_item" json:"budget_per_item"`
}

// AgentState is the authoritative balance sheet of one agent. Only the
// simulation manager mutates it, and only at settlement; the matching engine
// reads it through the orderbook.Accounts interface.
//
// Invariant: Cash >= 0 and every inventory quantity >= 0 at all times.
type AgentState struct {
	ID        AgentID          `yaml:"id" json:"id" csv:"id"`
	Role      Role             `yaml:"role" json:"role" csv:"role"`
	Cash      decimal.Decimal  `yaml:"cash" json:"cash" csv:"cash"`
	Inventory map[ItemID]int64 `yaml:"inventory" json:"inventory"`
	Params    StrategyParams   `yaml:"params" json:"params"`
}

// InventoryQty returns the quantity held of the given item, zero if none.
func (a *AgentState) InventoryQty(item ItemID) int64 {
	return a.Inventory[item]
}

// CanAfford reports whether the agent can pay price x quantity.
func (a *AgentState) CanAfford(price decimal.Decimal, quantity int64) bool {
	return a.Cash.GreaterThanOrEqual(price.Mul(decimal.NewFromInt(quantity)))
}

// AddItem credits quantity of an item to the inventory.
func (a *AgentState) AddItem(item ItemID, quantity int64) {
	if a.Inventory == nil {
		a.Inventory = make(map[ItemID]int64)
	}
	a.Inventory[item] += quantity
}

// RemoveItem debits quantity of an item. Returns false when holdings are
// insufficient; the inventory is left untouched in that case.
func (a *AgentState) RemoveItem(item ItemID, quantity int64) bool {
	if a.Inventory[item] < quantity {
		return false
	}
	a.Inventory[item] -= quantity
	if a.Inventory[item] == 0 {
		delete(a.Inventory, item)
	}

	return true
}

// Clone returns a deep copy, used for checkpoint snapshots so a persisted
// state never aliases the live object graph.
func (a *AgentState) Clone() AgentState {
	inv := make(map[ItemID]int64, len(a.Inventory))
	for k, v := range a.Inventory {
		inv[k] = v
	}

	return AgentState{
		ID:        a.ID,
		Role:      a.Role,
		Cash:      a.Cash,
		Inventory: inv,
		Params:    a.Params,
	}
}
