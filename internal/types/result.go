package types

import (
	"github.com/shopspring/decimal"
)

// StepStats is one row of the per-step summary series.
type StepStats struct {
	Step          int64                `yaml:"step" json:"step" csv:"step"`
	Orders        int64                `yaml:"orders" json:"orders" csv:"orders"`
	Rejected      int64                `yaml:"rejected" json:"rejected" csv:"rejected"`
	Transactions  int64                `yaml:"transactions" json:"transactions" csv:"transactions"`
	Volume        int64                `yaml:"volume" json:"volume" csv:"volume"`
	Value         decimal.Decimal      `yaml:"value" json:"value" csv:"value"`
	VWAP          map[ItemID]decimal.Decimal `yaml:"vwap" json:"vwap"`
	Volatility    map[ItemID]float64   `yaml:"volatility" json:"volatility"`
	PendingOrders int64                `yaml:"pending_orders" json:"pending_orders" csv:"pending_orders"`
}

// Summary aggregates the whole run.
type Summary struct {
	TotalTransactions int64           `yaml:"total_transactions" json:"total_transactions"`
	TotalVolume       int64           `yaml:"total_volume" json:"total_volume"`
	TotalValue        decimal.Decimal `yaml:"total_value" json:"total_value"`
	AvgTransactions   float64         `yaml:"avg_transactions_per_step" json:"avg_transactions_per_step"`
	AvgVolume         float64         `yaml:"avg_volume_per_step" json:"avg_volume_per_step"`
	StepsCompleted    int64           `yaml:"steps_completed" json:"steps_completed"`
}

// HaltDiagnostic reports why a run stopped early. Step plus the same seed lets
// an engineer replay right up to the breach.
type HaltDiagnostic struct {
	Step    int64  `yaml:"step" json:"step"`
	AgentID string `yaml:"agent_id" json:"agent_id"`
	OrderID int64  `yaml:"order_id" json:"order_id"`
	Reason  string `yaml:"reason" json:"reason"`
}

// Result is the canonical record of one run: the contract the storage and
// dashboard layers consume. Its field set is stable across scenario types.
// Transactions are ordered by (step, seq).
type Result struct {
	RunID        string           `yaml:"run_id" json:"run_id"`
	Config       SimulationConfig `yaml:"config" json:"config"`
	Transactions []Transaction    `yaml:"transactions" json:"transactions"`
	Series       []StepStats      `yaml:"series" json:"series"`
	Summary      Summary          `yaml:"summary" json:"summary"`
	FinalAgents  []AgentState     `yaml:"final_agents" json:"final_agents"`
	// Halt is set only when the run stopped on a fatal invariant breach;
	// the partial record up to that step is still populated.
	Halt *HaltDiagnostic `yaml:"halt,omitempty" json:"halt,omitempty"`
}
