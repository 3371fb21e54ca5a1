// Package simulation drives the step loop: scenario overrides, agent
// decisions, order submission and matching, settlement, metrics, checkpoints.
//
// The manager exclusively owns the mutable run state. Determinism is the
// primary design constraint: all randomness flows through one seeded stream,
// agents are evaluated in ascending id order, and identical configurations
// reproduce identical transaction logs byte for byte.
package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enchere-labs/marketsim/internal/agent"
	"github.com/enchere-labs/marketsim/internal/history"
	"github.com/enchere-labs/marketsim/internal/logger"
	"github.com/enchere-labs/marketsim/internal/metrics"
	"github.com/enchere-labs/marketsim/internal/orderbook"
	"github.com/enchere-labs/marketsim/internal/registry"
	"github.com/enchere-labs/marketsim/internal/scenario"
	"github.com/enchere-labs/marketsim/internal/types"
	"github.com/enchere-labs/marketsim/pkg/errors"
)

// Manager owns the authoritative simulation state for one run.
type Manager struct {
	cfg      types.SimulationConfig
	log      *logger.Logger
	schedule *scenario.Schedule

	runID string
	step  int64

	src *rand.PCG
	rng *rand.Rand

	registry *registry.Registry
	book     *orderbook.Book
	ledger   *history.Ledger
	agg      *metrics.Aggregator

	agents []agent.Agent
	states map[types.AgentID]*types.AgentState
	// agentOrder fixes the decision evaluation order: ascending agent id.
	agentOrder []types.AgentID

	recent map[types.ItemID][]decimal.Decimal

	nextOrderID int64

	// progress, when set, is called once per completed step.
	progress func(step int64)

	halt *types.HaltDiagnostic
}

// CashBalance implements orderbook.Accounts.
func (m *Manager) CashBalance(id types.AgentID) decimal.Decimal {
	if state, ok := m.states[id]; ok {
		return state.Cash
	}

	return decimal.Zero
}

// InventoryQty implements orderbook.Accounts.
func (m *Manager) InventoryQty(id types.AgentID, item types.ItemID) int64 {
	if state, ok := m.states[id]; ok {
		return state.InventoryQty(item)
	}

	return 0
}

// NewManager builds a run from a validated configuration: seeds the stream,
// generates the catalog, creates the agent population and opens the ledger.
func NewManager(cfg types.SimulationConfig, log *logger.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	schedule, err := scenario.Lookup(cfg.Scenario)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:         cfg,
		log:         log,
		schedule:    schedule,
		runID:       uuid.New().String(),
		src:         rand.NewPCG(cfg.Seed, cfg.Seed),
		states:      make(map[types.AgentID]*types.AgentState),
		recent:      make(map[types.ItemID][]decimal.Decimal),
		agg:         metrics.NewAggregator(cfg.VolatilityWindow),
		nextOrderID: 1,
	}
	m.rng = rand.New(m.src)

	m.registry = registry.Generate(cfg.Items, m.rng)
	m.book = orderbook.New(m, m.registry, orderbook.Config{AllowStacking: cfg.AllowStacking})
	m.createAgents()
	m.openLedger()

	return m, nil
}

// NewManagerFromCheckpoint rebuilds a run mid-flight from a snapshot. The
// restored manager continues at the checkpoint's next step with the random
// stream, book and balances exactly as they were.
func NewManagerFromCheckpoint(cp Checkpoint, log *logger.Logger) (*Manager, error) {
	if err := cp.Config.Validate(); err != nil {
		return nil, err
	}

	schedule, err := scenario.Lookup(cp.Config.Scenario)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:         cp.Config,
		log:         log,
		schedule:    schedule,
		runID:       cp.RunID,
		step:        cp.Step,
		src:         rand.NewPCG(cp.Config.Seed, cp.Config.Seed),
		states:      make(map[types.AgentID]*types.AgentState),
		recent:      make(map[types.ItemID][]decimal.Decimal),
		agg:         metrics.NewAggregator(cp.Config.VolatilityWindow),
		nextOrderID: cp.NextOrderID,
	}

	if err := m.src.UnmarshalBinary(cp.RNGState); err != nil {
		return nil, errors.Wrap(errors.ErrCodeRestoreFailed, "failed to restore rng state", err)
	}
	m.rng = rand.New(m.src)

	m.registry = registry.FromItems(cp.Items)
	m.book = orderbook.New(m, m.registry, orderbook.Config{AllowStacking: cp.Config.AllowStacking})
	m.book.Restore(cp.RestingOrders, cp.LastPrices, cp.NextTxID)

	for i := range cp.Agents {
		state := cp.Agents[i].Clone()
		m.states[state.ID] = &state
		m.agentOrder = append(m.agentOrder, state.ID)
		m.agents = append(m.agents, m.deciderFor(state))
	}
	sortAgents(m)

	m.restoreMetrics(cp)
	m.openLedger()
	if m.ledger != nil {
		if err := m.ledger.RecordTransactions(cp.Transactions); err != nil {
			m.log.Warn("failed to backfill ledger from checkpoint", zap.Error(err))
		}
	}

	return m, nil
}

// restoreMetrics replays the checkpoint's series and transactions into a
// fresh aggregator so the resumed run's result record is complete.
func (m *Manager) restoreMetrics(cp Checkpoint) {
	byStep := make(map[int64][]types.Transaction)
	for _, tx := range cp.Transactions {
		byStep[tx.Step] = append(byStep[tx.Step], tx)
	}

	for _, stats := range cp.Series {
		m.agg.RecordStep(stats.Step, byStep[stats.Step], stats.Orders, stats.Rejected, stats.PendingOrders)
	}

	for _, tx := range cp.Transactions {
		m.pushRecent(tx.ItemID, tx.Price)
	}
}

func (m *Manager) openLedger() {
	ledger, err := history.NewLedger(m.log)
	if err != nil {
		// The ledger is an audit surface; a run can proceed without it.
		m.log.Warn("history ledger unavailable", zap.Error(err))

		return
	}
	m.ledger = ledger
}

// createAgents builds the population in fixed id order, drawing every agent's
// cash, personality and starting inventory from the shared stream.
func (m *Manager) createAgents() {
	catalog := m.registry.All()

	for i := int64(1); i <= m.cfg.Buyers; i++ {
		id := types.AgentID(fmt.Sprintf("buyer-%03d", i))
		cash := uniformDecimal(m.rng, m.cfg.BuyerCashMin, m.cfg.BuyerCashMax)
		state := &types.AgentState{
			ID:        id,
			Role:      types.RoleBuyer,
			Cash:      cash,
			Inventory: make(map[types.ItemID]int64),
			Params:    agent.DrawParams(types.RoleBuyer, cash, m.rng),
		}
		m.states[id] = state
		m.agentOrder = append(m.agentOrder, id)
		m.agents = append(m.agents, agent.NewBuyer(id, catalog, m.cfg.BaseBuyProbability))
	}

	for i := int64(1); i <= m.cfg.Sellers; i++ {
		id := types.AgentID(fmt.Sprintf("seller-%03d", i))
		cash := uniformDecimal(m.rng, m.cfg.SellerCashMin, m.cfg.SellerCashMax)
		state := &types.AgentState{
			ID:        id,
			Role:      types.RoleSeller,
			Cash:      cash,
			Inventory: make(map[types.ItemID]int64),
			Params:    agent.DrawParams(types.RoleSeller, cash, m.rng),
		}
		agent.SeedInventory(state, catalog, m.cfg.SellerLotsMin, m.cfg.SellerLotsMax, m.cfg.SellerLotQtyMax, m.rng)
		m.states[id] = state
		m.agentOrder = append(m.agentOrder, id)
		m.agents = append(m.agents, agent.NewSeller(id, catalog, m.cfg.BaseSellProbability))
	}

	sortAgents(m)
}

func (m *Manager) deciderFor(state types.AgentState) agent.Agent {
	if state.Role == types.RoleSeller {
		return agent.NewSeller(state.ID, m.registry.All(), m.cfg.BaseSellProbability)
	}

	return agent.NewBuyer(state.ID, m.registry.All(), m.cfg.BaseBuyProbability)
}

func sortAgents(m *Manager) {
	sort.Slice(m.agentOrder, func(i, j int) bool { return m.agentOrder[i] < m.agentOrder[j] })
	sort.Slice(m.agents, func(i, j int) bool { return m.agents[i].ID() < m.agents[j].ID() })
}

func uniformDecimal(rng *rand.Rand, lo, hi float64) decimal.Decimal {
	return decimal.NewFromFloat(lo + rng.Float64()*(hi-lo)).Round(2)
}

// SetProgress installs a per-step progress callback.
func (m *Manager) SetProgress(fn func(step int64)) {
	m.progress = fn
}

// RunID returns the run's unique identifier.
func (m *Manager) RunID() string { return m.runID }

// Run executes the step loop until the configured step count, a fatal
// invariant breach, or context cancellation. Cancellation finishes the
// in-flight step, flushes a checkpoint, and returns the partial result; an
// invariant breach halts the run and surfaces the diagnostic in both the
// result record and the returned error.
func (m *Manager) Run(ctx context.Context) (types.Result, error) {
	m.log.Info("starting simulation",
		zap.String("run_id", m.runID),
		zap.String("scenario", m.cfg.Scenario),
		zap.Int64("steps", m.cfg.Steps),
		zap.Int64("from_step", m.step),
		zap.Uint64("seed", m.cfg.Seed),
	)

	var runErr error

	for m.step < m.cfg.Steps {
		m.step++
		breach := m.runStep(m.step)

		if m.progress != nil {
			m.progress(m.step)
		}

		if breach != nil {
			m.halt = &types.HaltDiagnostic{
				Step:    breach.Step,
				AgentID: breach.AgentID,
				OrderID: breach.OrderID,
				Reason:  breach.Message,
			}
			m.log.Error("simulation halted", zap.String("reason", breach.Error()))
			runErr = errors.Wrap(errors.ErrCodeInvariantBreach, "simulation halted", breach)

			break
		}

		if m.cfg.CheckpointInterval > 0 && m.step%m.cfg.CheckpointInterval == 0 {
			m.writeCheckpoint()
		}

		if err := ctx.Err(); err != nil {
			m.log.Info("cancellation requested, stopping after in-flight step", zap.Int64("step", m.step))
			m.writeCheckpoint()

			break
		}
	}

	return m.buildResult(), runErr
}

// runStep executes one simulation step. A non-nil return is a fatal
// invariant breach.
func (m *Manager) runStep(step int64) *errors.InvariantBreachError {
	overrides := m.schedule.OverridesAt(step)

	if m.cfg.OrderTTL > 0 {
		expired := m.book.Expire(step - 1 - m.cfg.OrderTTL)
		for _, o := range expired {
			m.log.Debug("order expired", zap.Int64("order_id", o.ID), zap.String("agent", string(o.AgentID)))
		}
	}

	// Phase 1: one market view snapshot for the whole step.
	quotes := make(map[types.ItemID]types.Quote, m.registry.Len())
	recent := make(map[types.ItemID][]decimal.Decimal, len(m.recent))
	for _, item := range m.registry.All() {
		quotes[item.ID] = m.book.Quote(item.ID)
		if prices := m.recent[item.ID]; len(prices) > 0 {
			recent[item.ID] = prices
		}
	}

	// Phase 2: decisions in ascending agent id order against the shared
	// snapshot. Intents collect in that same order, which is also the
	// submission and sequence-number order.
	var intents []types.OrderIntent
	for _, ag := range m.agents {
		view := types.MarketView{
			Step:         step,
			Quotes:       quotes,
			RecentPrices: recent,
			Overrides:    overrides,
			Self:         m.states[ag.ID()].Clone(),
		}
		if intent := ag.Decide(view, m.rng); intent.IsSome() {
			intents = append(intents, intent.Unwrap())
		}
	}

	// Phase 3: submission, matching and settlement.
	var stepTxs []types.Transaction
	var rejected int64

	for _, intent := range intents {
		// Structural validation happens before the intent consumes an order
		// id or touches the book.
		if err := intent.Validate(); err != nil {
			rejected++
			m.log.Debug("intent rejected",
				zap.String("agent", string(intent.AgentID)),
				zap.String("item", string(intent.ItemID)),
				zap.Error(err),
			)

			continue
		}

		order := types.Order{
			ID:            m.nextOrderID,
			AgentID:       intent.AgentID,
			ItemID:        intent.ItemID,
			Side:          intent.Side,
			Price:         intent.Price,
			Quantity:      intent.Quantity,
			StepSubmitted: step,
		}
		m.nextOrderID++

		txs, err := m.book.Submit(order)
		if err != nil {
			rejected++
			m.log.Debug("order rejected",
				zap.Int64("order_id", order.ID),
				zap.String("agent", string(order.AgentID)),
				zap.Error(err),
			)
			m.recordOrder(order, history.StatusRejected, err.Error())

			continue
		}
		m.recordOrder(order, history.StatusAccepted, "")

		for _, tx := range txs {
			tx.Seq = int64(len(stepTxs))
			if breach := m.settle(tx); breach != nil {
				return breach
			}
			stepTxs = append(stepTxs, tx)
			m.pushRecent(tx.ItemID, tx.Price)
		}
	}

	// Phase 4: invariant sweep over every balance sheet.
	if breach := m.sweepInvariants(step); breach != nil {
		return breach
	}

	// Phase 5: bookkeeping.
	m.agg.RecordStep(step, stepTxs, int64(len(intents)), rejected, m.book.PendingOrders())
	if m.ledger != nil {
		if err := m.ledger.RecordTransactions(stepTxs); err != nil {
			m.log.Warn("failed to record transactions", zap.Error(err))
		}
	}

	return nil
}

// settle applies one transaction to both balance sheets, atomically: every
// precondition is checked before either side mutates. A failure here means
// the matching engine's checks were violated, which is fatal.
func (m *Manager) settle(tx types.Transaction) *errors.InvariantBreachError {
	buyer, ok := m.states[tx.BuyerID]
	if !ok {
		return errors.NewInvariantBreachError(tx.Step, string(tx.BuyerID), tx.BuyOrderID, "unknown buyer at settlement")
	}
	seller, ok := m.states[tx.SellerID]
	if !ok {
		return errors.NewInvariantBreachError(tx.Step, string(tx.SellerID), tx.SellOrderID, "unknown seller at settlement")
	}

	value := tx.Value()
	if buyer.Cash.LessThan(value) {
		return errors.NewInvariantBreachError(tx.Step, string(tx.BuyerID), tx.BuyOrderID,
			fmt.Sprintf("settlement would overdraw buyer: cash %s, owed %s", buyer.Cash, value))
	}
	if seller.InventoryQty(tx.ItemID) < tx.Quantity {
		return errors.NewInvariantBreachError(tx.Step, string(tx.SellerID), tx.SellOrderID,
			fmt.Sprintf("settlement would overdraw seller inventory: held %d, owed %d", seller.InventoryQty(tx.ItemID), tx.Quantity))
	}

	seller.RemoveItem(tx.ItemID, tx.Quantity)
	buyer.AddItem(tx.ItemID, tx.Quantity)
	buyer.Cash = buyer.Cash.Sub(value)
	seller.Cash = seller.Cash.Add(value)

	return nil
}

// sweepInvariants verifies no balance sheet went negative this step.
func (m *Manager) sweepInvariants(step int64) *errors.InvariantBreachError {
	for _, id := range m.agentOrder {
		state := m.states[id]
		if state.Cash.IsNegative() {
			return errors.NewInvariantBreachError(step, string(id), 0,
				fmt.Sprintf("negative cash balance %s", state.Cash))
		}
		for item, qty := range state.Inventory {
			if qty < 0 {
				return errors.NewInvariantBreachError(step, string(id), 0,
					fmt.Sprintf("negative inventory %d of %s", qty, item))
			}
		}
	}

	return nil
}

func (m *Manager) pushRecent(item types.ItemID, price decimal.Decimal) {
	prices := append(m.recent[item], price)
	if len(prices) > m.cfg.VolatilityWindow {
		prices = prices[len(prices)-m.cfg.VolatilityWindow:]
	}
	m.recent[item] = prices
}

func (m *Manager) recordOrder(order types.Order, status, reason string) {
	if m.ledger == nil {
		return
	}
	if err := m.ledger.RecordOrder(order, status, reason); err != nil {
		m.log.Warn("failed to record order", zap.Error(err))
	}
}

// writeCheckpoint persists the current snapshot. Checkpoints are best-effort:
// failures are logged and the run continues.
func (m *Manager) writeCheckpoint() {
	cp, err := m.Snapshot()
	if err != nil {
		m.log.Warn("failed to snapshot state", zap.Error(err))

		return
	}

	path, err := WriteCheckpoint(m.cfg.CheckpointDir, cp)
	if err != nil {
		m.log.Warn("failed to write checkpoint", zap.Error(err))

		return
	}

	m.log.Info("checkpoint written", zap.String("path", path), zap.Int64("step", m.step))
}

// Snapshot captures the current state as a serializable checkpoint.
func (m *Manager) Snapshot() (Checkpoint, error) {
	rngState, err := m.src.MarshalBinary()
	if err != nil {
		return Checkpoint{}, errors.Wrap(errors.ErrCodeCheckpointFailed, "failed to marshal rng state", err)
	}

	agents := make([]types.AgentState, 0, len(m.agentOrder))
	for _, id := range m.agentOrder {
		agents = append(agents, m.states[id].Clone())
	}

	return Checkpoint{
		RunID:         m.runID,
		Step:          m.step,
		Config:        m.cfg,
		RNGState:      rngState,
		Items:         m.registry.All(),
		Agents:        agents,
		RestingOrders: m.book.RestingOrders(),
		LastPrices:    m.book.LastPrices(),
		NextOrderID:   m.nextOrderID,
		NextTxID:      m.book.NextTxID(),
		Transactions:  m.agg.Transactions(),
		Series:        m.agg.Series(),
	}, nil
}

// Ledger exposes the history ledger, nil when unavailable.
func (m *Manager) Ledger() *history.Ledger { return m.ledger }

// Aggregator exposes the metrics aggregator for window queries.
func (m *Manager) Aggregator() *metrics.Aggregator { return m.agg }

func (m *Manager) buildResult() types.Result {
	agents := make([]types.AgentState, 0, len(m.agentOrder))
	for _, id := range m.agentOrder {
		agents = append(agents, m.states[id].Clone())
	}

	return types.Result{
		RunID:        m.runID,
		Config:       m.cfg,
		Transactions: m.agg.Transactions(),
		Series:       m.agg.Series(),
		Summary:      m.agg.Finalize(),
		FinalAgents:  agents,
		Halt:         m.halt,
	}
}

// Run creates a manager from the configuration and executes the whole run.
// This is the single entry point the invocation surface consumes.
func Run(ctx context.Context, cfg types.SimulationConfig, log *logger.Logger) (types.Result, error) {
	m, err := NewManager(cfg, log)
	if err != nil {
		return types.Result{}, err
	}
	if m.ledger != nil {
		defer m.ledger.Close()
	}

	return m.Run(ctx)
}
