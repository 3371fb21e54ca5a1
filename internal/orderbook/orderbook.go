// Package orderbook implements per-item continuous double auction books with
// price-time priority matching.
//
// Matching is deterministic and purely sequential: no goroutines, channels or
// clock reads. Settlement is not this package's job — Submit returns the
// transactions for the simulation manager to apply, and the engine only reads
// agent balances through the Accounts interface to validate a match before
// committing it.
package orderbook

import (
	"sort"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"

	"github.com/enchere-labs/marketsim/internal/types"
	"github.com/enchere-labs/marketsim/pkg/errors"
)

// Accounts is the read-only view of agent balance sheets the engine uses for
// solvency and inventory checks.
type Accounts interface {
	CashBalance(id types.AgentID) decimal.Decimal
	InventoryQty(id types.AgentID, item types.ItemID) int64
}

// Catalog tells the engine which items exist.
type Catalog interface {
	Has(id types.ItemID) bool
}

// Config carries the book's policy knobs.
type Config struct {
	// AllowStacking permits several resting orders from one agent on the
	// same item and side. When false such a submission is rejected with
	// ErrCodeDuplicateOrder.
	AllowStacking bool
}

// Book holds every item's bid/ask structures plus the global submission
// sequence. One Book serves one simulation run.
type Book struct {
	accounts Accounts
	catalog  Catalog
	cfg      Config

	items  map[types.ItemID]*itemBook
	orders map[int64]*types.Order // resting orders only

	nextSeq  int64
	nextTxID int64

	lastPrice map[types.ItemID]decimal.Decimal
}

// New creates an empty book.
func New(accounts Accounts, catalog Catalog, cfg Config) *Book {
	return &Book{
		accounts:  accounts,
		catalog:   catalog,
		cfg:       cfg,
		items:     make(map[types.ItemID]*itemBook),
		orders:    make(map[int64]*types.Order),
		nextSeq:   1,
		nextTxID:  1,
		lastPrice: make(map[types.ItemID]decimal.Decimal),
	}
}

// plannedFill is one maker consumption computed during the planning walk.
// Nothing is mutated until the whole plan passes validation.
type plannedFill struct {
	maker *types.Order
	qty   int64
}

// Submit runs the matching algorithm for one order.
//
// The incoming order matches greedily against the best opposite price while
// the prices cross; execution price is always the resting order's. The fill
// plan is validated as a whole — buyer solvency and seller inventory through
// Accounts — before anything is committed, so a rejected order leaves the book
// untouched. Unfilled remainder rests in the book with its submission
// sequence preserved.
func (b *Book) Submit(order types.Order) ([]types.Transaction, error) {
	if err := b.validateSubmission(order); err != nil {
		return nil, err
	}

	order.Remaining = order.Quantity
	order.Seq = b.nextSeq

	ib := b.items[order.ItemID]
	if ib == nil {
		ib = newItemBook()
		b.items[order.ItemID] = ib
	}

	plan, err := b.planFills(ib, order)
	if err != nil {
		return nil, err
	}

	b.nextSeq++

	txs := b.commit(ib, &order, plan)

	if order.Remaining > 0 {
		resting := order
		ib.sideFor(order.Side).getOrCreate(order.Price).append(&resting)
		b.orders[resting.ID] = &resting
	}

	return txs, nil
}

func (b *Book) validateSubmission(order types.Order) error {
	if order.Quantity <= 0 {
		return errors.Newf(errors.ErrCodeInvalidQuantity, "quantity must be >= 1, got %d", order.Quantity)
	}

	if order.Price.Sign() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPrice, "price must be positive, got %s", order.Price)
	}

	if order.Side != types.SideBid && order.Side != types.SideAsk {
		return errors.Newf(errors.ErrCodeInvalidSide, "unknown side %q", order.Side)
	}

	if !b.catalog.Has(order.ItemID) {
		return errors.Newf(errors.ErrCodeUnknownItem, "no item with id %s", order.ItemID)
	}

	if !b.cfg.AllowStacking {
		for _, resting := range b.orders {
			if resting.AgentID == order.AgentID && resting.ItemID == order.ItemID && resting.Side == order.Side {
				return errors.Newf(errors.ErrCodeDuplicateOrder,
					"agent %s already has a resting %s on item %s", order.AgentID, order.Side, order.ItemID)
			}
		}
	}

	return nil
}

// planFills walks the opposite side best-first and computes the fills the
// incoming order would take, without mutating anything. Makers owned by the
// same agent are skipped, never matched. The plan is then validated end to
// end: the whole submission is rejected if any party could not settle it.
func (b *Book) planFills(ib *itemBook, order types.Order) ([]plannedFill, error) {
	opposite := ib.sideFor(order.Side.Opposite())
	remaining := order.Remaining

	var plan []plannedFill

	for _, lvl := range opposite.levels {
		if remaining <= 0 {
			break
		}

		// Crossing check: a bid crosses asks priced at or below it,
		// an ask crosses bids priced at or above it.
		if !opposite.betterOrEqual(lvl.price, order.Price) {
			break
		}

		for _, maker := range lvl.queue {
			if remaining <= 0 {
				break
			}

			if maker.AgentID == order.AgentID {
				continue
			}

			qty := remaining
			if maker.Remaining < qty {
				qty = maker.Remaining
			}

			plan = append(plan, plannedFill{maker: maker, qty: qty})
			remaining -= qty
		}
	}

	if err := b.validatePlan(order, plan); err != nil {
		return nil, err
	}

	return plan, nil
}

// validatePlan checks buyer solvency and seller inventory for every party in
// the plan, accumulating per agent across fills.
func (b *Book) validatePlan(order types.Order, plan []plannedFill) error {
	if len(plan) == 0 {
		return nil
	}

	cashNeeded := make(map[types.AgentID]decimal.Decimal)
	qtyNeeded := make(map[types.AgentID]int64)

	for _, fill := range plan {
		price := fill.maker.Price
		cost := price.Mul(decimal.NewFromInt(fill.qty))

		var buyer, seller types.AgentID
		if order.Side == types.SideBid {
			buyer, seller = order.AgentID, fill.maker.AgentID
		} else {
			buyer, seller = fill.maker.AgentID, order.AgentID
		}

		cashNeeded[buyer] = cashNeeded[buyer].Add(cost)
		qtyNeeded[seller] += fill.qty
	}

	for agent, needed := range cashNeeded {
		if b.accounts.CashBalance(agent).LessThan(needed) {
			return errors.Newf(errors.ErrCodeInsufficientFunds,
				"agent %s needs %s but holds %s", agent, needed, b.accounts.CashBalance(agent))
		}
	}

	for agent, needed := range qtyNeeded {
		if b.accounts.InventoryQty(agent, order.ItemID) < needed {
			return errors.Newf(errors.ErrCodeInsufficientInventory,
				"agent %s needs %d of %s but holds %d", agent, needed, order.ItemID,
				b.accounts.InventoryQty(agent, order.ItemID))
		}
	}

	return nil
}

// commit applies a validated plan: reduces makers, removes filled ones and
// emptied levels, and materializes one transaction per fill at the maker's
// price. Partially filled makers keep their Seq, preserving time priority.
func (b *Book) commit(ib *itemBook, order *types.Order, plan []plannedFill) []types.Transaction {
	if len(plan) == 0 {
		return nil
	}

	opposite := ib.sideFor(order.Side.Opposite())
	txs := make([]types.Transaction, 0, len(plan))

	for _, fill := range plan {
		maker := fill.maker

		order.Remaining -= fill.qty
		maker.Remaining -= fill.qty

		lvl := opposite.find(maker.Price)
		lvl.volume -= fill.qty

		if maker.IsFilled() {
			lvl.remove(maker.ID)
			delete(b.orders, maker.ID)
		}

		if lvl.empty() {
			opposite.removeLevel(lvl)
		}

		var buyOrder, sellOrder *types.Order
		if order.Side == types.SideBid {
			buyOrder, sellOrder = order, maker
		} else {
			buyOrder, sellOrder = maker, order
		}

		tx := types.Transaction{
			ID:          b.nextTxID,
			BuyOrderID:  buyOrder.ID,
			SellOrderID: sellOrder.ID,
			BuyerID:     buyOrder.AgentID,
			SellerID:    sellOrder.AgentID,
			ItemID:      order.ItemID,
			Price:       maker.Price,
			Quantity:    fill.qty,
			Step:        order.StepSubmitted,
		}
		b.nextTxID++
		b.lastPrice[order.ItemID] = maker.Price
		txs = append(txs, tx)
	}

	return txs
}

// Cancel removes a resting order.
func (b *Book) Cancel(orderID int64) error {
	resting, ok := b.orders[orderID]
	if !ok {
		return errors.Newf(errors.ErrCodeOrderNotFound, "no resting order with id %d", orderID)
	}

	ib := b.items[resting.ItemID]
	side := ib.sideFor(resting.Side)
	lvl := side.find(resting.Price)
	lvl.remove(orderID)
	if lvl.empty() {
		side.removeLevel(lvl)
	}
	delete(b.orders, orderID)

	return nil
}

// Expire cancels every resting order submitted at or before the given step.
// Returns the cancelled orders in deterministic (Seq) order.
func (b *Book) Expire(submittedAtOrBefore int64) []types.Order {
	var stale []*types.Order
	for _, o := range b.orders {
		if o.StepSubmitted <= submittedAtOrBefore {
			stale = append(stale, o)
		}
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].Seq < stale[j].Seq })

	expired := make([]types.Order, 0, len(stale))
	for _, o := range stale {
		expired = append(expired, *o)
		_ = b.Cancel(o.ID)
	}

	return expired
}

// BestBid returns the highest resting bid price for an item.
func (b *Book) BestBid(item types.ItemID) optional.Option[decimal.Decimal] {
	return b.bestPrice(item, types.SideBid)
}

// BestAsk returns the lowest resting ask price for an item.
func (b *Book) BestAsk(item types.ItemID) optional.Option[decimal.Decimal] {
	return b.bestPrice(item, types.SideAsk)
}

func (b *Book) bestPrice(item types.ItemID, side types.Side) optional.Option[decimal.Decimal] {
	ib := b.items[item]
	if ib == nil {
		return optional.None[decimal.Decimal]()
	}

	best := ib.sideFor(side).best()
	if best == nil {
		return optional.None[decimal.Decimal]()
	}

	return optional.Some(best.price)
}

// LastPrice returns the price of the most recent transaction on an item.
func (b *Book) LastPrice(item types.ItemID) optional.Option[decimal.Decimal] {
	price, ok := b.lastPrice[item]
	if !ok {
		return optional.None[decimal.Decimal]()
	}

	return optional.Some(price)
}

// Quote assembles the visible top of book for an item.
func (b *Book) Quote(item types.ItemID) types.Quote {
	return types.Quote{
		Bid:  b.BestBid(item),
		Ask:  b.BestAsk(item),
		Last: b.LastPrice(item),
	}
}

// PendingOrders returns how many orders are resting across all items.
func (b *Book) PendingOrders() int64 {
	return int64(len(b.orders))
}

// Depth returns the number of resting bids and asks for an item.
func (b *Book) Depth(item types.ItemID) (bids, asks int64) {
	ib := b.items[item]
	if ib == nil {
		return 0, 0
	}

	return ib.bids.orderCount(), ib.asks.orderCount()
}

// RestingOrders returns a copy of every resting order ordered by Seq, the
// serializable book snapshot used by checkpoints.
func (b *Book) RestingOrders() []types.Order {
	orders := make([]types.Order, 0, len(b.orders))
	for _, o := range b.orders {
		orders = append(orders, *o)
	}

	sort.Slice(orders, func(i, j int) bool { return orders[i].Seq < orders[j].Seq })

	return orders
}

// Restore rebuilds the book from a checkpoint snapshot. Resting orders keep
// their original Seq so time priority is preserved across a resume, and the
// sequence counters continue past the highest seen values.
func (b *Book) Restore(orders []types.Order, lastPrices map[types.ItemID]decimal.Decimal, nextTxID int64) {
	b.items = make(map[types.ItemID]*itemBook)
	b.orders = make(map[int64]*types.Order)
	b.lastPrice = make(map[types.ItemID]decimal.Decimal)

	sorted := make([]types.Order, len(orders))
	copy(sorted, orders)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	for _, o := range sorted {
		resting := o
		ib := b.items[o.ItemID]
		if ib == nil {
			ib = newItemBook()
			b.items[o.ItemID] = ib
		}
		ib.sideFor(o.Side).getOrCreate(o.Price).append(&resting)
		b.orders[resting.ID] = &resting

		if o.Seq >= b.nextSeq {
			b.nextSeq = o.Seq + 1
		}
	}

	for item, price := range lastPrices {
		b.lastPrice[item] = price
	}

	if nextTxID > b.nextTxID {
		b.nextTxID = nextTxID
	}
}

// NextTxID exposes the transaction counter for checkpointing.
func (b *Book) NextTxID() int64 {
	return b.nextTxID
}

// LastPrices returns a copy of the per-item last transaction prices.
func (b *Book) LastPrices() map[types.ItemID]decimal.Decimal {
	out := make(map[types.ItemID]decimal.Decimal, len(b.lastPrice))
	for k, v := range b.lastPrice {
		out[k] = v
	}

	return out
}
