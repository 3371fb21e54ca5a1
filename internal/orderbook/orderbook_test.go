package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/enchere-labs/marketsim/internal/types"
	"github.com/enchere-labs/marketsim/pkg/errors"
)

// stubAccounts is a fixed balance sheet for matching tests.
type stubAccounts struct {
	cash      map[types.AgentID]decimal.Decimal
	inventory map[types.AgentID]map[types.ItemID]int64
}

func (s *stubAccounts) CashBalance(id types.AgentID) decimal.Decimal {
	return s.cash[id]
}

func (s *stubAccounts) InventoryQty(id types.AgentID, item types.ItemID) int64 {
	return s.inventory[id][item]
}

type stubCatalog struct {
	known map[types.ItemID]bool
}

func (s *stubCatalog) Has(id types.ItemID) bool { return s.known[id] }

type OrderBookTestSuite struct {
	suite.Suite

	accounts *stubAccounts
	book     *Book
	nextID   int64
}

func TestOrderBookSuite(t *testing.T) {
	suite.Run(t, new(OrderBookTestSuite))
}

func (suite *OrderBookTestSuite) SetupTest() {
	suite.accounts = &stubAccounts{
		cash: map[types.AgentID]decimal.Decimal{
			"buyer-1":  decimal.NewFromInt(1000),
			"buyer-2":  decimal.NewFromInt(1000),
			"buyer-3":  decimal.NewFromInt(1000),
			"seller-1": decimal.NewFromInt(100),
			"seller-2": decimal.NewFromInt(100),
		},
		inventory: map[types.AgentID]map[types.ItemID]int64{
			"seller-1": {"item-001": 10},
			"seller-2": {"item-001": 10},
			"buyer-1":  {},
			"buyer-2":  {},
			"buyer-3":  {},
		},
	}
	suite.book = New(suite.accounts, &stubCatalog{known: map[types.ItemID]bool{"item-001": true}}, Config{})
	suite.nextID = 0
}

func (suite *OrderBookTestSuite) submit(agent types.AgentID, side types.Side, price float64, qty int64) ([]types.Transaction, error) {
	suite.nextID++

	return suite.book.Submit(types.Order{
		ID:       suite.nextID,
		AgentID:  agent,
		ItemID:   "item-001",
		Side:     side,
		Price:    decimal.NewFromFloat(price),
		Quantity: qty,
	})
}

func (suite *OrderBookTestSuite) mustSubmit(agent types.AgentID, side types.Side, price float64, qty int64) []types.Transaction {
	txs, err := suite.submit(agent, side, price, qty)
	suite.Require().NoError(err)

	return txs
}

func (suite *OrderBookTestSuite) TestRestingOrderDoesNotMatch() {
	txs := suite.mustSubmit("buyer-1", types.SideBid, 20, 2)
	suite.Empty(txs)
	suite.Equal(int64(1), suite.book.PendingOrders())

	bid := suite.book.BestBid("item-001")
	suite.True(bid.IsSome())
	suite.True(bid.Unwrap().Equal(decimal.NewFromInt(20)))
	suite.True(suite.book.BestAsk("item-001").IsNone())
}

func (suite *OrderBookTestSuite) TestCrossingExecutesAtRestingPrice() {
	suite.mustSubmit("seller-1", types.SideAsk, 15, 3)

	// Bid at 18 crosses the resting ask; execution price is the ask's 15.
	txs := suite.mustSubmit("buyer-1", types.SideBid, 18, 3)
	suite.Require().Len(txs, 1)
	suite.True(txs[0].Price.Equal(decimal.NewFromInt(15)))
	suite.Equal(int64(3), txs[0].Quantity)
	suite.Equal(types.AgentID("buyer-1"), txs[0].BuyerID)
	suite.Equal(types.AgentID("seller-1"), txs[0].SellerID)
	suite.Equal(int64(0), suite.book.PendingOrders())

	last := suite.book.LastPrice("item-001")
	suite.True(last.IsSome())
	suite.True(last.Unwrap().Equal(decimal.NewFromInt(15)))
}

func (suite *OrderBookTestSuite) TestPriceTimePriority() {
	// Two asks at the same price: the earlier one must fill first.
	suite.mustSubmit("seller-1", types.SideAsk, 10, 2)
	suite.mustSubmit("seller-2", types.SideAsk, 10, 2)

	txs := suite.mustSubmit("buyer-1", types.SideBid, 10, 2)
	suite.Require().Len(txs, 1)
	suite.Equal(types.AgentID("seller-1"), txs[0].SellerID)
}

func (suite *OrderBookTestSuite) TestBetterPriceBeatsEarlierTime() {
	suite.mustSubmit("seller-1", types.SideAsk, 12, 2)
	// Later but cheaper: price beats time across levels.
	suite.mustSubmit("seller-2", types.SideAsk, 11, 2)

	txs := suite.mustSubmit("buyer-1", types.SideBid, 12, 2)
	suite.Require().Len(txs, 1)
	suite.Equal(types.AgentID("seller-2"), txs[0].SellerID)
	suite.True(txs[0].Price.Equal(decimal.NewFromInt(11)))
}

func (suite *OrderBookTestSuite) TestGreedyMultiLevelFill() {
	suite.mustSubmit("seller-1", types.SideAsk, 10, 2)
	suite.mustSubmit("seller-2", types.SideAsk, 11, 2)

	txs := suite.mustSubmit("buyer-1", types.SideBid, 12, 3)
	suite.Require().Len(txs, 2)
	suite.True(txs[0].Price.Equal(decimal.NewFromInt(10)))
	suite.Equal(int64(2), txs[0].Quantity)
	suite.True(txs[1].Price.Equal(decimal.NewFromInt(11)))
	suite.Equal(int64(1), txs[1].Quantity)

	// Remainder of seller-2's ask still rests.
	suite.Equal(int64(1), suite.book.PendingOrders())
	bids, asks := suite.book.Depth("item-001")
	suite.Equal(int64(0), bids)
	suite.Equal(int64(1), asks)
}

func (suite *OrderBookTestSuite) TestPartialFillKeepsPriority() {
	suite.mustSubmit("seller-1", types.SideAsk, 10, 5)
	suite.mustSubmit("buyer-1", types.SideBid, 10, 2)

	// seller-1 is partially filled; seller-2 joins the level behind it.
	suite.mustSubmit("seller-2", types.SideAsk, 10, 3)

	txs := suite.mustSubmit("buyer-2", types.SideBid, 10, 3)
	suite.Require().Len(txs, 1)
	suite.Equal(types.AgentID("seller-1"), txs[0].SellerID)
	suite.Equal(int64(3), txs[0].Quantity)
}

func (suite *OrderBookTestSuite) TestSelfTradeSkipped() {
	suite.accounts.inventory["buyer-1"] = map[types.ItemID]int64{"item-001": 5}

	suite.mustSubmit("buyer-1", types.SideAsk, 10, 2)

	// buyer-1's own bid must skip their resting ask and rest instead.
	txs := suite.mustSubmit("buyer-1", types.SideBid, 12, 2)
	suite.Empty(txs)
	suite.Equal(int64(2), suite.book.PendingOrders())
}

func (suite *OrderBookTestSuite) TestDuplicateRejected() {
	suite.mustSubmit("buyer-1", types.SideBid, 10, 1)

	_, err := suite.submit("buyer-1", types.SideBid, 11, 1)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDuplicateOrder))
	suite.Equal(int64(1), suite.book.PendingOrders())

	// Opposite side is fine, and stacking is allowed when configured.
	suite.accounts.inventory["buyer-1"] = map[types.ItemID]int64{"item-001": 5}
	_, err = suite.submit("buyer-1", types.SideAsk, 50, 1)
	suite.NoError(err)

	stacking := New(suite.accounts, &stubCatalog{known: map[types.ItemID]bool{"item-001": true}}, Config{AllowStacking: true})
	_, err = stacking.Submit(types.Order{ID: 100, AgentID: "buyer-1", ItemID: "item-001", Side: types.SideBid, Price: decimal.NewFromInt(10), Quantity: 1})
	suite.NoError(err)
	_, err = stacking.Submit(types.Order{ID: 101, AgentID: "buyer-1", ItemID: "item-001", Side: types.SideBid, Price: decimal.NewFromInt(11), Quantity: 1})
	suite.NoError(err)
}

func (suite *OrderBookTestSuite) TestInsufficientFundsRejectsWholeOrder() {
	suite.accounts.cash["buyer-1"] = decimal.NewFromInt(25)
	suite.mustSubmit("seller-1", types.SideAsk, 10, 2)
	suite.mustSubmit("seller-2", types.SideAsk, 11, 2)

	// Plan costs 10*2 + 11*1 = 31 > 25: the whole submission is rejected
	// and the book is left exactly as it was.
	_, err := suite.submit("buyer-1", types.SideBid, 12, 3)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientFunds))

	bids, asks := suite.book.Depth("item-001")
	suite.Equal(int64(0), bids)
	suite.Equal(int64(2), asks)
	resting := suite.book.RestingOrders()
	suite.Require().Len(resting, 2)
	suite.Equal(int64(2), resting[0].Remaining)
	suite.Equal(int64(2), resting[1].Remaining)
}

func (suite *OrderBookTestSuite) TestInsufficientInventoryRejected() {
	suite.accounts.inventory["seller-1"]["item-001"] = 1
	suite.mustSubmit("buyer-1", types.SideBid, 10, 3)

	_, err := suite.submit("seller-1", types.SideAsk, 9, 3)
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientInventory))

	bids, asks := suite.book.Depth("item-001")
	suite.Equal(int64(1), bids)
	suite.Equal(int64(0), asks)
}

func (suite *OrderBookTestSuite) TestValidationErrors() {
	_, err := suite.submit("buyer-1", types.SideBid, 10, 0)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidQuantity))

	_, err = suite.submit("buyer-1", types.SideBid, 0, 1)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidPrice))

	suite.nextID++
	_, err = suite.book.Submit(types.Order{
		ID: suite.nextID, AgentID: "buyer-1", ItemID: "item-404",
		Side: types.SideBid, Price: decimal.NewFromInt(10), Quantity: 1,
	})
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownItem))
}

func (suite *OrderBookTestSuite) TestCancel() {
	suite.mustSubmit("buyer-1", types.SideBid, 10, 1)
	resting := suite.book.RestingOrders()
	suite.Require().Len(resting, 1)

	suite.NoError(suite.book.Cancel(resting[0].ID))
	suite.Equal(int64(0), suite.book.PendingOrders())
	suite.True(suite.book.BestBid("item-001").IsNone())

	err := suite.book.Cancel(resting[0].ID)
	suite.True(errors.HasCode(err, errors.ErrCodeOrderNotFound))
}

func (suite *OrderBookTestSuite) TestExpire() {
	suite.nextID++
	suite.Require().NoError(suite.bookSubmitAtStep(suite.nextID, "buyer-1", 10, 1, 1))
	suite.nextID++
	suite.Require().NoError(suite.bookSubmitAtStep(suite.nextID, "buyer-2", 11, 1, 5))

	expired := suite.book.Expire(3)
	suite.Require().Len(expired, 1)
	suite.Equal(types.AgentID("buyer-1"), expired[0].AgentID)
	suite.Equal(int64(1), suite.book.PendingOrders())
}

func (suite *OrderBookTestSuite) bookSubmitAtStep(id int64, agent types.AgentID, price float64, qty, step int64) error {
	_, err := suite.book.Submit(types.Order{
		ID: id, AgentID: agent, ItemID: "item-001", Side: types.SideBid,
		Price: decimal.NewFromFloat(price), Quantity: qty, StepSubmitted: step,
	})

	return err
}

func (suite *OrderBookTestSuite) TestRestoreKeepsPriority() {
	suite.mustSubmit("seller-1", types.SideAsk, 10, 2)
	suite.mustSubmit("seller-2", types.SideAsk, 10, 2)
	suite.mustSubmit("buyer-3", types.SideBid, 5, 1)

	snapshot := suite.book.RestingOrders()
	lastPrices := suite.book.LastPrices()

	restored := New(suite.accounts, &stubCatalog{known: map[types.ItemID]bool{"item-001": true}}, Config{})
	restored.Restore(snapshot, lastPrices, suite.book.NextTxID())

	suite.Equal(int64(3), restored.PendingOrders())

	// Time priority survives the round trip: seller-1 still fills first.
	txs, err := restored.Submit(types.Order{
		ID: 50, AgentID: "buyer-1", ItemID: "item-001", Side: types.SideBid,
		Price: decimal.NewFromInt(10), Quantity: 2,
	})
	suite.Require().NoError(err)
	suite.Require().Len(txs, 1)
	suite.Equal(types.AgentID("seller-1"), txs[0].SellerID)
}
