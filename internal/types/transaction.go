package types

import (
	"github.com/shopspring/decimal"
)

// Transaction is the atomic unit of the market's history: one crossing of a
// bid and an ask. Immutable once created.
//
// Seq orders transactions globally; together with Step it defines the
// canonical ordering of the run's transaction log.
type Transaction struct {
	ID          int64           `yaml:"id" json:"id" csv:"id"`
	BuyOrderID  int64           `yaml:"buy_order_id" json:"buy_order_id" csv:"buy_order_id"`
	SellOrderID int64           `yaml:"sell_order_id" json:"sell_order_id" csv:"sell_order_id"`
	BuyerID     AgentID         `yaml:"buyer_id" json:"buyer_id" csv:"buyer_id"`
	SellerID    AgentID         `yaml:"seller_id" json:"seller_id" csv:"seller_id"`
	ItemID      ItemID          `yaml:"item_id" json:"item_id" csv:"item_id"`
	Price       decimal.Decimal `yaml:"price" json:"price" csv:"price"`
	Quantity    int64           `yaml:"quantity" json:"quantity" csv:"quantity"`
	Step        int64           `yaml:"step" json:"step" csv:"step"`
	Seq         int64           `yaml:"seq" json:"seq" csv:"seq"`
}

// Value returns price times quantity.
func (t Transaction) Value() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}
