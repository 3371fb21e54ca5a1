package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/enchere-labs/marketsim/pkg/errors"
)

// AgentID uniquely identifies a simulation agent.
type AgentID string

// Side is the order side: a bid buys, an ask sells.
type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

// Opposite returns the matching side of the book.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}

	return SideBid
}

// OrderIntent is what an agent's decision phase emits: at most one per step.
// The order book turns an accepted intent into a resting or matched Order.
type OrderIntent struct {
	AgentID  AgentID         `yaml:"agent_id" json:"agent_id" csv:"agent_id" validate:"required"`
	ItemID   ItemID          `yaml:"item_id" json:"item_id" csv:"item_id" validate:"required"`
	Side     Side            `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BID ASK"`
	Price    decimal.Decimal `yaml:"price" json:"price" csv:"price"`
	Quantity int64           `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
}

// Order is an intent accepted by the order book. The book owns it once
// submitted; it is removed on full fill, cancellation or expiry.
//
// Seq is a monotonically increasing counter assigned at submission time and is
// the tie-break between equal-priced orders: price first, earliest Seq second.
// Partial fills reduce Remaining but never touch Seq, so time priority
// survives a partial fill.
type Order struct {
	ID            int64           `yaml:"id" json:"id" csv:"id"`
	AgentID       AgentID         `yaml:"agent_id" json:"agent_id" csv:"agent_id" validate:"required"`
	ItemID        ItemID          `yaml:"item_id" json:"item_id" csv:"item_id" validate:"required"`
	Side          Side            `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BID ASK"`
	Price         decimal.Decimal `yaml:"price" json:"price" csv:"price"`
	Quantity      int64           `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
	Remaining     int64           `yaml:"remaining" json:"remaining" csv:"remaining"`
	StepSubmitted int64           `yaml:"step_submitted" json:"step_submitted" csv:"step_submitted"`
	Seq           int64           `yaml:"seq" json:"seq" csv:"seq"`
}

// IsFilled reports whether the order has no remaining quantity.
func (o Order) IsFilled() bool { return o.Remaining <= 0 }

var intentValidator = validator.New()

// Validate checks the structural fields of an intent before it reaches the
// matching loop. Price and quantity bounds get dedicated codes so rejections
// are attributable in the run log.
func (i OrderIntent) Validate() error {
	if i.Quantity <= 0 {
		return errors.Newf(errors.ErrCodeInvalidQuantity, "quantity must be >= 1, got %d", i.Quantity)
	}

	if i.Price.Sign() <= 0 {
		return errors.Newf(errors.ErrCodeInvalidPrice, "price must be positive, got %s", i.Price)
	}

	if err := intentValidator.Struct(i); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "invalid order intent", err)
	}

	return nil
}
