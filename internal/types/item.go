package types

import (
	"github.com/shopspring/decimal"
)

// ItemID uniquely identifies a collectible item in the catalog.
type ItemID string

// Category groups collectible items for agent preferences.
type Category string

const (
	CategoryCards     Category = "cards"
	CategoryFigurines Category = "figurines"
	CategoryComics    Category = "comics"
	CategoryToys      Category = "toys"
	CategoryArt       Category = "art"
)

// AllCategories lists every catalog category in a fixed order.
// The order matters: the registry cycles through it deterministically.
var AllCategories = []Category{
	CategoryCards,
	CategoryFigurines,
	CategoryComics,
	CategoryToys,
	CategoryArt,
}

// Item is a tradable collectible. Immutable after creation; orders and
// transactions reference it by ID.
type Item struct {
	ID        ItemID          `yaml:"id" json:"id" csv:"id" validate:"required"`
	Name      string          `yaml:"name" json:"name" csv:"name" validate:"required"`
	Category  Category        `yaml:"category" json:"category" csv:"category" validate:"required,oneof=cards figurines comics toys art"`
	Edition   string          `yaml:"edition" json:"edition" csv:"edition"`
	BaseValue decimal.Decimal `yaml:"base_value" json:"base_value" csv:"base_value"`
}
