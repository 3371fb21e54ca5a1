// Package registry holds the static catalog of tradable items. The catalog is
// generated once at run start from the seeded stream and is immutable after
// that; orders and transactions reference items by ID.
package registry

import (
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/enchere-labs/marketsim/internal/types"
	"github.com/enchere-labs/marketsim/pkg/errors"
)

const (
	minBaseValue = 5.0
	maxBaseValue = 95.0
)

// Registry is the item catalog.
type Registry struct {
	items []types.Item
	byID  map[types.ItemID]int
}

// Generate creates a catalog of n items, cycling categories in their fixed
// order and drawing base values from the seeded stream. Given the same n and
// rng state it always produces the same catalog.
func Generate(n int64, rng *rand.Rand) *Registry {
	r := &Registry{
		items: make([]types.Item, 0, n),
		byID:  make(map[types.ItemID]int, n),
	}

	for i := int64(0); i < n; i++ {
		category := types.AllCategories[i%int64(len(types.AllCategories))]
		baseValue := decimal.NewFromFloat(minBaseValue + rng.Float64()*(maxBaseValue-minBaseValue)).Round(2)
		edition := rng.Int64N(5) + 1

		item := types.Item{
			ID:        types.ItemID(fmt.Sprintf("item-%03d", i+1)),
			Name:      fmt.Sprintf("Item %d (%s)", i+1, category),
			Category:  category,
			Edition:   fmt.Sprintf("Edition %d", edition),
			BaseValue: baseValue,
		}
		r.byID[item.ID] = len(r.items)
		r.items = append(r.items, item)
	}

	return r
}

// FromItems builds a registry from a fixed item list, used when restoring a
// checkpoint or in tests that need hand-built catalogs.
func FromItems(items []types.Item) *Registry {
	r := &Registry{
		items: make([]types.Item, len(items)),
		byID:  make(map[types.ItemID]int, len(items)),
	}
	copy(r.items, items)
	for i, item := range r.items {
		r.byID[item.ID] = i
	}

	return r
}

// Get returns the item with the given ID.
func (r *Registry) Get(id types.ItemID) (types.Item, error) {
	idx, ok := r.byID[id]
	if !ok {
		return types.Item{}, errors.Newf(errors.ErrCodeUnknownItem, "no item with id %s", id)
	}

	return r.items[idx], nil
}

// Has reports whether the catalog contains the item.
func (r *Registry) Has(id types.ItemID) bool {
	_, ok := r.byID[id]

	return ok
}

// All returns the catalog in generation order. Callers must not mutate it.
func (r *Registry) All() []types.Item {
	return r.items
}

// Len returns the catalog size.
func (r *Registry) Len() int {
	return len(r.items)
}
