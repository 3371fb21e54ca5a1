package orderbook

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/enchere-labs/marketsim/internal/types"
)

// level holds the FIFO queue of resting orders at one price.
type level struct {
	price  decimal.Decimal
	queue  []*types.Order
	volume int64
}

func (l *level) append(o *types.Order) {
	l.queue = append(l.queue, o)
	l.volume += o.Remaining
}

func (l *level) remove(orderID int64) *types.Order {
	for i, o := range l.queue {
		if o.ID == orderID {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			l.volume -= o.Remaining

			return o
		}
	}

	return nil
}

func (l *level) empty() bool { return len(l.queue) == 0 }

// bookSide keeps levels sorted best-first: descending prices for bids,
// ascending for asks. Within a level the queue is FIFO, so iteration order is
// exactly price-time priority.
type bookSide struct {
	isBid  bool
	levels []*level
}

func newBookSide(isBid bool) *bookSide {
	return &bookSide{isBid: isBid}
}

// betterOrEqual reports whether price a is at least as good as b for this side.
func (s *bookSide) betterOrEqual(a, b decimal.Decimal) bool {
	if s.isBid {
		return a.GreaterThanOrEqual(b)
	}

	return a.LessThanOrEqual(b)
}

// search returns the index where price sits (or would be inserted).
func (s *bookSide) search(price decimal.Decimal) int {
	return sort.Search(len(s.levels), func(i int) bool {
		return !s.betterOrEqual(s.levels[i].price, price) || s.levels[i].price.Equal(price)
	})
}

func (s *bookSide) getOrCreate(price decimal.Decimal) *level {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].price.Equal(price) {
		return s.levels[i]
	}

	l := &level{price: price}
	s.levels = append(s.levels, nil)
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = l

	return l
}

func (s *bookSide) find(price decimal.Decimal) *level {
	i := s.search(price)
	if i < len(s.levels) && s.levels[i].price.Equal(price) {
		return s.levels[i]
	}

	return nil
}

func (s *bookSide) removeLevel(l *level) {
	for i, candidate := range s.levels {
		if candidate == l {
			s.levels = append(s.levels[:i], s.levels[i+1:]...)

			return
		}
	}
}

func (s *bookSide) best() *level {
	if len(s.levels) == 0 {
		return nil
	}

	return s.levels[0]
}

func (s *bookSide) orderCount() int64 {
	var n int64
	for _, l := range s.levels {
		n += int64(len(l.queue))
	}

	return n
}

// itemBook is the two-sided book for one catalog item.
type itemBook struct {
	bids *bookSide
	asks *bookSide
}

func newItemBook() *itemBook {
	return &itemBook{
		bids: newBookSide(true),
		asks: newBookSide(false),
	}
}

func (b *itemBook) sideFor(s types.Side) *bookSide {
	if s == types.SideBid {
		return b.bids
	}

	return b.asks
}
