// Package book holds the in-memory view of open orders, grouped by owning
// strategy. Insertion order within a strategy is significant: the most
// recently touched order sits at the end, which is what "replace the latest
// order" helpers rely on.
package book

import (
	"time"

	"tmatic/internal/event"
	"tmatic/internal/instrument"
)

// OpenOrder is the engine's view of one working order.
type OpenOrder struct {
	Strategy     string
	ClOrdID      string
	OrderID      string
	Instrument   instrument.Key
	Ticker       string
	Category     instrument.Category
	Side         event.Side
	Price        float64
	OrderQty     float64
	LeavesQty    float64
	TransactTime time.Time
}

type strategyOrders struct {
	byID  map[string]*OpenOrder
	order []string // clOrdIDs, oldest first
}

// Book maps (strategy, clOrdID) to open orders. Not safe for concurrent use;
// callers serialize through the engine's write lock.
type Book struct {
	strategies map[string]*strategyOrders
}

func New() *Book {
	return &Book{strategies: make(map[string]*strategyOrders)}
}

// Upsert inserts the order or overwrites the existing entry in place,
// preserving its position within the strategy.
func (b *Book) Upsert(o OpenOrder) {
	s := b.strategies[o.Strategy]
	if s == nil {
		s = &strategyOrders{byID: make(map[string]*OpenOrder)}
		b.strategies[o.Strategy] = s
	}
	if cur, ok := s.byID[o.ClOrdID]; ok {
		*cur = o
		return
	}
	cp := o
	s.byID[o.ClOrdID] = &cp
	s.order = append(s.order, o.ClOrdID)
}

// Find returns a copy of the order, if present.
func (b *Book) Find(strategy, clOrdID string) (OpenOrder, bool) {
	if s := b.strategies[strategy]; s != nil {
		if o, ok := s.byID[clOrdID]; ok {
			return *o, true
		}
	}
	return OpenOrder{}, false
}

// FindByOrderID scans all strategies for a matching exchange order id. The
// open-order count is bounded by active strategies times orders per strategy,
// so the linear scan is acceptable.
func (b *Book) FindByOrderID(orderID string) (OpenOrder, bool) {
	if orderID == "" {
		return OpenOrder{}, false
	}
	for _, s := range b.strategies {
		for _, o := range s.byID {
			if o.OrderID == orderID {
				return *o, true
			}
		}
	}
	return OpenOrder{}, false
}

// Remove evicts the order. Fully filled and canceled orders must be removed
// immediately so memory stays bounded by working-order count.
func (b *Book) Remove(strategy, clOrdID string) bool {
	s := b.strategies[strategy]
	if s == nil {
		return false
	}
	if _, ok := s.byID[clOrdID]; !ok {
		return false
	}
	delete(s.byID, clOrdID)
	for i, id := range s.order {
		if id == clOrdID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if len(s.byID) == 0 {
		delete(b.strategies, strategy)
	}
	return true
}

// MoveToRecent shifts the order to the most-recently-touched position within
// its strategy.
func (b *Book) MoveToRecent(strategy, clOrdID string) bool {
	s := b.strategies[strategy]
	if s == nil {
		return false
	}
	if _, ok := s.byID[clOrdID]; !ok {
		return false
	}
	for i, id := range s.order {
		if id == clOrdID {
			s.order = append(append(s.order[:i:i], s.order[i+1:]...), clOrdID)
			return true
		}
	}
	return false
}

// Mutate applies fn to the stored order in place.
func (b *Book) Mutate(strategy, clOrdID string, fn func(*OpenOrder)) bool {
	s := b.strategies[strategy]
	if s == nil {
		return false
	}
	o, ok := s.byID[clOrdID]
	if !ok {
		return false
	}
	fn(o)
	return true
}

// Orders returns copies of a strategy's open orders, oldest first.
func (b *Book) Orders(strategy string) []OpenOrder {
	s := b.strategies[strategy]
	if s == nil {
		return nil
	}
	out := make([]OpenOrder, 0, len(s.order))
	for _, id := range s.order {
		if o, ok := s.byID[id]; ok {
			out = append(out, *o)
		}
	}
	return out
}

// All returns copies of every open order grouped by strategy.
func (b *Book) All() map[string][]OpenOrder {
	out := make(map[string][]OpenOrder, len(b.strategies))
	for name := range b.strategies {
		out[name] = b.Orders(name)
	}
	return out
}

// Len counts open orders across all strategies.
func (b *Book) Len() int {
	n := 0
	for _, s := range b.strategies {
		n += len(s.byID)
	}
	return n
}

// Contains reports whether the clOrdID is tracked under any strategy. The
// engine uses it to reclassify a repeated New as a Replaced on exchanges that
// never emit a distinct replaced status.
func (b *Book) Contains(clOrdID string) bool {
	for _, s := range b.strategies {
		if _, ok := s.byID[clOrdID]; ok {
			return true
		}
	}
	return false
}
