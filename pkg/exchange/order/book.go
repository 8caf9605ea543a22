package order

import (
	"sort"
	"sync"
)

// Book is the registry of live orders and the matcher over them. It holds no
// balance knowledge; activation flags are maintained by the engine, the book
// only filters and ranks on them.
type Book struct {
	mu      sync.RWMutex
	orders  map[string]*Order
	nextSeq uint64
}

func NewBook() *Book {
	return &Book{orders: make(map[string]*Order)}
}

// Insert adds an order and assigns its tie-break sequence.
func (b *Book) Insert(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSeq++
	o.seq = b.nextSeq
	b.orders[o.ID] = o
}

// Get returns the live order with the given id, or nil.
func (b *Book) Get(id string) *Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.orders[id]
}

// Remove deletes an order from the book. Reports whether it was present.
func (b *Book) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.orders[id]; !ok {
		return false
	}
	delete(b.orders, id)
	return true
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.orders)
}

// ByOwner returns all live orders belonging to owner.
func (b *Book) ByOwner(owner string) []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []*Order
	for _, o := range b.orders {
		if o.Owner == owner {
			out = append(out, o)
		}
	}
	return out
}

// All returns a snapshot slice of every live order.
func (b *Book) All() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	return out
}

// MatchingOrders returns the active counter-orders o could trade against,
// best first. Candidates are the opposite category in the same currency with
// a compatible price, owned by someone else. Ranking is the execution
// priority contract: for a buy, cheapest sell first; for a sell, highest
// paying buy first; ties go to the earliest created order.
func (b *Book) MatchingOrders(o *Order) []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var candidates []*Order
	for _, c := range b.orders {
		if c.Category != o.Category.Opposite() {
			continue
		}
		if c.Currency != o.Currency {
			continue
		}
		if c.Owner == o.Owner { // self-matching is forbidden
			continue
		}
		if !c.Active {
			continue
		}
		if !o.PriceCompatible(c) {
			continue
		}
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, z := candidates[i], candidates[j]
		if !a.Ppc.Equal(z.Ppc) {
			if o.Category == Buy {
				return a.Ppc.LessThan(z.Ppc) // buy wants the cheapest sell
			}
			return a.Ppc.GreaterThan(z.Ppc) // sell wants the best paying buy
		}
		if !a.CreatedAt.Equal(z.CreatedAt) {
			return a.CreatedAt.Before(z.CreatedAt)
		}
		return a.seq < z.seq
	})

	return candidates
}
