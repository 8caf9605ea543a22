package order

import (
	"testing"
	"time"
)

func mkOrder(t *testing.T, owner string, cat Category, currency, amount, ppc string, createdAt time.Time, active bool) *Order {
	t.Helper()
	o, err := New(owner, cat, currency, d(amount), d(ppc), createdAt)
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	o.Active = active
	return o
}

func TestBookInsertGetRemove(t *testing.T) {
	b := NewBook()
	o := mkOrder(t, "alice", Buy, "USD", "10", "1", testNow, true)

	b.Insert(o)
	if b.Len() != 1 {
		t.Fatalf("len = %d, want 1", b.Len())
	}
	if got := b.Get(o.ID); got != o {
		t.Errorf("Get returned a different order")
	}
	if b.Get("nope") != nil {
		t.Errorf("Get of unknown id should be nil")
	}

	if !b.Remove(o.ID) {
		t.Errorf("Remove should report the order was present")
	}
	if b.Remove(o.ID) {
		t.Errorf("second Remove should report absence")
	}
	if b.Len() != 0 {
		t.Errorf("len = %d after remove, want 0", b.Len())
	}
}

func TestBookByOwner(t *testing.T) {
	b := NewBook()
	b.Insert(mkOrder(t, "alice", Buy, "USD", "10", "1", testNow, true))
	b.Insert(mkOrder(t, "alice", Sell, "EUR", "5", "2", testNow, false))
	b.Insert(mkOrder(t, "bob", Buy, "USD", "10", "1", testNow, true))

	if got := len(b.ByOwner("alice")); got != 2 {
		t.Errorf("alice has %d orders, want 2", got)
	}
	if got := len(b.ByOwner("carol")); got != 0 {
		t.Errorf("carol has %d orders, want 0", got)
	}
	if got := len(b.All()); got != 3 {
		t.Errorf("All returned %d, want 3", got)
	}
}

func TestMatchingOrdersFilters(t *testing.T) {
	b := NewBook()
	buy := mkOrder(t, "alice", Buy, "USD", "10", "1.00", testNow, true)
	b.Insert(buy)

	match := mkOrder(t, "bob", Sell, "USD", "10", "0.90", testNow, true)
	b.Insert(match)
	b.Insert(mkOrder(t, "bob", Sell, "USD", "10", "1.10", testNow, true))   // priced out
	b.Insert(mkOrder(t, "bob", Sell, "EUR", "10", "0.90", testNow, true))   // wrong pair
	b.Insert(mkOrder(t, "alice", Sell, "USD", "10", "0.90", testNow, true)) // same owner
	b.Insert(mkOrder(t, "bob", Sell, "USD", "10", "0.80", testNow, false))  // inactive
	b.Insert(mkOrder(t, "carol", Buy, "USD", "10", "1.00", testNow, true))  // same side

	got := b.MatchingOrders(buy)
	if len(got) != 1 {
		t.Fatalf("want exactly one candidate, got %d", len(got))
	}
	if got[0].ID != match.ID {
		t.Errorf("wrong candidate survived the filters")
	}
}

func TestMatchingOrdersPriority(t *testing.T) {
	b := NewBook()

	// For a buy: cheapest sell first, then oldest at equal price.
	buy := mkOrder(t, "alice", Buy, "USD", "10", "1.00", testNow, true)
	b.Insert(buy)

	late := mkOrder(t, "bob", Sell, "USD", "10", "0.90", testNow.Add(time.Minute), true)
	b.Insert(late)
	early := mkOrder(t, "carol", Sell, "USD", "10", "0.90", testNow, true)
	b.Insert(early)
	cheapest := mkOrder(t, "dave", Sell, "USD", "10", "0.80", testNow.Add(time.Hour), true)
	b.Insert(cheapest)

	got := b.MatchingOrders(buy)
	if len(got) != 3 {
		t.Fatalf("want 3 candidates, got %d", len(got))
	}
	if got[0].ID != cheapest.ID || got[1].ID != early.ID || got[2].ID != late.ID {
		t.Errorf("priority wrong: got %s, %s, %s", got[0].Owner, got[1].Owner, got[2].Owner)
	}

	// For a sell: highest paying buy first.
	sell := mkOrder(t, "erin", Sell, "USD", "10", "0.50", testNow, true)
	b.Insert(sell)

	low := mkOrder(t, "frank", Buy, "USD", "10", "0.60", testNow, true)
	b.Insert(low)
	high := mkOrder(t, "grace", Buy, "USD", "10", "0.70", testNow, true)
	b.Insert(high)

	got = b.MatchingOrders(sell)
	if len(got) != 3 {
		t.Fatalf("want 3 buy candidates, got %d", len(got))
	}
	if got[0].ID != buy.ID || got[1].ID != high.ID || got[2].ID != low.ID {
		t.Errorf("sell priority wrong: got %s, %s, %s", got[0].Owner, got[1].Owner, got[2].Owner)
	}
}

func TestMatchingOrdersSeqTieBreak(t *testing.T) {
	b := NewBook()
	buy := mkOrder(t, "alice", Buy, "USD", "10", "1.00", testNow, true)
	b.Insert(buy)

	// Identical price and timestamp: insertion order decides.
	first := mkOrder(t, "bob", Sell, "USD", "10", "0.90", testNow, true)
	second := mkOrder(t, "carol", Sell, "USD", "10", "0.90", testNow, true)
	b.Insert(first)
	b.Insert(second)

	got := b.MatchingOrders(buy)
	if len(got) != 2 {
		t.Fatalf("want 2 candidates, got %d", len(got))
	}
	if got[0].ID != first.ID || got[1].ID != second.ID {
		t.Errorf("equal price and time should fall back to insertion order")
	}
}
