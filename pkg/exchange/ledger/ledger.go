// Package ledger implements the balance ledger: an append-only set of signed
// transfers per (owner, currency), with the balance of an owner defined as
// the running sum of their transfers. It can run purely in memory or write
// through to a Pebble journal for durability.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avrellon/coincentral/pkg/util"
)

// Transfer is one signed ledger entry. Transfers are never mutated or
// deleted once appended.
type Transfer struct {
	ID        string          `json:"id"`
	Owner     string          `json:"owner"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type balanceKey struct {
	Owner    string
	Currency string
}

// Ledger keeps running balances in memory and optionally journals every
// transfer to Pebble. Appends of a batch are all-or-nothing: the journal
// batch commits first, in-memory balances update after.
type Ledger struct {
	mu       sync.RWMutex
	balances map[balanceKey]decimal.Decimal
	count    uint64
	store    *Store
	clock    util.Clock
}

// New creates an in-memory ledger with no persistence.
func New() *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]decimal.Decimal),
		clock:    util.RealClock{},
	}
}

// Open creates a Pebble-backed ledger at the given path, replaying the
// stored balance snapshots.
func Open(path string) (*Ledger, error) {
	store, err := newStore(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger store: %w", err)
	}

	balances, count, err := store.load()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load ledger state: %w", err)
	}

	return &Ledger{
		balances: balances,
		count:    count,
		store:    store,
		clock:    util.RealClock{},
	}, nil
}

// Close closes the underlying journal, if any.
func (l *Ledger) Close() error {
	if l.store == nil {
		return nil
	}
	return l.store.Close()
}

// Balance returns the current net balance of owner in the given currency or
// asset. Unknown pairs are zero.
func (l *Ledger) Balance(owner, currency string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{owner, currency}]
}

// Total returns the sum of all owners' balances in one currency. Invariant
// under trades; moved only by external deposits and withdrawals.
func (l *Ledger) Total(currency string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := decimal.Zero
	for k, v := range l.balances {
		if k.Currency == currency {
			total = total.Add(v)
		}
	}
	return total
}

// Transfers returns the journaled transfers in append order, newest last,
// capped at limit (0 means all). A ledger without a journal has no history
// to return.
func (l *Ledger) Transfers(limit int) ([]Transfer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.store == nil {
		return nil, nil
	}
	return l.store.Transfers(limit)
}

// Count returns the number of transfers appended over the ledger's lifetime.
func (l *Ledger) Count() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Append records a single signed transfer and returns it.
func (l *Ledger) Append(owner, currency string, amount decimal.Decimal) (*Transfer, error) {
	ts := []Transfer{{Owner: owner, Currency: currency, Amount: amount}}
	if err := l.AppendAll(ts); err != nil {
		return nil, err
	}
	return &ts[0], nil
}

// AppendAll records a group of transfers as one atomic unit: either every
// entry lands in the journal and the balances, or none do. IDs and
// timestamps are assigned in place.
func (l *Ledger) AppendAll(transfers []Transfer) error {
	if len(transfers) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	updated := make(map[balanceKey]decimal.Decimal)
	for i := range transfers {
		t := &transfers[i]
		t.ID = uuid.NewString()
		t.CreatedAt = now

		k := balanceKey{t.Owner, t.Currency}
		cur, staged := updated[k]
		if !staged {
			cur = l.balances[k]
		}
		updated[k] = cur.Add(t.Amount)
	}

	if l.store != nil {
		if err := l.store.appendBatch(transfers, updated, l.count+uint64(len(transfers))); err != nil {
			return fmt.Errorf("journal transfers: %w", err)
		}
	}

	for k, v := range updated {
		l.balances[k] = v
	}
	l.count += uint64(len(transfers))
	return nil
}
