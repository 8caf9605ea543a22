// Package engine is the order-matching and settlement core: it matches
// compatible buy/sell orders within a currency pair, moves funds between the
// counterparties through the balance ledger, and maintains the derived
// active flag of every resting order.
package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/avrellon/coincentral/pkg/exchange/ledger"
	"github.com/avrellon/coincentral/pkg/exchange/order"
	"github.com/avrellon/coincentral/pkg/util"
)

var (
	// ErrOrderNotFound is returned for operations on an order that does not
	// exist, including one already fully filled and deleted.
	ErrOrderNotFound = errors.New("order not found")

	// ErrNotEligible is returned by Activate when the order is already
	// active, or when recomputation shows the owner still cannot fund it.
	ErrNotEligible = errors.New("order not eligible for activation")
)

// Ledger is the balance capability the engine consumes: current net balance
// per (owner, currency) and atomic appends of signed transfers.
type Ledger interface {
	Balance(owner, currency string) decimal.Decimal
	Append(owner, currency string, amount decimal.Decimal) (*ledger.Transfer, error)
	AppendAll(transfers []ledger.Transfer) error
}

// Config carries the engine's collaborators. Zero values get sane defaults.
type Config struct {
	// Asset is the symbol of the single traded asset, e.g. "BTC". Orders
	// quote it against their own Currency.
	Asset string

	// Currencies restricts the quote currencies accepted at order creation.
	// Empty means any.
	Currencies []string

	Logger  *zap.SugaredLogger
	Clock   util.Clock
	Journal TradeJournal
}

// Engine serializes every mutating operation behind one mutex: execution and
// activation share ledger and order state, and a single traded asset couples
// all currency pairs through the asset balances, so one settle step is one
// critical section. Within a step, every transfer append is atomic and
// in-memory state mutates only after the append succeeds, so a concurrent
// reader can never observe a half-applied trade.
type Engine struct {
	mu sync.Mutex

	asset      string
	currencies map[string]struct{}
	ledger     Ledger
	book       *order.Book
	trades     []Trade

	log     *zap.SugaredLogger
	clock   util.Clock
	journal TradeJournal
	onTrade func(Trade)
}

// New builds an engine over the given ledger.
func New(led Ledger, cfg Config) *Engine {
	if cfg.Asset == "" {
		cfg.Asset = "BTC"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}

	var currencies map[string]struct{}
	if len(cfg.Currencies) > 0 {
		currencies = make(map[string]struct{}, len(cfg.Currencies))
		for _, c := range cfg.Currencies {
			currencies[c] = struct{}{}
		}
	}

	return &Engine{
		asset:      cfg.Asset,
		currencies: currencies,
		ledger:     led,
		book:       order.NewBook(),
		log:        cfg.Logger,
		clock:      cfg.Clock,
		journal:    cfg.Journal,
	}
}

// Asset returns the traded asset symbol.
func (e *Engine) Asset() string { return e.asset }

// SubscribeTrades registers a callback invoked for every executed trade.
// Must be set before the engine starts serving; the callback runs inside the
// settle step and must not block.
func (e *Engine) SubscribeTrades(fn func(Trade)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrade = fn
}

// CreateOrder validates and registers a new resting order. The active flag
// is derived from the owner's current balance immediately; creation never
// triggers execution.
func (e *Engine) CreateOrder(owner string, category order.Category, currency string, amount, ppc decimal.Decimal) (*order.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.currencies != nil {
		if _, ok := e.currencies[currency]; !ok {
			return nil, &order.ValidationError{Field: "currency", Reason: fmt.Sprintf("unsupported currency %q", currency)}
		}
	}

	o, err := order.New(owner, category, currency, amount, ppc, e.clock.Now())
	if err != nil {
		return nil, err
	}
	o.Active = e.eligible(o)
	e.book.Insert(o)

	e.log.Infow("order_created",
		"id", o.ID, "owner", owner, "category", category.String(),
		"currency", currency, "amount", amount.String(), "ppc", ppc.String(),
		"active", o.Active)
	return snapshot(o), nil
}

// Cancel removes a resting order. No funds move: balances are only ever
// consulted, never reserved.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.book.Remove(id) {
		return ErrOrderNotFound
	}
	e.log.Infow("order_cancelled", "id", id)
	return nil
}

// UpdatePrice re-prices a resting order. The minimal-ppc rule applies to the
// write; the active flag is re-derived from the new price. No execution is
// triggered.
func (e *Engine) UpdatePrice(id string, ppc decimal.Decimal) (*order.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := e.book.Get(id)
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if err := order.ValidatePpc(ppc, o.Currency); err != nil {
		return nil, err
	}

	o.Ppc = ppc
	o.Active = e.eligible(o)
	e.log.Infow("order_repriced", "id", id, "ppc", ppc.String(), "active", o.Active)
	return snapshot(o), nil
}

// Execute attempts to fill the order against the best compatible
// counter-orders, sweeping until liquidity or eligibility is exhausted.
// An inactive order or one without a match is a silent no-op: zero trades,
// nil error.
func (e *Engine) Execute(id string) ([]Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.book.Get(id) == nil {
		return nil, ErrOrderNotFound
	}
	return e.executeLocked(id)
}

// Activate re-checks an inactive order's funding and, if eligible, flips it
// active and immediately attempts execution, so a deposit that restored
// sufficient funds can trigger a trade in the same call. The returned order
// reflects the post-execution state; nil with a nil error means the
// activation filled the order completely and it no longer exists.
func (e *Engine) Activate(id string) (*order.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := e.book.Get(id)
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if o.Active {
		return nil, fmt.Errorf("%w: order %s is already active", ErrNotEligible, id)
	}
	if !e.eligible(o) {
		return nil, fmt.Errorf("%w: insufficient balance to fund order %s", ErrNotEligible, id)
	}

	o.Active = true
	e.log.Infow("order_activated", "id", id, "owner", o.Owner)

	if _, err := e.executeLocked(id); err != nil {
		return snapshot(e.book.Get(id)), err
	}
	return snapshot(e.book.Get(id)), nil
}

// MatchingOrders returns the compatible counter-orders for the given order,
// best first. Read-only; used by diagnostics and the API.
func (e *Engine) MatchingOrders(id string) ([]*order.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := e.book.Get(id)
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return snapshotAll(e.book.MatchingOrders(o)), nil
}

// IsActive reports the order's current activation flag.
func (e *Engine) IsActive(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := e.book.Get(id)
	if o == nil {
		return false, ErrOrderNotFound
	}
	return o.Active, nil
}

// Order returns a snapshot of the order with the given id.
func (e *Engine) Order(id string) (*order.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := e.book.Get(id)
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return snapshot(o), nil
}

// Orders returns a snapshot of every resting order.
func (e *Engine) Orders() []*order.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotAll(e.book.All())
}

// OrdersByOwner returns snapshots of the owner's resting orders.
func (e *Engine) OrdersByOwner(owner string) []*order.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotAll(e.book.ByOwner(owner))
}

// Trades returns the most recent trades, newest last. limit <= 0 means all.
func (e *Engine) Trades(limit int) []Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.trades)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Trade, n)
	copy(out, e.trades[len(e.trades)-n:])
	return out
}

// Balance returns the owner's current net balance in a currency or asset.
func (e *Engine) Balance(owner, currency string) decimal.Decimal {
	return e.ledger.Balance(owner, currency)
}

// Deposit records an external credit and re-derives activation for the
// owner's live orders. Deposits never flip an order active by themselves;
// that transition goes through Activate.
func (e *Engine) Deposit(owner, currency string, amount decimal.Decimal) (*ledger.Transfer, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("deposit amount must be positive: %s", amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	t, err := e.ledger.Append(owner, currency, amount)
	if err != nil {
		return nil, err
	}
	e.refreshOwner(owner)

	e.log.Infow("deposit", "owner", owner, "currency", currency, "amount", amount.String())
	return t, nil
}

// Withdraw records an external debit. A withdrawal that would push the
// balance below zero is rejected; one that leaves an order under-funded
// flips that order inactive.
func (e *Engine) Withdraw(owner, currency string, amount decimal.Decimal) (*ledger.Transfer, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("withdrawal amount must be positive: %s", amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	bal := e.ledger.Balance(owner, currency)
	if bal.LessThan(amount) {
		return nil, fmt.Errorf("insufficient balance: have %s %s, need %s", bal, currency, amount)
	}

	t, err := e.ledger.Append(owner, currency, amount.Neg())
	if err != nil {
		return nil, err
	}
	e.refreshOwner(owner)

	e.log.Infow("withdrawal", "owner", owner, "currency", currency, "amount", amount.String())
	return t, nil
}

// fundsCurrency is where the owner's money for this order lives: the quote
// currency for a buy, the traded asset for a sell.
func (e *Engine) fundsCurrency(o *order.Order) string {
	if o.Category == order.Buy {
		return o.Currency
	}
	return e.asset
}

// eligible is the activation predicate: the owner currently holds at least
// the funds required to settle the order's full remaining amount at its own
// price. Pure read of the live balance; callers decide what to do with it.
func (e *Engine) eligible(o *order.Order) bool {
	bal := e.ledger.Balance(o.Owner, e.fundsCurrency(o))
	return bal.GreaterThanOrEqual(o.RequiredFunds())
}

// snapshot returns a detached copy of a live order. Execution mutates book
// state under the engine mutex; handing out the live pointer would let a
// caller read amount and active mid-settle, so every method that returns
// order state returns a copy instead.
func snapshot(o *order.Order) *order.Order {
	if o == nil {
		return nil
	}
	c := *o
	return &c
}

func snapshotAll(orders []*order.Order) []*order.Order {
	out := make([]*order.Order, len(orders))
	for i, o := range orders {
		out[i] = snapshot(o)
	}
	return out
}

// refreshOwner re-derives activation for all of an owner's live orders after
// a balance-changing event. Only the downward flip is applied here: going
// active triggers execution, which happens solely through explicit writes or
// Activate.
func (e *Engine) refreshOwner(owner string) {
	for _, o := range e.book.ByOwner(owner) {
		if o.Active && !e.eligible(o) {
			o.Active = false
			e.log.Infow("order_deactivated", "id", o.ID, "owner", owner)
		}
	}
}
