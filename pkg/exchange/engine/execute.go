package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/avrellon/coincentral/pkg/exchange/ledger"
	"github.com/avrellon/coincentral/pkg/exchange/order"
)

// tick is the smallest representable asset quantity at ledger precision.
var tick = decimal.New(1, -order.Precision) // 0.00001

// executeLocked runs the matching sweep for one order: fill against the best
// counter-order, re-derive eligibility, repeat. Termination is guaranteed
// because every settle step exchanges a strictly positive quantity, reducing
// the order's remaining amount. Caller holds e.mu.
func (e *Engine) executeLocked(id string) ([]Trade, error) {
	var produced []Trade
	for {
		o := e.book.Get(id)
		if o == nil || !o.Active {
			break
		}
		counters := e.book.MatchingOrders(o)
		if len(counters) == 0 {
			break
		}
		t, err := e.settle(o, counters[0])
		if err != nil {
			return produced, err
		}
		if t == nil { // quantity exhausted or rounded to zero
			break
		}
		produced = append(produced, *t)
	}
	return produced, nil
}

// settle executes one fill between the initiating order and its matched
// counter-order as one atomic unit: four ledger transfers, one trade record,
// both order amounts reduced, activation re-derived for everyone touched.
// Returns nil when the matched quantity comes out non-positive.
//
// The settlement price is the counter-order's: the maker was already resting,
// its price is honored. The quantity is capped by both remaining amounts and
// both parties' live balances, read fresh here, then truncated to ledger
// precision. The quote leg is rounded to the same precision; if that rounding
// would overdraw the buyer, the quantity steps down one tick. Sub-precision
// residue is forfeited.
func (e *Engine) settle(o, counter *order.Order) (*Trade, error) {
	buyOrd, sellOrd := o, counter
	if o.Category == order.Sell {
		buyOrd, sellOrd = counter, o
	}
	price := counter.Ppc

	buyerBal := e.ledger.Balance(buyOrd.Owner, buyOrd.Currency)
	sellerBal := e.ledger.Balance(sellOrd.Owner, e.asset)

	qty := decimal.Min(
		o.Amount,
		counter.Amount,
		buyerBal.Div(price),
		sellerBal,
	).Truncate(order.Precision)
	if !qty.IsPositive() {
		return nil, nil
	}

	cost := qty.Mul(price).Round(order.Precision)
	for cost.GreaterThan(buyerBal) {
		qty = qty.Sub(tick)
		if !qty.IsPositive() {
			return nil, nil
		}
		cost = qty.Mul(price).Round(order.Precision)
	}

	transfers := []ledger.Transfer{
		{Owner: buyOrd.Owner, Currency: buyOrd.Currency, Amount: cost.Neg()},
		{Owner: sellOrd.Owner, Currency: sellOrd.Currency, Amount: cost},
		{Owner: sellOrd.Owner, Currency: e.asset, Amount: qty.Neg()},
		{Owner: buyOrd.Owner, Currency: e.asset, Amount: qty},
	}
	if err := e.ledger.AppendAll(transfers); err != nil {
		// Nothing was applied; the step rolls back by never having started.
		return nil, err
	}

	trade := Trade{
		ID:          uuid.NewString(),
		Currency:    o.Currency,
		BuyOrderID:  buyOrd.ID,
		SellOrderID: sellOrd.ID,
		Buyer:       buyOrd.Owner,
		Seller:      sellOrd.Owner,
		Amount:      qty,
		Ppc:         price,
		CreatedAt:   e.clock.Now(),
	}
	e.trades = append(e.trades, trade)
	if e.journal != nil {
		if err := e.journal.SaveTrade(trade); err != nil {
			e.log.Errorw("trade_journal_write_failed", "trade", trade.ID, "err", err)
		}
	}

	e.reduceAmount(buyOrd, qty)
	e.reduceAmount(sellOrd, qty)

	// Re-derive activation for both participants if they survived, then
	// sweep both owners' other orders, whose funding just changed too.
	if e.book.Get(buyOrd.ID) != nil {
		buyOrd.Active = e.eligible(buyOrd)
	}
	if e.book.Get(sellOrd.ID) != nil {
		sellOrd.Active = e.eligible(sellOrd)
	}
	e.refreshOwner(buyOrd.Owner)
	e.refreshOwner(sellOrd.Owner)

	e.log.Infow("trade_executed",
		"trade", trade.ID, "currency", trade.Currency,
		"buyer", trade.Buyer, "seller", trade.Seller,
		"amount", qty.String(), "ppc", price.String())

	if e.onTrade != nil {
		e.onTrade(trade)
	}
	return &trade, nil
}

// reduceAmount decreases an order's remaining amount by the filled quantity.
// An order filled down to exactly zero is deleted, never persisted empty.
func (e *Engine) reduceAmount(o *order.Order, delta decimal.Decimal) {
	o.Amount = o.Amount.Sub(delta)
	if o.Amount.IsZero() {
		e.book.Remove(o.ID)
		e.log.Infow("order_filled", "id", o.ID, "owner", o.Owner)
	}
}
