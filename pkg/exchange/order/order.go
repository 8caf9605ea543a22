package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits carried by traded-asset
// quantities and ledger transfers. Matched quantities are truncated to it.
const Precision = 5

// MinPpc is the smallest admissible price-per-coin magnitude.
var MinPpc = decimal.New(1, -4) // 0.0001

// Category is the side of an order: an intent to buy or to sell the traded
// asset against the order's quote currency.
type Category int8

const (
	Buy  Category = 1
	Sell Category = -1
)

func (c Category) String() string {
	switch c {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	}
	return "unknown"
}

// Opposite returns the counter side.
func (c Category) Opposite() Category { return -c }

// ParseCategory parses "buy" or "sell".
func ParseCategory(s string) (Category, error) {
	switch s {
	case "buy":
		return Buy, nil
	case "sell":
		return Sell, nil
	}
	return 0, fmt.Errorf("unknown order category %q", s)
}

// ValidationError reports a rejected order write. Nothing is created or
// updated when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Order is one resting intent to trade: a remaining quantity of the asset and
// a limit price in the quote currency. Amount is always positive while the
// order exists; an order filled down to exactly zero is removed from the
// book, never kept around empty.
type Order struct {
	ID        string
	Owner     string
	Category  Category
	Currency  string // quote currency of the pair
	Amount    decimal.Decimal
	Ppc       decimal.Decimal // price of one asset unit in Currency
	Active    bool
	CreatedAt time.Time

	seq uint64 // book insertion sequence, breaks created-at ties
}

// New validates the fields of a prospective order and builds it. The Active
// flag is left false; the engine derives it from the owner's balance.
func New(owner string, category Category, currency string, amount, ppc decimal.Decimal, now time.Time) (*Order, error) {
	if owner == "" {
		return nil, &ValidationError{Field: "owner", Reason: "must be present"}
	}
	if category != Buy && category != Sell {
		return nil, &ValidationError{Field: "category", Reason: "must be buy or sell"}
	}
	if currency == "" {
		return nil, &ValidationError{Field: "currency", Reason: "must be present"}
	}
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be strictly positive"}
	}
	if err := ValidatePpc(ppc, currency); err != nil {
		return nil, err
	}

	return &Order{
		ID:        uuid.NewString(),
		Owner:     owner,
		Category:  category,
		Currency:  currency,
		Amount:    amount,
		Ppc:       ppc,
		CreatedAt: now,
	}, nil
}

// ValidatePpc enforces that a price per coin is strictly positive and at
// least the minimal magnitude. It applies to writes only; an already-resting
// order is never invalidated retroactively.
func ValidatePpc(ppc decimal.Decimal, currency string) error {
	if !ppc.IsPositive() {
		return &ValidationError{Field: "ppc", Reason: "must be strictly positive"}
	}
	if ppc.Abs().LessThan(MinPpc) {
		return &ValidationError{
			Field:  "ppc",
			Reason: fmt.Sprintf("price per coin should not be smaller than 0.0001 %s", currency),
		}
	}
	return nil
}

// RequiredFunds is the balance the owner must hold for the order to be fully
// settleable at its own price: the quote cost for a buy, the asset amount for
// a sell.
func (o *Order) RequiredFunds() decimal.Decimal {
	if o.Category == Buy {
		return o.Amount.Mul(o.Ppc)
	}
	return o.Amount
}

// PriceCompatible reports whether o could trade against counter on price
// alone: a buy meets or exceeds the sell's price.
func (o *Order) PriceCompatible(counter *Order) bool {
	if o.Category == counter.Category {
		return false
	}
	buy, sell := o, counter
	if o.Category == Sell {
		buy, sell = counter, o
	}
	return buy.Ppc.GreaterThanOrEqual(sell.Ppc)
}
