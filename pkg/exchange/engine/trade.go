package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of one executed match. Created once per
// successful fill, never mutated or deleted.
type Trade struct {
	ID          string          `json:"id"`
	Currency    string          `json:"currency"`
	BuyOrderID  string          `json:"buy_order_id"`
	SellOrderID string          `json:"sell_order_id"`
	Buyer       string          `json:"buyer"`
	Seller      string          `json:"seller"`
	Amount      decimal.Decimal `json:"amount"` // asset quantity exchanged
	Ppc         decimal.Decimal `json:"ppc"`    // settlement price (maker's)
	CreatedAt   time.Time       `json:"created_at"`
}

// TradeJournal persists executed trades. The pebble implementation lives in
// pkg/storage; the engine treats the journal as a best-effort tape and keeps
// the authoritative record in memory alongside the ledger transfers.
type TradeJournal interface {
	SaveTrade(t Trade) error
}
