// Package storage provides the Pebble-backed trade journal: an append-only
// tape of executed trades, keyed for time-ordered range scans per currency.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/avrellon/coincentral/pkg/exchange/engine"
)

const prefixTrade = "trade:"

// TradeLog journals executed trades to Pebble. It implements
// engine.TradeJournal.
type TradeLog struct {
	db *pebble.DB
}

func NewTradeLog(path string) (*TradeLog, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open trade log at %s: %w", path, err)
	}
	return &TradeLog{db: db}, nil
}

func (l *TradeLog) Close() error { return l.db.Close() }

// tradeKey formats "trade:{currency}:{timestamp}:{id}" with a zero-padded
// timestamp so lexicographic order is chronological order.
func tradeKey(currency string, timestampNanos int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixTrade, currency, timestampNanos, id))
}

func tradePrefix(currency string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, currency))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// SaveTrade appends one executed trade.
func (l *TradeLog) SaveTrade(t engine.Trade) error {
	data, err := json.Marshal(&t)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}

	key := tradeKey(t.Currency, t.CreatedAt.UnixNano(), t.ID)
	if err := l.db.Set(key, data, pebble.Sync); err != nil {
		return fmt.Errorf("save trade: %w", err)
	}
	return nil
}

// RecentTrades returns the most recent trades for a currency, newest first.
func (l *TradeLog) RecentTrades(currency string, limit int) ([]engine.Trade, error) {
	prefix := tradePrefix(currency)
	iter, err := l.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var trades []engine.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var t engine.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			continue // skip unreadable entries
		}
		trades = append(trades, t)
	}
	return trades, nil
}

var _ engine.TradeJournal = (*TradeLog)(nil)
