package ledger

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"
)

// Store is the Pebble journal behind a durable Ledger. All access is
// serialized by the owning Ledger's mutex.
type Store struct {
	db *pebble.DB
}

// balanceRecord is the stored snapshot for one (owner, currency) pair. The
// pair is repeated in the value so loading never parses keys.
type balanceRecord struct {
	Owner    string          `json:"owner"`
	Currency string          `json:"currency"`
	Balance  decimal.Decimal `json:"balance"`
}

func newStore(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// appendBatch writes a group of transfers, the resulting balance snapshots
// and the new transfer count as one atomic Pebble batch.
func (s *Store) appendBatch(transfers []Transfer, balances map[balanceKey]decimal.Decimal, newCount uint64) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	seq := newCount - uint64(len(transfers))
	for i := range transfers {
		seq++
		data, err := json.Marshal(&transfers[i])
		if err != nil {
			return fmt.Errorf("marshal transfer: %w", err)
		}
		if err := batch.Set(transferKey(seq), data, nil); err != nil {
			return err
		}
	}

	for k, v := range balances {
		data, err := json.Marshal(&balanceRecord{Owner: k.Owner, Currency: k.Currency, Balance: v})
		if err != nil {
			return fmt.Errorf("marshal balance: %w", err)
		}
		if err := batch.Set(balanceDBKey(k), data, nil); err != nil {
			return err
		}
	}

	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], newCount)
	if err := batch.Set([]byte(keyCount), countBuf[:], nil); err != nil {
		return err
	}

	return batch.Commit(pebble.Sync)
}

// load rebuilds the balance map and transfer count from the journal.
func (s *Store) load() (map[balanceKey]decimal.Decimal, uint64, error) {
	balances := make(map[balanceKey]decimal.Decimal)

	prefix := []byte(prefixBalance)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var rec balanceRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, 0, fmt.Errorf("unmarshal balance record: %w", err)
		}
		balances[balanceKey{rec.Owner, rec.Currency}] = rec.Balance
	}

	var count uint64
	val, closer, err := s.db.Get([]byte(keyCount))
	if err == nil {
		count = binary.BigEndian.Uint64(val)
		closer.Close()
	} else if err != pebble.ErrNotFound {
		return nil, 0, err
	}

	return balances, count, nil
}

// Transfers returns the journaled transfers in append order, newest last,
// capped at limit (0 means all). Used by diagnostics.
func (s *Store) Transfers(limit int) ([]Transfer, error) {
	prefix := []byte(prefixTransfer)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Transfer
	for iter.First(); iter.Valid(); iter.Next() {
		var t Transfer
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("unmarshal transfer: %w", err)
		}
		out = append(out, t)
		if limit > 0 && len(out) > limit {
			out = out[1:]
		}
	}
	return out, nil
}
