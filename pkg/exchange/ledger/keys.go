package ledger

import "fmt"

// Pebble key schema:
//   tr:{seq}              one journaled transfer, seq zero-padded for ordering
//   bal:{owner}:{currency} latest balance snapshot for the pair
//   meta:count            total number of transfers appended

const (
	prefixTransfer = "tr:"
	prefixBalance  = "bal:"
	keyCount       = "meta:count"
)

func transferKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixTransfer, seq))
}

func balanceDBKey(k balanceKey) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, k.Owner, k.Currency))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
