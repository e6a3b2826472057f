package model

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Confirmation describes where an output was confirmed.
type Confirmation struct {
	Height     uint64
	Index      uint32 // position of the transaction inside its block
	IsCoinbase bool
}

// Spendable is a confirmed, unspent output.
type Spendable struct {
	Outpoint     Outpoint
	Value        int64
	ScriptPubKey []byte
	Confirmation Confirmation
}

func (s *Spendable) String() string {
	return fmt.Sprintf("%s (value %d, height %d, coinbase %t)",
		s.Outpoint, s.Value, s.Confirmation.Height, s.Confirmation.IsCoinbase)
}

// Clone returns a deep copy of s.
func (s *Spendable) Clone() *Spendable {
	clone := *s
	clone.ScriptPubKey = append([]byte(nil), s.ScriptPubKey...)
	return &clone
}

// Unspent is an output returned by unspent queries. Outputs of claimed,
// not yet confirmed transactions have Confirmed set to false and carry the
// time they were claimed.
type Unspent struct {
	Spendable
	Confirmed bool
	ClaimedAt time.Time
}

// TxInfo is a transaction and where it was found.
type TxInfo struct {
	Tx        *Transaction
	BlockHash *chainhash.Hash // nil for unconfirmed transactions
	Height    int64           // -1 for unconfirmed transactions
	Timestamp time.Time       // block time, or claim time if unconfirmed
}
