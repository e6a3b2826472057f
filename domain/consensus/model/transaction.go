package model

import (
	"fmt"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Outpoint references a single output of a transaction.
type Outpoint struct {
	TxHash chainhash.Hash
	Index  uint32
}

// NewOutpoint returns an Outpoint for the given transaction hash and index.
func NewOutpoint(txHash *chainhash.Hash, index uint32) Outpoint {
	return Outpoint{TxHash: *txHash, Index: index}
}

// String stringifies an outpoint.
func (op Outpoint) String() string {
	return fmt.Sprintf("%s:%d", op.TxHash, op.Index)
}

// IsNull returns whether op is the null outpoint referenced by coinbase
// inputs.
func (op Outpoint) IsNull() bool {
	return op.Index == math.MaxUint32 && op.TxHash == (chainhash.Hash{})
}

// NullOutpoint returns the outpoint referenced by coinbase inputs.
func NullOutpoint() Outpoint {
	return Outpoint{Index: math.MaxUint32}
}

// TxIn is a transaction input.
type TxIn struct {
	PreviousOutpoint Outpoint
	SignatureScript  []byte
	Sequence         uint32
}

// TxOut is a transaction output.
type TxOut struct {
	Value        int64
	ScriptPubKey []byte
}

// Transaction is a transfer of value between scripts.
type Transaction struct {
	Version  int32
	Inputs   []*TxIn
	Outputs  []*TxOut
	LockTime uint32
}

// MaxTxInSequenceNum is the sequence number that disables lock time checks
// for an input.
const MaxTxInSequenceNum uint32 = math.MaxUint32

// LockTimeThreshold is the value below which a lock time (and the "before"
// argument of unspent queries) is a block height rather than a unix time.
const LockTimeThreshold = 500_000_000

// IsCoinbase determines whether tx is a coinbase: exactly one input,
// referencing the null outpoint.
func (tx *Transaction) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && tx.Inputs[0].PreviousOutpoint.IsNull()
}

// OutputsValue returns the sum of the values of the outputs of tx.
func (tx *Transaction) OutputsValue() int64 {
	var total int64
	for _, output := range tx.Outputs {
		total += output.Value
	}
	return total
}

// Clone returns a deep copy of tx.
func (tx *Transaction) Clone() *Transaction {
	clone := &Transaction{
		Version:  tx.Version,
		Inputs:   make([]*TxIn, len(tx.Inputs)),
		Outputs:  make([]*TxOut, len(tx.Outputs)),
		LockTime: tx.LockTime,
	}
	for i, input := range tx.Inputs {
		clone.Inputs[i] = &TxIn{
			PreviousOutpoint: input.PreviousOutpoint,
			SignatureScript:  append([]byte(nil), input.SignatureScript...),
			Sequence:         input.Sequence,
		}
	}
	for i, output := range tx.Outputs {
		clone.Outputs[i] = &TxOut{
			Value:        output.Value,
			ScriptPubKey: append([]byte(nil), output.ScriptPubKey...),
		}
	}
	return clone
}
