package model

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BlockHeader is the consensus header of a block. Its hash identifies the
// block.
type BlockHeader struct {
	Version    int32
	ParentHash chainhash.Hash
	MerkleRoot chainhash.Hash
	// Timestamp has one second precision on the wire.
	Timestamp time.Time
	Bits      uint32
	Nonce     uint32
}

// Block is a header and the transactions it commits to. The first
// transaction is the coinbase.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// Coinbase returns the first transaction of the block, or nil for an empty
// block.
func (block *Block) Coinbase() *Transaction {
	if len(block.Transactions) == 0 {
		return nil
	}
	return block.Transactions[0]
}

// BlockLocator is a sparse list of block hashes, newest first, describing
// a position on a chain.
type BlockLocator []*chainhash.Hash
