package chainstore

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/database/serialization"
	"github.com/coinchain/coinchaind/infrastructure/db/database"
)

var txIndexBucket = database.MakeBucket([]byte("tx-index"))

func txIndexKey(txHash *chainhash.Hash) *database.Key {
	return txIndexBucket.Key(txHash[:])
}

// StoreTxIndexEntry records that the transaction with the given hash is
// confirmed at index of the given block.
func StoreTxIndexEntry(context Context, txHash *chainhash.Hash, blockHash *chainhash.Hash, index uint32) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	entry := &serialization.TxIndexEntry{BlockHash: *blockHash, Index: index}
	return accessor.Put(txIndexKey(txHash), serialization.TxIndexEntryToBytes(entry))
}

// FetchTxIndexEntry returns where the transaction with the given hash is
// confirmed. Returns ErrNotFound for unknown transactions.
func FetchTxIndexEntry(context Context, txHash *chainhash.Hash) (*serialization.TxIndexEntry, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	entryBytes, err := accessor.Get(txIndexKey(txHash))
	if err != nil {
		return nil, err
	}
	return serialization.BytesToTxIndexEntry(entryBytes)
}

// DeleteTxIndexEntry removes the index entry of the given transaction.
func DeleteTxIndexEntry(context Context, txHash *chainhash.Hash) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Delete(txIndexKey(txHash))
}
