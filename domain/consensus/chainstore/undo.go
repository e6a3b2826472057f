package chainstore

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/database/serialization"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/infrastructure/db/database"
)

var undoBucket = database.MakeBucket([]byte("undo"))

func undoKey(blockHash *chainhash.Hash) *database.Key {
	return undoBucket.Key(blockHash[:])
}

// StoreUndoData stores the spendables the given block redeemed, in the
// order it redeemed them.
func StoreUndoData(context Context, blockHash *chainhash.Hash, spent []*model.Spendable) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(undoKey(blockHash), serialization.UndoDataToBytes(spent))
}

// FetchUndoData returns the spendables the given block redeemed.
func FetchUndoData(context Context, blockHash *chainhash.Hash) ([]*model.Spendable, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	undoBytes, err := accessor.Get(undoKey(blockHash))
	if err != nil {
		return nil, err
	}
	return serialization.BytesToUndoData(undoBytes)
}

// DeleteUndoData removes the undo data of the given block.
func DeleteUndoData(context Context, blockHash *chainhash.Hash) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Delete(undoKey(blockHash))
}
