package chainstore

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/infrastructure/db/database"
	"github.com/pkg/errors"
)

var purgedBucket = database.MakeBucket([]byte("purged-txs"))

// purgedMarker is the value of every purged transaction key.
var purgedMarker = []byte{1}

// StorePurgedTx records that the transaction with the given hash was
// confirmed and then purged.
func StorePurgedTx(context Context, txHash *chainhash.Hash) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(purgedBucket.Key(txHash[:]), purgedMarker)
}

// ForEachPurgedTx calls fn for the hash of every purged transaction.
func ForEachPurgedTx(context Context, fn func(txHash *chainhash.Hash) error) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	cursor, err := accessor.Cursor(purgedBucket)
	if err != nil {
		return err
	}
	defer cursor.Close()

	for cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return err
		}
		txHash, err := chainhash.NewHash(key.Suffix())
		if err != nil {
			return errors.Wrapf(err, "bad purged transaction key %s", key)
		}
		err = fn(txHash)
		if err != nil {
			return err
		}
	}
	return nil
}
