package chainstore

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/database/serialization"
	"github.com/coinchain/coinchaind/infrastructure/db/database"
	"github.com/pkg/errors"
)

var blockIndexBucket = database.MakeBucket([]byte("block-index"))

func blockIndexKey(hash *chainhash.Hash) *database.Key {
	return blockIndexBucket.Key(hash[:])
}

// StoreBlockIndexRecord stores or replaces the index record of the block
// with the given hash.
func StoreBlockIndexRecord(context Context, hash *chainhash.Hash, record *serialization.BlockIndexRecord) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(blockIndexKey(hash), serialization.BlockIndexRecordToBytes(record))
}

// FetchBlockIndexRecord returns the index record of the block with the
// given hash.
func FetchBlockIndexRecord(context Context, hash *chainhash.Hash) (*serialization.BlockIndexRecord, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	recordBytes, err := accessor.Get(blockIndexKey(hash))
	if err != nil {
		return nil, err
	}
	return serialization.BytesToBlockIndexRecord(recordBytes)
}

// ForEachBlockIndexRecord calls fn for every stored block index record,
// in key order.
func ForEachBlockIndexRecord(context Context,
	fn func(hash *chainhash.Hash, record *serialization.BlockIndexRecord) error) error {

	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	cursor, err := accessor.Cursor(blockIndexBucket)
	if err != nil {
		return err
	}
	defer cursor.Close()

	for cursor.Next() {
		key, err := cursor.Key()
		if err != nil {
			return err
		}
		hash, err := chainhash.NewHash(key.Suffix())
		if err != nil {
			return errors.Wrapf(err, "bad block index key %s", key)
		}
		value, err := cursor.Value()
		if err != nil {
			return err
		}
		record, err := serialization.BytesToBlockIndexRecord(value)
		if err != nil {
			return errors.Wrapf(err, "bad block index record for %s", hash)
		}
		err = fn(hash, record)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteBlockIndexRecord removes the index record of the block with the
// given hash.
func DeleteBlockIndexRecord(context Context, hash *chainhash.Hash) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Delete(blockIndexKey(hash))
}
