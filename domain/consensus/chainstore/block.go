package chainstore

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/infrastructure/db/database"
)

var blocksBucket = database.MakeBucket([]byte("blocks"))

func blockKey(hash *chainhash.Hash) *database.Key {
	return blocksBucket.Key(hash[:])
}

// StoreBlock stores the body of the block with the given hash.
func StoreBlock(context Context, hash *chainhash.Hash, block *model.Block) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(blockKey(hash), consensushashing.BlockToBytes(block))
}

// HasBlock returns whether the body of the block of the given hash is
// stored.
func HasBlock(context Context, hash *chainhash.Hash) (bool, error) {
	accessor, err := context.accessor()
	if err != nil {
		return false, err
	}
	return accessor.Has(blockKey(hash))
}

// FetchBlock returns the block of the given hash. Returns
// ErrNotFound if the block had not been previously inserted
// into the database or was purged since.
func FetchBlock(context Context, hash *chainhash.Hash) (*model.Block, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	blockBytes, err := accessor.Get(blockKey(hash))
	if err != nil {
		return nil, err
	}
	return consensushashing.BlockFromBytes(blockBytes)
}

// DeleteBlock removes the body of the block of the given hash.
func DeleteBlock(context Context, hash *chainhash.Hash) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Delete(blockKey(hash))
}
