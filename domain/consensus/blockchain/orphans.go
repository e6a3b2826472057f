package blockchain

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/jellydator/ttlcache/v3"
)

// orphanTTL is how long a block waits for its parent before it is dropped.
const orphanTTL = time.Hour

// orphanPool holds blocks whose parent is unknown.
type orphanPool struct {
	cache *ttlcache.Cache[chainhash.Hash, *model.Block]
}

func newOrphanPool(maxOrphans int) *orphanPool {
	options := []ttlcache.Option[chainhash.Hash, *model.Block]{
		ttlcache.WithTTL[chainhash.Hash, *model.Block](orphanTTL),
		ttlcache.WithDisableTouchOnHit[chainhash.Hash, *model.Block](),
	}
	if maxOrphans > 0 {
		options = append(options, ttlcache.WithCapacity[chainhash.Hash, *model.Block](uint64(maxOrphans)))
	}
	return &orphanPool{cache: ttlcache.New[chainhash.Hash, *model.Block](options...)}
}

func (op *orphanPool) add(hash *chainhash.Hash, block *model.Block) {
	op.cache.DeleteExpired()
	op.cache.Set(*hash, block, ttlcache.DefaultTTL)
	log.Debugf("Added orphan block %s with parent %s (%d orphans)", hash, block.Header.ParentHash, op.cache.Len())
}

func (op *orphanPool) has(hash *chainhash.Hash) bool {
	return op.cache.Has(*hash)
}

func (op *orphanPool) clear() {
	op.cache.DeleteAll()
}

func (op *orphanPool) count() int {
	return op.cache.Len()
}

// takeChildren removes and returns the orphans whose parent is
// parentHash.
func (op *orphanPool) takeChildren(parentHash *chainhash.Hash) []*model.Block {
	op.cache.DeleteExpired()
	var children []*model.Block
	for hash, item := range op.cache.Items() {
		block := item.Value()
		if block.Header.ParentHash == *parentHash {
			children = append(children, block)
			op.cache.Delete(hash)
		}
	}
	return children
}

// missingRoot returns the hash of the unknown block the chain of orphans
// ending at hash waits for.
func (op *orphanPool) missingRoot(hash *chainhash.Hash) *chainhash.Hash {
	root := *hash
	for {
		item := op.cache.Get(root)
		if item == nil {
			return &root
		}
		root = item.Value().Header.ParentHash
	}
}
