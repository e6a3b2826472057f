package blockchain

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/blocktree"
	"github.com/coinchain/coinchaind/domain/consensus/chainstore"
	"github.com/coinchain/coinchaind/domain/consensus/stats"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
)

// PurgePending returns whether a lazy purge is waiting for Purge.
func (b *BlockChain) PurgePending() bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.purgePending
}

// Purge drops the bodies, undo data and transaction index entries of the
// best chain blocks more than PurgeDepth blocks below the best block. The
// hashes of their transactions are kept so that they stay unique.
func (b *BlockChain) Purge() error {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.purge()
}

// purge MUST be called with the chain lock held (for writes).
func (b *BlockChain) purge() error {
	b.purgePending = false
	if b.purgeDepth == 0 || b.tree.Height() < b.purgeDepth {
		return nil
	}
	from := b.spendables.PurgedBelow()
	to := b.tree.Height() - b.purgeDepth
	if to <= from {
		return nil
	}
	start := time.Now()

	type purgedState struct {
		it       blocktree.Iterator
		previous blocktree.State
	}
	var purgedStates []purgedState
	revertStates := func() {
		for i := len(purgedStates) - 1; i >= 0; i-- {
			err := b.tree.RevertState(purgedStates[i].it, purgedStates[i].previous)
			if err != nil {
				log.Errorf("Failed reverting the state of block %s: %s", purgedStates[i].it.Hash(), err)
			}
		}
	}

	dbTx, err := b.dbContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	var txHashes []*chainhash.Hash
	for height := from; height < to; height++ {
		it, _ := b.tree.IteratorAtHeight(height)
		hash := it.Hash()
		block, err := chainstore.FetchBlock(dbTx, hash)
		if err != nil {
			revertStates()
			return err
		}
		for _, tx := range block.Transactions {
			txHash := consensushashing.TransactionHash(tx)
			err = chainstore.DeleteTxIndexEntry(dbTx, txHash)
			if err != nil {
				revertStates()
				return err
			}
			err = chainstore.StorePurgedTx(dbTx, txHash)
			if err != nil {
				revertStates()
				return err
			}
			txHashes = append(txHashes, txHash)
		}
		err = chainstore.DeleteBlock(dbTx, hash)
		if err != nil {
			revertStates()
			return err
		}
		err = chainstore.DeleteUndoData(dbTx, hash)
		if err != nil {
			revertStates()
			return err
		}

		previous, err := b.tree.SetState(it, blocktree.EventPurge)
		if err != nil {
			revertStates()
			return err
		}
		purgedStates = append(purgedStates, purgedState{it: it, previous: previous})
	}

	chainState := b.chainState()
	chainState.PurgedHeight = to
	err = b.tree.FlushToDB(dbTx)
	if err == nil {
		err = chainstore.StoreChainState(dbTx, chainState)
	}
	if err == nil {
		err = dbTx.Commit()
	}
	if err != nil {
		revertStates()
		return err
	}
	b.tree.ClearDirtyEntries()
	b.spendables.Purge(to, txHashes)

	b.observer.Purged(int(to - from))
	b.observer.StageTimed(stats.StagePurge, time.Since(start))
	log.Debugf("Purged %d blocks below height %d", to-from, to)
	return nil
}
