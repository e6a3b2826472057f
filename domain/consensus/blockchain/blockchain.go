package blockchain

import (
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/chaincfg"
	"github.com/coinchain/coinchaind/domain/consensus/blocktree"
	"github.com/coinchain/coinchaind/domain/consensus/chainstore"
	"github.com/coinchain/coinchaind/domain/consensus/claims"
	"github.com/coinchain/coinchaind/domain/consensus/database/serialization"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/spendables"
	"github.com/coinchain/coinchaind/domain/consensus/stats"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/validation"
	"github.com/coinchain/coinchaind/domain/consensus/verifier"
	"github.com/coinchain/coinchaind/infrastructure/logger"
	"github.com/pkg/errors"
)

// BlockChain ties the block tree, the unspent outputs and the claims
// together and keeps them consistent with the store.
//
// One lock guards the best chain, the spendables and the claims: Append
// and the other mutating methods hold it for writing, queries for reading.
type BlockChain struct {
	lock sync.RWMutex

	params    *chaincfg.Params
	dbContext *chainstore.DatabaseContext
	observer  stats.Observer
	verifier  verifier.Verifier
	now       func() time.Time

	tree       *blocktree.Tree
	spendables *spendables.Spendables
	claims     *claims.Claims
	orphans    *orphanPool

	purgeDepth           uint64
	lazyPurging          bool
	purgePending         bool
	validationDepth      uint64
	verificationDepth    uint64
	branchRetentionDepth uint64
	sideBranchPolicy     SideBranchPolicy

	bestLocator      model.BlockLocator
	bestReceivedTime time.Time
	closed           bool
}

// New returns a BlockChain backed by cfg.DatabaseContext. An empty store is
// initialized with the genesis block; otherwise the chain is loaded from
// it.
func New(cfg *Config) (*BlockChain, error) {
	err := cfg.validate()
	if err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	params := cfg.Params

	b := &BlockChain{
		params:               params,
		dbContext:            cfg.DatabaseContext,
		observer:             cfg.Observer,
		verifier:             cfg.Verifier,
		now:                  cfg.TimeSource,
		tree:                 blocktree.New(&params.GenesisBlock.Header, params.MedianTimeBlocks),
		claims:               claims.New(params.MinRelayTxFee),
		orphans:              newOrphanPool(cfg.MaxOrphanBlocks),
		purgeDepth:           cfg.PurgeDepth,
		lazyPurging:          cfg.LazyPurging,
		validationDepth:      cfg.ValidationDepth,
		verificationDepth:    cfg.VerificationDepth,
		branchRetentionDepth: cfg.BranchRetentionDepth,
		sideBranchPolicy:     cfg.SideBranchPolicy,
	}

	b.claims.SetTimeSource(cfg.TimeSource)

	chainState, err := chainstore.FetchChainState(b.dbContext.NoTx())
	if chainstore.IsNotFoundError(err) {
		err = b.initGenesis()
	} else if err == nil {
		err = b.load(chainState)
	}
	if err != nil {
		return nil, err
	}

	if cfg.ScriptToUnspents {
		b.spendables.EnableScriptIndex()
	}
	b.bestLocator = b.tree.BestLocator()
	b.bestReceivedTime = b.now()
	b.observer.BestChanged(b.tree.Height())

	best := b.tree.Best()
	log.Infof("Chain state: height %d, hash %s, %d unspent outputs, %d blocks indexed",
		best.Height(), best.Hash(), b.spendables.Count(), b.tree.Count())
	return b, nil
}

// initGenesis writes the genesis block to an empty store. Genesis outputs
// are never spendable.
func (b *BlockChain) initGenesis() error {
	genesis := b.params.GenesisBlock
	b.spendables = spendables.New(b.params.MaturityWindow(), 0)

	dbTx, err := b.dbContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	err = chainstore.StoreBlock(dbTx, b.params.GenesisHash, genesis)
	if err != nil {
		return err
	}
	for i, tx := range genesis.Transactions {
		err = chainstore.StoreTxIndexEntry(dbTx, consensushashing.TransactionHash(tx), b.params.GenesisHash, uint32(i))
		if err != nil {
			return err
		}
	}
	err = b.tree.FlushToDB(dbTx)
	if err != nil {
		return err
	}
	err = chainstore.StoreChainState(dbTx, b.chainState())
	if err != nil {
		return err
	}
	err = dbTx.Commit()
	if err != nil {
		return err
	}
	b.tree.ClearDirtyEntries()

	log.Infof("Initialized a new %s chain with genesis %s", b.params.Name, b.params.GenesisHash)
	return nil
}

type indexRecord struct {
	hash   chainhash.Hash
	record *serialization.BlockIndexRecord
}

func (b *BlockChain) load(chainState *serialization.ChainState) error {
	onEnd := logger.LogAndMeasureExecutionTime(log, "BlockChain.load")
	defer onEnd()

	err := b.loadBlockIndex(&chainState.BestHash)
	if err != nil {
		return err
	}
	bestHeight := b.tree.Height()

	b.spendables = spendables.New(b.params.MaturityWindow(), bestHeight)
	err = chainstore.ForEachSpendable(b.dbContext.NoTx(), b.spendables.Restore)
	if err != nil {
		return err
	}

	var purgedTxs []*chainhash.Hash
	err = chainstore.ForEachPurgedTx(b.dbContext.NoTx(), func(txHash *chainhash.Hash) error {
		purgedTxs = append(purgedTxs, txHash)
		return nil
	})
	if err != nil {
		return err
	}
	b.spendables.Purge(chainState.PurgedHeight, purgedTxs)

	commitment := b.spendables.Commitment()
	if commitment != chainState.UTXOCommitment {
		return errors.Errorf("the unspent outputs in the store commit to %s, but the chain state "+
			"commits to %s", commitment, chainState.UTXOCommitment)
	}
	if uint64(b.spendables.Count()) != chainState.SpendableCount {
		return errors.Errorf("the store holds %d unspent outputs, but the chain state counts %d",
			b.spendables.Count(), chainState.SpendableCount)
	}

	return b.revalidateRecentBlocks()
}

// loadBlockIndex restores every stored block index record, parents first,
// and moves the best pointer to bestHash.
func (b *BlockChain) loadBlockIndex(bestHash *chainhash.Hash) error {
	var records []indexRecord
	err := chainstore.ForEachBlockIndexRecord(b.dbContext.NoTx(),
		func(hash *chainhash.Hash, record *serialization.BlockIndexRecord) error {
			records = append(records, indexRecord{hash: *hash, record: record})
			return nil
		})
	if err != nil {
		return err
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].record.Height != records[j].record.Height {
			return records[i].record.Height < records[j].record.Height
		}
		return records[i].record.Sequence < records[j].record.Sequence
	})
	if len(records) == 0 || records[0].hash != *b.params.GenesisHash {
		return errors.Errorf("the store does not belong to the %s network", b.params.Name)
	}

	b.tree.ClearDirtyEntries()
	for _, r := range records {
		_, err := b.tree.Restore(&r.record.Header, blocktree.State(r.record.State), r.record.Sequence)
		if err != nil {
			return errors.Wrapf(err, "failed restoring block %s", r.hash)
		}
	}

	best, ok := b.tree.Iterator(bestHash)
	if !ok {
		return errors.Errorf("best block %s is missing from the block index", bestHash)
	}
	err = b.tree.SetBest(best)
	if err != nil {
		return err
	}
	log.Debugf("Loaded %d block index records", len(records))
	return nil
}

// revalidateRecentBlocks re-runs the structural checks on the best chain
// blocks within the validation depth.
func (b *BlockChain) revalidateRecentBlocks() error {
	if b.validationDepth == 0 {
		return nil
	}
	bestHeight := b.tree.Height()
	from := b.spendables.PurgedBelow()
	if bestHeight+1 > b.validationDepth && bestHeight+1-b.validationDepth > from {
		from = bestHeight + 1 - b.validationDepth
	}
	for height := from; height <= bestHeight; height++ {
		it, _ := b.tree.IteratorAtHeight(height)
		block, err := chainstore.FetchBlock(b.dbContext.NoTx(), it.Hash())
		if err != nil {
			return errors.Wrapf(err, "failed fetching best chain block %s", it.Hash())
		}
		err = validation.CheckBlockSanity(block)
		if err != nil {
			return errors.Wrapf(err, "stored best chain block %s at height %d is invalid", it.Hash(), height)
		}
	}
	log.Debugf("Revalidated best chain blocks from height %d", from)
	return nil
}

// chainState returns the persisted summary of the current best chain.
func (b *BlockChain) chainState() *serialization.ChainState {
	return &serialization.ChainState{
		BestHash:       *b.tree.Best().Hash(),
		NextSequence:   b.tree.NextSequence(),
		PurgedHeight:   b.spendables.PurgedBelow(),
		UTXOCommitment: b.spendables.Commitment(),
		SpendableCount: uint64(b.spendables.Count()),
	}
}

// Close releases the chain. Every accepted block is already persisted.
func (b *BlockChain) Close() error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.closed {
		return errors.New("the chain is already closed")
	}
	b.closed = true
	b.orphans.clear()
	log.Infof("Chain closed at height %d", b.tree.Height())
	return nil
}

// Params returns the network the chain follows.
func (b *BlockChain) Params() *chaincfg.Params {
	return b.params
}

// PurgeDepth returns the number of blocks whose spend history is kept.
func (b *BlockChain) PurgeDepth() uint64 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.purgeDepth
}

// SetPurgeDepth sets the number of blocks whose spend history is kept.
// Zero keeps everything.
func (b *BlockChain) SetPurgeDepth(depth uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.purgeDepth = depth
	b.purgePending = depth > 0
}

// LazyPurging returns whether purging waits for explicit Purge calls.
func (b *BlockChain) LazyPurging() bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.lazyPurging
}

// SetLazyPurging sets whether purging waits for explicit Purge calls.
func (b *BlockChain) SetLazyPurging(lazy bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.lazyPurging = lazy
}

// ValidationDepth returns the number of recent blocks checked on load.
func (b *BlockChain) ValidationDepth() uint64 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.validationDepth
}

// SetValidationDepth sets the number of recent blocks checked on load.
func (b *BlockChain) SetValidationDepth(depth uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.validationDepth = depth
}

// VerificationDepth returns the height from which inputs are verified.
func (b *BlockChain) VerificationDepth() uint64 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.verificationDepth
}

// SetVerificationDepth sets the height from which inputs are verified.
// It does not affect blocks already attached.
func (b *BlockChain) SetVerificationDepth(depth uint64) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.verificationDepth = depth
}

// ScriptToUnspents returns whether unspent outputs are indexed by script.
func (b *BlockChain) ScriptToUnspents() bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.spendables.ScriptIndexEnabled()
}

// SetScriptToUnspents enables or disables the index of unspent outputs by
// script. Enabling it indexes every existing output.
func (b *BlockChain) SetScriptToUnspents(enable bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if enable {
		b.spendables.EnableScriptIndex()
	} else {
		b.spendables.DisableScriptIndex()
	}
}
