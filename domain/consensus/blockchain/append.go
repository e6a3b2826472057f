package blockchain

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/blocktree"
	"github.com/coinchain/coinchaind/domain/consensus/chainstore"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/stats"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/utils/pow"
	"github.com/coinchain/coinchaind/domain/consensus/validation"
	"github.com/coinchain/coinchaind/infrastructure/logger"
	"github.com/pkg/errors"
)

// AppendResult describes what Append did with a block.
type AppendResult struct {
	Outcome ruleerrors.Outcome
	State   blocktree.State
	Hash    chainhash.Hash

	// Detached and Attached list the blocks that left and joined the best
	// chain, in the order they were processed.
	Detached []chainhash.Hash
	Attached []chainhash.Hash

	// Unconfirmed lists the transactions of detached blocks that were not
	// confirmed again and were claimed instead.
	Unconfirmed []chainhash.Hash

	// Unorphaned lists the pooled orphans that were appended because this
	// block was their missing parent.
	Unorphaned []chainhash.Hash
}

func (result *AppendResult) merge(other *AppendResult) {
	result.Detached = append(result.Detached, other.Detached...)
	result.Attached = append(result.Attached, other.Attached...)
	result.Unconfirmed = append(result.Unconfirmed, other.Unconfirmed...)
}

// Append is the entry point for blocks. It stores the block, moves the best
// chain to it if it extends the chain with the most work, and appends the
// orphans that were waiting for it.
//
// The returned error is nil for accepted and orphan blocks. Rejected blocks
// return their rule error and internal failures any other error; in both
// cases the result is still returned and tags the outcome.
//
// This function is safe for concurrent access.
func (b *BlockChain) Append(block *model.Block) (*AppendResult, error) {
	onEnd := logger.LogAndMeasureExecutionTime(log, "BlockChain.Append")
	defer onEnd()
	start := time.Now()

	b.lock.Lock()
	defer b.lock.Unlock()

	result, err := b.appendBlock(block)
	if err == nil && result.Outcome == ruleerrors.OutcomeAccepted {
		err = b.processOrphans(&result.Hash, result)
		if err != nil {
			result.Outcome = ruleerrors.Classify(err)
		}
	}
	b.observer.AppendDone(result.Outcome, time.Since(start))
	b.observer.ClaimsChanged(b.claims.Count())
	return result, err
}

func fail(result *AppendResult, err error) (*AppendResult, error) {
	result.Outcome = ruleerrors.Classify(err)
	return result, err
}

// appendBlock appends a single block. This function MUST be called with the
// chain lock held (for writes).
func (b *BlockChain) appendBlock(block *model.Block) (*AppendResult, error) {
	if b.closed {
		return fail(&AppendResult{}, errors.New("cannot append to a closed chain"))
	}
	hash := consensushashing.BlockHash(block)
	result := &AppendResult{Hash: *hash}
	log.Tracef("Appending block %s", hash)

	if it, ok := b.tree.Iterator(hash); ok {
		result.State = it.State()
		if result.State == blocktree.StateRejected {
			return fail(result, errors.Wrapf(ruleerrors.ErrKnownInvalid, "block %s was already rejected", hash))
		}
		return fail(result, errors.Wrapf(ruleerrors.ErrDuplicateBlock, "already have block %s", hash))
	}
	if b.orphans.has(hash) {
		log.Debugf("Block %s is still waiting for block %s", hash, b.orphans.missingRoot(hash))
		result.Outcome = ruleerrors.OutcomeOrphan
		result.State = blocktree.StateOrphan
		return result, nil
	}

	err := b.checkHeaderContextFree(hash, &block.Header)
	if err != nil {
		return fail(result, err)
	}
	// Runs before the block reaches the orphan pool or the tree: a
	// malformed body must leave no trace under the hash it shares with
	// its valid twin.
	err = validation.CheckBlockStructure(block)
	if err != nil {
		return fail(result, err)
	}

	parent, ok := b.tree.Iterator(&block.Header.ParentHash)
	if !ok {
		b.orphans.add(hash, block)
		log.Infof("Adding orphan block %s with parent %s", hash, block.Header.ParentHash)
		result.Outcome = ruleerrors.OutcomeOrphan
		result.State = blocktree.StateOrphan
		return result, nil
	}
	isInvalid, err := b.tree.HasInvalidAncestry(parent)
	if err != nil {
		return fail(result, err)
	}
	if isInvalid {
		return fail(result, errors.Wrapf(ruleerrors.ErrInvalidAncestorBlock, "parent %s of block %s "+
			"is invalid", parent.Hash(), hash))
	}

	err = b.checkHeaderInContext(hash, &block.Header, parent)
	if err != nil {
		return fail(result, err)
	}
	it, err := b.tree.Insert(&block.Header)
	if err != nil {
		return fail(result, err)
	}
	err = b.storeBlock(hash, block)
	if err != nil {
		return fail(result, err)
	}

	ruleErr, err := b.connectBestChain(result)
	if err != nil {
		return fail(result, err)
	}

	if it.State() == blocktree.StateIndexed {
		_, err = b.tree.SetState(it, blocktree.EventPark)
		if err != nil {
			return fail(result, err)
		}
	}
	if it.State() == blocktree.StateSideBranch && b.checksSideBranch(it) {
		err = validation.CheckBlockSanity(block)
		if err != nil {
			ruleErr = err
			markErr := b.tree.MarkRejected(it)
			if markErr != nil {
				return fail(result, markErr)
			}
		}
	}
	err = b.flushBlockIndex()
	if err != nil {
		return fail(result, err)
	}

	result.State = it.State()
	isInvalid, err = b.tree.HasInvalidAncestry(it)
	if err != nil {
		return fail(result, err)
	}
	if isInvalid {
		if ruleErr == nil || !ruleerrors.IsRuleError(ruleErr) {
			ruleErr = errors.Wrapf(ruleerrors.ErrInvalidAncestorBlock, "block %s connects to an invalid block", hash)
		}
		return fail(result, ruleErr)
	}

	result.Outcome = ruleerrors.OutcomeAccepted
	if result.State == blocktree.StateBestChain {
		log.Debugf("Accepted block %s at height %d on the best chain", hash, it.Height())
	} else {
		log.Debugf("Accepted block %s at height %d on a side branch", hash, it.Height())
	}
	return result, nil
}

// processOrphans appends the pooled orphans that depend on the block with
// the given hash, and repeats the process for the newly appended blocks
// until no orphan is left to process.
//
// A rejected orphan does not fail the block that unorphaned it.
func (b *BlockChain) processOrphans(hash *chainhash.Hash, result *AppendResult) error {
	processHashes := []*chainhash.Hash{hash}
	for len(processHashes) > 0 {
		processHash := processHashes[0]
		processHashes = processHashes[1:]

		for _, orphan := range b.orphans.takeChildren(processHash) {
			orphanHash := consensushashing.BlockHash(orphan)
			orphanResult, err := b.appendBlock(orphan)
			if err != nil {
				if !ruleerrors.IsRuleError(err) {
					return err
				}
				log.Warnf("Validation failed for orphan block %s: %s", orphanHash, err)
				continue
			}
			result.merge(orphanResult)
			result.Unorphaned = append(result.Unorphaned, *orphanHash)
			processHashes = append(processHashes, orphanHash)
		}
	}
	return nil
}

func (b *BlockChain) checkHeaderContextFree(hash *chainhash.Hash, header *model.BlockHeader) error {
	err := pow.CheckProofOfWork(hash, header.Bits, b.params.PowLimit)
	if err != nil {
		return err
	}

	maxTimestamp := b.now().Add(b.params.MaxTimeOffset)
	if header.Timestamp.After(maxTimestamp) {
		return errors.Wrapf(ruleerrors.ErrTimeTooMuchInTheFuture, "block %s timestamp of %s is too far "+
			"in the future, the maximum is %s", hash, header.Timestamp, maxTimestamp)
	}

	if header.Version < b.params.MinAcceptedBlockVersion {
		return errors.Wrapf(ruleerrors.ErrBlockVersionTooOld, "block %s version %d is below the "+
			"minimum of %d", hash, header.Version, b.params.MinAcceptedBlockVersion)
	}
	return nil
}

func (b *BlockChain) checkHeaderInContext(hash *chainhash.Hash, header *model.BlockHeader,
	parent blocktree.Iterator) error {

	medianTime, err := b.tree.MedianTimePast(parent)
	if err != nil {
		return err
	}
	if !header.Timestamp.After(medianTime) {
		return errors.Wrapf(ruleerrors.ErrTimeTooOld, "block %s timestamp of %s is not after the "+
			"median time past of %s", hash, header.Timestamp, medianTime)
	}

	requiredBits, err := b.requiredBits(parent)
	if err != nil {
		return err
	}
	if header.Bits != requiredBits {
		return errors.Wrapf(ruleerrors.ErrUnexpectedDifficulty, "block %s difficulty of %08x is not "+
			"the expected value of %08x", hash, header.Bits, requiredBits)
	}

	minVersion := b.minAcceptedBlockVersion(parent)
	if header.Version < minVersion {
		return errors.Wrapf(ruleerrors.ErrBlockVersionTooOld, "block %s version %d was obsoleted by "+
			"a majority of version %d blocks", hash, header.Version, minVersion)
	}
	return nil
}

// requiredBits returns the difficulty a child of parent must have.
func (b *BlockChain) requiredBits(parent blocktree.Iterator) (uint32, error) {
	retargetParams := b.params.RetargetParams()
	parentHeight := parent.Height()
	firstTimestamp := parent.Timestamp()
	if !retargetParams.NoRetargeting && (parentHeight+1)%retargetParams.BlocksPerRetarget() == 0 {
		first, err := b.tree.Ancestor(parent, parentHeight+1-retargetParams.BlocksPerRetarget())
		if err != nil {
			return 0, err
		}
		firstTimestamp = first.Timestamp()
	}
	return pow.NextRequiredBits(retargetParams, parentHeight, parent.Header().Bits,
		parent.Timestamp(), firstTimestamp), nil
}

// checksSideBranch returns whether the body of a block parked on a side
// branch is checked on arrival.
func (b *BlockChain) checksSideBranch(it blocktree.Iterator) bool {
	switch b.sideBranchPolicy {
	case SideBranchCheckAlways:
		return true
	case SideBranchCheckNever:
		return false
	default:
		return b.validationDepth > 0 && it.Height()+b.validationDepth > b.tree.Height()
	}
}

// storeBlock writes the body and the index record of a newly indexed block
// in their own transaction.
func (b *BlockChain) storeBlock(hash *chainhash.Hash, block *model.Block) error {
	dbTx, err := b.dbContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	err = chainstore.StoreBlock(dbTx, hash, block)
	if err != nil {
		return err
	}
	err = b.tree.FlushToDB(dbTx)
	if err != nil {
		return err
	}
	err = dbTx.Commit()
	if err != nil {
		return err
	}
	b.tree.ClearDirtyEntries()
	return nil
}

func (b *BlockChain) flushBlockIndex() error {
	if b.tree.DirtyCount() == 0 {
		return nil
	}
	dbTx, err := b.dbContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	err = b.tree.FlushToDB(dbTx)
	if err != nil {
		return err
	}
	err = dbTx.Commit()
	if err != nil {
		return err
	}
	b.tree.ClearDirtyEntries()
	return nil
}

// connectBestChain moves the best chain to the candidate with the most
// work. A candidate that fails validation is rejected and the next one is
// tried. It returns the last rule error met, if any.
func (b *BlockChain) connectBestChain(result *AppendResult) (ruleErr error, err error) {
	for {
		previous, best := b.tree.ReconsiderBest()
		if previous.Equal(best) {
			return ruleErr, nil
		}

		reorg, err := b.reorganize(previous, best)
		if err != nil {
			if !ruleerrors.IsRuleError(err) {
				return nil, err
			}
			ruleErr = err
			continue
		}

		result.Detached = append(result.Detached, reorg.detached...)
		result.Attached = append(result.Attached, reorg.attached...)
		result.Unconfirmed = append(result.Unconfirmed, reorg.unconfirmed...)
		err = b.afterReorganization(reorg)
		if err != nil {
			return nil, err
		}
		return ruleErr, nil
	}
}

// afterReorganization refreshes the caches derived from the best chain and
// runs the housekeeping a new best block calls for.
func (b *BlockChain) afterReorganization(reorg *reorganization) error {
	b.bestLocator = b.tree.BestLocator()
	b.bestReceivedTime = b.now()

	b.observer.Reorganized(len(reorg.detached), len(reorg.attached))
	b.observer.BestChanged(b.tree.Height())
	b.observer.StageTimed(stats.StageDetach, reorg.detachDuration)
	b.observer.StageTimed(stats.StageAttach, reorg.attachDuration)
	if reorg.verifyDuration > 0 {
		b.observer.StageTimed(stats.StageVerify, reorg.verifyDuration)
	}

	if len(reorg.detached) > 0 {
		log.Infof("Reorganized the best chain: detached %d blocks, attached %d, new best block %s at height %d",
			len(reorg.detached), len(reorg.attached), b.tree.Best().Hash(), b.tree.Height())
	}

	if b.purgeDepth > 0 {
		if b.lazyPurging {
			b.purgePending = true
		} else {
			err := b.purge()
			if err != nil {
				return err
			}
		}
	}
	return b.pruneBranches()
}

// pruneBranches drops the side branches that fell too far behind the best
// chain, together with their stored bodies.
func (b *BlockChain) pruneBranches() error {
	pruned := b.tree.PruneBranches(b.branchRetentionDepth)
	if len(pruned) == 0 {
		return nil
	}
	dbTx, err := b.dbContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	for i := range pruned {
		hash := &pruned[i]
		err = chainstore.DeleteBlockIndexRecord(dbTx, hash)
		if err != nil {
			return err
		}
		err = chainstore.DeleteBlock(dbTx, hash)
		if err != nil {
			return err
		}
	}
	return dbTx.Commit()
}
