package blockchain

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/blocktree"
	"github.com/coinchain/coinchaind/domain/consensus/chainstore"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/validation"
	"github.com/coinchain/coinchaind/domain/consensus/verifier"
	"github.com/coinchain/coinchaind/infrastructure/logger"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
)

// dbOperation is a store write that mirrors an in-memory mutation. The
// operations of a reorganization are applied in order in one transaction.
type dbOperation func(dbContext chainstore.Context) error

// reorganization collects what moving the best chain did, and how to undo
// it.
type reorganization struct {
	journal    journal
	operations []dbOperation

	detached    []chainhash.Hash
	attached    []chainhash.Hash
	unconfirmed []chainhash.Hash

	detachDuration time.Duration
	attachDuration time.Duration
	verifyDuration time.Duration
}

func (r *reorganization) write(operation dbOperation) {
	r.operations = append(r.operations, operation)
}

// reorganize moves the best chain from previous to best, which the tree
// already points to. On any failure memory is rolled back and the best
// pointer moved back to previous. If a block on the path broke a rule, it
// is rejected and the rule error returned.
//
// This function MUST be called with the chain lock held (for writes).
func (b *BlockChain) reorganize(previous, best blocktree.Iterator) (*reorganization, error) {
	detach, attach, err := b.tree.PathToCommonAncestor(previous, best)
	if err != nil {
		setBestErr := b.tree.SetBest(previous)
		if setBestErr != nil {
			return nil, setBestErr
		}
		return nil, err
	}

	r := &reorganization{}
	failing, err := b.applyReorganization(r, detach, attach)
	if err == nil {
		err = b.commitReorganization(r, detach, attach)
		if err == nil {
			return r, nil
		}
		failing = blocktree.Iterator{}
	}

	rollbackErr := r.journal.rollback()
	if rollbackErr != nil {
		return nil, rollbackErr
	}
	setBestErr := b.tree.SetBest(previous)
	if setBestErr != nil {
		return nil, setBestErr
	}
	if !ruleerrors.IsRuleError(err) {
		return nil, err
	}
	if !failing.Valid() {
		// Only a rejected block lets the caller move on to another
		// candidate.
		return nil, errors.Errorf("reorganization failed on no particular block: %s", err)
	}

	log.Warnf("Rejecting block %s at height %d: %s", failing.Hash(), failing.Height(), err)
	markErr := b.tree.MarkRejected(failing)
	if markErr != nil {
		return nil, markErr
	}
	flushErr := b.flushBlockIndex()
	if flushErr != nil {
		return nil, flushErr
	}
	return nil, err
}

// applyReorganization performs the in-memory part of a reorganization and
// journals every mutation. On failure it returns the block that caused it,
// if any.
func (b *BlockChain) applyReorganization(r *reorganization, detach, attach []blocktree.Iterator) (
	failing blocktree.Iterator, err error) {

	if len(detach) > 0 && len(attach) > 0 {
		forkHeight := attach[0].Height() - 1
		if forkHeight+1 < b.spendables.PurgedBelow() {
			return attach[0], errors.Wrapf(ruleerrors.ErrPrunedBlock, "block %s forks from height %d, "+
				"below the purged height %d", attach[0].Hash(), forkHeight, b.spendables.PurgedBelow())
		}
	}

	start := time.Now()
	var restage []*model.Transaction
	for _, it := range detach {
		txs, err := b.detachBlock(r, it)
		if err != nil {
			return blocktree.Iterator{}, err
		}
		// Detached blocks are processed tip first; keep the transactions
		// in chain order.
		restage = append(txs, restage...)
	}
	b.restage(r, restage)
	r.detachDuration = time.Since(start)

	start = time.Now()
	for _, it := range attach {
		err := b.attachBlock(r, it)
		if err != nil {
			return it, err
		}
	}
	for _, claim := range b.claims.Revalidate(b.spendables) {
		r.journal.push(func() error { return b.claims.Restore(claim) })
	}
	r.attachDuration = time.Since(start)

	unconfirmed := r.unconfirmed[:0]
	for i := range r.unconfirmed {
		if b.claims.Has(&r.unconfirmed[i]) {
			unconfirmed = append(unconfirmed, r.unconfirmed[i])
		}
	}
	r.unconfirmed = unconfirmed
	return blocktree.Iterator{}, nil
}

// detachBlock undoes the spends of the best chain block it and returns
// its non-coinbase transactions.
func (b *BlockChain) detachBlock(r *reorganization, it blocktree.Iterator) ([]*model.Transaction, error) {
	hash := it.Hash()
	height := it.Height()
	block, err := chainstore.FetchBlock(b.dbContext.NoTx(), hash)
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching block %s to detach", hash)
	}
	undo, err := chainstore.FetchUndoData(b.dbContext.NoTx(), hash)
	if err != nil {
		return nil, errors.Wrapf(err, "failed fetching undo data of block %s", hash)
	}

	for txIndex := len(block.Transactions) - 1; txIndex >= 0; txIndex-- {
		tx := block.Transactions[txIndex]
		txHash := consensushashing.TransactionHash(tx)
		for outputIndex, output := range tx.Outputs {
			issued := &model.Spendable{
				Outpoint:     model.NewOutpoint(txHash, uint32(outputIndex)),
				Value:        output.Value,
				ScriptPubKey: output.ScriptPubKey,
				Confirmation: model.Confirmation{
					Height:     height,
					Index:      uint32(txIndex),
					IsCoinbase: txIndex == validation.CoinbaseTransactionIndex,
				},
			}
			err := b.spendables.Unissue(issued.Outpoint)
			if err != nil {
				return nil, errors.Wrapf(err, "block %s", hash)
			}
			r.journal.push(func() error { return b.spendables.Restore(issued) })
			r.write(func(dbContext chainstore.Context) error {
				return chainstore.DeleteSpendable(dbContext, &issued.Outpoint)
			})
		}
		r.write(func(dbContext chainstore.Context) error {
			return chainstore.DeleteTxIndexEntry(dbContext, txHash)
		})
		if txIndex == validation.CoinbaseTransactionIndex {
			continue
		}

		for inputIndex := len(tx.Inputs) - 1; inputIndex >= 0; inputIndex-- {
			if len(undo) == 0 {
				return nil, errors.Errorf("undo data of block %s is too short", hash)
			}
			spent := undo[len(undo)-1]
			undo = undo[:len(undo)-1]
			if spent.Outpoint != tx.Inputs[inputIndex].PreviousOutpoint {
				return nil, errors.Errorf("undo data of block %s restores %s, but input %d of %s "+
					"spends %s", hash, spent.Outpoint, inputIndex, txHash, tx.Inputs[inputIndex].PreviousOutpoint)
			}
			err := b.spendables.Restore(spent)
			if err != nil {
				return nil, err
			}
			r.journal.push(func() error { return b.spendables.Unissue(spent.Outpoint) })
			r.write(func(dbContext chainstore.Context) error {
				return chainstore.StoreSpendable(dbContext, spent)
			})
		}
	}
	if len(undo) != 0 {
		return nil, errors.Errorf("undo data of block %s has %d unused records", hash, len(undo))
	}
	r.write(func(dbContext chainstore.Context) error {
		return chainstore.DeleteUndoData(dbContext, hash)
	})

	if through, ok := b.spendables.MaturedThrough(height); ok {
		immatureFrom := b.spendables.ImmatureFrom()
		b.spendables.Dematurate(through)
		if immatureFrom > 0 {
			r.journal.push(func() error {
				b.spendables.Maturate(immatureFrom - 1)
				return nil
			})
		}
	}

	r.detached = append(r.detached, *hash)
	log.Debugf("Detached block %s at height %d", hash, height)
	return block.Transactions[validation.CoinbaseTransactionIndex+1:], nil
}

// restage claims the transactions of detached blocks again, so that they
// can be confirmed by a later block. Transactions that no longer apply are
// dropped. Their inputs were verified when they were confirmed.
func (b *BlockChain) restage(r *reorganization, txs []*model.Transaction) {
	for _, tx := range txs {
		txHash := consensushashing.TransactionHash(tx)
		err := b.claims.Claim(tx, b.spendables, nil)
		if err != nil {
			log.Debugf("Dropping transaction %s of a detached block: %s", txHash, err)
			continue
		}
		r.journal.push(func() error {
			b.claims.Remove(txHash)
			return nil
		})
		r.unconfirmed = append(r.unconfirmed, *txHash)
	}
}

// shouldVerify returns whether the inputs of a block attached at height
// are verified.
func (b *BlockChain) shouldVerify(height uint64) bool {
	return b.verificationDepth > 0 && height >= b.verificationDepth
}

// attachBlock validates the block against the best chain it extends and
// applies its spends.
func (b *BlockChain) attachBlock(r *reorganization, it blocktree.Iterator) error {
	hash := it.Hash()
	height := it.Height()
	block, err := chainstore.FetchBlock(b.dbContext.NoTx(), hash)
	if err != nil {
		return errors.Wrapf(err, "failed fetching block %s to attach", hash)
	}

	if through, ok := b.spendables.MaturedThrough(height); ok {
		immatureFrom := b.spendables.ImmatureFrom()
		b.spendables.Maturate(through)
		r.journal.push(func() error {
			b.spendables.Dematurate(immatureFrom)
			return nil
		})
	}

	err = validation.CheckBlockSanity(block)
	if err != nil {
		return err
	}
	err = validation.CheckTransactionsFinalized(block, height, block.Header.Timestamp.Unix())
	if err != nil {
		return err
	}
	if b.enforcesHeightInCoinbase(block.Header.Version, it.Parent()) {
		err = validation.CheckSerializedHeight(block.Coinbase(), height)
		if err != nil {
			return err
		}
	}

	verify := b.shouldVerify(height)
	var fees int64
	var undo []*model.Spendable
	for txIndex, tx := range block.Transactions {
		if txIndex == validation.CoinbaseTransactionIndex {
			continue
		}
		spents, err := b.redeemInputs(r, tx)
		if err != nil {
			return err
		}
		fee, err := validation.CalculateFee(tx, spents)
		if err != nil {
			return err
		}
		fees += fee
		if fees < 0 || fees > btcutil.MaxSatoshi {
			return errors.Wrapf(ruleerrors.ErrBadFees, "total fees of block %s overflow", hash)
		}

		if verify {
			start := time.Now()
			err = verifier.VerifyTransaction(b.verifier, tx, spents)
			r.verifyDuration += time.Since(start)
			if err != nil {
				return err
			}
		}

		err = b.issueOutputs(r, tx, height, uint32(txIndex))
		if err != nil {
			return err
		}
		undo = append(undo, spents...)

		for _, claim := range b.claims.Confirm(tx) {
			r.journal.push(func() error { return b.claims.Restore(claim) })
		}
	}

	coinbase := block.Coinbase()
	maxCoinbaseValue := b.params.CalcBlockSubsidy(height) + fees
	if coinbase.OutputsValue() > maxCoinbaseValue {
		return errors.Wrapf(ruleerrors.ErrBadCoinbaseValue, "coinbase of block %s pays %s, "+
			"the maximum is %s", hash, btcutil.Amount(coinbase.OutputsValue()), btcutil.Amount(maxCoinbaseValue))
	}
	err = b.issueOutputs(r, coinbase, height, validation.CoinbaseTransactionIndex)
	if err != nil {
		return err
	}

	r.write(func(dbContext chainstore.Context) error {
		return chainstore.StoreUndoData(dbContext, hash, undo)
	})
	for txIndex, tx := range block.Transactions {
		txHash := consensushashing.TransactionHash(tx)
		index := uint32(txIndex)
		r.write(func(dbContext chainstore.Context) error {
			return chainstore.StoreTxIndexEntry(dbContext, txHash, hash, index)
		})
	}

	r.attached = append(r.attached, *hash)
	log.Debugf("Attached block %s at height %d with %d transactions", hash, height, len(block.Transactions))
	log.Tracef("Undo data of block %s: %s", hash, logger.NewLogClosure(func() string { return spew.Sdump(undo) }))
	return nil
}

func (b *BlockChain) redeemInputs(r *reorganization, tx *model.Transaction) ([]*model.Spendable, error) {
	spents := make([]*model.Spendable, len(tx.Inputs))
	for i, input := range tx.Inputs {
		spent, err := b.spendables.Redeem(input.PreviousOutpoint)
		if err != nil {
			return nil, err
		}
		r.journal.push(func() error { return b.spendables.Restore(spent) })
		r.write(func(dbContext chainstore.Context) error {
			return chainstore.DeleteSpendable(dbContext, &spent.Outpoint)
		})
		spents[i] = spent
	}
	return spents, nil
}

func (b *BlockChain) issueOutputs(r *reorganization, tx *model.Transaction, height uint64, txIndex uint32) error {
	txHash := consensushashing.TransactionHash(tx)
	confirmation := model.Confirmation{
		Height:     height,
		Index:      txIndex,
		IsCoinbase: txIndex == validation.CoinbaseTransactionIndex,
	}
	for outputIndex, output := range tx.Outputs {
		issued := &model.Spendable{
			Outpoint:     model.NewOutpoint(txHash, uint32(outputIndex)),
			Value:        output.Value,
			ScriptPubKey: output.ScriptPubKey,
			Confirmation: confirmation,
		}
		err := b.spendables.Issue(issued.Outpoint, issued.Value, issued.ScriptPubKey, confirmation, true)
		if err != nil {
			return err
		}
		r.journal.push(func() error { return b.spendables.Unissue(issued.Outpoint) })
		r.write(func(dbContext chainstore.Context) error {
			return chainstore.StoreSpendable(dbContext, issued)
		})
	}
	return nil
}

// commitReorganization moves the states of the blocks on the path and
// writes the whole reorganization in one store transaction.
func (b *BlockChain) commitReorganization(r *reorganization, detach, attach []blocktree.Iterator) error {
	for _, it := range detach {
		err := b.changeState(r, it, blocktree.EventPark)
		if err != nil {
			return err
		}
	}
	for _, it := range attach {
		if it.State() == blocktree.StateIndexed {
			err := b.changeState(r, it, blocktree.EventValidate)
			if err != nil {
				return err
			}
		}
		err := b.changeState(r, it, blocktree.EventConnect)
		if err != nil {
			return err
		}
	}

	dbTx, err := b.dbContext.NewTx()
	if err != nil {
		return err
	}
	defer dbTx.RollbackUnlessClosed()

	for _, operation := range r.operations {
		err = operation(dbTx)
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
		return errors.Wrap(err, "failed committing a reorganization")
	}
	b.tree.ClearDirtyEntries()
	return nil
}

func (b *BlockChain) changeState(r *reorganization, it blocktree.Iterator, event blocktree.Event) error {
	previous, err := b.tree.SetState(it, event)
	if err != nil {
		return err
	}
	r.journal.push(func() error { return b.tree.RevertState(it, previous) })
	return nil
}
