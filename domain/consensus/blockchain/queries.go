package blockchain

import (
	"sort"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/blocktree"
	"github.com/coinchain/coinchaind/domain/consensus/chainstore"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/utils/pow"
	"github.com/coinchain/coinchaind/domain/consensus/validation"
	"github.com/coinchain/coinchaind/domain/consensus/verifier"
	"github.com/pkg/errors"
)

// ErrNotFound is returned by lookups of unknown blocks and transactions.
var ErrNotFound = errors.New("not found")

// HaveBlock returns whether the block is indexed or waits in the orphan
// pool.
func (b *BlockChain) HaveBlock(hash *chainhash.Hash) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.tree.Has(hash) || b.orphans.has(hash)
}

// HaveTx returns whether the transaction is confirmed on the best chain,
// including in purged blocks, or, unless mustBeConfirmed is set, claimed.
func (b *BlockChain) HaveTx(txHash *chainhash.Hash, mustBeConfirmed bool) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if !mustBeConfirmed && b.claims.Has(txHash) {
		return true
	}
	if b.spendables.IsPurged(txHash) {
		return true
	}
	_, err := chainstore.FetchTxIndexEntry(b.dbContext.NoTx(), txHash)
	return err == nil
}

// IsSpent returns whether outpoint is spent by the best chain. Outputs that
// never existed are reported as spent.
func (b *BlockChain) IsSpent(outpoint model.Outpoint) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.spendables.IsSpent(outpoint)
}

// GetUnspents returns the outputs paying to script that can be spent.
//
// A before of 0 includes everything. Below model.LockTimeThreshold, before
// is a block height and only outputs confirmed below it are included.
// Otherwise it is a unix time: every confirmed output is included, plus the
// outputs of claims made before it. Outputs spent by a claim are never
// included.
func (b *BlockChain) GetUnspents(script []byte, before uint32) []*model.Unspent {
	b.lock.RLock()
	defer b.lock.RUnlock()

	var beforeHeight uint64
	includeClaims := true
	var claimedBefore time.Time
	switch {
	case before == 0:
	case before < model.LockTimeThreshold:
		beforeHeight = uint64(before)
		includeClaims = false
	default:
		claimedBefore = time.Unix(int64(before), 0)
	}

	var unspents []*model.Unspent
	for _, spendable := range b.spendables.UnspentsForScript(script, beforeHeight) {
		if _, ok := b.claims.ClaimOf(spendable.Outpoint); ok {
			continue
		}
		unspents = append(unspents, &model.Unspent{Spendable: *spendable, Confirmed: true})
	}
	if !includeClaims {
		return unspents
	}

	var claimed []*model.Unspent
	for _, claim := range b.claims.All() {
		if !claimedBefore.IsZero() && !claim.ClaimedAt.Before(claimedBefore) {
			continue
		}
		for outputIndex, output := range claim.Tx.Outputs {
			if string(output.ScriptPubKey) != string(script) {
				continue
			}
			claimed = append(claimed, &model.Unspent{
				Spendable: model.Spendable{
					Outpoint:     model.NewOutpoint(&claim.TxHash, uint32(outputIndex)),
					Value:        output.Value,
					ScriptPubKey: output.ScriptPubKey,
				},
				ClaimedAt: claim.ClaimedAt,
			})
		}
	}
	sort.SliceStable(claimed, func(i, j int) bool {
		return claimed[i].ClaimedAt.Before(claimed[j].ClaimedAt)
	})
	return append(unspents, claimed...)
}

// CheckTransaction returns whether tx could be claimed, with its inputs
// verified.
func (b *BlockChain) CheckTransaction(tx *model.Transaction) bool {
	_, _, err := b.TryClaim(tx, true)
	return err == nil
}

// TryClaim checks whether tx could be claimed without claiming it, and
// returns the outpoints it spends and the fee it pays.
func (b *BlockChain) TryClaim(tx *model.Transaction, verify bool) ([]model.Outpoint, int64, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.claims.TryClaim(tx, b.spendables, b.claimVerifier(verify))
}

// Claim claims the outputs tx spends until tx is confirmed or evicted.
func (b *BlockChain) Claim(tx *model.Transaction, verify bool) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	err := b.claims.Claim(tx, b.spendables, b.claimVerifier(verify))
	if err != nil {
		return err
	}
	b.observer.ClaimsChanged(b.claims.Count())
	return nil
}

func (b *BlockChain) claimVerifier(verify bool) verifier.Verifier {
	if !verify {
		return nil
	}
	return b.verifier
}

// ClaimCount returns the number of claimed transactions.
func (b *BlockChain) ClaimCount() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.claims.Count()
}

// BestLocator returns a locator for the best chain.
func (b *BlockChain) BestLocator() model.BlockLocator {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.bestLocator
}

// IteratorFromLocator returns the first block of locator on the best
// chain, or genesis.
func (b *BlockChain) IteratorFromLocator(locator model.BlockLocator) blocktree.Iterator {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.tree.IteratorFromLocator(locator)
}

// DistanceBack returns how far below the best block locator forks off.
func (b *BlockChain) DistanceBack(locator model.BlockLocator) uint64 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.tree.DistanceBack(locator)
}

// GetBlock returns the block with the given hash. If no block has that
// hash, it is taken as a transaction hash and the best chain block
// confirming that transaction is returned.
func (b *BlockChain) GetBlock(hash *chainhash.Hash) (*model.Block, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if !b.tree.Has(hash) {
		entry, err := chainstore.FetchTxIndexEntry(b.dbContext.NoTx(), hash)
		if err != nil {
			return nil, b.notFound(err, "block or transaction %s", hash)
		}
		hash = &entry.BlockHash
	}
	block, err := chainstore.FetchBlock(b.dbContext.NoTx(), hash)
	if err != nil {
		return nil, b.notFound(err, "body of block %s", hash)
	}
	return block, nil
}

// GetBlockAtHeight returns the best chain block at the given height.
func (b *BlockChain) GetBlockAtHeight(height uint64) (*model.Block, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	it, ok := b.tree.IteratorAtHeight(height)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no block at height %d", height)
	}
	block, err := chainstore.FetchBlock(b.dbContext.NoTx(), it.Hash())
	if err != nil {
		return nil, b.notFound(err, "body of block %s", it.Hash())
	}
	return block, nil
}

// GetBlockHeader returns the header of an indexed block. Headers of purged
// blocks are kept.
func (b *BlockChain) GetBlockHeader(hash *chainhash.Hash) (*model.BlockHeader, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	it, ok := b.tree.Iterator(hash)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "block %s", hash)
	}
	return it.Header(), nil
}

// GetBlockHeaderAtHeight returns the header of the best chain block at the
// given height.
func (b *BlockChain) GetBlockHeaderAtHeight(height uint64) (*model.BlockHeader, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	it, ok := b.tree.IteratorAtHeight(height)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no block at height %d", height)
	}
	return it.Header(), nil
}

// GetTransaction returns a confirmed or claimed transaction.
func (b *BlockChain) GetTransaction(txHash *chainhash.Hash) (*model.TxInfo, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if claim, ok := b.claims.Get(txHash); ok {
		return &model.TxInfo{Tx: claim.Tx, Height: -1, Timestamp: claim.ClaimedAt}, nil
	}

	entry, err := chainstore.FetchTxIndexEntry(b.dbContext.NoTx(), txHash)
	if err != nil {
		return nil, b.notFound(err, "transaction %s", txHash)
	}
	it, ok := b.tree.Iterator(&entry.BlockHash)
	if !ok {
		return nil, errors.Errorf("transaction %s is confirmed by unknown block %s", txHash, entry.BlockHash)
	}
	block, err := chainstore.FetchBlock(b.dbContext.NoTx(), &entry.BlockHash)
	if err != nil {
		return nil, err
	}
	if int(entry.Index) >= len(block.Transactions) {
		return nil, errors.Errorf("transaction %s is indexed at %d in block %s, which has %d transactions",
			txHash, entry.Index, entry.BlockHash, len(block.Transactions))
	}
	return &model.TxInfo{
		Tx:        block.Transactions[entry.Index],
		BlockHash: &entry.BlockHash,
		Height:    int64(it.Height()),
		Timestamp: it.Timestamp(),
	}, nil
}

func (b *BlockChain) notFound(err error, format string, args ...interface{}) error {
	if chainstore.IsNotFoundError(err) {
		return errors.Wrapf(ErrNotFound, format, args...)
	}
	return err
}

// GetHeight returns the height of the best chain block with the given
// hash, or of the best chain block confirming the transaction with that
// hash. It returns -1 if there is none.
func (b *BlockChain) GetHeight(hash *chainhash.Hash) int64 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.height(hash)
}

func (b *BlockChain) height(hash *chainhash.Hash) int64 {
	if it, ok := b.tree.Iterator(hash); ok {
		if !b.tree.IsInMainChain(hash) {
			return -1
		}
		return int64(it.Height())
	}
	entry, err := chainstore.FetchTxIndexEntry(b.dbContext.NoTx(), hash)
	if err != nil {
		return -1
	}
	it, ok := b.tree.Iterator(&entry.BlockHash)
	if !ok || !b.tree.IsInMainChain(&entry.BlockHash) {
		return -1
	}
	return int64(it.Height())
}

// GetDepthInMainChain returns the number of best chain blocks from the
// block or transaction with the given hash to the best block, both
// included. It is 0 if the hash is not on the best chain.
func (b *BlockChain) GetDepthInMainChain(hash *chainhash.Hash) uint64 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.depthInMainChain(hash)
}

func (b *BlockChain) depthInMainChain(hash *chainhash.Hash) uint64 {
	height := b.height(hash)
	if height < 0 {
		return 0
	}
	return b.tree.Height() - uint64(height) + 1
}

// GetBlocksToMaturity returns how many blocks must still be appended to
// the best chain before the outputs of tx can be spent. It is 0 for anything
// but coinbases.
func (b *BlockChain) GetBlocksToMaturity(tx *model.Transaction) uint64 {
	if !tx.IsCoinbase() {
		return 0
	}
	b.lock.RLock()
	defer b.lock.RUnlock()

	depth := b.depthInMainChain(consensushashing.TransactionHash(tx))
	if depth == 0 {
		return b.params.MaturityWindow() + 1
	}
	confirmations := depth - 1
	if confirmations >= b.params.MaturityWindow() {
		return 0
	}
	return b.params.MaturityWindow() - confirmations
}

// IsInMainChain returns whether the block with the given hash is on the
// best chain.
func (b *BlockChain) IsInMainChain(hash *chainhash.Hash) bool {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.tree.IsInMainChain(hash)
}

// BestHeight returns the height of the best block.
func (b *BlockChain) BestHeight() uint64 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.tree.Height()
}

// Best returns the best block.
func (b *BlockChain) Best() blocktree.Iterator {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.tree.Best()
}

// DeepestDepth returns the lowest best chain height whose body and spend
// history were not purged.
func (b *BlockChain) DeepestDepth() uint64 {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.spendables.PurgedBelow()
}

// BestReceivedTime returns when the best chain last changed.
func (b *BlockChain) BestReceivedTime() time.Time {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.bestReceivedTime
}

// GetDifficulty returns the difficulty of the block it, or of the best
// block if it is not valid.
func (b *BlockChain) GetDifficulty(it blocktree.Iterator) float64 {
	if !it.Valid() {
		it = b.Best()
	}
	return pow.Difficulty(it.Header().Bits, b.params.PowLimitBits)
}

// MedianTimePast returns the median timestamp of the blocks ending at it.
func (b *BlockChain) MedianTimePast(it blocktree.Iterator) (time.Time, error) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.tree.MedianTimePast(it)
}

// IsFinal returns whether tx is final in a block at the given height and
// time. A zero height means the next block, and a zero time means now.
func (b *BlockChain) IsFinal(tx *model.Transaction, height uint64, blockTime int64) bool {
	if height == 0 {
		height = b.BestHeight() + 1
	}
	if blockTime == 0 {
		blockTime = b.now().Unix()
	}
	return validation.IsFinalizedTransaction(tx, height, blockTime)
}

// SpendableCount returns the number of confirmed unspent outputs, mature
// or not.
func (b *BlockChain) SpendableCount() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.spendables.Count()
}

// UTXOCommitment returns the commitment to the set of confirmed unspent
// outputs.
func (b *BlockChain) UTXOCommitment() chainhash.Hash {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.spendables.Commitment()
}

// OrphanCount returns the number of blocks waiting for their parent.
func (b *BlockChain) OrphanCount() int {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.orphans.count()
}
