package validation

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/utils/merkle"
	"github.com/pkg/errors"
)

// CoinbaseTransactionIndex is the index of the coinbase in a block.
const CoinbaseTransactionIndex = 0

// CheckBlockStructure checks that block commits to its transactions, that
// its first and only its first transaction is a coinbase and that no
// transaction appears twice.
//
// A duplicated trailing transaction leaves the merkle root unchanged, so a
// block failing these checks may share its hash with a valid block. Callers
// must not record such a block under its hash.
func CheckBlockStructure(block *model.Block) error {
	if len(block.Transactions) == 0 {
		return errors.Wrapf(ruleerrors.ErrNoTransactions, "block does not contain "+
			"any transactions")
	}

	calculatedMerkleRoot := merkle.CalculateTransactionsMerkleRoot(block.Transactions)
	if !block.Header.MerkleRoot.IsEqual(&calculatedMerkleRoot) {
		return errors.Wrapf(ruleerrors.ErrBadMerkleRoot, "block merkle root is invalid - block "+
			"header indicates %s, but calculated value is %s",
			block.Header.MerkleRoot, calculatedMerkleRoot)
	}

	if !block.Transactions[CoinbaseTransactionIndex].IsCoinbase() {
		return errors.Wrapf(ruleerrors.ErrFirstTxNotCoinbase, "first transaction in "+
			"block is not a coinbase")
	}
	for i, tx := range block.Transactions[CoinbaseTransactionIndex+1:] {
		if tx.IsCoinbase() {
			return errors.Wrapf(ruleerrors.ErrMultipleCoinbases, "block contains second coinbase at "+
				"index %d", i+CoinbaseTransactionIndex+1)
		}
	}
	return checkDuplicateTransactions(block)
}

func checkDuplicateTransactions(block *model.Block) error {
	existingTxHashes := make(map[chainhash.Hash]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		txHash := consensushashing.TransactionHash(tx)
		if _, exists := existingTxHashes[*txHash]; exists {
			return errors.Wrapf(ruleerrors.ErrDuplicateTx, "block contains duplicate "+
				"transaction %s", txHash)
		}
		existingTxHashes[*txHash] = struct{}{}
	}
	return nil
}

// CheckBlockSanity runs CheckBlockStructure, then checks every
// transaction in isolation.
func CheckBlockSanity(block *model.Block) error {
	err := CheckBlockStructure(block)
	if err != nil {
		return err
	}

	for _, tx := range block.Transactions {
		err := CheckTransactionSanity(tx)
		if err != nil {
			return errors.Wrapf(err, "transaction %s failed sanity check",
				consensushashing.TransactionHash(tx))
		}
	}
	return nil
}

// CheckTransactionsFinalized checks that every transaction of block is
// final at the given height and time.
func CheckTransactionsFinalized(block *model.Block, blockHeight uint64, blockTime int64) error {
	for _, tx := range block.Transactions {
		if !IsFinalizedTransaction(tx, blockHeight, blockTime) {
			return errors.Wrapf(ruleerrors.ErrUnfinalizedTx, "block contains unfinalized "+
				"transaction %s", consensushashing.TransactionHash(tx))
		}
	}
	return nil
}

// SerializedHeightScript returns the script prefix a coinbase at the given
// height starts with once heights in coinbases are enforced.
func SerializedHeightScript(height uint64) ([]byte, error) {
	return txscript.NewScriptBuilder().AddInt64(int64(height)).Script()
}

// CheckSerializedHeight checks that the signature script of coinbase
// starts with the serialized height.
func CheckSerializedHeight(coinbase *model.Transaction, height uint64) error {
	expected, err := SerializedHeightScript(height)
	if err != nil {
		return err
	}
	if !bytes.HasPrefix(coinbase.Inputs[0].SignatureScript, expected) {
		return errors.Wrapf(ruleerrors.ErrBadCoinbaseHeight, "coinbase signature script "+
			"does not start with the serialized block height %d", height)
	}
	return nil
}
