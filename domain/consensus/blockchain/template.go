package blockchain

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/utils/merkle"
	"github.com/coinchain/coinchaind/domain/consensus/validation"
	"github.com/pkg/errors"
)

// BlockTemplate is a block extending the best chain, complete but for its
// nonce.
type BlockTemplate struct {
	Block   *model.Block
	Height  uint64
	Subsidy int64
	Fees    int64
}

// GetBlockTemplate returns a block template that confirms as many claims as
// still apply, highest fee rate first.
//
// The coinbase pays the subsidy and the fees to payeeScripts, split by
// rewardFractions and feeFractions respectively. Empty fractions split
// equally. Rounding leftovers go to the first payee.
func (b *BlockChain) GetBlockTemplate(payeeScripts [][]byte, rewardFractions, feeFractions []float64) (
	*BlockTemplate, error) {

	if len(payeeScripts) == 0 {
		return nil, errors.New("a block template needs at least one payee")
	}
	for _, fractions := range [][]float64{rewardFractions, feeFractions} {
		if len(fractions) != 0 && len(fractions) != len(payeeScripts) {
			return nil, errors.Errorf("got %d fractions for %d payees", len(fractions), len(payeeScripts))
		}
	}

	b.lock.RLock()
	defer b.lock.RUnlock()

	best := b.tree.Best()
	height := best.Height() + 1
	bits, err := b.requiredBits(best)
	if err != nil {
		return nil, err
	}
	medianTime, err := b.tree.MedianTimePast(best)
	if err != nil {
		return nil, err
	}
	timestamp := time.Unix(b.now().Unix(), 0)
	if minTimestamp := medianTime.Add(time.Second); timestamp.Before(minTimestamp) {
		timestamp = minTimestamp
	}

	transactions := []*model.Transaction{nil}
	var fees int64
	for _, claim := range b.claims.All() {
		if !validation.IsFinalizedTransaction(claim.Tx, height, timestamp.Unix()) {
			continue
		}
		stillSpendable := true
		for _, outpoint := range claim.Outpoints {
			if _, err := b.spendables.Get(outpoint); err != nil {
				stillSpendable = false
				break
			}
		}
		if !stillSpendable {
			continue
		}
		transactions = append(transactions, claim.Tx)
		fees += claim.Fee
	}

	subsidy := b.params.CalcBlockSubsidy(height)
	coinbase, err := b.templateCoinbase(height, payeeScripts,
		split(subsidy, rewardFractions, len(payeeScripts)), split(fees, feeFractions, len(payeeScripts)))
	if err != nil {
		return nil, err
	}
	transactions[validation.CoinbaseTransactionIndex] = coinbase

	block := &model.Block{
		Header: model.BlockHeader{
			Version:    b.params.HeightInCoinbaseVersion,
			ParentHash: *best.Hash(),
			MerkleRoot: merkle.CalculateTransactionsMerkleRoot(transactions),
			Timestamp:  timestamp,
			Bits:       bits,
		},
		Transactions: transactions,
	}
	log.Debugf("Created a block template at height %d with %d transactions paying %s in fees",
		height, len(transactions), btcutil.Amount(fees))
	return &BlockTemplate{Block: block, Height: height, Subsidy: subsidy, Fees: fees}, nil
}

func (b *BlockChain) templateCoinbase(height uint64, payeeScripts [][]byte, rewards, fees []int64) (
	*model.Transaction, error) {

	signatureScript, err := txscript.NewScriptBuilder().AddInt64(int64(height)).AddInt64(0).Script()
	if err != nil {
		return nil, err
	}
	coinbase := &model.Transaction{
		Version: 1,
		Inputs: []*model.TxIn{{
			PreviousOutpoint: model.NullOutpoint(),
			SignatureScript:  signatureScript,
			Sequence:         model.MaxTxInSequenceNum,
		}},
	}
	for i, script := range payeeScripts {
		coinbase.Outputs = append(coinbase.Outputs, &model.TxOut{
			Value:        rewards[i] + fees[i],
			ScriptPubKey: script,
		})
	}
	return coinbase, nil
}

// split divides amount into parts weighted by fractions, or equal parts
// if fractions is empty. The rounding leftover goes to the first part.
func split(amount int64, fractions []float64, parts int) []int64 {
	weights := fractions
	if len(weights) == 0 {
		weights = make([]float64, parts)
		for i := range weights {
			weights[i] = 1
		}
	}
	var total float64
	for _, weight := range weights {
		if weight > 0 {
			total += weight
		}
	}

	amounts := make([]int64, parts)
	if total == 0 {
		amounts[0] = amount
		return amounts
	}
	var assigned int64
	for i, weight := range weights {
		if weight <= 0 {
			continue
		}
		amounts[i] = int64(float64(amount) * weight / total)
		assigned += amounts[i]
	}
	amounts[0] += amount - assigned
	return amounts
}
