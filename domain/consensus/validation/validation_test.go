package validation

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/utils/merkle"
	"github.com/pkg/errors"
)

func coinbaseAt(height uint64) *model.Transaction {
	script, _ := SerializedHeightScript(height)
	return &model.Transaction{
		Version: 1,
		Inputs: []*model.TxIn{{
			PreviousOutpoint: model.NullOutpoint(),
			SignatureScript:  append(script, 0x00),
			Sequence:         model.MaxTxInSequenceNum,
		}},
		Outputs: []*model.TxOut{{Value: 50, ScriptPubKey: []byte{0x51}}},
	}
}

func spendTx(prev byte, value int64) *model.Transaction {
	return &model.Transaction{
		Version: 1,
		Inputs: []*model.TxIn{{
			PreviousOutpoint: model.Outpoint{TxHash: chainhash.Hash{prev}},
			SignatureScript:  []byte{0x00},
			Sequence:         model.MaxTxInSequenceNum,
		}},
		Outputs: []*model.TxOut{{Value: value, ScriptPubKey: []byte{0x51}}},
	}
}

func blockOf(txs ...*model.Transaction) *model.Block {
	block := &model.Block{Header: model.BlockHeader{Version: 1}, Transactions: txs}
	block.Header.MerkleRoot = merkle.CalculateTransactionsMerkleRoot(txs)
	return block
}

func TestCheckTransactionSanity(t *testing.T) {
	tests := []struct {
		name     string
		modify   func(tx *model.Transaction)
		expected error
	}{
		{"valid", func(*model.Transaction) {}, nil},
		{"no inputs", func(tx *model.Transaction) { tx.Inputs = nil }, ruleerrors.ErrNoTxInputs},
		{"no outputs", func(tx *model.Transaction) { tx.Outputs = nil }, ruleerrors.ErrNoTxOutputs},
		{"negative output", func(tx *model.Transaction) { tx.Outputs[0].Value = -1 }, ruleerrors.ErrBadTxOutValue},
		{"output overflow", func(tx *model.Transaction) {
			tx.Outputs = append(tx.Outputs,
				&model.TxOut{Value: 21e14}, &model.TxOut{Value: 21e14})
		}, ruleerrors.ErrBadTxOutValue},
		{"duplicate inputs", func(tx *model.Transaction) {
			tx.Inputs = append(tx.Inputs, tx.Inputs[0])
		}, ruleerrors.ErrDuplicateTxInputs},
		{"null input", func(tx *model.Transaction) {
			tx.Inputs = append(tx.Inputs, &model.TxIn{PreviousOutpoint: model.NullOutpoint()})
		}, ruleerrors.ErrBadTxInput},
	}
	for _, test := range tests {
		tx := spendTx(1, 10)
		test.modify(tx)
		err := CheckTransactionSanity(tx)
		if test.expected == nil && err != nil {
			t.Fatalf("TestCheckTransactionSanity: %s: unexpected error %+v", test.name, err)
		}
		if test.expected != nil && !errors.Is(err, test.expected) {
			t.Fatalf("TestCheckTransactionSanity: %s: expected %v, got %v", test.name, test.expected, err)
		}
	}

	coinbase := coinbaseAt(1)
	coinbase.Inputs[0].SignatureScript = []byte{0x01}
	if err := CheckTransactionSanity(coinbase); !errors.Is(err, ruleerrors.ErrBadCoinbaseScriptLen) {
		t.Fatalf("TestCheckTransactionSanity: expected ErrBadCoinbaseScriptLen, got %v", err)
	}
}

func TestCalculateFee(t *testing.T) {
	tx := spendTx(1, 70)
	fee, err := CalculateFee(tx, []*model.Spendable{{Value: 100}})
	if err != nil || fee != 30 {
		t.Fatalf("TestCalculateFee: expected fee 30, got %d (%v)", fee, err)
	}
	_, err = CalculateFee(tx, []*model.Spendable{{Value: 60}})
	if !errors.Is(err, ruleerrors.ErrSpendTooHigh) {
		t.Fatalf("TestCalculateFee: expected ErrSpendTooHigh, got %v", err)
	}

	if fee := MinimumFee(250, 1000); fee != 250 {
		t.Fatalf("TestCalculateFee: expected minimum fee 250, got %d", fee)
	}
	if fee := MinimumFee(250, 0); fee != 0 {
		t.Fatalf("TestCalculateFee: expected no minimum fee, got %d", fee)
	}
}

func TestIsFinalizedTransaction(t *testing.T) {
	tx := spendTx(1, 10)
	tx.LockTime = 100
	if !IsFinalizedTransaction(tx, 50, 0) {
		t.Fatalf("TestIsFinalizedTransaction: maxed sequences do not finalize")
	}
	tx.Inputs[0].Sequence = 0
	if IsFinalizedTransaction(tx, 100, 0) {
		t.Fatalf("TestIsFinalizedTransaction: lock height 100 is final at height 100")
	}
	if !IsFinalizedTransaction(tx, 101, 0) {
		t.Fatalf("TestIsFinalizedTransaction: lock height 100 is not final at height 101")
	}
	tx.LockTime = model.LockTimeThreshold + 10
	if IsFinalizedTransaction(tx, 1_000_000, model.LockTimeThreshold) {
		t.Fatalf("TestIsFinalizedTransaction: time lock compared to a height")
	}
	if !IsFinalizedTransaction(tx, 0, model.LockTimeThreshold+11) {
		t.Fatalf("TestIsFinalizedTransaction: expired time lock is not final")
	}
}

func TestCheckBlockSanity(t *testing.T) {
	valid := blockOf(coinbaseAt(3), spendTx(1, 10))
	if err := CheckBlockSanity(valid); err != nil {
		t.Fatalf("TestCheckBlockSanity: %+v", err)
	}
	if err := CheckSerializedHeight(valid.Transactions[0], 3); err != nil {
		t.Fatalf("TestCheckBlockSanity: CheckSerializedHeight: %+v", err)
	}
	if err := CheckSerializedHeight(valid.Transactions[0], 4); !errors.Is(err, ruleerrors.ErrBadCoinbaseHeight) {
		t.Fatalf("TestCheckBlockSanity: expected ErrBadCoinbaseHeight, got %v", err)
	}

	badRoot := blockOf(coinbaseAt(3))
	badRoot.Header.MerkleRoot = chainhash.Hash{1}
	tests := []struct {
		name     string
		block    *model.Block
		expected error
	}{
		{"empty", blockOf(), ruleerrors.ErrNoTransactions},
		{"bad merkle root", badRoot, ruleerrors.ErrBadMerkleRoot},
		{"no coinbase", blockOf(spendTx(1, 10)), ruleerrors.ErrFirstTxNotCoinbase},
		{"two coinbases", blockOf(coinbaseAt(3), coinbaseAt(4)), ruleerrors.ErrMultipleCoinbases},
		{"duplicate tx", blockOf(coinbaseAt(3), spendTx(1, 10), spendTx(1, 10)), ruleerrors.ErrDuplicateTx},
	}
	for _, test := range tests {
		if err := CheckBlockSanity(test.block); !errors.Is(err, test.expected) {
			t.Fatalf("TestCheckBlockSanity: %s: expected %v, got %v", test.name, test.expected, err)
		}
	}
}

func TestCheckBlockStructureRejectsMerkleTwin(t *testing.T) {
	valid := blockOf(coinbaseAt(3), spendTx(1, 10), spendTx(2, 10))
	if err := CheckBlockStructure(valid); err != nil {
		t.Fatalf("TestCheckBlockStructureRejectsMerkleTwin: %+v", err)
	}

	// Repeating the last transaction of an odd level keeps the merkle root.
	twin := &model.Block{
		Header:       valid.Header,
		Transactions: append(append([]*model.Transaction{}, valid.Transactions...), valid.Transactions[2]),
	}
	twinRoot := merkle.CalculateTransactionsMerkleRoot(twin.Transactions)
	if !twinRoot.IsEqual(&valid.Header.MerkleRoot) {
		t.Fatalf("TestCheckBlockStructureRejectsMerkleTwin: the twin has a different merkle root")
	}
	if err := CheckBlockStructure(twin); !errors.Is(err, ruleerrors.ErrDuplicateTx) {
		t.Fatalf("TestCheckBlockStructureRejectsMerkleTwin: expected ErrDuplicateTx, got %v", err)
	}
}
