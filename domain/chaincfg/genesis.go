package chaincfg

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/utils/merkle"
)

// genesisOutputScript is OP_RETURN: the genesis reward can never be spent.
var genesisOutputScript = []byte{0x6a}

// newGenesisBlock builds the genesis block of a network. Its coinbase
// carries message in the signature script and pays the base subsidy to an
// unspendable script.
func newGenesisBlock(message string, timestamp time.Time, bits uint32, nonce uint32, subsidy int64) *model.Block {
	coinbase := &model.Transaction{
		Version: 1,
		Inputs: []*model.TxIn{{
			PreviousOutpoint: model.NullOutpoint(),
			SignatureScript:  append([]byte{0x00, byte(len(message))}, message...),
			Sequence:         model.MaxTxInSequenceNum,
		}},
		Outputs: []*model.TxOut{{
			Value:        subsidy,
			ScriptPubKey: genesisOutputScript,
		}},
		LockTime: 0,
	}
	transactions := []*model.Transaction{coinbase}
	return &model.Block{
		Header: model.BlockHeader{
			Version:    1,
			ParentHash: chainhash.Hash{},
			MerkleRoot: merkle.CalculateTransactionsMerkleRoot(transactions),
			Timestamp:  timestamp,
			Bits:       bits,
			Nonce:      nonce,
		},
		Transactions: transactions,
	}
}

var genesisBlock = newGenesisBlock("coinchain mainnet genesis",
	time.Unix(1735689600, 0), mainPowLimitBits, 0, 50*coin)

var genesisHash = consensushashing.BlockHash(genesisBlock)

var testnetGenesisBlock = newGenesisBlock("coinchain testnet genesis",
	time.Unix(1735689601, 0), testnetPowLimitBits, 0, 50*coin)

var testnetGenesisHash = consensushashing.BlockHash(testnetGenesisBlock)

var regtestGenesisBlock = newGenesisBlock("coinchain regtest genesis",
	time.Unix(1735689602, 0), regressionPowLimitBits, 0, 50*coin)

var regtestGenesisHash = consensushashing.BlockHash(regtestGenesisBlock)
