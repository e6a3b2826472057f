package blockchain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/coinchain/coinchaind/domain/chaincfg"
	"github.com/coinchain/coinchaind/domain/consensus/chainstore"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/utils/merkle"
	"github.com/coinchain/coinchaind/domain/consensus/utils/mining"
	"github.com/coinchain/coinchaind/domain/consensus/verifier"
	"github.com/coinchain/coinchaind/infrastructure/db/database"
	"github.com/coinchain/coinchaind/infrastructure/db/database/ldb"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

// testParams returns regtest parameters with a short maturity window and a
// version majority window small enough to cross in a test.
func testParams() *chaincfg.Params {
	params := chaincfg.RegressionNetParams.Copy()
	params.CoinbaseMaturity = 0
	params.BlockUpgradeNumToCheck = 4
	params.BlockEnforceNumRequired = 3
	params.BlockRejectNumRequired = 4
	return params
}

type harness struct {
	t      *testing.T
	params *chaincfg.Params
	config Config
	dir    string

	db    database.Database
	chain *BlockChain

	key    *secp256k1.PrivateKey
	script []byte

	clock time.Time
	rd    *rand.Rand
	tag   int64
}

func newHarness(t *testing.T, configure func(cfg *Config)) *harness {
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	script, err := verifier.PayToPubKeyScript(key.PubKey())
	require.NoError(t, err)

	params := testParams()
	h := &harness{
		t:      t,
		params: params,
		dir:    t.TempDir(),
		key:    key,
		script: script,
		clock:  params.GenesisBlock.Header.Timestamp.Add(time.Hour),
		rd:     rand.New(rand.NewSource(0)),
	}
	h.config = Config{
		Params:            params,
		VerificationDepth: 1,
		TimeSource:        func() time.Time { return h.clock },
	}
	if configure != nil {
		configure(&h.config)
	}
	h.open()
	t.Cleanup(h.close)
	return h
}

func (h *harness) open() {
	db, err := ldb.NewLevelDB(h.dir, 8)
	require.NoError(h.t, err)
	h.db = db

	cfg := h.config
	cfg.DatabaseContext = chainstore.New(db)
	h.chain, err = New(&cfg)
	require.NoError(h.t, err)
}

func (h *harness) close() {
	if h.chain != nil {
		require.NoError(h.t, h.chain.Close())
		h.chain = nil
	}
	if h.db != nil {
		require.NoError(h.t, h.db.Close())
		h.db = nil
	}
}

func (h *harness) reopen() {
	h.close()
	h.open()
}

// blockOn builds a solved block extending parent, which is at
// parentHeight. Its coinbase pays the subsidy to the harness key.
func (h *harness) blockOn(parent *model.BlockHeader, parentHeight uint64, txs ...*model.Transaction) *model.Block {
	height := parentHeight + 1
	coinbase := h.coinbase(height, h.params.CalcBlockSubsidy(height))
	return h.solve(parent, h.params.HeightInCoinbaseVersion, append([]*model.Transaction{coinbase}, txs...))
}

func (h *harness) coinbase(height uint64, value int64) *model.Transaction {
	h.tag++
	signatureScript, err := txscript.NewScriptBuilder().AddInt64(int64(height)).AddInt64(1000 + h.tag).Script()
	require.NoError(h.t, err)
	return &model.Transaction{
		Version: 1,
		Inputs: []*model.TxIn{{
			PreviousOutpoint: model.NullOutpoint(),
			SignatureScript:  signatureScript,
			Sequence:         model.MaxTxInSequenceNum,
		}},
		Outputs: []*model.TxOut{{Value: value, ScriptPubKey: h.script}},
	}
}

func (h *harness) solve(parent *model.BlockHeader, version int32, txs []*model.Transaction) *model.Block {
	timestamp := parent.Timestamp.Add(time.Minute)
	if h.clock.Before(timestamp) {
		h.clock = timestamp
	}
	block := &model.Block{
		Header: model.BlockHeader{
			Version:    version,
			ParentHash: *consensushashing.HeaderHash(parent),
			MerkleRoot: merkle.CalculateTransactionsMerkleRoot(txs),
			Timestamp:  timestamp,
			Bits:       h.params.PowLimitBits,
		},
		Transactions: txs,
	}
	require.NoError(h.t, mining.SolveBlock(block, h.rd))
	return block
}

// mine appends a block with txs on top of the best block and requires it
// to become the new best block.
func (h *harness) mine(txs ...*model.Transaction) *model.Block {
	best := h.chain.Best()
	block := h.blockOn(best.Header(), best.Height(), txs...)
	h.mustAppend(block)
	require.Equal(h.t, *consensushashing.BlockHash(block), *h.chain.Best().Hash())
	return block
}

func (h *harness) mineN(n int) []*model.Block {
	blocks := make([]*model.Block, n)
	for i := range blocks {
		blocks[i] = h.mine()
	}
	return blocks
}

func (h *harness) mustAppend(block *model.Block) *AppendResult {
	result, err := h.chain.Append(block)
	require.NoError(h.t, err)
	require.Equal(h.t, ruleerrors.OutcomeAccepted, result.Outcome)
	return result
}

// spend returns a signed transaction spending the harness key output at
// outpoint, worth value, back to the harness key minus fee.
func (h *harness) spend(outpoint model.Outpoint, value, fee int64) *model.Transaction {
	tx := &model.Transaction{
		Version: 1,
		Inputs: []*model.TxIn{{
			PreviousOutpoint: outpoint,
			Sequence:         model.MaxTxInSequenceNum,
		}},
		Outputs: []*model.TxOut{{Value: value - fee, ScriptPubKey: h.script}},
	}
	require.NoError(h.t, verifier.SignInput(tx, 0, h.script, h.key))
	return tx
}

func coinbaseOutpoint(block *model.Block) model.Outpoint {
	return model.NewOutpoint(consensushashing.TransactionHash(block.Coinbase()), 0)
}

func blockHash(block *model.Block) *chainhash.Hash {
	return consensushashing.BlockHash(block)
}

// snapshot is the part of the chain state a failed append must leave
// untouched.
type snapshot struct {
	best       chainhash.Hash
	height     uint64
	commitment chainhash.Hash
	spendables int
	claims     int
}

func (h *harness) snapshot() snapshot {
	return snapshot{
		best:       *h.chain.Best().Hash(),
		height:     h.chain.BestHeight(),
		commitment: h.chain.UTXOCommitment(),
		spendables: h.chain.SpendableCount(),
		claims:     h.chain.ClaimCount(),
	}
}
