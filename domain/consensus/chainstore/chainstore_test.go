package chainstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/database/serialization"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/infrastructure/db/database/boltdb"
	"github.com/coinchain/coinchaind/infrastructure/db/database/ldb"
	"github.com/stretchr/testify/require"
)

func forEachBackend(t *testing.T, testFunc func(t *testing.T, ctx *DatabaseContext)) {
	t.Run("ldb", func(t *testing.T) {
		db, err := ldb.NewLevelDB(t.TempDir(), 8)
		require.NoError(t, err)
		defer db.Close()
		testFunc(t, New(db))
	})
	t.Run("bolt", func(t *testing.T) {
		db, err := boltdb.NewBoltDB(filepath.Join(t.TempDir(), "chain.db"))
		require.NoError(t, err)
		defer db.Close()
		testFunc(t, New(db))
	})
}

func testBlock() *model.Block {
	return &model.Block{
		Header: model.BlockHeader{Version: 1, Timestamp: time.Unix(1700000000, 0), Bits: 0x207fffff},
		Transactions: []*model.Transaction{{
			Version: 1,
			Inputs: []*model.TxIn{{
				PreviousOutpoint: model.NullOutpoint(),
				SignatureScript:  []byte{0x01, 0x01},
				Sequence:         model.MaxTxInSequenceNum,
			}},
			Outputs: []*model.TxOut{{Value: 50, ScriptPubKey: []byte{0x51}}},
		}},
	}
}

func TestBlocksAndIndex(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *DatabaseContext) {
		block := testBlock()
		hash := consensushashing.BlockHash(block)

		require.NoError(t, StoreBlock(ctx.NoTx(), hash, block))
		fetched, err := FetchBlock(ctx.NoTx(), hash)
		require.NoError(t, err)
		require.True(t, consensushashing.BlockHash(fetched).IsEqual(hash))

		record := &serialization.BlockIndexRecord{Header: block.Header, State: 2, Sequence: 5, Height: 1}
		require.NoError(t, StoreBlockIndexRecord(ctx.NoTx(), hash, record))
		other := &chainhash.Hash{7}
		require.NoError(t, StoreBlockIndexRecord(ctx.NoTx(), other, record))

		seen := map[chainhash.Hash]uint64{}
		err = ForEachBlockIndexRecord(ctx.NoTx(), func(hash *chainhash.Hash, record *serialization.BlockIndexRecord) error {
			seen[*hash] = record.Sequence
			return nil
		})
		require.NoError(t, err)
		require.Len(t, seen, 2)
		require.Equal(t, uint64(5), seen[*hash])

		require.NoError(t, DeleteBlock(ctx.NoTx(), hash))
		_, err = FetchBlock(ctx.NoTx(), hash)
		require.True(t, IsNotFoundError(err), "expected ErrNotFound, got %v", err)
		exists, err := HasBlock(ctx.NoTx(), hash)
		require.NoError(t, err)
		require.False(t, exists)
	})
}

func TestTransactionIsAtomic(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *DatabaseContext) {
		spendable := &model.Spendable{
			Outpoint:     model.Outpoint{TxHash: chainhash.Hash{1}, Index: 0},
			Value:        10,
			ScriptPubKey: []byte{0x51},
			Confirmation: model.Confirmation{Height: 3},
		}
		blockHash := &chainhash.Hash{2}

		dbTx, err := ctx.NewTx()
		require.NoError(t, err)
		require.NoError(t, StoreSpendable(dbTx, spendable))
		require.NoError(t, StoreUndoData(dbTx, blockHash, []*model.Spendable{spendable}))
		require.NoError(t, StoreTxIndexEntry(dbTx, &spendable.Outpoint.TxHash, blockHash, 4))
		require.NoError(t, dbTx.Rollback())

		count := 0
		require.NoError(t, ForEachSpendable(ctx.NoTx(), func(*model.Spendable) error {
			count++
			return nil
		}))
		require.Zero(t, count)
		_, err = FetchUndoData(ctx.NoTx(), blockHash)
		require.True(t, IsNotFoundError(err))

		dbTx, err = ctx.NewTx()
		require.NoError(t, err)
		defer dbTx.RollbackUnlessClosed()
		require.NoError(t, StoreSpendable(dbTx, spendable))
		require.NoError(t, StoreUndoData(dbTx, blockHash, []*model.Spendable{spendable}))
		require.NoError(t, StoreTxIndexEntry(dbTx, &spendable.Outpoint.TxHash, blockHash, 4))
		require.NoError(t, StorePurgedTx(dbTx, &chainhash.Hash{9}))
		require.NoError(t, dbTx.Commit())

		var loaded []*model.Spendable
		require.NoError(t, ForEachSpendable(ctx.NoTx(), func(s *model.Spendable) error {
			loaded = append(loaded, s)
			return nil
		}))
		require.Len(t, loaded, 1)
		require.Equal(t, spendable.Outpoint, loaded[0].Outpoint)
		require.Equal(t, spendable.Value, loaded[0].Value)

		undo, err := FetchUndoData(ctx.NoTx(), blockHash)
		require.NoError(t, err)
		require.Len(t, undo, 1)

		entry, err := FetchTxIndexEntry(ctx.NoTx(), &spendable.Outpoint.TxHash)
		require.NoError(t, err)
		require.Equal(t, *blockHash, entry.BlockHash)
		require.Equal(t, uint32(4), entry.Index)

		var purged []chainhash.Hash
		require.NoError(t, ForEachPurgedTx(ctx.NoTx(), func(txHash *chainhash.Hash) error {
			purged = append(purged, *txHash)
			return nil
		}))
		require.Equal(t, []chainhash.Hash{{9}}, purged)

		require.NoError(t, DeleteSpendable(ctx.NoTx(), &spendable.Outpoint))
		require.NoError(t, DeleteUndoData(ctx.NoTx(), blockHash))
		require.NoError(t, DeleteTxIndexEntry(ctx.NoTx(), &spendable.Outpoint.TxHash))
		_, err = FetchTxIndexEntry(ctx.NoTx(), &spendable.Outpoint.TxHash)
		require.True(t, IsNotFoundError(err))
	})
}

func TestChainState(t *testing.T) {
	forEachBackend(t, func(t *testing.T, ctx *DatabaseContext) {
		_, err := FetchChainState(ctx.NoTx())
		require.True(t, IsNotFoundError(err), "fresh database has a chain state: %v", err)

		state := &serialization.ChainState{
			BestHash:       chainhash.Hash{3},
			NextSequence:   12,
			PurgedHeight:   2,
			UTXOCommitment: chainhash.Hash{4},
			SpendableCount: 8,
		}
		require.NoError(t, StoreChainState(ctx.NoTx(), state))
		fetched, err := FetchChainState(ctx.NoTx())
		require.NoError(t, err)
		require.Equal(t, state, fetched)
	})
}
