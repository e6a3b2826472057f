package spendables

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const testMaturityWindow = 5

var (
	scriptA = []byte{0x51}
	scriptB = []byte{0x52, 0x53}
)

func outpoint(b byte, index uint32) model.Outpoint {
	return model.Outpoint{TxHash: chainhash.Hash{b}, Index: index}
}

func TestIssueAndRedeem(t *testing.T) {
	s := New(testMaturityWindow, 0)
	op := outpoint(1, 0)

	require.NoError(t, s.Issue(op, 100, scriptA, model.Confirmation{Height: 1, Index: 1}, true))
	require.False(t, s.IsSpent(op), "issued output is spent")

	err := s.Issue(op, 100, scriptA, model.Confirmation{Height: 2}, true)
	require.ErrorIs(t, err, ruleerrors.ErrDuplicateTx)
	err = s.Issue(op, 100, scriptA, model.Confirmation{Height: 2}, false)
	require.Error(t, err)
	require.False(t, ruleerrors.IsRuleError(err), "expected an internal error for a repeated issue, got %v", err)

	spendable, err := s.Redeem(op)
	require.NoError(t, err)
	require.Equal(t, int64(100), spendable.Value)
	require.Equal(t, uint64(1), spendable.Confirmation.Height)
	require.True(t, s.IsSpent(op), "redeemed output is not spent")

	_, err = s.Redeem(op)
	var missing ruleerrors.ErrMissingTxOut
	require.ErrorAs(t, err, &missing)
	require.Equal(t, op, missing.MissingOutpoints[0])

	require.NoError(t, s.Restore(spendable))
	require.Error(t, s.Restore(spendable), "restoring an existing output succeeded")
	require.NoError(t, s.Unissue(op))
	require.Zero(t, s.Count())
}

func TestMaturity(t *testing.T) {
	s := New(testMaturityWindow, 0)
	coinbase := outpoint(2, 0)
	require.NoError(t, s.Issue(coinbase, 50, scriptA, model.Confirmation{Height: 1, IsCoinbase: true}, true))
	require.False(t, s.IsSpent(coinbase), "an immature output is not spent")
	require.Equal(t, 1, s.ImmatureCount())

	// Attaching heights 2 to 5 matures nothing.
	for height := uint64(2); height < 1+testMaturityWindow; height++ {
		if confirmed, ok := s.MaturedThrough(height); ok {
			require.Empty(t, s.Maturate(confirmed))
		}
		_, err := s.Redeem(coinbase)
		require.ErrorIs(t, err, ruleerrors.ErrImmatureSpend, "height %d", height)
		require.Equal(t, ruleerrors.OutcomeRejected, ruleerrors.Classify(err))
	}

	confirmed, ok := s.MaturedThrough(1 + testMaturityWindow)
	require.True(t, ok)
	require.Equal(t, []model.Outpoint{coinbase}, s.Maturate(confirmed))
	require.Zero(t, s.ImmatureCount())

	_, err := s.Get(coinbase)
	require.NoError(t, err)

	// Rolling the attach back makes the output immature again.
	require.Equal(t, []model.Outpoint{coinbase}, s.Dematurate(confirmed))
	_, err = s.Get(coinbase)
	require.ErrorIs(t, err, ruleerrors.ErrImmatureSpend)

	s.Maturate(confirmed)
	spendable, err := s.Redeem(coinbase)
	require.NoError(t, err)
	_, err = s.Redeem(coinbase)
	var missing ruleerrors.ErrMissingTxOut
	require.True(t, errors.As(err, &missing))

	// A restored mature coinbase goes back to the live set.
	require.NoError(t, s.Restore(spendable))
	require.Zero(t, s.ImmatureCount())
}

func TestNewSplitsByBestHeight(t *testing.T) {
	s := New(testMaturityWindow, 10)
	require.Equal(t, uint64(6), s.ImmatureFrom())

	require.NoError(t, s.Restore(&model.Spendable{
		Outpoint:     outpoint(1, 0),
		Confirmation: model.Confirmation{Height: 5, IsCoinbase: true},
	}))
	require.NoError(t, s.Restore(&model.Spendable{
		Outpoint:     outpoint(2, 0),
		Confirmation: model.Confirmation{Height: 6, IsCoinbase: true},
	}))
	require.Equal(t, 1, s.ImmatureCount())
	_, err := s.Get(outpoint(1, 0))
	require.NoError(t, err)
	_, err = s.Get(outpoint(2, 0))
	require.ErrorIs(t, err, ruleerrors.ErrImmatureSpend)
}

func TestPurgedTransactionsStayUnique(t *testing.T) {
	s := New(testMaturityWindow, 0)
	txHash := chainhash.Hash{7}
	s.Purge(3, []*chainhash.Hash{&txHash})
	require.True(t, s.IsPurged(&txHash))
	require.False(t, s.IsPurged(&chainhash.Hash{8}))
	require.Equal(t, uint64(3), s.PurgedBelow())

	err := s.Issue(model.NewOutpoint(&txHash, 0), 1, scriptA, model.Confirmation{Height: 9}, true)
	require.ErrorIs(t, err, ruleerrors.ErrDuplicateTx)
	require.NoError(t, s.Issue(model.NewOutpoint(&txHash, 0), 1, scriptA, model.Confirmation{Height: 9}, false))
}

func TestPurgedSetGrows(t *testing.T) {
	set := newPurgedSet()
	set.capacity = 4
	set.filter = newPurgedFilter(4)

	var hashes []chainhash.Hash
	for i := 0; i < 100; i++ {
		hashes = append(hashes, chainhash.Hash{byte(i), byte(i >> 8), 1})
	}
	for i := range hashes {
		set.add(&hashes[i])
		set.add(&hashes[i])
	}
	require.Equal(t, 100, set.count())
	require.GreaterOrEqual(t, set.capacity, uint64(100))
	for i := range hashes {
		require.True(t, set.has(&hashes[i]), "hash %d was lost", i)
	}
	require.False(t, set.has(&chainhash.Hash{0xff, 0xff, 0xff}))
}

func TestCommitmentIsOrderIndependent(t *testing.T) {
	first := New(testMaturityWindow, 0)
	second := New(testMaturityWindow, 0)
	empty := first.Commitment()

	require.NoError(t, first.Issue(outpoint(1, 0), 10, scriptA, model.Confirmation{Height: 1}, true))
	require.NoError(t, first.Issue(outpoint(2, 0), 20, scriptB, model.Confirmation{Height: 2}, true))
	require.NoError(t, second.Issue(outpoint(2, 0), 20, scriptB, model.Confirmation{Height: 2}, true))
	require.NoError(t, second.Issue(outpoint(1, 0), 10, scriptA, model.Confirmation{Height: 1}, true))
	require.Equal(t, first.Commitment(), second.Commitment())
	require.NotEqual(t, empty, first.Commitment())

	spendable, err := first.Redeem(outpoint(2, 0))
	require.NoError(t, err)
	require.NotEqual(t, second.Commitment(), first.Commitment())
	require.NoError(t, first.Restore(spendable))
	require.Equal(t, second.Commitment(), first.Commitment())

	// Maturation moves outputs between sets without changing them.
	require.NoError(t, first.Issue(outpoint(3, 0), 50, scriptA, model.Confirmation{Height: 3, IsCoinbase: true}, true))
	before := first.Commitment()
	first.Maturate(3)
	require.Equal(t, before, first.Commitment())
}

func TestUnspentsForScript(t *testing.T) {
	s := New(testMaturityWindow, 0)
	require.NoError(t, s.Issue(outpoint(1, 0), 10, scriptA, model.Confirmation{Height: 4}, true))
	require.NoError(t, s.Issue(outpoint(1, 1), 11, scriptB, model.Confirmation{Height: 4}, true))
	require.NoError(t, s.Issue(outpoint(2, 0), 12, scriptA, model.Confirmation{Height: 2}, true))
	require.NoError(t, s.Issue(outpoint(3, 0), 50, scriptA, model.Confirmation{Height: 5, IsCoinbase: true}, true))

	check := func() {
		unspents := s.UnspentsForScript(scriptA, 0)
		require.Len(t, unspents, 2, "immature coinbase outputs are not unspents")
		require.Equal(t, outpoint(2, 0), unspents[0].Outpoint)
		require.Equal(t, outpoint(1, 0), unspents[1].Outpoint)

		unspents = s.UnspentsForScript(scriptA, 3)
		require.Len(t, unspents, 1)
		require.Equal(t, outpoint(2, 0), unspents[0].Outpoint)

		require.Len(t, s.UnspentsForScript(scriptB, 0), 1)
		require.Empty(t, s.UnspentsForScript([]byte{0x00}, 0))
	}

	check()
	s.EnableScriptIndex()
	require.True(t, s.ScriptIndexEnabled())
	check()

	// The index follows redemptions.
	_, err := s.Redeem(outpoint(2, 0))
	require.NoError(t, err)
	require.Len(t, s.UnspentsForScript(scriptA, 0), 1)

	s.DisableScriptIndex()
	require.False(t, s.ScriptIndexEnabled())
	require.Len(t, s.UnspentsForScript(scriptA, 0), 1)
}

func TestForEach(t *testing.T) {
	s := New(testMaturityWindow, 0)
	require.NoError(t, s.Issue(outpoint(1, 0), 10, scriptA, model.Confirmation{Height: 1}, true))
	require.NoError(t, s.Issue(outpoint(2, 0), 50, scriptA, model.Confirmation{Height: 1, IsCoinbase: true}, true))

	seen := map[model.Outpoint]bool{}
	require.NoError(t, s.ForEach(func(spendable *model.Spendable) error {
		seen[spendable.Outpoint] = true
		return nil
	}))
	require.Len(t, seen, 2)

	stop := errors.New("stop")
	calls := 0
	err := s.ForEach(func(*model.Spendable) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}
