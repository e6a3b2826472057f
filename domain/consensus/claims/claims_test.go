package claims

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/spendables"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/verifier"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	key    *secp256k1.PrivateKey
	script []byte
	view   *spendables.Spendables
	claims *Claims
}

func outpoint(b byte) model.Outpoint {
	return model.Outpoint{TxHash: chainhash.Hash{b}}
}

func newFixture(t *testing.T) *fixture {
	key, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	script, err := verifier.PayToPubKeyScript(key.PubKey())
	require.NoError(t, err)

	view := spendables.New(5, 100)
	for b := byte(1); b <= 4; b++ {
		require.NoError(t, view.Issue(outpoint(b), 1000, script, model.Confirmation{Height: 50}, true))
	}
	require.NoError(t, view.Issue(outpoint(9), 1000, script,
		model.Confirmation{Height: 99, IsCoinbase: true}, true))

	claims := New(100)
	tick := time.Unix(1_600_000_000, 0)
	claims.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return &fixture{key: key, script: script, view: view, claims: claims}
}

func (f *fixture) spend(t *testing.T, value int64, from ...model.Outpoint) *model.Transaction {
	tx := &model.Transaction{Version: 1, Outputs: []*model.TxOut{{Value: value, ScriptPubKey: f.script}}}
	for _, op := range from {
		tx.Inputs = append(tx.Inputs, &model.TxIn{PreviousOutpoint: op, Sequence: model.MaxTxInSequenceNum})
	}
	for i := range tx.Inputs {
		require.NoError(t, verifier.SignInput(tx, i, f.script, f.key))
	}
	return tx
}

func TestClaim(t *testing.T) {
	f := newFixture(t)
	v := verifier.NewSignatureVerifier()

	tx := f.spend(t, 700, outpoint(1))
	outpoints, fee, err := f.claims.TryClaim(tx, f.view, v)
	require.NoError(t, err)
	require.Equal(t, []model.Outpoint{outpoint(1)}, outpoints)
	require.EqualValues(t, 300, fee)
	require.Zero(t, f.claims.Count(), "TryClaim must not claim")

	require.NoError(t, f.claims.Claim(tx, f.view, v))
	require.NoError(t, f.claims.Claim(tx, f.view, v))
	require.Equal(t, 1, f.claims.Count())

	txHash := consensushashing.TransactionHash(tx)
	require.True(t, f.claims.Has(txHash))
	claim, ok := f.claims.ClaimOf(outpoint(1))
	require.True(t, ok)
	require.Equal(t, *txHash, claim.TxHash)
	require.EqualValues(t, 300, claim.Fee)

	// Re-announcing the claimed transaction is not a double spend.
	_, _, err = f.claims.TryClaim(tx, f.view, v)
	require.NoError(t, err)
}

func TestClaimRejections(t *testing.T) {
	f := newFixture(t)
	v := verifier.NewSignatureVerifier()
	require.NoError(t, f.claims.Claim(f.spend(t, 700, outpoint(1)), f.view, v))

	tamperedTx := f.spend(t, 700, outpoint(3))
	tamperedTx.Outputs[0].Value = 600

	coinbase := &model.Transaction{
		Version: 1,
		Inputs:  []*model.TxIn{{PreviousOutpoint: model.NullOutpoint(), SignatureScript: []byte{1, 1}}},
		Outputs: []*model.TxOut{{Value: 50}},
	}

	tests := []struct {
		name     string
		tx       *model.Transaction
		expected error
	}{
		{"double spend", f.spend(t, 500, outpoint(1)), ruleerrors.ErrDoubleSpend},
		{"double spend among inputs", f.spend(t, 500, outpoint(2), outpoint(1)), ruleerrors.ErrDoubleSpend},
		{"immature", f.spend(t, 500, outpoint(9)), ruleerrors.ErrImmatureSpend},
		{"overspend", f.spend(t, 1001, outpoint(2)), ruleerrors.ErrSpendTooHigh},
		{"no fee", f.spend(t, 1000, outpoint(2)), ruleerrors.ErrInsufficientFee},
		{"bad signature", tamperedTx, ruleerrors.ErrScriptValidation},
		{"coinbase", coinbase, ruleerrors.ErrCoinbaseClaim},
	}
	for _, test := range tests {
		err := f.claims.Claim(test.tx, f.view, v)
		require.ErrorIs(t, err, test.expected, test.name)
		require.Equal(t, ruleerrors.OutcomeRejected, ruleerrors.Classify(err), test.name)
	}

	err := f.claims.Claim(f.spend(t, 500, outpoint(7)), f.view, v)
	var missing ruleerrors.ErrMissingTxOut
	require.ErrorAs(t, err, &missing)
	require.Equal(t, []model.Outpoint{outpoint(7)}, missing.MissingOutpoints)

	// Without a verifier signatures are not checked.
	require.NoError(t, f.claims.Claim(tamperedTx, f.view, nil))
	require.Equal(t, 2, f.claims.Count())
}

func TestConfirmAndRestore(t *testing.T) {
	f := newFixture(t)
	first := f.spend(t, 700, outpoint(1), outpoint(2))
	second := f.spend(t, 700, outpoint(3))
	require.NoError(t, f.claims.Claim(first, f.view, nil))
	require.NoError(t, f.claims.Claim(second, f.view, nil))

	// A different transaction spending outpoint(2) confirms.
	confirmed := f.spend(t, 900, outpoint(2))
	removed := f.claims.Confirm(confirmed)
	require.Len(t, removed, 1)
	require.Equal(t, *consensushashing.TransactionHash(first), removed[0].TxHash)
	_, ok := f.claims.ClaimOf(outpoint(1))
	require.False(t, ok, "evicted claim must release all its outputs")

	require.NoError(t, f.claims.Restore(removed[0]))
	require.Error(t, f.claims.Restore(removed[0]))
	require.Equal(t, 2, f.claims.Count())

	removed = f.claims.Confirm(second)
	require.Len(t, removed, 1)
	require.False(t, f.claims.Has(consensushashing.TransactionHash(second)))

	claim, ok := f.claims.Remove(consensushashing.TransactionHash(first))
	require.True(t, ok)
	require.Zero(t, f.claims.Count())
	_, ok = f.claims.Remove(&claim.TxHash)
	require.False(t, ok)
}

func TestRevalidate(t *testing.T) {
	f := newFixture(t)
	kept := f.spend(t, 700, outpoint(1))
	dropped := f.spend(t, 700, outpoint(2))
	require.NoError(t, f.claims.Claim(kept, f.view, nil))
	require.NoError(t, f.claims.Claim(dropped, f.view, nil))

	_, err := f.view.Redeem(outpoint(2))
	require.NoError(t, err)

	removed := f.claims.Revalidate(f.view)
	require.Len(t, removed, 1)
	require.Equal(t, *consensushashing.TransactionHash(dropped), removed[0].TxHash)
	require.True(t, f.claims.Has(consensushashing.TransactionHash(kept)))
}

func TestAllOrdersByFeeRate(t *testing.T) {
	f := newFixture(t)
	unsigned := func(value int64, from model.Outpoint) *model.Transaction {
		return &model.Transaction{
			Version: 1,
			Inputs: []*model.TxIn{{PreviousOutpoint: from, SignatureScript: []byte{0x00},
				Sequence: model.MaxTxInSequenceNum}},
			Outputs: []*model.TxOut{{Value: value, ScriptPubKey: f.script}},
		}
	}
	low := unsigned(900, outpoint(1))
	high := unsigned(500, outpoint(2))
	sameAsLow := unsigned(900, outpoint(3))
	for _, tx := range []*model.Transaction{low, high, sameAsLow} {
		require.NoError(t, f.claims.Claim(tx, f.view, nil))
	}

	all := f.claims.All()
	require.Len(t, all, 3)
	require.Equal(t, *consensushashing.TransactionHash(high), all[0].TxHash)
	require.Equal(t, *consensushashing.TransactionHash(low), all[1].TxHash)
	require.Equal(t, *consensushashing.TransactionHash(sameAsLow), all[2].TxHash)
}
