package ruleerrors

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	pkgerrors "github.com/pkg/errors"
)

func TestNewErrMissingTxOut(t *testing.T) {
	outer := NewErrMissingTxOut([]model.Outpoint{{TxHash: chainhash.Hash{255, 255, 255}, Index: 5}})
	expectedOuterErr := "ErrMissingTxOut: [0000000000000000000000000000000000000000000000000000000000ffffff:5]"
	inner := &ErrMissingTxOut{}
	if !errors.As(outer, inner) {
		t.Fatal("TestNewErrMissingTxOut: Outer should contain ErrMissingTxOut in it")
	}

	if len(inner.MissingOutpoints) != 1 {
		t.Fatalf("TestNewErrMissingTxOut: Expected len(inner.MissingOutpoints) 1, found: %d", len(inner.MissingOutpoints))
	}
	if inner.MissingOutpoints[0].Index != 5 {
		t.Fatalf("TestNewErrMissingTxOut: Expected 5. found: %d", inner.MissingOutpoints[0].Index)
	}

	rule := &RuleError{}
	if !errors.As(outer, rule) {
		t.Fatal("TestNewErrMissingTxOut: Outer should contain RuleError in it")
	}
	if rule.message != "ErrMissingTxOut" {
		t.Fatalf("TestNewErrMissingTxOut: Expected message = 'ErrMissingTxOut', found: '%s'", rule.message)
	}

	if outer.Error() != expectedOuterErr {
		t.Fatalf("TestNewErrMissingTxOut: Expected %s. found: %s", expectedOuterErr, outer.Error())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Outcome
	}{
		{"nil", nil, OutcomeAccepted},
		{"sentinel", ErrDuplicateBlock, OutcomeRejected},
		{"wrapped sentinel", pkgerrors.Wrapf(ErrImmatureSpend, "output %d", 1), OutcomeRejected},
		{"missing tx out", NewErrMissingTxOut(nil), OutcomeRejected},
		{"missing parents", NewErrMissingParents([]*chainhash.Hash{{1}}), OutcomeOrphan},
		{"wrapped missing parents", pkgerrors.Wrap(NewErrMissingParents(nil), "block"), OutcomeOrphan},
		{"plain error", pkgerrors.New("disk on fire"), OutcomeInternalError},
	}
	for _, test := range tests {
		if outcome := Classify(test.err); outcome != test.expected {
			t.Fatalf("TestClassify: %s: expected %s, got %s", test.name, test.expected, outcome)
		}
	}

	if !errors.Is(pkgerrors.Wrapf(ErrImmatureSpend, "output %d", 1), ErrImmatureSpend) {
		t.Fatalf("TestClassify: wrapped sentinel does not match with errors.Is")
	}
	if errors.Is(ErrImmatureSpend, ErrDuplicateTx) {
		t.Fatalf("TestClassify: different sentinels unexpectedly match")
	}
}
