package pow

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
)

var regtestLimit = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))

func TestCheckProofOfWork(t *testing.T) {
	const bits = 0x207fffff

	easyHash := chainhash.Hash{}
	if err := CheckProofOfWork(&easyHash, bits, regtestLimit); err != nil {
		t.Fatalf("TestCheckProofOfWork: zero hash rejected: %s", err)
	}

	var hardHash chainhash.Hash
	for i := range hardHash {
		hardHash[i] = 0xff
	}
	err := CheckProofOfWork(&hardHash, bits, regtestLimit)
	if !errors.Is(err, ruleerrors.ErrInvalidPoW) {
		t.Fatalf("TestCheckProofOfWork: expected ErrInvalidPoW, got %v", err)
	}

	err = CheckProofOfWork(&easyHash, 0x2100ffff, regtestLimit)
	if !errors.Is(err, ruleerrors.ErrTargetTooHigh) {
		t.Fatalf("TestCheckProofOfWork: expected ErrTargetTooHigh, got %v", err)
	}

	err = CheckProofOfWork(&easyHash, 0x20800000, regtestLimit)
	if !errors.Is(err, ruleerrors.ErrNegativeTarget) {
		t.Fatalf("TestCheckProofOfWork: expected ErrNegativeTarget, got %v", err)
	}
}

func TestCalcWorkIsMonotonic(t *testing.T) {
	easy := CalcWork(0x207fffff)
	hard := CalcWork(0x1d00ffff)
	if easy.Cmp(hard) >= 0 {
		t.Fatalf("TestCalcWorkIsMonotonic: easier bits give %s work, harder bits %s", easy, hard)
	}
	if CalcWork(0x207fffff).Cmp(easy) != 0 {
		t.Fatalf("TestCalcWorkIsMonotonic: equal bits give different work")
	}
	if CalcWork(0x20800000).Sign() != 0 {
		t.Fatalf("TestCalcWorkIsMonotonic: negative target has work")
	}
}

func TestNextRequiredBits(t *testing.T) {
	params := &RetargetParams{
		PowLimit:                 CompactToBig(0x1d00ffff),
		PowLimitBits:             0x1d00ffff,
		TargetTimespan:           10 * 10 * time.Minute,
		TargetTimePerBlock:       10 * time.Minute,
		RetargetAdjustmentFactor: 4,
	}
	start := time.Unix(1_600_000_000, 0)
	const bits = 0x1c0fffff

	if got := NextRequiredBits(params, 3, bits, start, start); got != bits {
		t.Fatalf("TestNextRequiredBits: changed difficulty outside of a retarget: %08x", got)
	}

	// Blocks came twice as fast as expected: the target halves.
	fast := NextRequiredBits(params, 9, bits, start.Add(50*time.Minute), start)
	// The compact form keeps 23 bits of mantissa, so the halved target is
	// compared after the same truncation.
	expected := new(big.Int).Div(CompactToBig(bits), big.NewInt(2))
	if fast != BigToCompact(expected) {
		t.Fatalf("TestNextRequiredBits: got bits %08x, want %08x", fast, BigToCompact(expected))
	}
	if CompactToBig(fast).Cmp(expected) > 0 {
		t.Fatalf("TestNextRequiredBits: target %x is above the halved target %x", CompactToBig(fast), expected)
	}

	// Slow blocks can not raise the target above the limit.
	slow := NextRequiredBits(params, 9, 0x1d00ffff, start.Add(1000*time.Hour), start)
	if slow != 0x1d00ffff {
		t.Fatalf("TestNextRequiredBits: target above the limit: %08x", slow)
	}

	params.NoRetargeting = true
	if got := NextRequiredBits(params, 9, bits, start.Add(50*time.Minute), start); got != bits {
		t.Fatalf("TestNextRequiredBits: retargeted with retargeting disabled: %08x", got)
	}
}

func TestDifficulty(t *testing.T) {
	if d := Difficulty(0x1d00ffff, 0x1d00ffff); d != 1 {
		t.Fatalf("TestDifficulty: difficulty at the limit is %f", d)
	}
	if d := Difficulty(0x1c7fff80, 0x1d00ffff); d < 1.99 || d > 2.01 {
		t.Fatalf("TestDifficulty: halved target gives difficulty %f", d)
	}
}
