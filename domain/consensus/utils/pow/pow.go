package pow

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/pkg/errors"
)

// CompactToBig converts the compact difficulty representation used in
// block headers to the target it encodes.
func CompactToBig(compact uint32) *big.Int {
	return blockchain.CompactToBig(compact)
}

// BigToCompact converts a target to its compact representation.
func BigToCompact(target *big.Int) uint32 {
	return blockchain.BigToCompact(target)
}

// CalcWork returns the expected number of hashes needed to find a block
// with the given bits: 2^256 / (target + 1). Invalid bits yield zero work.
func CalcWork(bits uint32) *big.Int {
	return blockchain.CalcWork(bits)
}

// HashToBig interprets a block hash as a little-endian 256 bit number.
func HashToBig(hash *chainhash.Hash) *big.Int {
	return blockchain.HashToBig(hash)
}

// CheckProofOfWork ensures that bits encode a positive target not above
// powLimit, and that hash does not exceed that target.
func CheckProofOfWork(hash *chainhash.Hash, bits uint32, powLimit *big.Int) error {
	target := CompactToBig(bits)
	if target.Sign() <= 0 {
		return errors.Wrapf(ruleerrors.ErrNegativeTarget, "block target difficulty of %064x "+
			"is too low", target)
	}
	if target.Cmp(powLimit) > 0 {
		return errors.Wrapf(ruleerrors.ErrTargetTooHigh, "block target difficulty of %064x "+
			"is higher than max of %064x", target, powLimit)
	}
	if HashToBig(hash).Cmp(target) > 0 {
		return errors.Wrapf(ruleerrors.ErrInvalidPoW, "block hash of %064x is higher than "+
			"expected max of %064x", HashToBig(hash), target)
	}
	return nil
}

// RetargetParams holds the parameters of the difficulty adjustment.
type RetargetParams struct {
	PowLimit                 *big.Int
	PowLimitBits             uint32
	TargetTimespan           time.Duration
	TargetTimePerBlock       time.Duration
	RetargetAdjustmentFactor int64
	NoRetargeting            bool
}

// BlocksPerRetarget returns the number of blocks between difficulty
// adjustments.
func (p *RetargetParams) BlocksPerRetarget() uint64 {
	return uint64(p.TargetTimespan / p.TargetTimePerBlock)
}

// NextRequiredBits returns the bits required of the block following a
// parent at parentHeight with parentBits. firstTimestamp is the timestamp of
// the first block of the closing retarget window and is only used when
// parentHeight+1 is a multiple of BlocksPerRetarget.
func NextRequiredBits(params *RetargetParams, parentHeight uint64, parentBits uint32,
	parentTimestamp, firstTimestamp time.Time) uint32 {

	if params.NoRetargeting {
		return parentBits
	}
	if (parentHeight+1)%params.BlocksPerRetarget() != 0 {
		return parentBits
	}

	minTimespan := int64(params.TargetTimespan/time.Second) / params.RetargetAdjustmentFactor
	maxTimespan := int64(params.TargetTimespan/time.Second) * params.RetargetAdjustmentFactor

	actualTimespan := parentTimestamp.Unix() - firstTimestamp.Unix()
	adjustedTimespan := actualTimespan
	if actualTimespan < minTimespan {
		adjustedTimespan = minTimespan
	} else if actualTimespan > maxTimespan {
		adjustedTimespan = maxTimespan
	}

	// newTarget = oldTarget * adjustedTimespan / targetTimespan
	newTarget := CompactToBig(parentBits)
	newTarget.Mul(newTarget, big.NewInt(adjustedTimespan))
	newTarget.Div(newTarget, big.NewInt(int64(params.TargetTimespan/time.Second)))
	if newTarget.Cmp(params.PowLimit) > 0 {
		newTarget.Set(params.PowLimit)
	}
	return BigToCompact(newTarget)
}

// Difficulty returns the difficulty of bits relative to powLimitBits as a
// floating point number, the way it is shown to operators.
func Difficulty(bits uint32, powLimitBits uint32) float64 {
	maxTarget := new(big.Float).SetInt(CompactToBig(powLimitBits))
	target := new(big.Float).SetInt(CompactToBig(bits))
	if target.Sign() <= 0 {
		return 0
	}
	difficulty, _ := new(big.Float).Quo(maxTarget, target).Float64()
	return difficulty
}
