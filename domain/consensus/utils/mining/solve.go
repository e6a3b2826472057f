package mining

import (
	"math"
	"math/rand"

	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/utils/pow"
	"github.com/pkg/errors"
)

// SolveBlock increments the nonce of block, starting from a random value,
// until its hash meets the target encoded in its bits.
func SolveBlock(block *model.Block, rd *rand.Rand) error {
	targetDifficulty := pow.CompactToBig(block.Header.Bits)
	start := rd.Uint32()

	for i := uint64(0); i <= math.MaxUint32; i++ {
		block.Header.Nonce = start + uint32(i)
		hash := consensushashing.HeaderHash(&block.Header)
		if pow.HashToBig(hash).Cmp(targetDifficulty) <= 0 {
			return nil
		}
	}
	return errors.New("went over all the nonce space and couldn't find a single one that gives a valid block")
}
