package blockchain

import (
	"github.com/coinchain/coinchaind/domain/consensus/blocktree"
)

// isSuperMajority returns whether at least required of the
// BlockUpgradeNumToCheck blocks ending at it have a version of minVersion
// or above.
func (b *BlockChain) isSuperMajority(minVersion int32, it blocktree.Iterator, required uint64) bool {
	var found uint64
	for i := uint64(0); i < b.params.BlockUpgradeNumToCheck && found < required && it.Valid(); i++ {
		if it.Header().Version >= minVersion {
			found++
		}
		it = it.Parent()
	}
	return found >= required
}

// minAcceptedBlockVersion returns the lowest version a child of parent may
// have.
func (b *BlockChain) minAcceptedBlockVersion(parent blocktree.Iterator) int32 {
	if b.isSuperMajority(b.params.HeightInCoinbaseVersion, parent, b.params.BlockRejectNumRequired) {
		return b.params.HeightInCoinbaseVersion
	}
	return b.params.MinAcceptedBlockVersion
}

// enforcesHeightInCoinbase returns whether a child of parent with the given
// version must start its coinbase with its height.
func (b *BlockChain) enforcesHeightInCoinbase(version int32, parent blocktree.Iterator) bool {
	return version >= b.params.HeightInCoinbaseVersion &&
		b.isSuperMajority(b.params.HeightInCoinbaseVersion, parent, b.params.BlockEnforceNumRequired)
}
