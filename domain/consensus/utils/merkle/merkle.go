package merkle

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
)

// hashMerkleBranches takes two hashes, treated as the left and right tree
// nodes, and returns the hash of their concatenation.
func hashMerkleBranches(left, right *chainhash.Hash) chainhash.Hash {
	var concatenated [chainhash.HashSize * 2]byte
	copy(concatenated[:chainhash.HashSize], left[:])
	copy(concatenated[chainhash.HashSize:], right[:])
	return chainhash.DoubleHashH(concatenated[:])
}

// CalculateHashMerkleRoot returns the merkle root of the given
// transaction hashes. A level with an odd number of nodes pairs its last
// node with itself. The root of an empty list is the zero hash.
func CalculateHashMerkleRoot(hashes []*chainhash.Hash) chainhash.Hash {
	if len(hashes) == 0 {
		return chainhash.Hash{}
	}
	level := make([]chainhash.Hash, len(hashes))
	for i, hash := range hashes {
		level[i] = *hash
	}
	for len(level) > 1 {
		next := make([]chainhash.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			right := &level[i]
			if i+1 < len(level) {
				right = &level[i+1]
			}
			next = append(next, hashMerkleBranches(&level[i], right))
		}
		level = next
	}
	return level[0]
}

// CalculateTransactionsMerkleRoot returns the merkle root of the hashes of
// the given transactions.
func CalculateTransactionsMerkleRoot(txs []*model.Transaction) chainhash.Hash {
	return CalculateHashMerkleRoot(consensushashing.TransactionHashes(txs))
}
