package consensushashing

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
)

// HeaderHash returns the given header's hash
func HeaderHash(header *model.BlockHeader) *chainhash.Hash {
	buf := bytes.NewBuffer(make([]byte, 0, BlockHeaderSize))
	// Writes to a bytes.Buffer never fail.
	_ = SerializeHeader(buf, header)
	hash := chainhash.DoubleHashH(buf.Bytes())
	return &hash
}

// BlockHash returns the given block's hash
func BlockHash(block *model.Block) *chainhash.Hash {
	return HeaderHash(&block.Header)
}

// TransactionHash returns the given transaction's hash
func TransactionHash(tx *model.Transaction) *chainhash.Hash {
	hash := chainhash.DoubleHashH(serializeTransactionToBytes(tx))
	return &hash
}

// TransactionHashes returns the hashes of the given transactions, in order.
func TransactionHashes(txs []*model.Transaction) []*chainhash.Hash {
	hashes := make([]*chainhash.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = TransactionHash(tx)
	}
	return hashes
}
