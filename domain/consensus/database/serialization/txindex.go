package serialization

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	txIndexBlockHashField protowire.Number = 1
	txIndexIndexField     protowire.Number = 2
)

// TxIndexEntry locates a confirmed transaction.
type TxIndexEntry struct {
	BlockHash chainhash.Hash
	Index     uint32
}

// TxIndexEntryToBytes encodes entry.
func TxIndexEntryToBytes(entry *TxIndexEntry) []byte {
	encoded := appendBytesField(nil, txIndexBlockHashField, entry.BlockHash[:])
	return appendVarintField(encoded, txIndexIndexField, uint64(entry.Index))
}

// BytesToTxIndexEntry decodes an entry encoded by TxIndexEntryToBytes.
func BytesToTxIndexEntry(encoded []byte) (*TxIndexEntry, error) {
	entry := &TxIndexEntry{}
	var index uint64
	hasBlockHash := false
	err := consumeFields(encoded, func(num protowire.Number, typ protowire.Type, value []byte) (int, error) {
		switch num {
		case txIndexBlockHashField:
			hasBlockHash = true
			return consumeHash(typ, value, &entry.BlockHash)
		case txIndexIndexField:
			return consumeVarint(typ, value, &index)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	if !hasBlockHash {
		return nil, errors.New("tx index entry without a block hash")
	}
	entry.Index = uint32(index)
	return entry, nil
}
