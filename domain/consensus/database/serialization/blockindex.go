package serialization

import (
	"bytes"

	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	blockIndexHeaderField   protowire.Number = 1
	blockIndexStateField    protowire.Number = 2
	blockIndexSequenceField protowire.Number = 3
	blockIndexHeightField   protowire.Number = 4
)

// BlockIndexRecord is the persisted form of a block tree entry. Cumulative
// work is not stored: it is recomputed from the headers on load.
type BlockIndexRecord struct {
	Header   model.BlockHeader
	State    uint32
	Sequence uint64
	Height   uint64
}

// BlockIndexRecordToBytes encodes record.
func BlockIndexRecordToBytes(record *BlockIndexRecord) []byte {
	var header bytes.Buffer
	// Writes to a bytes.Buffer never fail.
	_ = consensushashing.SerializeHeader(&header, &record.Header)

	encoded := appendBytesField(nil, blockIndexHeaderField, header.Bytes())
	encoded = appendVarintField(encoded, blockIndexStateField, uint64(record.State))
	encoded = appendVarintField(encoded, blockIndexSequenceField, record.Sequence)
	return appendVarintField(encoded, blockIndexHeightField, record.Height)
}

// BytesToBlockIndexRecord decodes a record encoded by
// BlockIndexRecordToBytes.
func BytesToBlockIndexRecord(encoded []byte) (*BlockIndexRecord, error) {
	record := &BlockIndexRecord{}
	var headerBytes []byte
	var state uint64
	err := consumeFields(encoded, func(num protowire.Number, typ protowire.Type, value []byte) (int, error) {
		switch num {
		case blockIndexHeaderField:
			return consumeBytes(typ, value, &headerBytes)
		case blockIndexStateField:
			return consumeVarint(typ, value, &state)
		case blockIndexSequenceField:
			return consumeVarint(typ, value, &record.Sequence)
		case blockIndexHeightField:
			return consumeVarint(typ, value, &record.Height)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	if len(headerBytes) != consensushashing.BlockHeaderSize {
		return nil, errors.Errorf("block index record has a header of %d bytes", len(headerBytes))
	}
	header, err := consensushashing.DeserializeHeader(bytes.NewReader(headerBytes))
	if err != nil {
		return nil, err
	}
	record.Header = *header
	record.State = uint32(state)
	return record, nil
}
