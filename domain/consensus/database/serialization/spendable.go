package serialization

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	spendableOutpointField protowire.Number = 1
	spendableValueField    protowire.Number = 2
	spendableScriptField   protowire.Number = 3
	spendableHeightField   protowire.Number = 4
	spendableIndexField    protowire.Number = 5
	spendableCoinbaseField protowire.Number = 6
)

// OutpointSize is the size of an encoded outpoint.
const OutpointSize = chainhash.HashSize + 4

// OutpointToBytes encodes outpoint as its transaction hash followed by its
// big-endian index, so that the outputs of a transaction sort together.
func OutpointToBytes(outpoint *model.Outpoint) []byte {
	encoded := make([]byte, OutpointSize)
	copy(encoded, outpoint.TxHash[:])
	binary.BigEndian.PutUint32(encoded[chainhash.HashSize:], outpoint.Index)
	return encoded
}

// BytesToOutpoint decodes an outpoint encoded by OutpointToBytes.
func BytesToOutpoint(encoded []byte) (*model.Outpoint, error) {
	if len(encoded) != OutpointSize {
		return nil, errors.Errorf("invalid outpoint length %d", len(encoded))
	}
	outpoint := &model.Outpoint{Index: binary.BigEndian.Uint32(encoded[chainhash.HashSize:])}
	copy(outpoint.TxHash[:], encoded[:chainhash.HashSize])
	return outpoint, nil
}

func appendSpendable(record []byte, spendable *model.Spendable) []byte {
	record = appendBytesField(record, spendableOutpointField, OutpointToBytes(&spendable.Outpoint))
	record = appendVarintField(record, spendableValueField, uint64(spendable.Value))
	record = appendBytesField(record, spendableScriptField, spendable.ScriptPubKey)
	record = appendVarintField(record, spendableHeightField, spendable.Confirmation.Height)
	record = appendVarintField(record, spendableIndexField, uint64(spendable.Confirmation.Index))
	return appendBoolField(record, spendableCoinbaseField, spendable.Confirmation.IsCoinbase)
}

// SpendableToBytes encodes spendable, including its outpoint.
func SpendableToBytes(spendable *model.Spendable) []byte {
	return appendSpendable(nil, spendable)
}

// BytesToSpendable decodes a spendable encoded by SpendableToBytes.
func BytesToSpendable(encoded []byte) (*model.Spendable, error) {
	spendable := &model.Spendable{}
	var outpointBytes []byte
	var value, index, coinbase uint64
	err := consumeFields(encoded, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch num {
		case spendableOutpointField:
			return consumeBytes(typ, field, &outpointBytes)
		case spendableValueField:
			return consumeVarint(typ, field, &value)
		case spendableScriptField:
			return consumeBytes(typ, field, &spendable.ScriptPubKey)
		case spendableHeightField:
			return consumeVarint(typ, field, &spendable.Confirmation.Height)
		case spendableIndexField:
			return consumeVarint(typ, field, &index)
		case spendableCoinbaseField:
			return consumeVarint(typ, field, &coinbase)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	outpoint, err := BytesToOutpoint(outpointBytes)
	if err != nil {
		return nil, err
	}
	spendable.Outpoint = *outpoint
	spendable.Value = int64(value)
	spendable.Confirmation.Index = uint32(index)
	spendable.Confirmation.IsCoinbase = protowire.DecodeBool(coinbase)
	return spendable, nil
}
