package serialization

import (
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	undoSpentField   protowire.Number = 1
	undoVersionField protowire.Number = 2
)

const undoDataVersion = 1

// UndoDataToBytes encodes the spendables a block redeemed, in the order it
// redeemed them.
func UndoDataToBytes(spent []*model.Spendable) []byte {
	encoded := appendVarintField(nil, undoVersionField, undoDataVersion)
	for _, spendable := range spent {
		encoded = appendBytesField(encoded, undoSpentField, SpendableToBytes(spendable))
	}
	return encoded
}

// BytesToUndoData decodes undo data encoded by UndoDataToBytes.
func BytesToUndoData(encoded []byte) ([]*model.Spendable, error) {
	spent := []*model.Spendable{}
	err := consumeFields(encoded, func(num protowire.Number, typ protowire.Type, value []byte) (int, error) {
		if num != undoSpentField {
			return 0, nil
		}
		var spendableBytes []byte
		n, err := consumeBytes(typ, value, &spendableBytes)
		if err != nil {
			return 0, err
		}
		spendable, err := BytesToSpendable(spendableBytes)
		if err != nil {
			return 0, err
		}
		spent = append(spent, spendable)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return spent, nil
}
