package serialization

import (
	"bytes"
	"reflect"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/davecgh/go-spew/spew"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestOutpointKeysSortByTransaction(t *testing.T) {
	first := OutpointToBytes(&model.Outpoint{TxHash: chainhash.Hash{1}, Index: 0xff})
	second := OutpointToBytes(&model.Outpoint{TxHash: chainhash.Hash{1}, Index: 0x100})
	other := OutpointToBytes(&model.Outpoint{TxHash: chainhash.Hash{2}, Index: 0})
	if bytes.Compare(first, second) >= 0 || bytes.Compare(second, other) >= 0 {
		t.Fatalf("TestOutpointKeysSortByTransaction: keys are not ordered by hash then index")
	}

	if _, err := BytesToOutpoint(first[:10]); err == nil {
		t.Fatalf("TestOutpointKeysSortByTransaction: short outpoint unexpectedly decoded")
	}
}

func TestUndoDataPreservesOrder(t *testing.T) {
	spent := []*model.Spendable{
		{
			Outpoint:     model.Outpoint{TxHash: chainhash.Hash{3}, Index: 1},
			Value:        5000,
			ScriptPubKey: []byte{0x51},
			Confirmation: model.Confirmation{Height: 7, Index: 0, IsCoinbase: true},
		},
		{
			Outpoint:     model.Outpoint{TxHash: chainhash.Hash{1}, Index: 0},
			Value:        1,
			ScriptPubKey: []byte{},
			Confirmation: model.Confirmation{Height: 9, Index: 3},
		},
	}
	decoded, err := BytesToUndoData(UndoDataToBytes(spent))
	if err != nil {
		t.Fatalf("BytesToUndoData: %s", err)
	}
	if len(decoded) != len(spent) {
		t.Fatalf("TestUndoDataPreservesOrder: expected %d entries, got %d", len(spent), len(decoded))
	}
	for i := range spent {
		if decoded[i].Outpoint != spent[i].Outpoint || decoded[i].Value != spent[i].Value ||
			decoded[i].Confirmation != spent[i].Confirmation ||
			!bytes.Equal(decoded[i].ScriptPubKey, spent[i].ScriptPubKey) {
			t.Fatalf("TestUndoDataPreservesOrder: entry %d: expected %s, got %s",
				i, spew.Sdump(spent[i]), spew.Sdump(decoded[i]))
		}
	}

	empty := UndoDataToBytes(nil)
	if len(empty) == 0 {
		t.Fatalf("TestUndoDataPreservesOrder: undo data of an empty block is empty")
	}
	decoded, err = BytesToUndoData(empty)
	if err != nil || len(decoded) != 0 {
		t.Fatalf("TestUndoDataPreservesOrder: unexpected empty undo data %v, %v", decoded, err)
	}
}

func TestBlockIndexRecord(t *testing.T) {
	record := &BlockIndexRecord{
		Header: model.BlockHeader{
			Version:    3,
			ParentHash: chainhash.Hash{9},
			Timestamp:  time.Unix(1700000000, 0),
			Bits:       0x207fffff,
			Nonce:      11,
		},
		State:    4,
		Sequence: 300,
		Height:   12,
	}
	decoded, err := BytesToBlockIndexRecord(BlockIndexRecordToBytes(record))
	if err != nil {
		t.Fatalf("BytesToBlockIndexRecord: %s", err)
	}
	if !reflect.DeepEqual(decoded, record) {
		t.Fatalf("TestBlockIndexRecord: expected %s, got %s", spew.Sdump(record), spew.Sdump(decoded))
	}
}

func TestDecodingSkipsUnknownFields(t *testing.T) {
	entry := &TxIndexEntry{BlockHash: chainhash.Hash{5}, Index: 2}
	encoded := TxIndexEntryToBytes(entry)
	encoded = appendBytesField(encoded, 100, []byte("future"))
	encoded = appendVarintField(encoded, 101, 7)

	decoded, err := BytesToTxIndexEntry(encoded)
	if err != nil {
		t.Fatalf("BytesToTxIndexEntry: %s", err)
	}
	if *decoded != *entry {
		t.Fatalf("TestDecodingSkipsUnknownFields: expected %+v, got %+v", entry, decoded)
	}
}

func TestDecodingErrors(t *testing.T) {
	state := ChainStateToBytes(&ChainState{BestHash: chainhash.Hash{1}, NextSequence: 4})
	if _, err := BytesToChainState(state[:len(state)-1]); err == nil {
		t.Fatalf("TestDecodingErrors: truncated chain state unexpectedly decoded")
	}
	if _, err := BytesToChainState(appendVarintField(nil, chainStateNextSequenceField, 1)); err == nil {
		t.Fatalf("TestDecodingErrors: chain state without best hash unexpectedly decoded")
	}

	wrongType := protowire.AppendTag(nil, spendableValueField, protowire.BytesType)
	wrongType = protowire.AppendBytes(wrongType, []byte{1})
	if _, err := BytesToSpendable(wrongType); err == nil {
		t.Fatalf("TestDecodingErrors: field with the wrong wire type unexpectedly decoded")
	}

	if _, err := BytesToBlockIndexRecord(appendBytesField(nil, blockIndexHeaderField, []byte{1, 2})); err == nil {
		t.Fatalf("TestDecodingErrors: short header unexpectedly decoded")
	}
}
