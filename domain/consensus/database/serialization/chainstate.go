package serialization

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	chainStateBestHashField       protowire.Number = 1
	chainStateNextSequenceField   protowire.Number = 2
	chainStatePurgedHeightField   protowire.Number = 3
	chainStateCommitmentField     protowire.Number = 4
	chainStateSpendableCountField protowire.Number = 5
)

// ChainState is the persisted summary of the best chain.
type ChainState struct {
	BestHash chainhash.Hash

	// NextSequence is the first-seen sequence number the next indexed
	// block will get.
	NextSequence uint64

	// PurgedHeight is the height below which block bodies and spend
	// history were purged. It is the deepest height still served.
	PurgedHeight uint64

	// UTXOCommitment is the serialized MuHash of the unspent set.
	UTXOCommitment chainhash.Hash

	SpendableCount uint64
}

// ChainStateToBytes encodes state.
func ChainStateToBytes(state *ChainState) []byte {
	encoded := appendBytesField(nil, chainStateBestHashField, state.BestHash[:])
	encoded = appendVarintField(encoded, chainStateNextSequenceField, state.NextSequence)
	encoded = appendVarintField(encoded, chainStatePurgedHeightField, state.PurgedHeight)
	encoded = appendBytesField(encoded, chainStateCommitmentField, state.UTXOCommitment[:])
	return appendVarintField(encoded, chainStateSpendableCountField, state.SpendableCount)
}

// BytesToChainState decodes a state encoded by ChainStateToBytes.
func BytesToChainState(encoded []byte) (*ChainState, error) {
	state := &ChainState{}
	hasBestHash := false
	err := consumeFields(encoded, func(num protowire.Number, typ protowire.Type, value []byte) (int, error) {
		switch num {
		case chainStateBestHashField:
			hasBestHash = true
			return consumeHash(typ, value, &state.BestHash)
		case chainStateNextSequenceField:
			return consumeVarint(typ, value, &state.NextSequence)
		case chainStatePurgedHeightField:
			return consumeVarint(typ, value, &state.PurgedHeight)
		case chainStateCommitmentField:
			return consumeHash(typ, value, &state.UTXOCommitment)
		case chainStateSpendableCountField:
			return consumeVarint(typ, value, &state.SpendableCount)
		}
		return 0, nil
	})
	if err != nil {
		return nil, err
	}
	if !hasBestHash {
		return nil, errors.New("chain state without a best hash")
	}
	return state, nil
}
