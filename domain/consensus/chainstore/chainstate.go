package chainstore

import (
	"github.com/coinchain/coinchaind/domain/consensus/database/serialization"
	"github.com/coinchain/coinchaind/infrastructure/db/database"
)

var chainStateKey = database.MakeBucket(nil).Key([]byte("chain-state"))

// StoreChainState replaces the persisted chain state.
func StoreChainState(context Context, state *serialization.ChainState) error {
	accessor, err := context.accessor()
	if err != nil {
		return err
	}
	return accessor.Put(chainStateKey, serialization.ChainStateToBytes(state))
}

// FetchChainState returns the persisted chain state, or ErrNotFound on a
// fresh database.
func FetchChainState(context Context) (*serialization.ChainState, error) {
	accessor, err := context.accessor()
	if err != nil {
		return nil, err
	}
	stateBytes, err := accessor.Get(chainStateKey)
	if err != nil {
		return nil, err
	}
	return serialization.BytesToChainState(stateBytes)
}
