package blocktree

import (
	"math/big"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/pkg/errors"
)

// ErrStaleIterator is returned when an Iterator refers to an entry that was
// pruned from the tree.
var ErrStaleIterator = errors.New("stale block iterator")

// Iterator is a non-owning handle to a tree entry. It stays valid until the
// entry is pruned; accessors of a stale or zero Iterator return zero
// values. Iterator methods are safe for concurrent access.
type Iterator struct {
	tree       *Tree
	slot       int32
	generation uint32
}

// Valid returns whether it refers to a live entry.
func (it Iterator) Valid() bool {
	if it.tree == nil {
		return false
	}
	it.tree.lock.RLock()
	defer it.tree.lock.RUnlock()
	return it.tree.resolve(it) != nil
}

// Err returns ErrStaleIterator if it does not refer to a live entry.
func (it Iterator) Err() error {
	if !it.Valid() {
		return errors.WithStack(ErrStaleIterator)
	}
	return nil
}

// Equal returns whether it and other refer to the same entry.
func (it Iterator) Equal(other Iterator) bool {
	return it.tree == other.tree && it.slot == other.slot && it.generation == other.generation
}

func (it Iterator) read(fn func(e *entry)) bool {
	if it.tree == nil {
		return false
	}
	it.tree.lock.RLock()
	defer it.tree.lock.RUnlock()
	e := it.tree.resolve(it)
	if e == nil {
		return false
	}
	fn(e)
	return true
}

// Hash returns the block hash, or nil.
func (it Iterator) Hash() *chainhash.Hash {
	var hash *chainhash.Hash
	it.read(func(e *entry) {
		hashCopy := e.hash
		hash = &hashCopy
	})
	return hash
}

// Height returns the block height.
func (it Iterator) Height() uint64 {
	var height uint64
	it.read(func(e *entry) { height = e.height })
	return height
}

// Header returns a copy of the block header, or nil.
func (it Iterator) Header() *model.BlockHeader {
	var header *model.BlockHeader
	it.read(func(e *entry) {
		headerCopy := e.header
		header = &headerCopy
	})
	return header
}

// Timestamp returns the block timestamp.
func (it Iterator) Timestamp() time.Time {
	var timestamp time.Time
	it.read(func(e *entry) { timestamp = e.header.Timestamp })
	return timestamp
}

// Work returns the cumulative work of the chain ending at the block.
func (it Iterator) Work() *big.Int {
	work := new(big.Int)
	it.read(func(e *entry) { work.Set(e.work) })
	return work
}

// Sequence returns the order in which the block was first indexed.
func (it Iterator) Sequence() uint64 {
	var sequence uint64
	it.read(func(e *entry) { sequence = e.sequence })
	return sequence
}

// State returns the lifecycle state of the block.
func (it Iterator) State() State {
	state := StateUnknown
	it.read(func(e *entry) { state = e.state })
	return state
}

// Parent returns an iterator to the parent block. The parent of genesis
// is not Valid.
func (it Iterator) Parent() Iterator {
	parent := Iterator{}
	it.read(func(e *entry) {
		if e.parent >= 0 {
			parent = it.tree.iteratorForSlot(e.parent)
		}
	})
	return parent
}
