package blocktree

import (
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/coinchain/coinchaind/domain/consensus/utils/consensushashing"
	"github.com/coinchain/coinchaind/domain/consensus/utils/pow"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"
)

type entry struct {
	live       bool
	generation uint32

	hash     chainhash.Hash
	header   model.BlockHeader
	parent   int32 // -1 for genesis
	children int

	height   uint64
	work     *big.Int
	sequence uint64
	state    State
}

// Tree is an arena of block headers linked to their parents. It tracks
// the cumulative work of every chain and the best chain.
//
// The tree lock only protects entry reads by Iterators. Mutating methods
// must not be called concurrently, and callers that need a consistent view
// of the best chain provide their own locking.
type Tree struct {
	lock sync.RWMutex

	entries []entry
	free    []int32
	byHash  map[chainhash.Hash]int32

	// mainChain holds the slot of every best chain entry, by height.
	mainChain []int32
	best      int32

	// tips holds the slots of the entries without children.
	tips map[int32]struct{}

	nextSequence     uint64
	medianTimeBlocks int
	stateMachine     *fsm.FSM

	dirty map[int32]struct{}
}

// New returns a tree holding only the genesis header, which is the best
// chain. Median time past is computed over medianTimeBlocks timestamps.
func New(genesis *model.BlockHeader, medianTimeBlocks int) *Tree {
	tree := &Tree{
		byHash:           make(map[chainhash.Hash]int32),
		tips:             make(map[int32]struct{}),
		medianTimeBlocks: medianTimeBlocks,
		stateMachine:     newStateMachine(),
		dirty:            make(map[int32]struct{}),
	}
	slot := tree.allocate()
	e := &tree.entries[slot]
	e.hash = *consensushashing.HeaderHash(genesis)
	e.header = *genesis
	e.parent = -1
	e.work = pow.CalcWork(genesis.Bits)
	e.state = StateBestChain
	e.sequence = 0
	tree.byHash[e.hash] = slot
	tree.mainChain = []int32{slot}
	tree.best = slot
	tree.tips[slot] = struct{}{}
	tree.nextSequence = 1
	tree.dirty[slot] = struct{}{}
	return tree
}

func (t *Tree) allocate() int32 {
	var slot int32
	if len(t.free) > 0 {
		slot = t.free[len(t.free)-1]
		t.free = t.free[:len(t.free)-1]
		generation := t.entries[slot].generation + 1
		t.entries[slot] = entry{generation: generation}
	} else {
		slot = int32(len(t.entries))
		t.entries = append(t.entries, entry{})
	}
	t.entries[slot].live = true
	return slot
}

func (t *Tree) release(slot int32) {
	e := &t.entries[slot]
	delete(t.byHash, e.hash)
	delete(t.dirty, slot)
	delete(t.tips, slot)
	if e.parent >= 0 {
		parent := &t.entries[e.parent]
		parent.children--
		if parent.children == 0 {
			t.tips[e.parent] = struct{}{}
		}
	}
	e.live = false
	e.work = nil
	t.free = append(t.free, slot)
}

func (t *Tree) resolve(it Iterator) *entry {
	if it.tree != t || it.slot < 0 || int(it.slot) >= len(t.entries) {
		return nil
	}
	e := &t.entries[it.slot]
	if !e.live || e.generation != it.generation {
		return nil
	}
	return e
}

func (t *Tree) resolveOrErr(it Iterator) (*entry, error) {
	e := t.resolve(it)
	if e == nil {
		return nil, errors.WithStack(ErrStaleIterator)
	}
	return e, nil
}

func (t *Tree) iteratorForSlot(slot int32) Iterator {
	return Iterator{tree: t, slot: slot, generation: t.entries[slot].generation}
}

func (t *Tree) isMainChainSlot(slot int32) bool {
	height := t.entries[slot].height
	return height < uint64(len(t.mainChain)) && t.mainChain[height] == slot
}

// Insert links header into the tree as an indexed block. It fails with
// ErrMissingParents if the parent is unknown and with ErrDuplicateBlock if
// the block is already indexed. The best chain is not changed.
func (t *Tree) Insert(header *model.BlockHeader) (Iterator, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.insert(header, StateUnknown, 0, true)
}

// Restore links a header loaded from the database with its persisted state
// and first-seen sequence. Headers must be restored parents first. The
// state of an already indexed block is overwritten.
func (t *Tree) Restore(header *model.BlockHeader, state State, sequence uint64) (Iterator, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	hash := consensushashing.HeaderHash(header)
	if slot, ok := t.byHash[*hash]; ok {
		e := &t.entries[slot]
		e.state = state
		e.sequence = sequence
		if sequence >= t.nextSequence {
			t.nextSequence = sequence + 1
		}
		return t.iteratorForSlot(slot), nil
	}
	return t.insert(header, state, sequence, false)
}

func (t *Tree) insert(header *model.BlockHeader, state State, sequence uint64, isNew bool) (Iterator, error) {
	hash := consensushashing.HeaderHash(header)
	if _, ok := t.byHash[*hash]; ok {
		return Iterator{}, errors.Wrapf(ruleerrors.ErrDuplicateBlock, "block %s is already indexed", hash)
	}
	parentSlot, ok := t.byHash[header.ParentHash]
	if !ok {
		parentHash := header.ParentHash
		return Iterator{}, ruleerrors.NewErrMissingParents([]*chainhash.Hash{&parentHash})
	}

	if isNew {
		var err error
		state, err = transition(t.stateMachine, StateUnknown, EventIndex)
		if err != nil {
			return Iterator{}, err
		}
		sequence = t.nextSequence
		t.nextSequence++
	} else if sequence >= t.nextSequence {
		t.nextSequence = sequence + 1
	}

	slot := t.allocate()
	parent := &t.entries[parentSlot]
	e := &t.entries[slot]
	e.hash = *hash
	e.header = *header
	e.parent = parentSlot
	e.height = parent.height + 1
	e.work = new(big.Int).Add(parent.work, pow.CalcWork(header.Bits))
	e.sequence = sequence
	e.state = state
	parent.children++
	delete(t.tips, parentSlot)
	t.tips[slot] = struct{}{}

	t.byHash[*hash] = slot
	if isNew {
		t.dirty[slot] = struct{}{}
	}
	return t.iteratorForSlot(slot), nil
}

// Has returns whether the block with the given hash is indexed.
func (t *Tree) Has(hash *chainhash.Hash) bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	_, ok := t.byHash[*hash]
	return ok
}

// Iterator returns an iterator to the indexed block with the given hash,
// whether it is on the best chain or not.
func (t *Tree) Iterator(hash *chainhash.Hash) (Iterator, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	slot, ok := t.byHash[*hash]
	if !ok {
		return Iterator{}, false
	}
	return t.iteratorForSlot(slot), true
}

// IteratorAtHeight returns an iterator to the best chain block at the
// given height.
func (t *Tree) IteratorAtHeight(height uint64) (Iterator, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	if height >= uint64(len(t.mainChain)) {
		return Iterator{}, false
	}
	return t.iteratorForSlot(t.mainChain[height]), true
}

// IsInMainChain returns whether the block with the given hash is on the
// best chain.
func (t *Tree) IsInMainChain(hash *chainhash.Hash) bool {
	t.lock.RLock()
	defer t.lock.RUnlock()
	slot, ok := t.byHash[*hash]
	return ok && t.isMainChainSlot(slot)
}

// Height returns the height of the best block.
func (t *Tree) Height() uint64 {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return uint64(len(t.mainChain) - 1)
}

// Best returns an iterator to the best block.
func (t *Tree) Best() Iterator {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.iteratorForSlot(t.best)
}

// Genesis returns an iterator to the genesis block.
func (t *Tree) Genesis() Iterator {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.iteratorForSlot(t.mainChain[0])
}

// Count returns the number of indexed blocks.
func (t *Tree) Count() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.byHash)
}

// Ancestor returns the ancestor of it at the given height.
func (t *Tree) Ancestor(it Iterator, height uint64) (Iterator, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	e, err := t.resolveOrErr(it)
	if err != nil {
		return Iterator{}, err
	}
	if height > e.height {
		return Iterator{}, errors.Errorf("block %s at height %d has no ancestor at height %d",
			e.hash, e.height, height)
	}
	slot := it.slot
	for t.entries[slot].height > height {
		if t.isMainChainSlot(slot) {
			return t.iteratorForSlot(t.mainChain[height]), nil
		}
		slot = t.entries[slot].parent
	}
	return t.iteratorForSlot(slot), nil
}

// HasInvalidAncestry returns whether it or one of its ancestors is
// rejected.
func (t *Tree) HasInvalidAncestry(it Iterator) (bool, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	if _, err := t.resolveOrErr(it); err != nil {
		return false, err
	}
	for slot := it.slot; slot >= 0 && !t.isMainChainSlot(slot); slot = t.entries[slot].parent {
		if t.entries[slot].state == StateRejected {
			return true, nil
		}
	}
	return false, nil
}

// SetState applies event to the state of it and returns the previous
// state.
func (t *Tree) SetState(it Iterator, event Event) (State, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	e, err := t.resolveOrErr(it)
	if err != nil {
		return StateUnknown, err
	}
	previous := e.state
	next, err := transition(t.stateMachine, previous, event)
	if err != nil {
		return previous, errors.Wrapf(err, "block %s", e.hash)
	}
	e.state = next
	t.dirty[it.slot] = struct{}{}
	return previous, nil
}

// RevertState puts it back into a state returned by SetState, bypassing
// the transition table.
func (t *Tree) RevertState(it Iterator, state State) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	e, err := t.resolveOrErr(it)
	if err != nil {
		return err
	}
	e.state = state
	t.dirty[it.slot] = struct{}{}
	return nil
}

// MarkRejected rejects it. Its descendants are never candidates for the
// best chain. Rejecting a rejected block is a no-op.
func (t *Tree) MarkRejected(it Iterator) error {
	if it.State() == StateRejected {
		return nil
	}
	_, err := t.SetState(it, EventReject)
	return err
}
