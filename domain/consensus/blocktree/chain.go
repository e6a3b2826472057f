package blocktree

import (
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/pkg/errors"
)

// preferred returns whether the chain ending at slot a is preferred over the
// chain ending at slot b: more work wins, and equal work goes to the block
// seen first.
func (t *Tree) preferred(a, b int32) bool {
	ea, eb := &t.entries[a], &t.entries[b]
	if cmp := ea.work.Cmp(eb.work); cmp != 0 {
		return cmp > 0
	}
	return ea.sequence < eb.sequence
}

// candidate returns the deepest ancestor of the leaf at slot that has no
// rejected ancestor, walking up until the best chain is reached.
func (t *Tree) candidate(leaf int32) int32 {
	candidate := leaf
	for slot := leaf; slot >= 0 && !t.isMainChainSlot(slot); slot = t.entries[slot].parent {
		if t.entries[slot].state == StateRejected {
			candidate = t.entries[slot].parent
		}
	}
	return candidate
}

// leaves returns the slots of the tree tips in slot order.
func (t *Tree) leaves() []int32 {
	leaves := make([]int32, 0, len(t.tips))
	for slot := range t.tips {
		leaves = append(leaves, slot)
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i] < leaves[j] })
	return leaves
}

// ReconsiderBest selects the best valid chain among the tips of the tree
// and moves the best pointer to it. It returns the previous and the new
// best blocks, which are Equal when the best did not change.
//
// Block states are not changed: a caller that fails to connect the new
// best chain must reject the offending block and call SetBest with the
// previous best.
func (t *Tree) ReconsiderBest() (previous, best Iterator) {
	t.lock.Lock()
	defer t.lock.Unlock()

	previousSlot := t.best
	bestSlot := previousSlot
	for _, leaf := range t.leaves() {
		candidate := t.candidate(leaf)
		if candidate >= 0 && t.preferred(candidate, bestSlot) {
			bestSlot = candidate
		}
	}
	t.setBest(bestSlot)
	return t.iteratorForSlot(previousSlot), t.iteratorForSlot(bestSlot)
}

// SetBest moves the best pointer to it unconditionally.
func (t *Tree) SetBest(it Iterator) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, err := t.resolveOrErr(it); err != nil {
		return err
	}
	t.setBest(it.slot)
	return nil
}

func (t *Tree) setBest(best int32) {
	if best == t.best {
		return
	}
	var path []int32
	slot := best
	for !t.isMainChainSlot(slot) {
		path = append(path, slot)
		slot = t.entries[slot].parent
	}
	forkHeight := t.entries[slot].height
	t.mainChain = t.mainChain[:forkHeight+1]
	for i := len(path) - 1; i >= 0; i-- {
		t.mainChain = append(t.mainChain, path[i])
	}
	t.best = best
}

// PathToCommonAncestor returns the blocks to detach when moving from a to
// b, ordered from a down to the common ancestor, and the blocks to attach,
// ordered from the common ancestor up to b. The common ancestor is in
// neither list.
func (t *Tree) PathToCommonAncestor(a, b Iterator) (detach, attach []Iterator, err error) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	if _, err := t.resolveOrErr(a); err != nil {
		return nil, nil, err
	}
	if _, err := t.resolveOrErr(b); err != nil {
		return nil, nil, err
	}

	from, to := a.slot, b.slot
	for t.entries[from].height > t.entries[to].height {
		detach = append(detach, t.iteratorForSlot(from))
		from = t.entries[from].parent
	}
	for t.entries[to].height > t.entries[from].height {
		attach = append(attach, t.iteratorForSlot(to))
		to = t.entries[to].parent
	}
	for from != to {
		detach = append(detach, t.iteratorForSlot(from))
		attach = append(attach, t.iteratorForSlot(to))
		from = t.entries[from].parent
		to = t.entries[to].parent
		if from < 0 || to < 0 {
			return nil, nil, errors.New("blocks do not share a common ancestor")
		}
	}

	for i, j := 0, len(attach)-1; i < j; i, j = i+1, j-1 {
		attach[i], attach[j] = attach[j], attach[i]
	}
	return detach, attach, nil
}

// Branches returns the tips of the side branches retained in the tree.
func (t *Tree) Branches() []Iterator {
	t.lock.RLock()
	defer t.lock.RUnlock()

	var branches []Iterator
	for _, leaf := range t.leaves() {
		if !t.isMainChainSlot(leaf) {
			branches = append(branches, t.iteratorForSlot(leaf))
		}
	}
	return branches
}

// PruneBranches removes the side branches whose tip lies more than depth
// blocks below the best height, and returns the hashes of the removed
// blocks. Iterators to removed blocks become stale.
func (t *Tree) PruneBranches(depth uint64) []chainhash.Hash {
	t.lock.Lock()
	defer t.lock.Unlock()

	bestHeight := t.entries[t.best].height
	var pruned []chainhash.Hash
	for _, leaf := range t.leaves() {
		if t.isMainChainSlot(leaf) || t.entries[leaf].height+depth >= bestHeight {
			continue
		}
		slot := leaf
		for slot >= 0 && !t.isMainChainSlot(slot) && t.entries[slot].children == 0 {
			parent := t.entries[slot].parent
			pruned = append(pruned, t.entries[slot].hash)
			t.release(slot)
			slot = parent
		}
	}
	if len(pruned) > 0 {
		log.Debugf("Pruned %d side branch blocks", len(pruned))
	}
	return pruned
}

// NextSequence returns the first-seen sequence the next inserted block
// will get.
func (t *Tree) NextSequence() uint64 {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return t.nextSequence
}
