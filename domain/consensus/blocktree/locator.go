package blocktree

import (
	"github.com/coinchain/coinchaind/domain/consensus/model"
)

// BestLocator returns a locator for the best chain.
//
// The first entry is the best block. Each following entry is twice as far
// back as the previous one, and the last entry is always genesis:
//
//	height, height-1, height-3, height-7, ..., 0
func (t *Tree) BestLocator() model.BlockLocator {
	t.lock.RLock()
	defer t.lock.RUnlock()

	height := t.entries[t.best].height
	locator := make(model.BlockLocator, 0, 2+fastLog2Floor(height))
	step := uint64(1)
	for {
		hash := t.entries[t.mainChain[height]].hash
		locator = append(locator, &hash)
		if height == 0 {
			break
		}
		if height < step {
			height = 0
		} else {
			height -= step
		}
		step *= 2
	}
	return locator
}

// IteratorFromLocator returns the first block of locator that is on the
// best chain, or genesis if there is none.
func (t *Tree) IteratorFromLocator(locator model.BlockLocator) Iterator {
	t.lock.RLock()
	defer t.lock.RUnlock()

	for _, hash := range locator {
		slot, ok := t.byHash[*hash]
		if ok && t.isMainChainSlot(slot) {
			return t.iteratorForSlot(slot)
		}
	}
	return t.iteratorForSlot(t.mainChain[0])
}

// DistanceBack returns how many blocks the first best chain entry of
// locator lies below the best block. If no entry is on the best chain, it
// returns the distance a locator of that length spans, which is 2^n-1.
func (t *Tree) DistanceBack(locator model.BlockLocator) uint64 {
	t.lock.RLock()
	defer t.lock.RUnlock()

	bestHeight := t.entries[t.best].height
	for _, hash := range locator {
		slot, ok := t.byHash[*hash]
		if ok && t.isMainChainSlot(slot) {
			return bestHeight - t.entries[slot].height
		}
	}
	if len(locator) >= 64 {
		return ^uint64(0)
	}
	return 1<<uint(len(locator)) - 1
}

var log2FloorMasks = []uint64{0xffffffff00000000, 0xffff0000, 0xff00, 0xf0, 0xc, 0x2}

// fastLog2Floor calculates and returns floor(log2(x)) in a constant 6
// steps.
func fastLog2Floor(n uint64) int {
	rv := 0
	exponent := 32
	for i := 0; i < len(log2FloorMasks); i++ {
		if n&log2FloorMasks[i] != 0 {
			rv += exponent
			n >>= uint(exponent)
		}
		exponent >>= 1
	}
	return rv
}
