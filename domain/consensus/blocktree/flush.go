package blocktree

import (
	"github.com/coinchain/coinchaind/domain/consensus/chainstore"
	"github.com/coinchain/coinchaind/domain/consensus/database/serialization"
)

// FlushToDB writes the index records of all blocks that were inserted or
// changed state since the last call to ClearDirtyEntries.
func (t *Tree) FlushToDB(dbContext chainstore.Context) error {
	t.lock.RLock()
	defer t.lock.RUnlock()

	for slot := range t.dirty {
		e := &t.entries[slot]
		record := &serialization.BlockIndexRecord{
			Header:   e.header,
			State:    uint32(e.state),
			Sequence: e.sequence,
			Height:   e.height,
		}
		err := chainstore.StoreBlockIndexRecord(dbContext, &e.hash, record)
		if err != nil {
			return err
		}
	}
	return nil
}

// ClearDirtyEntries forgets all pending index record changes.
func (t *Tree) ClearDirtyEntries() {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.dirty = make(map[int32]struct{})
}

// DirtyCount returns the number of index records FlushToDB would write.
func (t *Tree) DirtyCount() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.dirty)
}
