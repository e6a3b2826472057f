package blocktree

import (
	"sort"
	"time"
)

// MedianTimePast returns the median timestamp of it and up to
// medianTimeBlocks-1 of its ancestors. With an even number of samples
// the later of the two middle timestamps is used.
func (t *Tree) MedianTimePast(it Iterator) (time.Time, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	if _, err := t.resolveOrErr(it); err != nil {
		return time.Time{}, err
	}
	timestamps := make([]time.Time, 0, t.medianTimeBlocks)
	for slot := it.slot; slot >= 0 && len(timestamps) < t.medianTimeBlocks; slot = t.entries[slot].parent {
		timestamps = append(timestamps, t.entries[slot].header.Timestamp)
	}
	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i].Before(timestamps[j])
	})
	return timestamps[len(timestamps)/2], nil
}
