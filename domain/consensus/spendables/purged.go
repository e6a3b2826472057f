package spendables

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/cespare/xxhash"
	"github.com/dolthub/swiss"
	"github.com/greatroar/blobloom"
)

const (
	purgedFilterCapacity = 1 << 16
	purgedFilterFPRate   = 0.001
)

// purgedSet remembers transaction hashes. Most lookups are for hashes that
// were never purged, and the bloom filter answers those without touching
// the exact set.
type purgedSet struct {
	filter   *blobloom.Filter
	capacity uint64
	exact    *swiss.Map[chainhash.Hash, struct{}]
}

func newPurgedSet() *purgedSet {
	return &purgedSet{
		filter:   newPurgedFilter(purgedFilterCapacity),
		capacity: purgedFilterCapacity,
		exact:    swiss.NewMap[chainhash.Hash, struct{}](purgedFilterCapacity),
	}
}

func newPurgedFilter(capacity uint64) *blobloom.Filter {
	return blobloom.NewOptimized(blobloom.Config{
		Capacity: capacity,
		FPRate:   purgedFilterFPRate,
	})
}

func filterKey(hash *chainhash.Hash) uint64 {
	return xxhash.Sum64(hash[:])
}

func (p *purgedSet) add(hash *chainhash.Hash) {
	if p.exact.Has(*hash) {
		return
	}
	p.exact.Put(*hash, struct{}{})
	if uint64(p.exact.Count()) > p.capacity {
		p.grow()
		return
	}
	p.filter.Add(filterKey(hash))
}

// grow rebuilds the filter with twice the capacity so that its false
// positive rate stays bounded.
func (p *purgedSet) grow() {
	p.capacity *= 2
	p.filter = newPurgedFilter(p.capacity)
	p.exact.Iter(func(hash chainhash.Hash, _ struct{}) bool {
		p.filter.Add(filterKey(&hash))
		return false
	})
	log.Debugf("Resized the purged transaction filter for %d hashes", p.capacity)
}

func (p *purgedSet) has(hash *chainhash.Hash) bool {
	if !p.filter.Has(filterKey(hash)) {
		return false
	}
	return p.exact.Has(*hash)
}

func (p *purgedSet) count() int {
	return p.exact.Count()
}
