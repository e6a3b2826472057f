package spendables

import (
	"bytes"
	"crypto/sha256"
	"sort"

	"github.com/coinchain/coinchaind/domain/consensus/model"
	"golang.org/x/crypto/ripemd160"
)

type scriptKey [ripemd160.Size]byte

// scriptKeyFor returns RIPEMD160(SHA256(script)).
func scriptKeyFor(script []byte) scriptKey {
	sha := sha256.Sum256(script)
	hasher := ripemd160.New()
	hasher.Write(sha[:])
	var key scriptKey
	copy(key[:], hasher.Sum(nil))
	return key
}

// scriptIndex maps a script to the outputs paying to it.
type scriptIndex struct {
	outpoints map[scriptKey]map[model.Outpoint]struct{}
}

func newScriptIndex() *scriptIndex {
	return &scriptIndex{outpoints: make(map[scriptKey]map[model.Outpoint]struct{})}
}

func (index *scriptIndex) add(spendable *model.Spendable) {
	key := scriptKeyFor(spendable.ScriptPubKey)
	outpoints, ok := index.outpoints[key]
	if !ok {
		outpoints = make(map[model.Outpoint]struct{})
		index.outpoints[key] = outpoints
	}
	outpoints[spendable.Outpoint] = struct{}{}
}

func (index *scriptIndex) remove(spendable *model.Spendable) {
	key := scriptKeyFor(spendable.ScriptPubKey)
	outpoints, ok := index.outpoints[key]
	if !ok {
		return
	}
	delete(outpoints, spendable.Outpoint)
	if len(outpoints) == 0 {
		delete(index.outpoints, key)
	}
}

// EnableScriptIndex builds the script index over the whole set. It is a
// no-op if the index is already enabled.
func (s *Spendables) EnableScriptIndex() {
	if s.scriptIndex != nil {
		return
	}
	s.scriptIndex = newScriptIndex()
	add := func(_ model.Outpoint, spendable *model.Spendable) bool {
		s.scriptIndex.add(spendable)
		return false
	}
	s.live.Iter(add)
	s.immature.Iter(add)
	log.Infof("Indexed %d unspent outputs by script", s.Count())
}

// DisableScriptIndex drops the script index.
func (s *Spendables) DisableScriptIndex() {
	s.scriptIndex = nil
}

// ScriptIndexEnabled returns whether the script index is maintained.
func (s *Spendables) ScriptIndexEnabled() bool {
	return s.scriptIndex != nil
}

// UnspentsForScript returns the spendable outputs paying to script that
// were confirmed below beforeHeight, or all of them if beforeHeight is 0.
// Immature coinbase outputs are not returned. The result is ordered by
// confirmation height and outpoint.
func (s *Spendables) UnspentsForScript(script []byte, beforeHeight uint64) []*model.Spendable {
	var unspents []*model.Spendable
	include := func(spendable *model.Spendable) {
		if beforeHeight == 0 || spendable.Confirmation.Height < beforeHeight {
			unspents = append(unspents, spendable)
		}
	}

	if s.scriptIndex != nil {
		for outpoint := range s.scriptIndex.outpoints[scriptKeyFor(script)] {
			if spendable, ok := s.live.Get(outpoint); ok {
				include(spendable)
			}
		}
	} else {
		s.live.Iter(func(_ model.Outpoint, spendable *model.Spendable) bool {
			if bytes.Equal(spendable.ScriptPubKey, script) {
				include(spendable)
			}
			return false
		})
	}

	sort.Slice(unspents, func(i, j int) bool {
		a, b := unspents[i], unspents[j]
		if a.Confirmation.Height != b.Confirmation.Height {
			return a.Confirmation.Height < b.Confirmation.Height
		}
		if a.Outpoint.TxHash != b.Outpoint.TxHash {
			return string(a.Outpoint.TxHash[:]) < string(b.Outpoint.TxHash[:])
		}
		return a.Outpoint.Index < b.Outpoint.Index
	})
	return unspents
}
