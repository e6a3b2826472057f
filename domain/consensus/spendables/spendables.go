package spendables

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/coinchain/coinchaind/domain/consensus/database/serialization"
	"github.com/coinchain/coinchaind/domain/consensus/model"
	"github.com/coinchain/coinchaind/domain/consensus/ruleerrors"
	"github.com/dolthub/swiss"
	"github.com/kaspanet/go-muhash"
	"github.com/pkg/errors"
)

const initialCapacity = 1 << 16

// Spendables is the set of confirmed unspent outputs of the best chain.
//
// Coinbase outputs are kept in a separate immature set until they are
// buried deep enough to be spent. An outpoint is never in both sets.
//
// Spendables is NOT safe for concurrent access; the chain write lock
// protects every mutation.
type Spendables struct {
	live     *swiss.Map[model.Outpoint, *model.Spendable]
	immature *swiss.Map[model.Outpoint, *model.Spendable]

	// coinbasesByHeight holds the unspent coinbase outputs, mature or not,
	// by the height they were confirmed at.
	coinbasesByHeight map[uint64]map[model.Outpoint]struct{}

	// Coinbase outputs confirmed at immatureFrom or above are immature.
	immatureFrom   uint64
	maturityWindow uint64

	purged      *purgedSet
	purgedBelow uint64
	scriptIndex *scriptIndex
	commitment  *muhash.MuHash
}

// New returns an empty set for a best chain of the given height. Coinbase
// outputs become spendable once the best chain is maturityWindow blocks
// above them.
func New(maturityWindow uint64, bestHeight uint64) *Spendables {
	s := &Spendables{
		live:              swiss.NewMap[model.Outpoint, *model.Spendable](initialCapacity),
		immature:          swiss.NewMap[model.Outpoint, *model.Spendable](initialCapacity),
		coinbasesByHeight: make(map[uint64]map[model.Outpoint]struct{}),
		maturityWindow:    maturityWindow,
		purged:            newPurgedSet(),
		commitment:        muhash.NewMuHash(),
	}
	if bestHeight >= maturityWindow {
		s.immatureFrom = bestHeight - maturityWindow + 1
	}
	return s
}

// MaturityHeight returns the height a block must be attached at for the
// coinbase outputs confirmed at confirmedHeight to mature.
func (s *Spendables) MaturityHeight(confirmedHeight uint64) uint64 {
	return confirmedHeight + s.maturityWindow
}

// MaturedThrough returns the confirmed height whose coinbases a block
// attached at height matures, and false if it matures none.
func (s *Spendables) MaturedThrough(height uint64) (uint64, bool) {
	if height < s.maturityWindow {
		return 0, false
	}
	return height - s.maturityWindow, true
}

func (s *Spendables) isImmature(spendable *model.Spendable) bool {
	return spendable.Confirmation.IsCoinbase && spendable.Confirmation.Height >= s.immatureFrom
}

// insert adds spendable to the live or immature set and to every index.
func (s *Spendables) insert(spendable *model.Spendable) {
	outpoint := spendable.Outpoint
	if s.isImmature(spendable) {
		s.immature.Put(outpoint, spendable)
	} else {
		s.live.Put(outpoint, spendable)
	}
	if spendable.Confirmation.IsCoinbase {
		height := spendable.Confirmation.Height
		outpoints, ok := s.coinbasesByHeight[height]
		if !ok {
			outpoints = make(map[model.Outpoint]struct{})
			s.coinbasesByHeight[height] = outpoints
		}
		outpoints[outpoint] = struct{}{}
	}
	if s.scriptIndex != nil {
		s.scriptIndex.add(spendable)
	}
	s.commitment.Add(serialization.SpendableToBytes(spendable))
}

// remove deletes spendable, which must be live or immature, from its set
// and from every index.
func (s *Spendables) remove(spendable *model.Spendable) {
	outpoint := spendable.Outpoint
	if !s.live.Delete(outpoint) {
		s.immature.Delete(outpoint)
	}
	if spendable.Confirmation.IsCoinbase {
		height := spendable.Confirmation.Height
		if outpoints, ok := s.coinbasesByHeight[height]; ok {
			delete(outpoints, outpoint)
			if len(outpoints) == 0 {
				delete(s.coinbasesByHeight, height)
			}
		}
	}
	if s.scriptIndex != nil {
		s.scriptIndex.remove(spendable)
	}
	s.commitment.Remove(serialization.SpendableToBytes(spendable))
}

func (s *Spendables) lookup(outpoint *model.Outpoint) (*model.Spendable, bool, bool) {
	if spendable, ok := s.live.Get(*outpoint); ok {
		return spendable, true, false
	}
	if spendable, ok := s.immature.Get(*outpoint); ok {
		return spendable, false, true
	}
	return nil, false, false
}

// Issue adds a new confirmed output. With uniqueRequired, an output that
// already exists, or whose transaction was purged, fails with
// ErrDuplicateTx.
func (s *Spendables) Issue(outpoint model.Outpoint, value int64, scriptPubKey []byte,
	confirmation model.Confirmation, uniqueRequired bool) error {

	_, isLive, isImmature := s.lookup(&outpoint)
	if isLive || isImmature {
		if uniqueRequired {
			return errors.Wrapf(ruleerrors.ErrDuplicateTx, "output %s already exists", outpoint)
		}
		return errors.Errorf("output %s is issued twice", outpoint)
	}
	if uniqueRequired && s.purged.has(&outpoint.TxHash) {
		return errors.Wrapf(ruleerrors.ErrDuplicateTx, "transaction %s was already confirmed", outpoint.TxHash)
	}

	s.insert(&model.Spendable{
		Outpoint:     outpoint,
		Value:        value,
		ScriptPubKey: scriptPubKey,
		Confirmation: confirmation,
	})
	return nil
}

// Unissue removes an output added by Issue.
func (s *Spendables) Unissue(outpoint model.Outpoint) error {
	spendable, isLive, isImmature := s.lookup(&outpoint)
	if !isLive && !isImmature {
		return errors.Errorf("cannot unissue missing output %s", outpoint)
	}
	s.remove(spendable)
	return nil
}

// Get returns the spendable output at outpoint. It fails with
// ErrMissingTxOut if there is none, and with ErrImmatureSpend if it is an
// immature coinbase output.
func (s *Spendables) Get(outpoint model.Outpoint) (*model.Spendable, error) {
	spendable, isLive, isImmature := s.lookup(&outpoint)
	if isImmature {
		return nil, errors.Wrapf(ruleerrors.ErrImmatureSpend,
			"coinbase output %s from height %d is not mature", outpoint, spendable.Confirmation.Height)
	}
	if !isLive {
		return nil, ruleerrors.NewErrMissingTxOut([]model.Outpoint{outpoint})
	}
	return spendable, nil
}

// Redeem spends the output at outpoint and returns it. It fails like Get.
func (s *Spendables) Redeem(outpoint model.Outpoint) (*model.Spendable, error) {
	spendable, err := s.Get(outpoint)
	if err != nil {
		return nil, err
	}
	s.remove(spendable)
	return spendable, nil
}

// Restore puts back an output returned by Redeem.
func (s *Spendables) Restore(spendable *model.Spendable) error {
	_, isLive, isImmature := s.lookup(&spendable.Outpoint)
	if isLive || isImmature {
		return errors.Errorf("cannot restore existing output %s", spendable.Outpoint)
	}
	s.insert(spendable)
	return nil
}

// IsSpent returns whether outpoint is neither spendable nor immature.
func (s *Spendables) IsSpent(outpoint model.Outpoint) bool {
	_, isLive, isImmature := s.lookup(&outpoint)
	return !isLive && !isImmature
}

// Maturate makes the coinbase outputs confirmed at or below
// confirmedHeight spendable, and returns the outpoints that matured.
func (s *Spendables) Maturate(confirmedHeight uint64) []model.Outpoint {
	var matured []model.Outpoint
	for ; s.immatureFrom <= confirmedHeight; s.immatureFrom++ {
		for outpoint := range s.coinbasesByHeight[s.immatureFrom] {
			spendable, ok := s.immature.Get(outpoint)
			if !ok {
				continue
			}
			s.immature.Delete(outpoint)
			s.live.Put(outpoint, spendable)
			matured = append(matured, outpoint)
		}
	}
	if len(matured) > 0 {
		log.Tracef("Matured %d coinbase outputs through height %d", len(matured), confirmedHeight)
	}
	return matured
}

// Dematurate reverts Maturate: the coinbase outputs confirmed at or above
// confirmedHeight become immature again. It returns the affected
// outpoints.
func (s *Spendables) Dematurate(confirmedHeight uint64) []model.Outpoint {
	var dematured []model.Outpoint
	for s.immatureFrom > confirmedHeight {
		s.immatureFrom--
		for outpoint := range s.coinbasesByHeight[s.immatureFrom] {
			spendable, ok := s.live.Get(outpoint)
			if !ok {
				continue
			}
			s.live.Delete(outpoint)
			s.immature.Put(outpoint, spendable)
			dematured = append(dematured, outpoint)
		}
	}
	return dematured
}

// ImmatureFrom returns the lowest confirmation height of immature coinbase
// outputs.
func (s *Spendables) ImmatureFrom() uint64 {
	return s.immatureFrom
}

// Purge records that the spend history of blocks below beforeHeight was
// dropped. The hashes of the transactions those blocks confirmed are kept,
// so that they keep failing uniqueness checks once their outputs are gone.
func (s *Spendables) Purge(beforeHeight uint64, txHashes []*chainhash.Hash) {
	for _, txHash := range txHashes {
		s.purged.add(txHash)
	}
	if beforeHeight > s.purgedBelow {
		s.purgedBelow = beforeHeight
	}
}

// PurgedBelow returns the height below which spend history was purged.
func (s *Spendables) PurgedBelow() uint64 {
	return s.purgedBelow
}

// IsPurged returns whether the transaction with the given hash was
// confirmed in a purged block.
func (s *Spendables) IsPurged(txHash *chainhash.Hash) bool {
	return s.purged.has(txHash)
}

// PurgedCount returns the number of purged transaction hashes.
func (s *Spendables) PurgedCount() int {
	return s.purged.count()
}

// Count returns the number of unspent outputs, mature or not.
func (s *Spendables) Count() int {
	return s.live.Count() + s.immature.Count()
}

// ImmatureCount returns the number of immature coinbase outputs.
func (s *Spendables) ImmatureCount() int {
	return s.immature.Count()
}

// Commitment returns the MuHash of all unspent outputs. It does not
// depend on the order outputs were added in.
func (s *Spendables) Commitment() chainhash.Hash {
	return chainhash.Hash(s.commitment.Finalize())
}

// ForEach calls fn for every unspent output until fn returns an error.
func (s *Spendables) ForEach(fn func(spendable *model.Spendable) error) error {
	var err error
	iterate := func(_ model.Outpoint, spendable *model.Spendable) bool {
		err = fn(spendable)
		return err != nil
	}
	s.live.Iter(iterate)
	if err != nil {
		return err
	}
	s.immature.Iter(iterate)
	return err
}
